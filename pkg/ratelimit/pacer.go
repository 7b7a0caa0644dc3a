// Package ratelimit paces requests against an open-data portal.
//
// Socrata publishes no hard limit for anonymous paging, but throttles clients
// that hammer it. A fixed pause between pages keeps one exporter polite; the
// Redis pacer extends the same spacing across several exporter processes that
// share a portal.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for request pacing.
var (
	pacerWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "permits_pacer_wait_seconds",
		Help:    "Time spent pausing between page requests by pacer kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"pacer"})
)

// DefaultDelay is the pause between page requests.
const DefaultDelay = 100 * time.Millisecond

// FixedDelay pauses for a constant duration.
type FixedDelay time.Duration

// Wait blocks for the delay or until ctx is done.
func (d FixedDelay) Wait(ctx context.Context) error {
	start := time.Now()
	err := sleep(ctx, time.Duration(d))
	pacerWaitSeconds.WithLabelValues("fixed").Observe(time.Since(start).Seconds())
	return err
}

// sleep blocks for d with context cancellation support.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
