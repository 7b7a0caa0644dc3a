// Package metrics exports the exporter's Prometheus metrics.
//
// Metrics are defined with promauto in the packages that update them
// (client, pagination, ratelimit, exporter). The exporter is a batch job, so
// instead of serving /metrics it writes the registry to a file picked up by
// node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry all packages register with.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics written by WriteTextfile.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every registered metric to path in the text
// exposition format. The write is atomic.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - permits_requests_total{status} (Counter): Socrata requests by HTTP status
//   - permits_request_duration_seconds (Histogram): Socrata request latency
//   - permits_errors_total{class} (Counter): Errors by class (client, rate_limit, server, network, decode)
//
// Pagination Metrics (pkg/pagination):
//   - permits_pages_fetched_total (Counter): Pages fetched, including the final empty page
//   - permits_records_fetched_total (Counter): Records fetched
//
// Pacing Metrics (pkg/ratelimit):
//   - permits_pacer_wait_seconds{pacer} (Histogram): Pause between pages (fixed, redis)
//
// Export Metrics (pkg/exporter):
//   - permits_export_last_success_timestamp_seconds (Gauge): Unix time of the last successful export
//   - permits_export_records (Gauge): Records written by the last successful export
//   - permits_export_duration_seconds (Gauge): Duration of the last run
//   - permits_export_failures_total (Counter): Failed runs
//
// Example Prometheus Queries:
//
//   # Export is stale (no success in 26h)
//   time() - permits_export_last_success_timestamp_seconds > 26 * 3600
//
//   # Throttled by the portal
//   increase(permits_errors_total{class="rate_limit"}[1d]) > 0
