package exporter

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/permits-export/pkg/client"
	"github.com/Sternrassler/permits-export/pkg/config"
	"github.com/Sternrassler/permits-export/pkg/csvout"
	"github.com/Sternrassler/permits-export/pkg/logging"
	"github.com/Sternrassler/permits-export/pkg/pagination"
	"github.com/Sternrassler/permits-export/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

// FromConfig builds the client, pacer, fetcher and writer described by cfg.
// The returned close function releases the HTTP and Redis connections.
func FromConfig(cfg config.Config) (*Exporter, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	socrata, err := client.New(cfg.Client())
	if err != nil {
		return nil, nil, fmt.Errorf("create socrata client: %w", err)
	}
	closers := []func() error{socrata.Close}

	var pacer pagination.Pacer = ratelimit.FixedDelay(cfg.Delay)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			socrata.Close()
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		closers = append(closers, redisClient.Close)

		pacer = ratelimit.NewRedisPacer(redisClient, cfg.EffectivePacerKey(), cfg.Delay, logging.NewLogger("pacer"))
	}

	fetcher := pagination.NewFetcher(socrata, pacer, cfg.Pagination())
	writer := csvout.NewWriter(csvout.Options{BOM: cfg.CSVBOM})

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return New(fetcher, writer, cfg.Dataset, cfg.OutputPath, cfg.MetricsTextfile), closeAll, nil
}
