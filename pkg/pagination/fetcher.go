package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/permits-export/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page fetching.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permits_pages_fetched_total",
		Help: "Total number of pages fetched, including the terminating empty page",
	})

	recordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permits_records_fetched_total",
		Help: "Total number of records fetched",
	})
)

// DefaultOrder sorts newest permits first so the record cap keeps the most
// recent rows.
const DefaultOrder = "issue_date DESC"

// Config holds fetcher configuration
type Config struct {
	// PageSize is the $limit sent with every request
	PageSize int
	// MaxRecords stops fetching once offset >= MaxRecords (0 = no cap)
	MaxRecords int
	// Order is the $order expression
	Order string
	// Where and Select are optional SoQL clauses
	Where  string
	Select string
}

// DefaultConfig returns the configuration used against the Chicago portal
func DefaultConfig() Config {
	return Config{
		PageSize:   5000,
		MaxRecords: 20000,
		Order:      DefaultOrder,
	}
}

// PageRequest describes one page of a Socrata query.
type PageRequest struct {
	Limit  int
	Offset int
	Order  string
	Where  string
	Select string
}

// PageFetcher fetches a single page of a dataset.
type PageFetcher interface {
	FetchPage(ctx context.Context, dataset string, req PageRequest) ([]record.Record, error)
}

// Pacer pauses between page requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// noPause is used when no pacer is configured.
type noPause struct{}

func (noPause) Wait(ctx context.Context) error { return ctx.Err() }

// Fetcher pages through a dataset sequentially.
type Fetcher struct {
	fetcher PageFetcher
	pacer   Pacer
	config  Config
	logger  zerolog.Logger
}

// NewFetcher creates a new fetcher. A nil pacer disables pauses.
func NewFetcher(fetcher PageFetcher, pacer Pacer, config Config) *Fetcher {
	if config.PageSize <= 0 {
		config.PageSize = DefaultConfig().PageSize
	}
	if config.MaxRecords < 0 {
		config.MaxRecords = 0
	}
	if config.Order == "" {
		config.Order = DefaultOrder
	}
	if pacer == nil {
		pacer = noPause{}
	}

	return &Fetcher{
		fetcher: fetcher,
		pacer:   pacer,
		config:  config,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config {
	return f.config
}

// FetchAll returns every record of dataset in $order, or the first
// ceil(MaxRecords/PageSize) pages of it when a cap is set.
func (f *Fetcher) FetchAll(ctx context.Context, dataset string) (record.ResultSet, error) {
	start := time.Now()
	limit := f.config.PageSize

	var results record.ResultSet
	offset := 0
	pages := 0

	f.logger.Info().
		Str("dataset", dataset).
		Int("page_size", limit).
		Int("max_records", f.config.MaxRecords).
		Str("order", f.config.Order).
		Msg("Starting paginated fetch")

	for {
		page, err := f.fetcher.FetchPage(ctx, dataset, PageRequest{
			Limit:  limit,
			Offset: offset,
			Order:  f.config.Order,
			Where:  f.config.Where,
			Select: f.config.Select,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		pages++
		pagesFetchedTotal.Inc()

		// End of data
		if len(page) == 0 {
			break
		}

		results = append(results, page...)
		recordsFetchedTotal.Add(float64(len(page)))
		offset += limit

		f.logger.Info().
			Int("page", pages).
			Int("page_records", len(page)).
			Int("offset", offset).
			Int("total", len(results)).
			Msg("Downloaded page")

		if f.config.MaxRecords > 0 && offset >= f.config.MaxRecords {
			f.logger.Info().
				Int("max_records", f.config.MaxRecords).
				Msg("Record cap reached")
			break
		}

		if err := f.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pause after offset %d: %w", offset, err)
		}
	}

	f.logger.Info().
		Str("dataset", dataset).
		Int("pages", pages).
		Int("records", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}
