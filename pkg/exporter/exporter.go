// Package exporter runs one fetch-and-write cycle: page through the dataset,
// then replace the CSV file with everything that was fetched.
package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/permits-export/pkg/csvout"
	"github.com/Sternrassler/permits-export/pkg/metrics"
	"github.com/Sternrassler/permits-export/pkg/pagination"
	"github.com/Sternrassler/permits-export/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for export runs.
var (
	lastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "permits_export_last_success_timestamp_seconds",
		Help: "Unix time of the last successful export",
	})

	exportRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "permits_export_records",
		Help: "Records written by the last successful export",
	})

	exportDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "permits_export_duration_seconds",
		Help: "Duration of the last export run in seconds",
	})

	exportFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permits_export_failures_total",
		Help: "Failed export runs by stage",
	}, []string{"stage"})
)

// Fetcher returns the full result set for a dataset.
type Fetcher interface {
	FetchAll(ctx context.Context, dataset string) (record.ResultSet, error)
}

// FileWriter writes a result set to a path.
type FileWriter interface {
	WriteFile(path string, rs record.ResultSet) error
}

// Summary describes a completed run.
type Summary struct {
	Dataset    string
	Records    int
	Columns    int
	OutputPath string
	Duration   time.Duration
}

// Exporter fetches a dataset and writes it to a CSV file.
type Exporter struct {
	fetcher         Fetcher
	writer          FileWriter
	dataset         string
	outputPath      string
	metricsTextfile string
	logger          zerolog.Logger
}

// New creates an exporter. metricsTextfile may be empty.
func New(fetcher Fetcher, writer FileWriter, dataset, outputPath, metricsTextfile string) *Exporter {
	return &Exporter{
		fetcher:         fetcher,
		writer:          writer,
		dataset:         dataset,
		outputPath:      outputPath,
		metricsTextfile: metricsTextfile,
		logger:          log.With().Str("component", "exporter").Logger(),
	}
}

// Run fetches every page and then writes the output file. If the fetch fails
// the output file is left untouched.
func (e *Exporter) Run(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	summary = Summary{Dataset: e.dataset, OutputPath: e.outputPath}

	defer func() {
		summary.Duration = time.Since(start)
		exportDuration.Set(summary.Duration.Seconds())
		e.flushMetrics()
	}()

	rs, err := e.fetcher.FetchAll(ctx, e.dataset)
	if err != nil {
		exportFailuresTotal.WithLabelValues("fetch").Inc()
		return summary, fmt.Errorf("fetch %s: %w", e.dataset, err)
	}

	if err := e.writer.WriteFile(e.outputPath, rs); err != nil {
		exportFailuresTotal.WithLabelValues("write").Inc()
		return summary, fmt.Errorf("write %s: %w", e.outputPath, err)
	}

	summary.Records = len(rs)
	summary.Columns = len(rs.Columns())

	lastSuccessTimestamp.SetToCurrentTime()
	exportRecords.Set(float64(summary.Records))

	e.logger.Info().
		Str("dataset", e.dataset).
		Int("records", summary.Records).
		Int("columns", summary.Columns).
		Str("output_path", e.outputPath).
		Dur("duration", time.Since(start)).
		Msg("Export complete")

	return summary, nil
}

// flushMetrics writes the metrics textfile if one is configured.
func (e *Exporter) flushMetrics() {
	if e.metricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(e.metricsTextfile); err != nil {
		e.logger.Warn().Err(err).Str("path", e.metricsTextfile).Msg("Failed to write metrics")
	}
}

var (
	_ Fetcher    = (*pagination.Fetcher)(nil)
	_ FileWriter = (*csvout.Writer)(nil)
)
