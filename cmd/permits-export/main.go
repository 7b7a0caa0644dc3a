// Command permits-export downloads building permits from a Socrata portal
// and saves them as CSV for the dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/permits-export/pkg/config"
	"github.com/Sternrassler/permits-export/pkg/exporter"
	"github.com/Sternrassler/permits-export/pkg/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Error().Err(err).Msg("Export failed")
		os.Exit(1)
	}
}

// run parses flags, loads configuration and performs one export.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging()
	logCfg.Output = stderr
	logging.Setup(logCfg)

	exp, closeFn, err := exporter.FromConfig(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	log.Info().
		Str("base_url", cfg.BaseURL).
		Str("dataset", cfg.Dataset).
		Msg("Connecting to data portal")

	summary, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Success! Saved %d records to %s\n", summary.Records, summary.OutputPath)
	return nil
}

// loadConfig applies defaults, the -config file, PERMITS_* variables and
// then any flags given on the command line.
func loadConfig(args []string, stderr io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet("permits-export", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaults := config.Default()
	var (
		configPath = fs.String("config", "", "path to a YAML config file")
		dataset    = fs.String("dataset", defaults.Dataset, "Socrata dataset identifier")
		baseURL    = fs.String("base-url", defaults.BaseURL, "open-data portal base URL")
		pageSize   = fs.Int("page-size", defaults.PageSize, "rows per request ($limit)")
		maxRecords = fs.Int("max-records", defaults.MaxRecords, "stop once this many rows are fetched (0 = no cap)")
		delay      = fs.Duration("delay", defaults.Delay, "pause between requests")
		order      = fs.String("order", defaults.Order, "$order expression")
		where      = fs.String("where", "", "$where filter")
		output     = fs.String("output", defaults.OutputPath, "CSV output path")
		logLevel   = fs.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
		logPretty  = fs.Bool("log-pretty", false, "human-readable logs")
	)

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.Dataset = *dataset
		case "base-url":
			cfg.BaseURL = *baseURL
		case "page-size":
			cfg.PageSize = *pageSize
		case "max-records":
			cfg.MaxRecords = *maxRecords
		case "delay":
			cfg.Delay = *delay
		case "order":
			cfg.Order = *order
		case "where":
			cfg.Where = *where
		case "output":
			cfg.OutputPath = *output
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-pretty":
			cfg.LogPretty = *logPretty
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
