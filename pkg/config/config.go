// Package config loads exporter settings from defaults, a YAML file and the
// environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/permits-export/pkg/client"
	"github.com/Sternrassler/permits-export/pkg/logging"
	"github.com/Sternrassler/permits-export/pkg/pagination"
	"github.com/Sternrassler/permits-export/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PERMITS_"

// Config holds the full exporter configuration.
type Config struct {
	// Source
	BaseURL   string        `yaml:"base_url"`
	Dataset   string        `yaml:"dataset"`
	AppToken  string        `yaml:"app_token"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`

	// Paging
	PageSize   int           `yaml:"page_size"`
	MaxRecords int           `yaml:"max_records"` // 0 = no cap
	Delay      time.Duration `yaml:"delay"`
	Order      string        `yaml:"order"`
	Where      string        `yaml:"where"`
	Select     string        `yaml:"select"`

	// Output
	OutputPath string `yaml:"output_path"`
	CSVBOM     bool   `yaml:"csv_bom"`

	// Shared pacing; empty RedisURL keeps pacing local
	RedisURL string `yaml:"redis_url"`
	PacerKey string `yaml:"pacer_key"`

	// Observability
	MetricsTextfile string `yaml:"metrics_textfile"`
	LogLevel        string `yaml:"log_level"`
	LogPretty       bool   `yaml:"log_pretty"`
}

// Default returns the configuration for the Chicago building permits dataset.
func Default() Config {
	return Config{
		BaseURL:    "https://data.cityofchicago.org",
		Dataset:    "ydr8-5enu",
		UserAgent:  "permits-export/0.1.0",
		Timeout:    30 * time.Second,
		PageSize:   5000,
		MaxRecords: 20000,
		Delay:      ratelimit.DefaultDelay,
		Order:      pagination.DefaultOrder,
		OutputPath: "chicago_permits.csv",
		LogLevel:   string(logging.LevelInfo),
	}
}

// Load returns defaults overlaid with the YAML file at path (if path is not
// empty) and then with PERMITS_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays PERMITS_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("BASE_URL", &c.BaseURL)
	str("DATASET", &c.Dataset)
	str("APP_TOKEN", &c.AppToken)
	str("USER_AGENT", &c.UserAgent)
	dur("TIMEOUT", &c.Timeout)
	num("PAGE_SIZE", &c.PageSize)
	num("MAX_RECORDS", &c.MaxRecords)
	dur("DELAY", &c.Delay)
	str("ORDER", &c.Order)
	str("WHERE", &c.Where)
	str("SELECT", &c.Select)
	str("OUTPUT_PATH", &c.OutputPath)
	flag("CSV_BOM", &c.CSVBOM)
	str("REDIS_URL", &c.RedisURL)
	str("PACER_KEY", &c.PacerKey)
	str("METRICS_TEXTFILE", &c.MetricsTextfile)
	str("LOG_LEVEL", &c.LogLevel)
	flag("LOG_PRETTY", &c.LogPretty)

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.Dataset == "" {
		errs = append(errs, errors.New("dataset is required"))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user_agent is required"))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("output_path is required"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be > 0 (got %d)", c.PageSize))
	}
	if c.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("max_records must be >= 0 (got %d)", c.MaxRecords))
	}
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must be >= 0 (got %s)", c.Delay))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0 (got %s)", c.Timeout))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Client returns the Socrata client configuration.
func (c Config) Client() client.Config {
	return client.Config{
		BaseURL:   c.BaseURL,
		UserAgent: c.UserAgent,
		AppToken:  c.AppToken,
		Timeout:   c.Timeout,
	}
}

// Pagination returns the fetcher configuration.
func (c Config) Pagination() pagination.Config {
	return pagination.Config{
		PageSize:   c.PageSize,
		MaxRecords: c.MaxRecords,
		Order:      c.Order,
		Where:      c.Where,
		Select:     c.Select,
	}
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// EffectivePacerKey returns PacerKey or the key derived from BaseURL.
func (c Config) EffectivePacerKey() string {
	if c.PacerKey != "" {
		return c.PacerKey
	}
	return ratelimit.KeyForURL(c.BaseURL)
}
