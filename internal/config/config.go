// Package config defines the krooster-stats configuration and how it is loaded.
package config

import (
	"fmt"
	"time"

	"github.com/PeterYR/krooster-stats/internal/adapters/catalogsrc"
	"github.com/PeterYR/krooster-stats/internal/adapters/krooster"
	"github.com/PeterYR/krooster-stats/internal/domain/cohort"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	LogJSON  bool   `koanf:"log_json"`

	// Addr configures the HTTP listen address of `serve`, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CatalogURL is an http(s) URL, file:// URL or path to operators.json.
	CatalogURL string `koanf:"catalog_url"`

	// RemoteBaseURL is the roster store root.
	RemoteBaseURL string `koanf:"remote_base_url"`

	// BatchSize bounds concurrent phonebook lookups and roster fetch workers.
	BatchSize int `koanf:"batch_size"`

	// QueueSize bounds the fetch job queue. Zero sizes it to the handle count.
	QueueSize int `koanf:"queue_size"`

	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// IncludeCN keeps CN-only operators and modules in the catalog.
	IncludeCN bool `koanf:"include_cn"`

	// ByCommunity also reports per rarity and community.
	ByCommunity bool     `koanf:"by_community"`
	Communities []string `koanf:"communities"`

	// ReportFields selects and orders the counter columns.
	ReportFields []string `koanf:"report_fields"`

	OutputDir string `koanf:"output_dir"`

	// StorePath is the SQLite file runs are saved to. Empty disables saving.
	StorePath string `koanf:"store_path"`

	// RedisAddr enables the catalog cache when set.
	RedisAddr        string `koanf:"redis_addr"`
	CatalogCacheTTLS int    `koanf:"catalog_cache_ttl_s"`
}

// New returns a Config with defaults. List fields stay nil here and are
// filled by applyListDefaults after loading, so a configured list replaces
// the default instead of being merged into it.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		CatalogURL:       catalogsrc.DefaultURL,
		RemoteBaseURL:    krooster.DefaultBaseURL,
		BatchSize:        32,
		QueueSize:        0,
		RequestTimeoutMS: 15_000,
		IncludeCN:        false,
		OutputDir:        "output",
		StorePath:        "krooster-stats.db",
		CatalogCacheTTLS: 3600,
	}
}

func (c *Config) applyListDefaults() {
	if len(c.Communities) == 0 {
		c.Communities = append([]string(nil), cohort.DefaultCommunities...)
	}
	if len(c.ReportFields) == 0 {
		c.ReportFields = milestone.Names(milestone.AllFlags())
	}
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// CatalogCacheTTL returns how long a cached catalog stays valid.
func (c *Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLS) * time.Second
}

// Fields parses ReportFields into flags.
func (c *Config) Fields() ([]milestone.Flag, error) {
	out := make([]milestone.Flag, 0, len(c.ReportFields))
	seen := make(map[milestone.Flag]bool, len(c.ReportFields))
	for _, name := range c.ReportFields {
		f, ok := milestone.ParseFlag(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown report field %q", ErrInvalidConfig, name)
		}
		if seen[f] {
			return nil, fmt.Errorf("%w: duplicate report field %q", ErrInvalidConfig, name)
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CatalogURL == "":
		return fmt.Errorf("%w: catalog_url must not be empty", ErrInvalidConfig)
	case c.RemoteBaseURL == "":
		return fmt.Errorf("%w: remote_base_url must not be empty", ErrInvalidConfig)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be at least 1", ErrInvalidConfig)
	case c.QueueSize < 0:
		return fmt.Errorf("%w: queue_size must not be negative", ErrInvalidConfig)
	case c.RequestTimeoutMS < 1:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	case c.OutputDir == "":
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	}
	_, err := c.Fields()
	return err
}
