package metrics

import "github.com/bitechdev/autoquery/pkg/config"

var defaultDBQueryBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Config holds configuration for the metrics provider
type Config struct {
	// Enabled determines whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled"`

	// Provider specifies which metrics provider to use (prometheus, noop)
	Provider string `mapstructure:"provider"`

	// Namespace is an optional prefix for all metric names
	Namespace string `mapstructure:"namespace"`

	// DBQueryBuckets defines histogram buckets for SQL execution duration (in seconds)
	DBQueryBuckets []float64 `mapstructure:"db_query_buckets"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Provider:       "prometheus",
		DBQueryBuckets: defaultDBQueryBuckets,
	}
}

// FromConfig converts the application metrics section
func FromConfig(cfg config.MetricsConfig) *Config {
	c := &Config{
		Enabled:        cfg.Enabled,
		Provider:       cfg.Provider,
		Namespace:      cfg.Namespace,
		DBQueryBuckets: cfg.DBQueryBuckets,
	}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in any missing values with defaults
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "prometheus"
	}
	if len(c.DBQueryBuckets) == 0 {
		c.DBQueryBuckets = defaultDBQueryBuckets
	}
}

// NewProvider builds the provider the configuration selects
func NewProvider(c *Config) Provider {
	if c == nil || !c.Enabled || c.Provider == "noop" {
		return &NoOpProvider{}
	}
	return NewPrometheusProvider(c)
}
