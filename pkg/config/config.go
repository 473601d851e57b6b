package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	AutoQuery     AutoQueryConfig     `mapstructure:"autoquery"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	ErrorTracking ErrorTrackingConfig `mapstructure:"error_tracking"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	DBManager     DBManagerConfig     `mapstructure:"dbmanager"`
	Events        EventsConfig        `mapstructure:"events"`
	Cache         CacheConfig         `mapstructure:"cache"`
}

// AutoQueryConfig holds the query and crud engine feature switches
type AutoQueryConfig struct {
	MaxLimit                 int      `mapstructure:"max_limit"`
	EnableUntypedQueries     bool     `mapstructure:"enable_untyped_queries"`
	EnableRawSQLFilters      bool     `mapstructure:"enable_raw_sql_filters"`
	OrderByPrimaryKeyOnLimit bool     `mapstructure:"order_by_primary_key_on_limit"`
	UseSnakeCase             bool     `mapstructure:"use_snake_case"`
	IllegalSQLFragmentTokens []string `mapstructure:"illegal_sql_fragment_tokens"`
	IgnoreProperties         []string `mapstructure:"ignore_properties"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Dev  bool   `mapstructure:"dev"`
	Path string `mapstructure:"path"`
}

// ErrorTrackingConfig holds error tracking configuration
type ErrorTrackingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Provider         string  `mapstructure:"provider"`           // sentry, memory, noop
	DSN              string  `mapstructure:"dsn"`                // Sentry DSN
	Environment      string  `mapstructure:"environment"`        // e.g., production, staging, development
	Release          string  `mapstructure:"release"`            // Application version/release
	Debug            bool    `mapstructure:"debug"`              // Enable debug mode
	SampleRate       float64 `mapstructure:"sample_rate"`        // Error sample rate (0.0-1.0)
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"` // Traces sample rate (0.0-1.0)
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
}

// MetricsConfig holds metrics provider configuration
type MetricsConfig struct {
	Enabled        bool      `mapstructure:"enabled"`
	Provider       string    `mapstructure:"provider"` // prometheus, noop
	Namespace      string    `mapstructure:"namespace"`
	DBQueryBuckets []float64 `mapstructure:"db_query_buckets"`
}

// DBManagerConfig contains configuration for the named connections
type DBManagerConfig struct {
	// DefaultConnection is the name of the connection used when a request names none
	DefaultConnection string `mapstructure:"default_connection"`

	// Connections is a map of connection name to connection configuration
	Connections map[string]DBConnectionConfig `mapstructure:"connections"`

	// Global connection pool defaults
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// DBConnectionConfig defines configuration for a single database connection
type DBConnectionConfig struct {
	Name string `mapstructure:"name"`

	// Type is the database type (postgres, sqlite, mssql)
	Type string `mapstructure:"type"`

	// DSN takes precedence over the individual connection parameters
	DSN string `mapstructure:"dsn"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	// SQLite specific
	FilePath string `mapstructure:"filepath"`

	MaxOpenConns    *int           `mapstructure:"max_open_conns"`
	MaxIdleConns    *int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime *time.Duration `mapstructure:"conn_max_lifetime"`

	// ORM selects the adapter behind the connection: "bun" (default) or "gorm"
	ORM        string `mapstructure:"orm"`
	QueryDebug bool   `mapstructure:"query_debug"`
}

// EventsConfig configures crud event recording and publishing
type EventsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Sink      string `mapstructure:"sink"` // database, memory
	TableName string `mapstructure:"table_name"`
	Publisher string `mapstructure:"publisher"` // none, redis, nats

	Redis RedisConfig `mapstructure:"redis"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	StreamName string `mapstructure:"stream_name"`
	MaxLen     int64  `mapstructure:"max_len"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig configures the aggregate result cache
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"` // memory, redis, memcache
	TTL      time.Duration `mapstructure:"ttl"`
	MaxSize  int           `mapstructure:"max_size"`

	Redis           RedisConfig `mapstructure:"redis"`
	MemcacheServers []string    `mapstructure:"memcache_servers"`
}

// NATSConfig holds NATS-specific configuration
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Validate checks the pieces of configuration that cannot be defaulted
func (c *Config) Validate() error {
	if c.AutoQuery.MaxLimit < 0 {
		return fmt.Errorf("autoquery.max_limit must not be negative")
	}
	if c.DBManager.DefaultConnection != "" {
		if _, ok := c.DBManager.Connections[c.DBManager.DefaultConnection]; !ok {
			return fmt.Errorf("default connection %q is not configured", c.DBManager.DefaultConnection)
		}
	}
	for name, conn := range c.DBManager.Connections {
		switch conn.Type {
		case "postgres", "sqlite", "mssql":
		default:
			return fmt.Errorf("connection %q: unsupported type %q", name, conn.Type)
		}
	}
	switch c.Events.Publisher {
	case "", "none", "redis", "nats":
	default:
		return fmt.Errorf("unknown events publisher %q", c.Events.Publisher)
	}
	switch c.Cache.Provider {
	case "", "memory", "redis", "memcache":
	default:
		return fmt.Errorf("unknown cache provider %q", c.Cache.Provider)
	}
	return nil
}
