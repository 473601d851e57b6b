package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements the Provider interface using Prometheus.
// Each provider owns its registry so several can coexist in one process.
type PrometheusProvider struct {
	registry            *prometheus.Registry
	dbQueryDuration     *prometheus.HistogramVec
	dbQueryTotal        *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	cacheSize           *prometheus.GaugeVec
	crudEvents          *prometheus.CounterVec
	concurrencyConflict *prometheus.CounterVec
}

// NewPrometheusProvider creates a new Prometheus metrics provider
func NewPrometheusProvider(cfg *Config) *PrometheusProvider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	ns := cfg.Namespace

	return &PrometheusProvider{
		registry: registry,
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "db_query_duration_seconds",
				Help:      "SQL execution duration in seconds",
				Buckets:   cfg.DBQueryBuckets,
			},
			[]string{"operation", "table"},
		),
		dbQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "db_queries_total",
				Help:      "Total number of SQL executions",
			},
			[]string{"operation", "table", "status"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "metadata_cache_hits_total",
				Help:      "Total number of metadata cache hits",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "metadata_cache_misses_total",
				Help:      "Total number of metadata cache misses",
			},
			[]string{"cache"},
		),
		cacheSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "metadata_cache_entries",
				Help:      "Number of entries in a metadata cache",
			},
			[]string{"cache"},
		),
		crudEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "crud_events_total",
				Help:      "Crud audit events by outcome",
			},
			[]string{"operation", "status"},
		),
		concurrencyConflict: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "concurrency_conflicts_total",
				Help:      "Updates that did not affect exactly one row",
			},
			[]string{"table"},
		),
	}
}

// Registry exposes the provider's registry, e.g. for tests
func (p *PrometheusProvider) Registry() *prometheus.Registry {
	return p.registry
}

// RecordDBQuery implements Provider interface
func (p *PrometheusProvider) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	p.dbQueryTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordCacheHit implements Provider interface
func (p *PrometheusProvider) RecordCacheHit(cache string) {
	p.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss implements Provider interface
func (p *PrometheusProvider) RecordCacheMiss(cache string) {
	p.cacheMisses.WithLabelValues(cache).Inc()
}

// UpdateCacheSize implements Provider interface
func (p *PrometheusProvider) UpdateCacheSize(cache string, size int64) {
	p.cacheSize.WithLabelValues(cache).Set(float64(size))
}

// RecordCrudEvent implements Provider interface
func (p *PrometheusProvider) RecordCrudEvent(operation, status string) {
	p.crudEvents.WithLabelValues(operation, status).Inc()
}

// RecordConcurrencyConflict implements Provider interface
func (p *PrometheusProvider) RecordConcurrencyConflict(table string) {
	p.concurrencyConflict.WithLabelValues(table).Inc()
}

// Handler implements Provider interface
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
