package metrics

import (
	"net/http"
	"time"

	"github.com/bitechdev/autoquery/pkg/logger"
)

// Cache names reported through RecordCacheHit/RecordCacheMiss.
const (
	CacheRequestMetadata = "request_metadata"
	CacheModelMetadata   = "model_metadata"
	CacheAggregates      = "aggregates"
)

// Provider defines the interface for metric collection
type Provider interface {
	// RecordDBQuery records one SQL execution. operation is query, aggregate,
	// create, update, patch, delete or save.
	RecordDBQuery(operation, table string, duration time.Duration, err error)

	// RecordCacheHit records a metadata cache hit
	RecordCacheHit(cache string)

	// RecordCacheMiss records a metadata cache miss
	RecordCacheMiss(cache string)

	// UpdateCacheSize updates the number of entries in a metadata cache
	UpdateCacheSize(cache string, size int64)

	// RecordCrudEvent records an audit event outcome (recorded, published, failed)
	RecordCrudEvent(operation, status string)

	// RecordConcurrencyConflict records an update that matched no row or several
	RecordConcurrencyConflict(table string)

	// Handler returns an HTTP handler exposing the metrics
	Handler() http.Handler
}

// globalProvider is the global metrics provider
var globalProvider Provider

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	globalProvider = p
}

// GetProvider returns the current metrics provider
func GetProvider() Provider {
	if globalProvider == nil {
		return &NoOpProvider{}
	}
	return globalProvider
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) RecordDBQuery(operation, table string, duration time.Duration, err error) {
}
func (n *NoOpProvider) RecordCacheHit(cache string)              {}
func (n *NoOpProvider) RecordCacheMiss(cache string)             {}
func (n *NoOpProvider) UpdateCacheSize(cache string, size int64) {}
func (n *NoOpProvider) RecordCrudEvent(operation, status string) {}
func (n *NoOpProvider) RecordConcurrencyConflict(table string)   {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Metrics provider not configured"))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	})
}
