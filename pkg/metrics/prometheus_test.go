package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/autoquery/pkg/config"
)

func TestPrometheusProviderCounters(t *testing.T) {
	p := NewPrometheusProvider(&Config{Enabled: true, Namespace: "test"})

	p.RecordDBQuery("query", "people", 5*time.Millisecond, nil)
	p.RecordDBQuery("query", "people", 5*time.Millisecond, errors.New("boom"))
	p.RecordCacheHit(CacheRequestMetadata)
	p.RecordCacheHit(CacheRequestMetadata)
	p.RecordCacheMiss(CacheRequestMetadata)
	p.UpdateCacheSize(CacheRequestMetadata, 3)
	p.RecordCrudEvent("update", "recorded")
	p.RecordConcurrencyConflict("people")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.dbQueryTotal.WithLabelValues("query", "people", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.dbQueryTotal.WithLabelValues("query", "people", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.cacheHits.WithLabelValues(CacheRequestMetadata)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheMisses.WithLabelValues(CacheRequestMetadata)))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.cacheSize.WithLabelValues(CacheRequestMetadata)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.crudEvents.WithLabelValues("update", "recorded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.concurrencyConflict.WithLabelValues("people")))
}

func TestPrometheusHandler(t *testing.T) {
	p := NewPrometheusProvider(nil)
	p.RecordCrudEvent("create", "recorded")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "crud_events_total"))
}

func TestNewProvider(t *testing.T) {
	assert.IsType(t, &NoOpProvider{}, NewProvider(nil))
	assert.IsType(t, &NoOpProvider{}, NewProvider(FromConfig(config.MetricsConfig{Enabled: false})))
	assert.IsType(t, &PrometheusProvider{}, NewProvider(FromConfig(config.MetricsConfig{Enabled: true})))
}

func TestGetProviderDefaultsToNoOp(t *testing.T) {
	SetProvider(nil)
	assert.IsType(t, &NoOpProvider{}, GetProvider())
}
