package errortracking

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/autoquery/pkg/config"
)

func TestNoOpProvider(t *testing.T) {
	provider := NewNoOpProvider()

	provider.CaptureError(context.Background(), errors.New("test error"), SeverityError, nil)
	provider.CaptureMessage(context.Background(), "test message", SeverityWarning, nil)
	provider.CapturePanic(context.Background(), "panic!", []byte("stack trace"), nil)
	assert.True(t, provider.Flush(5))
	assert.NoError(t, provider.Close())
}

func TestMemoryProvider(t *testing.T) {
	provider := NewMemoryProvider()
	provider.CaptureError(context.Background(), nil, SeverityError, nil)
	provider.CaptureError(context.Background(), errors.New("boom"), SeverityError, map[string]interface{}{FieldSQL: "SELECT 1"})
	provider.CaptureMessage(context.Background(), "slow query", SeverityWarning, nil)

	events := provider.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "boom", events[0].Message)
	assert.Equal(t, "SELECT 1", events[0].Extra[FieldSQL])
	assert.Equal(t, SeverityWarning, events[1].Severity)
}

func TestNewEventPromotesTags(t *testing.T) {
	event := newEvent(SeverityError, "failed", map[string]interface{}{
		FieldRequestType: "QueryPeople",
		FieldOperation:   "query",
		FieldSQL:         "SELECT 1",
	})

	assert.Equal(t, sentry.LevelError, event.Level)
	assert.Equal(t, "QueryPeople", event.Tags[FieldRequestType])
	assert.Equal(t, "query", event.Tags[FieldOperation])
	assert.NotContains(t, event.Extra, FieldOperation)
	assert.Equal(t, "SELECT 1", event.Extra[FieldSQL])
	assert.Equal(t, []string{"{{ default }}", "query", "QueryPeople"}, event.Fingerprint)
}

func TestConvertSeverity(t *testing.T) {
	tests := []struct {
		severity Severity
		expected sentry.Level
	}{
		{SeverityError, sentry.LevelError},
		{SeverityWarning, sentry.LevelWarning},
		{SeverityInfo, sentry.LevelInfo},
		{SeverityDebug, sentry.LevelDebug},
		{Severity("other"), sentry.LevelError},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			assert.Equal(t, tt.expected, convertSeverity(tt.severity))
		})
	}
}

func TestNewProviderFromConfig(t *testing.T) {
	p, err := NewProviderFromConfig(config.ErrorTrackingConfig{})
	require.NoError(t, err)
	assert.IsType(t, &NoOpProvider{}, p)

	p, err = NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, p)

	_, err = NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: "sentry"})
	assert.ErrorIs(t, err, ErrMissingDSN)

	_, err = NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: "unknown"})
	assert.Error(t, err)
}

func TestProviderInterface(t *testing.T) {
	var _ Provider = (*NoOpProvider)(nil)
	var _ Provider = (*MemoryProvider)(nil)
	var _ Provider = (*SentryProvider)(nil)
}
