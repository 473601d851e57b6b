package errortracking

import (
	"errors"
	"fmt"

	"github.com/bitechdev/autoquery/pkg/config"
)

var ErrMissingDSN = errors.New("errortracking: sentry requires a DSN")

// NewProviderFromConfig returns the provider named by cfg. A disabled config
// yields a NoOpProvider, never nil.
func NewProviderFromConfig(cfg config.ErrorTrackingConfig) (Provider, error) {
	if !cfg.Enabled {
		return NewNoOpProvider(), nil
	}
	switch cfg.Provider {
	case "", "noop":
		return NewNoOpProvider(), nil
	case "memory":
		return NewMemoryProvider(), nil
	case "sentry":
		if cfg.DSN == "" {
			return nil, ErrMissingDSN
		}
		return NewSentryProvider(SentryConfig{
			DSN:              cfg.DSN,
			Environment:      cfg.Environment,
			Release:          cfg.Release,
			Debug:            cfg.Debug,
			SampleRate:       cfg.SampleRate,
			TracesSampleRate: cfg.TracesSampleRate,
		})
	}
	return nil, fmt.Errorf("errortracking: unknown provider %q", cfg.Provider)
}
