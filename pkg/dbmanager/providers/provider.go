package providers

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/bitechdev/autoquery/pkg/logger"
)

// ConnectionStats contains statistics about a database connection
type ConnectionStats struct {
	Name      string
	Type      string
	Connected bool

	OpenConnections   int
	InUse             int
	Idle              int
	WaitCount         int64
	WaitDuration      time.Duration
	MaxIdleClosed     int64
	MaxLifetimeClosed int64
}

// Settings is everything a provider needs to open its pool
type Settings struct {
	Name string
	DSN  string

	ConnectTimeout time.Duration
	BusyTimeout    time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	MaxOpenConns    *int
	MaxIdleConns    *int
	ConnMaxLifetime *time.Duration
}

// Provider creates and manages the underlying database connection
type Provider interface {
	// Connect establishes the database connection
	Connect(ctx context.Context, s Settings) error

	// Close closes the connection
	Close() error

	// HealthCheck verifies the connection is alive
	HealthCheck(ctx context.Context) error

	// GetNative returns the native *sql.DB
	GetNative() (*sql.DB, error)

	// Stats returns connection statistics
	Stats() *ConnectionStats
}

// open opens driverName with retries and exponential backoff, pinging every
// attempt.
func open(ctx context.Context, driverName string, s Settings) (*sql.DB, error) {
	attempts := s.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := s.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	timeout := s.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := calculateBackoff(attempt, delay, 10*time.Second)
			logger.Info("Retrying %s connection: name=%s, attempt=%d/%d, delay=%v", driverName, s.Name, attempt+1, attempts, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		db, err := sql.Open(driverName, s.DSN)
		if err != nil {
			lastErr = err
			logger.Warn("Failed to open %s connection %s: %v", driverName, s.Name, err)
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			lastErr = err
			_ = db.Close()
			logger.Warn("Failed to ping %s database %s: %v", driverName, s.Name, err)
			continue
		}
		return db, nil
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, lastErr)
}

func applyPool(db *sql.DB, s Settings) {
	if s.MaxOpenConns != nil {
		db.SetMaxOpenConns(*s.MaxOpenConns)
	}
	if s.MaxIdleConns != nil {
		db.SetMaxIdleConns(*s.MaxIdleConns)
	}
	if s.ConnMaxLifetime != nil {
		db.SetConnMaxLifetime(*s.ConnMaxLifetime)
	}
}

func ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(healthCtx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func poolStats(name, dbType string, db *sql.DB) *ConnectionStats {
	stats := &ConnectionStats{Name: name, Type: dbType, Connected: db != nil}
	if db == nil {
		return stats
	}
	s := db.Stats()
	stats.OpenConnections = s.OpenConnections
	stats.InUse = s.InUse
	stats.Idle = s.Idle
	stats.WaitCount = s.WaitCount
	stats.WaitDuration = s.WaitDuration
	stats.MaxIdleClosed = s.MaxIdleClosed
	stats.MaxLifetimeClosed = s.MaxLifetimeClosed
	return stats
}

// calculateBackoff calculates exponential backoff delay
func calculateBackoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
