package providers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/sqlite" // Pure Go SQLite driver

	"github.com/bitechdev/autoquery/pkg/logger"
)

// minBusyTimeout is the smallest busy_timeout set on a SQLite pool
const minBusyTimeout = 2 * time.Minute

// SQLiteProvider implements Provider for SQLite databases
type SQLiteProvider struct {
	db   *sql.DB
	name string
}

// NewSQLiteProvider creates a new SQLite provider
func NewSQLiteProvider() *SQLiteProvider {
	return &SQLiteProvider{}
}

// Connect opens the database file. SQLite is never retried: a file that
// cannot be opened will not appear on the next attempt.
func (p *SQLiteProvider) Connect(ctx context.Context, s Settings) error {
	s.RetryAttempts = 1
	db, err := open(ctx, "sqlite", s)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// A single writer avoids "database is locked" errors
	if s.MaxOpenConns == nil {
		one := 1
		s.MaxOpenConns = &one
	}
	applyPool(db, s)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		logger.Warn("Failed to enable WAL mode for SQLite %s: %v", s.Name, err)
	}
	busy := s.BusyTimeout
	if busy < minBusyTimeout {
		busy = minBusyTimeout
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds())); err != nil {
		logger.Warn("Failed to set busy timeout for SQLite %s: %v", s.Name, err)
	}

	p.db = db
	p.name = s.Name
	logger.Info("SQLite connection established: name=%s", s.Name)
	return nil
}

// Close closes the SQLite connection
func (p *SQLiteProvider) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite connection: %w", err)
	}
	p.db = nil
	logger.Info("SQLite connection closed: name=%s", p.name)
	return nil
}

// HealthCheck runs SELECT 1
func (p *SQLiteProvider) HealthCheck(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := p.db.QueryRowContext(healthCtx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("health check returned unexpected result: %d", result)
	}
	return nil
}

// GetNative returns the native *sql.DB connection
func (p *SQLiteProvider) GetNative() (*sql.DB, error) {
	if p.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	return p.db, nil
}

// Stats returns connection pool statistics
func (p *SQLiteProvider) Stats() *ConnectionStats {
	return poolStats(p.name, "sqlite", p.db)
}
