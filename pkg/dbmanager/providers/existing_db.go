package providers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// ExistingDBProvider wraps a *sql.DB opened outside the manager, e.g. a pool
// owned by the host application.
type ExistingDBProvider struct {
	db     *sql.DB
	name   string
	dbType string
	mu     sync.RWMutex
}

// NewExistingDBProvider creates a provider around db
func NewExistingDBProvider(db *sql.DB, name, dbType string) *ExistingDBProvider {
	return &ExistingDBProvider{db: db, name: name, dbType: dbType}
}

// Connect only verifies that the wrapped pool answers
func (p *ExistingDBProvider) Connect(ctx context.Context, _ Settings) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping existing database: %w", err)
	}
	return nil
}

// Close closes the wrapped pool
func (p *ExistingDBProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// HealthCheck verifies the connection is alive
func (p *ExistingDBProvider) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ping(ctx, p.db)
}

// GetNative returns the wrapped *sql.DB
func (p *ExistingDBProvider) GetNative() (*sql.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return p.db, nil
}

// Stats returns connection statistics
func (p *ExistingDBProvider) Stats() *ConnectionStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return poolStats(p.name, p.dbType, p.db)
}
