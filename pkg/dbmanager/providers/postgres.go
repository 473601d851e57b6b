package providers

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/bitechdev/autoquery/pkg/logger"
)

// PostgresProvider implements Provider for PostgreSQL databases
type PostgresProvider struct {
	db   *sql.DB
	name string
}

// NewPostgresProvider creates a new PostgreSQL provider
func NewPostgresProvider() *PostgresProvider {
	return &PostgresProvider{}
}

// Connect establishes a PostgreSQL connection through pgx
func (p *PostgresProvider) Connect(ctx context.Context, s Settings) error {
	db, err := open(ctx, "pgx", s)
	if err != nil {
		return err
	}
	applyPool(db, s)

	p.db = db
	p.name = s.Name
	logger.Info("PostgreSQL connection established: name=%s", s.Name)
	return nil
}

// Close closes the PostgreSQL connection
func (p *PostgresProvider) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close PostgreSQL connection: %w", err)
	}
	p.db = nil
	logger.Info("PostgreSQL connection closed: name=%s", p.name)
	return nil
}

// HealthCheck verifies the PostgreSQL connection is alive
func (p *PostgresProvider) HealthCheck(ctx context.Context) error {
	return ping(ctx, p.db)
}

// GetNative returns the native *sql.DB connection
func (p *PostgresProvider) GetNative() (*sql.DB, error) {
	if p.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	return p.db, nil
}

// Stats returns connection pool statistics
func (p *PostgresProvider) Stats() *ConnectionStats {
	return poolStats(p.name, "postgres", p.db)
}
