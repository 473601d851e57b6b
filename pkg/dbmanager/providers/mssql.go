package providers

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // MSSQL driver

	"github.com/bitechdev/autoquery/pkg/logger"
)

// MSSQLProvider implements Provider for Microsoft SQL Server
type MSSQLProvider struct {
	db   *sql.DB
	name string
}

// NewMSSQLProvider creates a new MSSQL provider
func NewMSSQLProvider() *MSSQLProvider {
	return &MSSQLProvider{}
}

// Connect establishes a MSSQL connection
func (p *MSSQLProvider) Connect(ctx context.Context, s Settings) error {
	db, err := open(ctx, "sqlserver", s)
	if err != nil {
		return err
	}
	applyPool(db, s)

	p.db = db
	p.name = s.Name
	logger.Info("MSSQL connection established: name=%s", s.Name)
	return nil
}

// Close closes the MSSQL connection
func (p *MSSQLProvider) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close MSSQL connection: %w", err)
	}
	p.db = nil
	logger.Info("MSSQL connection closed: name=%s", p.name)
	return nil
}

// HealthCheck verifies the MSSQL connection is alive
func (p *MSSQLProvider) HealthCheck(ctx context.Context) error {
	return ping(ctx, p.db)
}

// GetNative returns the native *sql.DB connection
func (p *MSSQLProvider) GetNative() (*sql.DB, error) {
	if p.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	return p.db, nil
}

// Stats returns connection pool statistics
func (p *MSSQLProvider) Stats() *ConnectionStats {
	return poolStats(p.name, "mssql", p.db)
}
