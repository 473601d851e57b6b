package dbmanager

import (
	"fmt"
	"net/url"
	"time"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/dbmanager/providers"
)

// DatabaseType names a supported database engine
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "postgres"
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypeMSSQL      DatabaseType = "mssql"
)

// Dialect returns the SQL dialect spoken by the database type
func (t DatabaseType) Dialect() common.Dialect {
	return common.NormalizeDialect(string(t))
}

// ORMType selects the adapter a connection is exposed through
type ORMType string

const (
	ORMTypeBun    ORMType = "bun"
	ORMTypeGORM   ORMType = "gorm"
	ORMTypeNative ORMType = "native"
)

// ConnectionConfig is one fully defaulted connection definition
type ConnectionConfig struct {
	config.DBConnectionConfig

	RetryAttempts int
	RetryDelay    time.Duration
}

// DatabaseType returns the configured engine
func (cc ConnectionConfig) DatabaseType() DatabaseType {
	return DatabaseType(cc.Type)
}

// ORMType returns the configured adapter, bun when unset
func (cc ConnectionConfig) ORMType() ORMType {
	if cc.ORM == "" {
		return ORMTypeBun
	}
	return ORMType(cc.ORM)
}

// resolveConnections applies the manager wide pool defaults to every
// connection and fills in the names.
func resolveConnections(cfg config.DBManagerConfig) map[string]ConnectionConfig {
	out := make(map[string]ConnectionConfig, len(cfg.Connections))
	for name, c := range cfg.Connections {
		if c.Name == "" {
			c.Name = name
		}
		if c.MaxOpenConns == nil && cfg.MaxOpenConns > 0 && c.Type != string(DatabaseTypeSQLite) {
			v := cfg.MaxOpenConns
			c.MaxOpenConns = &v
		}
		if c.MaxIdleConns == nil && cfg.MaxIdleConns > 0 {
			v := cfg.MaxIdleConns
			c.MaxIdleConns = &v
		}
		if c.ConnMaxLifetime == nil && cfg.ConnMaxLifetime > 0 {
			v := cfg.ConnMaxLifetime
			c.ConnMaxLifetime = &v
		}
		out[name] = ConnectionConfig{
			DBConnectionConfig: c,
			RetryAttempts:      cfg.RetryAttempts,
			RetryDelay:         cfg.RetryDelay,
		}
	}
	return out
}

// Validate checks the connection definition
func (cc ConnectionConfig) Validate() error {
	if cc.Name == "" {
		return NewConfigurationError("name", fmt.Errorf("connection name cannot be empty"))
	}
	switch cc.DatabaseType() {
	case DatabaseTypePostgreSQL, DatabaseTypeMSSQL:
		if cc.DSN == "" && cc.Host == "" {
			return NewConfigurationError("host", fmt.Errorf("host or dsn is required for %s", cc.Type))
		}
	case DatabaseTypeSQLite:
	default:
		return NewConfigurationError("type", fmt.Errorf("%w: %s", ErrUnsupportedDatabase, cc.Type))
	}
	switch cc.ORMType() {
	case ORMTypeBun, ORMTypeGORM, ORMTypeNative:
	default:
		return NewConfigurationError("orm", fmt.Errorf("unsupported orm %q", cc.ORM))
	}
	return nil
}

// BuildDSN returns the configured DSN or builds one from the individual
// connection parameters.
func (cc ConnectionConfig) BuildDSN() (string, error) {
	if cc.DSN != "" {
		return cc.DSN, nil
	}

	switch cc.DatabaseType() {
	case DatabaseTypePostgreSQL:
		port := cc.Port
		if port == 0 {
			port = 5432
		}
		sslmode := cc.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cc.Host, port, cc.User, cc.Password, cc.Database, sslmode), nil
	case DatabaseTypeSQLite:
		if cc.FilePath != "" {
			return cc.FilePath, nil
		}
		return ":memory:", nil
	case DatabaseTypeMSSQL:
		port := cc.Port
		if port == 0 {
			port = 1433
		}
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(cc.User, cc.Password),
			Host:     fmt.Sprintf("%s:%d", cc.Host, port),
			RawQuery: url.Values{"database": {cc.Database}}.Encode(),
		}
		return u.String(), nil
	}
	return "", fmt.Errorf("cannot build DSN for database type: %s", cc.Type)
}

func (cc ConnectionConfig) settings() (providers.Settings, error) {
	dsn, err := cc.BuildDSN()
	if err != nil {
		return providers.Settings{}, err
	}
	return providers.Settings{
		Name:            cc.Name,
		DSN:             dsn,
		RetryAttempts:   cc.RetryAttempts,
		RetryDelay:      cc.RetryDelay,
		MaxOpenConns:    cc.MaxOpenConns,
		MaxIdleConns:    cc.MaxIdleConns,
		ConnMaxLifetime: cc.ConnMaxLifetime,
	}, nil
}
