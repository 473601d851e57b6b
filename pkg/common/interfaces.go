package common

import "context"

// Database is the connection abstraction the query and crud engines run against.
// Queries are written with ? placeholders; adapters bind them for their driver.
type Database interface {
	// Exec runs a statement and reports the rows it affected.
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
	// Query runs a statement and scans the rows into dest, which may be a pointer
	// to a struct slice, a *[]map[string]interface{} or a pointer to a scalar.
	Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	BeginTx(ctx context.Context) (Database, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
	RunInTransaction(ctx context.Context, fn func(Database) error) error

	// GetUnderlyingDB returns the underlying database connection
	// For GORM, this returns *gorm.DB
	// For Bun, this returns *bun.DB
	GetUnderlyingDB() interface{}

	// DriverName returns the canonical name of the underlying database driver.
	// Values are "postgres", "sqlite" or "mssql".
	DriverName() string
}

// Result is what Exec reports back.
type Result interface {
	RowsAffected() int64
	LastInsertId() (int64, error)
}

// Connection is a Database handed out by a ConnectionFactory. Close releases it
// back to whoever opened it.
type Connection interface {
	Database
	Close() error
}

// ConnectionFactory opens named connections. An empty name selects the default.
type ConnectionFactory interface {
	OpenConnection(ctx context.Context, name string) (Connection, error)
}
