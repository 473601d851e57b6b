package database

import (
	"database/sql"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mssqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"

	"github.com/bitechdev/autoquery/pkg/common"
)

// GetBunDialect returns the Bun dialect for a common.Dialect
func GetBunDialect(d common.Dialect) (schema.Dialect, error) {
	switch d {
	case common.DialectPostgres:
		return pgdialect.New(), nil
	case common.DialectSQLite:
		return sqlitedialect.New(), nil
	case common.DialectMSSQL:
		return mssqldialect.New(), nil
	}
	return nil, fmt.Errorf("no bun dialect for %q", d)
}

// GetGormDialector returns a GORM dialector wrapping an open *sql.DB
func GetGormDialector(d common.Dialect, db *sql.DB) (gorm.Dialector, error) {
	switch d {
	case common.DialectPostgres:
		return postgres.New(postgres.Config{Conn: db}), nil
	case common.DialectSQLite:
		return sqlite.Dialector{Conn: db}, nil
	case common.DialectMSSQL:
		return sqlserver.New(sqlserver.Config{Conn: db}), nil
	}
	return nil, fmt.Errorf("no gorm dialector for %q", d)
}

// NewBunFromSQL wraps an open *sql.DB in a Bun adapter
func NewBunFromSQL(d common.Dialect, db *sql.DB) (*BunAdapter, error) {
	dialect, err := GetBunDialect(d)
	if err != nil {
		return nil, err
	}
	return NewBunAdapter(bun.NewDB(db, dialect)), nil
}

// NewGormFromSQL wraps an open *sql.DB in a GORM adapter
func NewGormFromSQL(d common.Dialect, db *sql.DB) (*GormAdapter, error) {
	dialector, err := GetGormDialector(d, db)
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return NewGormAdapter(gdb), nil
}
