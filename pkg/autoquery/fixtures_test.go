package autoquery

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/bitechdev/autoquery/pkg/common/adapters/database"
)

type Person struct {
	bun.BaseModel `bun:"table:people"`

	Id          int64      `bun:"id,pk,autoincrement"`
	Name        string     `bun:"name"`
	Age         int        `bun:"age"`
	Active      bool       `bun:"active"`
	DeletedDate *time.Time `bun:"deleted_date,nullzero"`
}

type Address struct {
	bun.BaseModel `bun:"table:addresses"`

	Id       int64  `bun:"id,pk,autoincrement"`
	PersonId int64  `bun:"person_id"`
	City     string `bun:"city"`
}

type QueryPeople struct {
	QueryBase
	Ages           []int
	AgeGreaterThan *int
	NameStartsWith string
	Nickname       string `autoquery:"field:Name;term:or"`
	Adult          bool   `autoquery:"template:{Field} >= 18;field:Age"`
	Unrelated      string
}

type QueryAddresses struct {
	QueryBase
	City string
}

const schemaSQL = `
CREATE TABLE people (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT '',
	age INTEGER NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT 1,
	deleted_date TIMESTAMP
);
CREATE TABLE addresses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id INTEGER NOT NULL,
	city TEXT NOT NULL DEFAULT ''
);`

// newSQLite opens a private in-memory database. A single connection keeps
// every statement on the same memory database.
func newSQLite(t *testing.T) *database.BunAdapter {
	t.Helper()
	sqldb, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := database.NewBunAdapter(bun.NewDB(sqldb, sqlitedialect.New()))
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err = sqldb.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func insertPerson(t *testing.T, db *database.BunAdapter, name string, age int, active bool, deleted *time.Time) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		"INSERT INTO people (name, age, active, deleted_date) VALUES (?, ?, ?, ?)",
		name, age, active, deleted)
	require.NoError(t, err)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.MaxLimit = 10
	return opts
}
