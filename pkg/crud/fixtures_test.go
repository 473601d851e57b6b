package crud

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/common/adapters/database"
	"github.com/bitechdev/autoquery/pkg/modelregistry"
)

type Person struct {
	bun.BaseModel `bun:"table:people"`

	Id          int64      `bun:"id,pk,autoincrement"`
	Name        string     `bun:"name"`
	Age         int        `bun:"age"`
	Nickname    *string    `bun:"nickname"`
	Version     int64      `bun:"version" autoquery:"rowversion"`
	DeletedDate *time.Time `bun:"deleted_date,nullzero" autoquery:"softdelete"`
}

type Tag struct {
	bun.BaseModel `bun:"table:tags"`

	Id    int64  `bun:"id,pk,autoincrement"`
	Label string `bun:"label"`
	Owner string `bun:"owner"`
}

type Document struct {
	bun.BaseModel `bun:"table:documents"`

	Id    string `bun:"id,pk" autoquery:"autoid"`
	Title string `bun:"title"`
}

type Code struct {
	bun.BaseModel `bun:"table:codes"`

	Code  string `bun:"code,pk"`
	Label string `bun:"label"`
}

type CreatePerson struct {
	Name string
	Age  int
}

type UpdatePerson struct {
	Id      int64
	Name    string
	Age     int
	Version int64
}

type PatchPerson struct {
	Base
	Id       int64
	Name     string
	Age      int
	Nickname *string
	Version  int64
}

type DeletePerson struct {
	Id int64
}

type SaveTag struct {
	Id    int64
	Label string
	Owner string
}

type DeleteTags struct {
	Owner string
	Label string
}

type CreateDocument struct {
	Title string
}

type CreateCode struct {
	Label string
}

const schemaSQL = `
CREATE TABLE people (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT '',
	age INTEGER NOT NULL DEFAULT 0,
	nickname TEXT,
	version INTEGER NOT NULL DEFAULT 0,
	deleted_date TIMESTAMP
);
CREATE TABLE tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL DEFAULT ''
);
CREATE TABLE documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT ''
);
CREATE TABLE codes (
	code TEXT PRIMARY KEY,
	label TEXT NOT NULL DEFAULT ''
);`

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

// newEngine registers every request of this package against db.
func newEngine(t *testing.T, db common.Database) *autoquery.Engine {
	t.Helper()
	e := autoquery.NewEngine(db, autoquery.DefaultOptions())
	filters := autoquery.Rules{AutoFilters: []autoquery.AutoFilter{{Field: "DeletedDate"}}}

	e.MustRegister(&CreatePerson{}, Person{}, filters)
	e.MustRegister(&UpdatePerson{}, Person{}, filters)
	e.MustRegister(&PatchPerson{}, Person{}, autoquery.Rules{
		AutoFilters: filters.AutoFilters,
		DenyReset:   []string{"Name"},
	})
	e.MustRegister(&DeletePerson{}, Person{}, filters)
	e.MustRegister(&SaveTag{}, Tag{}, autoquery.Rules{})
	e.MustRegister(&DeleteTags{}, Tag{}, autoquery.Rules{})
	e.MustRegister(&CreateDocument{}, Document{}, autoquery.Rules{ReturnResult: true})
	e.MustRegister(&CreateCode{}, Code{}, autoquery.Rules{})
	return e
}

func loadPerson(t *testing.T, db common.Database, id any) Person {
	t.Helper()
	var people []Person
	require.NoError(t, db.Query(context.Background(), &people, "SELECT * FROM people WHERE id = ?", id))
	require.Len(t, people, 1)
	return people[0]
}

func countRows(t *testing.T, db common.Database, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Query(context.Background(), &n, "SELECT COUNT(*) FROM "+table))
	return n
}

// memorySink keeps recorded events, or fails every Record with err.
type memorySink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (s *memorySink) Record(_ context.Context, _ common.Database, ev *Event) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

type memoryPublisher struct {
	memorySink
}

func (p *memoryPublisher) Publish(ctx context.Context, ev *Event) error {
	return p.Record(ctx, nil, ev)
}

var errSinkDown = errors.New("sink down")

func newRegistry(t *testing.T) *modelregistry.DefaultModelRegistry {
	t.Helper()
	r := modelregistry.NewModelRegistry()
	require.NoError(t, r.RegisterModel("CreatePerson", CreatePerson{}))
	require.NoError(t, r.RegisterModel("PatchPerson", PatchPerson{}))
	require.NoError(t, r.RegisterModel("DeletePerson", DeletePerson{}))
	return r
}

func noReplay() modelregistry.RequestRules {
	rules := modelregistry.DefaultRequestRules()
	rules.CanReplay = false
	return rules
}
