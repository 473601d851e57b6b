package crudevents

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/glebarez/go-sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/common/adapters/database"
	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/crud"
	"github.com/bitechdev/autoquery/pkg/modelregistry"
)

type Note struct {
	bun.BaseModel `bun:"table:notes"`

	Id      int64  `bun:"id,pk,autoincrement"`
	Body    string `bun:"body"`
	Version int64  `bun:"version" autoquery:"rowversion"`
}

type CreateNote struct {
	Body string `json:"body"`
}

type PatchNote struct {
	Id      int64  `json:"id"`
	Body    string `json:"body"`
	Version int64  `json:"version"`
}

func newSQLite(t *testing.T) *database.BunAdapter {
	t.Helper()
	sqldb, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := database.NewBunAdapter(bun.NewDB(sqldb, sqlitedialect.New()))
	t.Cleanup(func() { _ = db.Close() })
	_, err = sqldb.Exec(`CREATE TABLE notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		body TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	return db
}

func newExecutor(t *testing.T, db *database.BunAdapter, opts ...crud.Option) *crud.Executor {
	t.Helper()
	e := autoquery.NewEngine(db, autoquery.DefaultOptions())
	e.MustRegister(&CreateNote{}, Note{}, autoquery.Rules{})
	e.MustRegister(&PatchNote{}, Note{}, autoquery.Rules{})
	return crud.NewExecutor(e, opts...)
}

func newRegistry(t *testing.T) *modelregistry.DefaultModelRegistry {
	t.Helper()
	r := modelregistry.NewModelRegistry()
	require.NoError(t, r.RegisterModel("CreateNote", CreateNote{}))
	require.NoError(t, r.RegisterModel("PatchNote", PatchNote{}))
	return r
}

func TestDatabaseSinkRecordsInTransaction(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	sink := NewDatabaseSink("")
	require.NoError(t, sink.EnsureTable(ctx, db))
	require.NoError(t, sink.EnsureTable(ctx, db), "creating the table twice is harmless")
	e := newExecutor(t, db, crud.WithEventSink(sink))

	_, err := crud.Create[Note](ctx, e, &CreateNote{Body: "hello"})
	require.NoError(t, err)
	_, err = crud.Patch[Note](ctx, e, &PatchNote{Id: 1, Body: "edited", Version: 1})
	require.NoError(t, err)

	// A failed mutation leaves no event behind.
	_, err = crud.Patch[Note](ctx, e, &PatchNote{Id: 1, Body: "stale", Version: 1})
	assert.ErrorIs(t, err, autoquery.ErrOptimisticConcurrency)

	events, err := sink.List(ctx, db, Filter{Model: "notes"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, crud.OpCreate, events[0].EventType)
	assert.Equal(t, "CreateNote", events[0].RequestType)
	assert.Equal(t, "1", events[0].RefID)
	assert.JSONEq(t, `{"body":"hello","Id":1}`, events[0].RequestBody)
	assert.Equal(t, crud.OpPatch, events[1].EventType)
	assert.False(t, events[1].EventDate.IsZero())

	limited, err := sink.List(ctx, db, Filter{RequestType: "PatchNote", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, crud.OpPatch, limited[0].EventType)
}

func TestDatabaseSinkReplayIntoFreshDatabase(t *testing.T) {
	ctx := context.Background()
	source := newSQLite(t)
	sink := NewDatabaseSink("audit")
	require.NoError(t, sink.EnsureTable(ctx, source))
	e := newExecutor(t, source, crud.WithEventSink(sink))
	for _, body := range []string{"a", "b"} {
		_, err := crud.Create[Note](ctx, e, &CreateNote{Body: body})
		require.NoError(t, err)
	}
	_, err := crud.Patch[Note](ctx, e, &PatchNote{Id: 2, Body: "b2"})
	require.NoError(t, err)

	events, err := sink.List(ctx, source, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	target := newSQLite(t)
	replayer := newExecutor(t, target)
	registry := newRegistry(t)
	for _, ev := range events {
		_, err := crud.Replay(ctx, replayer, registry, ev)
		require.NoError(t, err)
	}

	var notes []Note
	require.NoError(t, target.Query(ctx, &notes, "SELECT * FROM notes ORDER BY id"))
	require.Len(t, notes, 2)
	assert.Equal(t, "a", notes[0].Body)
	assert.Equal(t, "b2", notes[1].Body)
	assert.Equal(t, int64(2), notes[1].Version)
}

func TestMemorySinkDropsOldest(t *testing.T) {
	m := NewMemorySink(2)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, m.Publish(context.Background(), &crud.Event{ID: id}))
	}
	events := m.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].ID)
	assert.Equal(t, 2, m.Len())
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	p := NewRedisPublisher(client, "", 0)
	assert.Equal(t, "autoquery:crud_events", p.Stream())

	ev := &crud.Event{ID: "e1", EventType: crud.OpCreate, Model: "notes", RequestType: "CreateNote", RefID: "1", RequestBody: `{"body":"x"}`, EventDate: time.Now().UTC()}
	require.NoError(t, p.Publish(context.Background(), ev))

	events, err := p.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, crud.OpCreate, events[0].EventType)
	assert.Equal(t, `{"body":"x"}`, events[0].RequestBody)
	require.NoError(t, p.Close(), "a borrowed client is left open")
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestPublisherFromExecutor(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	ctx := context.Background()
	setup, err := FromConfig(ctx, config.EventsConfig{
		Enabled:   true,
		Sink:      "memory",
		Publisher: "redis",
		Redis:     config.RedisConfig{Host: mr.Host(), Port: port, StreamName: "notes:events"},
	}, nil)
	require.NoError(t, err)
	defer setup.Close()

	db := newSQLite(t)
	e := newExecutor(t, db, setup.Options...)
	_, err = crud.Create[Note](ctx, e, &CreateNote{Body: "hello"})
	require.NoError(t, err)

	assert.Equal(t, 1, setup.Sink.(*MemorySink).Len())
	msgs, err := mr.Stream("notes:events")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	setup, err := FromConfig(ctx, config.EventsConfig{Enabled: false, Sink: "bogus"}, nil)
	require.NoError(t, err)
	assert.Empty(t, setup.Options)

	_, err = FromConfig(ctx, config.EventsConfig{Enabled: true, Sink: "bogus"}, nil)
	assert.Error(t, err)
	_, err = FromConfig(ctx, config.EventsConfig{Enabled: true, Sink: "memory", Publisher: "kafka"}, nil)
	assert.Error(t, err)

	db := newSQLite(t)
	setup, err = FromConfig(ctx, config.EventsConfig{Enabled: true, TableName: "crud_event"}, db)
	require.NoError(t, err)
	require.Len(t, setup.Options, 1)
	events, err := setup.Sink.(*DatabaseSink).List(ctx, db, Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, setup.Close())
}

func TestNATSSubject(t *testing.T) {
	ev := &crud.Event{ID: "e1", EventType: crud.OpPatch, Model: "sales.orders", RequestType: "PatchOrder", RefID: "9"}
	msg, err := buildMsg("autoquery.crud", ev)
	require.NoError(t, err)
	assert.Equal(t, "autoquery.crud.sales_orders.patch", msg.Subject)
	assert.Equal(t, "9", msg.Header.Get("Ref-ID"))
	assert.Equal(t, "autoquery.crud._.create", subject("autoquery.crud", &crud.Event{EventType: crud.OpCreate}))
	assert.Equal(t, "AUTOQUERY_CRUD", streamName("autoquery.crud"))
}
