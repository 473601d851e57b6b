//go:build integration

package crud

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/dbmanager"
)

const postgresSchema = `
CREATE TABLE people (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	age INTEGER NOT NULL DEFAULT 0,
	nickname TEXT,
	version BIGINT NOT NULL DEFAULT 0,
	deleted_date TIMESTAMPTZ
)`

// setupPostgres starts a PostgreSQL container and returns a manager with one
// connection named "pg" pointing at it.
func setupPostgres(t *testing.T) (*dbmanager.Manager, common.Database) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	mgr, err := dbmanager.NewManager(config.DBManagerConfig{
		Connections: map[string]config.DBConnectionConfig{
			"pg": {
				Type: "postgres",
				DSN:  fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port()),
			},
		},
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	db, err := mgr.Database(ctx, "pg")
	require.NoError(t, err)
	_, err = db.Exec(ctx, postgresSchema)
	require.NoError(t, err)
	return mgr, db
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, db := setupPostgres(t)

	opts := autoquery.DefaultOptions()
	opts.Connections = mgr
	engine := autoquery.NewEngine(db, opts)
	engine.MustRegister(&CreatePerson{}, Person{}, autoquery.Rules{})
	engine.MustRegister(&UpdatePerson{}, Person{}, autoquery.Rules{})
	engine.MustRegister(&DeletePerson{}, Person{}, autoquery.Rules{Connection: "pg"})
	engine.MustRegister(&QueryPeople{}, Person{}, autoquery.Rules{})
	e := NewExecutor(engine)

	ann := createPerson(t, e, "Ann", 30)
	createPerson(t, e, "Anton", 35)
	bob := createPerson(t, e, "Bob", 40)

	resp, err := Update[Person](ctx, e, &UpdatePerson{Id: ann, Name: "Ann", Age: 31, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.RowVersion)

	_, err = Update[Person](ctx, e, &UpdatePerson{Id: ann, Name: "Stale", Age: 99, Version: 1})
	assert.ErrorIs(t, err, autoquery.ErrOptimisticConcurrency)

	// Runs on a leased connection from the manager
	del, err := Delete[Person](ctx, e, &DeletePerson{Id: bob})
	require.NoError(t, err)
	assert.Equal(t, int64(1), del.Count)

	take := 1
	q, err := autoquery.Execute[Person](ctx, engine, &QueryPeople{
		QueryBase: autoquery.QueryBase{Take: &take, OrderBy: "Name", Include: "Total, Max(Age)"},
	}, map[string]string{"NameStartsWith": "an"})
	require.NoError(t, err)
	require.Len(t, q.Results, 1)
	assert.Equal(t, "Ann", q.Results[0].Name)
	assert.Equal(t, 31, q.Results[0].Age)
	assert.Equal(t, 2, q.Total)
	assert.Equal(t, "35", q.Meta["Max(Age)"])

	stats := mgr.Stats()
	require.Contains(t, stats.ConnectionStats, "pg")
	assert.Zero(t, stats.ConnectionStats["pg"].Leased)
}
