package dbmanager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bitechdev/autoquery/pkg/config"
)

func sqliteConfig(t *testing.T, names ...string) config.DBManagerConfig {
	t.Helper()
	cfg := config.DBManagerConfig{Connections: map[string]config.DBConnectionConfig{}}
	for _, name := range names {
		cfg.Connections[name] = config.DBConnectionConfig{
			Type:     "sqlite",
			FilePath: filepath.Join(t.TempDir(), name+".db"),
		}
	}
	return cfg
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(config.DBManagerConfig{Connections: map[string]config.DBConnectionConfig{
		"main": {Type: "oracle"},
	}})
	assert.ErrorIs(t, err, ErrUnsupportedDatabase)

	_, err = NewManager(config.DBManagerConfig{Connections: map[string]config.DBConnectionConfig{
		"main": {Type: "postgres"},
	}})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "host", cfgErr.Field)

	cfg := sqliteConfig(t, "a", "b")
	cfg.DefaultConnection = "c"
	_, err = NewManager(cfg)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestOpenConnectionLeasesSharedPool(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(sqliteConfig(t, "main"))
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "main", m.DefaultName(), "a single connection becomes the default")

	conn, err := m.OpenConnection(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.DriverName())
	_, err = conn.Exec(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "INSERT INTO notes (id, body) VALUES (?, ?)", 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Stats().ConnectionStats["main"].Leased)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Close(), ErrConnectionClosed)
	assert.Equal(t, int64(0), m.Stats().ConnectionStats["main"].Leased)

	// The pool survives the lease
	again, err := m.OpenConnection(ctx, "main")
	require.NoError(t, err)
	defer again.Close()
	var rows []map[string]interface{}
	require.NoError(t, again.Query(ctx, &rows, "SELECT body FROM notes"))
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0]["body"])

	_, err = m.OpenConnection(ctx, "missing")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestNoDefaultConnection(t *testing.T) {
	m, err := NewManager(sqliteConfig(t, "a", "b"))
	require.NoError(t, err)
	defer m.Close()

	_, err = m.OpenConnection(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDefaultConnection)

	require.NoError(t, m.SetDefault("b"))
	conn, err := m.OpenConnection(context.Background(), "")
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
	assert.Equal(t, []string{"a", "b"}, m.Names())
}

func TestGormConnection(t *testing.T) {
	cfg := sqliteConfig(t, "main")
	c := cfg.Connections["main"]
	c.ORM = "gorm"
	cfg.Connections["main"] = c

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	db, err := m.Database(context.Background(), "main")
	require.NoError(t, err)
	_, ok := db.GetUnderlyingDB().(*gorm.DB)
	assert.True(t, ok)
}

func TestConnectAndHealthCheck(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(sqliteConfig(t, "a", "b"))
	require.NoError(t, err)

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.HealthCheck(ctx))
	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.HealthyCount)
	assert.True(t, stats.ConnectionStats["a"].Connected)

	require.NoError(t, m.Close())
	assert.False(t, m.Stats().ConnectionStats["a"].Connected)
	_, err = m.Database(ctx, "a")
	assert.NoError(t, err, "a closed pool is reopened on demand")
	require.NoError(t, m.Close())
}

func TestRegisterExistingDB(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(`UPDATE notes SET body = \$1 WHERE id = \$2`).
		WithArgs("x", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	m, err := NewManager(config.DBManagerConfig{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "legacy", DatabaseTypePostgreSQL, ORMTypeNative, sqldb))
	assert.ErrorIs(t, m.Register(ctx, "legacy", DatabaseTypePostgreSQL, ORMTypeNative, sqldb), ErrAlreadyRegistered)
	assert.Equal(t, "legacy", m.DefaultName())

	conn, err := m.OpenConnection(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres", conn.DriverName())
	res, err := conn.Exec(ctx, "UPDATE notes SET body = ? WHERE id = ?", "x", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected())
	require.NoError(t, conn.Close())

	require.NoError(t, m.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DBConnectionConfig
		want string
	}{
		{"explicit", config.DBConnectionConfig{Type: "postgres", DSN: "postgres://x"}, "postgres://x"},
		{"postgres", config.DBConnectionConfig{Type: "postgres", Host: "db", User: "u", Password: "p", Database: "app"},
			"host=db port=5432 user=u password=p dbname=app sslmode=disable"},
		{"sqlite memory", config.DBConnectionConfig{Type: "sqlite"}, ":memory:"},
		{"sqlite file", config.DBConnectionConfig{Type: "sqlite", FilePath: "/tmp/a.db"}, "/tmp/a.db"},
		{"mssql", config.DBConnectionConfig{Type: "mssql", Host: "db", User: "sa", Password: "p@ss", Database: "app"},
			"sqlserver://sa:p%40ss@db:1433?database=app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := ConnectionConfig{DBConnectionConfig: tt.cfg}.BuildDSN()
			require.NoError(t, err)
			assert.Equal(t, tt.want, dsn)
		})
	}
}

func TestResolveConnectionsAppliesDefaults(t *testing.T) {
	cfg := config.DBManagerConfig{
		MaxOpenConns:  20,
		MaxIdleConns:  4,
		RetryAttempts: 5,
		Connections: map[string]config.DBConnectionConfig{
			"pg":   {Type: "postgres", Host: "db"},
			"lite": {Type: "sqlite"},
		},
	}
	resolved := resolveConnections(cfg)
	require.NotNil(t, resolved["pg"].MaxOpenConns)
	assert.Equal(t, 20, *resolved["pg"].MaxOpenConns)
	assert.Nil(t, resolved["lite"].MaxOpenConns, "sqlite keeps its single writer")
	assert.Equal(t, 4, *resolved["lite"].MaxIdleConns)
	assert.Equal(t, "pg", resolved["pg"].Name)
	assert.Equal(t, 5, resolved["pg"].RetryAttempts)
	assert.Equal(t, ORMTypeBun, resolved["pg"].ORMType())
}
