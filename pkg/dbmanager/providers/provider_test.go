package providers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, calculateBackoff(1, time.Second, 10*time.Second))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, calculateBackoff(5, time.Second, 10*time.Second))
}

func TestSQLiteProvider(t *testing.T) {
	ctx := context.Background()
	p := NewSQLiteProvider()
	require.NoError(t, p.Connect(ctx, Settings{Name: "lite", DSN: filepath.Join(t.TempDir(), "lite.db")}))

	db, err := p.GetNative()
	require.NoError(t, err)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	require.NoError(t, p.HealthCheck(ctx))
	assert.True(t, p.Stats().Connected)

	require.NoError(t, p.Close())
	assert.False(t, p.Stats().Connected)
	assert.Error(t, p.HealthCheck(ctx))
	_, err = p.GetNative()
	assert.Error(t, err)
}

func TestOpenGivesUpOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := open(ctx, "no-such-driver", Settings{Name: "x", RetryAttempts: 3, RetryDelay: time.Millisecond})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExistingDBProvider(t *testing.T) {
	sqldb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectPing()
	mock.ExpectClose()

	p := NewExistingDBProvider(sqldb, "legacy", "postgres")
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx, Settings{}))
	require.NoError(t, p.HealthCheck(ctx))

	stats := p.Stats()
	assert.Equal(t, "legacy", stats.Name)
	assert.Equal(t, "postgres", stats.Type)
	assert.True(t, stats.Connected)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.Stats().Connected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingDBProviderNil(t *testing.T) {
	p := NewExistingDBProvider(nil, "none", "sqlite")
	assert.Error(t, p.Connect(context.Background(), Settings{}))
	_, err := p.GetNative()
	assert.Error(t, err)
}
