package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/common/adapters/database"
	"github.com/bitechdev/autoquery/pkg/dbmanager/providers"
)

// ConnectionStats contains statistics about one named connection
type ConnectionStats struct {
	Name              string
	Type              DatabaseType
	ORM               ORMType
	Connected         bool
	Leased            int64
	LastHealthCheck   time.Time
	HealthCheckStatus string

	OpenConnections   int
	InUse             int
	Idle              int
	WaitCount         int64
	WaitDuration      time.Duration
	MaxIdleClosed     int64
	MaxLifetimeClosed int64
}

// namedConnection is one pool plus the adapter built over it
type namedConnection struct {
	cfg      ConnectionConfig
	provider providers.Provider

	mu        sync.Mutex
	connected bool
	db        common.Database
	leased    atomic.Int64

	lastHealthCheck time.Time
	healthStatus    string
}

func newNamedConnection(cfg ConnectionConfig, provider providers.Provider) *namedConnection {
	return &namedConnection{cfg: cfg, provider: provider}
}

func providerFor(t DatabaseType) (providers.Provider, error) {
	switch t {
	case DatabaseTypePostgreSQL:
		return providers.NewPostgresProvider(), nil
	case DatabaseTypeSQLite:
		return providers.NewSQLiteProvider(), nil
	case DatabaseTypeMSSQL:
		return providers.NewMSSQLProvider(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, t)
}

// connect opens the pool once and builds the adapter over it
func (c *namedConnection) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	s, err := c.cfg.settings()
	if err != nil {
		return NewConnectionError(c.cfg.Name, "connect", err)
	}
	if err := c.provider.Connect(ctx, s); err != nil {
		return NewConnectionError(c.cfg.Name, "connect", err)
	}
	native, err := c.provider.GetNative()
	if err != nil {
		return NewConnectionError(c.cfg.Name, "connect", err)
	}
	db, err := c.adapt(native)
	if err != nil {
		_ = c.provider.Close()
		return NewConnectionError(c.cfg.Name, "connect", err)
	}
	c.db = db
	c.connected = true
	return nil
}

func (c *namedConnection) adapt(native *sql.DB) (common.Database, error) {
	dialect := c.cfg.DatabaseType().Dialect()
	switch c.cfg.ORMType() {
	case ORMTypeGORM:
		g, err := database.NewGormFromSQL(dialect, native)
		if err != nil {
			return nil, err
		}
		if c.cfg.QueryDebug {
			g.EnableQueryDebug()
		}
		return g, nil
	case ORMTypeNative:
		return database.NewSQLAdapter(native, dialect), nil
	default:
		b, err := database.NewBunFromSQL(dialect, native)
		if err != nil {
			return nil, err
		}
		if c.cfg.QueryDebug {
			b.EnableQueryDebug()
		}
		return b, nil
	}
}

func (c *namedConnection) database() (common.Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, NewConnectionError(c.cfg.Name, "get database", ErrConnectionClosed)
	}
	return c.db, nil
}

func (c *namedConnection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.db = nil
	if err := c.provider.Close(); err != nil {
		return NewConnectionError(c.cfg.Name, "close", err)
	}
	return nil
}

func (c *namedConnection) healthCheck(ctx context.Context) error {
	err := c.provider.HealthCheck(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHealthCheck = time.Now()
	if err != nil {
		c.healthStatus = "unhealthy: " + err.Error()
		return NewConnectionError(c.cfg.Name, "health check", err)
	}
	c.healthStatus = "healthy"
	return nil
}

func (c *namedConnection) stats() *ConnectionStats {
	ps := c.provider.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()
	return &ConnectionStats{
		Name:              c.cfg.Name,
		Type:              c.cfg.DatabaseType(),
		ORM:               c.cfg.ORMType(),
		Connected:         c.connected,
		Leased:            c.leased.Load(),
		LastHealthCheck:   c.lastHealthCheck,
		HealthCheckStatus: c.healthStatus,
		OpenConnections:   ps.OpenConnections,
		InUse:             ps.InUse,
		Idle:              ps.Idle,
		WaitCount:         ps.WaitCount,
		WaitDuration:      ps.WaitDuration,
		MaxIdleClosed:     ps.MaxIdleClosed,
		MaxLifetimeClosed: ps.MaxLifetimeClosed,
	}
}

// lease is a common.Connection over a shared pool. Closing it hands the pool
// back without closing it.
type lease struct {
	common.Database
	owner  *namedConnection
	closed atomic.Bool
}

func (l *lease) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return NewConnectionError(l.owner.cfg.Name, "close", ErrConnectionClosed)
	}
	l.owner.leased.Add(-1)
	return nil
}
