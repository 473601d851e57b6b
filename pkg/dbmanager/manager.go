package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/dbmanager/providers"
	"github.com/bitechdev/autoquery/pkg/logger"
)

// ManagerStats contains statistics about the connection manager
type ManagerStats struct {
	TotalConnections int
	HealthyCount     int
	UnhealthyCount   int
	ConnectionStats  map[string]*ConnectionStats
}

// Manager owns a set of named connection pools and leases them out as
// common.Connection values. Pools are opened lazily on first use or eagerly
// through Connect.
type Manager struct {
	connections map[string]*namedConnection
	defaultName string
	mu          sync.RWMutex

	healthTicker *time.Ticker
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

var _ common.ConnectionFactory = (*Manager)(nil)

// NewManager validates cfg and creates a manager. No pool is opened yet.
func NewManager(cfg config.DBManagerConfig) (*Manager, error) {
	m := &Manager{
		connections: make(map[string]*namedConnection),
		defaultName: cfg.DefaultConnection,
		stopChan:    make(chan struct{}),
	}

	for name, cc := range resolveConnections(cfg) {
		if err := cc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid connection %q: %w", name, err)
		}
		p, err := providerFor(cc.DatabaseType())
		if err != nil {
			return nil, err
		}
		m.connections[name] = newNamedConnection(cc, p)
	}

	if m.defaultName == "" && len(m.connections) == 1 {
		for name := range m.connections {
			m.defaultName = name
		}
	}
	if m.defaultName != "" {
		if _, ok := m.connections[m.defaultName]; !ok {
			return nil, NewConfigurationError("default_connection", fmt.Errorf("%w: %s", ErrConnectionNotFound, m.defaultName))
		}
	}
	return m, nil
}

// Register adds a pool opened elsewhere under name. The manager takes
// ownership of db and closes it in Close.
func (m *Manager) Register(ctx context.Context, name string, dbType DatabaseType, orm ORMType, db *sql.DB) error {
	cc := ConnectionConfig{DBConnectionConfig: config.DBConnectionConfig{Name: name, Type: string(dbType), ORM: string(orm)}}
	if err := cc.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	conn := newNamedConnection(cc, providers.NewExistingDBProvider(db, name, string(dbType)))
	if err := conn.connect(ctx); err != nil {
		return err
	}
	m.connections[name] = conn
	if m.defaultName == "" {
		m.defaultName = name
	}
	return nil
}

// Names returns the configured connection names, sorted
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.connections))
	for name := range m.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultName returns the connection used when none is named
func (m *Manager) DefaultName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// SetDefault changes the default connection
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	m.defaultName = name
	return nil
}

func (m *Manager) lookup(name string) (*namedConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		if m.defaultName == "" {
			return nil, ErrNoDefaultConnection
		}
		name = m.defaultName
	}
	conn, ok := m.connections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	return conn, nil
}

// Connect opens every configured pool. All connections are attempted; the
// errors are joined.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.RLock()
	conns := make([]*namedConnection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	var errs []error
	for _, c := range conns {
		if err := c.connect(ctx); err != nil {
			logger.Error("Failed to connect %s: %v", c.cfg.Name, err)
			errs = append(errs, err)
		}
	}
	m.PublishMetrics()
	return errors.Join(errs...)
}

// Database returns the shared adapter of a connection, opening it if needed.
// The result must not be closed by the caller.
func (m *Manager) Database(ctx context.Context, name string) (common.Database, error) {
	conn, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := conn.connect(ctx); err != nil {
		return nil, err
	}
	return conn.database()
}

// OpenConnection leases a named connection, or the default one for an empty
// name. Closing the lease leaves the pool open.
func (m *Manager) OpenConnection(ctx context.Context, name string) (common.Connection, error) {
	conn, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := conn.connect(ctx); err != nil {
		return nil, err
	}
	db, err := conn.database()
	if err != nil {
		return nil, err
	}
	conn.leased.Add(1)
	return &lease{Database: db, owner: conn}, nil
}

// HealthCheck checks every open connection
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	conns := make([]*namedConnection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	var errs []error
	for _, c := range conns {
		if _, err := c.database(); err != nil {
			continue
		}
		if err := c.healthCheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.PublishMetrics()
	return errors.Join(errs...)
}

// StartHealthChecks runs HealthCheck every interval until Close
func (m *Manager) StartHealthChecks(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.mu.Lock()
	if m.healthTicker != nil {
		m.mu.Unlock()
		return
	}
	m.healthTicker = time.NewTicker(interval)
	ticker := m.healthTicker
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if err := m.HealthCheck(ctx); err != nil {
					logger.Warn("Database health check failed: %v", err)
				}
				cancel()
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Close stops the health checks and closes every pool
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.mu.Lock()
	if m.healthTicker != nil {
		m.healthTicker.Stop()
	}
	m.mu.Unlock()
	m.wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for _, c := range m.connections {
		if err := c.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns statistics for every connection
func (m *Manager) Stats() *ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &ManagerStats{
		TotalConnections: len(m.connections),
		ConnectionStats:  make(map[string]*ConnectionStats, len(m.connections)),
	}
	for name, c := range m.connections {
		cs := c.stats()
		stats.ConnectionStats[name] = cs
		switch {
		case cs.HealthCheckStatus == "healthy":
			stats.HealthyCount++
		case cs.HealthCheckStatus != "":
			stats.UnhealthyCount++
		}
	}
	return stats
}
