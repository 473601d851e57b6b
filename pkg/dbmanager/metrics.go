package dbmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func poolGauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dbmanager",
		Name:      name,
		Help:      help,
	}, labels)
}

// Pool gauges mirror the last Stats snapshot; counters from database/sql are
// already cumulative so they are exported as gauges too.
var (
	connectionsTotal   = poolGauge("connections_total", "Configured connections per database type", "type")
	connectionStatus   = poolGauge("connection_status", "1 when the connection is open and healthy", "name", "type")
	connectionLeases   = poolGauge("connection_leases", "Leases taken through OpenConnection and not yet closed", "name", "type")
	connectionPoolSize = poolGauge("connection_pool_size", "Pool connections by state (open, idle, in_use)", "name", "type", "state")
	connectionWaits    = poolGauge("connection_wait_count", "Times a caller waited for a pooled connection", "name", "type")
	connectionWaitSecs = poolGauge("connection_wait_duration_seconds", "Total time spent waiting for a pooled connection", "name", "type")
	lifetimeClosed     = poolGauge("connection_lifetime_closed_total", "Connections closed after their max lifetime", "name", "type")
	idleClosed         = poolGauge("connection_idle_closed_total", "Connections closed after their max idle time", "name", "type")
)

// PublishMetrics copies the current Stats into the pool gauges.
func (m *Manager) PublishMetrics() {
	stats := m.Stats()

	perType := make(map[DatabaseType]int)
	for name, cs := range stats.ConnectionStats {
		perType[cs.Type]++
		typ := string(cs.Type)

		// never checked counts as healthy
		healthy := cs.Connected && (cs.HealthCheckStatus == "" || cs.HealthCheckStatus == "healthy")
		connectionStatus.WithLabelValues(name, typ).Set(boolGauge(healthy))
		connectionLeases.WithLabelValues(name, typ).Set(float64(cs.Leased))

		connectionPoolSize.WithLabelValues(name, typ, "open").Set(float64(cs.OpenConnections))
		connectionPoolSize.WithLabelValues(name, typ, "idle").Set(float64(cs.Idle))
		connectionPoolSize.WithLabelValues(name, typ, "in_use").Set(float64(cs.InUse))

		connectionWaits.WithLabelValues(name, typ).Set(float64(cs.WaitCount))
		connectionWaitSecs.WithLabelValues(name, typ).Set(cs.WaitDuration.Seconds())
		lifetimeClosed.WithLabelValues(name, typ).Set(float64(cs.MaxLifetimeClosed))
		idleClosed.WithLabelValues(name, typ).Set(float64(cs.MaxIdleClosed))
	}
	for typ, n := range perType {
		connectionsTotal.WithLabelValues(string(typ)).Set(float64(n))
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
