package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics provides observability for the tenant pool and its
// snapshot persistence.
//
// This interface is optional. If metrics are disabled a no-op
// implementation is returned, so call sites never check for nil.
type EngineMetrics interface {
	// RecordSnapshotLoad records one snapshot load with its duration and
	// outcome.
	RecordSnapshotLoad(duration time.Duration, err error)

	// RecordSnapshotSave records one snapshot save with its duration and
	// outcome.
	RecordSnapshotSave(duration time.Duration, err error)

	// RecordRollback increments the rollback counter. A rollback happens
	// when an engine mutation is undone because its snapshot save failed.
	RecordRollback()

	// SetCachedTenants updates the hydrated tenant gauge.
	SetCachedTenants(count int)
}

type engineMetrics struct {
	snapshotLoads    *prometheus.CounterVec
	snapshotSaves    *prometheus.CounterVec
	snapshotDuration *prometheus.HistogramVec
	rollbacks        prometheus.Counter
	cachedTenants    prometheus.Gauge
}

// NewEngineMetrics creates a Prometheus-backed EngineMetrics instance, or
// a no-op implementation when metrics are disabled.
func NewEngineMetrics() EngineMetrics {
	if !IsEnabled() {
		return noopEngineMetrics{}
	}

	reg := GetRegistry()

	return &engineMetrics{
		snapshotLoads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_snapshot_loads_total",
				Help: "Total number of tenant snapshot loads by status",
			},
			[]string{"status"},
		),
		snapshotSaves: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_snapshot_saves_total",
				Help: "Total number of tenant snapshot saves by status",
			},
			[]string{"status"},
		),
		snapshotDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "driftfs_snapshot_operation_duration_seconds",
				Help: "Duration of snapshot store operations in seconds",
				Buckets: []float64{
					0.0005, // 0.5ms
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"operation"},
		),
		rollbacks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_engine_rollbacks_total",
				Help: "Total number of engine mutations rolled back after a failed snapshot save",
			},
		),
		cachedTenants: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "driftfs_cached_tenants",
				Help: "Current number of hydrated tenant engines in the cache",
			},
		),
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *engineMetrics) RecordSnapshotLoad(duration time.Duration, err error) {
	m.snapshotLoads.WithLabelValues(statusLabel(err)).Inc()
	m.snapshotDuration.WithLabelValues("load").Observe(duration.Seconds())
}

func (m *engineMetrics) RecordSnapshotSave(duration time.Duration, err error) {
	m.snapshotSaves.WithLabelValues(statusLabel(err)).Inc()
	m.snapshotDuration.WithLabelValues("save").Observe(duration.Seconds())
}

func (m *engineMetrics) RecordRollback() {
	m.rollbacks.Inc()
}

func (m *engineMetrics) SetCachedTenants(count int) {
	m.cachedTenants.Set(float64(count))
}

// noopEngineMetrics is a no-op implementation of EngineMetrics.
type noopEngineMetrics struct{}

func (noopEngineMetrics) RecordSnapshotLoad(duration time.Duration, err error) {}
func (noopEngineMetrics) RecordSnapshotSave(duration time.Duration, err error) {}
func (noopEngineMetrics) RecordRollback()                                      {}
func (noopEngineMetrics) SetCachedTenants(count int)                           {}
