// Package metrics expone métricas Prometheus de la capa de sincronización.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess    = "success"
	OutcomeRolledBack = "rolled_back"
	OutcomeRejected   = "rejected"
	OutcomeLocal      = "local"
)

// SyncMetrics cuenta operaciones del controller y el tamaño del store.
// Un *SyncMetrics nil es válido: todos los métodos son no-op.
type SyncMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	remoteErrorsTotal *prometheus.CounterVec
	poisonedTotal     *prometheus.CounterVec
	recordsGauge      *prometheus.GaugeVec
	seedBacked        prometheus.Gauge
}

func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petsync_operations_total",
			Help: "Total number of controller operations",
		},
		[]string{"entity", "operation", "outcome"}, // outcome: success, rolled_back, rejected, local
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "petsync_operation_duration_seconds",
			Help: "Time taken by controller operations, remote round-trip included",
			// 5ms .. ~40s: cubre el timeout de 30s por llamada
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"entity", "operation"},
	)

	m.remoteErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petsync_remote_errors_total",
			Help: "Total number of failed remote calls",
		},
		[]string{"entity", "operation"},
	)

	m.poisonedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petsync_poisoned_rows_total",
			Help: "Remote rows skipped during load because they could not be mapped",
		},
		[]string{"entity"},
	)

	m.recordsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "petsync_records",
			Help: "Records currently held in the entity store",
		},
		[]string{"entity"},
	)

	m.seedBacked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "petsync_seed_backed",
			Help: "1 when the controller runs on local seed data",
		},
	)
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.remoteErrorsTotal.Describe(ch)
	m.poisonedTotal.Describe(ch)
	m.recordsGauge.Describe(ch)
	m.seedBacked.Describe(ch)
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.remoteErrorsTotal.Collect(ch)
	m.poisonedTotal.Collect(ch)
	m.recordsGauge.Collect(ch)
	m.seedBacked.Collect(ch)
}

func (m *SyncMetrics) RecordOperation(entity, operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(entity, operation, outcome).Inc()
	m.operationDuration.WithLabelValues(entity, operation).Observe(took.Seconds())
}

func (m *SyncMetrics) RecordRemoteError(entity, operation string) {
	if m == nil {
		return
	}
	m.remoteErrorsTotal.WithLabelValues(entity, operation).Inc()
}

func (m *SyncMetrics) RecordPoisoned(entity string) {
	if m == nil {
		return
	}
	m.poisonedTotal.WithLabelValues(entity).Inc()
}

func (m *SyncMetrics) SetRecords(entity string, n int) {
	if m == nil {
		return
	}
	m.recordsGauge.WithLabelValues(entity).Set(float64(n))
}

func (m *SyncMetrics) SetSeedBacked(on bool) {
	if m == nil {
		return
	}
	if on {
		m.seedBacked.Set(1)
		return
	}
	m.seedBacked.Set(0)
}
