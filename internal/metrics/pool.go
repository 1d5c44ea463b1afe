// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics records connection pool state. Every series carries the pool name.
type PoolMetrics struct {
	leased       *prometheus.GaugeVec
	idle         *prometheus.GaugeVec
	acquireWait  *prometheus.HistogramVec
	exhausted    *prometheus.CounterVec
	discarded    *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
	queueDepth   *prometheus.GaugeVec
}

// NewPoolMetrics creates the pool collectors on reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	f := promauto.With(reg)
	return &PoolMetrics{
		leased: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_connections_leased",
			Help:      "Connections currently leased from the pool",
		}, []string{"pool"}),
		idle: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_connections_idle",
			Help:      "Connections currently idle in the pool",
		}, []string{"pool"}),
		acquireWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_acquire_wait_seconds",
			Help:      "Time spent waiting for a pool slot",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"pool"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exhausted_total",
			Help:      "Acquire attempts that timed out waiting for a slot",
		}, []string{"pool"}),
		discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_connections_discarded_total",
			Help:      "Connections closed instead of returned to the idle set",
		}, []string{"pool", "reason"}), // reason=broken|health_check|idle_timeout|replaced|closed
		queryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "datastore_query_duration_seconds",
			Help:      "Statement execution time by operation and outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pool", "op", "outcome"}), // op=exec|query, outcome=success|error
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "write_queue_depth",
			Help:      "Write tasks waiting in the queue",
		}, []string{"pool"}),
	}
}

func (m *PoolMetrics) SetLeased(pool string, n int) { m.leased.WithLabelValues(pool).Set(float64(n)) }
func (m *PoolMetrics) SetIdle(pool string, n int)   { m.idle.WithLabelValues(pool).Set(float64(n)) }
func (m *PoolMetrics) IncExhausted(pool string)     { m.exhausted.WithLabelValues(pool).Inc() }

func (m *PoolMetrics) ObserveAcquireWait(pool string, d time.Duration) {
	m.acquireWait.WithLabelValues(pool).Observe(d.Seconds())
}

func (m *PoolMetrics) IncDiscarded(pool, reason string) {
	m.discarded.WithLabelValues(pool, reason).Inc()
}

// ObserveQuery records one statement execution.
func (m *PoolMetrics) ObserveQuery(pool, op string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.queryLatency.WithLabelValues(pool, op, outcome).Observe(d.Seconds())
}

func (m *PoolMetrics) SetQueueDepth(pool string, n int) {
	m.queueDepth.WithLabelValues(pool).Set(float64(n))
}
