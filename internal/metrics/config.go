// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors of the library. Collectors
// are registered on the Registerer the owning application passes in; a nil
// Registerer leaves them unregistered.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skylib"

// ConfigMetrics records configuration reloads.
type ConfigMetrics struct {
	reloadsTotal *prometheus.CounterVec
	generation   *prometheus.GaugeVec
}

// NewConfigMetrics creates the config collectors on reg.
func NewConfigMetrics(reg prometheus.Registerer) *ConfigMetrics {
	f := promauto.With(reg)
	return &ConfigMetrics{
		reloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by schema and result",
		}, []string{"schema", "result"}), // result=success|failure
		generation: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_generation",
			Help:      "Generation of the current configuration instance",
		}, []string{"schema"}),
	}
}

// ObserveReload counts one reload outcome.
func (m *ConfigMetrics) ObserveReload(schema, result string) {
	m.reloadsTotal.WithLabelValues(schema, result).Inc()
}

// SetGeneration records the generation of the published instance.
func (m *ConfigMetrics) SetGeneration(schema string, generation uint64) {
	m.generation.WithLabelValues(schema).Set(float64(generation))
}
