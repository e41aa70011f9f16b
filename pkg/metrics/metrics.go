// Package metrics exposes Prometheus collectors for executions and node invocations.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowrun"

type Metrics struct {
	executionsStarted  prometheus.Counter
	executionsFinished *prometheus.CounterVec
	executionsInflight prometheus.Gauge
	executionDuration  *prometheus.HistogramVec
	nodeDuration       *prometheus.HistogramVec
}

// New registers every collector with registry, or with the default registerer when nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		executionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Executions accepted by the supervisor",
		}),
		executionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_finished_total",
			Help:      "Executions that reached a terminal status",
		}, []string{"status"}),
		executionsInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_inflight",
			Help:      "Executions currently running",
		}),
		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_ms",
			Help:      "Execution wall time in milliseconds",
			Buckets:   []float64{1, 10, 100, 500, 1000, 5000, 30000, 120000, 600000},
		}, []string{"status"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_ms",
			Help:      "Node invocation duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}, // 1ms to 10s
		}, []string{"node_type", "status"}),
	}
}

func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}

	m.executionsStarted.Inc()
	m.executionsInflight.Inc()
}

func (m *Metrics) ExecutionFinished(status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.executionsInflight.Dec()
	m.executionsFinished.WithLabelValues(status).Inc()
	m.executionDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// NodeExecuted records one invocation; status is "success" or "error".
func (m *Metrics) NodeExecuted(nodeType, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.nodeDuration.WithLabelValues(nodeType, status).Observe(float64(duration.Milliseconds()))
}
