package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ExecutionStarted()
	m.ExecutionStarted()
	m.ExecutionFinished("completed", 20*time.Millisecond)
	m.NodeExecuted("action", "success", 5*time.Millisecond)
	m.NodeExecuted("action", "error", 5*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.executionsStarted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executionsInflight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executionsFinished.WithLabelValues("completed")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.nodeDuration))
}

func TestMetrics_Nil(t *testing.T) {
	t.Parallel()

	var m *Metrics

	assert.NotPanics(t, func() {
		m.ExecutionStarted()
		m.ExecutionFinished("failed", time.Second)
		m.NodeExecuted("start", "success", 0)
	})
}
