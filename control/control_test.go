package control_test

import (
	"sync/atomic"
	"testing"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-talk/control"
)

func TestMetricsSnapshot(t *testing.T) {
	m := control.NewMetrics(metrics.NewRegistry())
	m.Inc(control.ConnectionsAccepted)
	m.Inc(control.ConnectionsAccepted)
	m.Inc(control.EchoDropped)
	m.Inc("custom.counter")
	m.SetActive(3)

	snap := m.GetSnapshot()
	assert.EqualValues(t, 2, snap[control.ConnectionsAccepted])
	assert.EqualValues(t, 1, snap[control.EchoDropped])
	assert.EqualValues(t, 0, snap[control.MessagesEchoed])
	assert.EqualValues(t, 1, snap["custom.counter"])
	assert.EqualValues(t, 3, snap[control.ConnectionsActive])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *control.Metrics
	m.Inc(control.MessagesReceived)
	m.SetActive(1)
	assert.Empty(t, m.GetSnapshot())
	assert.Nil(t, m.Registry())
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	control.RegisterRuntimeProbes(dp)

	state := dp.DumpState()
	assert.Equal(t, 42, state["answer"])
	assert.Contains(t, state, "runtime.goroutines")
	assert.Equal(t, []string{"answer", "runtime.cpus", "runtime.goroutines", "runtime.heap_alloc"}, dp.Names())
}

func TestReloadHooks(t *testing.T) {
	control.ResetReloadHooks()
	t.Cleanup(control.ResetReloadHooks)

	var calls atomic.Int32
	control.RegisterReloadHook(func() { calls.Add(1) })
	control.RegisterReloadHook(func() { calls.Add(10) })

	control.TriggerHotReloadSync()
	require.EqualValues(t, 11, calls.Load())
}
