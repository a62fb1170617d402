package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorPercentilesAndRates(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	m := NewMonitor(time.Minute, 0, now)

	for i := 0; i < 100; i++ {
		m.Record(time.Duration(i+1)*time.Millisecond, i%10 == 0)
		clock = clock.Add(100 * time.Millisecond)
	}

	snap := m.Snapshot()
	require.Greater(t, snap.P50, time.Duration(0))
	require.GreaterOrEqual(t, snap.P99, snap.P95)
	require.GreaterOrEqual(t, snap.P95, snap.P50)
	require.Greater(t, snap.RequestsPerSec, 0.0)
	require.Greater(t, snap.ErrorsPerSec, 0.0)
}

func TestMonitorPrunesOutsideWindow(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	m := NewMonitor(time.Second, 0, now)

	m.Record(5*time.Millisecond, false)
	clock = clock.Add(2 * time.Second)
	m.Record(5*time.Millisecond, false)

	snap := m.Snapshot()
	require.InDelta(t, 1.0, snap.RequestsPerSec, 0.01)
}

func TestMonitorMemoryUsagePctWithLimit(t *testing.T) {
	m := NewMonitor(time.Minute, 1<<40, nil)
	snap := m.Snapshot()
	require.GreaterOrEqual(t, snap.MemoryUsagePct, 0.0)
}
