package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPhiIsZeroBeforeMinSamples(t *testing.T) {
	cfg := DefaultFailureDetectorConfig()
	d := NewPhiFailureDetector(cfg)
	now := time.Unix(1000, 0)

	d.Observe("node-2", now)
	require.Equal(t, 0.0, d.Phi("node-2", now.Add(time.Second)), "a single arrival has no interval history yet")
}

func TestPhiIsZeroForUnknownNode(t *testing.T) {
	d := NewPhiFailureDetector(DefaultFailureDetectorConfig())
	require.Equal(t, 0.0, d.Phi("ghost", time.Unix(1000, 0)))
}

func TestPhiGrowsAsTimeSinceLastHeartbeatIncreases(t *testing.T) {
	d := NewPhiFailureDetector(DefaultFailureDetectorConfig())
	now := time.Unix(1000, 0)

	interval := time.Second
	for i := 0; i < 10; i++ {
		d.Observe("node-2", now)
		now = now.Add(interval)
	}

	phiSoon := d.Phi("node-2", now.Add(time.Second))
	phiLater := d.Phi("node-2", now.Add(10*time.Second))
	require.Greater(t, phiLater, phiSoon, "phi must grow as the overdue interval stretches past the historical mean")
}

func TestSuspectedTripsAtThreshold(t *testing.T) {
	cfg := DefaultFailureDetectorConfig()
	cfg.PhiThreshold = 1.0
	d := NewPhiFailureDetector(cfg)
	now := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		d.Observe("node-2", now)
		now = now.Add(time.Second)
	}

	require.False(t, d.Suspected("node-2", now.Add(time.Second)))
	require.True(t, d.Suspected("node-2", now.Add(time.Hour)))
}

func TestRemoveDiscardsHistory(t *testing.T) {
	d := NewPhiFailureDetector(DefaultFailureDetectorConfig())
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		d.Observe("node-2", now)
		now = now.Add(time.Second)
	}
	require.Greater(t, d.Phi("node-2", now.Add(time.Hour)), 0.0)

	d.Remove("node-2")
	require.Equal(t, 0.0, d.Phi("node-2", now.Add(time.Hour)), "removed nodes start from a clean slate")
}

func TestObserveWindowSizeIsBounded(t *testing.T) {
	cfg := FailureDetectorConfig{PhiThreshold: 8, WindowSize: 3, MinIntervalSamples: 2}
	d := NewPhiFailureDetector(cfg)
	now := time.Unix(1000, 0)

	for i := 0; i < 20; i++ {
		d.Observe("node-2", now)
		now = now.Add(time.Second)
	}

	w := d.history["node-2"]
	require.LessOrEqual(t, len(w.intervals), cfg.WindowSize)
}
