package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestNewTableSeedsLocalNodeUp(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	table := NewTable("node-1", 1, clk)

	ns, ok := table.get("node-1")
	require.True(t, ok)
	require.Equal(t, StatusUp, ns.ApplicationState[StateStatus].StringValue)
	require.EqualValues(t, 1, ns.Heartbeat.Generation)
}

func TestObserveIsIdempotent(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	table := NewTable("node-1", 1, clk)

	first := table.Observe("node-2")
	require.False(t, first.IsAlive())

	second := table.Observe("node-2")
	require.Same(t, first, second)
}

func TestBumpLocalMutatesOnlyLocalNode(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	table := NewTable("node-1", 1, clk)
	table.nodes["node-2"] = newNodeState(Heartbeat{}, clk.Now())

	err := table.BumpLocal(StateStatus, AppState{StringValue: StatusDown})
	require.NoError(t, err)

	local, _ := table.get("node-1")
	require.Equal(t, StatusDown, local.ApplicationState[StateStatus].StringValue)

	peer, _ := table.get("node-2")
	require.Empty(t, peer.ApplicationState)
}

func TestBumpLocalErrorsWhenLocalNodeMissing(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	table := NewTable("node-1", 1, clk)
	delete(table.nodes, "node-1")

	err := table.BumpLocal(StateStatus, AppState{StringValue: StatusDown})
	require.Error(t, err)
}

func TestTickHeartbeatBumpsVersion(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	table := NewTable("node-1", 1, clk)

	before := table.Snapshot()["node-1"].Heartbeat.Version
	table.TickHeartbeat()
	after := table.Snapshot()["node-1"].Heartbeat.Version

	require.Greater(t, after, before)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	table := NewTable("node-1", 1, clk)

	snap := table.Snapshot()
	snap["node-1"].ApplicationState[StateStatus] = AppState{StringValue: StatusDown}

	live, _ := table.get("node-1")
	require.Equal(t, StatusUp, live.ApplicationState[StateStatus].StringValue, "mutating a snapshot must not affect the live table")
}
