package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestBuildDigestsCoversEveryNode(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	table := NewTable("node-1", 1, clk)
	table.Observe("node-2")
	table.Observe("node-3")

	digests := BuildDigests(table)
	require.Len(t, digests, 3)

	seen := make(map[NodeID]bool)
	for _, d := range digests {
		seen[d.NodeID] = true
	}
	require.True(t, seen["node-1"])
	require.True(t, seen["node-2"])
	require.True(t, seen["node-3"])
}

func TestReconcileCaseAMissingLocal(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)

	requests, deltas := Reconcile(local, []Digest{{NodeID: "node-2", Generation: 5, MaxVersion: 3}})

	require.Len(t, requests, 1)
	require.Equal(t, NodeID("node-2"), requests[0].NodeID)
	require.EqualValues(t, 0, requests[0].MaxVersion)
	require.Len(t, deltas, 1, "only the local-only offer of node-1, absent from the remote digests")
	require.NotContains(t, deltas, NodeID("node-2"))
}

func TestReconcileCaseAStaleLocalGeneration(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)
	local.nodes["node-2"] = newNodeState(Heartbeat{Generation: 1, Version: 1}, clk.Now())

	requests, _ := Reconcile(local, []Digest{{NodeID: "node-2", Generation: 5, MaxVersion: 3}})

	require.Len(t, requests, 1)
	require.EqualValues(t, 0, requests[0].MaxVersion, "a stale generation always requests full state")
}

func TestReconcileCaseBOffersNewerGeneration(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)
	local.nodes["node-2"] = newNodeState(Heartbeat{Generation: 9, Version: 1}, clk.Now())

	requests, deltas := Reconcile(local, []Digest{{NodeID: "node-2", Generation: 1, MaxVersion: 3}})

	require.Empty(t, requests)
	require.Contains(t, deltas, NodeID("node-2"))
	require.EqualValues(t, 9, deltas["node-2"].Heartbeat.Generation)
}

func TestReconcileCaseCOffersOnlyNewerFragments(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)
	ns := newNodeState(Heartbeat{Generation: 1, Version: 10}, clk.Now())
	ns.ApplicationState[StateStatus] = AppState{StringValue: StatusUp, Version: 4}
	ns.ApplicationState[StateRPCAddr] = AppState{StringValue: "10.0.0.1:1", Version: 8}
	local.nodes["node-2"] = ns

	_, deltas := Reconcile(local, []Digest{{NodeID: "node-2", Generation: 1, MaxVersion: 5}})

	require.Contains(t, deltas, NodeID("node-2"))
	got := deltas["node-2"]
	_, hasStatus := got.ApplicationState[StateStatus]
	require.False(t, hasStatus, "fragment at version 4 must not be sent when remote already has maxVersion 5")
	_, hasAddr := got.ApplicationState[StateRPCAddr]
	require.True(t, hasAddr, "fragment at version 8 is newer than remote maxVersion 5")
}

func TestReconcileCaseDRequestsDeltaAboveLocalMax(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)
	local.nodes["node-2"] = newNodeState(Heartbeat{Generation: 1, Version: 2}, clk.Now())

	requests, deltas := Reconcile(local, []Digest{{NodeID: "node-2", Generation: 1, MaxVersion: 9}})

	require.Len(t, requests, 1)
	require.EqualValues(t, 2, requests[0].MaxVersion)
	require.Len(t, deltas, 1, "only the local-only offer of node-1, absent from the remote digests")
	require.NotContains(t, deltas, NodeID("node-2"))
}

func TestReconcileCaseEEqualProducesNoOutput(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)
	local.nodes["node-2"] = newNodeState(Heartbeat{Generation: 1, Version: 5}, clk.Now())

	requests, deltas := Reconcile(local, []Digest{{NodeID: "node-2", Generation: 1, MaxVersion: 5}})

	require.Empty(t, requests)
	require.Len(t, deltas, 1, "only the local-only offer of node-1, absent from the remote digests")
	require.NotContains(t, deltas, NodeID("node-2"))
}

func TestReconcileOffersLocalOnlyNodes(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)
	local.nodes["node-3"] = newNodeState(Heartbeat{Generation: 1, Version: 1}, clk.Now())

	_, deltas := Reconcile(local, nil)

	require.Contains(t, deltas, NodeID("node-1"))
	require.Contains(t, deltas, NodeID("node-3"))
}

func TestFulfillRequestsFullVsDelta(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(1000, 0))
	local := NewTable("node-1", 1, clk)
	ns := newNodeState(Heartbeat{Generation: 1, Version: 10}, clk.Now())
	ns.ApplicationState[StateStatus] = AppState{StringValue: StatusUp, Version: 2}
	ns.ApplicationState[StateRPCAddr] = AppState{StringValue: "10.0.0.1:1", Version: 9}
	local.nodes["node-2"] = ns

	out := FulfillRequests(local, []Digest{
		{NodeID: "node-2", MaxVersion: 0},
		{NodeID: "missing", MaxVersion: 0},
	})
	require.Len(t, out, 1)
	require.Len(t, out["node-2"].ApplicationState, 2, "MaxVersion 0 requests full state")

	out = FulfillRequests(local, []Digest{{NodeID: "node-2", MaxVersion: 5}})
	require.Len(t, out["node-2"].ApplicationState, 1, "MaxVersion>0 requests only the fragments above it")
}
