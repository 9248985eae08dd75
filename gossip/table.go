package gossip

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

/*
Table is the EndpointStateTable (C4): the authoritative local view of the
cluster, mapping NodeID -> *NodeState. It is exclusively owned by the
Gossiper's single executor goroutine per the concurrency model in §5 of
SPEC_FULL.md; the mutex here exists only so Snapshot() can be called safely
from I/O goroutines assembling outbound packets without round-tripping
through the mailbox, matching "concurrent readers obtain a copy-on-read
snapshot for outbound message assembly."
*/

// Table is the EndpointStateTable.
type Table struct {
	mu    sync.RWMutex
	local NodeID
	nodes map[NodeID]*NodeState

	localHB *localHeartbeat
	clock   clock.Clock
}

// NewTable constructs a Table that owns nodeID as its local node, seeded
// with the given starting generation (see GenerationStore for how callers
// pick one that is strictly greater across restarts).
func NewTable(nodeID NodeID, generation int64, clk clock.Clock) *Table {
	t := &Table{
		local:   nodeID,
		nodes:   make(map[NodeID]*NodeState),
		localHB: newLocalHeartbeat(generation),
		clock:   clk,
	}
	now := clk.Now()
	ns := newNodeState(t.localHB.snapshot(), now)
	ns.ApplicationState[StateStatus] = AppState{StringValue: StatusUp, Version: 1}
	t.nodes[nodeID] = ns
	return t
}

// LocalNodeID returns the NodeID this table's owner considers local.
func (t *Table) LocalNodeID() NodeID { return t.local }

// Observe implements the idempotent-insertion operation: if nodeID is
// already known, its existing NodeState is returned; otherwise a
// zero-heartbeat NodeState is created, inserted, and returned.
func (t *Table) Observe(nodeID NodeID) *NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ns, ok := t.nodes[nodeID]; ok {
		return ns
	}
	ns := newNodeState(Heartbeat{}, t.clock.Now())
	ns.isAlive = false
	t.nodes[nodeID] = ns
	return ns
}

// Snapshot returns a consistent, independently-owned copy of the table for
// gossip assembly (digest building, delta serialization).
func (t *Table) Snapshot() map[NodeID]*NodeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[NodeID]*NodeState, len(t.nodes))
	for id, ns := range t.nodes {
		out[id] = ns.clone()
	}
	return out
}

// get returns the live (not cloned) NodeState pointer, for internal use by
// callers that already hold, or don't need, the lock discipline Snapshot
// provides. digest.go calls this; state_management.go reads t.nodes directly
// under its own lock.
func (t *Table) get(nodeID NodeID) (*NodeState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ns, ok := t.nodes[nodeID]
	return ns, ok
}

// forEach calls fn for every (NodeID, *NodeState) currently in the table
// under the read lock. fn must not mutate the table.
func (t *Table) forEach(fn func(NodeID, *NodeState)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, ns := range t.nodes {
		fn(id, ns)
	}
}

// Len reports how many nodes the table currently tracks (used by metrics
// and the TUI).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// BumpLocal increments the local heartbeat version and stores
// key -> (value, new_version) under it. It takes no NodeID and always writes
// the table's own node, so callers cannot forge writes to another node's
// ApplicationState. If the local entry is missing from the table it returns
// an InternalError wrapping ErrUnknownNode and changes nothing.
func (t *Table) BumpLocal(key StateKey, value AppState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	local, ok := t.nodes[t.local]
	if !ok {
		return newInternalError("bump-local", ErrUnknownNode)
	}

	hb := t.localHB.bump()
	local.Heartbeat = hb
	local.isAlive = true
	local.lastSeenMonotonic = t.clock.Now()

	value.Version = hb.Version
	local.ApplicationState[key] = value
	return nil
}

// TickHeartbeat bumps the local heartbeat version without changing any
// ApplicationState entry — the bare "I'm still here" tick issued once per
// gossip period even when nothing else has changed.
func (t *Table) TickHeartbeat() Heartbeat {
	t.mu.Lock()
	defer t.mu.Unlock()
	hb := t.localHB.bump()
	if local, ok := t.nodes[t.local]; ok {
		local.Heartbeat = hb
		local.isAlive = true
		local.lastSeenMonotonic = t.clock.Now()
	}
	return hb
}

// markAlive/markDown are called by the Gossiper in response to the failure
// detector; they never touch Heartbeat or ApplicationState versions, only
// the liveness flag, so they cannot forge a spurious version bump.
func (t *Table) markAlive(id NodeID, now time.Time) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ns, ok := t.nodes[id]
	if !ok || ns.isAlive {
		return false
	}
	ns.isAlive = true
	ns.lastSeenMonotonic = now
	return true
}

func (t *Table) markDown(id NodeID) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ns, ok := t.nodes[id]
	if !ok || !ns.isAlive {
		return false
	}
	ns.isAlive = false
	return true
}
