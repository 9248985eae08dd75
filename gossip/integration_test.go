package gossip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memoryRegistry and memoryTransport let several in-process Gossipers talk
// to each other without a real network, for convergence tests that would
// otherwise need transport.GRPC and a listening socket per node.
type memoryRegistry struct {
	mu        sync.Mutex
	gossipers map[NodeID]*Gossiper
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{gossipers: make(map[NodeID]*Gossiper)}
}

func (r *memoryRegistry) register(id NodeID, g *Gossiper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gossipers[id] = g
}

func (r *memoryRegistry) get(id NodeID) *Gossiper {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gossipers[id]
}

type memoryTransport struct {
	registry *memoryRegistry
}

func (m *memoryTransport) SendSyn(ctx context.Context, peer NodeID, syn SynPacket) (AckPacket, error) {
	g := m.registry.get(peer)
	if g == nil {
		return AckPacket{}, newInternalError("memory-transport", ErrUnknownNode)
	}
	return g.HandleSyn(ctx, syn.Sender, syn)
}

func (m *memoryTransport) SendAck2(ctx context.Context, peer NodeID, ack2 Ack2Packet) error {
	g := m.registry.get(peer)
	if g == nil {
		return newInternalError("memory-transport", ErrUnknownNode)
	}
	return g.HandleAck2(ctx, ack2.Sender, ack2)
}

func newTestGossiper(t *testing.T, registry *memoryRegistry, id NodeID, seeds []NodeID) *Gossiper {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ClusterID = "test-cluster"
	cfg.RoundPeriod = 10 * time.Millisecond
	cfg.RoundTimeout = 50 * time.Millisecond
	cfg.Seeds = seeds

	g, err := New(id, 1, cfg, &memoryTransport{registry: registry})
	require.NoError(t, err)
	registry.register(id, g)
	return g
}

// TestGossipConvergesAcrossThreeNodes drives three in-process Gossipers
// seeded into a line (a->b, b->c) and asserts that gossip alone (no direct
// edge a<->c) eventually informs every node of every other node's RPC
// address, exercising the three-way exchange's transitive reach.
func TestGossipConvergesAcrossThreeNodes(t *testing.T) {
	registry := newMemoryRegistry()

	a := newTestGossiper(t, registry, "a", []NodeID{"b"})
	b := newTestGossiper(t, registry, "b", []NodeID{"a", "c"})
	c := newTestGossiper(t, registry, "c", []NodeID{"b"})

	a.Seed("b")
	b.Seed("a")
	b.Seed("c")
	c.Seed("b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx)
	b.Start(ctx)
	c.Start(ctx)
	defer a.Stop()
	defer b.Stop()
	defer c.Stop()

	require.NoError(t, a.BumpLocal(StateRPCAddr, AppState{StringValue: "10.0.0.1:1"}))
	require.NoError(t, b.BumpLocal(StateRPCAddr, AppState{StringValue: "10.0.0.2:2"}))
	require.NoError(t, c.BumpLocal(StateRPCAddr, AppState{StringValue: "10.0.0.3:3"}))

	require.Eventually(t, func() bool {
		sa, sb, sc := a.Snapshot(), b.Snapshot(), c.Snapshot()
		return len(sa) == 3 && len(sb) == 3 && len(sc) == 3 &&
			sa["c"] != nil && sa["c"].ApplicationState[StateRPCAddr].StringValue == "10.0.0.3:3" &&
			sc["a"] != nil && sc["a"].ApplicationState[StateRPCAddr].StringValue == "10.0.0.1:1"
	}, 2*time.Second, 10*time.Millisecond, "gossip must transitively propagate membership and state across all three nodes")
}

// TestGossipHeartbeatIsMonotonic exercises the liveness side: once a and b
// converge, a's own heartbeat keeps climbing every round while b never
// observes it regress.
func TestGossipHeartbeatIsMonotonic(t *testing.T) {
	registry := newMemoryRegistry()
	a := newTestGossiper(t, registry, "a", []NodeID{"b"})
	b := newTestGossiper(t, registry, "b", []NodeID{"a"})
	a.Seed("b")
	b.Seed("a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	b.Start(ctx)
	defer a.Stop()
	defer b.Stop()

	var lastSeen int64
	require.Eventually(t, func() bool {
		snap := b.Snapshot()
		ns, ok := snap["a"]
		if !ok {
			return false
		}
		if ns.Heartbeat.Version < lastSeen {
			t.Fatalf("observed heartbeat regression: %d after %d", ns.Heartbeat.Version, lastSeen)
		}
		lastSeen = ns.Heartbeat.Version
		return lastSeen > 3
	}, 2*time.Second, 10*time.Millisecond)
}
