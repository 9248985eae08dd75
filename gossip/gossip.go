package gossip

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

/**
Cassandra's GMS (Gossip Membership Service) is responsible for:
- Gossip protocol
- Membership management
- Node liveness tracking
- Heartbeat/state dissemination
- Failure detection (phi accrual)
- Managing endpoint states & application states

My Application State needs to answer 3 questions:
1. Who are the nodes? (membership list)
2. Are they alive? (Liveness)
3. How do I contact them? (Addressability)

Discovery: Table.Snapshot()
Liveness: NodeState.Heartbeat.Generation + FailureDetector.Phi
Addressability: NodeState.ApplicationState[StateRPCAddr]

ReferencePaper: https://iopscience.iop.org/article/10.1088/1742-6596/1437/1/012001/pdf
ReferenceCode: https://github.com/apache/cassandra/blob/trunk/src/java/org/apache/cassandra/gms/Gossiper.java

Gossiper is the central engine. Once per roundPeriod it:
  - ticks the local heartbeat (table.go's Table.TickHeartbeat)
  - picks peers with SelectPeers (peer_selector.go)
  - starts an initiator Round (round.go) with each, sending a SYN built
    from BuildDigests (digest.go)
On the wire side (responder), incoming SYN/ACK2 arrive via whatever
Transport the caller wires in (transport.GRPC in this repo) and are fed
in through HandleSyn/HandleAck2, which reconcile with Reconcile and merge
with Table.ApplyRemote.

Every mutation to Table or the live Round map happens on the single
executor goroutine via the mailbox (mailbox.go), matching
denizetkar-gossip-protocol's CentralController/Gossiper
goroutine-per-component design: I/O callers only ever push a closure and
wait on a reply channel, they never mutate g.rounds or g.table directly
(they may read the table under its read lock). The FailureDetector has
its own lock and is called directly from those goroutines.

File Organization:
	gossip.go             - Gossiper engine: construction, lifecycle, tick loop
	mailbox.go            - single-executor event queue
	types.go               - NodeID / StateKey / reserved keys
	errors.go               - CodecError / InternalError taxonomy
	heartbeat_state.go      - Heartbeat, localHeartbeat
	endpoint_state.go       - AppState, NodeState
	table.go                - EndpointStateTable
	state_management.go     - ApplyRemote merge rule
	digest.go               - BuildDigests / Reconcile / FulfillRequests
	round.go                - GossipRound state machine
	peer_selector.go        - SelectPeers
	failure_detector.go     - PhiFailureDetector
	wire.go                 - binary codec for Syn/Ack/Ack2 packets
	versioned_value.go      - MVCC VersionedValue codec
	generation_store.go     - generation persistence across restarts
	metrics.go              - prometheus instrumentation
*/

// Transport is what the Gossiper uses to talk to a peer as the round
// initiator. Implementations (transport.GRPC in this repo) own the actual
// wire encoding via wire.go's Encode/Decode helpers and the network call;
// the Gossiper only knows about SynPacket/AckPacket/Ack2Packet.
type Transport interface {
	SendSyn(ctx context.Context, peer NodeID, syn SynPacket) (AckPacket, error)
	SendAck2(ctx context.Context, peer NodeID, ack2 Ack2Packet) error
}

// Listener is notified, from the executor goroutine, whenever ApplyRemote
// changes a (NodeID, StateKey) entry. Per §5, listeners must not block:
// they are invoked synchronously from the executor and a slow listener
// would stall every other gossip round.
type Listener func(id NodeID, key StateKey, state AppState)

// Config bundles the tunables of one Gossiper.
type Config struct {
	ClusterID    string
	RoundPeriod  time.Duration
	RoundTimeout time.Duration
	Seeds        []NodeID

	FailureDetector FailureDetectorConfig
	Clock           clock.WithTicker
	Generation      GenerationStore
	Metrics         *Metrics
}

// DefaultConfig returns sensible defaults; callers override what they need.
func DefaultConfig() Config {
	return Config{
		RoundPeriod:     time.Second,
		RoundTimeout:    2 * time.Second,
		FailureDetector: DefaultFailureDetectorConfig(),
	}
}

// Gossiper is the Gossiper (C2/C8 owner): the per-node engine that drives
// periodic rounds, owns the EndpointStateTable, and answers Membership
// queries. Exactly one executor goroutine (mailbox.run) ever mutates table
// or rounds; everything else goes through mailbox. fd carries its own lock
// and is used directly.
type Gossiper struct {
	cfg       Config
	local     NodeID
	table     *Table
	fd        *PhiFailureDetector
	transport Transport
	clk       clock.WithTicker

	mailbox *mailbox

	mu        sync.Mutex // guards rounds and listeners only; never table
	rounds    map[NodeID]*Round
	listeners []Listener

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Gossiper for the local node. generation is the
// heartbeat generation to start at (see GenerationStore); transport is
// used to initiate outbound rounds.
func New(local NodeID, generation int64, cfg Config, transport Transport) (*Gossiper, error) {
	if local == "" {
		return nil, fmt.Errorf("gossip: local NodeID must be set")
	}
	if cfg.RoundPeriod <= 0 {
		return nil, fmt.Errorf("gossip: RoundPeriod must be > 0")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
		cfg.Metrics = metrics
	}

	g := &Gossiper{
		cfg:       cfg,
		local:     local,
		table:     NewTable(local, generation, clk),
		fd:        NewPhiFailureDetector(cfg.FailureDetector),
		transport: transport,
		clk:       clk,
		mailbox:   newMailbox(256),
		rounds:    make(map[NodeID]*Round),
	}
	return g, nil
}

// Start launches the executor goroutine and the periodic round-initiation
// loop and returns without waiting for them. Both exit when ctx is
// cancelled or Stop is called.
func (g *Gossiper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.mailbox.run(ctx, g)
		}()
		go func() {
			defer wg.Done()
			g.tickLoop(ctx)
		}()
		wg.Wait()
	}()
}

// Stop cancels the executor and tick loop and waits for both to exit.
func (g *Gossiper) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	if g.done != nil {
		<-g.done
	}
}

// tickLoop is the "once per roundPeriod" clock described in the doc
// comment above: bump the local heartbeat, pick peers, start a round with
// each by posting an event onto the mailbox.
func (g *Gossiper) tickLoop(ctx context.Context) {
	ticker := g.clk.NewTicker(g.cfg.RoundPeriod)
	defer ticker.Stop()
	rng := rand.New(rand.NewPCG(uint64(g.clk.Now().UnixNano()), 0xa5a5a5a5))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			done := make(chan struct{})
			if err := g.mailbox.post(ctx, func(gg *Gossiper) {
				defer close(done)
				gg.table.TickHeartbeat()
				gg.expireOverdueRounds()
			}); err != nil {
				return
			}
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
			g.updateSuspectedGauge()

			live := g.LiveNodes()
			unreachable := g.DeadNodes()
			peers := SelectPeers(g.local, live, unreachable, g.cfg.Seeds, rng)
			for _, peer := range peers {
				peer := peer
				go g.initiateRound(ctx, peer)
			}
		}
	}
}

// initiateRound runs the initiator side of one SYN/ACK/ACK2 exchange: it
// is called from its own goroutine (network I/O must never block the
// executor or the ticker), and funnels every Table/Round mutation back
// through the mailbox.
func (g *Gossiper) initiateRound(ctx context.Context, peer NodeID) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RoundTimeout)
	defer cancel()

	started := make(chan bool, 1)
	_ = g.mailbox.post(ctx, func(gg *Gossiper) {
		gg.mu.Lock()
		defer gg.mu.Unlock()
		if r, ok := gg.rounds[peer]; ok && !roundFinished(r.State) {
			started <- false
			return
		}
		gg.rounds[peer] = NewInitiatorRound(peer, gg.clk.Now(), gg.cfg.RoundTimeout)
		gg.cfg.Metrics.observeRoundStart(true)
		started <- true
	})
	if ok := <-started; !ok {
		return // a round with this peer is already outstanding
	}

	digests := BuildDigests(g.table)
	ack, err := g.transport.SendSyn(ctx, peer, SynPacket{ClusterID: g.cfg.ClusterID, Sender: g.local, Digests: digests})
	if err != nil {
		g.recordDrop(err)
		g.abortRound(ctx, peer)
		return
	}

	if err := g.applyRemoteMerge(ctx, ack.DeltaStates); err != nil {
		g.recordDrop(err)
		g.abortRound(ctx, peer)
		return
	}

	fulfillment := FulfillRequests(g.table, ack.RequestDigests)

	var finishErr error
	_ = g.mailbox.post(ctx, func(gg *Gossiper) {
		gg.mu.Lock()
		r := gg.rounds[peer]
		gg.mu.Unlock()
		if r == nil {
			finishErr = newInternalError("initiate-round", fmt.Errorf("round for %s vanished before ACK", peer))
			return
		}
		finishErr = r.OnAck()
	})
	if finishErr != nil {
		g.recordDrop(finishErr)
		g.abortRound(ctx, peer)
		return
	}

	if err := g.transport.SendAck2(ctx, peer, Ack2Packet{Sender: g.local, DeltaStates: fulfillment}); err != nil {
		g.recordDrop(err)
	}

	g.fd.Observe(peer, g.clk.Now())
	_ = g.mailbox.post(ctx, func(gg *Gossiper) { gg.markLive(peer) })
}

// HandleSyn is the responder side, invoked by the transport layer when a
// SYN arrives from peer. It reconciles the peer's digests against the
// local table and returns the ACK payload (requests + deltas) to send
// back; table merges and round bookkeeping happen on the executor.
func (g *Gossiper) HandleSyn(ctx context.Context, peer NodeID, syn SynPacket) (AckPacket, error) {
	if syn.ClusterID != "" && g.cfg.ClusterID != "" && syn.ClusterID != g.cfg.ClusterID {
		err := newInternalError("handle-syn", fmt.Errorf("cluster id mismatch: got %q want %q", syn.ClusterID, g.cfg.ClusterID))
		g.recordDrop(err)
		return AckPacket{}, err
	}

	done := make(chan struct{})
	_ = g.mailbox.post(ctx, func(gg *Gossiper) {
		defer close(done)
		gg.mu.Lock()
		gg.rounds[peer] = NewResponderRound(peer, gg.clk.Now(), gg.cfg.RoundTimeout)
		gg.cfg.Metrics.observeRoundStart(false)
		gg.mu.Unlock()
	})
	<-done

	reqs, deltas := Reconcile(g.table, syn.Digests)
	g.fd.Observe(peer, g.clk.Now())
	_ = g.mailbox.post(ctx, func(gg *Gossiper) { gg.markLive(peer) })

	return AckPacket{RequestDigests: reqs, DeltaStates: deltas}, nil
}

// HandleAck2 is the responder's final step: merge whatever the initiator
// sent back and close out the round.
func (g *Gossiper) HandleAck2(ctx context.Context, peer NodeID, ack2 Ack2Packet) error {
	if err := g.applyRemoteMerge(ctx, ack2.DeltaStates); err != nil {
		g.recordDrop(err)
		return err
	}

	var transitionErr error
	_ = g.mailbox.post(ctx, func(gg *Gossiper) {
		gg.mu.Lock()
		r := gg.rounds[peer]
		gg.mu.Unlock()
		if r == nil {
			transitionErr = newInternalError("handle-ack2", fmt.Errorf("no outstanding round for %s", peer))
			return
		}
		transitionErr = r.OnAck2()
	})
	if transitionErr != nil {
		g.recordDrop(transitionErr)
	}
	return transitionErr
}

// applyRemoteMerge runs Table.ApplyRemote for every entry of deltas (the
// peer's own state and any third-party nodes, such as those surfaced by
// Reconcile's "local-only offer" rule) on the executor goroutine — the
// only goroutine that is ever allowed to mutate Table — notifies listeners
// of the resulting changes from there, and blocks until the merge has
// actually been applied, so callers see a post-merge table.
func (g *Gossiper) applyRemoteMerge(ctx context.Context, deltas map[NodeID]*NodeState) error {
	done := make(chan struct{})
	if err := g.mailbox.post(ctx, func(gg *Gossiper) {
		defer close(done)
		var changed []ChangedKey
		for id, ns := range deltas {
			changed = append(changed, gg.table.ApplyRemote(id, ns)...)
		}
		gg.notifyChanges(changed)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gossiper) abortRound(ctx context.Context, peer NodeID) {
	_ = g.mailbox.post(ctx, func(gg *Gossiper) {
		gg.mu.Lock()
		defer gg.mu.Unlock()
		if r, ok := gg.rounds[peer]; ok {
			r.Expire()
			gg.cfg.Metrics.RoundsTimedOut.Inc()
		}
	})
}

// expireOverdueRounds runs on the executor once per tick, marking any
// round past its soft deadline as Expired per §4.5 ("no state is rolled
// back").
func (g *Gossiper) expireOverdueRounds() {
	g.mu.Lock()
	now := g.clk.Now()
	var expired []NodeID
	for peer, r := range g.rounds {
		if r.TimedOut(now) {
			r.Expire()
			g.cfg.Metrics.RoundsTimedOut.Inc()
			expired = append(expired, peer)
		}
	}
	g.mu.Unlock()
	// markDown notifies listeners, which takes g.mu, so it runs after the
	// round map lock is released.
	for _, peer := range expired {
		g.markDown(peer)
	}
}

func roundFinished(s RoundState) bool { return s == RoundDone || s == RoundExpired }

// markLive/markDown translate FailureDetector suspicion into the
// Table's liveness flag and drive Subscribe notifications for
// status-change listeners, matching the Gossiper's job of answering
// "are they alive?" beyond raw gossip silence (gossip.go's header comment).
func (g *Gossiper) markLive(id NodeID) {
	if g.table.markAlive(id, g.clk.Now()) {
		g.notifyChanges([]ChangedKey{{NodeID: id, Key: StateStatus}})
	}
}

func (g *Gossiper) markDown(id NodeID) {
	if g.table.markDown(id) {
		g.notifyChanges([]ChangedKey{{NodeID: id, Key: StateStatus}})
	}
}

// updateSuspectedGauge recomputes SuspectedDown by asking the failure
// detector about every known peer. Phi grows continuously between
// heartbeats rather than only on a merge, so unlike TableSize this can't
// just be kept current from notifyChanges — it is instead resampled once
// per round period from tickLoop.
func (g *Gossiper) updateSuspectedGauge() {
	now := g.clk.Now()
	var suspected int
	g.table.forEach(func(id NodeID, ns *NodeState) {
		if id == g.local {
			return
		}
		if g.fd.Suspected(id, now) {
			suspected++
		}
	})
	g.cfg.Metrics.SuspectedDown.Set(float64(suspected))
}

// recordDrop classifies err into a reason label (§7): codec for a wire
// decode/encode failure, internal for a local invariant violation, and
// transport for anything else, then increments the packets-dropped
// counter accordingly.
func (g *Gossiper) recordDrop(err error) {
	var codecErr *CodecError
	var internalErr *InternalError
	switch {
	case errors.As(err, &codecErr):
		g.cfg.Metrics.observeDrop("codec")
	case errors.As(err, &internalErr):
		g.cfg.Metrics.observeDrop("internal")
	default:
		g.cfg.Metrics.observeDrop("transport")
	}
}

// RecordDrop is recordDrop exported for transport implementations (e.g.
// transport.GRPC) that reject an undecodable packet before it ever reaches
// HandleSyn/HandleAck2, so a decode failure is still counted against the
// same labeled counter.
func (g *Gossiper) RecordDrop(err error) {
	g.recordDrop(err)
}

func (g *Gossiper) notifyChanges(changed []ChangedKey) {
	if len(changed) == 0 {
		return
	}
	snap := g.table.Snapshot()
	g.cfg.Metrics.observeTableSize(len(snap))
	g.mu.Lock()
	listeners := append([]Listener(nil), g.listeners...)
	g.mu.Unlock()
	for _, c := range changed {
		ns, ok := snap[c.NodeID]
		if !ok {
			continue
		}
		state, ok := ns.ApplicationState[c.Key]
		if !ok {
			continue
		}
		for _, l := range listeners {
			l(c.NodeID, c.Key, state)
		}
	}
}

// --- Membership ---

// LiveNodes returns the NodeIDs the FailureDetector currently does not
// suspect, local node excluded.
func (g *Gossiper) LiveNodes() []NodeID {
	now := g.clk.Now()
	var out []NodeID
	g.table.forEach(func(id NodeID, ns *NodeState) {
		if id == g.local {
			return
		}
		if ns.isAlive && !g.fd.Suspected(id, now) {
			out = append(out, id)
		}
	})
	return out
}

// DeadNodes returns the NodeIDs known to the table but currently suspected
// or marked down.
func (g *Gossiper) DeadNodes() []NodeID {
	now := g.clk.Now()
	var out []NodeID
	g.table.forEach(func(id NodeID, ns *NodeState) {
		if id == g.local {
			return
		}
		if !ns.isAlive || g.fd.Suspected(id, now) {
			out = append(out, id)
		}
	})
	return out
}

// Subscribe registers a listener invoked whenever a (NodeID, StateKey)
// entry changes. See the Listener doc comment for the must-not-block
// requirement.
func (g *Gossiper) Subscribe(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// BumpLocal publishes a new value for key under the local node, bumping
// the local heartbeat version. The mutation itself runs on the executor
// goroutine via the mailbox, like every other Table write; this call
// blocks until it has actually been applied. Wraps the result with the
// errors.Wrap convention used at package boundaries per §7.
func (g *Gossiper) BumpLocal(key StateKey, value AppState) error {
	done := make(chan struct{})
	var mutateErr error
	if err := g.mailbox.post(context.Background(), func(gg *Gossiper) {
		defer close(done)
		mutateErr = gg.table.BumpLocal(key, value)
	}); err != nil {
		return errors.Wrap(err, "gossip: bump local state")
	}
	<-done
	if mutateErr != nil {
		return errors.Wrap(mutateErr, "gossip: bump local state")
	}
	return nil
}

// Snapshot exposes the current table for read-only inspection (TUI,
// diagnostics) without routing through the mailbox.
func (g *Gossiper) Snapshot() map[NodeID]*NodeState { return g.table.Snapshot() }

// LocalNodeID returns the node this Gossiper represents.
func (g *Gossiper) LocalNodeID() NodeID { return g.local }

// MetricsHandler exposes this Gossiper's prometheus registry for a caller
// (node.Node) to serve over its own HTTP listener.
func (g *Gossiper) MetricsHandler() http.Handler { return g.cfg.Metrics.Handler() }

// Seed introduces a peer the Gossiper hasn't heard of yet via gossip: it
// is observed in the table with no heartbeat and isAlive=false, which
// puts it in DeadNodes()'s unreachable set so SelectPeers can pick it for
// an initial probing round rather than waiting for some third party to
// mention it first.
// Seed introduces id to the table without waiting for a gossip round,
// so SelectPeers has somewhere to dial before the first exchange ever
// completes. The insert itself runs on the executor goroutine like every
// other Table mutation; Seed does not wait for it, since nothing here
// needs the post-insert state back.
func (g *Gossiper) Seed(id NodeID) {
	if id == g.local {
		return
	}
	_ = g.mailbox.post(context.Background(), func(gg *Gossiper) {
		gg.table.Observe(id)
	})
}
