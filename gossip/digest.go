package gossip

import "math/rand/v2"

/*
Digest Creation and Reconciliation

In the gossip protocol, digests are compact summaries of node states used
in the 3-phase exchange:

	SYN  -> send digest list (nodeId, generation, maxVersion)
	ACK  -> peer responds with "you're outdated on X, here's my newer state,
	        and by the way I need Y from you"
	ACK2 -> initiator sends the remaining newer states back

Digests let two nodes agree on what to exchange without shipping full state
up front.
*/

// Digest is the GossipDigest (C5): a compact, immutable summary of one
// node's state.
type Digest struct {
	NodeID     NodeID
	Generation int64
	MaxVersion int64
}

// BuildDigests snapshots every known node (local included, per §4.3 — the
// local node is stored in the table like any other so it is treated
// uniformly) and returns one Digest per node, shuffled so a peer receiving
// the SYN cannot infer local iteration order.
func BuildDigests(t *Table) []Digest {
	snap := t.Snapshot()
	digests := make([]Digest, 0, len(snap))
	for id, ns := range snap {
		digests = append(digests, Digest{
			NodeID:     id,
			Generation: ns.Heartbeat.Generation,
			MaxVersion: ns.maxVersion(),
		})
	}
	rand.Shuffle(len(digests), func(i, j int) { digests[i], digests[j] = digests[j], digests[i] })
	return digests
}

// Reconcile is the DigestReconciler (C6): the pure function at the heart of
// GossipRound. Given the local table and a list of digests received from a
// peer, it partitions each remote digest against the matching local entry
// per the case table in §4.4, and additionally offers any locally-known
// node absent from the remote digest list.
//
// It returns requestDigests (state to ask the peer for) and deltaStates
// (full or partial NodeState to send the peer), keyed by NodeID.
func Reconcile(local *Table, remoteDigests []Digest) (requestDigests []Digest, deltaStates map[NodeID]*NodeState) {
	seen := make(map[NodeID]bool, len(remoteDigests))
	requestDigests = make([]Digest, 0)
	deltaStates = make(map[NodeID]*NodeState)

	for _, remote := range remoteDigests {
		seen[remote.NodeID] = true

		localNS, ok := local.get(remote.NodeID)
		if !ok {
			// Case A (L missing): request full state.
			requestDigests = append(requestDigests, Digest{NodeID: remote.NodeID, MaxVersion: 0})
			continue
		}

		localGen := localNS.Heartbeat.Generation
		localMax := localNS.maxVersion()

		switch {
		case localGen > remote.Generation:
			// Case B: offer full state.
			deltaStates[remote.NodeID] = localNS.clone()

		case localGen < remote.Generation:
			// Case A (stale local generation): request full state.
			requestDigests = append(requestDigests, Digest{NodeID: remote.NodeID, MaxVersion: 0})

		case localMax > remote.MaxVersion:
			// Case C: send only the fragments newer than remote.MaxVersion.
			deltaStates[remote.NodeID] = filterNewerThan(localNS, remote.MaxVersion)

		case localMax < remote.MaxVersion:
			// Case D: request the delta above our own maxVersion.
			requestDigests = append(requestDigests, Digest{NodeID: remote.NodeID, Generation: localGen, MaxVersion: localMax})

			// Case E (equal): no output.
		}
	}

	// Any NodeID present locally but absent from the digest list is offered
	// as a full delta ("local-only" rule).
	local.forEach(func(id NodeID, ns *NodeState) {
		if !seen[id] {
			deltaStates[id] = ns.clone()
		}
	})

	return requestDigests, deltaStates
}

// filterNewerThan returns a NodeState containing only the ApplicationState
// fragments with version > minVersion. The heartbeat is always included:
// Case C sends "only the fragments of L with version > R.maxVersion", and
// the receiver needs the heartbeat to accept the delta at all.
func filterNewerThan(ns *NodeState, minVersion int64) *NodeState {
	out := &NodeState{
		Heartbeat:         ns.Heartbeat,
		ApplicationState:  make(map[StateKey]AppState),
		isAlive:           ns.isAlive,
		lastSeenMonotonic: ns.lastSeenMonotonic,
	}
	for k, v := range ns.ApplicationState {
		if v.Version > minVersion {
			out.ApplicationState[k] = v
		}
	}
	return out
}

// FulfillRequests answers a list of requestDigests (received in an ACK, or
// implied when satisfying the responder's ACK2 requests) from the local
// table: a request with MaxVersion == 0 wants full state (mirrors Case
// A/B); a non-zero MaxVersion wants only the delta above it (mirrors Case
// C/D — see property 3 in §8).
func FulfillRequests(local *Table, requests []Digest) map[NodeID]*NodeState {
	out := make(map[NodeID]*NodeState, len(requests))
	for _, req := range requests {
		ns, ok := local.get(req.NodeID)
		if !ok {
			continue
		}
		if req.MaxVersion == 0 {
			out[req.NodeID] = ns.clone()
		} else {
			out[req.NodeID] = filterNewerThan(ns, req.MaxVersion)
		}
	}
	return out
}
