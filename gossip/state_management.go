package gossip

/*
State Management and Merging

This file implements ApplyRemote, the merge rule from §4.2's invariants:

  - a remote NodeState with a strictly greater generation replaces the
    local one wholesale, ApplicationState included (a new incarnation); one
    with a smaller generation is ignored.
  - with an equal generation, the heartbeat is replaced only if the remote
    version is strictly greater — i.e. observed heartbeats never regress —
    and ApplicationState entries are merged per-key either way: an entry is
    only overwritten if the remote entry's version is strictly greater than
    the local entry's version for that key. This is what makes
    apply_remote(S); apply_remote(S) idempotent (property 6 in §8): the
    second call sees remote versions equal to what's already stored and
    changes nothing.

ApplyRemote never runs on a goroutine other than the gossip executor
(see mailbox.go / gossip.go), so no locking is needed beyond what Table
already does for its own bookkeeping (isAlive/lastSeen) and for Snapshot()
readers running concurrently.
*/

// ChangedKey identifies one (NodeID, StateKey) pair that a merge actually
// changed, for the subscriber notification path.
type ChangedKey struct {
	NodeID NodeID
	Key    StateKey
}

// ApplyRemote merges a remote NodeState received from the peer identified
// by id into the table, and returns the set of (nodeID, key) pairs that
// were actually changed by the merge (for change notifications).
func (t *Table) ApplyRemote(id NodeID, remote *NodeState) []ChangedKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	local, exists := t.nodes[id]
	if !exists {
		// First time we've heard of this node: accept wholesale.
		t.nodes[id] = remote.clone()
		changed := make([]ChangedKey, 0, len(remote.ApplicationState))
		for k := range remote.ApplicationState {
			changed = append(changed, ChangedKey{NodeID: id, Key: k})
		}
		return changed
	}

	if remote.Heartbeat.Generation > local.Heartbeat.Generation {
		// Restart: the old incarnation's state is discarded wholesale,
		// including every ApplicationState entry, since none of it can be
		// trusted to still describe the new incarnation.
		wasAlive := local.isAlive
		*local = *remote.clone()
		local.isAlive = wasAlive || remote.isAlive
		changed := make([]ChangedKey, 0, len(local.ApplicationState))
		for k := range local.ApplicationState {
			changed = append(changed, ChangedKey{NodeID: id, Key: k})
		}
		return changed
	}

	if remote.Heartbeat.Generation < local.Heartbeat.Generation {
		// Stale generation: ignore entirely.
		return nil
	}

	// Same generation: accept the heartbeat only if strictly newer, then
	// merge ApplicationState per key regardless (a remote entry can be
	// newer even if, for whatever reason, the two sides raced on the
	// overall heartbeat comparison).
	var changed []ChangedKey
	if remote.Heartbeat.Version > local.Heartbeat.Version {
		local.Heartbeat = remote.Heartbeat
	}

	for key, remoteState := range remote.ApplicationState {
		localState, ok := local.ApplicationState[key]
		if !ok || remoteState.Version > localState.Version {
			local.ApplicationState[key] = remoteState
			changed = append(changed, ChangedKey{NodeID: id, Key: key})
		}
	}

	if remote.isAlive {
		local.isAlive = true
	}
	if remote.lastSeenMonotonic.After(local.lastSeenMonotonic) {
		local.lastSeenMonotonic = remote.lastSeenMonotonic
	}

	return changed
}
