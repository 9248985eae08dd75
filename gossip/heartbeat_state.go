package gossip

import "sync"

/*
Reference: https://github.com/apache/cassandra/blob/trunk/src/java/org/apache/cassandra/gms/HeartBeatState.java

Heartbeat is the (generation, version) pair described in the data model:
generation is assigned once at process start and never decreases for a
given NodeID; version is bumped on every local state change (including bare
heartbeat ticks that carry no application-state change).
*/

// Heartbeat is an immutable snapshot of a node's (generation, version) pair.
// Safe to copy and send over the wire.
type Heartbeat struct {
	Generation int64
	Version    int64
}

// Less implements the documented ordering: a < b iff a.Generation <
// b.Generation, or generations are equal and a.Version < b.Version.
func (a Heartbeat) Less(b Heartbeat) bool {
	if a.Generation != b.Generation {
		return a.Generation < b.Generation
	}
	return a.Version < b.Version
}

// localHeartbeat is the mutable, mutex-guarded counter backing the local
// node's own Heartbeat. Every other NodeID's heartbeat arrives as an
// immutable Heartbeat value inside a remote NodeState and is never mutated
// in place.
type localHeartbeat struct {
	mu         sync.RWMutex
	generation int64
	version    int64
}

func newLocalHeartbeat(generation int64) *localHeartbeat {
	return &localHeartbeat{generation: generation, version: 0}
}

// bump increments the version and returns the resulting snapshot.
func (h *localHeartbeat) bump() Heartbeat {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	return Heartbeat{Generation: h.generation, Version: h.version}
}

func (h *localHeartbeat) snapshot() Heartbeat {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Heartbeat{Generation: h.generation, Version: h.version}
}
