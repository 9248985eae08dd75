package gossip

/*
NodeID:

	This must never change during the node's lifetime
	Remains unique cluster-wide
	Survives node restarts and re-joins
	Allows mapping to network endpoints
	Examples: uuid, {host}:{port}

Generation:

	This matches Cassandra's "Generation" field
	The node's start time in unix seconds
	Used as a monotonically increasing incarnation number
	If a node restarts, its generation will be greater than any prior value.
	Thus: Restart = new generation

	Why do we need this?
	Imagine NodeA crashes, gossip hasn't converged, then NodeA comes back.
	Other nodes might still think oldA is DOWN/SUSPECT.
	To override stale gossip, NodeA must present a strictly newer generation.

Version:

	This is a counter that increments on every local state change (including
	heartbeat ticks). It lets other nodes see:
		1. Is this node alive?
		2. Is it sending fresh info?
		3. Is this newer info than what I have?

	When receiving a remote heartbeat:
		If generation is larger, this overrides all old state.
		If generation is same but version is larger, this is a newer update.
		If version hasn't changed for X seconds -> suspicion / marking the node down.
*/

// NodeID is an opaque, stable cluster-wide node identity. Equality and
// hashing are Go's built-in string equality/hashing, which is total,
// matching the data-model requirement that NodeId equality be total.
type NodeID string

// StateKey names one entry of a node's ApplicationState map. Left as an
// open string type, rather than a fixed enum, so collaborators outside this
// package (the MVCC storage layer, DDL layer) can mint their own keys
// without touching this package.
type StateKey string

// Reserved application-state keys used by the membership layer itself.
// Other subsystems are free to define additional StateKey values.
const (
	StateStatus    StateKey = "STATUS"
	StateRPCAddr   StateKey = "RPC_ADDRESS"
	StateSchemaVer StateKey = "SCHEMA_VERSION"
)

// Status values stored under StateStatus.
const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)
