package gossip

import (
	"errors"
	"fmt"
)

// Error kinds per the error-handling design: codec errors and internal
// invariant violations are sentinel-wrapped so callers can errors.Is() them;
// they never cause a packet or round to mutate committed state.
var (
	// ErrCorrupt means the wire stream ended unexpectedly or contained a
	// value that cannot be decoded (e.g. a negative length).
	ErrCorrupt = errors.New("gossip: corrupt wire data")

	// ErrUnsupportedVersion means the packet declared a protocol version
	// this build does not know how to decode.
	ErrUnsupportedVersion = errors.New("gossip: unsupported protocol version")

	// ErrUnknownTag means a batch codec tag byte was neither 0 (fast path)
	// nor 1 (slow path).
	ErrUnknownTag = errors.New("gossip: unknown versioned-value tag")

	// ErrNotLocal means BumpLocal was called for a NodeID that is not the
	// table owner's own node.
	ErrNotLocal = errors.New("gossip: not the local node")

	// ErrUnknownNode means an operation referenced a NodeID the table has
	// never observed.
	ErrUnknownNode = errors.New("gossip: unknown node")
)

// CodecError wraps ErrCorrupt/ErrUnsupportedVersion with context about what
// was being decoded. The offending packet is dropped by the caller; a
// CodecError never propagates to mutate EndpointStateTable state.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string { return fmt.Sprintf("gossip codec: %s: %v", e.Op, e.Err) }
func (e *CodecError) Unwrap() error { return e.Err }

func newCodecError(op string, cause error) *CodecError {
	return &CodecError{Op: op, Err: cause}
}

// InternalError marks an invariant violation (e.g. bump_local on a non-local
// node). The round or call that produced it is aborted; the table is left
// consistent because the mutation is rejected before it is applied.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("gossip internal: %s: %v", e.Op, e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }

func newInternalError(op string, cause error) *InternalError {
	return &InternalError{Op: op, Err: cause}
}
