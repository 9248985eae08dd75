package gossip

import "time"

/*
GossipRound (C7) is the three-way SYN/ACK/ACK2 exchange, re-expressed as an
explicit state machine driven by mailbox events rather than the "three-way
callback" control flow spec.md flags for re-architecture (§9): the same
RoundState/transition table serves both the initiator and the responder,
distinguished only by which state they are currently in.

	initiator: Idle -> SynSent -> Done
	responder: Idle -> (on SYN) -> AckReplied -> (on ACK2) -> Done

Multiple rounds against different peers run concurrently; they only
interact by serializing their table merges through Table's own locking
(§5), never by sharing a Round value.
*/

// RoundState is one state of the per-peer gossip round state machine.
type RoundState int

const (
	RoundIdle RoundState = iota
	RoundSynSent
	RoundAckReplied
	RoundDone
	RoundExpired
)

func (s RoundState) String() string {
	switch s {
	case RoundIdle:
		return "Idle"
	case RoundSynSent:
		return "SynSent"
	case RoundAckReplied:
		return "AckReplied"
	case RoundDone:
		return "Done"
	case RoundExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Round tracks one outstanding gossip exchange with one peer.
type Round struct {
	Peer      NodeID
	State     RoundState
	Initiator bool
	StartedAt time.Time
	Deadline  time.Time
}

// NewInitiatorRound starts a round as the initiator: SYN has been (or is
// about to be) sent.
func NewInitiatorRound(peer NodeID, now time.Time, timeout time.Duration) *Round {
	return &Round{Peer: peer, State: RoundSynSent, Initiator: true, StartedAt: now, Deadline: now.Add(timeout)}
}

// NewResponderRound starts a round as the responder: a SYN has just been
// received and an ACK is about to be sent.
func NewResponderRound(peer NodeID, now time.Time, timeout time.Duration) *Round {
	return &Round{Peer: peer, State: RoundAckReplied, Initiator: false, StartedAt: now, Deadline: now.Add(timeout)}
}

// OnAck transitions an initiator round upon receiving the peer's ACK. The
// caller is expected to have already merged the ACK's deltas into the
// table and computed the ACK2 payload before calling this — OnAck only
// records the state transition.
func (r *Round) OnAck() error {
	if !r.Initiator || r.State != RoundSynSent {
		return newInternalError("round-on-ack", errUnexpectedTransition(r.State, "ACK"))
	}
	r.State = RoundDone
	return nil
}

// OnAck2 transitions a responder round upon receiving the initiator's ACK2.
func (r *Round) OnAck2() error {
	if r.Initiator || r.State != RoundAckReplied {
		return newInternalError("round-on-ack2", errUnexpectedTransition(r.State, "ACK2"))
	}
	r.State = RoundDone
	return nil
}

// Expire marks a round abandoned after its deadline passes without
// progress. Per §4.5, no state is rolled back: partial merges from an ACK
// already applied to the table remain legitimate.
func (r *Round) Expire() {
	if r.State != RoundDone {
		r.State = RoundExpired
	}
}

// TimedOut reports whether now is past the round's soft deadline while it
// is still outstanding.
func (r *Round) TimedOut(now time.Time) bool {
	return (r.State == RoundSynSent || r.State == RoundAckReplied) && now.After(r.Deadline)
}

func errUnexpectedTransition(from RoundState, event string) error {
	return &roundTransitionError{from: from, event: event}
}

type roundTransitionError struct {
	from  RoundState
	event string
}

func (e *roundTransitionError) Error() string {
	return "unexpected " + e.event + " while round is " + e.from.String()
}
