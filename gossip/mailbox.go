package gossip

import "context"

/*
Mailbox is the single-goroutine event funnel every Table mutation and
Round-map update passes through (§5): exactly one "gossip executor"
goroutine ever takes Table.mu for a write or touches g.rounds — gRPC
handlers, the periodic ticker, and callers of BumpLocal only ever push an
event onto this channel and, where a reply is expected, wait on a
response channel embedded in the event; none of them call
Table.ApplyRemote/BumpLocal/TickHeartbeat directly. This mirrors
denizetkar-gossip-protocol's CentralController.MsgInQueue plus its
dispatch table of InternalMessageType -> handler func, generalized from a
fixed eventType enum to a single func(*Gossiper) that the executor just
calls inline — the dispatch is in the closure, not a separate table,
since every event here already carries its own handler.

FailureDetector is deliberately not funneled through here: it carries its
own internal mutex (failure_detector.go) and is observed/queried directly
from whichever goroutine receives a heartbeat or asks Suspected, since its
bookkeeping never needs to serialize with a Table mutation.
*/

// eventFunc is one unit of work the executor runs with exclusive write
// access to the Gossiper's Table and Round set.
type eventFunc func(g *Gossiper)

// mailbox is the buffered channel backing the executor's event queue.
type mailbox struct {
	events chan eventFunc
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{events: make(chan eventFunc, capacity)}
}

// post enqueues fn for the executor. If ctx is cancelled before fn is
// accepted, post returns ctx.Err() without running fn.
func (m *mailbox) post(ctx context.Context, fn eventFunc) error {
	select {
	case m.events <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drains the mailbox until ctx is cancelled, invoking each event with
// exclusive ownership of g's mutable state. This is the body of the single
// gossip executor goroutine.
func (m *mailbox) run(ctx context.Context, g *Gossiper) {
	for {
		select {
		case fn := <-m.events:
			fn(g)
		case <-ctx.Done():
			return
		}
	}
}
