package epoll

import "net"

// ActionKind distinguishes what a handler asked the reactor to do after
// on_connection/on_message returns. Grounded on
// original_source/src/handler.rs, trimmed to the core four variants —
// SendTo and SendToAll from the original Rust ABI have no counterpart
// here (see SPEC_FULL.md §3).
type ActionKind int

const (
	// ActionNone asks the reactor to do nothing beyond what the handler
	// already did through the Connection it was given.
	ActionNone ActionKind = iota
	// ActionReply queues Payload for the connection the event came from.
	ActionReply
	// ActionBroadcast queues Payload for every other live connection
	// (via Reactor.Broadcast); the originating connection does not
	// receive it.
	ActionBroadcast
	// ActionClose asks the reactor to mark the connection closing once
	// its write queue (including any Payload queued by this same
	// action) drains.
	ActionClose
)

// HandlerAction is the return value of OnConnection and OnMessage.
type HandlerAction struct {
	Kind    ActionKind
	Payload []byte
}

// None is the zero action: no reply, no close.
func None() HandlerAction { return HandlerAction{Kind: ActionNone} }

// Reply queues data to be written back to the originating connection.
func Reply(data []byte) HandlerAction { return HandlerAction{Kind: ActionReply, Payload: data} }

// Close asks the reactor to close the originating connection once any
// queued Payload has drained.
func Close(data []byte) HandlerAction { return HandlerAction{Kind: ActionClose, Payload: data} }

// Reason is why a connection was torn down, passed to OnDisconnect.
// Grounded on spec.md §4.D's reason taxonomy and §7's error-handling
// policy: I/O failures map to Error or PeerClosed, a handler-returned
// error or an ordinary handler-requested Close both map to
// HandlerRequested (the teardown originated with the handler, not the
// socket), and a graceful or catastrophic shutdown maps to ServerShutdown.
type Reason int

const (
	// ReasonPeerClosed marks a clean EOF: the peer closed its side.
	ReasonPeerClosed Reason = iota
	// ReasonError marks a socket error (ECONNRESET, EPIPE, a failed
	// read/write) or a write_queue_soft_limit backpressure close.
	ReasonError
	// ReasonHandlerRequested marks a teardown the handler itself asked
	// for: an ordinary Close action, or an error returned from
	// OnConnection/OnMessage.
	ReasonHandlerRequested
	// ReasonServerShutdown marks a teardown during the shutdown drain
	// phase or after a catastrophic epoll error.
	ReasonServerShutdown
)

// EventHandler is the ABI a reactor user implements. Every method runs
// on the reactor's single goroutine between epoll_wait cycles — none of
// them may block, per spec.md §5 "Concurrency Model".
type EventHandler interface {
	// OnConnection fires once, right after accept, before the first
	// read. addr is the peer's address as returned by accept(2). A
	// non-nil error aborts the connection immediately with reason
	// ReasonHandlerRequested; the returned HandlerAction's Payload (if
	// any) is still drained first, per spec.md §7 "Handler errors".
	OnConnection(id uint64, addr net.Addr) (HandlerAction, error)

	// IsDataComplete inspects the bytes framed so far (everything read
	// and not yet consumed via Connection.Reframe) and reports whether
	// they form one whole message. It must not mutate buf and must be
	// safe to call repeatedly against a buffer that only grows between
	// calls — the reactor re-runs it after every read and after every
	// Reframe.
	IsDataComplete(buf []byte) bool

	// OnMessage fires once IsDataComplete returns true. conn gives the
	// handler access to Pending()/Reframe so it can consume exactly the
	// bytes that belong to this message, leaving any pipelined
	// remainder for the next IsDataComplete check. A non-nil error
	// aborts the connection the same way OnConnection's does.
	OnMessage(id uint64, conn *Connection) (HandlerAction, error)

	// OnDisconnect fires once, after the socket is confirmed closed
	// (EOF, error, a local Close action finished draining, or shutdown
	// drain). The connection is already gone from the table by the time
	// this runs; id is informational only.
	OnDisconnect(id uint64, reason Reason)
}
