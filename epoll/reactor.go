package epoll

import (
	"log"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/epollkit/reactor/monitor"
)

// defaultMaxEventsPerCycle bounds the epoll_wait batch when Config
// doesn't set one. A busy reactor with more ready fds than this just
// sees them again on the next cycle.
const defaultMaxEventsPerCycle = 1024

// Config carries the handful of knobs the reactor needs that aren't
// part of the wire protocol. See config.Config for the file-backed
// superset that also covers the listen address; this is the
// reactor-internal subset so package epoll never imports package
// config and stays usable standalone.
type Config struct {
	// WaitTimeoutMs bounds how long epoll_wait blocks between checks of
	// the shutdown flag. 0 uses a sane default (1000ms).
	WaitTimeoutMs int
	// MaxEventsPerCycle bounds the epoll_wait batch size. 0 uses a sane
	// default (1024).
	MaxEventsPerCycle int
	// ShutdownDrainTimeout bounds how long Run keeps draining queued
	// writes after a shutdown request before closing everything outright.
	ShutdownDrainTimeout time.Duration
	// WriteQueueSoftLimit, when > 0, makes a connection whose queued
	// write bytes exceed it get a synthesized Close instead of growing
	// without bound. 0 disables the check.
	WriteQueueSoftLimit int
}

func (c Config) withDefaults() Config {
	if c.WaitTimeoutMs <= 0 {
		c.WaitTimeoutMs = 1000
	}
	if c.MaxEventsPerCycle <= 0 {
		c.MaxEventsPerCycle = defaultMaxEventsPerCycle
	}
	if c.ShutdownDrainTimeout <= 0 {
		c.ShutdownDrainTimeout = 5 * time.Second
	}
	return c
}

// Reactor owns the listener, the poller, the connection table and the
// handler. Run never returns until a shutdown is requested (or
// epoll_wait fails) and must be called from the goroutine that is
// meant to own every connection for the reactor's whole lifetime.
//
// Grounded on original_source/src/epoll_server.rs for the overall
// register/poll/dispatch/deregister shape, adapted to Go's
// slice-of-events EpollWait signature and to fd-as-tag registration
// (see bindings.go) instead of a client-id-carrying Event type.
type Reactor struct {
	cfg      Config
	handler  EventHandler
	listenFd int
	addr     net.Addr
	p        *poller
	table    *table
	fdToID   map[int]uint64
	shutdown shutdownFlag
	mon      *monitor.Monitor
}

// Metric identifiers exposed on the Reactor's Monitor. Order fixes
// their slot in the underlying array — add new counters just before
// metricCount (which sizes the array), never renumber the existing ones.
const (
	MetricAccepted monitor.Name = iota
	MetricDisconnected
	MetricBytesIn
	MetricBytesOut
	MetricWritesBlocked
	MetricHandlerErrors

	metricCount
)

// New binds addr and prepares the reactor. It does not start accepting
// connections until Run is called.
func New(addr string, handler EventHandler, cfg Config) (*Reactor, error) {
	cfg = cfg.withDefaults()

	listenFd, localAddr, err := listen(addr)
	if err != nil {
		return nil, err
	}

	p, err := newPoller()
	if err != nil {
		_ = unix.Close(listenFd)
		return nil, err
	}

	if err := p.add(listenFd, Readable|EdgeTrigger); err != nil {
		_ = unix.Close(listenFd)
		_ = p.close()
		return nil, err
	}

	return &Reactor{
		cfg:      cfg,
		handler:  handler,
		listenFd: listenFd,
		addr:     localAddr,
		p:        p,
		table:    newTable(),
		fdToID:   make(map[int]uint64),
		mon: monitor.NewMonitor("reactor", int(metricCount)),
	}, nil
}

// Addr returns the bound local address, useful when addr passed to New
// used port 0.
func (r *Reactor) Addr() net.Addr { return r.addr }

// Monitor exposes the reactor's counters for an operator to poll.
func (r *Reactor) Monitor() *monitor.Monitor { return r.mon }

// Shutdown requests a graceful stop. Safe to call from any goroutine,
// any number of times; only the first call has an effect. Run will
// drain queued writes for up to cfg.ShutdownDrainTimeout and then
// return.
func (r *Reactor) Shutdown() { r.shutdown.trigger() }

// Run installs SIGINT/SIGTERM handlers that call Shutdown, then blocks
// in the accept/dispatch loop until a shutdown is requested. Callers
// that want to manage signals themselves should call RunWithoutSignals
// instead and call Shutdown from their own handler.
func (r *Reactor) Run() error {
	stop := watchSignals(&r.shutdown)
	defer stop()
	return r.RunWithoutSignals()
}

// RunWithoutSignals is Run minus the signal.Notify wiring, for
// embedders that already own SIGINT/SIGTERM.
func (r *Reactor) RunWithoutSignals() error {
	defer func() {
		_ = r.p.close()
		_ = unix.Close(r.listenFd)
	}()

	events := make([]unix.EpollEvent, r.cfg.MaxEventsPerCycle)

	for !r.shutdown.requested() {
		n, err := r.p.wait(events, r.cfg.WaitTimeoutMs)
		if err != nil {
			// Catastrophic epoll error: spec.md §7 requires every
			// connection still observe ServerShutdown before the
			// reactor terminates.
			r.teardownAll(ReasonServerShutdown)
			return err
		}
		for i := 0; i < n; i++ {
			r.dispatch(int(events[i].Fd), events[i].Events)
		}
	}

	return r.drainAndClose()
}

// teardownAll disconnects every live connection with reason. Connections
// are collected before disconnecting any of them, since disconnect
// deletes from the same table.conns shard Range holds an RLock on.
func (r *Reactor) teardownAll(reason Reason) {
	var remaining []*Connection
	r.table.Range(func(c *Connection) bool {
		remaining = append(remaining, c)
		return true
	})
	for _, c := range remaining {
		r.disconnect(c, reason)
	}
}

// drainAndClose runs a final bounded round of epoll_wait cycles so
// connections with a Close action already queued get their last bytes
// out, then tears down whatever is left without further ceremony.
func (r *Reactor) drainAndClose() error {
	deadline := time.Now().Add(r.cfg.ShutdownDrainTimeout)
	events := make([]unix.EpollEvent, r.cfg.MaxEventsPerCycle)

	for r.table.len() > 0 && time.Now().Before(deadline) {
		remaining := deadline.Sub(time.Now())
		timeoutMs := int(remaining / time.Millisecond)
		if timeoutMs <= 0 {
			break
		}
		n, err := r.p.wait(events, timeoutMs)
		if err != nil {
			break
		}
		for i := 0; i < n; i++ {
			r.dispatch(int(events[i].Fd), events[i].Events)
		}
	}

	r.teardownAll(ReasonServerShutdown)
	return nil
}

func (r *Reactor) dispatch(fd int, events uint32) {
	if fd == r.listenFd {
		r.acceptAll()
		return
	}

	id, ok := r.fdToID[fd]
	if !ok {
		return // stale event for an fd we already tore down
	}
	conn, ok := r.table.get(id)
	if !ok {
		return
	}

	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		r.disconnect(conn, ReasonError)
		return
	}

	if events&(Readable|unix.EPOLLRDHUP) != 0 {
		r.handleReadable(conn)
		if _, stillOpen := r.table.get(id); !stillOpen {
			return
		}
	}

	if events&Writable != 0 {
		r.handleWritable(conn)
	}
}

func (r *Reactor) acceptAll() {
	for {
		fd, sa, err := acceptOne(r.listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			log.Printf("reactor: accept: %v", os.NewSyscallError("accept4", err))
			return
		}

		id := r.table.allocate()
		addr := sockAddrToNetAddr(sa)
		conn := newConnection(fd, id, addr)

		if err := r.p.add(fd, Readable|PeerHangup|EdgeTrigger); err != nil {
			log.Printf("reactor: register fd %d: %v", fd, err)
			_ = unix.Close(fd)
			continue
		}

		r.table.insert(conn)
		r.fdToID[fd] = id
		r.mon.Add(MetricAccepted, 1)

		action, err := r.handler.OnConnection(id, addr)
		if err != nil {
			r.applyHandlerError(conn, action)
			continue
		}
		r.apply(conn, action)
	}
}

func (r *Reactor) handleReadable(conn *Connection) {
	n, eof, err := conn.tryRead(fdReader{fd: conn.fd})
	if err != nil {
		r.disconnect(conn, ReasonError)
		return
	}
	if n > 0 {
		r.mon.Add(MetricBytesIn, uint64(n))
	}

	for {
		pending := conn.Pending()
		if len(pending) == 0 || !r.handler.IsDataComplete(pending) {
			break
		}
		before := len(conn.Pending())
		action, err := r.handler.OnMessage(conn.id, conn)
		if err != nil {
			// Per spec.md §7 "Handler errors": immediate teardown of
			// this connection only, never the reactor; stop processing
			// any further pipelined messages on it.
			r.applyHandlerError(conn, action)
			return
		}
		r.apply(conn, action)

		if _, stillOpen := r.table.get(conn.id); !stillOpen {
			return
		}
		conn.compact()

		// A handler that never calls Reframe is assumed to have
		// consumed the whole framed message itself.
		if len(conn.Pending()) == before {
			conn.Reframe(before)
			conn.compact()
		}
	}

	if eof {
		r.disconnect(conn, ReasonPeerClosed)
	}
}

func (r *Reactor) handleWritable(conn *Connection) {
	r.flush(conn)
}

// flush drains conn's write queue, rearms/disarms EPOLLOUT interest to
// match whether more writes are pending, and closes the connection once
// a pending MarkClosing has nothing left to send.
func (r *Reactor) flush(conn *Connection) {
	before := conn.QueuedBytes()
	drained, err := conn.tryDrain(fdWriter{fd: conn.fd})
	if err != nil {
		r.disconnect(conn, ReasonError)
		return
	}
	after := conn.QueuedBytes()
	if before > after {
		r.mon.Add(MetricBytesOut, uint64(before-after))
	}

	if drained {
		if conn.wantWritable {
			conn.wantWritable = false
			_ = r.p.modify(conn.fd, Readable|PeerHangup|EdgeTrigger)
		}
		if conn.Closing() {
			r.disconnect(conn, conn.CloseReason())
		}
		return
	}

	if !conn.wantWritable {
		conn.wantWritable = true
		_ = r.p.modify(conn.fd, Readable|Writable|PeerHangup|EdgeTrigger)
	}
}

// apply carries out a HandlerAction against the connection it came
// from. A Broadcast action's Payload is fanned out through Broadcast to
// every other live connection; the originating connection does not
// receive it.
func (r *Reactor) apply(conn *Connection, action HandlerAction) {
	switch action.Kind {
	case ActionNone:
		return
	case ActionReply:
		conn.QueueWrite(action.Payload)
	case ActionClose:
		conn.QueueWrite(action.Payload)
		conn.MarkClosing(ReasonHandlerRequested)
	case ActionBroadcast:
		r.Broadcast(conn.id, action.Payload)
	}

	r.checkBackpressure(conn)
	r.flush(conn)
}

// applyHandlerError carries out the HandlerAction that accompanied an
// error returned from OnConnection/OnMessage: any Payload is still
// queued and drained, but the connection is unconditionally torn down
// once it drains, with reason ReasonHandlerRequested — spec.md §7
// "Handler errors ... cause immediate teardown ... they never
// terminate the reactor."
func (r *Reactor) applyHandlerError(conn *Connection, action HandlerAction) {
	conn.QueueWrite(action.Payload)
	conn.MarkClosing(ReasonHandlerRequested)
	r.mon.Add(MetricHandlerErrors, 1)
	r.flush(conn)
}

// ReportHandlerError lets a handler record a failure in its own
// domain (a failed DB insert, a broker publish error) against the
// reactor's shared counters without aborting the connection — for a
// failure the handler wants to surface to the client and then tear
// down, return the error from OnMessage/OnConnection instead so the
// reactor can apply the correct ReasonHandlerRequested teardown.
func (r *Reactor) ReportHandlerError() {
	r.mon.Add(MetricHandlerErrors, 1)
}

// checkBackpressure marks a connection closing (reason ReasonError) when
// its queued writes exceed the configured soft limit, so a slow or
// stalled peer can't grow the write queue without bound. It runs when a
// payload is queued, before the following drain attempt.
func (r *Reactor) checkBackpressure(conn *Connection) {
	if r.cfg.WriteQueueSoftLimit <= 0 {
		return
	}
	if conn.QueuedBytes() > r.cfg.WriteQueueSoftLimit && !conn.Closing() {
		conn.MarkClosing(ReasonError)
		r.mon.Add(MetricWritesBlocked, 1)
	}
}

// Broadcast queues payload for every live connection except skipID (use
// 0, which is below firstClientID, to address everyone). An
// ActionBroadcast reply calls it with the sender's id; handlers may also
// call it directly.
func (r *Reactor) Broadcast(skipID uint64, payload []byte) {
	// Collect first: flush below can disconnect a drained, closing
	// connection, and that deletes from the same table.conns shard
	// Range would still be holding an RLock on.
	var recipients []*Connection
	r.table.Range(func(c *Connection) bool {
		if c.id != skipID {
			recipients = append(recipients, c)
		}
		return true
	})
	for _, c := range recipients {
		c.QueueWrite(payload)
		r.checkBackpressure(c)
		r.flush(c)
	}
}

// Range exposes read-only iteration for handlers that need to look up
// or walk live connections (presence lists, targeted sends).
func (r *Reactor) Range(visit func(id uint64, addr net.Addr) bool) {
	r.table.Range(func(c *Connection) bool {
		return visit(c.id, c.addr)
	})
}

func (r *Reactor) disconnect(conn *Connection, reason Reason) {
	r.closeConn(conn)
	r.handler.OnDisconnect(conn.id, reason)
}

func (r *Reactor) closeConn(conn *Connection) {
	_ = r.p.remove(conn.fd)
	_ = unix.Close(conn.fd)
	delete(r.fdToID, conn.fd)
	r.table.remove(conn.id)
	r.mon.Add(MetricDisconnected, 1)
}

// fdReader/fdWriter adapt a raw fd to io.Reader/io.Writer without
// pulling in net.FileConn's extra bookkeeping, since the reactor never
// wants the descriptor duplicated or wrapped in a deadline-capable net.Conn.
type fdReader struct{ fd int }

func (f fdReader) Read(p []byte) (int, error) {
	return unix.Read(f.fd, p)
}

type fdWriter struct{ fd int }

func (f fdWriter) Write(p []byte) (int, error) {
	return unix.Write(f.fd, p)
}
