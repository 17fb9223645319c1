package epoll

import (
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// initialReadBuf is the starting capacity of a Connection's read buffer.
// It grows past this under a large message; it never shrinks back, since
// a reactor that churns small buffers for every short-lived connection
// pays more in allocator traffic than it saves in resident memory.
const initialReadBuf = 16384

// Connection is the per-socket I/O state machine: a read buffer that
// accumulates bytes until a framing predicate says a message is whole,
// and a write queue that drains across as many writable events as it
// takes. Nothing here blocks; every method is meant to be called from
// the single reactor goroutine between epoll_wait cycles.
//
// Grounded on original_source/src/client_state.rs: tryRead mirrors its
// read-until-EAGAIN loop and tryDrain mirrors flush_writes, carried over
// to Go's slice-of-cursor idiom instead of VecDeque<Vec<u8>>.
type Connection struct {
	fd       int
	id       uint64
	addr     net.Addr
	readBuf  []byte
	consumed int // leading bytes of readBuf already framed off by Reframe

	writeQueue   [][]byte
	writeHead    int // index into writeQueue[0] not yet written
	wantWritable bool
	closing      bool
	closeReason  Reason
}

func newConnection(fd int, id uint64, addr net.Addr) *Connection {
	return &Connection{
		fd:      fd,
		id:      id,
		addr:    addr,
		readBuf: make([]byte, 0, initialReadBuf),
	}
}

// Fd returns the raw file descriptor. Exposed for tests and for the
// reactor's own fd->id index; handlers never see it.
func (c *Connection) Fd() int { return c.fd }

// ID is the connection's permanent, never-reused identity.
func (c *Connection) ID() uint64 { return c.id }

// Addr is the peer address captured at accept time.
func (c *Connection) Addr() net.Addr { return c.addr }

// Pending returns the bytes read but not yet consumed via Reframe — the
// region the handler's is_data_complete predicate inspects.
func (c *Connection) Pending() []byte {
	return c.readBuf[c.consumed:]
}

// Reframe tells the connection that a handler consumed the first n
// bytes of Pending() without needing another read(2) call first — the
// remainder stays buffered and is re-offered to is_data_complete on the
// very next check, satisfying the "drain a pipelined burst in one
// readable event" testable property without widening the boolean
// is_data_complete signature.
func (c *Connection) Reframe(n int) {
	c.consumed += n
	if c.consumed == len(c.readBuf) {
		c.readBuf = c.readBuf[:0]
		c.consumed = 0
	}
}

// tryRead drains the socket edge-triggered-style: read in a loop until
// EAGAIN, EOF, or a real error. It returns the number of bytes newly
// appended to the pending region (not the whole buffer) so callers can tell "got
// nothing new" from "buffer already had data".
func (c *Connection) tryRead(sock io.Reader) (newBytes int, eof bool, err error) {
	for {
		if len(c.readBuf) == cap(c.readBuf) {
			grown := make([]byte, len(c.readBuf), cap(c.readBuf)*2)
			copy(grown, c.readBuf)
			c.readBuf = grown
		}

		free := c.readBuf[len(c.readBuf):cap(c.readBuf)]
		n, readErr := sock.Read(free)
		if n > 0 {
			c.readBuf = c.readBuf[:len(c.readBuf)+n]
			newBytes += n
		}

		if readErr != nil {
			if readErr == io.EOF {
				return newBytes, true, nil
			}
			if readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK {
				return newBytes, false, nil
			}
			if pe, ok := readErr.(*net.OpError); ok && pe.Timeout() {
				return newBytes, false, nil
			}
			return newBytes, false, os.NewSyscallError("read", readErr)
		}

		if n == 0 {
			// read(2) on a socket returns 0 bytes with no error only at
			// EOF; unix.Read never returns io.EOF itself.
			return newBytes, true, nil
		}
	}
}

// compact drops already-framed bytes whenever any are present, moving
// the pending region to the front of the buffer, so a long-lived
// connection that frames many small messages doesn't carry its whole
// history forever.
func (c *Connection) compact() {
	if c.consumed == 0 {
		return
	}
	remaining := copy(c.readBuf, c.readBuf[c.consumed:])
	c.readBuf = c.readBuf[:remaining]
	c.consumed = 0
}

// QueueWrite appends data to the write queue. Safe to call with an
// empty slice (a no-op) so handlers never need to check length first.
func (c *Connection) QueueWrite(data []byte) {
	if len(data) == 0 {
		return
	}
	c.writeQueue = append(c.writeQueue, data)
}

// HasPendingWrites reports whether flushing has more work to do.
func (c *Connection) HasPendingWrites() bool {
	return len(c.writeQueue) > 0
}

// QueuedBytes sums the unsent bytes across the whole write queue,
// including the partially-sent head chunk. Used for the optional
// write_queue_soft_limit backpressure check.
func (c *Connection) QueuedBytes() int {
	total := 0
	for i, chunk := range c.writeQueue {
		if i == 0 {
			total += len(chunk) - c.writeHead
		} else {
			total += len(chunk)
		}
	}
	return total
}

// tryDrain writes as much of the queue as the socket will accept right
// now. drained is true once the queue empties; it does not imply the
// connection should close — that decision belongs to the caller, which
// knows whether closing was requested.
func (c *Connection) tryDrain(sock io.Writer) (drained bool, err error) {
	for len(c.writeQueue) > 0 {
		head := c.writeQueue[0]
		n, writeErr := sock.Write(head[c.writeHead:])
		if n > 0 {
			c.writeHead += n
		}

		if writeErr != nil {
			if writeErr == unix.EAGAIN || writeErr == unix.EWOULDBLOCK {
				return false, nil
			}
			if pe, ok := writeErr.(*net.OpError); ok && pe.Timeout() {
				return false, nil
			}
			return false, os.NewSyscallError("write", writeErr)
		}

		if c.writeHead >= len(head) {
			c.writeQueue = c.writeQueue[1:]
			c.writeHead = 0
		} else {
			// Short write on a non-blocking socket: the kernel buffer is
			// full, further writes would just return EAGAIN too.
			return false, nil
		}
	}
	return true, nil
}

// MarkClosing records that the connection should be torn down once its
// write queue drains, rather than immediately — so a handler's final
// reply is not discarded by its own Close action. reason is what the
// eventual OnDisconnect call will report; a connection already marked
// closing keeps its original reason (the first cause wins).
func (c *Connection) MarkClosing(reason Reason) {
	if c.closing {
		return
	}
	c.closing = true
	c.closeReason = reason
}

func (c *Connection) Closing() bool { return c.closing }

// CloseReason reports the reason passed to MarkClosing. Meaningless
// when Closing() is false.
func (c *Connection) CloseReason() Reason { return c.closeReason }
