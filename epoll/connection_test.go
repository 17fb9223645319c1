package epoll

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"
)

type fakeReader struct {
	chunks [][]byte
	i      int
	eagain bool
}

func (f *fakeReader) Read(p []byte) (int, error) {
	if f.i >= len(f.chunks) {
		if f.eagain {
			return 0, unix.EAGAIN
		}
		return 0, nil // EOF shape: 0, nil
	}
	n := copy(p, f.chunks[f.i])
	f.i++
	return n, nil
}

func TestConnectionTryReadAccumulates(t *testing.T) {
	c := newConnection(42, 1024, nil)
	r := &fakeReader{chunks: [][]byte{[]byte("hel"), []byte("lo")}, eagain: true}

	n, eof, err := c.tryRead(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eof {
		t.Fatal("want eof=false, got true")
	}
	if n != 5 {
		t.Fatalf("want 5 new bytes, got %d", n)
	}
	if string(c.Pending()) != "hello" {
		t.Fatalf("want hello, got %q", c.Pending())
	}
}

func TestConnectionTryReadEOF(t *testing.T) {
	c := newConnection(42, 1024, nil)
	r := &fakeReader{chunks: [][]byte{[]byte("hi")}}

	n, eof, err := c.tryRead(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eof {
		t.Fatal("want eof=true, got false")
	}
	if n != 2 {
		t.Fatalf("want 2 new bytes, got %d", n)
	}
}

func TestConnectionReframeLeavesRemainder(t *testing.T) {
	c := newConnection(42, 1024, nil)
	c.readBuf = append(c.readBuf, []byte("AAAABBBB")...)

	c.Reframe(4)
	if string(c.Pending()) != "BBBB" {
		t.Fatalf("want BBBB, got %q", c.Pending())
	}

	c.compact()
	if string(c.Pending()) != "BBBB" {
		t.Fatalf("want BBBB after compact, got %q", c.Pending())
	}
	if c.consumed != 0 {
		t.Fatalf("want consumed reset to 0, got %d", c.consumed)
	}
}

func TestConnectionReframeWholeBuffer(t *testing.T) {
	c := newConnection(42, 1024, nil)
	c.readBuf = append(c.readBuf, []byte("done")...)

	c.Reframe(4)
	if len(c.Pending()) != 0 {
		t.Fatalf("want empty pending, got %q", c.Pending())
	}
}

func TestConnectionQueueWriteAndDrain(t *testing.T) {
	c := newConnection(42, 1024, nil)
	c.QueueWrite([]byte("ab"))
	c.QueueWrite([]byte("cd"))

	if got := c.QueuedBytes(); got != 4 {
		t.Fatalf("want 4 queued bytes, got %d", got)
	}

	var buf bytes.Buffer
	drained, err := c.tryDrain(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drained {
		t.Fatal("want drained=true, got false")
	}
	if buf.String() != "abcd" {
		t.Fatalf("want abcd, got %q", buf.String())
	}
	if c.HasPendingWrites() {
		t.Fatal("want no pending writes after drain")
	}
}

type shortWriter struct {
	allow int
	buf   bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > w.allow {
		n = w.allow
	}
	if n == 0 {
		return 0, unix.EAGAIN
	}
	w.buf.Write(p[:n])
	w.allow -= n
	return n, nil
}

func TestConnectionTryDrainPartial(t *testing.T) {
	c := newConnection(42, 1024, nil)
	c.QueueWrite([]byte("hello world"))

	w := &shortWriter{allow: 5}
	drained, err := w.drainInto(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drained {
		t.Fatal("want drained=false after partial write")
	}
	if c.QueuedBytes() != 6 {
		t.Fatalf("want 6 bytes left queued, got %d", c.QueuedBytes())
	}
}

func (w *shortWriter) drainInto(c *Connection) (bool, error) {
	return c.tryDrain(w)
}
