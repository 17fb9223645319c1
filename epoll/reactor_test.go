package epoll

import (
	"bytes"
	"net"
	"testing"
	"time"
)

type lineEchoHandler struct {
	connected    chan uint64
	disconnected chan Reason
}

func (h *lineEchoHandler) OnConnection(id uint64, addr net.Addr) (HandlerAction, error) {
	if h.connected != nil {
		h.connected <- id
	}
	return None(), nil
}

func (h *lineEchoHandler) IsDataComplete(buf []byte) bool {
	return bytes.IndexByte(buf, '\n') >= 0
}

func (h *lineEchoHandler) OnMessage(id uint64, conn *Connection) (HandlerAction, error) {
	pending := conn.Pending()
	i := bytes.IndexByte(pending, '\n')
	line := append([]byte{}, pending[:i+1]...)
	conn.Reframe(i + 1)
	return Reply(line), nil
}

func (h *lineEchoHandler) OnDisconnect(id uint64, reason Reason) {
	if h.disconnected != nil {
		h.disconnected <- reason
	}
}

func startTestReactor(t *testing.T, h EventHandler) (*Reactor, func()) {
	t.Helper()
	r, err := New("127.0.0.1:0", h, Config{WaitTimeoutMs: 50, ShutdownDrainTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.RunWithoutSignals()
	}()

	return r, func() {
		r.Shutdown()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("reactor did not shut down in time")
		}
	}
}

func TestReactorEchoRoundTrip(t *testing.T) {
	h := &lineEchoHandler{connected: make(chan uint64, 1)}
	r, stop := startTestReactor(t, h)
	defer stop()

	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-h.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnection never fired")
	}

	if _, err := conn.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 64)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello\n" {
		t.Fatalf("want hello\\n echoed back, got %q", buf[:n])
	}
}

func TestReactorDisconnectFiresOnDisconnect(t *testing.T) {
	h := &lineEchoHandler{
		connected:    make(chan uint64, 1),
		disconnected: make(chan Reason, 1),
	}
	r, stop := startTestReactor(t, h)
	defer stop()

	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case <-h.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnection never fired")
	}

	_ = conn.Close()

	select {
	case reason := <-h.disconnected:
		if reason != ReasonPeerClosed {
			t.Fatalf("want ReasonPeerClosed, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect never fired after peer close")
	}
}

func TestReactorShutdownFiresServerShutdown(t *testing.T) {
	h := &lineEchoHandler{
		connected:    make(chan uint64, 1),
		disconnected: make(chan Reason, 1),
	}
	r, stop := startTestReactor(t, h)

	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-h.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnection never fired")
	}

	stop()

	select {
	case reason := <-h.disconnected:
		if reason != ReasonServerShutdown {
			t.Fatalf("want ReasonServerShutdown, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect never fired during shutdown drain")
	}
}

func TestReactorBroadcast(t *testing.T) {
	h := &lineEchoHandler{connected: make(chan uint64, 2)}
	r, stop := startTestReactor(t, h)
	defer stop()

	a, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	for i := 0; i < 2; i++ {
		select {
		case <-h.connected:
		case <-time.After(2 * time.Second):
			t.Fatal("OnConnection never fired for both peers")
		}
	}

	r.Broadcast(0, []byte("hi\n"))

	for _, c := range []net.Conn{a, b} {
		buf := make([]byte, 64)
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := c.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(buf[:n]) != "hi\n" {
			t.Fatalf("want hi\\n, got %q", buf[:n])
		}
	}
}
