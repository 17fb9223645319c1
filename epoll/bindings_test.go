package epoll

import (
	"net"
	"testing"

	"golang.org/x/sys/unix"
)

func TestListenBindsEphemeralPort(t *testing.T) {
	fd, addr, err := listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer unix.Close(fd)

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("want *net.TCPAddr, got %T", addr)
	}
	if tcpAddr.Port == 0 {
		t.Fatal("want a real ephemeral port, got 0")
	}
}

func TestPollerAddModifyRemove(t *testing.T) {
	fd, _, err := listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer unix.Close(fd)

	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller: %v", err)
	}
	defer p.close()

	if err := p.add(fd, Readable|EdgeTrigger); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.modify(fd, Readable|Writable|EdgeTrigger); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if err := p.remove(fd); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// removing twice must not error, per ENOENT tolerance in remove().
	if err := p.remove(fd); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
