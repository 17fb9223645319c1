// Package epoll is the reactor core: the syscall bindings, the
// per-connection I/O state machine, the connection table, the handler
// ABI and the event loop that ties them together. Everything here runs
// on a single goroutine — the one that calls Reactor.Run.
package epoll

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Interest flags passed to the poller's add/modify calls. Mirrors the kernel's
// own bits so callers never have to translate.
const (
	Readable    = unix.EPOLLIN
	Writable    = unix.EPOLLOUT
	PeerHangup  = unix.EPOLLRDHUP
	EdgeTrigger = unix.EPOLLET
)

// poller wraps one epoll instance. All methods preserve errno via
// os.NewSyscallError so a caller can tell a bind failure from a listen
// failure from an epoll_ctl failure.
type poller struct {
	fd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &poller{fd: fd}, nil
}

// add/modify tag the kernel event with fd itself rather than a separate
// cookie: epoll_event's 8-byte data union is exposed by x/sys/unix as an
// int32 Fd field, too narrow for a free-standing 64-bit client id, and
// the fd is already a unique "which descriptor is this" tag for as long
// as the descriptor stays open. The handler-facing, never-reused 64-bit
// client_id is a separate value Connection carries (see connection.go);
// the reactor keeps its own fd->client_id index to translate one to the
// other after a readiness event comes back.
func (p *poller) add(fd int, events uint32) error {
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}))
}

func (p *poller) modify(fd int, events uint32) error {
	return os.NewSyscallError("epoll_ctl mod", unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}))
}

func (p *poller) remove(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

// wait blocks until at least one registered fd is ready, an EINTR-free
// timeout elapses, or a real error occurs. timeoutMs < 0 blocks forever.
func (p *poller) wait(events []unix.EpollEvent, timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.fd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	return n, nil
}

func (p *poller) close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// listen creates a non-blocking, close-on-exec TCP listener bound to
// addr with SO_REUSEADDR set, per spec.md §4.E "Initialization". The
// returned address is the one the kernel bound, so a port-0 addr reports
// the ephemeral port actually assigned.
func listen(addr string) (fd int, localAddr net.Addr, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, err
	}

	family := unix.AF_INET
	var sockaddr unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa.Addr[:], ip4)
		sockaddr = sa
	} else {
		family = unix.AF_INET6
		sa := &unix.SockaddrInet6{Port: tcpAddr.Port}
		if tcpAddr.IP != nil {
			copy(sa.Addr[:], tcpAddr.IP.To16())
		}
		sockaddr = sa
	}

	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, os.NewSyscallError("socket", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, nil, os.NewSyscallError("setsockopt(SO_REUSEADDR)", err)
	}

	if err = unix.Bind(fd, sockaddr); err != nil {
		_ = unix.Close(fd)
		return -1, nil, os.NewSyscallError("bind", err)
	}

	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, nil, os.NewSyscallError("listen", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return -1, nil, os.NewSyscallError("getsockname", err)
	}

	return fd, sockAddrToNetAddr(bound), nil
}

// acceptOne accepts a single pending connection, leaving it non-blocking
// and close-on-exec. Returns a bare unix.EAGAIN when the accept queue
// is drained — the caller loops on this to empty an accept storm in one
// epoll cycle (spec.md §8 "Accept storm").
func acceptOne(listenFd int) (fd int, addr unix.Sockaddr, err error) {
	fd, addr, err = unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, nil, err
	}
	return fd, addr, nil
}

func sockAddrToNetAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
