package epoll

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/epollkit/reactor/atomic"
)

// shutdownFlag is the idempotent "someone asked us to stop" latch from
// spec.md §4.F. atomic.Acquire already has exactly this one-shot
// semantics (grpc-boot's grace package used a bare channel send guarded
// by nothing, which double-closes under concurrent SIGINT+SIGTERM; the
// Acquire latch makes the second signal a no-op instead of a panic).
type shutdownFlag struct {
	latch atomic.Acquire
}

// requested reports whether trigger has ever been called. Polled once
// per epoll_wait cycle; never blocks.
func (f *shutdownFlag) requested() bool {
	return !f.latch.IsRelease()
}

// trigger sets the flag. Safe to call more than once and from a signal
// handler goroutine — only the first call has any effect.
func (f *shutdownFlag) trigger() {
	f.latch.Acquire()
}

// watchSignals wires SIGINT and SIGTERM to flag, mirroring the
// signal.Notify idiom the grace package used for its own clearChan,
// minus the SIGHUP fork-and-reexec path: this reactor has nothing
// equivalent to hand a listening fd across exec, so a restart is just
// "stop this process, start another one listening on the same address".
func watchSignals(flag *shutdownFlag) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			flag.trigger()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
