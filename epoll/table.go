package epoll

import (
	"github.com/epollkit/reactor/atomic"
	"github.com/epollkit/reactor/container"
)

// firstClientID is the first id handed to a real connection. Ids below
// it are never issued, so 0 can serve as "no connection" (see
// Reactor.Broadcast). The listener is told apart by its fd, not by an id
// (see bindings.go).
const firstClientID = 1024

// table is the connection table: a client_id -> *Connection map backed
// by the corpus's sharded container.Map, plus the allocator that hands
// out ids. Sharding is wasted on a single-threaded reactor but this is
// the keyed-collection type the rest of the corpus already uses for
// exactly this shape of problem, and Range gives broadcast its
// iteration without a second data structure.
type table struct {
	conns  *container.Map
	nextID atomic.Uint64
}

func newTable() *table {
	t := &table{conns: container.NewMap()}
	t.nextID.Set(firstClientID)
	return t
}

// allocate reserves the next id without yet inserting a Connection —
// callers build the Connection (which needs the id) and then insert it.
// nextID starts at firstClientID and Incr returns the post-increment
// value, so the id handed out is one less than what Incr returns.
func (t *table) allocate() uint64 {
	return t.nextID.Incr(1) - 1
}

func (t *table) insert(c *Connection) {
	t.conns.Set(c.id, c)
}

func (t *table) get(id uint64) (*Connection, bool) {
	v, ok := t.conns.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Connection), true
}

func (t *table) remove(id uint64) {
	t.conns.Delete(id)
}

func (t *table) len() uint64 {
	return t.conns.Length()
}

// Range visits every live connection. The visitor must not call insert
// or remove on this table.
func (t *table) Range(visit func(c *Connection) bool) {
	t.conns.Range(func(_, value interface{}) bool {
		return visit(value.(*Connection))
	})
}
