package config

import (
	"context"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/epollkit/reactor/atomic"
)

// LiveWriteQueueLimit watches a single etcd key and keeps an
// atomic.Uint64 in sync with its value, readable through Get. Nothing
// in package epoll reads it: a running Reactor keeps the
// WriteQueueSoftLimit it was created with. write_queue_soft_limit is
// the one field SPEC_FULL.md calls out as worth adjusting live; nothing
// else in Config changes meaning while connections are already open.
//
// Trimmed from the teacher's etcd.Client: that type was a generic
// multi-key, multi-deserializer cache (one watch per config prefix,
// pluggable unmarshalers, a get/put/delete CRUD surface). This reactor
// only ever needs one key, and its value is always a plain integer, so
// the cache/deserializer machinery is dead weight here — see DESIGN.md.
type LiveWriteQueueLimit struct {
	current atomic.Uint64
	client  *clientv3.Client
}

// WatchWriteQueueLimit connects to etcd, seeds current from whatever
// value the key holds right now (if any), and keeps watching for
// updates until ctx is cancelled.
func WatchWriteQueueLimit(ctx context.Context, cfg EtcdConfig, initial int) (*LiveWriteQueueLimit, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, err
	}

	l := &LiveWriteQueueLimit{client: cli}
	l.current.Set(uint64(initial))

	getCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	resp, err := cli.Get(getCtx, cfg.WriteQueueLimitKey)
	cancel()
	if err == nil && len(resp.Kvs) > 0 {
		if v, perr := strconv.ParseUint(string(resp.Kvs[0].Value), 10, 64); perr == nil {
			l.current.Set(v)
		}
	}

	go l.watch(ctx, cfg.WriteQueueLimitKey)
	return l, nil
}

func (l *LiveWriteQueueLimit) watch(ctx context.Context, key string) {
	watchCh := l.client.Watch(ctx, key)
	for resp := range watchCh {
		for _, ev := range resp.Events {
			switch ev.Type {
			case clientv3.EventTypePut:
				if v, err := strconv.ParseUint(string(ev.Kv.Value), 10, 64); err == nil {
					l.current.Set(v)
				}
			case clientv3.EventTypeDelete:
				l.current.Set(0)
			}
		}
	}
}

// Get returns the most recently observed limit, 0 meaning "disabled".
func (l *LiveWriteQueueLimit) Get() int {
	return int(l.current.Get())
}

func (l *LiveWriteQueueLimit) Close() error {
	return l.client.Close()
}
