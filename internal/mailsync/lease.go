package mailsync

import (
	"context"
	"sync"
)

// Lease serializes work per key. Entries exist only while someone holds or
// waits for them.
type Lease struct {
	mu      sync.Mutex
	entries map[string]*leaseEntry
}

type leaseEntry struct {
	slot chan struct{}
	refs int
}

func NewLease() *Lease {
	return &Lease{entries: make(map[string]*leaseEntry)}
}

// Acquire blocks until key is free or ctx ends. The returned release func
// is safe to call more than once.
func (l *Lease) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &leaseEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			l.unref(key, e)
		})
	}, nil
}

func (l *Lease) unref(key string, e *leaseEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *Lease) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
