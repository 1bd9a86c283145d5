package gate

import (
	"context"
	"sync"
	"time"
)

// KeyedLocks serializes work per key in strict enqueue order. A ticket is
// taken the moment an event is accepted, so two events from the same sender
// are processed in arrival order even when workers pick them up out of order.
type KeyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	now     func() time.Time
}

type lockEntry struct {
	held     bool
	waiters  []*Ticket
	lastUsed time.Time
}

// Ticket is one position in a key's queue.
type Ticket struct {
	key     string
	locks   *KeyedLocks
	ready   chan struct{}
	granted bool
}

// NewKeyedLocks creates an empty lock table.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{
		entries: make(map[string]*lockEntry),
		now:     time.Now,
	}
}

// Enqueue reserves the caller's position for the key. The returned ticket is
// already granted when the key was free.
func (k *KeyedLocks) Enqueue(key string) *Ticket {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.entries[key]
	if e == nil {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.lastUsed = k.now()

	t := &Ticket{key: key, locks: k, ready: make(chan struct{})}
	if !e.held && len(e.waiters) == 0 {
		e.held = true
		t.granted = true
		close(t.ready)
	} else {
		e.waiters = append(e.waiters, t)
	}
	return t
}

// Wait blocks until the ticket is granted or ctx expires. On expiry the
// ticket is withdrawn from the queue; if the grant raced the expiry the lock
// is held and Wait returns nil.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
	}

	k := t.locks
	k.mu.Lock()
	defer k.mu.Unlock()
	if t.granted {
		return nil
	}
	if e := k.entries[t.key]; e != nil {
		for i, w := range e.waiters {
			if w == t {
				e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
				break
			}
		}
	}
	return ctx.Err()
}

// Cancel withdraws a ticket that will never be waited on. A granted ticket
// passes the key on; a queued one just leaves the line.
func (t *Ticket) Cancel() {
	k := t.locks
	k.mu.Lock()
	granted := t.granted
	if !granted {
		if e := k.entries[t.key]; e != nil {
			for i, w := range e.waiters {
				if w == t {
					e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
					break
				}
			}
		}
	}
	k.mu.Unlock()
	if granted {
		t.Release()
	}
}

// Release hands the key to the next waiter, or frees it.
func (t *Ticket) Release() {
	k := t.locks
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.entries[t.key]
	if e == nil {
		return
	}
	e.lastUsed = k.now()
	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		next.granted = true
		close(next.ready)
		return
	}
	e.held = false
}

// Sweep drops keys that have been idle for longer than maxIdle.
func (k *KeyedLocks) Sweep(maxIdle time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	cutoff := k.now().Add(-maxIdle)
	for key, e := range k.entries {
		if !e.held && len(e.waiters) == 0 && e.lastUsed.Before(cutoff) {
			delete(k.entries, key)
		}
	}
}
