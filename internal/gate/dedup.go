package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers recently seen message ids. Seen returns true when the id
// was already recorded inside the window; the first caller for an id records
// it and gets false.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
}

const dedupMaxEntries = 10000

// MemoryDeduper is a bounded in-process Deduper. When the map is full,
// expired entries are evicted first; if none are expired the oldest entry is
// overwritten rather than rejecting new traffic.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates a deduper keeping ids for the given TTL.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryDeduper{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (d *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return true, nil
	}
	if len(d.seen) >= dedupMaxEntries {
		d.evictLocked(now)
	}
	d.seen[id] = now
	return false, nil
}

// Sweep drops expired entries. Called periodically by the gate.
func (d *MemoryDeduper) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

func (d *MemoryDeduper) evictLocked(now time.Time) {
	evicted := false
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
			evicted = true
		}
	}
	if evicted {
		return
	}
	var oldestID string
	var oldestAt time.Time
	for id, at := range d.seen {
		if oldestID == "" || at.Before(oldestAt) {
			oldestID, oldestAt = id, at
		}
	}
	delete(d.seen, oldestID)
}

// RedisDeduper shares dedup state across instances using SET NX with a TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a redis-backed deduper.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("gate: redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	set, err := d.client.SetNX(ctx, "gate:seen:"+id, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("gate: dedup check: %w", err)
	}
	return !set, nil
}
