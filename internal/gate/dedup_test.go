package gate

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryDeduperWindow(t *testing.T) {
	d := NewMemoryDeduper(5 * time.Minute)
	base := time.Now()
	d.now = func() time.Time { return base }

	seen, err := d.Seen(context.Background(), "m1")
	if err != nil || seen {
		t.Fatalf("first sighting must be new, got seen=%v err=%v", seen, err)
	}
	seen, _ = d.Seen(context.Background(), "m1")
	if !seen {
		t.Fatal("second sighting inside window must be duplicate")
	}

	// After the TTL the id is fresh again.
	base = base.Add(5*time.Minute + time.Second)
	seen, _ = d.Seen(context.Background(), "m1")
	if seen {
		t.Fatal("sighting after TTL must be new")
	}
}

func TestMemoryDeduperEvictsWhenFull(t *testing.T) {
	d := NewMemoryDeduper(5 * time.Minute)
	base := time.Now()
	d.now = func() time.Time { return base }

	for i := 0; i < dedupMaxEntries; i++ {
		base = base.Add(time.Millisecond)
		if _, err := d.Seen(context.Background(), fmt.Sprintf("id-%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	// The map is full of unexpired entries; a new id must still be admitted.
	seen, err := d.Seen(context.Background(), "overflow")
	if err != nil || seen {
		t.Fatalf("overflow id must be admitted, got seen=%v err=%v", seen, err)
	}
	if len(d.seen) > dedupMaxEntries {
		t.Fatalf("map exceeded bound: %d", len(d.seen))
	}
}

func TestMemoryDeduperSweep(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	base := time.Now()
	d.now = func() time.Time { return base }

	_, _ = d.Seen(context.Background(), "m1")
	base = base.Add(2 * time.Minute)
	d.Sweep()

	if len(d.seen) != 0 {
		t.Fatalf("expired entries should be swept, have %d", len(d.seen))
	}
}

func TestRedisDeduper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDeduper(client, 5*time.Minute)

	seen, err := d.Seen(context.Background(), "m1")
	if err != nil || seen {
		t.Fatalf("first sighting must be new, got seen=%v err=%v", seen, err)
	}
	seen, err = d.Seen(context.Background(), "m1")
	if err != nil || !seen {
		t.Fatalf("second sighting must be duplicate, got seen=%v err=%v", seen, err)
	}

	mr.FastForward(6 * time.Minute)
	seen, err = d.Seen(context.Background(), "m1")
	if err != nil || seen {
		t.Fatalf("sighting after TTL must be new, got seen=%v err=%v", seen, err)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	r := NewRateLimiter(3, time.Minute)
	base := time.Now()
	r.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if !r.Allow("+77010000001") {
			t.Fatalf("request %d inside cap must pass", i)
		}
	}
	if r.Allow("+77010000001") {
		t.Fatal("request over cap must be rejected")
	}
	// Another sender is unaffected.
	if !r.Allow("+77010000002") {
		t.Fatal("independent sender must pass")
	}

	// Once the oldest hit leaves the window, capacity returns.
	base = base.Add(61 * time.Second)
	if !r.Allow("+77010000001") {
		t.Fatal("request after window must pass")
	}
}

func TestRateLimiterRejectedDoesNotCount(t *testing.T) {
	r := NewRateLimiter(1, time.Minute)
	base := time.Now()
	r.now = func() time.Time { return base }

	if !r.Allow("s") {
		t.Fatal("first request must pass")
	}
	for i := 0; i < 5; i++ {
		if r.Allow("s") {
			t.Fatal("over-cap request must be rejected")
		}
	}
	base = base.Add(61 * time.Second)
	if !r.Allow("s") {
		t.Fatal("rejections must not extend the window")
	}
}
