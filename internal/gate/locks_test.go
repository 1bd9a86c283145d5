package gate

import (
	"context"
	"testing"
	"time"
)

func TestKeyedLocksGrantInEnqueueOrder(t *testing.T) {
	locks := NewKeyedLocks()

	t1 := locks.Enqueue("a")
	t2 := locks.Enqueue("a")
	t3 := locks.Enqueue("a")

	if err := t1.Wait(context.Background()); err != nil {
		t.Fatalf("first ticket should be granted immediately: %v", err)
	}

	select {
	case <-t2.ready:
		t.Fatal("second ticket granted while first held")
	default:
	}

	t1.Release()
	if err := t2.Wait(context.Background()); err != nil {
		t.Fatalf("second ticket: %v", err)
	}
	select {
	case <-t3.ready:
		t.Fatal("third ticket granted while second held")
	default:
	}
	t2.Release()
	if err := t3.Wait(context.Background()); err != nil {
		t.Fatalf("third ticket: %v", err)
	}
	t3.Release()
}

func TestTicketWaitTimeoutLeavesQueue(t *testing.T) {
	locks := NewKeyedLocks()

	t1 := locks.Enqueue("a")
	t2 := locks.Enqueue("a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := t2.Wait(ctx); err == nil {
		t.Fatal("expected deadline error for queued ticket")
	}

	// The withdrawn ticket must not absorb the grant.
	t1.Release()
	t3 := locks.Enqueue("a")
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := t3.Wait(ctx2); err != nil {
		t.Fatalf("key should be free after withdrawn waiter: %v", err)
	}
	t3.Release()
}

func TestTicketCancelGrantedPassesKeyOn(t *testing.T) {
	locks := NewKeyedLocks()

	t1 := locks.Enqueue("a")
	t2 := locks.Enqueue("a")

	t1.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := t2.Wait(ctx); err != nil {
		t.Fatalf("cancelled granted ticket must pass the key on: %v", err)
	}
	t2.Release()
}

func TestKeyedLocksIndependentKeys(t *testing.T) {
	locks := NewKeyedLocks()

	locks.Enqueue("a")
	tb := locks.Enqueue("b")
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("key b must not wait on key a: %v", err)
	}
	tb.Release()
}

func TestKeyedLocksSweep(t *testing.T) {
	locks := NewKeyedLocks()
	tick := locks.Enqueue("a")
	tick.Release()

	locks.now = func() time.Time { return time.Now().Add(time.Hour) }
	locks.Sweep(10 * time.Minute)

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.entries) != 0 {
		t.Fatalf("idle entry should be swept, have %d", len(locks.entries))
	}
}
