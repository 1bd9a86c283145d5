package gate

import (
	"sync"
	"time"
)

// RateLimiter enforces a sliding-window cap per sender. Rejected events do
// not count against the window.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter allows max events per sender inside the window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records the event and returns true, or returns false when the sender
// already used up the window.
func (r *RateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	kept := r.hits[sender][:0]
	for _, at := range r.hits[sender] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= r.max {
		r.hits[sender] = kept
		return false
	}
	r.hits[sender] = append(kept, now)
	return true
}

// Sweep drops senders whose whole window has elapsed.
func (r *RateLimiter) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.window)
	for sender, hits := range r.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(r.hits, sender)
		}
	}
}
