// Package gate is the admission layer between chat-channel webhooks and the
// booking pipeline. Every inbound event passes, in order, deduplication, a
// block-list check, per-sender rate limiting and per-sender FIFO
// serialization before a pooled worker hands it to the handler.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smileclinic/booking-bot/internal/observability/metrics"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// Event is one inbound chat message or command.
type Event struct {
	ID         string
	Provider   string
	Sender     string
	Text       string
	ReceivedAt time.Time
}

// Disposition is the gate's verdict on an inbound event.
type Disposition string

const (
	DispositionAccepted    Disposition = "accepted"
	DispositionDuplicate   Disposition = "duplicate"
	DispositionBlocked     Disposition = "blocked"
	DispositionRateLimited Disposition = "rate_limited"
	DispositionQueueFull   Disposition = "queue_full"
	dispositionLockTimeout Disposition = "lock_timeout"
	dispositionProcessed   Disposition = "processed"
)

// Handler processes admitted events. It runs on a pool worker while the
// sender's lock is held.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

// BlockChecker reports whether a sender is on the block list. The booking
// repository satisfies this.
type BlockChecker interface {
	IsClientBlocked(ctx context.Context, phone string) (bool, error)
}

type job struct {
	ev     Event
	ticket *Ticket
}

// Gate owns the admission pipeline and the worker pool behind it.
type Gate struct {
	handler Handler
	deduper Deduper
	limiter *RateLimiter
	locks   *KeyedLocks
	blocks  BlockChecker

	queue      chan job
	workers    int
	lockWait   time.Duration
	sweepEvery time.Duration

	metrics *metrics.GateMetrics
	log     *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Gate.
type Option func(*Gate)

// WithDeduper overrides the default in-memory deduper.
func WithDeduper(d Deduper) Option {
	return func(g *Gate) { g.deduper = d }
}

// WithRateLimiter overrides the default 20-per-minute limiter.
func WithRateLimiter(r *RateLimiter) Option {
	return func(g *Gate) { g.limiter = r }
}

// WithBlockChecker enables block-list drops.
func WithBlockChecker(b BlockChecker) Option {
	return func(g *Gate) { g.blocks = b }
}

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithQueueSize sets the pending-event buffer.
func WithQueueSize(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.queue = make(chan job, n)
		}
	}
}

// WithLockWait bounds how long a worker waits for the sender lock.
func WithLockWait(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.lockWait = d
		}
	}
}

// WithSweepInterval sets how often idle dedup/limiter/lock state is pruned.
func WithSweepInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.sweepEvery = d
		}
	}
}

// WithMetrics attaches gate metrics.
func WithMetrics(m *metrics.GateMetrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// New creates a gate in front of the handler.
func New(handler Handler, opts ...Option) *Gate {
	if handler == nil {
		panic("gate: handler required")
	}
	g := &Gate{
		handler:    handler,
		deduper:    NewMemoryDeduper(5 * time.Minute),
		limiter:    NewRateLimiter(20, time.Minute),
		locks:      NewKeyedLocks(),
		queue:      make(chan job, 256),
		workers:    10,
		lockWait:   30 * time.Second,
		sweepEvery: time.Minute,
		log:        logging.Default(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.Named("gate")
	return g
}

// Start launches the worker pool and the sweep loop.
func (g *Gate) Start() {
	g.startOnce.Do(func() {
		for i := 0; i < g.workers; i++ {
			g.wg.Add(1)
			go g.worker()
		}
		g.wg.Add(1)
		go g.sweeper()
	})
}

// Submit runs the admission pipeline. It never blocks: when the queue is
// full the event is silently dropped and DispositionQueueFull returned.
// Dedup and block-list lookups fail open so a degraded dependency does not
// stop the clinic from taking bookings.
func (g *Gate) Submit(ctx context.Context, ev Event) Disposition {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	seen, err := g.deduper.Seen(ctx, ev.ID)
	if err != nil {
		g.log.Warn("dedup check failed, admitting event", "event_id", ev.ID, "error", err)
	}
	if seen {
		return g.verdict(DispositionDuplicate, ev)
	}

	if g.blocks != nil {
		blocked, err := g.blocks.IsClientBlocked(ctx, ev.Sender)
		if err != nil {
			g.log.Warn("block check failed, admitting event", "sender", ev.Sender, "error", err)
		}
		if blocked {
			return g.verdict(DispositionBlocked, ev)
		}
	}

	if !g.limiter.Allow(ev.Sender) {
		return g.verdict(DispositionRateLimited, ev)
	}

	// The ticket is taken before the event enters the pool queue, which
	// pins per-sender processing to arrival order.
	ticket := g.locks.Enqueue(ev.Sender)
	select {
	case g.queue <- job{ev: ev, ticket: ticket}:
		g.metrics.SetQueueDepth(len(g.queue))
		return g.verdict(DispositionAccepted, ev)
	default:
		ticket.Cancel()
		return g.verdict(DispositionQueueFull, ev)
	}
}

// Stop waits for queued events to finish. No new events should be submitted
// once Stop is called.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
		g.wg.Wait()
	})
}

func (g *Gate) worker() {
	defer g.wg.Done()
	for {
		select {
		case j := <-g.queue:
			g.process(j)
		case <-g.done:
			for {
				select {
				case j := <-g.queue:
					g.process(j)
				default:
					return
				}
			}
		}
	}
}

func (g *Gate) process(j job) {
	g.metrics.SetQueueDepth(len(g.queue))

	waitCtx, cancel := context.WithTimeout(context.Background(), g.lockWait)
	waited := time.Now()
	err := j.ticket.Wait(waitCtx)
	cancel()
	g.metrics.ObserveLockWait(time.Since(waited).Seconds())
	if err != nil {
		g.metrics.ObserveInbound(string(dispositionLockTimeout))
		g.log.Warn("sender lock wait expired, event dropped",
			"event_id", j.ev.ID, "sender", j.ev.Sender)
		return
	}
	defer j.ticket.Release()

	defer func() {
		if r := recover(); r != nil {
			g.log.Error("handler panicked", "event_id", j.ev.ID, "panic", r)
		}
	}()
	g.handler.Handle(context.Background(), j.ev)
	g.metrics.ObserveInbound(string(dispositionProcessed))
}

func (g *Gate) sweeper() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if d, ok := g.deduper.(*MemoryDeduper); ok {
				d.Sweep()
			}
			g.limiter.Sweep()
			g.locks.Sweep(10 * time.Minute)
		case <-g.done:
			return
		}
	}
}

func (g *Gate) verdict(d Disposition, ev Event) Disposition {
	g.metrics.ObserveInbound(string(d))
	switch d {
	case DispositionAccepted:
	case DispositionQueueFull:
		g.log.Warn("queue full, event dropped", "event_id", ev.ID, "sender", ev.Sender)
	default:
		g.log.Info("event rejected", "event_id", ev.ID, "sender", ev.Sender, "disposition", string(d))
	}
	return d
}
