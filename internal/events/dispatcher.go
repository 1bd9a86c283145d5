package events

import (
	"context"
	"sync"
	"time"

	"github.com/smileclinic/booking-bot/internal/observability/metrics"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// Sink consumes outcomes. Implementations must tolerate redelivery gaps: a
// full queue drops outcomes rather than blocking the producer.
type Sink interface {
	Deliver(ctx context.Context, o Outcome) error
}

const deliverTimeout = 10 * time.Second

// Dispatcher fans outcomes out to its sinks from a single background
// goroutine. Dispatch never blocks; when the buffer is full the outcome is
// dropped and counted.
type Dispatcher struct {
	ch      chan Outcome
	sinks   []Sink
	log     *logging.Logger
	metrics *metrics.EventMetrics

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(queueSize int, log *logging.Logger, m *metrics.EventMetrics, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 128
	}
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		ch:      make(chan Outcome, queueSize),
		sinks:   sinks,
		log:     log,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start launches the delivery loop. Safe to call once.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run()
	})
}

// Dispatch enqueues an outcome without blocking. The producer's transaction
// has already committed, so on overflow we log and drop.
func (d *Dispatcher) Dispatch(o Outcome) {
	if o.At.IsZero() {
		o.At = time.Now()
	}
	select {
	case d.ch <- o:
		d.metrics.EventEnqueued(string(o.Kind))
	default:
		d.metrics.EventDropped(string(o.Kind))
		d.log.Warn("event queue full, outcome dropped", "kind", o.Kind)
	}
}

// Close stops accepting work implicitly (producers should be stopped first),
// drains the buffer and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case o := <-d.ch:
			d.deliver(o)
		case <-d.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case o := <-d.ch:
					d.deliver(o)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(o Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, o); err != nil {
			d.metrics.EventDeliveryFailed(string(o.Kind))
			d.log.Error("event delivery failed", "kind", o.Kind, "error", err)
		}
	}
}
