package metrics

import "github.com/prometheus/client_golang/prometheus"

// GateMetrics exposes counters for the inbound concurrency gate.
type GateMetrics struct {
	inboundTotal *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	waitSeconds  prometheus.Histogram
}

func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	m := &GateMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "gate",
			Name:      "inbound_total",
			Help:      "Inbound events by final disposition",
		}, []string{"disposition"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "gate",
			Name:      "queue_depth",
			Help:      "Events waiting for a worker",
		}),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "gate",
			Name:      "sender_lock_wait_seconds",
			Help:      "Time spent waiting for the per-sender lock",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.queueDepth, m.waitSeconds)
	return m
}

func (m *GateMetrics) ObserveInbound(disposition string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(disposition).Inc()
}

func (m *GateMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *GateMetrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.waitSeconds.Observe(seconds)
}

// BookingMetrics exposes counters for booking engine operations.
type BookingMetrics struct {
	operationsTotal *prometheus.CounterVec
	cascadeSize     prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "outcome"}),
		cascadeSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "absence_cascade_size",
			Help:      "Appointments cancelled per absence declaration",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.cascadeSize)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveCascadeSize(n int) {
	if m == nil {
		return
	}
	m.cascadeSize.Observe(float64(n))
}

// EventMetrics exposes counters for the outcome dispatcher.
type EventMetrics struct {
	enqueuedTotal *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	failedTotal   *prometheus.CounterVec
}

func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	m := &EventMetrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "events",
			Name:      "enqueued_total",
			Help:      "Outcomes accepted by the dispatcher",
		}, []string{"kind"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Outcomes dropped because the queue was full",
		}, []string{"kind"}),
		failedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "events",
			Name:      "delivery_failed_total",
			Help:      "Sink deliveries that returned an error",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.enqueuedTotal, m.droppedTotal, m.failedTotal)
	return m
}

func (m *EventMetrics) EventEnqueued(kind string) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(kind).Inc()
}

func (m *EventMetrics) EventDropped(kind string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(kind).Inc()
}

func (m *EventMetrics) EventDeliveryFailed(kind string) {
	if m == nil {
		return
	}
	m.failedTotal.WithLabelValues(kind).Inc()
}
