package goblinder

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Observer allows pluggable metrics collection for a Runtime. Implementations
// must be thread-safe: methods are called from every Thread's dispatch path
// concurrently.
type Observer interface {
	// ObserveTransaction is called once a transaction has been submitted
	// (or failed to submit), with the payload size and whether it was a
	// oneway call.
	ObserveTransaction(payloadBytes uint64, oneway bool, success bool)

	// ObserveRefcountChange is called for every node refcount notification
	// handed to userspace by Thread.Read (INCREFS/ACQUIRE/RELEASE/DECREFS).
	ObserveRefcountChange(strong bool, inc bool)

	// ObserveDeath is called when Thread.Read delivers a death notification
	// (BR_DEAD_BINDER); clear acknowledgments are not counted.
	ObserveDeath()

	// ObserveArenaUsage reports the calling thread's process's BufferArena
	// utilization, sampled after each Thread.Transact and Thread.Reply.
	ObserveArenaUsage(inUse, total uint64)
}

// NoOpObserver discards every observation; it is the default when a
// Runtime is created without an explicit Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveTransaction(uint64, bool, bool) {}
func (NoOpObserver) ObserveRefcountChange(bool, bool)      {}
func (NoOpObserver) ObserveDeath()                         {}
func (NoOpObserver) ObserveArenaUsage(uint64, uint64)      {}

// PrometheusObserver records every observation into a set of
// prometheus.Collector metrics registered under the "goblinder" namespace.
type PrometheusObserver struct {
	transactions     *prometheus.CounterVec
	transactionBytes prometheus.Counter
	refcountEvents   *prometheus.CounterVec
	deaths           prometheus.Counter
	arenaUsage       prometheus.Gauge
}

// NewPrometheusObserver constructs an Observer and registers its metrics
// with reg. Pass prometheus.NewRegistry() for an isolated registry (e.g. in
// tests) or prometheus.DefaultRegisterer to expose it on the default
// /metrics handler.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goblinder",
			Name:      "transactions_total",
			Help:      "Total number of submitted transactions by outcome and mode.",
		}, []string{"oneway", "result"}),
		transactionBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goblinder",
			Name:      "transaction_bytes_total",
			Help:      "Total payload bytes copied across all transactions.",
		}),
		refcountEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goblinder",
			Name:      "refcount_events_total",
			Help:      "Total refcount notifications queued to userspace.",
		}, []string{"side", "direction"}),
		deaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goblinder",
			Name:      "node_deaths_total",
			Help:      "Total death notifications delivered.",
		}),
		arenaUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goblinder",
			Name:      "arena_usage_ratio",
			Help:      "Most recently sampled BufferArena utilization ratio.",
		}),
	}
	reg.MustRegister(o.transactions, o.transactionBytes, o.refcountEvents, o.deaths, o.arenaUsage)
	return o
}

func (o *PrometheusObserver) ObserveTransaction(payloadBytes uint64, oneway, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	onewayLabel := "false"
	if oneway {
		onewayLabel = "true"
	}
	o.transactions.WithLabelValues(onewayLabel, result).Inc()
	if success {
		o.transactionBytes.Add(float64(payloadBytes))
	}
}

func (o *PrometheusObserver) ObserveRefcountChange(strong, inc bool) {
	side := "weak"
	if strong {
		side = "strong"
	}
	direction := "dec"
	if inc {
		direction = "inc"
	}
	o.refcountEvents.WithLabelValues(side, direction).Inc()
}

func (o *PrometheusObserver) ObserveDeath() {
	o.deaths.Inc()
}

func (o *PrometheusObserver) ObserveArenaUsage(inUse, total uint64) {
	if total == 0 {
		o.arenaUsage.Set(0)
		return
	}
	o.arenaUsage.Set(float64(inUse) / float64(total))
}

// Compile-time interface checks.
var _ Observer = (*PrometheusObserver)(nil)
var _ Observer = NoOpObserver{}
