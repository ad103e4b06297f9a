package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry *prometheus.Registry

	OrdersPlaced       prometheus.Counter
	CheckoutFailures   *prometheus.CounterVec
	CheckoutDuration   prometheus.Histogram
	RateLimitDecisions *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	CartsPurged        prometheus.Counter
}

// New registers every collector on a private registry so tests can build
// as many instances as they like.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "placed_total",
			Help: "Orders committed by the checkout pipeline.",
		}),
		CheckoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "checkout_failures_total",
			Help: "Checkout attempts rejected or aborted, by reason code.",
		}, []string{"reason"}),
		CheckoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "orders", Name: "checkout_duration_seconds",
			Help:    "Time spent placing an order, preconditions included.",
			Buckets: prometheus.DefBuckets,
		}),
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ratelimit", Name: "decisions_total",
			Help: "Rate limiter outcomes.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "lookups_total",
			Help: "Catalog cache lookups by entry kind and result.",
		}, []string{"kind", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "events_total",
			Help: "Notification pipeline events by stage.",
		}, []string{"stage"}),
		CartsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cart", Name: "purged_total",
			Help: "Cart documents removed by the stale-cart sweep.",
		}),
	}

	reg.MustRegister(
		m.OrdersPlaced,
		m.CheckoutFailures,
		m.CheckoutDuration,
		m.RateLimitDecisions,
		m.CacheLookups,
		m.Notifications,
		m.CartsPurged,
	)
	return m
}
