package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scheduling"

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal     *prometheus.CounterVec
	TransitionsTotal  *prometheus.CounterVec
	LockWaitDuration  prometheus.Histogram
	ResolvedSlotCount prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollector registers all collectors on a private registry so that tests
// can build as many collectors as they like.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome (booked, unavailable, rejected, error).",
		}, []string{"outcome"}),

		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status and outcome.",
		}, []string{"to", "outcome"}),

		LockWaitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per doctor-day booking lock.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}),

		ResolvedSlotCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "resolved_slots",
			Help:      "Number of free windows returned per availability resolution.",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),

		registry: reg,
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// The Observe helpers are no-ops on a nil Collector.

func (c *Collector) ObserveBooking(outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveTransition(to, outcome string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(to, outcome).Inc()
}

func (c *Collector) ObserveLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.LockWaitDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveResolvedSlots(n int) {
	if c == nil {
		return
	}
	c.ResolvedSlotCount.Observe(float64(n))
}
