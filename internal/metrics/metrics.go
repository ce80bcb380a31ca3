// Package metrics exposes Prometheus counters and histograms for the trip
// lifecycle. Collector satisfies service.Metrics and publisher.Metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pkordes/bike-trips/internal/domain"
)

// Collector owns a private registry so tests can create as many as they like
// without colliding on the global default registerer.
type Collector struct {
	reg *prometheus.Registry

	TripsStarted      prometheus.Counter
	TripsFinished     prometheus.Counter
	LocationsRecorded prometheus.Counter

	EventsPublished   prometheus.Counter
	EventPublishErrs  prometheus.Counter
	NATSConnected     prometheus.Gauge
	PublishDuration   prometheus.Histogram
	OperationDuration *prometheus.HistogramVec // labels: op, outcome
}

// NewCollector builds and registers every metric.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trips_started_total",
			Help: "Total trips started.",
		}),
		TripsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trips_finished_total",
			Help: "Total trips finished.",
		}),
		LocationsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trips_locations_recorded_total",
			Help: "Total intermediate locations appended to active trips.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trips_events_published_total",
			Help: "Total lifecycle events published to NATS.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trips_event_publish_errors_total",
			Help: "Total lifecycle events that could not be published.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trips_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trips_event_publish_duration_seconds",
			Help:    "Duration to marshal and publish a lifecycle event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trips_operation_duration_seconds",
			Help:    "Duration of trip lifecycle operations by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"op", "outcome"}),
	}

	reg.MustRegister(
		c.TripsStarted, c.TripsFinished, c.LocationsRecorded,
		c.EventsPublished, c.EventPublishErrs, c.NATSConnected,
		c.PublishDuration, c.OperationDuration,
	)

	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) TripStarted()      { c.TripsStarted.Inc() }
func (c *Collector) TripFinished()     { c.TripsFinished.Inc() }
func (c *Collector) LocationRecorded() { c.LocationsRecorded.Inc() }

// EventPublishFailed counts an event the service could not hand to NATS.
func (c *Collector) EventPublishFailed() { c.EventPublishErrs.Inc() }

// ObserveOperation records one lifecycle call under its outcome label.
func (c *Collector) ObserveOperation(op string, d time.Duration, err error) {
	c.OperationDuration.WithLabelValues(op, Outcome(err)).Observe(d.Seconds())
}

func (c *Collector) EventPublished() { c.EventsPublished.Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// Outcome maps an operation error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
