// Package publisher sends trip lifecycle events to NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pkordes/bike-trips/internal/domain"
)

// SubjectPrefix is the first token of every event subject:
// trips.<type>.<trip id>, e.g. trips.finished.6f1c0b7e-...
const SubjectPrefix = "trips"

// Metrics is implemented by metrics.Collector. Nil disables reporting.
type Metrics interface {
	EventPublished()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// NATSPublisher publishes domain.TripEvent values as JSON.
type NATSPublisher struct {
	nc      *nats.Conn
	log     *slog.Logger
	metrics Metrics
}

// NewNATSPublisher connects to url and keeps the connected gauge in sync with
// disconnects and reconnects.
func NewNATSPublisher(url string, log *slog.Logger, m Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bike-trips"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("publisher.NewNATSPublisher: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, log: log, metrics: m}, nil
}

// closeFlushTimeout bounds how long Close waits for buffered events to reach
// the server.
const closeFlushTimeout = 2 * time.Second

// Close flushes buffered events and closes the connection. Drain would return
// before the flush completes and a following Close would cut it short.
func (p *NATSPublisher) Close() {
	if p.nc == nil || p.nc.IsClosed() {
		return
	}
	if err := p.nc.FlushTimeout(closeFlushTimeout); err != nil {
		p.log.Warn("nats flush on close", "error", err)
	}
	p.nc.Close()
}

// Subject returns the subject an event is published on.
func Subject(e domain.TripEvent) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e.Type, e.TripID)
}

// Publish marshals the event and hands it to the NATS connection.
// The NATS client buffers the write, so ctx is only checked up front.
func (p *NATSPublisher) Publish(ctx context.Context, e domain.TripEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("publisher.NATSPublisher.Publish: marshal: %w", err)
	}

	subject := Subject(e)
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err == nil {
			p.metrics.EventPublished()
		}
	}
	if err != nil {
		return fmt.Errorf("publisher.NATSPublisher.Publish: %s: %w", subject, err)
	}
	p.log.Debug("event published", "subject", subject)
	return nil
}

// Noop discards events. It is used when NATS_URL is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.TripEvent) error { return nil }
