// Package service contains the business logic for the bike trip tracker.
// Services validate inputs, enforce the trip lifecycle, and orchestrate repo calls.
// No SQL lives here; services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/bike-trips/internal/domain"
	"github.com/pkordes/bike-trips/internal/repo"
)

// Caller-facing failure messages. Each is wrapped in a *domain.Error whose
// Kind is the sentinel the handler maps to a status code.
const (
	msgTripAlreadyActive  = "another trip is already active"
	msgNoTripWithID       = "no trip with that id"
	msgTripNotActive      = "trip is not active"
	msgNoTripToFinish     = "no trip exists to which to add the location"
	msgFinishNotActive    = "cannot add a location to a trip that is not active"
	msgNoTripToQuery      = "no trip exists to query"
	msgQueryNotFinished   = "cannot query a trip that has not finished"
	msgRangeStartAfterEnd = "start date must be before end date"
	msgNoActiveTrip       = "no trip is currently active"
	msgConcurrentUpdate   = "trip was modified by another request, retry"
)

// EventPublisher receives lifecycle transitions after they are stored.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.TripEvent) error
}

// Metrics is the subset of the metrics collector the service reports to.
// A nil Metrics disables reporting.
type Metrics interface {
	TripStarted()
	TripFinished()
	LocationRecorded()
	EventPublishFailed()
	ObserveOperation(op string, d time.Duration, err error)
}

// TripService implements the trip lifecycle: start, append location, finish,
// query one trip and summarize a date range.
//
// Start runs its find-active-then-save sequence under startMu so two
// concurrent starts cannot both see "no active trip". AppendLocation and
// Finish hold a per-trip lock so one trip is never appended to and finished
// at the same time, while different trips proceed in parallel.
type TripService struct {
	repo    repo.TripRepo
	now     func() time.Time
	newID   func() uuid.UUID
	log     *slog.Logger
	events  EventPublisher
	metrics Metrics

	startMu sync.Mutex
	locks   *tripLocks
}

// Option configures a TripService.
type Option func(*TripService)

// WithClock replaces time.Now as the source of trip and location timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *TripService) { s.now = now }
}

// WithIDGenerator replaces uuid.New for new trip ids.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *TripService) { s.newID = newID }
}

// WithLogger sets the structured logger used for lifecycle transitions.
func WithLogger(l *slog.Logger) Option {
	return func(s *TripService) { s.log = l }
}

// WithPublisher sets where lifecycle events are sent.
func WithPublisher(p EventPublisher) Option {
	return func(s *TripService) { s.events = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *TripService) { s.metrics = m }
}

// NewTripService constructs a TripService backed by the provided TripRepo.
// Without options it uses the system clock, random UUIDs, a discarding logger
// and no event publisher.
func NewTripService(r repo.TripRepo, opts ...Option) *TripService {
	s := &TripService{
		repo:  r,
		now:   time.Now,
		newID: uuid.New,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		locks: newTripLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a new active trip whose first location is (longitude, latitude)
// and returns its id.
// Returns domain.ErrConflict if another trip is already active.
func (s *TripService) Start(ctx context.Context, longitude, latitude float64) (id uuid.UUID, err error) {
	defer s.observe("start", time.Now(), &err)

	s.startMu.Lock()
	defer s.startMu.Unlock()

	_, err = s.repo.FindActive(ctx)
	switch {
	case err == nil:
		return uuid.Nil, domain.NewError(domain.ErrConflict, msgTripAlreadyActive)
	case !errors.Is(err, domain.ErrNotFound):
		return uuid.Nil, fmt.Errorf("service.TripService.Start: %w", err)
	}

	trip := domain.NewTrip(s.newID(), longitude, latitude, s.now())
	saved, err := s.repo.Save(ctx, trip)
	if err != nil {
		// Another process won the race; the store's unique index caught it.
		if errors.Is(err, domain.ErrConflict) {
			return uuid.Nil, domain.NewError(domain.ErrConflict, msgTripAlreadyActive)
		}
		return uuid.Nil, fmt.Errorf("service.TripService.Start: %w", err)
	}

	s.log.InfoContext(ctx, "trip started", "trip_id", saved.ID, "longitude", longitude, "latitude", latitude)
	if s.metrics != nil {
		s.metrics.TripStarted()
	}
	s.publish(ctx, domain.StartedEvent(saved))

	return saved.ID, nil
}

// AppendLocation records (longitude, latitude) at the current time on an
// active trip.
// Returns domain.ErrNotFound for an unknown id and domain.ErrInvalidState if
// the trip has finished.
func (s *TripService) AppendLocation(ctx context.Context, id uuid.UUID, longitude, latitude float64) (err error) {
	defer s.observe("append_location", time.Now(), &err)

	unlock := s.locks.lock(id)
	defer unlock()

	trip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.ErrNotFound, msgNoTripWithID)
		}
		return fmt.Errorf("service.TripService.AppendLocation: %w", err)
	}
	if !trip.Active {
		return domain.NewError(domain.ErrInvalidState, msgTripNotActive)
	}

	trip.AddLocation(longitude, latitude, s.now())
	if _, err := s.repo.Save(ctx, trip); err != nil {
		return saveError("AppendLocation", err, msgTripNotActive)
	}

	s.log.DebugContext(ctx, "location recorded", "trip_id", id, "locations", len(trip.Locations))
	if s.metrics != nil {
		s.metrics.LocationRecorded()
	}
	return nil
}

// Finish records the final location, stamps end time and duration, and
// deactivates the trip. The final location is appended to the trajectory
// like any other.
// Returns domain.ErrNotFound for an unknown id and domain.ErrInvalidState if
// the trip already finished; a failed call leaves the stored trip untouched.
func (s *TripService) Finish(ctx context.Context, id uuid.UUID, longitude, latitude float64) (err error) {
	defer s.observe("finish", time.Now(), &err)

	unlock := s.locks.lock(id)
	defer unlock()

	trip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.ErrNotFound, msgNoTripToFinish)
		}
		return fmt.Errorf("service.TripService.Finish: %w", err)
	}
	if !trip.Active {
		return domain.NewError(domain.ErrInvalidState, msgFinishNotActive)
	}

	trip.Finish(longitude, latitude, s.now())
	saved, err := s.repo.Save(ctx, trip)
	if err != nil {
		return saveError("Finish", err, msgFinishNotActive)
	}

	s.log.InfoContext(ctx, "trip finished",
		"trip_id", id,
		"duration_seconds", *trip.DurationSeconds,
		"distance_km", trip.TotalDistanceKm(),
	)
	if s.metrics != nil {
		s.metrics.TripFinished()
	}
	s.publish(ctx, domain.FinishedEvent(saved))

	return nil
}

// Query returns the text summary of a finished trip.
// Returns domain.ErrNotFound for an unknown id and domain.ErrInvalidState if
// the trip is still active.
func (s *TripService) Query(ctx context.Context, id uuid.UUID) (_ string, err error) {
	defer s.observe("query", time.Now(), &err)

	trip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.NewError(domain.ErrNotFound, msgNoTripToQuery)
		}
		return "", fmt.Errorf("service.TripService.Query: %w", err)
	}
	if !trip.Finished() {
		return "", domain.NewError(domain.ErrInvalidState, msgQueryNotFinished)
	}

	return trip.Summary(), nil
}

// RangeSummary reports every trip whose start time falls in [start, end].
// Equal bounds are allowed; no matches yields a report with a count of 0.
// Returns domain.ErrValidation if start is after end.
func (s *TripService) RangeSummary(ctx context.Context, start, end time.Time) (_ string, err error) {
	defer s.observe("range_summary", time.Now(), &err)

	if start.After(end) {
		return "", domain.NewError(domain.ErrValidation, msgRangeStartAfterEnd)
	}

	trips, err := s.repo.ListStartedBetween(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("service.TripService.RangeSummary: %w", err)
	}

	return domain.RangeReport(start, end, trips), nil
}

// List returns one page of trips, newest start first, and the total count.
func (s *TripService) List(ctx context.Context, p domain.PaginationParams) (_ []domain.Trip, _ int64, err error) {
	defer s.observe("list", time.Now(), &err)

	trips, total, err := s.repo.List(ctx, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.TripService.List: %w", err)
	}
	return trips, total, nil
}

// ActiveTrip returns the trip currently being recorded.
// Returns domain.ErrNotFound when no trip is active.
func (s *TripService) ActiveTrip(ctx context.Context) (_ domain.Trip, err error) {
	defer s.observe("active_trip", time.Now(), &err)

	trip, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Trip{}, domain.NewError(domain.ErrNotFound, msgNoActiveTrip)
		}
		return domain.Trip{}, fmt.Errorf("service.TripService.ActiveTrip: %w", err)
	}
	return trip, nil
}

// publish sends an event after the write has committed. A failure is logged
// and counted but not returned: the trip is already stored.
func (s *TripService) publish(ctx context.Context, e domain.TripEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "publish trip event", "trip_id", e.TripID, "type", e.Type, "error", err)
		if s.metrics != nil {
			s.metrics.EventPublishFailed()
		}
	}
}

// saveError translates a store rejection of a write to an existing trip. The
// per-trip lock only covers this process, so another instance may have
// finished the trip or appended to it since it was loaded.
func saveError(op string, err error, notActiveMsg string) error {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return domain.NewError(domain.ErrInvalidState, notActiveMsg)
	case errors.Is(err, domain.ErrConflict):
		return domain.NewError(domain.ErrConflict, msgConcurrentUpdate)
	}
	return fmt.Errorf("service.TripService.%s: %w", op, err)
}

func (s *TripService) observe(op string, begin time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, time.Since(begin), *err)
	}
}
