// Package handler implements the HTTP handlers for the trips API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, trip.go) but share the same Server struct so they can
// access its dependencies. Routes registers them on a chi router.
package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/bike-trips/internal/domain"
)

// TripServicer defines the business operations the trip handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the database or service layer.
type TripServicer interface {
	Start(ctx context.Context, longitude, latitude float64) (uuid.UUID, error)
	AppendLocation(ctx context.Context, id uuid.UUID, longitude, latitude float64) error
	Finish(ctx context.Context, id uuid.UUID, longitude, latitude float64) error
	Query(ctx context.Context, id uuid.UUID) (string, error)
	RangeSummary(ctx context.Context, start, end time.Time) (string, error)
	ActiveTrip(ctx context.Context) (domain.Trip, error)
	List(ctx context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error)
}

// Server serves every API endpoint.
type Server struct {
	trips TripServicer
	log   *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
// A nil logger discards output.
func NewServer(trips TripServicer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{trips: trips, log: log}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil, nil)
}

// Routes registers every endpoint on r. Middleware is the caller's concern.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/trips", func(r chi.Router) {
		r.Get("/", s.ListTrips)
		r.Post("/", s.StartTrip)
		r.Get("/active", s.GetActiveTrip)
		r.Get("/summary", s.GetRangeSummary)

		r.Route("/{id}", func(r chi.Router) {
			r.Post("/locations", s.AppendLocation)
			r.Post("/finish", s.FinishTrip)
			r.Get("/summary", s.GetTripSummary)
		})
	})
}

// Handler returns a bare chi router with every endpoint registered.
func (s *Server) Handler() chi.Router {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}
