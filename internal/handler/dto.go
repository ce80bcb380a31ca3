package handler

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/bike-trips/internal/domain"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// LocationRequest is the body of POST /trips, POST /trips/{id}/locations and
// POST /trips/{id}/finish. Both coordinates are required.
type LocationRequest struct {
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
}

// StartTripResponse is the body of POST /trips.
type StartTripResponse struct {
	ID openapi_types.UUID `json:"id"`
}

// LocationResponse is one recorded sample.
type LocationResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
}

// TripResponse is the body of GET /trips/active and one item of GET /trips.
// EndTime and DurationSeconds are omitted while the trip is active.
type TripResponse struct {
	ID              openapi_types.UUID `json:"id"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         *time.Time         `json:"end_time,omitempty"`
	DurationSeconds *int64             `json:"duration_seconds,omitempty"`
	Active          bool               `json:"active"`
	DistanceKm      float64            `json:"distance_km"`
	Locations       []LocationResponse `json:"locations"`
}

// Pagination describes which page of a listing was returned.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// TripListResponse is the body of GET /trips.
type TripListResponse struct {
	Data       []TripResponse `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// ErrorDetail carries a machine-readable code and the human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// tripToResponse converts a domain.Trip into its wire representation.
func tripToResponse(t domain.Trip) TripResponse {
	locs := make([]LocationResponse, len(t.Locations))
	for i, l := range t.Locations {
		locs[i] = LocationResponse{
			Timestamp: l.Timestamp.UTC(),
			Longitude: l.Longitude,
			Latitude:  l.Latitude,
		}
	}
	resp := TripResponse{
		ID:              t.ID,
		StartTime:       t.StartTime.UTC(),
		DurationSeconds: t.DurationSeconds,
		Active:          t.Active,
		DistanceKm:      t.TotalDistanceKm(),
		Locations:       locs,
	}
	if t.EndTime != nil {
		end := t.EndTime.UTC()
		resp.EndTime = &end
	}
	return resp
}
