package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/bike-trips/internal/domain"
)

// ListTrips handles GET /trips.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	var page, limit *int
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", query, &page); err != nil {
		requestError(w, fmt.Errorf("invalid page: %w", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		requestError(w, fmt.Errorf("invalid limit: %w", err))
		return
	}
	params := domain.NewPaginationParams(page, limit)

	trips, total, err := s.trips.List(r.Context(), params)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	data := make([]TripResponse, len(trips))
	for i, t := range trips {
		data[i] = tripToResponse(t)
	}
	writeJSON(w, http.StatusOK, TripListResponse{
		Data: data,
		Pagination: Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: total,
		},
	})
}

// StartTrip handles POST /trips.
func (s *Server) StartTrip(w http.ResponseWriter, r *http.Request) {
	lon, lat, err := decodeLocation(r)
	if err != nil {
		requestError(w, err)
		return
	}

	id, err := s.trips.Start(r.Context(), lon, lat)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/trips/"+id.String())
	writeJSON(w, http.StatusCreated, StartTripResponse{ID: id})
}

// GetActiveTrip handles GET /trips/active.
func (s *Server) GetActiveTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.trips.ActiveTrip(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripToResponse(trip))
}

// AppendLocation handles POST /trips/{id}/locations.
func (s *Server) AppendLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, err)
		return
	}
	lon, lat, err := decodeLocation(r)
	if err != nil {
		requestError(w, err)
		return
	}

	if err := s.trips.AppendLocation(r.Context(), id, lon, lat); err != nil {
		s.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FinishTrip handles POST /trips/{id}/finish.
func (s *Server) FinishTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, err)
		return
	}
	lon, lat, err := decodeLocation(r)
	if err != nil {
		requestError(w, err)
		return
	}

	if err := s.trips.Finish(r.Context(), id, lon, lat); err != nil {
		s.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTripSummary handles GET /trips/{id}/summary.
func (s *Server) GetTripSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, err)
		return
	}

	summary, err := s.trips.Query(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, summary)
}

// GetRangeSummary handles GET /trips/summary?start=...&end=...
// Both bounds are RFC3339 date-times and inclusive.
func (s *Server) GetRangeSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, err := requiredTime(query, "start")
	if err != nil {
		requestError(w, err)
		return
	}
	end, err := requiredTime(query, "end")
	if err != nil {
		requestError(w, err)
		return
	}

	report, err := s.trips.RangeSummary(r.Context(), start, end)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, report)
}

// --- request helpers --------------------------------------------------------

// pathID binds the {id} path segment as a UUID.
func pathID(r *http.Request) (openapi_types.UUID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return id, fmt.Errorf("invalid trip id: %w", err)
	}
	return id, nil
}

// requiredTime binds a mandatory date-time query parameter. The form binder
// leaves a time.Time destination untouched when the parameter is absent, so
// presence is checked here.
func requiredTime(query url.Values, name string) (time.Time, error) {
	var t time.Time
	v := query.Get(name)
	if v == "" {
		return t, fmt.Errorf("invalid %s: query parameter %q is required", name, name)
	}
	if err := runtime.BindStringToObject(v, &t); err != nil {
		return t, fmt.Errorf("invalid %s: %w", name, err)
	}
	return t, nil
}

// decodeLocation reads a LocationRequest body and checks both coordinates are present.
func decodeLocation(r *http.Request) (longitude, latitude float64, err error) {
	var body LocationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, errors.New("request body is required")
		}
		return 0, 0, fmt.Errorf("invalid request body: %w", err)
	}
	switch {
	case body.Longitude == nil:
		return 0, 0, errors.New("longitude is required")
	case body.Latitude == nil:
		return 0, 0, errors.New("latitude is required")
	}
	return *body.Longitude, *body.Latitude, nil
}
