// Package domain contains the core data types for the bike trip tracker.
// This package depends only on google/uuid and is imported by every other
// internal package (repo, service, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Location is one timestamped coordinate sample within a trip.
// Locations are immutable and live only inside their trip's Locations slice.
type Location struct {
	TripID    uuid.UUID `json:"trip_id"`
	Timestamp time.Time `json:"timestamp"`
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
}

// Trip is one recording session from start to finish.
// A trip is the aggregate root; its locations are appended in chronological
// order and never edited. EndTime and DurationSeconds stay nil while Active.
// Version is the store's optimistic lock: zero until first saved, then bumped
// by every successful save.
type Trip struct {
	ID              uuid.UUID  `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	Active          bool       `json:"active"`
	Locations       []Location `json:"locations"`
	Version         int64      `json:"-"`
}

// NewTrip returns an active trip started at `at` whose first location is the
// starting point.
func NewTrip(id uuid.UUID, longitude, latitude float64, at time.Time) Trip {
	t := Trip{
		ID:        id,
		StartTime: at,
		Active:    true,
	}
	t.AddLocation(longitude, latitude, at)
	return t
}

// AddLocation appends a sample recorded at `at`.
func (t *Trip) AddLocation(longitude, latitude float64, at time.Time) {
	t.Locations = append(t.Locations, Location{
		TripID:    t.ID,
		Timestamp: at,
		Longitude: longitude,
		Latitude:  latitude,
	})
}

// Finish appends the final sample and closes the trip. Duration is measured
// in whole seconds, truncated. A finish time before StartTime (clock went
// backwards) is clamped to StartTime so EndTime never precedes it.
// Callers check Active first.
func (t *Trip) Finish(longitude, latitude float64, at time.Time) {
	if at.Before(t.StartTime) {
		at = t.StartTime
	}
	t.AddLocation(longitude, latitude, at)

	secs := int64(at.Sub(t.StartTime) / time.Second)
	end := at
	t.EndTime = &end
	t.DurationSeconds = &secs
	t.Active = false
}

// Finished reports whether the trip reached its terminal state.
func (t Trip) Finished() bool {
	return !t.Active && t.EndTime != nil
}

// TotalDistanceKm sums the Haversine distance between consecutive locations.
func (t Trip) TotalDistanceKm() float64 {
	var total float64
	for i := 1; i < len(t.Locations); i++ {
		prev, cur := t.Locations[i-1], t.Locations[i]
		total += DistanceKm(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
	}
	return total
}

// Clone returns a deep copy so the caller can mutate it without touching the
// original's locations or end-time pointers.
func (t Trip) Clone() Trip {
	c := t
	if t.Locations != nil {
		c.Locations = make([]Location, len(t.Locations))
		copy(c.Locations, t.Locations)
	}
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	if t.DurationSeconds != nil {
		d := *t.DurationSeconds
		c.DurationSeconds = &d
	}
	return c
}
