package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a trip lifecycle transition.
type EventType string

const (
	EventTripStarted  EventType = "started"
	EventTripFinished EventType = "finished"
)

// TripEvent describes one lifecycle transition. Location appends do not
// produce events; only the start and finish points are reported.
type TripEvent struct {
	Type            EventType `json:"type"`
	TripID          uuid.UUID `json:"trip_id"`
	OccurredAt      time.Time `json:"occurred_at"`
	Longitude       float64   `json:"longitude"`
	Latitude        float64   `json:"latitude"`
	DurationSeconds *int64    `json:"duration_seconds,omitempty"`
	DistanceKm      *float64  `json:"distance_km,omitempty"`
}

// StartedEvent builds the event for a freshly started trip.
func StartedEvent(t Trip) TripEvent {
	e := TripEvent{Type: EventTripStarted, TripID: t.ID, OccurredAt: t.StartTime}
	if len(t.Locations) > 0 {
		e.Longitude, e.Latitude = t.Locations[0].Longitude, t.Locations[0].Latitude
	}
	return e
}

// FinishedEvent builds the event for a trip that just finished.
func FinishedEvent(t Trip) TripEvent {
	e := TripEvent{Type: EventTripFinished, TripID: t.ID, DurationSeconds: t.DurationSeconds}
	if t.EndTime != nil {
		e.OccurredAt = *t.EndTime
	}
	if n := len(t.Locations); n > 0 {
		e.Longitude, e.Latitude = t.Locations[n-1].Longitude, t.Locations[n-1].Latitude
	}
	km := t.TotalDistanceKm()
	e.DistanceKm = &km
	return e
}
