package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/bike-trips/internal/domain"
)

// memTripRepo is an in-process TripRepo. It stores and returns deep copies,
// so no caller can mutate stored state. Save enforces the same rules as the
// Postgres implementation: one active trip, no writes to a finished trip and
// no writes from a stale Version.
type memTripRepo struct {
	mu    sync.RWMutex
	trips map[uuid.UUID]domain.Trip
}

// NewMemoryTripRepo constructs an empty in-memory TripRepo.
func NewMemoryTripRepo() TripRepo {
	return &memTripRepo{trips: make(map[uuid.UUID]domain.Trip)}
}

func (r *memTripRepo) FindActive(_ context.Context) (domain.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.trips {
		if t.Active {
			return t.Clone(), nil
		}
	}
	return domain.Trip{}, fmt.Errorf("repo.TripRepo.FindActive: %w", domain.ErrNotFound)
}

func (r *memTripRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trips[id]
	if !ok {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", domain.ErrNotFound)
	}
	return t.Clone(), nil
}

func (r *memTripRepo) ListStartedBetween(_ context.Context, start, end time.Time) ([]domain.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Trip
	for _, t := range r.trips {
		if t.StartTime.Before(start) || t.StartTime.After(end) {
			continue
		}
		out = append(out, t.Clone())
	}

	// Map iteration order is random; match the Postgres ORDER BY.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memTripRepo) List(_ context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Trip, 0, len(r.trips))
	for _, t := range r.trips {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].StartTime.After(all[j].StartTime)
		}
		return all[i].ID.String() > all[j].ID.String()
	})

	total := int64(len(all))
	from := min(p.Offset(), len(all))
	to := min(from+p.Limit, len(all))

	out := make([]domain.Trip, 0, to-from)
	for _, t := range all[from:to] {
		out = append(out, t.Clone())
	}
	return out, total, nil
}

func (r *memTripRepo) Save(_ context.Context, trip domain.Trip) (domain.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.trips[trip.ID]
	if exists {
		if !stored.Active {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.Save: trip %s is finished: %w", trip.ID, domain.ErrInvalidState)
		}
		if stored.Version != trip.Version {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.Save: trip %s was modified concurrently: %w", trip.ID, domain.ErrConflict)
		}
	}

	if trip.Active {
		for id, t := range r.trips {
			if t.Active && id != trip.ID {
				return domain.Trip{}, fmt.Errorf("repo.TripRepo.Save: %w", domain.ErrConflict)
			}
		}
	}

	saved := trip.Clone()
	saved.Version = stored.Version + 1
	r.trips[trip.ID] = saved
	return saved.Clone(), nil
}
