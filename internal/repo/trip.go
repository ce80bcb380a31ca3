// Package repo contains all database access logic for the bike trip tracker.
// TripRepo is the store contract; trip.go holds the Postgres implementation
// and memory.go an in-process one for tests and database-less runs.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/bike-trips/internal/domain"
)

// singleActiveIndex is the partial unique index that allows at most one row
// with active = true. See migrations/00001_create_trips.sql.
const singleActiveIndex = "trips_single_active"

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
// Begin on a pgx.Tx opens a savepoint, so Save stays atomic in both cases.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TripRepo defines the persistence operations for Trips.
// The service layer depends on this interface, not the concrete Postgres implementation,
// which allows the service to be unit-tested with a mock or the in-memory store.
// Every returned trip carries its full location sequence in chronological order.
type TripRepo interface {
	// FindActive returns the trip with active = true.
	// Returns domain.ErrNotFound if no trip is active.
	FindActive(ctx context.Context) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// ListStartedBetween returns trips whose start time lies in [start, end],
	// both ends inclusive, ordered by start time ascending.
	ListStartedBetween(ctx context.Context, start, end time.Time) ([]domain.Trip, error)

	// List returns one page of all trips, newest start first, and the total
	// number of trips.
	List(ctx context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error)

	// Save inserts a new trip (Version 0) or updates a stored one, locations
	// included, in a single transaction, and returns the stored trip with its
	// new Version. Stored locations are never rewritten; only the ones past the
	// stored count are appended.
	// Returns domain.ErrInvalidState if the stored trip is already finished, and
	// domain.ErrConflict if trip.Version is stale or saving would leave two
	// trips active.
	Save(ctx context.Context, trip domain.Trip) (domain.Trip, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `id, start_time, end_time, duration_seconds, active, version`

// FindActive retrieves the single active trip, if any.
func (r *pgTripRepo) FindActive(ctx context.Context) (domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE active`

	trip, err := scanTrip(r.db.QueryRow(ctx, q))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.FindActive: %w", err)
	}
	if err := r.loadLocations(ctx, []*domain.Trip{&trip}); err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.FindActive: %w", err)
	}
	return trip, nil
}

// GetByID retrieves a trip and its locations by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE id = @id`

	trip, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	if err := r.loadLocations(ctx, []*domain.Trip{&trip}); err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return trip, nil
}

// ListStartedBetween returns every trip started inside the closed interval.
func (r *pgTripRepo) ListStartedBetween(ctx context.Context, start, end time.Time) ([]domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE start_time >= @start AND start_time <= @end
		ORDER BY start_time ASC, id ASC`

	trips, err := r.queryTrips(ctx, q, pgx.NamedArgs{"start": start, "end": end})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListStartedBetween: %w", err)
	}
	return trips, nil
}

// List returns one page of trips ordered by start time descending.
func (r *pgTripRepo) List(ctx context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	const countQ = `SELECT count(*) FROM trips`
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		ORDER BY start_time DESC, id DESC
		LIMIT @limit OFFSET @offset`

	var total int64
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.List: count: %w", err)
	}

	trips, err := r.queryTrips(ctx, q, pgx.NamedArgs{"limit": p.Limit, "offset": p.Offset()})
	if err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.List: %w", err)
	}
	return trips, total, nil
}

// queryTrips runs a multi-row trips query and attaches each trip's locations.
func (r *pgTripRepo) queryTrips(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Trip, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	ptrs := make([]*domain.Trip, len(trips))
	for i := range trips {
		ptrs[i] = &trips[i]
	}
	if err := r.loadLocations(ctx, ptrs); err != nil {
		return nil, err
	}
	return trips, nil
}

// Save upserts the trip row and appends its new locations inside one transaction.
// The update only applies while the stored row is still active and at the
// caller's Version, so a stale copy can neither resurrect a finished trip nor
// drop locations another writer appended. Locations are keyed by (trip_id, seq)
// and inserted without ON CONFLICT: a duplicate seq is an error, never a no-op.
func (r *pgTripRepo) Save(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const upsertTrip = `
		INSERT INTO trips (id, start_time, end_time, duration_seconds, active, version)
		VALUES (@id, @start_time, @end_time, @duration_seconds, @active, 1)
		ON CONFLICT (id) DO UPDATE
		SET end_time         = EXCLUDED.end_time,
		    duration_seconds = EXCLUDED.duration_seconds,
		    active           = EXCLUDED.active,
		    version          = trips.version + 1,
		    updated_at       = now()
		WHERE trips.active AND trips.version = @version`

	const countLocations = `SELECT count(*) FROM locations WHERE trip_id = @trip_id`

	const insertLocation = `
		INSERT INTO locations (trip_id, seq, recorded_at, longitude, latitude)
		VALUES (@trip_id, @seq, @recorded_at, @longitude, @latitude)`

	var saved domain.Trip
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upsertTrip, pgx.NamedArgs{
			"id":               trip.ID,
			"start_time":       trip.StartTime,
			"end_time":         trip.EndTime,         // nil becomes NULL
			"duration_seconds": trip.DurationSeconds, // nil becomes NULL
			"active":           trip.Active,
			"version":          trip.Version,
		})
		if err != nil {
			return fmt.Errorf("upsert trip: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return staleWrite(ctx, tx, trip.ID)
		}

		// The row lock taken by the upsert holds off other writers until commit,
		// so the stored count is the prefix this caller loaded.
		var stored int
		if err := tx.QueryRow(ctx, countLocations, pgx.NamedArgs{"trip_id": trip.ID}).Scan(&stored); err != nil {
			return fmt.Errorf("count locations: %w", err)
		}
		if stored > len(trip.Locations) {
			return fmt.Errorf("trip %s has %d stored locations, caller holds %d: %w",
				trip.ID, stored, len(trip.Locations), domain.ErrConflict)
		}

		if stored < len(trip.Locations) {
			batch := &pgx.Batch{}
			for i := stored; i < len(trip.Locations); i++ {
				l := trip.Locations[i]
				batch.Queue(insertLocation, pgx.NamedArgs{
					"trip_id":     trip.ID,
					"seq":         i,
					"recorded_at": l.Timestamp,
					"longitude":   l.Longitude,
					"latitude":    l.Latitude,
				})
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert locations: %w", err)
			}
		}

		// Read back through the transaction so callers see DB-normalised timestamps.
		saved, err = (&pgTripRepo{db: tx}).GetByID(ctx, trip.ID)
		return err
	})
	if err != nil {
		if isSingleActiveViolation(err) {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.Save: %w", domain.ErrConflict)
		}
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Save: %w", err)
	}
	return saved, nil
}

// staleWrite explains an upsert that matched no row: the stored trip is either
// finished or at a newer version than the caller's copy.
func staleWrite(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var active bool
	err := tx.QueryRow(ctx, `SELECT active FROM trips WHERE id = @id`, pgx.NamedArgs{"id": id}).Scan(&active)
	if err != nil {
		return fmt.Errorf("stale write: %w", err)
	}
	if !active {
		return fmt.Errorf("trip %s is finished: %w", id, domain.ErrInvalidState)
	}
	return fmt.Errorf("trip %s was modified concurrently: %w", id, domain.ErrConflict)
}

// loadLocations fills Locations for each trip with one query.
func (r *pgTripRepo) loadLocations(ctx context.Context, trips []*domain.Trip) error {
	if len(trips) == 0 {
		return nil
	}

	const q = `
		SELECT trip_id, recorded_at, longitude, latitude
		FROM locations
		WHERE trip_id = ANY(@ids)
		ORDER BY trip_id, seq ASC`

	ids := make([]pgtype.UUID, len(trips))
	byID := make(map[uuid.UUID]*domain.Trip, len(trips))
	for i, t := range trips {
		ids[i] = pgtype.UUID{Bytes: t.ID, Valid: true}
		byID[t.ID] = t
	}

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"ids": ids})
	if err != nil {
		return fmt.Errorf("locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l   domain.Location
			tid pgtype.UUID
		)
		if err := rows.Scan(&tid, &l.Timestamp, &l.Longitude, &l.Latitude); err != nil {
			return fmt.Errorf("locations: scan: %w", err)
		}
		l.TripID = uuid.UUID(tid.Bytes)
		if t, ok := byID[l.TripID]; ok {
			t.Locations = append(t.Locations, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("locations: rows: %w", err)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanTrip to be
// reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single trips row into a domain.Trip without locations.
// It handles the UUID and the nullable end_time / duration_seconds pair.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t        domain.Trip
		id       pgtype.UUID
		endTime  pgtype.Timestamptz
		duration pgtype.Int8
	)

	err := s.Scan(&id, &t.StartTime, &endTime, &duration, &t.Active, &t.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	if endTime.Valid {
		et := endTime.Time
		t.EndTime = &et
	}
	if duration.Valid {
		d := duration.Int64
		t.DurationSeconds = &d
	}

	return t, nil
}

// isSingleActiveViolation reports whether err is the unique violation raised
// when a second trip is marked active.
func isSingleActiveViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == singleActiveIndex
}
