package testutil_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/bike-trips/migrations"
	"github.com/pkordes/bike-trips/testutil"
)

// TestMigrations is an integration test that verifies the full migration
// round-trip against a real Postgres database:
//
//  1. Apply all migrations (goose up).
//  2. Assert every expected table exists.
//  3. Roll back all migrations (goose reset).
//  4. Assert every table has been removed.
//
// The test is skipped automatically when TEST_DATABASE_URL is not set.
func TestMigrations(t *testing.T) {
	db := testutil.NewSQLDB(t)

	provider, err := migrations.NewProvider(db)
	require.NoError(t, err, "create goose provider")

	ctx := context.Background()

	// --- Ensure a clean baseline before testing ---
	// Another package's TestMain may have already applied migrations against this
	// shared test DB. Reset to version 0 first so this test is self-contained and
	// order-independent, whether run alone or as part of the full suite.
	if _, err := provider.DownTo(ctx, 0); err != nil {
		t.Fatalf("TestMigrations: initial reset: %v", err)
	}

	// --- Apply all migrations ---
	results, err := provider.Up(ctx)
	require.NoError(t, err, "goose up")
	assert.Len(t, results, 3, "expected every migration to be applied")

	// Verify all expected tables exist after applying migrations.
	for _, table := range []string{"trips", "locations"} {
		assertTableExists(t, db, table)
	}
	assertSingleActiveIndex(t, db)
	assertVersionDefault(t, db)

	// --- Roll back all migrations ---
	_, err = provider.DownTo(ctx, 0)
	require.NoError(t, err, "goose down-to 0")

	// Verify all tables have been removed after rolling back.
	for _, table := range []string{"trips", "locations"} {
		assertTableNotExists(t, db, table)
	}
}

// assertSingleActiveIndex fails the test unless a second active trip is
// rejected by the trips_single_active partial unique index.
func assertSingleActiveIndex(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO trips (id, start_time, active) VALUES (gen_random_uuid(), now(), true)`
	_, err = tx.ExecContext(ctx, insert)
	require.NoError(t, err, "first active trip")

	_, err = tx.ExecContext(ctx, insert)
	require.Error(t, err, "second active trip must violate trips_single_active")
	assert.Contains(t, err.Error(), "trips_single_active")
}

// assertVersionDefault fails the test unless a freshly inserted trip starts at
// version 1.
func assertVersionDefault(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback() //nolint:errcheck

	var version int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO trips (id, start_time, active) VALUES (gen_random_uuid(), now(), false) RETURNING version`,
	).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

// assertTableExists fails the test if the named table does not exist in the
// public schema of the connected database.
func assertTableExists(t *testing.T, db *sql.DB, table string) {
	t.Helper()
	assertTablePresence(t, db, table, true)
}

// assertTableNotExists fails the test if the named table exists in the
// public schema of the connected database.
func assertTableNotExists(t *testing.T, db *sql.DB, table string) {
	t.Helper()
	assertTablePresence(t, db, table, false)
}

func assertTablePresence(t *testing.T, db *sql.DB, table string, shouldExist bool) {
	t.Helper()

	// Use the information_schema to check table existence in a portable way.
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public'
			AND   table_name   = $1
		)`
	var exists bool
	err := db.QueryRowContext(context.Background(), q, table).Scan(&exists)
	require.NoError(t, err, "check table existence for %q", table)

	if shouldExist {
		assert.True(t, exists, "expected table %q to exist", table)
	} else {
		assert.False(t, exists, "expected table %q to not exist", table)
	}
}
