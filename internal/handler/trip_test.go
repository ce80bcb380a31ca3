package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/bike-trips/internal/domain"
	"github.com/pkordes/bike-trips/internal/handler"
	"github.com/pkordes/bike-trips/internal/middleware"
)

// mockTripServicer is a test double for handler.TripServicer.
// Set only the method fields your test needs.
type mockTripServicer struct {
	start          func(ctx context.Context, lon, lat float64) (uuid.UUID, error)
	appendLocation func(ctx context.Context, id uuid.UUID, lon, lat float64) error
	finish         func(ctx context.Context, id uuid.UUID, lon, lat float64) error
	query          func(ctx context.Context, id uuid.UUID) (string, error)
	rangeSummary   func(ctx context.Context, start, end time.Time) (string, error)
	activeTrip     func(ctx context.Context) (domain.Trip, error)
	list           func(ctx context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error)
}

func (m *mockTripServicer) Start(ctx context.Context, lon, lat float64) (uuid.UUID, error) {
	return m.start(ctx, lon, lat)
}
func (m *mockTripServicer) AppendLocation(ctx context.Context, id uuid.UUID, lon, lat float64) error {
	return m.appendLocation(ctx, id, lon, lat)
}
func (m *mockTripServicer) Finish(ctx context.Context, id uuid.UUID, lon, lat float64) error {
	return m.finish(ctx, id, lon, lat)
}
func (m *mockTripServicer) Query(ctx context.Context, id uuid.UUID) (string, error) {
	return m.query(ctx, id)
}
func (m *mockTripServicer) RangeSummary(ctx context.Context, start, end time.Time) (string, error) {
	return m.rangeSummary(ctx, start, end)
}
func (m *mockTripServicer) ActiveTrip(ctx context.Context) (domain.Trip, error) {
	return m.activeTrip(ctx)
}
func (m *mockTripServicer) List(ctx context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	return m.list(ctx, p)
}

// compile-time check: mockTripServicer must satisfy handler.TripServicer.
var _ handler.TripServicer = (*mockTripServicer)(nil)

// ---- helpers ---------------------------------------------------------------

// newHTTPHandler wires a Server with the given mock into a chi router.
func newHTTPHandler(svc handler.TripServicer) http.Handler {
	return handler.NewServer(svc, nil).Handler()
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func post(h http.Handler, path string, body *bytes.Buffer) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// ---- POST /trips -----------------------------------------------------------

func TestStartTrip_201(t *testing.T) {
	id := uuid.New()
	var gotLon, gotLat float64
	svc := &mockTripServicer{
		start: func(_ context.Context, lon, lat float64) (uuid.UUID, error) {
			gotLon, gotLat = lon, lat
			return id, nil
		},
	}

	rec := post(newHTTPHandler(svc), "/trips", jsonBody(t, map[string]any{"longitude": 27.5, "latitude": 42.1}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/trips/"+id.String(), rec.Header().Get("Location"))
	assert.Equal(t, 27.5, gotLon)
	assert.Equal(t, 42.1, gotLat)

	var resp handler.StartTripResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, id, resp.ID)
}

func TestStartTrip_409_AlreadyActive(t *testing.T) {
	svc := &mockTripServicer{
		start: func(_ context.Context, _, _ float64) (uuid.UUID, error) {
			return uuid.Nil, domain.NewError(domain.ErrConflict, "another trip is already active")
		},
	}

	rec := post(newHTTPHandler(svc), "/trips", jsonBody(t, map[string]any{"longitude": 0, "latitude": 0}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "conflict", detail.Code)
	assert.Equal(t, "another trip is already active", detail.Message)
}

func TestStartTrip_422_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "request body is required"},
		{"not json", "{", "invalid request body"},
		{"missing longitude", `{"latitude": 1}`, "longitude is required"},
		{"missing latitude", `{"longitude": 1}`, "latitude is required"},
		{"unknown field", `{"longitude": 1, "latitude": 1, "altitude": 3}`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTripServicer{
				start: func(_ context.Context, _, _ float64) (uuid.UUID, error) {
					t.Fatal("service must not be called")
					return uuid.Nil, nil
				},
			}

			rec := post(newHTTPHandler(svc), "/trips", bytes.NewBufferString(tt.body))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, "validation_error", detail.Code)
			assert.Contains(t, detail.Message, tt.want)
		})
	}
}

func TestStartTrip_413_BodyTooLarge(t *testing.T) {
	svc := &mockTripServicer{}
	h := middleware.NewMaxBodySizeHandler(16)(newHTTPHandler(svc))

	req := httptest.NewRequest(http.MethodPost, "/trips",
		strings.NewReader(`{"longitude": 1.000000000000, "latitude": 2.0000000000}`))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStartTrip_500_HidesInternalError(t *testing.T) {
	svc := &mockTripServicer{
		start: func(_ context.Context, _, _ float64) (uuid.UUID, error) {
			return uuid.Nil, errors.New("service.TripService.Start: connection refused")
		},
	}

	rec := post(newHTTPHandler(svc), "/trips", jsonBody(t, map[string]any{"longitude": 0, "latitude": 0}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "internal_error", detail.Code)
	assert.NotContains(t, detail.Message, "connection refused")
}

// ---- GET /trips/active -----------------------------------------------------

func TestGetActiveTrip_200(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	trip := domain.NewTrip(uuid.New(), 27.0, 42.0, start)
	trip.AddLocation(28.0, 42.0, start.Add(time.Minute))
	svc := &mockTripServicer{
		activeTrip: func(_ context.Context) (domain.Trip, error) { return trip, nil },
	}

	rec := get(newHTTPHandler(svc), "/trips/active")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp handler.TripResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, trip.ID, resp.ID)
	assert.True(t, resp.Active)
	assert.Len(t, resp.Locations, 2)
	assert.InDelta(t, trip.TotalDistanceKm(), resp.DistanceKm, 1e-9)
}

func TestGetActiveTrip_404(t *testing.T) {
	svc := &mockTripServicer{
		activeTrip: func(_ context.Context) (domain.Trip, error) {
			return domain.Trip{}, domain.NewError(domain.ErrNotFound, "no trip is currently active")
		},
	}

	rec := get(newHTTPHandler(svc), "/trips/active")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no trip is currently active", decodeError(t, rec).Message)
}

// ---- POST /trips/{id}/locations --------------------------------------------

func TestAppendLocation_204(t *testing.T) {
	id := uuid.New()
	var gotID uuid.UUID
	svc := &mockTripServicer{
		appendLocation: func(_ context.Context, tid uuid.UUID, _, _ float64) error {
			gotID = tid
			return nil
		},
	}

	rec := post(newHTTPHandler(svc), "/trips/"+id.String()+"/locations",
		jsonBody(t, map[string]any{"longitude": 1.5, "latitude": 2.5}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, gotID)
}

func TestAppendLocation_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown trip", domain.NewError(domain.ErrNotFound, "no trip with that id"), http.StatusNotFound, "not_found"},
		{"finished trip", domain.NewError(domain.ErrInvalidState, "trip is not active"), http.StatusConflict, "invalid_state"},
		{"concurrent update", domain.NewError(domain.ErrConflict, "trip was modified by another request, retry"), http.StatusConflict, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTripServicer{
				appendLocation: func(_ context.Context, _ uuid.UUID, _, _ float64) error { return tt.err },
			}

			rec := post(newHTTPHandler(svc), "/trips/"+uuid.NewString()+"/locations",
				jsonBody(t, map[string]any{"longitude": 1, "latitude": 2}))

			assert.Equal(t, tt.status, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, tt.code, detail.Code)
			assert.Equal(t, tt.err.Error(), detail.Message)
		})
	}
}

func TestAppendLocation_422_BadID(t *testing.T) {
	svc := &mockTripServicer{}

	rec := post(newHTTPHandler(svc), "/trips/not-a-uuid/locations",
		jsonBody(t, map[string]any{"longitude": 1, "latitude": 2}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "invalid trip id")
}

// ---- POST /trips/{id}/finish -----------------------------------------------

func TestFinishTrip_204(t *testing.T) {
	id := uuid.New()
	svc := &mockTripServicer{
		finish: func(_ context.Context, tid uuid.UUID, lon, lat float64) error {
			assert.Equal(t, id, tid)
			assert.Equal(t, 3.0, lon)
			assert.Equal(t, 4.0, lat)
			return nil
		},
	}

	rec := post(newHTTPHandler(svc), "/trips/"+id.String()+"/finish",
		jsonBody(t, map[string]any{"longitude": 3, "latitude": 4}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFinishTrip_409_NotActive(t *testing.T) {
	svc := &mockTripServicer{
		finish: func(_ context.Context, _ uuid.UUID, _, _ float64) error {
			return domain.NewError(domain.ErrInvalidState, "cannot add a location to a trip that is not active")
		},
	}

	rec := post(newHTTPHandler(svc), "/trips/"+uuid.NewString()+"/finish",
		jsonBody(t, map[string]any{"longitude": 3, "latitude": 4}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot add a location to a trip that is not active", decodeError(t, rec).Message)
}

// ---- GET /trips/{id}/summary -----------------------------------------------

func TestGetTripSummary_200(t *testing.T) {
	svc := &mockTripServicer{
		query: func(_ context.Context, _ uuid.UUID) (string, error) { return "Trip summary text\n", nil },
	}

	rec := get(newHTTPHandler(svc), "/trips/"+uuid.NewString()+"/summary")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Trip summary text\n", rec.Body.String())
}

func TestGetTripSummary_409_StillActive(t *testing.T) {
	svc := &mockTripServicer{
		query: func(_ context.Context, _ uuid.UUID) (string, error) {
			return "", domain.NewError(domain.ErrInvalidState, "cannot query a trip that has not finished")
		},
	}

	rec := get(newHTTPHandler(svc), "/trips/"+uuid.NewString()+"/summary")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot query a trip that has not finished", decodeError(t, rec).Message)
}

// ---- GET /trips/summary ----------------------------------------------------

func TestGetRangeSummary_200(t *testing.T) {
	var gotStart, gotEnd time.Time
	svc := &mockTripServicer{
		rangeSummary: func(_ context.Context, start, end time.Time) (string, error) {
			gotStart, gotEnd = start, end
			return "Trip summary\n", nil
		},
	}

	rec := get(newHTTPHandler(svc), "/trips/summary?start=2025-06-01T00:00:00Z&end=2025-06-30T23:59:59Z")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Trip summary\n", rec.Body.String())
	assert.True(t, gotStart.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, gotEnd.Equal(time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)))
}

func TestGetRangeSummary_422(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   error
		want  string
	}{
		{"missing start", "?end=2025-06-30T00:00:00Z", nil, `invalid start: query parameter "start" is required`},
		{"missing end", "?start=2025-06-01T00:00:00Z", nil, `invalid end: query parameter "end" is required`},
		{"empty start", "?start=&end=2025-06-30T00:00:00Z", nil, `query parameter "start" is required`},
		{"no parameters", "", nil, `query parameter "start" is required`},
		{"malformed start", "?start=yesterday&end=2025-06-30T00:00:00Z", nil, "invalid start"},
		{"malformed end", "?start=2025-06-01T00:00:00Z&end=tomorrow", nil, "invalid end"},
		{
			"start after end", "?start=2025-07-01T00:00:00Z&end=2025-06-01T00:00:00Z",
			domain.NewError(domain.ErrValidation, "start date must be before end date"),
			"start date must be before end date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockTripServicer{
				rangeSummary: func(_ context.Context, _, _ time.Time) (string, error) {
					called = true
					return "", tt.err
				},
			}

			rec := get(newHTTPHandler(svc), "/trips/summary"+tt.query)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, "validation_error", detail.Code)
			assert.Contains(t, detail.Message, tt.want)
			assert.Equal(t, tt.err != nil, called, "bad query parameters never reach the service")
		})
	}
}

// ---- GET /trips ------------------------------------------------------------

func TestListTrips_200(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	finished := domain.NewTrip(uuid.New(), 27.0, 42.0, start)
	finished.Finish(27.1, 42.1, start.Add(90*time.Second))
	active := domain.NewTrip(uuid.New(), 28.0, 43.0, start.Add(time.Hour))

	var got domain.PaginationParams
	svc := &mockTripServicer{
		list: func(_ context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error) {
			got = p
			return []domain.Trip{active, finished}, 7, nil
		},
	}

	rec := get(newHTTPHandler(svc), "/trips?page=2&limit=2")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PaginationParams{Page: 2, Limit: 2}, got)

	var resp handler.TripListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, handler.Pagination{Page: 2, Limit: 2, Total: 7}, resp.Pagination)
	require.Len(t, resp.Data, 2)

	assert.Equal(t, active.ID, resp.Data[0].ID)
	assert.True(t, resp.Data[0].Active)
	assert.Nil(t, resp.Data[0].EndTime)
	assert.Nil(t, resp.Data[0].DurationSeconds)

	assert.Equal(t, finished.ID, resp.Data[1].ID)
	assert.False(t, resp.Data[1].Active)
	require.NotNil(t, resp.Data[1].EndTime)
	assert.True(t, resp.Data[1].EndTime.Equal(start.Add(90*time.Second)))
	require.NotNil(t, resp.Data[1].DurationSeconds)
	assert.Equal(t, int64(90), *resp.Data[1].DurationSeconds)
	assert.Len(t, resp.Data[1].Locations, 2)
}

func TestListTrips_200_Defaults(t *testing.T) {
	var got domain.PaginationParams
	svc := &mockTripServicer{
		list: func(_ context.Context, p domain.PaginationParams) ([]domain.Trip, int64, error) {
			got = p
			return nil, 0, nil
		},
	}

	rec := get(newHTTPHandler(svc), "/trips?limit=1000")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PaginationParams{Page: 1, Limit: 100}, got, "limit is capped")
	// Must be a JSON array, not null.
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestListTrips_422_BadPage(t *testing.T) {
	svc := &mockTripServicer{}

	rec := get(newHTTPHandler(svc), "/trips?page=two")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "validation_error", detail.Code)
	assert.Contains(t, detail.Message, "invalid page")
}

func TestListTrips_500(t *testing.T) {
	svc := &mockTripServicer{
		list: func(_ context.Context, _ domain.PaginationParams) ([]domain.Trip, int64, error) {
			return nil, 0, errors.New("connection refused")
		},
	}

	rec := get(newHTTPHandler(svc), "/trips")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, decodeError(t, rec).Message, "connection refused")
}
