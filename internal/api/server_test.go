package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"dispatchboard/internal/board"
	"dispatchboard/internal/config"
	"dispatchboard/internal/database"
	"dispatchboard/internal/events"
	"dispatchboard/internal/models"
	"dispatchboard/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type nopSyncer struct{}

func (nopSyncer) EnqueueScheduleSync(ctx context.Context, date time.Time) error { return nil }

type apiFixture struct {
	db     *database.DB
	bus    *events.EventBus
	server *Server
	date   time.Time
}

func setupServer(t *testing.T) *apiFixture {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	boardCfg := config.BoardConfig{
		Trucks:    []models.Truck{{ID: 1, Name: "Truck 1"}},
		TimeSlots: models.DefaultTimeSlots,
	}
	apiCfg := config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: testAPIKey, Name: "test"}},
		},
	}

	state := repository.NewMemoryStateRepository()
	bus := events.NewEventBus()
	boards := board.NewController(db, state, bus, nopSyncer{}, boardCfg, zerolog.Nop())

	return &apiFixture{
		db:     db,
		bus:    bus,
		server: NewServer(apiCfg, db, boards, state, bus, zerolog.Nop()),
		date:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("x-api-key", testAPIKey)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *apiFixture) createJob(t *testing.T, status, driverStatus string) *models.Job {
	job := &models.Job{
		CustomerID:    1,
		CustomerName:  "Acme",
		RequestedDate: f.date,
		Status:        status,
		DriverStatus:  driverStatus,
	}
	require.NoError(t, f.db.CreateJob(context.Background(), job))
	return job
}

func decodeAck(t *testing.T, w *httptest.ResponseRecorder) (bool, string) {
	var ack struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	return ack.Success, ack.Error
}

func TestAuth_MissingKey(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/board?date=2026-09-01", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_InvalidKey(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/board?date=2026-09-01", nil)
	req.Header.Set("x-api-key", "wrong")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_PermissionDenied(t *testing.T) {
	f := setupServer(t)
	f.server.auth.cfg.Auth.APIKeys = []config.APIClientKey{
		{Key: testAPIKey, Name: "device", Permissions: []string{"driver"}},
	}

	w := f.request(t, http.MethodGet, "/api/v1/board?date=2026-09-01", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The same key still reaches driver endpoints.
	w = f.request(t, http.MethodGet, "/api/v1/driver/jobs?user_id=1&truck_id=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthzSkipsAuth(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDriverStatus_PromotesJob(t *testing.T) {
	f := setupServer(t)
	job := f.createJob(t, models.StatusScheduled, models.DriverNotStarted)

	w := f.request(t, http.MethodPost, "/api/v1/driver/status", models.StatusUpdate{
		JobID:        job.ID,
		DriverStatus: models.DriverEnRoute,
		Status:       models.StatusInTransit,
		UserID:       9,
		UserName:     "Sam",
	})
	require.Equal(t, http.StatusOK, w.Code)
	ok, _ := decodeAck(t, w)
	assert.True(t, ok)

	got, err := f.db.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DriverEnRoute, got.DriverStatus)
	assert.Equal(t, models.StatusInTransit, got.Status)
}

func TestDriverStatus_RejectsIllegalMove(t *testing.T) {
	f := setupServer(t)
	job := f.createJob(t, models.StatusScheduled, models.DriverNotStarted)

	w := f.request(t, http.MethodPost, "/api/v1/driver/status", models.StatusUpdate{
		JobID:        job.ID,
		DriverStatus: models.DriverUnloading,
	})
	require.Equal(t, http.StatusOK, w.Code)
	ok, msg := decodeAck(t, w)
	assert.False(t, ok)
	assert.NotEmpty(t, msg)

	got, _ := f.db.GetJob(context.Background(), job.ID)
	assert.Equal(t, models.DriverNotStarted, got.DriverStatus)
}

func TestDriverStatus_PublishesProblemEvent(t *testing.T) {
	f := setupServer(t)
	job := f.createJob(t, models.StatusInTransit, models.DriverEnRoute)

	var problems int
	f.bus.Subscribe(events.EventProblemReported, func(*events.Event) error {
		problems++
		return nil
	})

	w := f.request(t, http.MethodPost, "/api/v1/driver/status", models.StatusUpdate{
		JobID:          job.ID,
		DriverStatus:   models.DriverProblem,
		ProblemDetails: "gate locked",
	})
	ok, _ := decodeAck(t, w)
	assert.True(t, ok)
	assert.Equal(t, 1, problems)
}

func TestDriverPOD_CompletesJob(t *testing.T) {
	f := setupServer(t)
	job := f.createJob(t, models.StatusInTransit, models.DriverUnloading)

	var delivered int
	f.bus.Subscribe(events.EventJobDelivered, func(*events.Event) error {
		delivered++
		return nil
	})

	w := f.request(t, http.MethodPost, "/api/v1/driver/pod", models.PODSubmission{
		JobID:     job.ID,
		PhotoURLs: []string{"https://blobs/pod1.jpg"},
		UserName:  "Sam",
	})
	require.Equal(t, http.StatusOK, w.Code)
	ok, _ := decodeAck(t, w)
	assert.True(t, ok)
	assert.Equal(t, 1, delivered)

	got, err := f.db.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
	assert.Equal(t, models.DriverCompleted, got.DriverStatus)
}

func TestDriverPOD_RequiresEvidence(t *testing.T) {
	f := setupServer(t)
	job := f.createJob(t, models.StatusInTransit, models.DriverUnloading)

	w := f.request(t, http.MethodPost, "/api/v1/driver/pod", models.PODSubmission{JobID: job.ID})
	ok, msg := decodeAck(t, w)
	assert.False(t, ok)
	assert.Contains(t, msg, "photo or signature")
}

func TestDriverJobs_FiltersByQuery(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	job := f.createJob(t, models.StatusScheduled, models.DriverNotStarted)
	require.NoError(t, f.db.CreateAssignment(ctx, &models.Assignment{
		JobID: job.ID, TruckID: 1, TimeSlotID: 1,
		SlotPosition: models.BlockAPosition, Date: f.date,
	}))

	w := f.request(t, http.MethodGet, "/api/v1/driver/jobs?user_id=9&truck_id=1&date=2026-09-01", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Jobs []*models.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Jobs, 1)
	assert.Equal(t, job.ID, payload.Jobs[0].ID)
}

func TestBoardView_RequiresDate(t *testing.T) {
	f := setupServer(t)

	w := f.request(t, http.MethodGet, "/api/v1/board", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBoardDragEnd_SchedulesJob(t *testing.T) {
	f := setupServer(t)
	job := f.createJob(t, models.StatusApproved, models.DriverNotStarted)

	w := f.request(t, http.MethodPost, "/api/v1/board/dragend", map[string]any{
		"date":               "2026-09-01",
		"entity_id":          "job:" + strconv.FormatInt(job.ID, 10),
		"truck_id":           1,
		"time_slot_id":       1,
		"requested_position": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var view board.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Cells, 1)
	assert.Empty(t, view.Unscheduled)
}

func TestBoardDragEnd_FullCellConflicts(t *testing.T) {
	f := setupServer(t)

	for i := 0; i < 2; i++ {
		job := f.createJob(t, models.StatusApproved, models.DriverNotStarted)
		w := f.request(t, http.MethodPost, "/api/v1/board/dragend", map[string]any{
			"date":               "2026-09-01",
			"entity_id":          "job:" + strconv.FormatInt(job.ID, 10),
			"truck_id":           1,
			"time_slot_id":       1,
			"requested_position": 1,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	third := f.createJob(t, models.StatusApproved, models.DriverNotStarted)
	w := f.request(t, http.MethodPost, "/api/v1/board/dragend", map[string]any{
		"date":               "2026-09-01",
		"entity_id":          "job:" + strconv.FormatInt(third.ID, 10),
		"truck_id":           1,
		"time_slot_id":       1,
		"requested_position": 1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBoardMarkRead(t *testing.T) {
	f := setupServer(t)
	job := f.createJob(t, models.StatusApproved, models.DriverNotStarted)

	w := f.request(t, http.MethodPost, "/api/v1/board/read-markers", map[string]any{
		"date": "2026-09-01", "job_id": job.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/v1/board?date=2026-09-01", nil)
	var view board.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Unscheduled, 1)
	assert.False(t, view.Unscheduled[0].IsNew)
}

func TestRateLimit_TokenBucket(t *testing.T) {
	f := setupServer(t)
	f.server.auth.cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}

	w := f.request(t, http.MethodGet, "/api/v1/board?date=2026-09-01", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/v1/board?date=2026-09-01", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
