package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dispatchboard/internal/config"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(baseURL string) *HTTPGateway {
	return NewHTTPGateway(config.GatewayConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, "x-api-key", zerolog.Nop())
}

func TestUpdateJobStatus(t *testing.T) {
	var got models.StatusUpdate
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/driver/status", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer server.Close()

	g := newTestGateway(server.URL)
	err := g.UpdateJobStatus(context.Background(), models.StatusUpdate{
		JobID: 1, DriverStatus: models.DriverEnRoute, UserID: 7, UserName: "Driver",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.JobID)
	assert.Equal(t, models.DriverEnRoute, got.DriverStatus)
}

func TestPost_RemoteRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "terminal job"})
	}))
	defer server.Close()

	g := newTestGateway(server.URL)
	err := g.SubmitPOD(context.Background(), models.PODSubmission{JobID: 1, PhotoURLs: []string{"a"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNetworkUnavailable)
	assert.Contains(t, err.Error(), "terminal job")
}

func TestPost_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	g := newTestGateway(server.URL)
	err := g.UpdateDriverLocation(context.Background(), models.DriverLocation{UserID: 1})
	require.Error(t, err)
	// A reachable server that errors is a remote failure, not offline.
	assert.NotErrorIs(t, err, domain.ErrNetworkUnavailable)
}

func TestConnectionRefusedIsNetworkUnavailable(t *testing.T) {
	// Nothing listens here.
	g := newTestGateway("http://127.0.0.1:1")

	err := g.UpdateJobStatus(context.Background(), models.StatusUpdate{JobID: 1})
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)

	_, err = g.ListDriverJobs(context.Background(), 1, 1)
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
}

func TestListDriverJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/driver/jobs", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("user_id"))
		assert.Equal(t, "3", r.URL.Query().Get("truck_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jobs": []*models.Job{
				{ID: 1, CustomerName: "Acme", Status: models.StatusScheduled},
			},
		})
	}))
	defer server.Close()

	g := newTestGateway(server.URL)
	jobs, err := g.ListDriverJobs(context.Background(), 7, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Acme", jobs[0].CustomerName)
}
