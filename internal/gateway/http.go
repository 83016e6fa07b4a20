// Package gateway is the client side of the dispatch server's driver API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dispatchboard/internal/config"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
)

// HTTPGateway talks JSON over HTTP to the dispatch server. Transport-level
// failures surface as domain.ErrNetworkUnavailable so callers can divert
// the mutation into the offline queue; application-level rejections come
// back as plain errors and are not retried.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	header  string
	client  *http.Client
	log     zerolog.Logger
}

func NewHTTPGateway(cfg config.GatewayConfig, headerAPIKey string, logger zerolog.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if headerAPIKey == "" {
		headerAPIKey = "x-api-key"
	}
	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		header:  headerAPIKey,
		client:  &http.Client{Timeout: timeout},
		log:     logger.With().Str("component", "gateway").Logger(),
	}
}

type ackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (g *HTTPGateway) UpdateJobStatus(ctx context.Context, u models.StatusUpdate) error {
	return g.post(ctx, "/api/v1/driver/status", u)
}

func (g *HTTPGateway) SubmitPOD(ctx context.Context, p models.PODSubmission) error {
	return g.post(ctx, "/api/v1/driver/pod", p)
}

func (g *HTTPGateway) UpdateDriverLocation(ctx context.Context, l models.DriverLocation) error {
	return g.post(ctx, "/api/v1/driver/location", l)
}

func (g *HTTPGateway) ListDriverJobs(ctx context.Context, userID, truckID int64) ([]*models.Job, error) {
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))
	q.Set("truck_id", strconv.FormatInt(truckID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/v1/driver/jobs?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(g.header, g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, g.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.remoteError(resp)
	}

	var payload struct {
		Jobs []*models.Job `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode jobs response: %w", err)
	}
	return payload.Jobs, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(g.header, g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return g.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return g.remoteError(resp)
	}

	var ack ackResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("remote rejected request: %s", ack.Error)
	}
	return nil
}

// classify maps transport failures to ErrNetworkUnavailable. Timeouts, DNS
// failures and refused connections all mean "offline" from the device's
// point of view.
func (g *HTTPGateway) classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	return err
}

func (g *HTTPGateway) remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	g.log.Warn().Int("status", resp.StatusCode).Bytes("body", body).Msg("remote returned an error")
	return fmt.Errorf("remote returned status %d", resp.StatusCode)
}
