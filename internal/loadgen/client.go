package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// HTTPClient wraps http.Client with the service's endpoints.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for the service at cfg.BaseURL.
func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// Health checks GET /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", status)
	}
	return nil
}

// EncodeBatch renders events the way the service reads them: an array of
// JSON strings, or of objects when inline is set.
func EncodeBatch(events []Event, inline bool) ([]byte, error) {
	if inline {
		return json.Marshal(events)
	}
	items := make([]string, len(events))
	for i, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		items[i] = string(b)
	}
	return json.Marshal(items)
}

// PostBatch posts one batch and returns the status code and summary. A 409
// still carries the summary of the applied batch.
func (c *HTTPClient) PostBatch(ctx context.Context, payload []byte) (int, Summary, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/events", payload)
	if err != nil {
		return status, Summary{}, err
	}
	var sum Summary
	switch status {
	case http.StatusAccepted:
		err = json.Unmarshal(body, &sum)
	case http.StatusConflict:
		var wrapped struct {
			Summary Summary `json:"summary"`
		}
		err = json.Unmarshal(body, &wrapped)
		sum = wrapped.Summary
	default:
		err = fmt.Errorf("post events: status %d: %s", status, bytes.TrimSpace(body))
	}
	return status, sum, err
}

// Sessions fetches the completed sessions of playerID.
func (c *HTTPClient) Sessions(ctx context.Context, playerID string) ([]Session, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(playerID), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", playerID, status)
	}
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return resp.Sessions, nil
}

// TrackerStats mirrors the tracker block of GET /stats.
type TrackerStats struct {
	Submitted int64 `json:"submitted"`
	Observed  int64 `json:"observed"`
	Pending   int   `json:"pending"`
}

// Tracker reads the completion tracker counters from GET /stats.
func (c *HTTPClient) Tracker(ctx context.Context) (TrackerStats, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/stats", nil)
	if err != nil {
		return TrackerStats{}, err
	}
	if status != http.StatusOK {
		return TrackerStats{}, fmt.Errorf("stats: status %d", status)
	}
	var resp struct {
		Tracker TrackerStats `json:"tracker"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return TrackerStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return resp.Tracker, nil
}
