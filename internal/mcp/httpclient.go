package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/storage"
)

// HTTPClient implements DataSource and ExerciseSource by calling the kiosk
// REST API. Used for remote MCP mode where the binary runs locally (stdio)
// but data lives on the kiosk or central server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time checks.
var (
	_ DataSource     = (*HTTPClient)(nil)
	_ ExerciseSource = (*HTTPClient)(nil)
)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func (c *HTTPClient) QueryResults(ctx context.Context, f storage.ResultFilter) ([]models.ResultRow, error) {
	params := url.Values{}
	if f.ExerciseID != "" {
		params.Set("exerciseId", f.ExerciseID)
	}
	if f.UserKey != "" {
		params.Set("userKey", f.UserKey)
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}

	body, err := c.get(ctx, "/api/v1/results", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []models.ResultRow `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpclient: decode results: %w", err)
	}
	if f.AfterID > 0 {
		resp.Results = slices.DeleteFunc(resp.Results, func(r models.ResultRow) bool { return r.ID <= f.AfterID })
	}
	return resp.Results, nil
}

// RecentResults fetches every result and keeps the newest. The REST API
// lists results oldest first.
func (c *HTTPClient) RecentResults(ctx context.Context, limit int) ([]models.ResultRow, error) {
	if limit <= 0 {
		limit = recentResultsLimit
	}
	rows, err := c.QueryResults(ctx, storage.ResultFilter{})
	if err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	slices.Reverse(rows)
	return rows, nil
}

func (c *HTTPClient) ResultSummaries(ctx context.Context, exerciseID string) ([]storage.ExerciseSummary, error) {
	params := url.Values{}
	if exerciseID != "" {
		params.Set("exerciseId", exerciseID)
	}

	body, err := c.get(ctx, "/api/v1/results/summary", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Summaries []storage.ExerciseSummary `json:"summaries"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpclient: decode summaries: %w", err)
	}
	return resp.Summaries, nil
}

// Exercises reads the catalog of a kiosk. Central results servers do not
// serve it.
func (c *HTTPClient) Exercises(ctx context.Context) (models.ExerciseCollection, error) {
	body, err := c.get(ctx, "/api/v1/exercises", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Exercises models.ExerciseCollection `json:"exercises"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpclient: decode exercises: %w", err)
	}
	return resp.Exercises, nil
}
