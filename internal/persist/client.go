// Package persist talks to the results API of a romkiosk server.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/romkiosk/internal/models"
)

// Client sends results to a romkiosk server over HTTP. Every call is a
// single attempt; callers decide what a failure means.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the server at serverURL. apiKey may be
// empty when the server does not require one.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateResponse is the body of a successful POST /api/v1/results.
type CreateResponse struct {
	NewResult models.ResultRow `json:"newResult"`
	Result    struct {
		ID int64 `json:"id"`
	} `json:"result"`
}

// CreateResult posts one result and returns the id the server assigned.
func (c *Client) CreateResult(ctx context.Context, row models.ResultRow) (int64, error) {
	var out CreateResponse
	if err := c.post(ctx, "/api/v1/results", row, http.StatusCreated, &out); err != nil {
		return 0, fmt.Errorf("saving result: %w", err)
	}
	return out.Result.ID, nil
}

// SaveResult posts one result.
func (c *Client) SaveResult(ctx context.Context, row models.ResultRow) error {
	_, err := c.CreateResult(ctx, row)
	return err
}

// RegisterUser posts a session key.
func (c *Client) RegisterUser(ctx context.Context, key, state string) error {
	body := map[string]string{"key": key, "state": state}
	if err := c.post(ctx, "/api/v1/users", body, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("registering user: %w", err)
	}
	return nil
}

// FetchResults lists stored results, optionally for one exercise.
func (c *Client) FetchResults(ctx context.Context, exerciseID string) ([]models.ResultRow, error) {
	path := "/api/v1/results"
	if exerciseID != "" {
		path += "?exerciseId=" + url.QueryEscape(exerciseID)
	}
	var out struct {
		Results []models.ResultRow `json:"results"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("fetching results: %w", err)
	}
	return out.Results, nil
}

func (c *Client) post(ctx context.Context, path string, body any, want int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, want, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, out)
}

func (c *Client) do(req *http.Request, want int, out any) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
