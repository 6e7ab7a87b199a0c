package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the fixed per-request deadline. No call retries
// automatically; a failed poll waits for the next timer tick.
const DefaultTimeout = 10 * time.Second

// DefaultLimit caps how many detections one poll asks for
const DefaultLimit = 100

// Client talks to the Pet Door Monitor backend's REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL (e.g.
// "http://pet-door.local:5000"). A zero timeout means DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetStatus fetches the current system status
func (c *Client) GetStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.getJSON(ctx, "get status", "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetDetections fetches up to limit detection events for the category.
// The backend sorts newest-first and may return fewer than limit;
// Total carries the uncapped count.
func (c *Client) GetDetections(ctx context.Context, category Category, limit int) (*DetectionList, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("invalid category %q", category)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := url.Values{}
	q.Set("category", string(category))
	q.Set("limit", strconv.Itoa(limit))

	var list DetectionList
	if err := c.getJSON(ctx, "get detections", "/api/detections?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	if list.Detections == nil {
		list.Detections = []Detection{}
	}
	return &list, nil
}

// Toggle flips the backend's monitoring state and returns the new one.
// The client never predicts the outcome; callers must refetch status.
func (c *Client) Toggle(ctx context.Context) (*ToggleResult, error) {
	const op = "toggle detection"

	resp, err := c.do(ctx, op, http.MethodPost, "/api/toggle", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ToggleResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return &result, nil
}

// GetConfig fetches the backend's tunable settings
func (c *Client) GetConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := c.getJSON(ctx, "get config", "/api/config", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateConfig sends a partial settings patch. Keys absent from the
// patch keep their server-side values.
func (c *Client) UpdateConfig(ctx context.Context, patch Config) error {
	const op = "update config"

	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("%s: marshal patch: %w", op, err)
	}

	resp, err := c.do(ctx, op, http.MethodPost, "/api/config", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if !result.Success {
		return &ServerError{Op: op, Status: resp.StatusCode, Body: "backend rejected config update"}
	}
	return nil
}

// DeleteDetection removes the event identified by (category, id).
// Deleting an event the backend no longer has counts as success: the
// user's intent (event gone) is already satisfied.
func (c *Client) DeleteDetection(ctx context.Context, category Category, id string) error {
	const op = "delete detection"

	if !category.ItemCategory() {
		return fmt.Errorf("%s: invalid category %q", op, category)
	}

	path := fmt.Sprintf("/api/delete/%s/%s", url.PathEscape(string(category)), url.PathEscape(id))
	resp, err := c.do(ctx, op, http.MethodDelete, path, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	resp.Body.Close()
	return nil
}

// FetchImage streams the JPEG for a detection. The caller owns the
// returned body and must close it.
func (c *Client) FetchImage(ctx context.Context, category Category, filename string) (io.ReadCloser, string, error) {
	const op = "fetch image"

	if !category.ItemCategory() {
		return nil, "", fmt.Errorf("%s: invalid category %q", op, category)
	}

	path := fmt.Sprintf("/api/image/%s/%s", url.PathEscape(string(category)), url.PathEscape(filename))
	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return resp.Body, contentType, nil
}

// getJSON performs a GET and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// do issues the request and maps failures onto the error taxonomy:
// TransportError for network problems, ServerError for non-2xx. On
// success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &ServerError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}

	return resp, nil
}
