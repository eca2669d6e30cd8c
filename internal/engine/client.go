package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/trueloggs/timesync/internal/models"
)

// Client talks to the sync server. The token is settable after login and
// clearable on sign-out.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	token string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/sync/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pull fetches changes after the cursor; an empty cursor means everything.
func (c *Client) Pull(ctx context.Context, since string) (*models.PullResponse, error) {
	path := "/api/sync/pull"
	if since != "" {
		path += "?lastSyncedAt=" + url.QueryEscape(since)
	}
	var out models.PullResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Push(ctx context.Context, req *models.PushRequest) (*models.PushResponse, error) {
	var out models.PushResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync/push", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Migrate(ctx context.Context, req *models.MigrateRequest) (*models.MigrateResponse, error) {
	var out models.MigrateResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync/migrate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return &TransportError{Op: method + " " + path, StatusCode: resp.StatusCode}
}
