// Package backend is the REST client for the upstream content service.
// It implements every fetcher interface the sources consume.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	contexterrors "github.com/emberune/taleweave/internal/errors"
	"github.com/emberune/taleweave/source"
)

// Config holds the backend client configuration.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond int
	Burst             int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "http://localhost:8080",
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// NewConfigFromEnv builds a config from TALEWEAVE_BACKEND_* variables.
func NewConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("TALEWEAVE_BACKEND_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("TALEWEAVE_BACKEND_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	return cfg
}

// Client talks JSON over HTTP to the content service. All requests
// share one rate limiter so a burst of cache misses cannot hammer the
// backend.
type Client struct {
	http    *http.Client
	config  *Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a backend client, filling unset config values with
// defaults.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst == 0 {
		cfg.Burst = cfg.RequestsPerSecond * 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// FetchCharacter loads one character's raw card payload.
func (c *Client) FetchCharacter(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/api/v1/characters/"+url.PathEscape(id), &out)
	return out, err
}

// FetchWorld loads one world sheet.
func (c *Client) FetchWorld(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/api/v1/worlds/"+url.PathEscape(id), &out)
	return out, err
}

// FetchRoom loads one room definition.
func (c *Client) FetchRoom(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/api/v1/rooms/"+url.PathEscape(id), &out)
	return out, err
}

// FetchSession loads one chat session.
func (c *Client) FetchSession(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id), &out)
	return out, err
}

// SaveNotes persists session notes.
func (c *Client) SaveNotes(ctx context.Context, id, notes string) error {
	return c.patchJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id), map[string]any{"notes": notes})
}

// SaveTitle persists the session title.
func (c *Client) SaveTitle(ctx context.Context, id, title string) error {
	return c.patchJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id), map[string]any{"title": title})
}

// FetchAdventureLog loads the world+user journey log.
func (c *Client) FetchAdventureLog(ctx context.Context, worldID, userID string) ([]map[string]any, error) {
	path := fmt.Sprintf("/api/v1/worlds/%s/users/%s/adventure-log",
		url.PathEscape(worldID), url.PathEscape(userID))

	var out struct {
		Entries []map[string]any `json:"entries"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, func() error {
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrapf(err, "decoding %s", path)
		}
		return nil
	})
}

func (c *Client) patchJSON(ctx context.Context, path string, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request body")
	}
	return c.doWithRetry(ctx, func() error {
		_, err := c.do(ctx, http.MethodPatch, path, encoded)
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s response", path)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, contexterrors.NotFound("resource", path)
	case resp.StatusCode >= 400:
		return nil, errors.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return data, nil
}

// doWithRetry executes fn with exponential backoff. Not-found answers
// are final and never retried.
func (c *Client) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if contexterrors.IsNotFound(err) {
			return err
		}

		lastErr = err
		if attempt < c.config.MaxRetries-1 {
			waitTime := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			c.logger.Debug("backend request failed, retrying",
				"attempt", attempt+1,
				"wait_time", waitTime,
				"error", err)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// Ensure Client implements the full source fetch surface.
var _ source.Backend = (*Client)(nil)
