// Package tsclient is a Go SDK for the tushare-server HTTP API.
package tsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoData is returned when the server has no data for the request.
var ErrNoData = errors.New("no data found")

// Client talks to one tushare-server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as the per-request Tushare token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model describes one model served by the server.
type Model struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tushare-server: HTTP %d: %s", e.Status, e.Message)
}

// Models lists the models the server offers.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	var out []Model
	if err := c.get(ctx, "/api/v1/models", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Fetch runs model with params and returns its records. A 404 for a known
// model is reported as ErrNoData.
func (c *Client) Fetch(ctx context.Context, model string, params map[string]string) ([]map[string]any, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	var out []map[string]any
	if err := c.get(ctx, "/api/v1/"+url.PathEscape(model), q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, data any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Tushare-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound && envelope.Error == ErrNoData.Error() {
			return ErrNoData
		}
		return &StatusError{Status: resp.StatusCode, Message: envelope.Error}
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, data); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}
