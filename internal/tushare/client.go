// Package tushare is a client for the Tushare Pro HTTP API.
//
// Every Tushare endpoint is reached the same way: a JSON POST naming the
// api, the caller's token, the params and the wanted fields. The answer is a
// column-oriented table.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/markqiu/openbb-tushare/internal/metrics"
	"github.com/markqiu/openbb-tushare/internal/util"
)

// DefaultBaseURL is the public Tushare Pro endpoint.
const DefaultBaseURL = "http://api.tushare.pro"

// ErrMissingToken is returned when a query is issued without an API token.
var ErrMissingToken = errors.New("tushare: missing API token")

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=tushare_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues Tushare Pro API calls.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	limiter    *util.RateLimiter
	timeout    time.Duration
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// Option is a configuration option for the Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit paces calls to perMinute requests per minute.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = util.NewRateLimiter(perMinute)
		}
	}
}

// WithTimeout bounds each call, including the wait for a rate-limit token.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new Tushare client.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		log:        slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	c.log = c.log.With("component", "tushare")
	return c
}

type request struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params"`
	Fields  string         `json:"fields"`
}

type response struct {
	RequestID string `json:"request_id"`
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Data      *Table `json:"data"`
}

// Query calls apiName with params and returns the result table. fields
// narrows the returned columns; nil asks for the API's defaults. Params with
// empty string or nil values are not sent.
func (c *Client) Query(ctx context.Context, token, apiName string, params map[string]any, fields []string) (*Table, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tushare %s: %w", apiName, err)
	}

	start := time.Now()
	table, err := c.do(ctx, token, apiName, params, fields)
	c.metrics.VendorCall(apiName, time.Since(start), err)
	if err != nil {
		c.log.Warn("api call failed", "api", apiName, "error", err)
		return nil, err
	}
	c.log.Debug("api call", "api", apiName, "rows", len(table.Items), "took", time.Since(start))
	return table, nil
}

func (c *Client) do(ctx context.Context, token, apiName string, params map[string]any, fields []string) (*Table, error) {
	body, err := json.Marshal(request{
		APIName: apiName,
		Token:   token,
		Params:  compactParams(params),
		Fields:  strings.Join(fields, ","),
	})
	if err != nil {
		return nil, fmt.Errorf("tushare %s: encoding request: %w", apiName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tushare %s: %w", apiName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tushare %s: %w", apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tushare %s: HTTP %d: %s", apiName, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tushare %s: decoding response: %w", apiName, err)
	}
	if out.Code != 0 {
		return nil, &APIError{API: apiName, Code: out.Code, Msg: out.Msg, RequestID: out.RequestID}
	}
	if out.Data == nil {
		return &Table{}, nil
	}
	return out.Data, nil
}

func compactParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}
