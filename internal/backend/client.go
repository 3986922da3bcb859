package backend

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

	"boletodesk/internal/logging"
	"boletodesk/internal/services"
)

// HTTPDoer describes the HTTP client used by the backend client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the operations backend.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPDoer
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithMetrics records request metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.httpClient.(*http.Client); ok && timeout > 0 {
			hc.Timeout = timeout
		}
	}
}

// New creates a backend client rooted at baseURL (for example
// "http://127.0.0.1:8000/api/v1").
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("backend base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    NewMetrics(),
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "backend")
	return client, nil
}

// Metrics returns the registry-backed request metrics of the client.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// HasToken reports whether a bearer token is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.StatusCode)
}

func markerForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return services.ErrUnauthorized
	case code == http.StatusNotFound:
		return services.ErrNotFound
	case code == http.StatusBadRequest, code == http.StatusConflict, code == http.StatusUnprocessableEntity:
		return services.ErrValidation
	default:
		return services.ErrTransient
	}
}

type request struct {
	route       string
	method      string
	path        string
	body        io.Reader
	contentType string
	anonymous   bool
}

func (c *Client) jsonRequest(route, method, path string, payload any) (request, error) {
	req := request{route: route, method: method, path: path}
	if payload == nil {
		return req, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("encode %s body: %w", route, err)
	}
	req.body = bytes.NewReader(data)
	req.contentType = "application/json"
	return req, nil
}

// send executes r and returns the open response for 2xx answers. The caller
// closes the body.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	if !r.anonymous && c.tokenExpired() {
		return nil, services.Wrap(services.ErrUnauthorized, "", r.route, "stored credential expired", nil)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if c.token != "" && !r.anonymous {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.metrics.observe(r.route, 0, latency)
		return nil, services.Wrap(services.ErrTransient, "", r.route, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	c.metrics.observe(r.route, resp.StatusCode, latency)
	logging.WithContext(ctx, c.logger).Debug("backend call",
		logging.String("route", r.route),
		logging.Int("status", resp.StatusCode),
		logging.Duration("latency", latency),
	)

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		statusErr := &StatusError{
			Method:     r.method,
			Path:       r.path,
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body),
		}
		return nil, services.Wrap(markerForStatus(resp.StatusCode), "", r.route, "", statusErr)
	}
	return resp, nil
}

// do executes r and decodes a JSON answer into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "", r.route, "decode response", err)
	}
	return nil
}

// readDetail extracts the "detail" field of an error body, falling back to
// the first line of raw text.
func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && len(payload.Detail) > 0 {
		var text string
		if json.Unmarshal(payload.Detail, &text) == nil {
			return text
		}
		return string(payload.Detail)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	return line
}
