package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	// EnforceConstraintsPath triggers constraint reconciliation
	EnforceConstraintsPath = "/v1/constraints/enforce"
	// EnforceLivelinessPath triggers node liveliness evaluation
	EnforceLivelinessPath = "/v1/nodes/liveliness"

	defaultTimeout = 30 * time.Second
)

// ErrUnexpectedStatus wraps non-2xx responses
var ErrUnexpectedStatus = errors.New("orchestration: unexpected status")

var _ API = (*HTTPClient)(nil)

// HTTPClient talks to the orchestrator's HTTP API
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// ClientOption configures an HTTPClient
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) { h.client = c }
}

// NewHTTPClient creates a client for the API at host:port
func NewHTTPClient(host string, port int, opts ...ClientOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// NewHTTPClientURL creates a client for a full base URL
func NewHTTPClientURL(baseURL string, opts ...ClientOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// BaseURL returns the API root
func (h *HTTPClient) BaseURL() string {
	return h.baseURL
}

// EnforceAllConstraints posts to EnforceConstraintsPath
func (h *HTTPClient) EnforceAllConstraints(ctx context.Context) error {
	return h.post(ctx, EnforceConstraintsPath)
}

// EnforceNodeLiveliness posts to EnforceLivelinessPath
func (h *HTTPClient) EnforceNodeLiveliness(ctx context.Context) error {
	return h.post(ctx, EnforceLivelinessPath)
}

func (h *HTTPClient) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("orchestration: build request %s: %w", path, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("orchestration: %s: %w", path, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}
	return nil
}
