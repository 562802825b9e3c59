package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; one host is typically polled many times in a row
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// ErrResponseTooLarge is returned when a response body exceeds 1MB.
var ErrResponseTooLarge = errors.New("response body exceeded 1MB limit")

// Request describes a single HTTP call made by [Client].
type Request struct {
	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// URL is the absolute target URL.
	URL string

	// Headers are sent with the request.
	Headers map[string]string

	// Body is the request body. nil sends no body.
	Body []byte

	// ContentType sets the Content-Type header when Body is non-nil.
	ContentType string

	// Timeout bounds the whole request, including reading the body.
	// Zero means no per-request timeout beyond the caller's context.
	Timeout time.Duration
}

// Response holds the result of an HTTP request made by [Client].
//
// Response captures all relevant information from an HTTP request including
// the body (limited to 1MB), status code, latency, and any error that occurred.
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// OK reports whether the request completed with a 2xx status.
func (r Response) OK() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is an HTTP client wrapper for task polling and form submission.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Credentials (cookies) are whatever the wrapped http.Client carries, so a
// client built with a cookie jar behaves like a same-origin browser fetch.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new [Client].
//
// If httpClient is nil, a client is built with connection pooling limits:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
				DisableKeepAlives:   false,
			},
		}
	}
	return &Client{httpClient: httpClient}
}

// Fetch performs an HTTP request and returns a structured [Response].
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately. A cancelled ctx surfaces as an Error that
// wraps ctx.Err().
func (c *Client) Fetch(ctx context.Context, r Request) Response {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if r.Body != nil && r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// read one byte past the limit so oversized bodies are detected, not truncated
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}
	if len(data) > maxResponseBodySize {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      ErrResponseTooLarge,
		}
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// GetJSON issues a GET with Accept: application/json.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) Response {
	return c.Fetch(ctx, Request{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: withAcceptJSON(headers),
		Timeout: timeout,
	})
}

// PostJSON issues a bodyless POST with Accept: application/json.
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) Response {
	return c.Fetch(ctx, Request{
		Method:  http.MethodPost,
		URL:     rawURL,
		Headers: withAcceptJSON(headers),
		Timeout: timeout,
	})
}

// PostForm issues a form-encoded POST.
func (c *Client) PostForm(ctx context.Context, rawURL string, values url.Values, headers map[string]string, timeout time.Duration) Response {
	return c.Fetch(ctx, Request{
		Method:      http.MethodPost,
		URL:         rawURL,
		Headers:     headers,
		Body:        []byte(values.Encode()),
		ContentType: "application/x-www-form-urlencoded",
		Timeout:     timeout,
	})
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// withAcceptJSON returns a copy of headers with Accept set to JSON unless the
// caller already chose one.
func withAcceptJSON(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	if _, ok := out["Accept"]; !ok {
		out["Accept"] = "application/json"
	}
	return out
}
