package blebox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBodySize bounds how much of a device reply is read.
// BleBox bodies are a few hundred bytes; anything larger is not a device.
const maxResponseBodySize = 64 << 10

// Embedded devices serve one or two sockets at most; keep the pool small.
const (
	defaultMaxIdleConns        = 64
	defaultMaxIdleConnsPerHost = 1
	defaultMaxConnsPerHost     = 2
	defaultIdleConnTimeout     = 30 * time.Second
)

// Response holds the outcome of one device HTTP call.
type Response struct {
	// Body is the raw response body, limited to maxResponseBodySize.
	Body []byte

	// StatusCode is zero when the request failed before a response arrived.
	StatusCode int

	// Latency is the wall time of the call.
	Latency time.Duration

	// Error is a transport error; status handling is left to the caller.
	Error error
}

// Doer performs a single HTTP call. *HTTPClient is the production
// implementation; tests may substitute their own.
type Doer interface {
	Do(ctx context.Context, method, url, host string, timeout time.Duration) Response
}

// HTTPClient is a pooled HTTP client for device endpoints.
// Timeouts are applied per request via the context, not on the client.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient with a small connection pool.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Do performs the request. It always returns a Response; a transport error is
// carried in Response.Error.
func (c *HTTPClient) Do(ctx context.Context, method, url, host string, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("%w: build request: %v", ErrRequestFailed, err),
		}
	}
	req.Header.Set("Accept", "*/*")
	if host != "" {
		req.Host = host
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("%w: %v", ErrRequestFailed, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("%w: read body: %v", ErrRequestFailed, err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes idle pooled connections. Safe to call multiple times.
func (c *HTTPClient) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
