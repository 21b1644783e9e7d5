package adapters

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// defaultTimeout bounds one upstream call end to end.
	defaultTimeout = 120 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large upstream bodies.
	maxResponseSize = 32 * 1024 * 1024

	// maxStreamLineSize bounds one stream event; base64 images inside tool
	// deltas can get large.
	maxStreamLineSize = 8 * 1024 * 1024
)

// ClientOptions configures one vendor client.
type ClientOptions struct {
	// BaseURL overrides the registry default (self-hosted vLLM/Ollama,
	// proxies, test servers).
	BaseURL string

	// Transport wraps the HTTP transport, typically with the observability
	// round-tripper from the monitoring package. Nil means the default.
	Transport http.RoundTripper

	// Timeout bounds non-streaming calls. Zero means defaultTimeout.
	// Streaming calls are bounded by the request context instead.
	Timeout time.Duration

	// Mock short-circuits the network entirely; Execute and ExecuteStream
	// serve the canned payloads. Used by tests and dry-run deployments.
	Mock *MockBackend
}

// MockBackend is the canned upstream used in mock mode.
type MockBackend struct {
	Response     []byte
	StreamChunks [][]byte
	ErrorStatus  int
	ErrorBody    []byte
}

// Client is one vendor's network handle. It may be pooled by the caller; the
// adapters it serves never are.
type Client struct {
	entry   *Entry
	apiKey  string
	baseURL string
	timeout time.Duration
	httpc   *http.Client
	mock    *MockBackend
}

// NewClient builds a client for this vendor entry.
func (e *Entry) NewClient(apiKey string, opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = e.baseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		entry:   e,
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
		httpc:   &http.Client{Transport: transport},
		mock:    opts.Mock,
	}
}

// Execute materializes the request and performs the non-streaming upstream
// call, returning the vendor response body. Upstream failures come back as a
// plain-string error built from the vendor's error envelope.
func (e *Entry) Execute(ctx context.Context, c *Client, req RequestAdapter) ([]byte, error) {
	body, err := req.ToProviderRequest()
	if err != nil {
		return nil, err
	}

	if c.mock != nil {
		if c.mock.ErrorStatus != 0 {
			return nil, fmt.Errorf("%s", e.ExtractErrorMessage(c.mock.ErrorBody))
		}
		return c.mock.Response, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, e.endpointPath(req.Model(), false), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", e.Provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s", e.ExtractErrorMessage(respBody))
	}
	return respBody, nil
}

// ExecuteStream materializes the request and opens the streaming upstream
// call. The returned reader yields one vendor event payload per Next call,
// in arrival order; canceling ctx stops consumption.
func (e *Entry) ExecuteStream(ctx context.Context, c *Client, req RequestAdapter) (*StreamReader, error) {
	body, err := req.ToProviderRequest()
	if err != nil {
		return nil, err
	}

	if c.mock != nil {
		if c.mock.ErrorStatus != 0 {
			return nil, fmt.Errorf("%s", e.ExtractErrorMessage(c.mock.ErrorBody))
		}
		return &StreamReader{mockChunks: c.mock.StreamChunks}, nil
	}

	resp, err := c.post(ctx, e.endpointPath(req.Model(), true), body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("%s", e.ExtractErrorMessage(respBody))
	}

	return newStreamReader(resp.Body, e.framing), nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.entry.Provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.entry.applyAuth(httpReq, c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.entry.Provider, err)
	}
	return resp, nil
}

// StreamReader iterates one vendor event stream, decoding SSE or NDJSON
// framing into bare event payloads.
type StreamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	framing streamFraming

	mockChunks [][]byte
	mockPos    int
}

func newStreamReader(body io.ReadCloser, framing streamFraming) *StreamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineSize)
	return &StreamReader{body: body, scanner: scanner, framing: framing}
}

// Next returns the next event payload, or io.EOF once the transport stream
// ends. Transport end is not finality: the stream adapter decides that from
// the events themselves.
func (r *StreamReader) Next() ([]byte, error) {
	if r.body == nil {
		if r.mockPos >= len(r.mockChunks) {
			return nil, io.EOF
		}
		chunk := r.mockChunks[r.mockPos]
		r.mockPos++
		return chunk, nil
	}

	if r.framing == framingNDJSON {
		for r.scanner.Scan() {
			line := bytes.TrimSpace(r.scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			return append([]byte(nil), line...), nil
		}
		return nil, r.scanErr()
	}

	// SSE: one event is the concatenated data lines up to a blank line.
	var data []byte
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			if len(data) > 0 {
				if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
					return nil, io.EOF
				}
				return data, nil
			}
			continue
		}
		if payload, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			data = append(data, bytes.TrimSpace(payload)...)
		}
		// event:/id:/retry: lines carry nothing the payload doesn't repeat.
	}
	if len(data) > 0 {
		if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
			return nil, io.EOF
		}
		return data, nil
	}
	return nil, r.scanErr()
}

func (r *StreamReader) scanErr() error {
	if err := r.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Close releases the underlying connection.
func (r *StreamReader) Close() error {
	if r.body == nil {
		return nil
	}
	return r.body.Close()
}
