package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	healthPath     = "/health"
	systemInfoPath = "/system-info"
	executePath    = "/execute"

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 8 * 1024 * 1024
)

// DefaultBaseURL is where the execution service listens by default.
const DefaultBaseURL = "http://localhost:8001"

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Command          string `json:"command"`
	CurrentDirectory string `json:"current_directory,omitempty"`
}

// ExecuteResponse is the reply of POST /execute.
type ExecuteResponse struct {
	Output           string  `json:"output"`
	Error            bool    `json:"error"`
	CurrentDirectory *string `json:"current_directory,omitempty"`
}

// SystemInfo is the reply of GET /system-info.
type SystemInfo struct {
	CPUUsage         float64 `json:"cpu_usage"`
	MemoryUsage      float64 `json:"memory_usage"`
	DiskUsage        float64 `json:"disk_usage"`
	CurrentDirectory string  `json:"current_directory"`
}

// Client talks to the execution service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service address the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health performs the liveness probe. Any 2xx status counts as alive.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "health", StatusCode: resp.StatusCode}
	}
	return nil
}

// SystemInfo fetches the service's metrics snapshot.
func (c *Client) SystemInfo(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo

	resp, err := c.do(ctx, http.MethodGet, systemInfoPath, nil)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return info, &StatusError{Op: "system-info", StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&info); err != nil {
		return info, &TransportError{Op: "system-info", Err: fmt.Errorf("decode response: %w", err)}
	}
	return info, nil
}

// Execute sends one command to the service. A reply with Error=true is a
// successful call; only failures to complete the exchange return an error.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	var out ExecuteResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("marshal execute request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, executePath, body)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return out, &TransportError{Op: "execute", Err: fmt.Errorf("read response: %w", err)}
	}

	decodeErr := decodeExecute(data, &out)

	// The service reports its own internal failures as 500 with a regular
	// execute body; those are results, not transport failures.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode >= 500 && decodeErr == nil {
			out.Error = true
			return out, nil
		}
		return ExecuteResponse{}, &StatusError{Op: "execute", StatusCode: resp.StatusCode}
	}
	if decodeErr != nil {
		return ExecuteResponse{}, &TransportError{Op: "execute", Err: decodeErr}
	}
	return out, nil
}

// decodeExecute requires the output and error fields to be present.
func decodeExecute(data []byte, out *ExecuteResponse) error {
	var raw struct {
		Output           *string `json:"output"`
		Error            *bool   `json:"error"`
		CurrentDirectory *string `json:"current_directory"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if raw.Output == nil || raw.Error == nil {
		return fmt.Errorf("malformed response: missing output or error field")
	}
	out.Output = *raw.Output
	out.Error = *raw.Error
	out.CurrentDirectory = raw.CurrentDirectory
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	op := strings.TrimPrefix(path, "/")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err, Elapsed: time.Since(start)}
	}
	return resp, nil
}
