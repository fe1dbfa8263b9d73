// Package source adapts the execution service's run endpoints to the
// pipeline's chunk source contract.
//
// The execution service owns process spawning and lifecycle. It runs a
// script file or a shell command inside a console and streams the console's
// raw bytes back as a chunked HTTP response. The two endpoints differ only
// in request shape; both produce the same Stream, so file runs and command
// runs drive byte-for-byte the same pipeline.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/pipeline"
)

// DefaultBaseURL is the execution service's default local address.
const DefaultBaseURL = "http://127.0.0.1:7617"

// DefaultConnectTimeout bounds establishing the connection.
const DefaultConnectTimeout = 10 * time.Second

// readBufferSize is the per-stream read buffer, reused across Next calls.
const readBufferSize = 4096

// Config configures a Client.
type Config struct {
	// BaseURL is the execution service address (default DefaultBaseURL).
	BaseURL string
	// ConnectTimeout bounds dialing the service (default 10s). The stream
	// itself carries no deadline; a run may stay open for hours and is
	// torn down through the request context instead.
	ConnectTimeout time.Duration
}

// Client starts runs against the execution service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
	}
}

// runRequest is the JSON body for both run endpoints.
type runRequest struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path,omitempty"`
	Command   string `json:"command,omitempty"`
}

// RunFile starts a script-file run and returns its output stream.
func (c *Client) RunFile(ctx context.Context, sessionID, path string) (*Stream, error) {
	return c.open(ctx, "/v1/run/file", runRequest{SessionID: sessionID, Path: path})
}

// RunCommand starts a shell-command run and returns its output stream.
func (c *Client) RunCommand(ctx context.Context, sessionID, command string) (*Stream, error) {
	return c.open(ctx, "/v1/run/command", runRequest{SessionID: sessionID, Command: command})
}

// open POSTs the run request and wraps the chunked response body.
// The request context governs the whole stream: canceling it aborts
// in-flight body reads.
func (c *Client) open(ctx context.Context, endpoint string, run runRequest) (*Stream, error) {
	body, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("source: marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("source: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: start run: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := resp.StatusCode
		iox.DrainClose(resp.Body)
		return nil, &StatusError{Code: code}
	}

	return &Stream{body: resp.Body, buf: make([]byte, readBufferSize)}, nil
}

// Close releases idle connections. Open streams are unaffected.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// StatusError is returned when the service rejects a run request.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("run request rejected with status %d", e.Code)
}

// IsStatusError returns the rejection status code when err is a StatusError.
func IsStatusError(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// Stream is one run's chunked console output.
//
// The read buffer is reused, so a chunk returned by Next is only valid until
// the following call. Not safe for concurrent use.
type Stream struct {
	body    io.ReadCloser
	buf     []byte
	pending error
}

// Next returns the next chunk of raw output, io.EOF at end of stream, or
// the transport error that broke the stream. When a read returns bytes and
// an error together, the bytes are delivered now and the error on the
// following call, so no trailing output is lost.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		return nil, err
	}

	n, err := s.body.Read(s.buf)
	if n > 0 {
		if err != nil {
			s.pending = err
		}
		return s.buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	return s.body.Close()
}

// Verify Stream satisfies the pipeline source contract.
var _ pipeline.Source = (*Stream)(nil)
