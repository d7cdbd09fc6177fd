package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const streamableMaxResponseBody = 10 * 1024 * 1024

// StreamableHTTPAdapter speaks the Streamable HTTP transport variant: POST
// for client->server messages, GET for a server->client stream, DELETE to
// terminate the session. The Mcp-Session-Id header, once assigned by the
// server on the first POST response, is attached to every later request,
// and the GET stream is opened lazily once that session is established.
type StreamableHTTPAdapter struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client

	onMessage MessageHandler
	onClose   CloseHandler
	onError   ErrorHandler

	mu        sync.Mutex
	sessionID string
	closed    bool
}

// StreamableHTTPOption configures a StreamableHTTPAdapter at construction time.
type StreamableHTTPOption func(*StreamableHTTPAdapter)

func WithStreamableMessageHandler(h MessageHandler) StreamableHTTPOption {
	return func(a *StreamableHTTPAdapter) { a.onMessage = h }
}
func WithStreamableCloseHandler(h CloseHandler) StreamableHTTPOption {
	return func(a *StreamableHTTPAdapter) { a.onClose = h }
}
func WithStreamableErrorHandler(h ErrorHandler) StreamableHTTPOption {
	return func(a *StreamableHTTPAdapter) { a.onError = h }
}
func WithStreamableBearerToken(token string) StreamableHTTPOption {
	return func(a *StreamableHTTPAdapter) { a.bearerToken = token }
}
func WithStreamableHTTPClient(c *http.Client) StreamableHTTPOption {
	return func(a *StreamableHTTPAdapter) { a.httpClient = c }
}

// NewStreamableHTTPAdapter creates a Streamable HTTP adapter for the given
// server base URL.
func NewStreamableHTTPAdapter(baseURL string, opts ...StreamableHTTPOption) *StreamableHTTPAdapter {
	a := &StreamableHTTPAdapter{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start is a no-op: the session is established lazily by the first Send,
// since the server assigns the session ID on the first POST response.
func (a *StreamableHTTPAdapter) Start(ctx context.Context) error {
	return nil
}

// Send POSTs one message. If the response carries a fresh Mcp-Session-Id,
// the server->client GET stream is opened for the remainder of the
// session's lifetime.
func (a *StreamableHTTPAdapter) Send(ctx context.Context, message []byte) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New("adapter is closed")
	}
	sessionID := a.sessionID
	bearer := a.bearerToken
	a.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(message))
	if err != nil {
		return fmt.Errorf("build streamable http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post streamable http message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	isNewSession := false
	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		a.mu.Lock()
		isNewSession = a.sessionID == ""
		a.sessionID = sid
		a.mu.Unlock()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("streamable http status %d: %s", resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/event-stream"):
		a.readEventStream(resp.Body)
	case strings.HasPrefix(contentType, "application/json"):
		body, err := io.ReadAll(io.LimitReader(resp.Body, streamableMaxResponseBody))
		if err != nil {
			return fmt.Errorf("read streamable http response: %w", err)
		}
		if len(body) > 0 && a.onMessage != nil {
			a.onMessage(body)
		}
	}

	if isNewSession {
		go a.openGETStream(context.Background())
	}
	return nil
}

// readEventStream parses a text/event-stream response body synchronously,
// forwarding each data payload to onMessage as it arrives. Used both for a
// POST response that streams (progress notifications followed by the
// final result) and for the dedicated GET stream.
func (a *StreamableHTTPAdapter) readEventStream(body io.Reader) {
	var dataLines []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(dataLines) > 0 {
				if a.onMessage != nil {
					a.onMessage([]byte(strings.Join(dataLines, "\n")))
				}
				dataLines = nil
			}
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

// openGETStream opens the long-lived server->client stream once a session
// has been established. Runs until the stream ends or Close cancels it.
func (a *StreamableHTTPAdapter) openGETStream(ctx context.Context) {
	a.mu.Lock()
	sessionID := a.sessionID
	bearer := a.bearerToken
	a.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if a.onError != nil {
			a.onError(fmt.Errorf("open streamable http get stream: %w", err))
		}
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}
	a.readEventStream(resp.Body)
}

// Close terminates the session with a DELETE request.
func (a *StreamableHTTPAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	sessionID := a.sessionID
	bearer := a.bearerToken
	a.mu.Unlock()

	var closeErr error
	if sessionID != "" {
		req, err := http.NewRequest(http.MethodDelete, a.baseURL, nil)
		if err == nil {
			req.Header.Set("Mcp-Session-Id", sessionID)
			if bearer != "" {
				req.Header.Set("Authorization", "Bearer "+bearer)
			}
			resp, doErr := a.httpClient.Do(req)
			if doErr != nil {
				closeErr = doErr
			} else {
				_ = resp.Body.Close()
			}
		} else {
			closeErr = err
		}
	}

	if a.onClose != nil {
		a.onClose(nil)
	}
	return closeErr
}

var _ Adapter = (*StreamableHTTPAdapter)(nil)
