package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const headerSessionID = "Mcp-Session-Id"

// HTTPTransport implements the MCP streamable HTTP transport. Every message
// is a POST; the server answers with a JSON body or an SSE stream that ends
// with the response.
type HTTPTransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	events    chan *JSONRPCNotification
	connected atomic.Bool

	mu        sync.RWMutex
	sessionID string
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	return &HTTPTransport{
		config: cfg,
		logger: slog.Default().With("mcp_server", cfg.ID, "transport", "http"),
		client: &http.Client{Timeout: cfg.timeout()},
		events: make(chan *JSONRPCNotification, 100),
	}
}

// Connect marks the transport ready. The initialize handshake is done by Client.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for HTTP transport")
	}
	t.connected.Store(true)
	t.logger.Debug("HTTP transport ready", "url", t.config.URL)
	return nil
}

// Close ends the session. Servers that track sessions get a DELETE.
func (t *HTTPTransport) Close() error {
	if !t.connected.Swap(false) {
		return nil
	}
	sessionID := t.SessionID()
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequest(http.MethodDelete, t.config.URL, nil)
	if err != nil {
		return nil
	}
	t.setHeaders(req)
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("session delete failed", "error", err)
		return nil
	}
	resp.Body.Close()
	return nil
}

// SessionID returns the session assigned by the server, if any.
func (t *HTTPTransport) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// Call sends a request and waits for a response.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	req.Params = raw

	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if sid := resp.Header.Get(headerSessionID); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	var msg *message
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		msg, err = t.readStream(resp.Body, id)
	} else {
		msg = &message{}
		err = json.NewDecoder(resp.Body).Decode(msg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	return msg.Result, nil
}

// Notify sends a notification (no response expected).
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	notif.Params = raw

	resp, err := t.post(ctx, notif)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	t.setHeaders(httpReq)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return resp, nil
}

func (t *HTTPTransport) setHeaders(req *http.Request) {
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}
	if sid := t.SessionID(); sid != "" {
		req.Header.Set(headerSessionID, sid)
	}
}

// readStream consumes SSE events until the response for id arrives.
// Notifications seen on the way are forwarded to Events.
func (t *HTTPTransport) readStream(r io.Reader, id string) (*message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStdioLine)

	var data strings.Builder
	flush := func() *message {
		defer data.Reset()
		if data.Len() == 0 {
			return nil
		}
		var msg message
		if err := json.Unmarshal([]byte(data.String()), &msg); err != nil {
			t.logger.Debug("ignoring malformed SSE event", "error", err)
			return nil
		}
		if msg.isResponse() {
			if idKey(msg.ID) == id {
				return &msg
			}
			return nil
		}
		if msg.Method != "" && len(msg.ID) == 0 {
			select {
			case t.events <- msg.notification():
			default:
				t.logger.Warn("notification channel full, dropping", "method", msg.Method)
			}
		}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if msg := flush(); msg != nil {
				return msg, nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if msg := flush(); msg != nil {
		return msg, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("stream ended without response")
}

// Events returns the notification channel.
func (t *HTTPTransport) Events() <-chan *JSONRPCNotification {
	return t.events
}

// Connected returns whether the transport is connected.
func (t *HTTPTransport) Connected() bool {
	return t.connected.Load()
}
