package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewTransport(t *testing.T) {
	if _, ok := NewTransport(&ServerConfig{ID: "a", Command: "echo"}).(*StdioTransport); !ok {
		t.Error("expected StdioTransport as default")
	}
	if _, ok := NewTransport(&ServerConfig{ID: "a", Transport: TransportStdio, Command: "echo"}).(*StdioTransport); !ok {
		t.Error("expected StdioTransport")
	}
	if _, ok := NewTransport(&ServerConfig{ID: "a", Transport: TransportHTTP, URL: "https://example.com/mcp"}).(*HTTPTransport); !ok {
		t.Error("expected HTTPTransport")
	}
}

func TestHTTPTransportCallJSON(t *testing.T) {
	fs := &fakeServer{tools: confluenceTools()}
	srv := newFakeServer(t, fs)

	tr := NewHTTPTransport(&ServerConfig{ID: "kb", Transport: TransportHTTP, URL: srv.URL})
	if _, err := tr.Call(context.Background(), "tools/list", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Call before Connect error = %v, want ErrNotConnected", err)
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	raw, err := tr.Call(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	var list ListToolsResult
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Tools) != 3 {
		t.Errorf("got %d tools, want 3", len(list.Tools))
	}
}

func TestHTTPTransportCallSSE(t *testing.T) {
	fs := &fakeServer{sse: true, tools: confluenceTools()}
	srv := newFakeServer(t, fs)

	tr := NewHTTPTransport(&ServerConfig{ID: "kb", Transport: TransportHTTP, URL: srv.URL})
	_ = tr.Connect(context.Background())

	raw, err := tr.Call(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !strings.Contains(string(raw), "confluence_search") {
		t.Errorf("result = %s", raw)
	}

	select {
	case n := <-tr.Events():
		if n.Method != "notifications/message" {
			t.Errorf("notification method = %q", n.Method)
		}
	default:
		t.Error("expected notification from SSE stream")
	}
}

func TestHTTPTransportSessionID(t *testing.T) {
	fs := &fakeServer{sessionID: "sess-42"}
	srv := newFakeServer(t, fs)

	tr := NewHTTPTransport(&ServerConfig{ID: "kb", Transport: TransportHTTP, URL: srv.URL})
	_ = tr.Connect(context.Background())

	if _, err := tr.Call(context.Background(), "initialize", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Notify(context.Background(), "notifications/initialized", nil); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got := tr.SessionID(); got != "sess-42" {
		t.Fatalf("SessionID() = %q", got)
	}
	fs.mu.Lock()
	sessions := append([]string(nil), fs.sessions...)
	fs.mu.Unlock()
	if sessions[0] != "" || sessions[1] != "sess-42" {
		t.Errorf("session headers = %v", sessions)
	}

	_ = tr.Close()
	fs.mu.Lock()
	deleted := fs.deleted
	fs.mu.Unlock()
	if !deleted {
		t.Error("Close should DELETE the session")
	}
	if tr.Connected() {
		t.Error("Connected() after Close")
	}
}

func TestHTTPTransportErrors(t *testing.T) {
	fs := &fakeServer{}
	srv := newFakeServer(t, fs)
	tr := NewHTTPTransport(&ServerConfig{ID: "kb", Transport: TransportHTTP, URL: srv.URL})
	_ = tr.Connect(context.Background())

	_, err := tr.Call(context.Background(), "resources/list", nil)
	var rpcErr *JSONRPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != ErrCodeMethodNotFound {
		t.Fatalf("error = %v, want method-not-found JSONRPCError", err)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer failing.Close()
	tr2 := NewHTTPTransport(&ServerConfig{ID: "kb", Transport: TransportHTTP, URL: failing.URL})
	_ = tr2.Connect(context.Background())
	if _, err := tr2.Call(context.Background(), "tools/list", nil); err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("error = %v, want HTTP 502", err)
	}
}

func TestHTTPTransportConnectRequiresURL(t *testing.T) {
	if err := NewHTTPTransport(&ServerConfig{ID: "kb"}).Connect(context.Background()); err == nil {
		t.Error("expected error without URL")
	}
}

// pipeServer plays the server end of a stdio transport.
func pipeServer(t *testing.T, serverIn io.Reader, serverOut io.WriteCloser, replies chan<- message) {
	t.Helper()
	go func() {
		defer serverOut.Close()
		enc := json.NewEncoder(serverOut)
		scanner := bufio.NewScanner(serverIn)
		for scanner.Scan() {
			var msg message
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				continue
			}
			switch {
			case msg.Method == "" && replies != nil:
				replies <- msg
			case msg.Method == "tools/list":
				_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "method": notificationToolsListChanged})
				_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "id": "srv-1", "method": "sampling/createMessage"})
				_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": ListToolsResult{Tools: confluenceTools()}})
			case msg.Method == "boom":
				_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "error": JSONRPCError{Code: ErrCodeInternalError, Message: "kaboom"}})
			case len(msg.ID) > 0:
				_ = enc.Encode(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": map[string]string{"method": msg.Method}})
			}
		}
	}()
}

func TestStdioTransportRoundTrip(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	replies := make(chan message, 1)
	pipeServer(t, inR, outW, replies)

	tr := NewStdioTransport(&ServerConfig{ID: "kb", Command: "unused", Timeout: 2 * time.Second})
	tr.attach(inW, outR)
	defer tr.Close()

	raw, err := tr.Call(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	var list ListToolsResult
	_ = json.Unmarshal(raw, &list)
	if len(list.Tools) != 3 {
		t.Errorf("got %d tools", len(list.Tools))
	}

	select {
	case n := <-tr.Events():
		if n.Method != notificationToolsListChanged {
			t.Errorf("event = %q", n.Method)
		}
	case <-time.After(time.Second):
		t.Error("expected list_changed notification")
	}

	select {
	case reply := <-replies:
		if reply.Error == nil || reply.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("server request reply = %+v", reply)
		}
	case <-time.After(time.Second):
		t.Error("server-initiated request was not answered")
	}

	_, err = tr.Call(context.Background(), "boom", nil)
	var rpcErr *JSONRPCError
	if !errors.As(err, &rpcErr) || rpcErr.Message != "kaboom" {
		t.Errorf("error = %v", err)
	}
}

func TestStdioTransportConcurrentCalls(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	pipeServer(t, inR, outW, nil)

	tr := NewStdioTransport(&ServerConfig{ID: "kb", Command: "unused", Timeout: 2 * time.Second})
	tr.attach(inW, outR)
	defer tr.Close()

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			raw, err := tr.Call(context.Background(), "ping", nil)
			if err == nil && !strings.Contains(string(raw), "ping") {
				err = errors.New("unexpected result " + string(raw))
			}
			errs <- err
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}

func TestStdioTransportCallCanceled(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, inR) }()
	defer outW.Close()

	tr := NewStdioTransport(&ServerConfig{ID: "kb", Command: "unused"})
	tr.attach(inW, outR)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tr.Call(ctx, "tools/list", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	outW.Close()
	tr.Close()
}

func TestStdioTransportNotConnected(t *testing.T) {
	tr := NewStdioTransport(&ServerConfig{ID: "kb", Command: "unused"})
	if _, err := tr.Call(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Call error = %v", err)
	}
	if err := tr.Notify(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Notify error = %v", err)
	}
	if err := NewStdioTransport(&ServerConfig{ID: "kb"}).Connect(context.Background()); err == nil {
		t.Error("expected error without command")
	}
}

func TestIDKey(t *testing.T) {
	tests := map[string]string{
		`7`:       "7",
		`"7"`:     "7",
		`"abc-1"`: "abc-1",
	}
	for raw, want := range tests {
		if got := idKey(json.RawMessage(raw)); got != want {
			t.Errorf("idKey(%s) = %q, want %q", raw, got, want)
		}
	}
}
