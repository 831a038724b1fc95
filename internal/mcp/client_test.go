package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestClientConnectAndCallTool(t *testing.T) {
	fs := &fakeServer{tools: confluenceTools()}
	srv := newFakeServer(t, fs)

	c := NewClient(&ServerConfig{ID: "atlassian", Transport: TransportHTTP, URL: srv.URL}, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if got := c.ServerInfo().Name; got != "atlassian" {
		t.Errorf("ServerInfo().Name = %q", got)
	}
	if !c.Connected() {
		t.Error("Connected() = false")
	}
	if got := len(c.Tools()); got != 3 {
		t.Fatalf("len(Tools()) = %d, want 3", got)
	}

	res, err := c.CallTool(context.Background(), "confluence_search", json.RawMessage(`{"query":"PTO"}`))
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if res.Content[0].Text != "called confluence_search" {
		t.Errorf("result = %+v", res)
	}

	if _, err := c.CallTool(context.Background(), "confluence_get_page", nil); err != nil {
		t.Fatal(err)
	}
	calls := fs.Calls()
	if string(calls[1].Arguments) != `{}` {
		t.Errorf("nil arguments sent as %s, want {}", calls[1].Arguments)
	}

	fs.mu.Lock()
	methods := append([]string(nil), fs.methods...)
	fs.mu.Unlock()
	want := []string{"initialize", "notifications/initialized", "tools/list"}
	for i, m := range want {
		if methods[i] != m {
			t.Errorf("methods[%d] = %q, want %q", i, methods[i], m)
		}
	}
}

func TestClientConnectFailsOnInitializeError(t *testing.T) {
	tr := newStubTransport(func(method string, params json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})
	c := newClientWithTransport(&ServerConfig{ID: "kb"}, tr, nil)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if tr.Connected() {
		t.Error("transport should be closed after a failed handshake")
	}
}

func TestClientRefreshToolsPaginates(t *testing.T) {
	tr := newStubTransport(func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method != "tools/list" {
			return json.RawMessage(`{}`), nil
		}
		if len(params) == 0 {
			return json.RawMessage(`{"tools":[{"name":"a"}],"nextCursor":"p2"}`), nil
		}
		return json.RawMessage(`{"tools":[{"name":"b"},{"name":""}]}`), nil
	})
	c := newClientWithTransport(&ServerConfig{ID: "kb"}, tr, nil)
	if err := c.RefreshTools(context.Background()); err != nil {
		t.Fatal(err)
	}
	tools := c.Tools()
	if len(tools) != 2 || tools[0].Name != "a" || tools[1].Name != "b" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestClientRefreshesOnListChanged(t *testing.T) {
	calls := 0
	tr := newStubTransport(func(method string, params json.RawMessage) (json.RawMessage, error) {
		switch method {
		case "initialize":
			return json.RawMessage(`{"protocolVersion":"2025-03-26","serverInfo":{"name":"kb"}}`), nil
		case "tools/list":
			calls++
			if calls == 1 {
				return json.RawMessage(`{"tools":[{"name":"a"}]}`), nil
			}
			return json.RawMessage(`{"tools":[{"name":"a"},{"name":"b"}]}`), nil
		}
		return nil, errors.New("unexpected " + method)
	})
	c := newClientWithTransport(&ServerConfig{ID: "kb"}, tr, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	tr.events <- &JSONRPCNotification{Method: "notifications/message"}
	tr.events <- &JSONRPCNotification{Method: notificationToolsListChanged}

	deadline := time.Now().Add(2 * time.Second)
	for len(c.Tools()) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("tools not refreshed: %d", len(c.Tools()))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := tr.count("tools/list"); n != 2 {
		t.Errorf("tools/list called %d times, want 2", n)
	}
}
