package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestManagerStartConnectsReachableServers(t *testing.T) {
	fs := &fakeServer{tools: confluenceTools()}
	srv := newFakeServer(t, fs)

	m := NewManager([]ServerConfig{
		{ID: "atlassian", Transport: TransportHTTP, URL: srv.URL},
		{ID: "broken", Transport: TransportHTTP, URL: "http://127.0.0.1:1/mcp"},
	}, nil)
	defer m.Stop()

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}

	if _, ok := m.Client("atlassian"); !ok {
		t.Fatal("atlassian should be connected")
	}
	if _, ok := m.Client("broken"); ok {
		t.Error("broken should not be connected")
	}

	tools := m.AllTools()
	if len(tools["atlassian"]) != 3 {
		t.Errorf("AllTools() = %v", tools)
	}

	statuses := m.Status()
	if len(statuses) != 2 || statuses[0].ID != "atlassian" || !statuses[0].Connected || statuses[0].Tools != 3 {
		t.Errorf("Status() = %+v", statuses)
	}
	if statuses[1].Connected {
		t.Error("broken reported connected")
	}
}

func TestManagerConnectIsIdempotent(t *testing.T) {
	fs := &fakeServer{}
	srv := newFakeServer(t, fs)
	m := NewManager([]ServerConfig{{ID: "kb", Transport: TransportHTTP, URL: srv.URL}}, nil)
	defer m.Stop()

	for i := 0; i < 2; i++ {
		if err := m.Connect(context.Background(), "kb"); err != nil {
			t.Fatal(err)
		}
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	inits := 0
	for _, method := range fs.methods {
		if method == "initialize" {
			inits++
		}
	}
	if inits != 1 {
		t.Errorf("initialize sent %d times", inits)
	}
}

func TestManagerConnectUnknownServer(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Connect(context.Background(), "missing"); err == nil {
		t.Error("expected error")
	}
}

func TestManagerCallToolNotConnected(t *testing.T) {
	m := NewManager([]ServerConfig{{ID: "kb", Command: "x"}}, nil)
	_, err := m.CallTool(context.Background(), "kb", "search", json.RawMessage(`{}`))
	if !errors.Is(err, ErrServerNotConnected) {
		t.Errorf("error = %v, want ErrServerNotConnected", err)
	}
}

func TestManagerStopClearsClients(t *testing.T) {
	fs := &fakeServer{}
	srv := newFakeServer(t, fs)
	m := NewManager([]ServerConfig{{ID: "kb", Transport: TransportHTTP, URL: srv.URL}}, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = m.Stop()
	if _, ok := m.Client("kb"); ok {
		t.Error("client should be removed after Stop")
	}
}
