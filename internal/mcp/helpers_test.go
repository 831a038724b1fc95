package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeServer is a minimal streamable-HTTP MCP server.
type fakeServer struct {
	sse       bool
	sessionID string

	mu         sync.Mutex
	tools      []*MCPTool
	calls      []CallToolParams
	methods    []string
	sessions   []string
	deleted    bool
	handleCall func(p CallToolParams) (*ToolCallResult, *JSONRPCError)
}

func newFakeServer(t *testing.T, fs *fakeServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return srv
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		s.mu.Lock()
		s.deleted = true
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	}

	var msg message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.methods = append(s.methods, msg.Method)
	s.sessions = append(s.sessions, r.Header.Get(headerSessionID))
	tools := s.tools
	handle := s.handleCall
	s.mu.Unlock()

	if len(msg.ID) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var result any
	var rpcErr *JSONRPCError
	switch msg.Method {
	case "initialize":
		result = InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    Capabilities{Tools: &ToolsCapability{ListChanged: true}},
			ServerInfo:      ServerInfo{Name: "atlassian", Version: "1.2.3"},
		}
		if s.sessionID != "" {
			w.Header().Set(headerSessionID, s.sessionID)
		}
	case "tools/list":
		result = ListToolsResult{Tools: tools}
	case "tools/call":
		var p CallToolParams
		_ = json.Unmarshal(msg.Params, &p)
		s.mu.Lock()
		s.calls = append(s.calls, p)
		s.mu.Unlock()
		if handle != nil {
			result, rpcErr = handle(p)
		} else {
			result = &ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "called " + p.Name}}}
		}
	default:
		rpcErr = &JSONRPCError{Code: ErrCodeMethodNotFound, Message: "unknown method"}
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": msg.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	body, _ := json.Marshal(resp)

	if s.sse {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", `{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info"}}`)
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *fakeServer) Calls() []CallToolParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CallToolParams(nil), s.calls...)
}

func (s *fakeServer) SetTools(tools []*MCPTool) {
	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()
}

func confluenceTools() []*MCPTool {
	return []*MCPTool{
		{
			Name:        "confluence_search",
			Description: "Search Confluence pages",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer","minimum":1}},"required":["query"]}`),
		},
		{
			Name:        "confluence_get_page",
			Description: "Fetch a Confluence page",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"page_id":{"type":"string"}},"required":["page_id"]}`),
		},
		{
			Name:        "jira_create_issue",
			Description: "Create a Jira issue",
		},
	}
}

// stubTransport is an in-memory Transport driven by a handler.
type stubTransport struct {
	events    chan *JSONRPCNotification
	handle    func(method string, params json.RawMessage) (json.RawMessage, error)
	mu        sync.Mutex
	connected bool
	methods   []string
}

func newStubTransport(handle func(method string, params json.RawMessage) (json.RawMessage, error)) *stubTransport {
	return &stubTransport{events: make(chan *JSONRPCNotification, 10), handle: handle}
}

func (s *stubTransport) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.methods = append(s.methods, method)
	s.mu.Unlock()
	return s.handle(method, raw)
}

func (s *stubTransport) Notify(ctx context.Context, method string, params any) error {
	s.mu.Lock()
	s.methods = append(s.methods, method)
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) Events() <-chan *JSONRPCNotification { return s.events }

func (s *stubTransport) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubTransport) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.methods {
		if m == method {
			n++
		}
	}
	return n
}
