package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrServerNotConnected is returned when a call targets an unknown or closed server.
var ErrServerNotConnected = errors.New("mcp: server not connected")

// Manager owns the connections to every configured knowledge server.
type Manager struct {
	servers []ServerConfig
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	// newClient is replaced in tests.
	newClient func(cfg *ServerConfig, logger *slog.Logger) *Client
}

// NewManager creates a manager for the given servers. Nothing connects until Start.
func NewManager(servers []ServerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cp := make([]ServerConfig, len(servers))
	copy(cp, servers)
	return &Manager{
		servers:   cp,
		logger:    logger.With("component", "mcp"),
		clients:   make(map[string]*Client),
		newClient: NewClient,
	}
}

// Start connects to every server. A server that fails to connect is logged
// and skipped; the error reports all failures.
func (m *Manager) Start(ctx context.Context) error {
	var errs []error
	for i := range m.servers {
		id := m.servers[i].ID
		if err := m.Connect(ctx, id); err != nil {
			m.logger.Error("failed to connect to MCP server", "server", id, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Stop disconnects from all MCP servers.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Error("failed to close MCP client", "server", id, "error", err)
		}
		delete(m.clients, id)
	}
	return nil
}

// Connect connects to a specific MCP server by ID.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	var serverCfg *ServerConfig
	for i := range m.servers {
		if m.servers[i].ID == serverID {
			serverCfg = &m.servers[i]
			break
		}
	}
	if serverCfg == nil {
		return fmt.Errorf("server %q not found in config", serverID)
	}

	m.mu.RLock()
	_, exists := m.clients[serverID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	client := m.newClient(serverCfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if _, raced := m.clients[serverID]; raced {
		m.mu.Unlock()
		return client.Close()
	}
	m.clients[serverID] = client
	m.mu.Unlock()

	m.logger.Info("MCP server ready",
		"server", serverID,
		"name", client.ServerInfo().Name,
		"tools", len(client.Tools()))
	return nil
}

// Client returns a client for a specific server.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[serverID]
	return client, exists
}

// AllTools returns the tools of every connected server keyed by server id.
func (m *Manager) AllTools() map[string][]*MCPTool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]*MCPTool)
	for id, client := range m.clients {
		if tools := client.Tools(); len(tools) > 0 {
			result[id] = tools
		}
	}
	return result
}

// CallTool calls a tool on a specific server.
func (m *Manager) CallTool(ctx context.Context, serverID, toolName string, arguments json.RawMessage) (*ToolCallResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServerNotConnected, serverID)
	}
	return client.CallTool(ctx, toolName, arguments)
}

// ServerStatus represents the status of an MCP server.
type ServerStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Server    ServerInfo `json:"server"`
	Tools     int        `json:"tools"`
}

// Status returns the status of all configured servers, sorted by id.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, cfg := range m.servers {
		status := ServerStatus{ID: cfg.ID, Name: cfg.Name}
		if client, exists := m.clients[cfg.ID]; exists {
			status.Connected = client.Connected()
			status.Server = client.ServerInfo()
			status.Tools = len(client.Tools())
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
