package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// ClientName is reported to servers during initialize.
const ClientName = "concierge"

// ClientVersion is set by the CLI at build time.
var ClientVersion = "dev"

// maxToolPages bounds tools/list pagination.
const maxToolPages = 20

// Client is an MCP client that connects to a single server.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []*MCPTool
	serverInfo ServerInfo
	caps       Capabilities

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient creates a new MCP client.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	return newClientWithTransport(cfg, NewTransport(cfg), logger)
}

func newClientWithTransport(cfg *ServerConfig, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logger.With("mcp_server", cfg.ID),
		stop:      make(chan struct{}),
	}
}

// Connect performs the initialize handshake and loads the tool list.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    ClientName,
			"version": ClientVersion,
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.caps = initResult.Capabilities
	c.mu.Unlock()

	c.logger.Info("connected to MCP server",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.RefreshTools(ctx); err != nil {
		c.transport.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	c.wg.Add(1)
	go c.watch()
	return nil
}

// watch refreshes the tool cache when the server announces a change.
func (c *Client) watch() {
	defer c.wg.Done()
	events := c.transport.Events()
	for {
		select {
		case <-c.stop:
			return
		case notif, ok := <-events:
			if !ok {
				return
			}
			if notif == nil || notif.Method != notificationToolsListChanged {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.config.timeout())
			if err := c.RefreshTools(ctx); err != nil {
				c.logger.Warn("failed to refresh tools", "error", err)
			}
			cancel()
		}
	}
}

// Close closes the connection to the MCP server.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	err := c.transport.Close()
	c.wg.Wait()
	return err
}

// Config returns the server configuration.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// ServerInfo returns information about the connected server.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Connected returns whether the client is connected.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// RefreshTools reloads the cached tool list, following pagination cursors.
func (c *Client) RefreshTools(ctx context.Context) error {
	var tools []*MCPTool
	cursor := ""
	for page := 0; page < maxToolPages; page++ {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		result, err := c.transport.Call(ctx, "tools/list", params)
		if err != nil {
			return err
		}
		var resp ListToolsResult
		if err := json.Unmarshal(result, &resp); err != nil {
			return fmt.Errorf("parse tools/list: %w", err)
		}
		for _, tool := range resp.Tools {
			if tool != nil && tool.Name != "" {
				tools = append(tools, tool)
			}
		}
		if resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	c.logger.Debug("refreshed tools", "count", len(tools))
	return nil
}

// Tools returns a copy of the cached tools.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*MCPTool, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool calls a tool on the MCP server. Empty arguments are sent as {}.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	if len(arguments) == 0 || string(arguments) == "null" {
		arguments = json.RawMessage(`{}`)
	}
	result, err := c.transport.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}
