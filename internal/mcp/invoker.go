package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/concierge/internal/agent"
)

const maxToolNameLen = 64

var validToolName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ToolSource lists and calls tools across servers. *Manager implements it.
type ToolSource interface {
	AllTools() map[string][]*MCPTool
	CallTool(ctx context.Context, serverID, toolName string, arguments json.RawMessage) (*ToolCallResult, error)
}

// Invoker exposes MCP tools to the orchestrator as an agent.ToolInvoker.
//
// Tools keep their server-side name when it is a valid provider tool name
// and unique across servers; otherwise they get an mcp_<server>_<tool> name.
type Invoker struct {
	source  ToolSource
	enabled map[string]bool
	logger  *slog.Logger

	mu      sync.Mutex
	byName  map[string]toolEntry
	schemas sync.Map // schema JSON -> *jsonschema.Schema or error
}

var _ agent.ToolInvoker = (*Invoker)(nil)

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

// NewInvoker creates an invoker. enabledTools is an allow list matched
// against either "tool" or "server.tool"; empty allows everything.
func NewInvoker(source ToolSource, enabledTools []string, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	enabled := make(map[string]bool, len(enabledTools))
	for _, name := range enabledTools {
		if name = strings.TrimSpace(name); name != "" {
			enabled[name] = true
		}
	}
	return &Invoker{
		source:  source,
		enabled: enabled,
		logger:  logger.With("component", "mcp-invoker"),
		byName:  make(map[string]toolEntry),
	}
}

func (i *Invoker) allowed(serverID, tool string) bool {
	if len(i.enabled) == 0 {
		return true
	}
	return i.enabled[tool] || i.enabled[serverID+"."+tool]
}

// Tools returns the enabled tools in a stable order.
func (i *Invoker) Tools() []agent.ToolSpec {
	entries := i.refresh()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]agent.ToolSpec, 0, len(names))
	for _, name := range names {
		e := entries[name]
		schema := e.tool.InputSchema
		if len(schema) == 0 {
			schema = agent.DefaultToolSchema
		}
		specs = append(specs, agent.ToolSpec{
			Name:        name,
			Description: strings.TrimSpace(e.tool.Description),
			Schema:      schema,
		})
	}
	return specs
}

// refresh rebuilds the name table from the source's current tool lists.
func (i *Invoker) refresh() map[string]toolEntry {
	all := i.source.AllTools()

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	counts := make(map[string]int)
	for _, serverID := range serverIDs {
		tools := append([]*MCPTool(nil), all[serverID]...)
		sort.Slice(tools, func(a, b int) bool { return tools[a].Name < tools[b].Name })
		for _, tool := range tools {
			if !i.allowed(serverID, tool.Name) {
				continue
			}
			entries = append(entries, toolEntry{serverID: serverID, tool: tool})
			counts[tool.Name]++
		}
	}

	used := make(map[string]struct{}, len(entries))
	byName := make(map[string]toolEntry, len(entries))
	for _, e := range entries {
		var name string
		_, taken := used[e.tool.Name]
		if counts[e.tool.Name] == 1 && !taken && validToolName.MatchString(e.tool.Name) {
			name = e.tool.Name
			used[name] = struct{}{}
		} else {
			name = safeToolName(e.serverID, e.tool.Name, used)
		}
		byName[name] = e
	}

	i.mu.Lock()
	i.byName = byName
	i.mu.Unlock()
	return byName
}

func (i *Invoker) lookup(name string) (toolEntry, bool) {
	i.mu.Lock()
	e, ok := i.byName[name]
	i.mu.Unlock()
	if ok {
		return e, true
	}
	e, ok = i.refresh()[name]
	return e, ok
}

// Invoke validates args against the tool's input schema and calls it.
// Tool-reported errors come back as *agent.ToolError.
func (i *Invoker) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	entry, ok := i.lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", agent.ErrToolNotFound, name)
	}

	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	if err := i.validate(entry.tool, args); err != nil {
		return "", agent.NewToolError(name, err).WithType(agent.ToolErrorInvalidInput)
	}

	result, err := i.source.CallTool(ctx, entry.serverID, entry.tool.Name, args)
	if err != nil {
		return "", err
	}

	content, isError := formatToolCallResult(result)
	if isError {
		if content == "" {
			content = "tool reported an error"
		}
		return "", agent.NewToolError(name, errors.New(content)).WithType(agent.ToolErrorExecution)
	}
	return content, nil
}

func (i *Invoker) validate(tool *MCPTool, args json.RawMessage) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}
	schema := i.compile(tool)
	if schema == nil {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// compile returns the cached compiled schema. Schemas that fail to compile
// are cached as nil and skip validation.
func (i *Invoker) compile(tool *MCPTool) *jsonschema.Schema {
	key := string(tool.InputSchema)
	if cached, ok := i.schemas.Load(key); ok {
		compiled, _ := cached.(*jsonschema.Schema)
		return compiled
	}

	compiled, err := jsonschema.CompileString(sanitizeToolPart(tool.Name)+".schema.json", key)
	if err != nil {
		i.logger.Warn("tool schema does not compile; skipping validation", "tool", tool.Name, "error", err)
		i.schemas.Store(key, (*jsonschema.Schema)(nil))
		return nil
	}
	i.schemas.Store(key, compiled)
	return compiled
}

func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}
	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

// formatToolCallResult joins text content; anything else is returned as JSON.
func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}

	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result.Content)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}
