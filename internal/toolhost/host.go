// Package toolhost routes tool calls to their implementations.
//
// A Host unifies two tool sources behind one registry: built-in tools
// compiled into the binary, and tools discovered from external MCP servers.
// The orchestrator addresses every tool by name. Calls to names nobody
// registered are routed to a configurable default tool, so a single
// hallucinated tool name degrades one call instead of failing the turn.
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/saianfordx/vellum/internal/observe"
	"github.com/saianfordx/vellum/internal/tools"
	"github.com/saianfordx/vellum/pkg/types"
)

// Supported ServerConfig.Transport values.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig describes one external MCP server.
type ServerConfig struct {
	// Name identifies the server within the host. Re-registering a name
	// replaces the existing connection and its tools.
	Name string

	// Transport selects how to reach the server: TransportStdio launches
	// Command as a child process, TransportHTTP connects to URL. Empty
	// means stdio.
	Transport string

	// Command is the full command line for stdio servers.
	Command string

	// URL is the endpoint for http servers.
	URL string

	// Env holds additional environment variables for stdio servers, added
	// on top of the parent environment.
	Env map[string]string
}

// Result is the outcome of one tool execution. It is always well-formed:
// failed executions carry the error text in Content with IsError set, so the
// caller can hand the result to the model instead of aborting the turn.
type Result struct {
	// Tool is the name of the tool that actually ran, after any default
	// rerouting.
	Tool string

	// Content is the tool output, or the error text when IsError is set.
	Content string

	// IsError marks a failed execution.
	IsError bool

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

type entry struct {
	definition types.ToolDefinition
	handler    func(ctx context.Context, args string) (string, error)
	server     string // empty for built-in tools
}

type serverConn struct {
	session *mcpsdk.ClientSession
	config  ServerConfig
}

// Host is the unified tool registry. Safe for concurrent use.
type Host struct {
	log         *slog.Logger
	metrics     *observe.Metrics
	client      *mcpsdk.Client
	defaultTool string

	mu      sync.RWMutex
	entries map[string]entry
	servers map[string]serverConn
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(h *Host) { h.log = log }
}

// WithDefaultTool names the tool that handles calls to unregistered names.
// Arguments are passed through unchanged; the default tool's own input
// validation decides what to do with them.
func WithDefaultTool(name string) Option {
	return func(h *Host) { h.defaultTool = name }
}

// WithMetrics enables per-execution metrics. Nil disables recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// New returns an empty Host.
func New(opts ...Option) *Host {
	h := &Host{
		log:     slog.Default(),
		client:  mcpsdk.NewClient(&mcpsdk.Implementation{Name: "vellum", Version: "1.0.0"}, nil),
		entries: make(map[string]entry),
		servers: make(map[string]serverConn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterBuiltin adds a built-in tool. Registering an existing name
// replaces it.
func (h *Host) RegisterBuiltin(tool tools.Tool) error {
	if strings.TrimSpace(tool.Definition.Name) == "" {
		return fmt.Errorf("toolhost: tool name must not be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("toolhost: tool %q has no handler", tool.Definition.Name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[tool.Definition.Name] = entry{definition: tool.Definition, handler: tool.Handler}
	return nil
}

// RegisterBuiltins adds each tool in order, stopping at the first failure.
func (h *Host) RegisterBuiltins(toolset ...tools.Tool) error {
	for _, tool := range toolset {
		if err := h.RegisterBuiltin(tool); err != nil {
			return err
		}
	}
	return nil
}

// RegisterServer connects to an MCP server and registers every tool it
// advertises. Re-registering a server name closes the previous connection
// and replaces its tools.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("toolhost: server name must not be empty")
	}
	transport, err := transportFor(ctx, cfg)
	if err != nil {
		return err
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("toolhost: connect to server %q: %w", cfg.Name, err)
	}

	var defs []types.ToolDefinition
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return fmt.Errorf("toolhost: list tools of server %q: %w", cfg.Name, err)
		}
		defs = append(defs, types.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaToMap(tool.InputSchema),
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.servers[cfg.Name]; ok {
		old.session.Close()
		h.removeServerToolsLocked(cfg.Name)
	}
	h.servers[cfg.Name] = serverConn{session: session, config: cfg}
	for _, def := range defs {
		h.entries[def.Name] = entry{
			definition: def,
			handler:    h.mcpHandler(cfg.Name, def.Name),
			server:     cfg.Name,
		}
	}
	h.log.Info("mcp server registered", "server", cfg.Name, "transport", cfg.Transport, "tools", len(defs))
	return nil
}

// removeServerToolsLocked drops every tool owned by the given server.
// Caller holds h.mu.
func (h *Host) removeServerToolsLocked(server string) {
	for name, e := range h.entries {
		if e.server == server {
			delete(h.entries, name)
		}
	}
}

// mcpHandler adapts one remote MCP tool to the built-in handler signature.
// The session is resolved per call so re-registration takes effect for
// in-flight handlers.
func (h *Host) mcpHandler(server, tool string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		h.mu.RLock()
		conn, ok := h.servers[server]
		h.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("toolhost: server %q is not registered", server)
		}

		var argsMap map[string]any
		if trimmed := strings.TrimSpace(args); trimmed != "" && trimmed != "{}" {
			if err := json.Unmarshal([]byte(trimmed), &argsMap); err != nil {
				return "", fmt.Errorf("%w: %s: parse arguments: %w", tools.ErrInvalidInput, tool, err)
			}
		}

		res, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: argsMap})
		if err != nil {
			return "", fmt.Errorf("toolhost: call %q on server %q: %w", tool, server, err)
		}

		var b strings.Builder
		for _, content := range res.Content {
			if text, ok := content.(*mcpsdk.TextContent); ok {
				b.WriteString(text.Text)
			}
		}
		if res.IsError {
			return "", fmt.Errorf("toolhost: tool %q reported an error: %s", tool, b.String())
		}
		return b.String(), nil
	}
}

// Definitions returns every registered tool definition sorted by name, ready
// to advertise to the model.
func (h *Host) Definitions() []types.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(h.entries))
	for _, e := range h.entries {
		defs = append(defs, e.definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool with raw JSON arguments. Unknown names fall
// back to the default tool when one is configured. The returned result is
// never nil; execution failures are reported through IsError.
func (h *Host) Execute(ctx context.Context, name, args string) *Result {
	start := time.Now()

	e, resolved, ok := h.resolve(name)
	if !ok {
		res := &Result{
			Tool:     name,
			Content:  fmt.Sprintf("Tool %q is not available.", name),
			IsError:  true,
			Duration: time.Since(start),
		}
		h.record(ctx, res)
		return res
	}
	if resolved != name {
		h.log.Warn("unknown tool routed to default", "requested", name, "default", resolved)
	}

	out, err := e.handler(ctx, args)
	res := &Result{Tool: resolved, Content: out, Duration: time.Since(start)}
	if err != nil {
		res.Content = err.Error()
		res.IsError = true
	}
	h.log.Debug("tool executed",
		"tool", resolved,
		"is_error", res.IsError,
		"duration", res.Duration,
	)
	h.record(ctx, res)
	return res
}

// record emits execution metrics for one result when metrics are enabled.
func (h *Host) record(ctx context.Context, res *Result) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if res.IsError {
		status = "error"
	}
	h.metrics.ToolExecutionDuration.Record(ctx, res.Duration.Seconds())
	h.metrics.RecordToolCall(ctx, res.Tool, status)
}

// resolve looks up the entry for a name, falling back to the default tool.
// The lock is released before the handler runs so handlers may use the host.
func (h *Host) resolve(name string) (entry, string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e, ok := h.entries[name]; ok {
		return e, name, true
	}
	if h.defaultTool != "" {
		if e, ok := h.entries[h.defaultTool]; ok {
			return e, h.defaultTool, true
		}
	}
	return entry{}, name, false
}

// Close shuts down every MCP server connection and clears the registry.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("toolhost: close server %q: %w", name, err)
		}
	}
	h.servers = make(map[string]serverConn)
	h.entries = make(map[string]entry)
	return firstErr
}

// transportFor builds the MCP transport for a server config.
func transportFor(ctx context.Context, cfg ServerConfig) (mcpsdk.Transport, error) {
	switch cfg.Transport {
	case TransportStdio, "":
		parts := strings.Fields(cfg.Command)
		if len(parts) == 0 {
			return nil, fmt.Errorf("toolhost: server %q: stdio transport requires a command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		cmd.Env = os.Environ()
		keys := make([]string, 0, len(cfg.Env))
		for k := range cfg.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case TransportHTTP:
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, fmt.Errorf("toolhost: server %q: http transport requires a url", cfg.Name)
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil
	default:
		return nil, fmt.Errorf("toolhost: server %q: unknown transport %q", cfg.Name, cfg.Transport)
	}
}

// schemaToMap converts an MCP input schema to the loose map the model API
// expects. Unusable schemas degrade to a permissive object schema.
func schemaToMap(schema any) map[string]any {
	fallback := map[string]any{"type": "object"}
	if schema == nil {
		return fallback
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return fallback
	}
	return m
}
