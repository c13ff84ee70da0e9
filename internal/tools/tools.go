// Package tools manages the tool surface offered to the dialogue engine.
//
// Tools come from two sources: builtin Go functions registered by each
// assistant (the save_checkin / save_order handlers), and external Model
// Context Protocol servers connected over stdio or streamable HTTP via the
// official MCP Go SDK. The [Registry] presents both as a single catalogue
// keyed by tool name; the pipeline engine looks tools up here when the LLM
// requests a call.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/averro/voiceline/pkg/types"
)

// ErrToolNotFound is returned by Execute for names absent from the catalogue.
var ErrToolNotFound = errors.New("tools: tool not found")

// defaultExecTimeout bounds a single tool execution when the caller's
// context carries no deadline of its own.
const defaultExecTimeout = 30 * time.Second

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP
	// protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name uniquely identifies the server within a Registry; used in logs.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable with optional arguments, split on spaces,
	// launched when Transport is stdio.
	Command string

	// URL is the endpoint address when Transport is streamable-http.
	URL string

	// Env holds extra environment variables for the stdio subprocess.
	Env map[string]string
}

// Tool is a builtin tool: an LLM-facing schema plus the Go handler invoked
// when the model calls it.
type Tool struct {
	// Definition is the tool's schema as offered to the LLM.
	Definition types.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a result
	// string for the model. It must be safe for concurrent use and respect
	// context cancellation. A returned error is reported to the model as a
	// failed tool call, not swallowed.
	Handler func(ctx context.Context, args string) (string, error)
}

// Result is the outcome of one tool execution.
type Result struct {
	// Content is the tool's textual output, ready for the LLM context.
	Content string

	// IsError marks an application-level failure; Content then holds the
	// error message. Transport failures surface as Go errors instead.
	IsError bool

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// entry is one catalogue slot: either builtin (handler non-nil) or remote.
type entry struct {
	def        types.ToolDefinition
	handler    func(ctx context.Context, args string) (string, error)
	serverName string
}

type serverConn struct {
	session *mcpsdk.ClientSession
}

// Registry is the unified tool catalogue. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	servers map[string]serverConn
	client  *mcpsdk.Client
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		servers: make(map[string]serverConn),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "voiceline", Version: "1.0.0"},
			nil,
		),
	}
}

// RegisterBuiltin adds builtin tools to the catalogue. Registering a name
// that already exists is an error: assistants own their tool names and a
// silent overwrite would mask a wiring mistake.
func (r *Registry) RegisterBuiltin(ts ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		if t.Definition.Name == "" {
			return errors.New("tools: builtin tool must have a name")
		}
		if t.Handler == nil {
			return fmt.Errorf("tools: builtin tool %q must have a handler", t.Definition.Name)
		}
		if _, exists := r.entries[t.Definition.Name]; exists {
			return fmt.Errorf("tools: tool %q already registered", t.Definition.Name)
		}
		r.entries[t.Definition.Name] = entry{def: t.Definition, handler: t.Handler}
	}
	return nil
}

// ConnectServer connects to the MCP server described by cfg and imports its
// tool catalogue. Remote tools whose names collide with existing entries are
// skipped; builtin tools always win.
func (r *Registry) ConnectServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return errors.New("tools: server config must have a name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio server %q requires a command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := r.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return fmt.Errorf("tools: list tools of server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.servers[cfg.Name]; ok {
		old.session.Close()
		for name, e := range r.entries {
			if e.serverName == cfg.Name {
				delete(r.entries, name)
			}
		}
	}
	r.servers[cfg.Name] = serverConn{session: session}

	for _, t := range discovered {
		if _, exists := r.entries[t.Name]; exists {
			continue
		}
		r.entries[t.Name] = entry{
			def: types.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: cfg.Name,
		}
	}
	return nil
}

// Definitions returns schemas for every registered tool, for offering to
// the LLM.
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	return defs
}

// Execute runs the named tool with JSON-encoded args. A non-nil *Result is
// returned even when the tool itself failed (Result.IsError); a Go error
// means the tool does not exist or transport failed.
func (r *Registry) Execute(ctx context.Context, name, args string) (*Result, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultExecTimeout)
		defer cancel()
	}

	start := time.Now()
	var res *Result
	var err error
	if e.handler != nil {
		res, err = executeBuiltin(ctx, e, args)
	} else {
		res, err = r.executeRemote(ctx, e, args)
	}
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func executeBuiltin(ctx context.Context, e entry, args string) (*Result, error) {
	output, err := e.handler(ctx, args)
	if err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	return &Result{Content: output}, nil
}

func (r *Registry) executeRemote(ctx context.Context, e entry, args string) (*Result, error) {
	r.mu.RLock()
	conn, ok := r.servers[e.serverName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tools: server %q gone for tool %q", e.serverName, e.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("tools: invalid args JSON for tool %q: %w", e.def.Name, err)
		}
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      e.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("tools: call tool %q: %w", e.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return &Result{Content: sb.String(), IsError: callResult.IsError}, nil
}

// Close shuts down all server connections and clears the catalogue.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, conn := range r.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: close server %q: %w", name, err)
		}
		delete(r.servers, name)
	}
	r.entries = make(map[string]entry)
	return firstErr
}

// splitCommand splits "executable arg1 arg2" into its parts.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// schemaToMap converts the SDK's schema value to the map form used in
// [types.ToolDefinition]. A nil or unconvertible schema yields a permissive
// empty object schema.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
