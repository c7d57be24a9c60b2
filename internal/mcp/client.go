package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Manager owns the connections to the configured MCP servers. CallTool is
// safe for concurrent use.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	servers map[string]*serverConn

	// transport builds a server's transport; replaced in tests.
	transport func(ServerConfig) (mcp.Transport, error)
}

// serverConn is one server's session and cached tool list.
type serverConn struct {
	mu      sync.Mutex
	config  ServerConfig
	name    string
	client  *mcp.Client
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// NewManager creates a manager for cfg without connecting.
func NewManager(cfg *Config, version string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:    logger,
		servers:   make(map[string]*serverConn),
		transport: buildTransport,
	}
	if cfg == nil {
		return m
	}
	for name, srv := range cfg.MCPServers {
		m.servers[name] = &serverConn{
			config: srv,
			name:   name,
			client: mcp.NewClient(&mcp.Implementation{Name: "agentcore", Version: version}, nil),
		}
	}
	return m
}

// ServerNames returns the configured server names, sorted.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *Manager) conns() []*serverConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*serverConn, 0, len(m.servers))
	for _, conn := range m.servers {
		out = append(out, conn)
	}
	return out
}

// ConnectAll connects every server and caches its tool list. A failing
// server does not stop the others; all errors are returned.
func (m *Manager) ConnectAll(ctx context.Context) []error {
	var errs []error
	for _, conn := range m.conns() {
		if err := m.connect(ctx, conn); err != nil {
			m.logger.Warn("mcp server unavailable", "server", conn.name, "error", err)
			errs = append(errs, fmt.Errorf("mcp server %q: %w", conn.name, err))
		}
	}
	return errs
}

// CallTool calls a tool on a server, reconnecting once on failure. The
// bool reports a tool-level error; the error is a transport failure.
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, args map[string]any) (string, bool, error) {
	m.mu.RLock()
	conn, ok := m.servers[serverName]
	m.mu.RUnlock()
	if !ok {
		return "", false, fmt.Errorf("mcp server %q not found", serverName)
	}

	result, err := conn.callTool(ctx, toolName, args)
	if err != nil {
		m.logger.Warn("mcp call failed, reconnecting", "server", serverName, "tool", toolName, "error", err)
		conn.mu.Lock()
		conn.disconnect()
		conn.mu.Unlock()
		if reconnErr := m.connect(ctx, conn); reconnErr != nil {
			return "", false, fmt.Errorf("call tool %q on %q (reconnect failed: %v): %w",
				toolName, serverName, reconnErr, err)
		}
		result, err = conn.callTool(ctx, toolName, args)
		if err != nil {
			return "", false, fmt.Errorf("call tool %q on %q: %w", toolName, serverName, err)
		}
	}
	return extractContent(result), result.IsError, nil
}

// AllTools returns the cached tools of every connected server.
func (m *Manager) AllTools() map[string][]*mcp.Tool {
	out := make(map[string][]*mcp.Tool)
	for _, conn := range m.conns() {
		conn.mu.Lock()
		if conn.tools != nil {
			out[conn.name] = slices.Clone(conn.tools)
		}
		conn.mu.Unlock()
	}
	return out
}

// Status describes each server's connection for display.
func (m *Manager) Status() map[string]string {
	out := make(map[string]string)
	for _, conn := range m.conns() {
		conn.mu.Lock()
		if conn.session != nil {
			out[conn.name] = fmt.Sprintf("connected (%d tools)", len(conn.tools))
		} else {
			out[conn.name] = "disconnected"
		}
		conn.mu.Unlock()
	}
	return out
}

// Close disconnects every server.
func (m *Manager) Close() {
	for _, conn := range m.conns() {
		conn.mu.Lock()
		conn.disconnect()
		conn.mu.Unlock()
	}
}

// connect opens a session and caches the tool list. It is a no-op when
// already connected.
func (m *Manager) connect(ctx context.Context, conn *serverConn) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.session != nil {
		return nil
	}
	transport, err := m.transport(conn.config)
	if err != nil {
		return err
	}
	session, err := conn.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	conn.session = session

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		m.logger.Warn("mcp list tools failed", "server", conn.name, "error", err)
		conn.tools = nil
		return nil
	}
	conn.tools = result.Tools
	m.logger.Info("mcp server connected", "server", conn.name, "tools", len(result.Tools))
	return nil
}

// disconnect closes the session. The caller holds conn.mu.
func (conn *serverConn) disconnect() {
	if conn.session != nil {
		_ = conn.session.Close()
		conn.session = nil
	}
	conn.tools = nil
}

func (conn *serverConn) callTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	conn.mu.Lock()
	session := conn.session
	conn.mu.Unlock()

	if session == nil {
		return nil, fmt.Errorf("not connected")
	}
	return session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
}

// buildTransport creates the transport a ServerConfig asks for.
func buildTransport(cfg ServerConfig) (mcp.Transport, error) {
	switch cfg.EffectiveType() {
	case ServerTypeStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires 'command'")
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case ServerTypeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("http transport requires 'url'")
		}
		t := &mcp.StreamableClientTransport{Endpoint: cfg.URL}
		if len(cfg.Headers) > 0 {
			t.HTTPClient = &http.Client{
				Transport: &headerRoundTripper{base: http.DefaultTransport, headers: cfg.Headers},
			}
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.EffectiveType())
	}
}

// extractContent joins the text parts of a tool result.
func extractContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// headerRoundTripper adds fixed headers to every request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}
