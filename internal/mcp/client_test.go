package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aictl/agentcore/internal/tools"
)

type greetArgs struct {
	Name string `json:"name" jsonschema:"who to greet"`
}

func newTestServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	mcp.AddTool(srv, &mcp.Tool{Name: "greet", Description: "Say hello"},
		func(ctx context.Context, req *mcp.CallToolRequest, in greetArgs) (*mcp.CallToolResult, any, error) {
			if in.Name == "" {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: "name is empty"}},
				}, nil, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "hello " + in.Name}},
			}, nil, nil
		})
	return srv
}

// newTestManager wires one server named "demo" over in-memory transports.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()
	cfg := &Config{MCPServers: map[string]ServerConfig{"demo": {Command: "unused"}}}
	m := NewManager(cfg, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.transport = func(ServerConfig) (mcp.Transport, error) {
		clientT, serverT := mcp.NewInMemoryTransports()
		if _, err := newTestServer().Connect(ctx, serverT, nil); err != nil {
			return nil, err
		}
		return clientT, nil
	}
	t.Cleanup(m.Close)
	return m
}

func TestManager_ConnectAndCall(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if errs := m.ConnectAll(ctx); len(errs) != 0 {
		t.Fatalf("ConnectAll: %v", errs)
	}
	all := m.AllTools()
	if len(all["demo"]) != 1 || all["demo"][0].Name != "greet" {
		t.Fatalf("AllTools = %v", all)
	}
	if got := m.Status()["demo"]; got != "connected (1 tools)" {
		t.Errorf("Status = %q", got)
	}

	out, isErr, err := m.CallTool(ctx, "demo", "greet", map[string]any{"name": "gopher"})
	if err != nil || isErr || out != "hello gopher" {
		t.Errorf("CallTool = %q, %v, %v", out, isErr, err)
	}
	out, isErr, err = m.CallTool(ctx, "demo", "greet", map[string]any{"name": ""})
	if err != nil || !isErr || out != "name is empty" {
		t.Errorf("tool error = %q, %v, %v", out, isErr, err)
	}
}

func TestManager_UnknownServer(t *testing.T) {
	m := newTestManager(t)
	if _, _, err := m.CallTool(context.Background(), "missing", "greet", nil); err == nil {
		t.Error("expected error for unknown server")
	}
}

func TestManager_ReconnectsAfterFailure(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if errs := m.ConnectAll(ctx); len(errs) != 0 {
		t.Fatalf("ConnectAll: %v", errs)
	}

	// Drop the session behind the manager's back.
	conn := m.servers["demo"]
	conn.mu.Lock()
	_ = conn.session.Close()
	conn.mu.Unlock()

	out, _, err := m.CallTool(ctx, "demo", "greet", map[string]any{"name": "again"})
	if err != nil || out != "hello again" {
		t.Errorf("CallTool after reconnect = %q, %v", out, err)
	}
}

func TestManager_ConnectErrorsAreCollected(t *testing.T) {
	cfg := &Config{MCPServers: map[string]ServerConfig{"a": {}, "b": {}}}
	m := NewManager(cfg, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.transport = func(ServerConfig) (mcp.Transport, error) { return nil, errors.New("boom") }

	if errs := m.ConnectAll(context.Background()); len(errs) != 2 {
		t.Errorf("errors = %v, want 2", errs)
	}
	for name, s := range m.Status() {
		if s != "disconnected" {
			t.Errorf("%s status = %q", name, s)
		}
	}
	if got := m.ServerNames(); len(got) != 2 || got[0] != "a" {
		t.Errorf("ServerNames = %v", got)
	}
}

func TestRegisterTools(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if errs := m.ConnectAll(ctx); len(errs) != 0 {
		t.Fatalf("ConnectAll: %v", errs)
	}

	catalog := tools.NewCatalog(tools.Deps{WorkDir: t.TempDir()})
	n, err := RegisterTools(m, catalog)
	if err != nil || n != 1 {
		t.Fatalf("RegisterTools = %d, %v", n, err)
	}

	descs := catalog.Discover()
	if len(descs) != 1 {
		t.Fatalf("Discover = %v", descs)
	}
	d := descs[0]
	if d.Name != "mcp__demo__greet" || d.Category != tools.CategoryMCP {
		t.Errorf("descriptor = %+v", d)
	}
	if !strings.HasPrefix(d.Description, "[MCP: demo] ") {
		t.Errorf("description = %q", d.Description)
	}
	if catalog.Signature(d.Name, nil) != d.Name {
		t.Errorf("signature = %q", catalog.Signature(d.Name, nil))
	}

	out := catalog.Dispatch(ctx, d.Name, map[string]any{"name": "catalog"})
	text, isErr := out.Text()
	if isErr || text != "hello catalog" {
		t.Errorf("Dispatch = %q, %v", text, isErr)
	}

	out = catalog.Dispatch(ctx, d.Name, map[string]any{"name": 42.0})
	if out.OK() || out.Err.Kind != tools.InvalidArguments {
		t.Errorf("expected invalid arguments, got %+v", out)
	}

	if _, err := RegisterTools(m, catalog); !errors.Is(err, tools.ErrDuplicateTool) {
		t.Errorf("second RegisterTools err = %v", err)
	}
}

func TestInputSchema(t *testing.T) {
	if s := inputSchema(nil); s.Type != "object" {
		t.Errorf("nil schema type = %q", s.Type)
	}
	s := inputSchema(map[string]any{
		"properties": map[string]any{"q": map[string]any{"type": "string"}},
		"required":   []any{"q"},
	})
	if s.Type != "object" || len(s.Required) != 1 || s.Properties["q"].Type != "string" {
		t.Errorf("schema = %+v", s)
	}
}

func TestBuildTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"stdio", ServerConfig{Command: "echo"}, false},
		{"stdio without command", ServerConfig{Type: ServerTypeStdio}, true},
		{"http", ServerConfig{URL: "http://localhost:1/mcp"}, false},
		{"http without url", ServerConfig{Type: ServerTypeHTTP}, true},
		{"unknown type", ServerConfig{Type: "carrier-pigeon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTransport(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractContent(t *testing.T) {
	if extractContent(nil) != "" {
		t.Error("nil result should be empty")
	}
	res := &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: "a"},
		&mcp.ImageContent{MIMEType: "image/png"},
		&mcp.TextContent{Text: "b"},
	}}
	if got := extractContent(res); got != "a\nb" {
		t.Errorf("extractContent = %q", got)
	}
}

func TestHeaderRoundTripper(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerRoundTripper{
		base:    http.DefaultTransport,
		headers: map[string]string{"Authorization": "Bearer xyz"},
	}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got != "Bearer xyz" {
		t.Errorf("Authorization = %q", got)
	}
}
