package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aictl/agentcore/internal/tools"
)

// ToolName is the catalog name of a server's tool: mcp__<server>__<tool>.
func ToolName(server, tool string) string {
	return fmt.Sprintf("mcp__%s__%s", server, tool)
}

// RegisterTools adds every cached tool of the connected servers to the
// catalog and returns how many were added. Each call is proxied through
// the manager.
func RegisterTools(m *Manager, catalog *tools.Catalog) (int, error) {
	all := m.AllTools()
	servers := make([]string, 0, len(all))
	for name := range all {
		servers = append(servers, name)
	}
	slices.Sort(servers)

	count := 0
	for _, server := range servers {
		for _, t := range all[server] {
			if err := catalog.Register(proxyRegistration(m, server, t)); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func proxyRegistration(m *Manager, server string, t *mcpsdk.Tool) tools.Registration {
	desc := t.Description
	if desc == "" {
		desc = t.Name
	}
	toolName := t.Name
	return tools.RawSchema(
		tools.Descriptor{
			Name:        ToolName(server, toolName),
			Description: fmt.Sprintf("[MCP: %s] %s", server, desc),
			Category:    tools.CategoryMCP,
		},
		inputSchema(t.InputSchema),
		func(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
			output, isError, err := m.CallTool(ctx, server, toolName, args)
			if err != nil {
				return tools.ToolResult{}, err
			}
			return tools.ToolResult{Content: output, IsError: isError}, nil
		},
	)
}

// inputSchema converts the schema a server advertised. Servers that send
// nothing usable get an open object schema.
func inputSchema(raw any) *jsonschema.Schema {
	open := &jsonschema.Schema{Type: "object"}
	if raw == nil {
		return open
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return open
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return open
	}
	if s.Type == "" && len(s.Types) == 0 {
		s.Type = "object"
	}
	return &s
}
