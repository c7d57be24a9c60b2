// Package mcp connects to Model Context Protocol servers and exposes their
// tools through the tool catalog.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// ServerType is an MCP transport.
type ServerType string

const (
	ServerTypeStdio ServerType = "stdio" // child process stdin/stdout
	ServerTypeHTTP  ServerType = "http"  // streamable HTTP
)

// ServerConfig holds the connection settings of one server, in the
// common mcp.json shape:
//
//	{
//	  "command": "npx",
//	  "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"],
//	  "env": { "KEY": "${ENV_VAR}" }
//	}
type ServerConfig struct {
	Type ServerType `json:"type,omitempty"`

	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// EffectiveType infers the transport when Type is omitted.
func (c *ServerConfig) EffectiveType() ServerType {
	if c.Type != "" {
		return c.Type
	}
	if c.URL != "" {
		return ServerTypeHTTP
	}
	return ServerTypeStdio
}

// Config is the top level of an mcp.json file.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads the MCP server list. With an explicit path only that
// file is read and it must exist. Otherwise ~/.config/agentcore/mcp.json
// is merged with <projectRoot>/.agentcore/mcp.json, project entries
// winning. Comments and trailing commas are allowed, and ${VAR}
// references are expanded from the environment.
func LoadConfig(path, projectRoot string) (*Config, error) {
	merged := &Config{MCPServers: make(map[string]ServerConfig)}

	var paths []string
	if path != "" {
		cfg, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, fmt.Errorf("mcp config %s: %w", path, os.ErrNotExist)
		}
		merged = cfg
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".config", "agentcore", "mcp.json"))
		}
		if projectRoot != "" {
			paths = append(paths, filepath.Join(projectRoot, ".agentcore", "mcp.json"))
		}
	}
	for _, p := range paths {
		cfg, err := loadFile(p)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			continue
		}
		for name, srv := range cfg.MCPServers {
			merged.MCPServers[name] = srv
		}
	}

	for name, srv := range merged.MCPServers {
		merged.MCPServers[name] = expandServerConfig(srv)
	}
	return merged, nil
}

// loadFile returns nil, nil when the file does not exist.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mcp config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse mcp config %s: %w", path, err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerConfig)
	}
	return &cfg, nil
}

func expandServerConfig(srv ServerConfig) ServerConfig {
	srv.Command = os.ExpandEnv(srv.Command)
	srv.URL = os.ExpandEnv(srv.URL)

	args := make([]string, len(srv.Args))
	for i, a := range srv.Args {
		args[i] = os.ExpandEnv(a)
	}
	srv.Args = args

	srv.Env = expandMap(srv.Env)
	srv.Headers = expandMap(srv.Headers)
	return srv
}

func expandMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = os.ExpandEnv(v)
	}
	return out
}
