// Package tools holds the tool catalog and the built-in tools the model
// can call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool categories.
const (
	CategoryFilesystem = "filesystem"
	CategoryExecutor   = "executor"
	CategoryGit        = "git"
	CategoryAgent      = "agent"
	CategoryWeb        = "web"
	CategoryMCP        = "mcp"
)

// ToolResult is what a tool hands back to the model.
type ToolResult struct {
	Content   string
	IsError   bool
	Truncated bool
}

// Handler runs one call of a tool with decoded arguments. A returned error
// is reported to the model as an execution failure.
type Handler[A any] func(ctx context.Context, args A) (ToolResult, error)

// FileTruncator shrinks file content to a token budget. budget.Tracker
// implements it.
type FileTruncator interface {
	TruncateFileContent(content string, maxTokens int) string
}

// Deps are the session-scoped collaborators handed to tool factories.
type Deps struct {
	WorkDir    string
	Files      FileTruncator
	Todos      *TodoList
	Changes    *FileTracker
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Definition describes one tool. A is the argument struct; its JSON
// schema is derived from the struct's json and jsonschema tags.
type Definition[A any] struct {
	Name          string
	Description   string
	Category      string
	FileOperation bool
	ReadOnly      bool

	// Dangerous reports calls that must be confirmed every time.
	Dangerous func(A) bool
	// Signature is the scope of an "allow always" answer. Nil means the
	// tool name.
	Signature func(A) string
	// Refine adjusts the generated schema, e.g. to add enums.
	Refine func(*jsonschema.Schema)

	New func(Deps) (Handler[A], error)
}

// Registration is a type-erased Definition ready to be registered.
type Registration struct {
	desc      Descriptor
	validator *argValidator
	schemaMap map[string]any
	err       error

	dangerous func(map[string]any) bool
	signature func(map[string]any) string
	build     func(Deps) (invoker, error)
}

type invoker func(ctx context.Context, args map[string]any) (ToolResult, error)

// Name returns the registered tool name.
func (r Registration) Name() string { return r.desc.Name }

// Define generates the argument schema for d once and returns its
// registration. A schema that cannot be generated surfaces as an error
// from Catalog.Register.
func Define[A any](d Definition[A]) Registration {
	reg := Registration{desc: Descriptor{
		Name:          d.Name,
		Description:   d.Description,
		Category:      d.Category,
		FileOperation: d.FileOperation,
		ReadOnly:      d.ReadOnly,
	}}

	schema, err := jsonschema.For[A](nil)
	if err != nil {
		reg.err = fmt.Errorf("schema for %s: %w", d.Name, err)
		return reg
	}
	if d.Refine != nil {
		d.Refine(schema)
	}
	m, err := schemaToMap(schema)
	if err != nil {
		reg.err = fmt.Errorf("schema for %s: %w", d.Name, err)
		return reg
	}
	if reg.validator, err = newArgValidator(schema); err != nil {
		reg.err = fmt.Errorf("schema for %s: %w", d.Name, err)
		return reg
	}
	reg.schemaMap = m
	reg.desc.Schema = m

	if d.Dangerous != nil {
		reg.dangerous = func(args map[string]any) bool {
			a, _ := decodeArgs[A](args)
			return d.Dangerous(a)
		}
	}
	if d.Signature != nil {
		reg.signature = func(args map[string]any) string {
			a, _ := decodeArgs[A](args)
			return d.Signature(a)
		}
	}
	reg.build = func(deps Deps) (invoker, error) {
		h, err := d.New(deps)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, args map[string]any) (ToolResult, error) {
			a, err := decodeArgs[A](args)
			if err != nil {
				return ToolResult{}, fmt.Errorf("decode arguments: %w", err)
			}
			return h(ctx, a)
		}, nil
	}
	return reg
}

// RawSchema registers a tool whose schema comes from elsewhere (an MCP
// server) and whose handler takes the raw argument map. A schema that
// does not resolve locally, for example one with remote $refs, is only
// checked for being an object; the server validates the rest.
func RawSchema(desc Descriptor, schema *jsonschema.Schema, run func(ctx context.Context, args map[string]any) (ToolResult, error)) Registration {
	reg := Registration{desc: desc}
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object"}
	}
	m, err := schemaToMap(schema)
	if err != nil {
		reg.err = fmt.Errorf("schema for %s: %w", desc.Name, err)
		return reg
	}
	if reg.validator, err = newArgValidator(schema); err != nil {
		reg.validator, _ = newArgValidator(&jsonschema.Schema{Type: "object"})
	}
	reg.schemaMap = m
	reg.desc.Schema = m
	reg.build = func(Deps) (invoker, error) { return run, nil }
	return reg
}

func decodeArgs[A any](args map[string]any) (A, error) {
	var a A
	if len(args) == 0 {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return a, err
	}
	err = json.Unmarshal(data, &a)
	return a, err
}

func schemaToMap(s *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// setEnum restricts a top-level string property to the given values.
func setEnum(s *jsonschema.Schema, prop string, values ...string) {
	p, ok := s.Properties[prop]
	if !ok {
		return
	}
	p.Enum = make([]any, len(values))
	for i, v := range values {
		p.Enum[i] = v
	}
}
