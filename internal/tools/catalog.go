package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aictl/agentcore/internal/provider"
)

// ErrDuplicateTool is returned when a name is registered twice.
var ErrDuplicateTool = errors.New("tool already registered")

// Descriptor is the static metadata of a registered tool.
type Descriptor struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Category      string         `json:"category"`
	FileOperation bool           `json:"file_operation"`
	ReadOnly      bool           `json:"read_only"`
	Schema        map[string]any `json:"schema"`
}

// Catalog holds the tools of one session. Tool instances are built on
// first dispatch and cached.
type Catalog struct {
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	regs      map[string]Registration
	instances map[string]invoker
}

// NewCatalog creates an empty catalog whose tools are built with deps.
func NewCatalog(deps Deps) *Catalog {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		deps:      deps,
		logger:    logger,
		regs:      make(map[string]Registration),
		instances: make(map[string]invoker),
	}
}

// Register adds a tool. Registering a name twice fails with
// ErrDuplicateTool.
func (c *Catalog) Register(reg Registration) error {
	if reg.err != nil {
		return reg.err
	}
	if reg.desc.Name == "" {
		return errors.New("tool name is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.regs[reg.desc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, reg.desc.Name)
	}
	c.regs[reg.desc.Name] = reg
	return nil
}

// Discover returns the metadata of every tool, sorted by name. No tool is
// constructed.
func (c *Catalog) Discover() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Descriptor, 0, len(c.regs))
	for _, r := range c.regs {
		out = append(out, r.desc)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// SchemasForModel returns the tool list in the shape the model client
// sends it.
func (c *Catalog) SchemasForModel() []provider.ToolSchema {
	descs := c.Discover()
	out := make([]provider.ToolSchema, 0, len(descs))
	for _, d := range descs {
		out = append(out, provider.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema,
		})
	}
	return out
}

func (c *Catalog) lookup(name string) (Registration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.regs[name]
	return r, ok
}

// IsFileOperation reports whether name reads or writes a single file.
func (c *Catalog) IsFileOperation(name string) bool {
	r, ok := c.lookup(name)
	return ok && r.desc.FileOperation
}

// Signature implements permission.Inspector.
func (c *Catalog) Signature(name string, args map[string]any) string {
	r, ok := c.lookup(name)
	if !ok || r.signature == nil {
		return name
	}
	return r.signature(args)
}

// IsDangerous implements permission.Inspector.
func (c *Catalog) IsDangerous(name string, args map[string]any) bool {
	r, ok := c.lookup(name)
	return ok && r.dangerous != nil && r.dangerous(args)
}

// Category implements permission.Inspector.
func (c *Catalog) Category(name string) string {
	r, _ := c.lookup(name)
	return r.desc.Category
}

// Dispatch validates args and runs the tool. It never panics; every
// failure comes back as an Outcome.
func (c *Catalog) Dispatch(ctx context.Context, name string, args map[string]any) (out Outcome) {
	reg, ok := c.lookup(name)
	if !ok {
		return fail(UnknownTool, fmt.Sprintf("unknown tool: %s", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	if errs := reg.validator.validate(args); len(errs) > 0 {
		return Outcome{Err: &Failure{
			Kind:    InvalidArguments,
			Message: fmt.Sprintf("invalid arguments for %s: %s", name, joinFieldErrors(errs)),
			Details: errs,
		}}
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tool panicked", "tool", name, "panic", r)
			out = fail(ToolExecutionFailed, fmt.Sprintf("%s panicked: %v", name, r))
		}
	}()

	run, err := c.instance(name, reg)
	if err != nil {
		return fail(ToolExecutionFailed, fmt.Sprintf("%s: %v", name, err))
	}

	start := time.Now()
	res, err := run(ctx, args)
	c.logger.Debug("tool dispatched", "tool", name, "duration", time.Since(start), "error", err != nil || res.IsError)
	if err != nil {
		return fail(ToolExecutionFailed, fmt.Sprintf("%s: %v", name, err))
	}
	return Outcome{Value: res}
}

func (c *Catalog) instance(name string, reg Registration) (invoker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run, ok := c.instances[name]; ok {
		return run, nil
	}
	run, err := reg.build(c.deps)
	if err != nil {
		return nil, err
	}
	c.instances[name] = run
	return run, nil
}
