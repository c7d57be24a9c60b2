package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// TodoItem is one task in the session's plan.
type TodoItem struct {
	ID     int    `json:"id"`
	Task   string `json:"task"`
	Status string `json:"status"` // "pending", "in_progress", "completed"
}

// TodoList is the session's task list, shared by todo_write and todo_read.
type TodoList struct {
	mu    sync.Mutex
	items []TodoItem
}

// NewTodoList returns an empty list.
func NewTodoList() *TodoList { return &TodoList{} }

// Replace swaps in a new list, numbering items from 1. Empty statuses
// become "pending".
func (l *TodoList) Replace(items []TodoItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = make([]TodoItem, len(items))
	for i, item := range items {
		if item.Status == "" {
			item.Status = "pending"
		}
		item.ID = i + 1
		l.items[i] = item
	}
}

// Items returns a copy of the list.
func (l *TodoList) Items() []TodoItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TodoItem, len(l.items))
	copy(out, l.items)
	return out
}

// Render formats the list with a progress line.
func (l *TodoList) Render() string {
	items := l.Items()
	if len(items) == 0 {
		return "No todo items."
	}

	var sb strings.Builder
	pending, inProgress, completed := 0, 0, 0
	for _, item := range items {
		icon := "○"
		switch item.Status {
		case "in_progress":
			icon = "◐"
			inProgress++
		case "completed":
			icon = "●"
			completed++
		default:
			pending++
		}
		fmt.Fprintf(&sb, "%s [%d] %s\n", icon, item.ID, item.Task)
	}
	fmt.Fprintf(&sb, "\nProgress: %d/%d completed", completed, len(items))
	if inProgress > 0 {
		fmt.Fprintf(&sb, ", %d in progress", inProgress)
	}
	if pending > 0 {
		fmt.Fprintf(&sb, ", %d pending", pending)
	}
	return sb.String()
}

type todoWriteArgs struct {
	Items []todoEntry `json:"items" jsonschema:"The complete list of todo items (replaces the existing list)"`
}

type todoEntry struct {
	Task   string `json:"task" jsonschema:"Description of the task"`
	Status string `json:"status,omitempty" jsonschema:"Task status"`
}

type todoReadArgs struct{}

// TodoWrite replaces the session's todo list.
func TodoWrite() Registration {
	return Define(Definition[todoWriteArgs]{
		Name: "todo_write",
		Description: "Create or update a todo list to track multi-step tasks. " +
			"Accepts the full list of items and replaces any existing list. " +
			"Use it to plan work and track progress in long conversations.",
		Category: CategoryAgent,
		Refine: func(s *jsonschema.Schema) {
			if items := s.Properties["items"]; items != nil && items.Items != nil {
				setEnum(items.Items, "status", "pending", "in_progress", "completed")
			}
		},
		New: func(d Deps) (Handler[todoWriteArgs], error) {
			if d.Todos == nil {
				return nil, fmt.Errorf("todo list not configured")
			}
			return func(_ context.Context, p todoWriteArgs) (ToolResult, error) {
				items := make([]TodoItem, len(p.Items))
				for i, e := range p.Items {
					items[i] = TodoItem{Task: e.Task, Status: e.Status}
				}
				d.Todos.Replace(items)
				return ToolResult{Content: fmt.Sprintf("Todo list updated: %d items", len(items))}, nil
			}, nil
		},
	})
}

// TodoRead returns the session's todo list.
func TodoRead() Registration {
	return Define(Definition[todoReadArgs]{
		Name:        "todo_read",
		Description: "Read the current todo list. Returns all items with their status. Use this to check progress before continuing work.",
		Category:    CategoryAgent,
		ReadOnly:    true,
		New: func(d Deps) (Handler[todoReadArgs], error) {
			if d.Todos == nil {
				return nil, fmt.Errorf("todo list not configured")
			}
			return func(context.Context, todoReadArgs) (ToolResult, error) {
				return ToolResult{Content: d.Todos.Render()}, nil
			}, nil
		},
	})
}
