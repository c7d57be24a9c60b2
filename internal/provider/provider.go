// Package provider defines the message model shared by the runtime and the
// streaming interface every LLM adapter implements. Each adapter
// (anthropic.go, openai.go) normalizes its vendor's streaming response into
// the same Event sequence; Client builds the higher-level chat and
// compression operations on top of that.
package provider

import (
	"context"
	"encoding/json"
)

// ── Messages ─────────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry of the conversation transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if len(m.ToolCalls) == 0 {
		return m
	}
	calls := make([]ToolCall, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		calls[i] = tc
		if tc.Arguments != nil {
			calls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
		}
	}
	m.ToolCalls = calls
	return m
}

// ── Tool schema ──────────────────────────────────────────────────────────────

// ToolSchema describes a callable tool to the model. Parameters is a full
// JSON Schema object ({"type":"object","properties":{...},"required":[...]}).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// properties returns the "properties" member of the schema, never nil.
func (s ToolSchema) properties() map[string]any {
	if p, ok := s.Parameters["properties"].(map[string]any); ok {
		return p
	}
	return map[string]any{}
}

// ── Requests ─────────────────────────────────────────────────────────────────

// ChatRequest is the provider-neutral request.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolSchema
	SystemPrompt string
	MaxTokens    int
}

// ── Streaming events ─────────────────────────────────────────────────────────

type EventType int

const (
	// EventTextDelta carries an incremental chunk of assistant text.
	EventTextDelta EventType = iota

	// EventToolCallDone carries one fully assembled tool call.
	EventToolCallDone

	// EventDone ends the response and carries token usage.
	EventDone

	// EventError ends the response with a failure.
	EventError
)

// Event is one item of a provider's response stream.
type Event struct {
	Type EventType

	TextDelta string
	ToolCall  *ToolCall
	Usage     *Usage
	Error     error
}

// Usage records the tokens consumed by one API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider ─────────────────────────────────────────────────────────────────

// Provider is implemented by every LLM adapter. Implementations translate
// ChatRequest into the vendor request, assemble streamed tool-call JSON
// fragments, and emit Events until EventDone or EventError, then close the
// channel. Callers must drain the channel.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "deepseek".
	Name() string

	Models() []string
	DefaultModel() string
}

// ── Transcript hygiene ───────────────────────────────────────────────────────

// skippedToolResult is the content of a synthesized result for a tool call
// that never ran (its batch was aborted).
const skippedToolResult = "Tool call was not executed."

// pairToolResults makes a transcript acceptable to vendor APIs, which
// require every assistant tool call to be answered by a tool message and
// reject tool messages that answer nothing. Calls left unanswered (an aborted
// batch) get a synthesized result right after the answered ones; orphaned
// tool messages (their call was compacted away) are dropped.
func pairToolResults(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		if m.Role == RoleTool {
			// Reached only when no preceding assistant message owns it.
			continue
		}
		out = append(out, m)
		if m.Role != RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}

		pending := make(map[string]bool, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			pending[tc.ID] = true
		}
		j := i + 1
		for ; j < len(msgs) && msgs[j].Role == RoleTool; j++ {
			if pending[msgs[j].ToolCallID] {
				out = append(out, msgs[j])
				delete(pending, msgs[j].ToolCallID)
			}
		}
		for _, tc := range m.ToolCalls {
			if pending[tc.ID] {
				out = append(out, Message{
					Role:       RoleTool,
					Content:    skippedToolResult,
					ToolCallID: tc.ID,
					IsError:    true,
				})
			}
		}
		i = j - 1
	}
	return out
}
