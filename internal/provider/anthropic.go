package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicProvider implements Provider using the Anthropic native API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) Models() []string     { return []string{p.model} }
func (p *AnthropicProvider) DefaultModel() string { return p.model }

func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	msgs := buildAnthropicMessages(pairToolResults(req.Messages))
	if len(msgs) == 0 {
		return nil, fmt.Errorf("anthropic: request has no messages")
	}
	tools := buildAnthropicTools(req.Tools)

	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)
	return ch, nil
}

// processStream reads the Anthropic SSE stream and emits unified events.
//
// Anthropic streaming event sequence:
//   - ContentBlockStartEvent (tool_use) -> record tool call id/name
//   - ContentBlockDeltaEvent (InputJSONDelta) -> accumulate JSON arguments
//   - ContentBlockStopEvent -> arguments complete, emit EventToolCallDone
//   - ContentBlockDeltaEvent (TextDelta) -> emit EventTextDelta
//   - MessageDeltaEvent -> emit EventDone with usage
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	type pendingCall struct {
		id      string
		name    string
		jsonBuf strings.Builder
	}
	pending := make(map[int64]*pendingCall)
	var inputTokens int64

	for stream.Next() {
		select {
		case <-ctx.Done():
			ch <- Event{Type: EventError, Error: ctx.Err()}
			return
		default:
		}

		event := stream.Current()

		switch variant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			inputTokens = variant.Message.Usage.InputTokens

		case anthropic.ContentBlockStartEvent:
			cb := variant.ContentBlock
			if cb.Type == "tool_use" {
				toolUse := cb.AsToolUse()
				pending[variant.Index] = &pendingCall{
					id:   toolUse.ID,
					name: toolUse.Name,
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				ch <- Event{Type: EventTextDelta, TextDelta: d.Text}
			case anthropic.InputJSONDelta:
				if pc, ok := pending[variant.Index]; ok {
					pc.jsonBuf.WriteString(d.PartialJSON)
				}
			}

		case anthropic.ContentBlockStopEvent:
			if pc, ok := pending[variant.Index]; ok {
				args := pc.jsonBuf.String()
				if args == "" {
					args = "{}"
				}
				ch <- Event{
					Type: EventToolCallDone,
					ToolCall: &ToolCall{
						ID:        pc.id,
						Name:      pc.name,
						Arguments: json.RawMessage(args),
					},
				}
				delete(pending, variant.Index)
			}

		case anthropic.MessageDeltaEvent:
			in := variant.Usage.InputTokens
			if in == 0 {
				in = inputTokens
			}
			ch <- Event{
				Type: EventDone,
				Usage: &Usage{
					InputTokens:  int(in),
					OutputTokens: int(variant.Usage.OutputTokens),
				},
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		ch <- Event{Type: EventError, Error: fmt.Errorf("anthropic streaming error: %w", err)}
		return
	}

	ch <- Event{Type: EventDone, Usage: &Usage{}}
}

// buildAnthropicMessages converts the transcript to Anthropic params.
// The Messages API only knows user and assistant turns: tool results travel
// as tool_result blocks of a user turn, system entries inside the history
// (compaction summaries, coaching notes) become user text, and consecutive
// turns of the same role are merged.
func buildAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	var params []anthropic.MessageParam
	var lastRole Role

	push := func(role Role, blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if len(params) > 0 && lastRole == role {
			prev := &params[len(params)-1]
			prev.Content = append(prev.Content, blocks...)
			return
		}
		if role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		} else {
			params = append(params, anthropic.NewUserMessage(blocks...))
		}
		lastRole = role
	}

	for _, msg := range msgs {
		switch msg.Role {
		case RoleUser, RoleSystem:
			if msg.Content != "" {
				push(RoleUser, []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)})
			}

		case RoleTool:
			push(RoleUser, []anthropic.ContentBlockParamUnion{
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError),
			})

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					_ = json.Unmarshal(tc.Arguments, &input)
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			push(RoleAssistant, blocks)
		}
	}
	return params
}

// buildAnthropicTools converts ToolSchema to Anthropic tool params.
func buildAnthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: t.properties(),
		}
		if req := requiredFields(t.Parameters); len(req) > 0 {
			schema.Required = req
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}

// requiredFields reads the schema's "required" list, which may be []string
// (built in-process) or []any (decoded from JSON).
func requiredFields(schema map[string]any) []string {
	switch r := schema["required"].(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, v := range r {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
