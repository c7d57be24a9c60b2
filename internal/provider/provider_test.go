package provider

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// fakeProvider replays one scripted event list per Chat call.
type fakeProvider struct {
	scripts [][]Event
	calls   int
	reqs    []*ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req *ChatRequest) (<-chan Event, error) {
	f.reqs = append(f.reqs, req)
	if f.calls >= len(f.scripts) {
		return nil, errors.New("fake: no script left")
	}
	evs := f.scripts[f.calls]
	f.calls++
	ch := make(chan Event, len(evs))
	for _, e := range evs {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Name() string         { return "fake" }
func (f *fakeProvider) Models() []string     { return []string{"fake-1"} }
func (f *fakeProvider) DefaultModel() string { return "fake-1" }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(p Provider, opts ...Option) *Client {
	c := NewClient(p, opts...)
	c.sleep = noSleep
	return c
}

func TestClient_ChatWithTools_AssemblesResponse(t *testing.T) {
	fp := &fakeProvider{scripts: [][]Event{{
		{Type: EventTextDelta, TextDelta: "Let me "},
		{Type: EventTextDelta, TextDelta: "look."},
		{Type: EventToolCallDone, ToolCall: &ToolCall{ID: "c1", Name: "read_file", Arguments: json.RawMessage(`{"file_path":"a.go"}`)}},
		{Type: EventDone, Usage: &Usage{InputTokens: 10, OutputTokens: 5}},
	}}}
	var streamed strings.Builder
	c := newTestClient(fp, WithTextHandler(func(s string) { streamed.WriteString(s) }), WithSystemPrompt("sys"))

	resp, err := c.ChatWithTools(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("ChatWithTools: %v", err)
	}
	if resp.Content != "Let me look." {
		t.Errorf("Content = %q", resp.Content)
	}
	if streamed.String() != "Let me look." {
		t.Errorf("streamed = %q", streamed.String())
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Errorf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.Usage.InputTokens != 10 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if fp.reqs[0].SystemPrompt != "sys" {
		t.Errorf("system prompt not forwarded: %q", fp.reqs[0].SystemPrompt)
	}
}

func TestClient_RetriesBeforeStreaming(t *testing.T) {
	fp := &fakeProvider{scripts: [][]Event{
		{{Type: EventError, Error: errors.New("429 rate limit")}},
		{{Type: EventTextDelta, TextDelta: "ok"}, {Type: EventDone}},
	}}
	retries := 0
	c := newTestClient(fp, WithMaxRetries(2), WithRetryHandler(func(int, int, time.Duration, error) { retries++ }))

	resp, err := c.ChatWithTools(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("ChatWithTools: %v", err)
	}
	if resp.Content != "ok" || fp.calls != 2 || retries != 1 {
		t.Errorf("content=%q calls=%d retries=%d", resp.Content, fp.calls, retries)
	}
}

func TestClient_NoRetryAfterStreaming(t *testing.T) {
	fp := &fakeProvider{scripts: [][]Event{
		{{Type: EventTextDelta, TextDelta: "partial"}, {Type: EventError, Error: errors.New("503 unavailable")}},
		{{Type: EventTextDelta, TextDelta: "again"}, {Type: EventDone}},
	}}
	c := newTestClient(fp, WithMaxRetries(3), WithTextHandler(func(string) {}))

	if _, err := c.ChatWithTools(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if fp.calls != 1 {
		t.Errorf("calls = %d, want 1", fp.calls)
	}
}

func TestClient_NonRetryableFailsFast(t *testing.T) {
	fp := &fakeProvider{scripts: [][]Event{
		{{Type: EventError, Error: errors.New("401 invalid api key")}},
	}}
	c := newTestClient(fp, WithMaxRetries(3))
	_, err := c.ChatWithTools(context.Background(), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v", err)
	}
	if fp.calls != 1 {
		t.Errorf("calls = %d, want 1", fp.calls)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("overloaded_error"), true},
		{errors.New("502 bad gateway"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("400 bad request"), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryDelay_Bounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := retryDelay(attempt)
		if d <= 0 || d > retryMaxDelay*13/10 {
			t.Errorf("retryDelay(%d) = %v out of range", attempt, d)
		}
	}
}

func TestClient_Compress(t *testing.T) {
	reply := "Here you go:\n```json\n" + `{
  "compressed_summary": "User asked to fix the parser.",
  "keep_message_indices": [0, 3, 5],
  "processed_files_summary": {"parser.go": "added timeout"}
}` + "\n```"
	fp := &fakeProvider{scripts: [][]Event{{{Type: EventTextDelta, TextDelta: reply}, {Type: EventDone}}}}
	c := newTestClient(fp)

	res, err := c.Compress(context.Background(), CompressRequest{
		Messages:     []Message{{Role: RoleUser, Content: "fix parser"}},
		TargetTokens: 500,
		MustKeep:     "recent messages",
	})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if res.Summary != "User asked to fix the parser." {
		t.Errorf("Summary = %q", res.Summary)
	}
	if !slices.Equal(res.KeepIndices, []int{0, 3, 5}) {
		t.Errorf("KeepIndices = %v", res.KeepIndices)
	}
	if len(res.ProcessedFiles) != 1 || res.ProcessedFiles["parser.go"] != "added timeout" {
		t.Errorf("ProcessedFiles = %v", res.ProcessedFiles)
	}
	prompt := fp.reqs[0].Messages[0].Content
	if !strings.Contains(prompt, "[0] user: fix parser") || !strings.Contains(prompt, "about 500 tokens") {
		t.Errorf("prompt missing transcript or target:\n%s", prompt)
	}
	if len(fp.reqs[0].Tools) != 0 {
		t.Error("compress request must not offer tools")
	}
}

func TestParseCompressReply_Invalid(t *testing.T) {
	for _, text := range []string{
		"",
		"no json here",
		`{"unrelated": true}`,
		"{broken",
		`{"keep_message_indices": []}`,
		`{"compressed_summary": "  ", "keep_message_indices": []}`,
		`{"compressed_summary": "s", "keep_message_indices": [0, "x"]}`,
		`{"compressed_summary": "s", "keep_message_indices": [1.5]}`,
	} {
		if _, err := parseCompressReply(text); !errors.Is(err, ErrBadCompression) {
			t.Errorf("parseCompressReply(%q) err = %v, want ErrBadCompression", text, err)
		}
	}
}

func TestPairToolResults(t *testing.T) {
	msgs := []Message{
		{Role: RoleTool, ToolCallID: "orphan", Content: "stale"},
		{Role: RoleUser, Content: "go"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}},
		{Role: RoleTool, ToolCallID: "a", Content: "done"},
		{Role: RoleAssistant, Content: "stopped"},
	}
	got := pairToolResults(msgs)

	var roles []string
	for _, m := range got {
		roles = append(roles, string(m.Role)+":"+m.ToolCallID)
	}
	want := []string{"user:", "assistant:", "tool:a", "tool:b", "assistant:"}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	if !got[3].IsError || got[3].Content != skippedToolResult {
		t.Errorf("synthesized result = %+v", got[3])
	}
}

func TestBuildAnthropicMessages_MergesRoles(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "[Compressed History]\nearlier work"},
		{Role: RoleUser, Content: "continue"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "bash", Arguments: json.RawMessage(`{"command":"ls"}`)}}},
		{Role: RoleTool, ToolCallID: "a", Content: "main.go"},
		{Role: RoleUser, Content: "thanks"},
	}
	params := buildAnthropicMessages(msgs)
	if len(params) != 3 {
		t.Fatalf("len = %d, want 3 (user, assistant, user)", len(params))
	}
	if params[0].Role != anthropic.MessageParamRoleUser || len(params[0].Content) != 2 {
		t.Errorf("first turn = %s with %d blocks", params[0].Role, len(params[0].Content))
	}
	if params[2].Role != anthropic.MessageParamRoleUser || len(params[2].Content) != 2 {
		t.Errorf("last turn = %s with %d blocks", params[2].Role, len(params[2].Content))
	}
}

func TestRequiredFields(t *testing.T) {
	if got := requiredFields(map[string]any{"required": []any{"a", 1, "b"}}); len(got) != 2 {
		t.Errorf("[]any required = %v", got)
	}
	if got := requiredFields(map[string]any{"required": []string{"a"}}); len(got) != 1 {
		t.Errorf("[]string required = %v", got)
	}
	if got := requiredFields(map[string]any{}); got != nil {
		t.Errorf("missing required = %v", got)
	}
}

func TestProviderNameFromURL(t *testing.T) {
	tests := map[string]string{
		"":                                  "openai",
		"https://api.deepseek.com/v1":       "deepseek",
		"https://api.moonshot.cn/v1":        "kimi",
		"https://dashscope.aliyuncs.com/v1": "qwen",
	}
	for url, want := range tests {
		if got := providerNameFromURL(url); got != want {
			t.Errorf("providerNameFromURL(%q) = %q, want %q", url, got, want)
		}
	}
}
