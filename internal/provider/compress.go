package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// CompressRequest asks the model to shrink a transcript.
type CompressRequest struct {
	Messages     []Message
	TargetTokens int
	// MustKeep and Compressible are free-text hints describing what the
	// summary has to preserve and what it may drop.
	MustKeep     string
	Compressible string
}

// CompressResult is the model's compaction plan. ProcessedFiles maps a
// file path to what the dropped messages did with it.
type CompressResult struct {
	Summary        string
	KeepIndices    []int
	ProcessedFiles map[string]string
}

// ErrBadCompression is returned when the model's reply carries no usable plan.
var ErrBadCompression = errors.New("unusable compression reply")

const compressSystemPrompt = "You are a context compression assistant. Reply with JSON only."

// transcriptEntryLimit caps each message in the compression transcript.
const transcriptEntryLimit = 2000

// Compress asks the model which messages to keep verbatim and for a summary
// of the rest.
func (c *Client) Compress(ctx context.Context, req CompressRequest) (*CompressResult, error) {
	chat := &ChatRequest{
		Model:        c.model,
		SystemPrompt: compressSystemPrompt,
		MaxTokens:    c.maxTokens,
		Messages: []Message{{
			Role:    RoleUser,
			Content: buildCompressPrompt(req),
		}},
	}
	resp, err := c.call(ctx, chat, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return parseCompressReply(resp.Content)
}

func buildCompressPrompt(req CompressRequest) string {
	current := 0
	for _, m := range req.Messages {
		current += len(m.Content) / 3
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Compress the conversation below to about %d tokens.\n\n", req.TargetTokens)
	fmt.Fprintf(&b, "Current size: ~%d tokens across %d messages.\n\n", current, len(req.Messages))
	if req.MustKeep != "" {
		fmt.Fprintf(&b, "Must keep (never drop):\n%s\n\n", req.MustKeep)
	}
	if req.Compressible != "" {
		fmt.Fprintf(&b, "Compressible:\n%s\n\n", req.Compressible)
	}

	b.WriteString("Conversation (index, role, content):\n")
	for i, m := range req.Messages {
		content := m.Content
		if len(content) > transcriptEntryLimit {
			content = content[:transcriptEntryLimit] + " ..."
		}
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, m.Role, content)
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&b, "    -> %s(%s)\n", tc.Name, string(tc.Arguments))
		}
	}

	b.WriteString(`
Return JSON:
{
  "compressed_summary": "summary of everything not kept verbatim",
  "keep_message_indices": [0, 5, 10],
  "processed_files_summary": {"path/to/file.go": "key change"}
}

Strategy:
1. Drop redundant tool output.
2. Merge similar exchanges.
3. Keep decisions and their outcomes.
4. Reduce file contents to summaries.
`)
	return b.String()
}

// parseCompressReply extracts the plan from the model's text, tolerating
// code fences, surrounding prose and loosely typed fields.
func parseCompressReply(text string) (*CompressResult, error) {
	raw := extractJSON(text)
	if raw == "" || !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrBadCompression)
	}

	root := gjson.Parse(raw)
	res := &CompressResult{
		Summary: strings.TrimSpace(root.Get("compressed_summary").String()),
	}

	keep := root.Get("keep_message_indices")
	var badIndex error
	keep.ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.Number || v.Num != float64(int(v.Num)) {
			badIndex = fmt.Errorf("%w: keep index %s is not an integer", ErrBadCompression, v.Raw)
			return false
		}
		res.KeepIndices = append(res.KeepIndices, int(v.Int()))
		return true
	})
	if badIndex != nil {
		return nil, badIndex
	}

	if files := root.Get("processed_files_summary"); files.IsObject() {
		res.ProcessedFiles = make(map[string]string)
		files.ForEach(func(k, v gjson.Result) bool {
			res.ProcessedFiles[k.String()] = v.String()
			return true
		})
	}

	// A plan that keeps nothing and summarizes nothing would erase the
	// transcript, including the request being worked on.
	if res.Summary == "" && len(res.KeepIndices) == 0 {
		return nil, fmt.Errorf("%w: reply has no summary and keeps no messages", ErrBadCompression)
	}
	return res, nil
}

func extractJSON(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
