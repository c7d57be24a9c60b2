package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aictl/agentcore/internal/budget"
	"github.com/aictl/agentcore/internal/permission"
	"github.com/aictl/agentcore/internal/provider"
)

// admissionRatio is the share of the context window past which the model
// is not called at all.
const admissionRatio = 0.95

const (
	coachingMessage = "The conversation is close to the context limit, so the model was not called this round. " +
		"Narrow the next tool calls: read files with offset and limit instead of whole files, " +
		"scope grep and glob to a directory or file pattern, and list directories one level at a time."
	deniedMessage  = "Tool execution denied by user"
	stoppedMessage = "Tool execution stopped by user."
)

// Run executes one user turn:
//
//  1. append the input;
//  2. per iteration, refuse admission when the outgoing context is over
//     95% of the budget, otherwise call the model;
//  3. run the requested tools in order, asking the confirmer where the
//     gate requires it; a denial ends the turn;
//  4. compact history after the batch when the tracker asks for it.
//
// Run never returns an error; every ending is described by the Result.
func (a *Agent) Run(ctx context.Context, input string) Result {
	a.setState(StateRunning)
	res := a.run(ctx, input)
	a.setState(res.State)
	a.logger.Info("turn finished", "state", res.State, "iterations", res.Iterations, "model_calls", res.ModelCalls)
	return res
}

func (a *Agent) run(ctx context.Context, input string) Result {
	hist := a.session.History
	hist.Append(provider.Message{Role: provider.RoleUser, Content: input})

	var res Result
	for res.Iterations < a.maxIterations {
		res.Iterations++
		msgs := hist.Snapshot(true)
		tokens := a.tracker.CountMessages(msgs)
		a.logger.Debug("agent iteration", "iteration", res.Iterations, "messages", len(msgs), "tokens", tokens)

		if float64(tokens) > admissionRatio*float64(a.tracker.MaxTokens()) {
			a.logger.Warn("context over admission limit, model not called", "tokens", tokens, "max", a.tracker.MaxTokens())
			hist.Append(provider.Message{Role: provider.RoleSystem, Content: coachingMessage})
			a.io.SystemMessage("Context nearly full: the model was asked to narrow its tool calls.")
			continue
		}

		a.io.ThinkingStart()
		res.ModelCalls++
		resp, err := a.model.ChatWithTools(ctx, msgs, a.catalog.SchemasForModel())
		if err != nil {
			text := fmt.Sprintf("LLM call failed: %v", err)
			a.logger.Warn("model call failed", "error", err)
			hist.Append(provider.Message{Role: provider.RoleAssistant, Content: text})
			res.State, res.Text = StateFailed, text
			return res
		}
		a.io.TextDone(resp.Content)

		if len(resp.ToolCalls) == 0 {
			hist.Append(provider.Message{Role: provider.RoleAssistant, Content: resp.Content})
			res.State, res.Text = StateCompleted, resp.Content
			return res
		}

		calls := assignCallIDs(resp.ToolCalls)
		hist.Append(provider.Message{Role: provider.RoleAssistant, Content: resp.Content, ToolCalls: calls})
		a.checkRepeats(calls)

		for _, call := range calls {
			if denied := a.executeCall(ctx, call); denied {
				hist.Append(provider.Message{Role: provider.RoleAssistant, Content: stoppedMessage})
				res.State, res.Text = StateStoppedByUser, stoppedMessage
				return res
			}
		}

		if a.tracker.ShouldCompress(a.tracker.Now()) {
			if err := a.Compact(ctx); err != nil {
				a.logger.Warn("compaction failed, history unchanged", "error", err)
			}
		}
	}

	text := fmt.Sprintf("Reached maximum iterations (%d). Task may be incomplete.", a.maxIterations)
	hist.Append(provider.Message{Role: provider.RoleAssistant, Content: text})
	res.State, res.Text = StateStoppedMaxIterations, text
	return res
}

// assignCallIDs fills missing call ids with <name>_<index>.
func assignCallIDs(calls []provider.ToolCall) []provider.ToolCall {
	out := make([]provider.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("%s_%d", c.Name, i)
		}
		out[i] = c
	}
	return out
}

// parseArguments decodes a call's argument object. Anything that is not a
// JSON object becomes an empty argument set; validation in the catalog
// then reports what is missing.
func parseArguments(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// executeCall runs one tool call through the gate and the catalog and
// appends its result. It reports whether the user denied the call.
func (a *Agent) executeCall(ctx context.Context, call provider.ToolCall) (denied bool) {
	hist := a.session.History
	args := parseArguments(call.Arguments)
	a.recordCall(call.Name, args)

	if a.gate.NeedsConfirmation(call.Name, args) {
		req := a.gate.Request(call.Name, args)
		action := a.confirmer.Confirm(req)
		a.gate.RecordDecision(call.Name, args, action)
		a.logger.Info("tool confirmation", "tool", call.Name, "signature", req.Signature, "dangerous", req.Dangerous, "action", action)
		if action == permission.Deny {
			hist.Append(provider.Message{
				Role:       provider.RoleTool,
				Content:    deniedMessage,
				ToolCallID: call.ID,
				IsError:    true,
			})
			return true
		}
	}

	params, _ := json.Marshal(args)
	a.io.ToolStart(call.ID, call.Name, string(params))

	start := time.Now()
	out := a.catalog.Dispatch(ctx, call.Name, args)
	text, isErr := out.Text()
	a.logger.Debug("tool dispatched",
		"tool", call.Name,
		"signature", a.gate.SignatureFor(call.Name, args),
		"duration", time.Since(start),
		"error", isErr)
	if !out.OK() {
		a.logger.Warn("tool failed", "tool", call.Name, "kind", out.Err.Kind, "error", out.Err.Message)
	}

	text = a.tracker.TruncateToolResult(text, 0)
	a.io.ToolDone(call.ID, call.Name, text, isErr)
	a.trackActiveFile(call.Name, args)

	hist.Append(provider.Message{
		Role:       provider.RoleTool,
		Content:    text,
		ToolCallID: call.ID,
		IsError:    isErr,
	})
	return false
}

// checkRepeats warns when the model keeps issuing the same batch.
func (a *Agent) checkRepeats(calls []provider.ToolCall) {
	key := a.batchKey(calls)
	a.mu.Lock()
	level, streak := a.repeats.observe(key)
	a.mu.Unlock()

	switch level {
	case repeatWarn:
		a.logger.Warn("repeated tool batch", "streak", streak)
		a.io.SystemMessage(fmt.Sprintf("The model has issued the same tool calls %d times in a row.", streak))
	case repeatStuck:
		a.logger.Warn("tool batch loop", "streak", streak)
		a.io.SystemMessage(fmt.Sprintf("The model has repeated the same tool calls %d times; consider interrupting and rephrasing.", streak))
	}
}

// Compact asks the model to summarize history and keeps only the messages
// it selects. On failure history is left unchanged.
func (a *Agent) Compact(ctx context.Context) error {
	hist := a.session.History
	msgs := hist.Snapshot(false)
	if len(msgs) == 0 {
		return nil
	}
	active := a.ActiveFiles()
	classes := a.tracker.CategorizeMessages(msgs, active)

	res, err := a.model.Compress(ctx, provider.CompressRequest{
		Messages:     msgs,
		TargetTokens: a.tracker.CompressionTarget(),
		MustKeep:     a.mustKeep(active, classes),
		Compressible: compressible(msgs, classes),
	})
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}

	before := a.tracker.CountMessages(msgs)
	if err := hist.ReplaceWithCompressed(res.KeepIndices, res.Summary); err != nil {
		return fmt.Errorf("apply compression: %w", err)
	}
	a.tracker.MarkCompressed(a.tracker.Now())
	a.tracker.UpdateUsage(budget.ProcessedFiles, budget.CountTokens(processedFilesText(res.ProcessedFiles)))

	after := a.tracker.CountMessages(hist.Snapshot(false))
	a.logger.Info("history compacted", "before", before, "after", after, "kept", len(res.KeepIndices))
	a.io.SystemMessage(fmt.Sprintf("Context compacted: %d -> %d tokens.", before, after))
	return nil
}

// processedFilesText renders the per-file notes of a compaction as
// "path: text" lines in path order.
func processedFilesText(files map[string]string) string {
	paths := slices.Sorted(maps.Keys(files))
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = p + ": " + files[p]
	}
	return strings.Join(lines, "\n")
}

func (a *Agent) mustKeep(active []string, classes map[budget.MessageClass][]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active files: %s\n", strings.Join(active, ", "))
	fmt.Fprintf(&b, "Project root: %s\n", a.projectRoot)
	fmt.Fprintf(&b, "Recent messages: %v\n", classes[budget.ClassRecent])
	fmt.Fprintf(&b, "Messages about active files: %v\n", classes[budget.ClassActiveFile])
	fmt.Fprintf(&b, "Decisions: %v\n", classes[budget.ClassDecision])
	return b.String()
}

func compressible(msgs []provider.Message, classes map[budget.MessageClass][]int) string {
	return fmt.Sprintf("%d messages; tool outputs: %v; redundant: %v",
		len(msgs), classes[budget.ClassToolOutput], classes[budget.ClassRedundant])
}
