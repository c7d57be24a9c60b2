// Package budget estimates token usage, decides when history must be
// compacted and shrinks oversized file and tool payloads.
package budget

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aictl/agentcore/internal/clock"
	"github.com/aictl/agentcore/internal/config"
	"github.com/aictl/agentcore/internal/provider"
)

// Category is one slice of the context window.
type Category string

const (
	ActiveFiles       Category = "active_files"
	ProcessedFiles    Category = "processed_files"
	ProjectStructure  Category = "project_structure"
	CompressedHistory Category = "compressed_history"
	RecentMessages    Category = "recent_messages"
)

// Categories lists every category in report order.
var Categories = []Category{ActiveFiles, ProcessedFiles, ProjectStructure, CompressedHistory, RecentMessages}

// Usage is a point-in-time copy of the per-category counts.
// Total always equals the sum of the categories.
type Usage struct {
	ActiveFiles       int
	ProcessedFiles    int
	ProjectStructure  int
	CompressedHistory int
	RecentMessages    int
	Total             int
}

// Get returns the count for cat, or 0 for an unknown category.
func (u Usage) Get(cat Category) int {
	switch cat {
	case ActiveFiles:
		return u.ActiveFiles
	case ProcessedFiles:
		return u.ProcessedFiles
	case ProjectStructure:
		return u.ProjectStructure
	case CompressedHistory:
		return u.CompressedHistory
	case RecentMessages:
		return u.RecentMessages
	}
	return 0
}

// messageOverhead is the fixed per-message cost of role and framing.
const messageOverhead = 4

// Tracker is the token accountant of one session. It is safe for
// concurrent use: the loop mutates it while the UI reads usage.
type Tracker struct {
	cfg   config.BudgetConfig
	clock clock.Clock

	mu              sync.Mutex
	usage           map[Category]int
	lastCompression time.Time
}

// NewTracker returns a tracker with zero usage. cfg is copied and never
// modified afterwards.
func NewTracker(cfg config.BudgetConfig, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	budgets := make(map[string]float64, len(cfg.Budgets))
	for k, v := range cfg.Budgets {
		budgets[k] = v
	}
	cfg.Budgets = budgets

	usage := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		usage[c] = 0
	}
	return &Tracker{cfg: cfg, clock: clk, usage: usage}
}

// MaxTokens returns the size of the context window.
func (t *Tracker) MaxTokens() int { return t.cfg.MaxTokens }

// Config returns the budget configuration.
func (t *Tracker) Config() config.BudgetConfig { return t.cfg }

// Now returns the tracker clock's current time.
func (t *Tracker) Now() time.Time { return t.clock.Now() }

// CountTokens estimates tokens at three characters per token.
func CountTokens(text string) int {
	return len(text) / 3
}

// CountMessages estimates the tokens a transcript costs.
func CountMessages(msgs []provider.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead + CountTokens(m.Content)
		if len(m.ToolCalls) > 0 {
			data, _ := json.Marshal(m.ToolCalls)
			total += len(data) / 4
		}
	}
	return total
}

// CountTokens is CountTokens as a method, for callers holding a Tracker.
func (t *Tracker) CountTokens(text string) int { return CountTokens(text) }

// CountMessages is CountMessages as a method.
func (t *Tracker) CountMessages(msgs []provider.Message) int { return CountMessages(msgs) }

// UpdateUsage sets the count of cat. Unknown categories are ignored.
func (t *Tracker) UpdateUsage(cat Category, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.usage[cat]; ok {
		t.usage[cat] = max(tokens, 0)
	}
}

// AddUsage adjusts the count of cat by delta, never below zero.
func (t *Tracker) AddUsage(cat Category, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.usage[cat]; ok {
		t.usage[cat] = max(cur+delta, 0)
	}
}

// Usage returns a copy of the current counts.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usageLocked()
}

func (t *Tracker) usageLocked() Usage {
	u := Usage{
		ActiveFiles:       t.usage[ActiveFiles],
		ProcessedFiles:    t.usage[ProcessedFiles],
		ProjectStructure:  t.usage[ProjectStructure],
		CompressedHistory: t.usage[CompressedHistory],
		RecentMessages:    t.usage[RecentMessages],
	}
	u.Total = u.ActiveFiles + u.ProcessedFiles + u.ProjectStructure + u.CompressedHistory + u.RecentMessages
	return u
}

// UsagePercent returns total usage as a fraction of MaxTokens (1.0 = full).
func (t *Tracker) UsagePercent() float64 {
	if t.cfg.MaxTokens <= 0 {
		return 0
	}
	return float64(t.Usage().Total) / float64(t.cfg.MaxTokens)
}

// BudgetFor returns floor(MaxTokens * ratio) for cat, or 0 if cat has no ratio.
func (t *Tracker) BudgetFor(cat Category) int {
	ratio, ok := t.cfg.Budgets[string(cat)]
	if !ok {
		return 0
	}
	return int(float64(t.cfg.MaxTokens) * ratio)
}

// IsOverBudget reports whether cat uses more than its share.
func (t *Tracker) IsOverBudget(cat Category) bool {
	return t.Usage().Get(cat) > t.BudgetFor(cat)
}

// ShouldCompress reports whether usage has reached the trigger threshold
// and at least the minimum interval has passed since the last compaction.
func (t *Tracker) ShouldCompress(now time.Time) bool {
	if t.UsagePercent() < t.cfg.Compression.TriggerThreshold {
		return false
	}
	t.mu.Lock()
	last := t.lastCompression
	t.mu.Unlock()
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= t.cfg.Compression.MinInterval()
}

// MarkCompressed records a completed compaction at now.
func (t *Tracker) MarkCompressed(now time.Time) {
	t.mu.Lock()
	t.lastCompression = now
	t.mu.Unlock()
}

// LastCompression returns the time of the last compaction (zero if none).
func (t *Tracker) LastCompression() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCompression
}

// CompressionTarget is the token count compaction should aim for.
func (t *Tracker) CompressionTarget() int {
	return int(float64(t.cfg.MaxTokens) * t.cfg.Compression.TargetAfterCompress)
}

// EstimateCompressionSavings estimates the tokens freed by keeping only
// keep, assuming the summary costs a fifth of what it replaces.
// Out-of-range indices are ignored.
func (t *Tracker) EstimateCompressionSavings(msgs []provider.Message, keep []int) int {
	idx := slices.Clone(keep)
	slices.Sort(idx)
	idx = slices.Compact(idx)

	kept := make([]provider.Message, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(msgs) {
			kept = append(kept, msgs[i])
		}
	}
	removed := CountMessages(msgs) - CountMessages(kept)
	return removed - removed/5
}

// MessageClass labels a message for selective compaction.
type MessageClass string

const (
	ClassRecent     MessageClass = "recent"
	ClassActiveFile MessageClass = "active_file"
	ClassToolOutput MessageClass = "tool_output"
	ClassDecision   MessageClass = "decision"
	ClassRedundant  MessageClass = "redundant"
)

// recentCount is how many trailing messages are always recent.
const recentCount = 5

var decisionKeywords = []string{"decide", "plan", "strategy", "approach"}

// CategorizeMessages sorts message indices into classes. The last five
// messages are recent; older ones are classified by the first rule that
// matches: mentions an active file, is tool output, mentions a decision
// keyword, otherwise redundant. Matching is case-insensitive.
func (t *Tracker) CategorizeMessages(msgs []provider.Message, activeFiles []string) map[MessageClass][]int {
	out := map[MessageClass][]int{
		ClassRecent:     {},
		ClassActiveFile: {},
		ClassToolOutput: {},
		ClassDecision:   {},
		ClassRedundant:  {},
	}

	files := make([]string, 0, len(activeFiles))
	for _, f := range activeFiles {
		if f != "" {
			files = append(files, strings.ToLower(f))
		}
	}

	split := max(len(msgs)-recentCount, 0)
	for i := split; i < len(msgs); i++ {
		out[ClassRecent] = append(out[ClassRecent], i)
	}

	for i, m := range msgs[:split] {
		content := strings.ToLower(m.Content)
		switch {
		case containsAny(content, files):
			out[ClassActiveFile] = append(out[ClassActiveFile], i)
		case m.Role == provider.RoleTool:
			out[ClassToolOutput] = append(out[ClassToolOutput], i)
		case containsAny(content, decisionKeywords):
			out[ClassDecision] = append(out[ClassDecision], i)
		default:
			out[ClassRedundant] = append(out[ClassRedundant], i)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
