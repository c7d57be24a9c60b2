package session

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aictl/agentcore/internal/provider"
)

var defaultTags = []string{"system-reminder", "ide_context", "editor_state"}

func user(s string) provider.Message { return provider.Message{Role: provider.RoleUser, Content: s} }
func assistant(s string) provider.Message {
	return provider.Message{Role: provider.RoleAssistant, Content: s}
}

func contents(msgs []provider.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestHistory_AppendAndOnChange(t *testing.T) {
	h := NewHistory(defaultTags)
	var seen []int
	h.OnChange(func(msgs []provider.Message) { seen = append(seen, len(msgs)) })

	h.Append(user("a"))
	h.Append(assistant("b"))

	if h.Len() != 2 {
		t.Fatalf("Len = %d", h.Len())
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("hook lengths = %v, want [1 2]", seen)
	}
}

func TestHistory_SnapshotStripsEphemeralExceptLastUser(t *testing.T) {
	h := NewHistory(defaultTags)
	h.Append(user("fix it <system-reminder>be terse</system-reminder>"))
	h.Append(assistant("ok <ide_context>file=a.go</ide_context> done"))
	h.Append(user("again <editor_state>line 4</editor_state>"))

	got := h.Snapshot(true)
	want := []string{"fix it", "ok done", "again <editor_state>line 4</editor_state>"}
	for i := range want {
		if got[i].Content != want[i] {
			t.Errorf("msg %d = %q, want %q", i, got[i].Content, want[i])
		}
	}

	// Stored history is untouched.
	raw := h.Snapshot(false)
	if !strings.Contains(raw[0].Content, "<system-reminder>") {
		t.Errorf("stored message was mutated: %q", raw[0].Content)
	}
}

func TestHistory_SnapshotIsCopy(t *testing.T) {
	h := NewHistory(nil)
	h.Append(user("a"))
	snap := h.Snapshot(false)
	snap[0].Content = "changed"
	if h.Snapshot(false)[0].Content != "a" {
		t.Error("mutating a snapshot changed history")
	}
}

func TestHistory_ReplaceWithCompressed(t *testing.T) {
	tests := []struct {
		name    string
		keep    []int
		summary string
		want    []string
	}{
		{"summary and sorted", []int{3, 1}, "earlier", []string{CompressedPrefix + "earlier", "m1", "m3"}},
		{"no summary", []int{0, 4}, "", []string{"m0", "m4"}},
		{"empty keep", nil, "all gone", []string{CompressedPrefix + "all gone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(nil)
			for i := 0; i < 5; i++ {
				h.Append(user("m" + string(rune('0'+i))))
			}
			if err := h.ReplaceWithCompressed(tt.keep, tt.summary); err != nil {
				t.Fatalf("ReplaceWithCompressed: %v", err)
			}
			got := contents(h.Snapshot(false))
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("history = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHistory_ReplaceWithCompressedSummaryRole(t *testing.T) {
	h := NewHistory(nil)
	h.Append(user("a"))
	if err := h.ReplaceWithCompressed([]int{0}, "s"); err != nil {
		t.Fatal(err)
	}
	first := h.Snapshot(false)[0]
	if !IsCompressedSummary(first) {
		t.Errorf("first message = %+v, want compressed summary", first)
	}
}

func TestHistory_ReplaceWithCompressedOutOfRange(t *testing.T) {
	h := NewHistory(nil)
	h.Append(user("a"))
	h.Append(user("b"))

	for _, keep := range [][]int{{0, 2}, {-1}} {
		err := h.ReplaceWithCompressed(keep, "x")
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("keep %v: err = %v, want ErrIndexOutOfRange", keep, err)
		}
	}
	if got := contents(h.Snapshot(false)); strings.Join(got, ",") != "a,b" {
		t.Errorf("history changed after failed replace: %v", got)
	}
}

func TestHistory_ReplaceWithCompressedRejectsPlan(t *testing.T) {
	tests := []struct {
		name    string
		keep    []int
		summary string
	}{
		{"duplicate index", []int{1, 0, 1}, "s"},
		{"duplicate without summary", []int{0, 0}, ""},
		{"keeps nothing", nil, ""},
		{"empty keep list", []int{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(nil)
			h.Append(user("a"))
			h.Append(user("b"))
			err := h.ReplaceWithCompressed(tt.keep, tt.summary)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
			if got := contents(h.Snapshot(false)); strings.Join(got, ",") != "a,b" {
				t.Errorf("history changed after refused plan: %v", got)
			}
		})
	}
}

func TestHistory_TruncateLast(t *testing.T) {
	h := NewHistory(nil)
	for _, s := range []string{"a", "b", "c"} {
		h.Append(user(s))
	}
	if err := h.TruncateLast(2, "summary of b and c"); err != nil {
		t.Fatalf("TruncateLast: %v", err)
	}
	got := h.Snapshot(false)
	if len(got) != 2 || got[1].Role != provider.RoleAssistant || got[1].Content != "summary of b and c" {
		t.Errorf("history = %+v", got)
	}

	for _, n := range []int{0, -1, 3} {
		if err := h.TruncateLast(n, "x"); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("TruncateLast(%d) err = %v, want ErrInvalidArgument", n, err)
		}
	}
}

func TestHistory_LastUserIndexAndClear(t *testing.T) {
	h := NewHistory(nil)
	if h.LastUserIndex() != -1 {
		t.Error("empty history should have no user index")
	}
	h.Append(user("a"))
	h.Append(assistant("b"))
	if h.LastUserIndex() != 0 {
		t.Errorf("LastUserIndex = %d", h.LastUserIndex())
	}
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len after Clear = %d", h.Len())
	}
}

func TestHistory_Restore(t *testing.T) {
	h := NewHistory(nil)
	h.Append(user("current"))
	var calls int
	h.OnChange(func([]provider.Message) { calls++ })

	saved := []provider.Message{user("old question"), assistant("old answer")}
	h.Restore(saved)
	saved[0].Content = "mutated"

	if got := contents(h.Snapshot(false)); len(got) != 2 || got[0] != "old question" || got[1] != "old answer" {
		t.Errorf("after Restore = %v", got)
	}
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
}

func TestHistory_HookMayReenter(t *testing.T) {
	h := NewHistory(nil)
	var lens []int
	h.OnChange(func([]provider.Message) { lens = append(lens, h.Len()) })
	h.Append(user("a"))
	if len(lens) != 1 || lens[0] != 1 {
		t.Errorf("lens = %v", lens)
	}
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := NewHistory(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Append(user("x"))
			_ = h.Snapshot(true)
		}()
	}
	wg.Wait()
	if h.Len() != 20 {
		t.Errorf("Len = %d, want 20", h.Len())
	}
}

func TestNew_AssignsID(t *testing.T) {
	a, b := New(nil), New(nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q", a.ID, b.ID)
	}
	if a.History == nil {
		t.Error("History is nil")
	}
}
