package permission

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aictl/agentcore/internal/clock"
)

// stubInspector gives bash a per-command signature and flags "rm -rf".
type stubInspector struct{}

func (stubInspector) Signature(tool string, args map[string]any) string {
	if tool != "bash" {
		return ""
	}
	cmd, _ := args["command"].(string)
	return "bash:" + strings.Fields(cmd + " x")[0]
}

func (stubInspector) IsDangerous(tool string, args map[string]any) bool {
	cmd, _ := args["command"].(string)
	return tool == "bash" && strings.Contains(cmd, "rm -rf")
}

func (stubInspector) Category(tool string) string {
	if tool == "bash" {
		return "executor"
	}
	return "filesystem"
}

func cmd(c string) map[string]any { return map[string]any{"command": c} }

func TestGate_SignatureFor(t *testing.T) {
	g := NewGate(stubInspector{})
	if got := g.SignatureFor("bash", cmd("go test ./...")); got != "bash:go" {
		t.Errorf("bash signature = %q", got)
	}
	if got := g.SignatureFor("read_file", nil); got != "read_file" {
		t.Errorf("default signature = %q", got)
	}
	if got := NewGate(nil).SignatureFor("bash", cmd("ls")); got != "bash" {
		t.Errorf("nil inspector signature = %q", got)
	}
}

func TestGate_FreshGateAlwaysAsks(t *testing.T) {
	g := NewGate(stubInspector{})
	if !g.NeedsConfirmation("write_file", nil) {
		t.Error("unknown signature must need confirmation")
	}
}

func TestGate_AllowAlwaysCoversSignature(t *testing.T) {
	g := NewGate(stubInspector{})
	g.RecordDecision("bash", cmd("go build"), AllowAlways)

	if g.NeedsConfirmation("bash", cmd("go test ./...")) {
		t.Error("same signature should not need confirmation")
	}
	if !g.NeedsConfirmation("bash", cmd("make")) {
		t.Error("different signature should still need confirmation")
	}
}

func TestGate_AllowOnceRecordsNothing(t *testing.T) {
	g := NewGate(stubInspector{})
	g.RecordDecision("write_file", nil, AllowOnce)
	if !g.NeedsConfirmation("write_file", nil) {
		t.Error("allow once must not be remembered")
	}
	if len(g.Allowed()) != 0 || len(g.Denied()) != 0 {
		t.Errorf("sets = %v / %v", g.Allowed(), g.Denied())
	}
}

func TestGate_DangerousOverridesAllow(t *testing.T) {
	g := NewGate(stubInspector{})
	g.RecordDecision("bash", cmd("rm build.log"), AllowAlways)

	if g.NeedsConfirmation("bash", cmd("rm build.log")) {
		t.Error("allowed signature should pass")
	}
	if !g.NeedsConfirmation("bash", cmd("rm -rf build")) {
		t.Error("dangerous call must need confirmation despite allowance")
	}
}

func TestGate_DenyCoversWholeTool(t *testing.T) {
	g := NewGate(stubInspector{})
	g.RecordDecision("bash", cmd("go test"), AllowAlways)
	g.RecordDecision("bash", cmd("curl x"), Deny)

	for _, c := range []string{"go test", "curl x", "ls"} {
		if !g.NeedsConfirmation("bash", cmd(c)) {
			t.Errorf("%q: denied tool must always need confirmation", c)
		}
	}
	if got := g.Denied(); len(got) != 1 || got[0] != "bash" {
		t.Errorf("Denied = %v", got)
	}
	if got := g.Allowed(); len(got) != 1 || got[0] != "bash:go" {
		t.Errorf("Allowed = %v", got)
	}

	g.Reset()
	if len(g.Allowed())+len(g.Denied()) != 0 {
		t.Error("Reset should clear both sets")
	}
}

func TestGate_Request(t *testing.T) {
	g := NewGate(stubInspector{})
	req := g.Request("bash", cmd("rm -rf /"))
	if req.Signature != "bash:rm" || !req.Dangerous || req.Category != "executor" || req.ToolName != "bash" {
		t.Errorf("req = %+v", req)
	}
}

func TestGate_ConcurrentAccess(t *testing.T) {
	g := NewGate(stubInspector{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.RecordDecision("bash", cmd("go test"), AllowAlways)
		}()
		go func() {
			defer wg.Done()
			_ = g.NeedsConfirmation("bash", cmd("go test"))
			_ = g.Allowed()
		}()
	}
	wg.Wait()
}

func TestConfirmFunc(t *testing.T) {
	var c Confirmer = ConfirmFunc(func(r Request) Action {
		if r.ToolName == "bash" {
			return Deny
		}
		return AllowOnce
	})
	if c.Confirm(Request{ToolName: "bash"}) != Deny || c.Confirm(Request{ToolName: "glob"}) != AllowOnce {
		t.Error("ConfirmFunc did not delegate")
	}
}

// blockingConfirmer never answers until released.
type blockingConfirmer struct {
	release  chan Action
	canceled chan struct{}
}

func (b *blockingConfirmer) Confirm(Request) Action { return <-b.release }
func (b *blockingConfirmer) CancelConfirm()         { close(b.canceled) }

func TestTimeoutConfirmer_DeniesOnTimeout(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	inner := &blockingConfirmer{release: make(chan Action, 1), canceled: make(chan struct{})}
	tc := NewTimeoutConfirmer(inner, 30*time.Second, clk)

	done := make(chan Action, 1)
	go func() { done <- tc.Confirm(Request{ToolName: "bash"}) }()

	deadline := time.Now().Add(2 * time.Second)
	for clk.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("confirmer never started waiting")
		}
		time.Sleep(time.Millisecond)
	}
	clk.Advance(30 * time.Second)

	select {
	case a := <-done:
		if a != Deny {
			t.Errorf("timed-out action = %v, want deny", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Confirm did not return after timeout")
	}
	select {
	case <-inner.canceled:
	default:
		t.Error("pending prompt was not canceled")
	}
	inner.release <- AllowOnce // unblock the leftover goroutine
}

func TestTimeoutConfirmer_PassesAnswerThrough(t *testing.T) {
	tc := NewTimeoutConfirmer(ConfirmFunc(func(Request) Action { return AllowAlways }), time.Minute, clock.NewFake(time.Unix(0, 0)))
	if a := tc.Confirm(Request{}); a != AllowAlways {
		t.Errorf("action = %v", a)
	}
	noLimit := NewTimeoutConfirmer(ConfirmFunc(func(Request) Action { return Deny }), 0, nil)
	if a := noLimit.Confirm(Request{}); a != Deny {
		t.Errorf("action = %v", a)
	}
}
