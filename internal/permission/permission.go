// Package permission decides which tool calls need the user's approval and
// remembers the user's standing answers for the rest of the session.
package permission

import (
	"slices"
	"sync"
)

// Action is the user's answer to a confirmation request.
type Action int

const (
	AllowOnce   Action = iota // run this call only
	AllowAlways               // run this and every later call with the same signature
	Deny                      // refuse, and ask again for every later call of the tool
)

func (a Action) String() string {
	switch a {
	case AllowOnce:
		return "allow once"
	case AllowAlways:
		return "allow always"
	case Deny:
		return "deny"
	}
	return "unknown"
}

// Inspector supplies the static, per-tool facts the gate needs. The tool
// catalog implements it.
type Inspector interface {
	// Signature is the scope an "allow always" answer applies to,
	// e.g. "bash:go" or "git:status". Empty means the tool name.
	Signature(tool string, args map[string]any) string

	// IsDangerous reports whether this particular call must always be
	// confirmed, whatever was allowed before.
	IsDangerous(tool string, args map[string]any) bool

	Category(tool string) string
}

// Request describes a call awaiting confirmation.
type Request struct {
	ToolName  string
	Category  string
	Args      map[string]any
	Signature string
	Dangerous bool
}

// Confirmer resolves a confirmation request. Implementations block until
// they have an answer.
type Confirmer interface {
	Confirm(req Request) Action
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(req Request) Action

func (f ConfirmFunc) Confirm(req Request) Action { return f(req) }

// Gate holds the session's standing permissions: signatures the user
// allowed for good, and tool names the user denied. Denial covers the
// whole tool while allowance covers one signature. Both sets only grow
// until Reset.
type Gate struct {
	inspector Inspector

	mu      sync.RWMutex
	allowed map[string]bool
	denied  map[string]bool
}

// NewGate returns a gate with empty permission sets. inspector may be nil,
// in which case every signature is the tool name and nothing is dangerous.
func NewGate(inspector Inspector) *Gate {
	return &Gate{
		inspector: inspector,
		allowed:   make(map[string]bool),
		denied:    make(map[string]bool),
	}
}

// SignatureFor returns the permission scope of a call.
func (g *Gate) SignatureFor(tool string, args map[string]any) string {
	if g.inspector != nil {
		if sig := g.inspector.Signature(tool, args); sig != "" {
			return sig
		}
	}
	return tool
}

func (g *Gate) isDangerous(tool string, args map[string]any) bool {
	return g.inspector != nil && g.inspector.IsDangerous(tool, args)
}

// NeedsConfirmation reports whether the call must be put to the user:
// always for a denied tool, only for dangerous calls of an allowed
// signature, and always otherwise.
func (g *Gate) NeedsConfirmation(tool string, args map[string]any) bool {
	sig := g.SignatureFor(tool, args)

	g.mu.RLock()
	denied := g.denied[tool]
	allowed := g.allowed[sig]
	g.mu.RUnlock()

	switch {
	case denied:
		return true
	case allowed:
		return g.isDangerous(tool, args)
	default:
		return true
	}
}

// Request builds the confirmation request for a call.
func (g *Gate) Request(tool string, args map[string]any) Request {
	req := Request{
		ToolName:  tool,
		Args:      args,
		Signature: g.SignatureFor(tool, args),
		Dangerous: g.isDangerous(tool, args),
	}
	if g.inspector != nil {
		req.Category = g.inspector.Category(tool)
	}
	return req
}

// RecordDecision stores a standing answer. AllowOnce stores nothing,
// AllowAlways allows the call's signature, Deny denies the tool name.
func (g *Gate) RecordDecision(tool string, args map[string]any, action Action) {
	switch action {
	case AllowAlways:
		sig := g.SignatureFor(tool, args)
		g.mu.Lock()
		g.allowed[sig] = true
		g.mu.Unlock()
	case Deny:
		g.mu.Lock()
		g.denied[tool] = true
		g.mu.Unlock()
	}
}

// Allowed returns the allowed signatures, sorted.
func (g *Gate) Allowed() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.allowed)
}

// Denied returns the denied tool names, sorted.
func (g *Gate) Denied() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.denied)
}

// Reset forgets every standing answer.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.allowed = make(map[string]bool)
	g.denied = make(map[string]bool)
	g.mu.Unlock()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
