package permission

import (
	"strings"

	"github.com/aictl/agentcore/internal/config"
)

// PolicyConfirmer answers confirmation requests from configuration before
// falling back to the user (next). It never records standing answers: a
// configured approval is always "allow once".
type PolicyConfirmer struct {
	mode             string
	autoApproveTools map[string]bool
	allowedCommands  []string
	deniedCommands   []string
	next             Confirmer
}

// NewPolicyConfirmer creates a policy from config. next may be nil, in
// which case requests the policy cannot answer are denied.
func NewPolicyConfirmer(cfg config.PermissionConfig, next Confirmer) *PolicyConfirmer {
	approveTools := make(map[string]bool, len(cfg.AutoApproveTools))
	for _, name := range cfg.AutoApproveTools {
		approveTools[name] = true
	}
	return &PolicyConfirmer{
		mode:             cfg.Mode,
		autoApproveTools: approveTools,
		allowedCommands:  cfg.AllowedCommands,
		deniedCommands:   cfg.DeniedCommands,
		next:             next,
	}
}

// Confirm resolves req:
//   - a bash command on the deny list is denied, in every mode;
//   - yolo mode allows everything else;
//   - dangerous calls go to the user;
//   - auto-approve mode, auto-approved tools and whitelisted bash
//     commands are allowed once;
//   - anything else goes to the user.
func (p *PolicyConfirmer) Confirm(req Request) Action {
	cmd := bashCommand(req)
	if cmd != "" && matchesPrefix(cmd, p.deniedCommands) {
		return Deny
	}
	if p.mode == "yolo" {
		return AllowOnce
	}
	if !req.Dangerous {
		if p.mode == "auto-approve" || p.autoApproveTools[req.ToolName] {
			return AllowOnce
		}
		if cmd != "" && p.IsCommandAllowed(cmd) {
			return AllowOnce
		}
	}
	if p.next == nil {
		return Deny
	}
	return p.next.Confirm(req)
}

// IsCommandAllowed checks if a bash command matches any whitelist prefix.
// Compound commands never match: a whitelisted prefix must not smuggle in
// a second command.
func (p *PolicyConfirmer) IsCommandAllowed(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if strings.ContainsAny(cmd, ";|&`\n") || strings.Contains(cmd, "$(") || strings.ContainsAny(cmd, "<>") {
		return false
	}
	return matchesPrefix(cmd, p.allowedCommands)
}

func bashCommand(req Request) string {
	if req.ToolName != "bash" {
		return ""
	}
	cmd, _ := req.Args["command"].(string)
	return strings.TrimSpace(cmd)
}

func matchesPrefix(cmd string, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cmd == p || strings.HasPrefix(cmd, p+" ") {
			return true
		}
	}
	return false
}
