package budget

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	reportTitleStyle = lipgloss.NewStyle().Bold(true)
	overBudgetStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Report renders per-category usage against each budget plus the total.
func (t *Tracker) Report() string {
	u := t.Usage()

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "category", "used", "budget", "%")

	for _, cat := range Categories {
		used := u.Get(cat)
		budget := t.BudgetFor(cat)
		pct := 0.0
		if budget > 0 {
			pct = float64(used) / float64(budget) * 100
		}
		status := "ok"
		if used > budget {
			status = overBudgetStyle.Render("over")
		}
		tbl.Row(status, string(cat), fmt.Sprint(used), fmt.Sprint(budget), fmt.Sprintf("%.1f", pct))
	}

	var b strings.Builder
	b.WriteString(reportTitleStyle.Render("Token Usage Report"))
	b.WriteString("\n")
	b.WriteString(tbl.String())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total: %d / %d (%.1f%%)", u.Total, t.cfg.MaxTokens, t.UsagePercent()*100)
	if last := t.LastCompression(); !last.IsZero() {
		fmt.Fprintf(&b, "\nLast compaction: %s", last.Format("15:04:05"))
	}
	return b.String()
}
