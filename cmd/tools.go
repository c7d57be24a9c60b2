package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aictl/agentcore/internal/budget"
	"github.com/aictl/agentcore/internal/clock"
	"github.com/aictl/agentcore/internal/tools"
	"github.com/aictl/agentcore/internal/tui"
)

func newToolsCmd() *cobra.Command {
	var (
		asJSON  bool
		withMCP bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			catalog, err := newCatalog(cfg, budget.NewTracker(cfg.Budget, clock.Real()), tools.NewFileTracker(), logger)
			if err != nil {
				return err
			}
			if withMCP {
				if mgr := connectMCP(cmd.Context(), cfg, catalog, "", tui.NewPlainIO(), logger); mgr != nil {
					defer mgr.Close()
				}
			}
			return writeTools(cmd.OutOrStdout(), catalog.Discover(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors with their argument schemas as JSON")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "connect configured MCP servers and include their tools")
	return cmd
}

func writeTools(w io.Writer, descs []tools.Descriptor, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("name", "category", "flags", "description")
	for _, d := range descs {
		var flags []string
		if d.ReadOnly {
			flags = append(flags, "read-only")
		}
		if d.FileOperation {
			flags = append(flags, "file")
		}
		desc, _, _ := strings.Cut(d.Description, "\n")
		tbl.Row(d.Name, d.Category, strings.Join(flags, ","), desc)
	}
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}
