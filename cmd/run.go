package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aictl/agentcore/internal/agent"
	"github.com/aictl/agentcore/internal/tui"
)

func newRunCmd(version string) *cobra.Command {
	var (
		prompt       string
		snapshotPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single prompt non-interactively",
		Example: `  agentcore run -P "read main.go and tell me what it does"
  agentcore run --prompt "fix the failing test" --snapshot state.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			return runOnce(cmd.Context(), version, prompt, snapshotPath)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the prompt to execute")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "write a session snapshot to this file when done")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

// runOnce executes a single prompt with plain terminal output. The exit
// status is 1 when the turn fails.
func runOnce(ctx context.Context, version, prompt, snapshotPath string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := tui.NewPlainIO()
	a, err := newApp(ctx, cfg, version, ui, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.agent.Run(ctx, prompt)
	fmt.Fprintln(os.Stdout)

	if snapshotPath != "" {
		if err := a.agent.Snapshot().WriteFile(snapshotPath); err != nil {
			return err
		}
	}

	switch res.State {
	case agent.StateFailed:
		ui.Error(res.Text)
		return exitError(1)
	case agent.StateStoppedByUser, agent.StateStoppedMaxIterations:
		ui.SystemMessage(res.Text)
	}
	return nil
}
