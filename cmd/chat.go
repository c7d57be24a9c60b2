package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aictl/agentcore/internal/tui"
)

// runChat starts the interactive chat mode.
func runChat(ctx context.Context, version string) error {
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

	chat := func(ui tui.IO) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, version, ui, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.agent.Chat(ctx)
	}

	if useTUI {
		return tui.RunTUI(chat)
	}
	return chat(tui.NewPlainIO())
}
