package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/ui"
)

const tuiLogPath = "tmp/ytlink-tui.log"

// TUI launches the interactive library browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Logs go to a file so they do not interfere with TUI rendering.
	if err := os.MkdirAll(filepath.Dir(tuiLogPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(tuiLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	r.logger = shared.NewLogger(logFile)

	if err := r.open(); err != nil {
		return err
	}
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, user, r.store.Videos, r.library)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
