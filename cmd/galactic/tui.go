package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/galactic/internal/db"
	"github.com/michaelscutari/galactic/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse the index interactively",
	Long:  `Open an interactive TUI to browse indexed directories and their sizes.`,
	RunE:  runTUI,
}

var tuiPath string

func init() {
	tuiCmd.Flags().StringVarP(&tuiPath, "path", "p", "", "Directory to start in (default: root of the latest run)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	if err := requireConnection(); err != nil {
		return err
	}

	store, err := db.Open(cmd.Context(), cfg.ConnectionString, db.Options{ReadOnly: true, MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := db.ApplyReadPragmas(store.DB()); err != nil {
		return fmt.Errorf("failed to apply pragmas: %w", err)
	}

	model := tui.NewModel(store.DB(), tuiPath)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
