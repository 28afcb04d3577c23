package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Init starts polling the backend
func (m Model) Init() tea.Cmd {
	return tea.Batch(refresh(m.backend), tick())
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled
func Run(ctx context.Context, backend Backend, source string) error {
	p := tea.NewProgram(
		NewModel(backend, source),
		tea.WithAltScreen(), // Use alternate screen buffer
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
