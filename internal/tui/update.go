package tui

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
)

// Message types
type (
	// TickMsg is sent periodically for refresh
	TickMsg time.Time

	// SnapshotMsg carries a full read of the backend
	SnapshotMsg struct {
		State   engine.State
		Targets []config.Target
		Stats   []stats.Statistics
		Recent  []probe.Outcome
		Err     error
	}

	// ActionMsg reports the result of a control key
	ActionMsg struct {
		Status string
		Err    error
	}
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case TickMsg:
		return m, tea.Batch(refresh(m.backend), tick())

	case SnapshotMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.state = msg.State
		m.rows = buildRows(msg.Targets, msg.Stats, msg.Recent)
		m.clampSelection()
		return m, nil

	case ActionMsg:
		m.status = msg.Status
		m.err = msg.Err
		return m, refresh(m.backend)
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}

	case "down", "j":
		if m.selectedIdx < len(m.rows)-1 {
			m.selectedIdx++
		}

	case "home":
		m.selectedIdx = 0

	case "end":
		m.selectedIdx = len(m.rows) - 1
		m.clampSelection()

	case "s":
		return m, action("Monitoring started", m.backend.Start)

	case "x":
		return m, action("Monitoring stopped", m.backend.Stop)

	case "p":
		if m.state == engine.Paused {
			return m, action("Monitoring resumed", m.backend.Resume)
		}
		return m, action("Monitoring paused", m.backend.Pause)

	case "r":
		return m, action("Statistics reset", m.backend.ResetStatistics)

	case "e":
		if row := m.SelectedRow(); row != nil {
			return m, toggle(m.backend, row.Target)
		}
	}

	return m, nil
}

// tick schedules the next refresh
func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refresh creates a command that reads everything the table shows
func refresh(b Backend) tea.Cmd {
	return func() tea.Msg {
		var snap SnapshotMsg
		var err error

		if snap.State, err = b.State(); err != nil {
			return SnapshotMsg{Err: err}
		}
		if snap.Targets, err = b.Targets(); err != nil {
			return SnapshotMsg{Err: err}
		}
		if snap.Stats, err = b.AllStats(); err != nil {
			return SnapshotMsg{Err: err}
		}
		if snap.Recent, err = b.Recent(0); err != nil {
			return SnapshotMsg{Err: err}
		}
		return snap
	}
}

// action creates a command running a control operation
func action(status string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			if errors.Is(err, engine.ErrAlreadyRunning) {
				return ActionMsg{Status: "Already running"}
			}
			return ActionMsg{Err: err}
		}
		return ActionMsg{Status: status}
	}
}

// toggle creates a command flipping a target's enabled flag
func toggle(b Backend, t config.Target) tea.Cmd {
	return func() tea.Msg {
		enabled, err := b.ToggleTarget(t.ID)
		if err != nil {
			return ActionMsg{Err: err}
		}
		verb := "disabled"
		if enabled {
			verb = "enabled"
		}
		return ActionMsg{Status: fmt.Sprintf("%s %s", t.Address, verb)}
	}
}
