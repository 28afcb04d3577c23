package tui

import (
	"math"
	"time"

	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
)

// refreshInterval is how often the display polls the backend
const refreshInterval = 500 * time.Millisecond

// Model holds all application state
type Model struct {
	backend Backend
	source  string // shown in the header, e.g. "local" or the socket path

	// Data
	state engine.State
	rows  []TargetRow

	// UI state
	selectedIdx int
	width       int
	height      int
	ready       bool

	// Last action result and error
	status string
	err    error
}

// TargetRow is one line of the target table
type TargetRow struct {
	Target  config.Target
	Stats   stats.Statistics
	Last    *probe.Outcome
	History []float64 // Latencies oldest first, NaN for failed probes
}

// NewModel creates a model polling backend
func NewModel(backend Backend, source string) Model {
	return Model{
		backend: backend,
		source:  source,
	}
}

// SelectedRow returns the currently selected row
func (m Model) SelectedRow() *TargetRow {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.rows) {
		return &m.rows[m.selectedIdx]
	}
	return nil
}

// buildRows joins the roster with statistics and recent outcomes by address
func buildRows(targets []config.Target, all []stats.Statistics, recent []probe.Outcome) []TargetRow {
	byAddress := make(map[string]stats.Statistics, len(all))
	for _, s := range all {
		byAddress[s.Target] = s
	}

	rows := make([]TargetRow, len(targets))
	for i, t := range targets {
		row := TargetRow{Target: t, Stats: byAddress[t.Address]}
		if row.Stats.Target == "" {
			row.Stats = stats.Statistics{Target: t.Address, TargetLabel: t.Label}
		}

		// recent is newest first; history is drawn oldest first
		for j := len(recent) - 1; j >= 0; j-- {
			o := recent[j]
			if o.Target != t.Address {
				continue
			}
			if o.Success {
				row.History = append(row.History, o.Latency())
			} else {
				row.History = append(row.History, math.NaN())
			}
			last := o
			row.Last = &last
		}
		rows[i] = row
	}
	return rows
}

// clampSelection keeps the cursor inside the table after the roster changes
func (m *Model) clampSelection() {
	if m.selectedIdx >= len(m.rows) {
		m.selectedIdx = len(m.rows) - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
}
