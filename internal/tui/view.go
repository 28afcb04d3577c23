package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wellsgz/pingmon/internal/tui/components"
)

// View renders the whole screen
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(ErrorStyle.Width(max(m.width-2, 10)).Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(StatusStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.renderTable())
	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

// renderHeader renders the title, lifecycle badge and source
func (m Model) renderHeader() string {
	title := TitleStyle.Render(" pingmon ")
	subtitle := SubtitleStyle.Render("Ping Monitor")
	badge := StateStyle(m.state).Render(strings.ToUpper(m.state.String()))
	source := MutedStyle.Render(m.source)

	left := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", subtitle, " ", badge)

	spacing := m.width - lipgloss.Width(left) - lipgloss.Width(source) - 2
	if spacing < 1 {
		spacing = 1
	}

	return lipgloss.JoinHorizontal(lipgloss.Center, left, strings.Repeat(" ", spacing), source)
}

// renderTable renders the targets table
func (m Model) renderTable() string {
	if len(m.rows) == 0 {
		return MutedStyle.Render("  No targets configured")
	}

	columns := components.AdaptiveColumns(m.width)
	table := components.NewTable(columns)

	rows := []string{table.RenderHeader(), table.RenderSeparator()}
	for i, row := range m.rows {
		cells := renderRow(row, columns[0].Width, columns[len(columns)-1].Width)
		rows = append(rows, table.RenderRow(cells, i == m.selectedIdx))
	}

	return strings.Join(rows, "\n")
}

// renderRow renders a single target row
func renderRow(row TargetRow, nameWidth, sparkWidth int) []string {
	name := row.Target.Label
	if name == "" {
		name = row.Target.Address
	}
	if !row.Target.Enabled {
		name += " (off)"
	}
	if len([]rune(name)) > nameWidth {
		name = string([]rune(name)[:nameWidth-1]) + "…"
	}
	if !row.Target.Enabled {
		name = MutedStyle.Render(name)
	}

	last := MutedStyle.Render("--")
	if row.Last != nil {
		if row.Last.Success {
			last = FormatLatency(row.Last.LatencyMs)
		} else {
			last = LossStyle.Render("fail")
		}
	}

	return []string{
		name,
		last,
		FormatLatency(row.Stats.AvgLatencyMs),
		FormatJitter(row.Stats.JitterMs),
		FormatLoss(row.Stats.LossPercent),
		fmt.Sprintf("%d", row.Stats.Total),
		components.Sparkline(row.History, sparkWidth),
	}
}

// renderHelp renders the key help footer
func (m Model) renderHelp() string {
	keys := []struct {
		key  string
		desc string
	}{
		{"s", "start"},
		{"x", "stop"},
		{"p", "pause/resume"},
		{"r", "reset"},
		{"e", "toggle"},
		{"↑/↓", "navigate"},
		{"q", "quit"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, HelpKeyStyle.Render(k.key)+HelpStyle.Render(" "+k.desc))
	}

	return HelpStyle.Render(strings.Join(parts, "  "))
}
