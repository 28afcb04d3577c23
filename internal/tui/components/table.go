package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column
type Column struct {
	Title string
	Width int
	Align lipgloss.Position
}

// Table renders a simple table
type Table struct {
	Columns       []Column
	HeaderStyle   lipgloss.Style
	RowStyle      lipgloss.Style
	SelectedStyle lipgloss.Style
}

// NewTable creates a new table with the given columns
func NewTable(columns []Column) *Table {
	return &Table{
		Columns: columns,
		HeaderStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#06B6D4")).
			Padding(0, 1),
		RowStyle: lipgloss.NewStyle().
			Padding(0, 1),
		SelectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(lipgloss.Color("#F9FAFB")).
			Padding(0, 1),
	}
}

// RenderHeader renders the table header
func (t *Table) RenderHeader() string {
	var cells []string
	for _, col := range t.Columns {
		cell := lipgloss.NewStyle().
			Width(col.Width).
			Align(col.Align).
			Render(col.Title)
		cells = append(cells, t.HeaderStyle.Render(cell))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

// RenderRow renders a single row
func (t *Table) RenderRow(values []string, selected bool) string {
	style := t.RowStyle
	if selected {
		style = t.SelectedStyle
	}

	var cells []string
	for i, col := range t.Columns {
		value := ""
		if i < len(values) {
			value = values[i]
		}

		cells = append(cells, style.Render(pad(value, col)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

// pad aligns value within the column, measuring visible width so ANSI
// styling does not count
func pad(value string, col Column) string {
	padding := col.Width - lipgloss.Width(value)
	if padding <= 0 {
		return value
	}
	switch col.Align {
	case lipgloss.Right:
		return strings.Repeat(" ", padding) + value
	case lipgloss.Center:
		left := padding / 2
		return strings.Repeat(" ", left) + value + strings.Repeat(" ", padding-left)
	default:
		return value + strings.Repeat(" ", padding)
	}
}

// RenderSeparator renders a separator line
func (t *Table) RenderSeparator() string {
	totalWidth := 0
	for _, col := range t.Columns {
		totalWidth += col.Width + 2 // +2 for padding
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280")).
		Render(strings.Repeat("─", totalWidth))
}

// AdaptiveColumns returns the target table columns fitted to the terminal width
func AdaptiveColumns(width int) []Column {
	const (
		minTarget    = 12
		maxTarget    = 24
		minSparkline = 10
		latencyWidth = 7
		lossWidth    = 7
		sentWidth    = 6
	)

	fixed := 3*latencyWidth + lossWidth + sentWidth + 14 // 14 for padding
	remaining := width - fixed

	targetWidth := min(max(remaining/3, minTarget), maxTarget)
	sparklineWidth := max(remaining-targetWidth, minSparkline)

	return []Column{
		{Title: "Target", Width: targetWidth, Align: lipgloss.Left},
		{Title: "Last", Width: latencyWidth, Align: lipgloss.Right},
		{Title: "Avg", Width: latencyWidth, Align: lipgloss.Right},
		{Title: "Jitter", Width: latencyWidth, Align: lipgloss.Right},
		{Title: "Loss", Width: lossWidth, Align: lipgloss.Right},
		{Title: "Sent", Width: sentWidth, Align: lipgloss.Right},
		{Title: "Trend", Width: sparklineWidth, Align: lipgloss.Left},
	}
}
