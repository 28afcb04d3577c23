package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/wellsgz/pingmon/internal/engine"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorSuccess   = lipgloss.Color("#10B981") // Green
	ColorWarning   = lipgloss.Color("#F59E0B") // Yellow
	ColorDanger    = lipgloss.Color("#EF4444") // Red
	ColorMuted     = lipgloss.Color("#6B7280") // Gray
	ColorBgLight   = lipgloss.Color("#374151") // Lighter background
	ColorText      = lipgloss.Color("#F9FAFB") // Light text
)

// Base styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)

	MutedStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	LatencyGoodStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	LatencyWarnStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	LatencyBadStyle  = lipgloss.NewStyle().Foreground(ColorDanger)
	LossStyle        = lipgloss.NewStyle().Foreground(ColorDanger)
	SuccessStyle     = lipgloss.NewStyle().Foreground(ColorSuccess)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorDanger).
			Background(lipgloss.Color("#3F1F1F")).
			Padding(0, 1)
)

// StateStyle returns the badge style for a lifecycle state
func StateStyle(s engine.State) lipgloss.Style {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#111827"))
	switch s {
	case engine.Running:
		return badge.Background(ColorSuccess)
	case engine.Paused:
		return badge.Background(ColorWarning)
	default:
		return badge.Background(ColorMuted)
	}
}

// LatencyStyle returns the appropriate style based on latency value
func LatencyStyle(ms float64) lipgloss.Style {
	switch {
	case ms < 50:
		return LatencyGoodStyle
	case ms < 200:
		return LatencyWarnStyle
	default:
		return LatencyBadStyle
	}
}

// LossPercentStyle returns the appropriate style based on loss percentage
func LossPercentStyle(pct float64) lipgloss.Style {
	switch {
	case pct == 0:
		return SuccessStyle
	case pct < 5:
		return LatencyWarnStyle
	default:
		return LossStyle
	}
}

// FormatLatency formats an optional latency with color; nil renders as "--"
func FormatLatency(ms *float64) string {
	if ms == nil {
		return MutedStyle.Render("--")
	}
	return LatencyStyle(*ms).Render(formatMs(*ms))
}

// FormatJitter formats jitter without latency coloring
func FormatJitter(ms *float64) string {
	if ms == nil {
		return MutedStyle.Render("--")
	}
	return formatMs(*ms)
}

// FormatLoss formats a loss percentage with color
func FormatLoss(pct float64) string {
	return LossPercentStyle(pct).Render(fmt.Sprintf("%.1f%%", pct))
}

func formatMs(ms float64) string {
	switch {
	case ms < 1:
		return "<1ms"
	case ms < 10:
		return fmt.Sprintf("%.1fms", ms)
	default:
		return fmt.Sprintf("%dms", int(ms))
	}
}
