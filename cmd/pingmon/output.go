package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	outputAsJSON bool
)

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// row pads cells to fixed widths; the first column is left aligned
func row(widths []int, cells ...string) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		w := widths[i]
		pad := max(w-lipgloss.Width(c), 0)
		if i == 0 {
			parts[i] = c + strings.Repeat(" ", pad)
		} else {
			parts[i] = strings.Repeat(" ", pad) + c
		}
	}
	return strings.Join(parts, "  ")
}

func formatMs(v *float64) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%.2f", *v)
}

func printStats(all []stats.Statistics) {
	widths := []int{28, 6, 6, 8, 8, 8, 8, 8}
	fmt.Println(headerStyle.Render(row(widths, "TARGET", "SENT", "LOST", "LOSS%", "MIN", "AVG", "MAX", "JITTER")))
	for _, s := range all {
		name := s.Target
		if s.TargetLabel != "" {
			name = fmt.Sprintf("%s (%s)", s.TargetLabel, s.Target)
		}
		fmt.Println(row(widths,
			name,
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Failures),
			fmt.Sprintf("%.1f", s.LossPercent),
			formatMs(s.MinLatencyMs),
			formatMs(s.AvgLatencyMs),
			formatMs(s.MaxLatencyMs),
			formatMs(s.JitterMs),
		))
	}
}

func printTargets(targets []config.Target) {
	widths := []int{36, 20, 24, 7}
	fmt.Println(headerStyle.Render(row(widths, "ID", "ADDRESS", "LABEL", "ENABLED")))
	for _, t := range targets {
		enabled := okStyle.Render("yes")
		if !t.Enabled {
			enabled = mutedStyle.Render("no")
		}
		fmt.Println(row(widths, t.ID, t.Address, t.Label, enabled))
	}
}

func printOutcome(o probe.Outcome) {
	ts := mutedStyle.Render(o.Timestamp.Local().Format("2006-01-02 15:04:05"))
	if o.Success {
		fmt.Printf("%s  #%-5d %-20s %s\n", ts, o.Sequence, o.Target, okStyle.Render(fmt.Sprintf("%.2f ms", o.Latency())))
		return
	}
	fmt.Printf("%s  #%-5d %-20s %s\n", ts, o.Sequence, o.Target, failStyle.Render("FAILED "+o.Reason()))
}
