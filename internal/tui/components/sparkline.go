package components

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters from lowest to highest
var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

var (
	sparkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")) // Cyan
	sparkLossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")) // Red
)

// Sparkline draws the newest width latencies scaled between their min and
// max. NaN values mark failed probes.
func Sparkline(values []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	padding := strings.Repeat(" ", width-len(values))

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	var b strings.Builder
	for _, v := range values {
		if math.IsNaN(v) {
			b.WriteString(sparkLossStyle.Render("×"))
			continue
		}
		b.WriteString(sparkStyle.Render(string(sparkBlocks[level(v, lo, hi)])))
	}
	b.WriteString(padding)

	return b.String()
}

// level maps v onto a block index; a flat series sits on the lowest block
func level(v, lo, hi float64) int {
	if hi <= lo {
		return 0
	}
	idx := int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
	return min(max(idx, 0), len(sparkBlocks)-1)
}
