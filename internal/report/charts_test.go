package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/probe"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func samples(target config.Target, n int, start time.Time) []probe.Outcome {
	var out []probe.Outcome
	for i := 0; i < n; i++ {
		o := probe.NewSuccess(target, float64(10+i%5), uint32(i))
		o.Timestamp = start.Add(time.Duration(i) * time.Second)
		out = append(out, o)
	}
	return out
}

func TestRenderLatencyChart(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := config.Target{Address: "1.1.1.1", Label: "Cloudflare"}
	b := config.Target{Address: "8.8.8.8", Label: "Google"}

	outcomes := append(samples(a, 15, start), samples(b, 3, start)...)
	outcomes = append(outcomes, probe.NewFailure(a, "Timeout", 99))

	var buf bytes.Buffer
	require.NoError(t, RenderLatencyChart(&buf, outcomes, Options{Width: 600, Height: 300}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestRenderLatencyChartNoData(t *testing.T) {
	a := config.Target{Address: "1.1.1.1"}

	tests := []struct {
		name     string
		outcomes []probe.Outcome
	}{
		{"empty", nil},
		{"single sample", samples(a, 1, time.Now())},
		{"only failures", []probe.Outcome{probe.NewFailure(a, "Timeout", 0), probe.NewFailure(a, "Timeout", 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.ErrorIs(t, RenderLatencyChart(&buf, tt.outcomes, Options{}), ErrNoData)
		})
	}
}

func TestGroupByTarget(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := config.Target{Address: "1.1.1.1"}
	b := config.Target{Address: "8.8.8.8", Label: "Google"}

	// Newest first, as the history returns them
	late := probe.NewSuccess(a, 2, 1)
	late.Timestamp = start.Add(time.Second)
	early := probe.NewSuccess(a, 1, 0)
	early.Timestamp = start
	other := probe.NewSuccess(b, 5, 0)
	other.Timestamp = start.Add(500 * time.Millisecond)

	groups := groupByTarget([]probe.Outcome{late, other, early})
	require.Len(t, groups, 2)
	assert.Equal(t, "1.1.1.1", groups[0].label, "address used when label is empty")
	assert.Equal(t, []float64{1, 2}, groups[0].values)
	assert.Equal(t, "Google", groups[1].label)
}
