// Package stats keeps per-target running statistics derived from probe outcomes.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/probe"
)

// Statistics is a point-in-time summary for one target.
// Latency fields are nil until the first successful probe.
type Statistics struct {
	Target       string     `json:"target"`
	TargetLabel  string     `json:"target_label"`
	Total        uint64     `json:"total_pings"`
	Successes    uint64     `json:"successful_pings"`
	Failures     uint64     `json:"failed_pings"`
	LossPercent  float64    `json:"packet_loss_percent"`
	MinLatencyMs *float64   `json:"min_latency_ms"`
	MaxLatencyMs *float64   `json:"max_latency_ms"`
	AvgLatencyMs *float64   `json:"avg_latency_ms"`
	JitterMs     *float64   `json:"jitter_ms"`
	SessionStart *time.Time `json:"session_start"`
	LastSeen     *time.Time `json:"last_ping"`
}

// accumulator holds the raw samples for a single target
type accumulator struct {
	target       string
	label        string
	total        uint64
	successes    uint64
	failures     uint64
	latencies    []float64
	sessionStart time.Time
	lastSeen     time.Time
}

func (a *accumulator) record(o probe.Outcome) {
	a.total++
	a.lastSeen = o.Timestamp
	if a.sessionStart.IsZero() {
		a.sessionStart = o.Timestamp
	}

	if o.Success {
		a.successes++
		if o.LatencyMs != nil {
			a.latencies = append(a.latencies, *o.LatencyMs)
		}
	} else {
		a.failures++
	}
}

func (a *accumulator) reset() {
	a.total = 0
	a.successes = 0
	a.failures = 0
	a.latencies = nil
	a.sessionStart = time.Time{}
	a.lastSeen = time.Time{}
}

// snapshot derives the public statistics from the stored samples
func (a *accumulator) snapshot() Statistics {
	s := Statistics{
		Target:      a.target,
		TargetLabel: a.label,
		Total:       a.total,
		Successes:   a.successes,
		Failures:    a.failures,
	}

	if a.total > 0 {
		s.LossPercent = float64(a.failures) / float64(a.total) * 100
	}
	if !a.sessionStart.IsZero() {
		start := a.sessionStart
		s.SessionStart = &start
	}
	if !a.lastSeen.IsZero() {
		last := a.lastSeen
		s.LastSeen = &last
	}

	if len(a.latencies) == 0 {
		return s
	}

	minV, maxV := a.latencies[0], a.latencies[0]
	for _, v := range a.latencies[1:] {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	avg := mean(a.latencies)
	jitter := sampleStdDev(a.latencies, avg)

	s.MinLatencyMs = &minV
	s.MaxLatencyMs = &maxV
	s.AvgLatencyMs = &avg
	s.JitterMs = &jitter
	return s
}

// Aggregator maintains one accumulator per target address
type Aggregator struct {
	targets map[string]*accumulator
	order   []string
	mu      sync.RWMutex
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		targets: make(map[string]*accumulator),
	}
}

// Init creates a zeroed accumulator for target unless one already exists
func (g *Aggregator) Init(target config.Target) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.targets[target.Address]; exists {
		return
	}
	g.targets[target.Address] = &accumulator{
		target: target.Address,
		label:  target.Label,
	}
	g.order = append(g.order, target.Address)
}

// Record adds an outcome to its target's accumulator.
// Outcomes for unknown targets are dropped.
func (g *Aggregator) Record(o probe.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if acc, ok := g.targets[o.Target]; ok {
		acc.record(o)
	}
}

// Snapshot returns current statistics for a target
func (g *Aggregator) Snapshot(address string) (Statistics, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	acc, ok := g.targets[address]
	if !ok {
		return Statistics{}, false
	}
	return acc.snapshot(), true
}

// SnapshotAll returns statistics for all targets in the order they were added
func (g *Aggregator) SnapshotAll() []Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]Statistics, 0, len(g.order))
	for _, address := range g.order {
		result = append(result, g.targets[address].snapshot())
	}
	return result
}

// Reset clears the samples of one target
func (g *Aggregator) Reset(address string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if acc, ok := g.targets[address]; ok {
		acc.reset()
	}
}

// ResetAll clears the samples of every target
func (g *Aggregator) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, acc := range g.targets {
		acc.reset()
	}
}

// Remove deletes a target's accumulator entirely
func (g *Aggregator) Remove(address string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.targets[address]; !ok {
		return
	}
	delete(g.targets, address)
	for i, a := range g.order {
		if a == address {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Relabel changes the display label of a target
func (g *Aggregator) Relabel(address, label string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if acc, ok := g.targets[address]; ok {
		acc.label = label
	}
}

// mean calculates the arithmetic mean
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev calculates the Bessel-corrected standard deviation.
// Fewer than two values have no spread and yield 0.
func sampleStdDev(values []float64, avg float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - avg
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
