package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/wellsgz/pingmon/internal/config"
)

// Outcome is the result of a single probe against one target.
// LatencyMs is set iff Success, Error iff not.
type Outcome struct {
	Timestamp   time.Time `json:"timestamp"`
	Target      string    `json:"target"`
	TargetLabel string    `json:"target_label"`
	Sequence    uint32    `json:"sequence"`
	Success     bool      `json:"success"`
	LatencyMs   *float64  `json:"latency_ms"`
	Error       *string   `json:"error"`
}

// NewSuccess creates a successful outcome for target
func NewSuccess(target config.Target, latencyMs float64, sequence uint32) Outcome {
	return Outcome{
		Timestamp:   time.Now().UTC(),
		Target:      target.Address,
		TargetLabel: target.Label,
		Sequence:    sequence,
		Success:     true,
		LatencyMs:   &latencyMs,
	}
}

// NewFailure creates a failed outcome for target
func NewFailure(target config.Target, reason string, sequence uint32) Outcome {
	return Outcome{
		Timestamp:   time.Now().UTC(),
		Target:      target.Address,
		TargetLabel: target.Label,
		Sequence:    sequence,
		Success:     false,
		Error:       &reason,
	}
}

// Latency returns the measured latency, or -1 for a failed probe
func (o Outcome) Latency() float64 {
	if o.LatencyMs == nil {
		return -1
	}
	return *o.LatencyMs
}

// Reason returns the failure reason, empty for a successful probe
func (o Outcome) Reason() string {
	if o.Error == nil {
		return ""
	}
	return *o.Error
}

// Prober measures reachability of a single address.
// Implementations must return within timeout.
type Prober interface {
	Probe(ctx context.Context, address string, timeout time.Duration) (latencyMs float64, err error)
}

// ProberFunc adapts an ordinary function to the Prober interface
type ProberFunc func(ctx context.Context, address string, timeout time.Duration) (float64, error)

// Probe calls f
func (f ProberFunc) Probe(ctx context.Context, address string, timeout time.Duration) (float64, error) {
	return f(ctx, address, timeout)
}

// Run probes target once and converts the result into an Outcome
func Run(ctx context.Context, p Prober, target config.Target, timeout time.Duration, sequence uint32) Outcome {
	latency, err := p.Probe(ctx, target.Address, timeout)
	if err != nil {
		return NewFailure(target, err.Error(), sequence)
	}
	if latency < 0 {
		latency = 0
	}
	return NewSuccess(target, latency, sequence)
}

// New returns the prober named by kind (exec, icmp or tcp)
func New(kind string, tcpPort int) (Prober, error) {
	switch kind {
	case "", "exec":
		return NewExecProber(), nil
	case "icmp":
		return NewICMPProber(), nil
	case "tcp":
		return NewTCPProber(tcpPort), nil
	default:
		return nil, fmt.Errorf("unknown prober %q", kind)
	}
}

// durationToMs converts a duration to fractional milliseconds
func durationToMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
