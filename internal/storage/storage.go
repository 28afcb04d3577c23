// Package storage holds the in-memory outcome history and the persistent recorders.
package storage

import (
	"errors"
	"time"

	"github.com/wellsgz/pingmon/internal/probe"
)

// DataPoint represents a single data point in time series
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"` // Latency in ms, NaN for packet loss or no data
	Loss      float64   `json:"loss"`  // 0=success, 1=failure, NaN=no data (for aggregated: 0.0-1.0 loss ratio)
}

// Recorder persists probe outcomes
type Recorder interface {
	Append(o probe.Outcome) error
	Close() error
}

// Querier retrieves archived data points for a target address
type Querier interface {
	Fetch(target string, from, to time.Time) ([]DataPoint, error)
}

// MultiRecorder fans every outcome out to several recorders
type MultiRecorder []Recorder

// Append writes to every recorder, joining the failures
func (m MultiRecorder) Append(o probe.Outcome) error {
	var errs []error
	for _, r := range m {
		if err := r.Append(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every recorder
func (m MultiRecorder) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Recorder that drops everything
type Discard struct{}

func (Discard) Append(probe.Outcome) error { return nil }
func (Discard) Close() error               { return nil }
