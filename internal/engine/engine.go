// Package engine runs the probe loop and owns the monitor lifecycle.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/logging"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
	"github.com/wellsgz/pingmon/internal/storage"
)

// idleWait is how long the loop waits before re-checking an empty roster
const idleWait = 100 * time.Millisecond

// Options supplies the engine's collaborators. Nil fields fall back to no-ops.
type Options struct {
	Prober   probe.Prober
	Recorder storage.Recorder
	Sink     events.Sink

	// Persist receives a snapshot after every roster or setting change made
	// through the control surface. It is not called for ApplyConfig.
	Persist func(*config.Config) error
}

// Engine probes the enabled targets on every tick and keeps the results
type Engine struct {
	prober   probe.Prober
	recorder storage.Recorder
	sink     events.Sink
	persist  func(*config.Config) error

	stats   *stats.Aggregator
	history *storage.History

	// Roster and settings. mutateMu serializes writers across cfgMu and
	// the aggregator; readers only take cfgMu.
	cfg      *config.Config
	cfgMu    sync.RWMutex
	mutateMu sync.Mutex

	// Lifecycle
	state      State
	cancel     context.CancelFunc
	loopActive bool
	loopDone   chan struct{}
	stateMu    sync.Mutex

	sequence atomic.Uint32

	// Lifetime context for probes, cancelled only by Close
	ctx       context.Context
	shutdown  context.CancelFunc
	closeOnce sync.Once
}

// New creates a stopped engine for the given configuration
func New(cfg *config.Config, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		prober:   opts.Prober,
		recorder: opts.Recorder,
		sink:     opts.Sink,
		persist:  opts.Persist,
		stats:    stats.NewAggregator(),
		history:  storage.NewHistory(cfg.Monitor.MaxHistorySize),
		cfg:      cfg.Clone(),
		ctx:      ctx,
		shutdown: cancel,
	}
	if e.prober == nil {
		e.prober = probe.NewExecProber()
	}
	if e.recorder == nil {
		e.recorder = storage.Discard{}
	}
	if e.sink == nil {
		e.sink = events.Discard{}
	}

	for _, t := range e.cfg.Targets {
		e.stats.Init(t)
	}

	return e
}

// Start begins monitoring. From Stopped it resets statistics, history and
// the sequence counter; from Paused it behaves as Resume.
func (e *Engine) Start() error {
	for {
		e.stateMu.Lock()
		switch e.state {
		case Running:
			e.stateMu.Unlock()
			return ErrAlreadyRunning
		case Paused:
			e.stateMu.Unlock()
			e.Resume()
			return nil
		}

		// A stopped loop may still be finishing its tick
		if e.loopActive {
			done := e.loopDone
			e.stateMu.Unlock()
			<-done
			continue
		}

		e.stats.ResetAll()
		e.history.Clear()
		e.sequence.Store(0)
		e.launch()
		e.stateMu.Unlock()

		logging.Info("Engine", "Monitoring started", logrus.Fields{"interval": e.pollInterval().String()})
		e.sink.Emit(events.StateChange, Running)
		return nil
	}
}

// Stop ends monitoring. It is always legal; an in-flight tick finishes first.
func (e *Engine) Stop() {
	e.stateMu.Lock()
	prev := e.state
	e.state = Stopped
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.stateMu.Unlock()

	if prev != Stopped {
		logging.Info("Engine", "Monitoring stopped", nil)
		e.sink.Emit(events.StateChange, Stopped)
	}
}

// Pause suspends monitoring while keeping statistics, history and sequence
func (e *Engine) Pause() {
	e.stateMu.Lock()
	if e.state != Running {
		e.stateMu.Unlock()
		return
	}
	e.state = Paused
	e.stateMu.Unlock()

	logging.Info("Engine", "Monitoring paused", nil)
	e.sink.Emit(events.StateChange, Paused)
}

// Resume continues a paused monitor without resetting anything
func (e *Engine) Resume() {
	e.stateMu.Lock()
	if e.state != Paused {
		e.stateMu.Unlock()
		return
	}
	if e.loopActive {
		// The paused loop has not noticed yet and simply keeps going
		e.state = Running
	} else {
		e.launch()
	}
	e.stateMu.Unlock()

	logging.Info("Engine", "Monitoring resumed", nil)
	e.sink.Emit(events.StateChange, Running)
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// Close stops monitoring, aborts in-flight probes and waits for the loop to exit
func (e *Engine) Close() {
	e.Stop()
	e.closeOnce.Do(e.shutdown)

	e.stateMu.Lock()
	active, done := e.loopActive, e.loopDone
	e.stateMu.Unlock()
	if active {
		<-done
	}
}

// launch starts a new loop goroutine. Must be called with e.stateMu held
// and no loop active.
func (e *Engine) launch() {
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})

	e.state = Running
	e.cancel = cancel
	e.loopActive = true
	e.loopDone = done

	go e.run(ctx, done)
}

// run is the tick loop
func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for e.keepRunning(ctx) {
		targets := e.enabledTargets()
		if len(targets) == 0 {
			sleep(ctx, idleWait)
			continue
		}

		e.tick(targets)

		if !e.keepRunning(ctx) {
			return
		}
		sleep(ctx, e.pollInterval())
	}
}

// keepRunning reports whether the loop should continue. When it should not,
// the loop is marked inactive under the same lock Resume checks.
func (e *Engine) keepRunning(ctx context.Context) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if ctx.Err() == nil && e.state == Running {
		return true
	}

	e.loopActive = false
	if e.state == Running {
		e.state = Stopped
	}
	return false
}

// tick probes every target once under a single sequence number
func (e *Engine) tick(targets []config.Target) {
	seq := e.sequence.Add(1) - 1
	timeout := e.probeTimeout()

	for _, t := range targets {
		o := e.probe(t, timeout, seq)

		e.stats.Record(o)
		e.history.Push(o)
		if err := e.recorder.Append(o); err != nil {
			logging.Error("Engine", "Failed to record outcome for "+o.Target, err)
		}

		logging.ProbeResult(o.Target, o.Sequence, o.LatencyMs, o.Error)
		e.sink.Emit(events.PingResult, o)
	}

	e.sink.Emit(events.StatsUpdate, e.stats.SnapshotAll())
}

func (e *Engine) probe(t config.Target, timeout time.Duration, seq uint32) probe.Outcome {
	ctx, cancel := context.WithTimeout(e.ctx, timeout)
	defer cancel()
	return probe.Run(ctx, e.prober, t, timeout, seq)
}

// sleep waits for d or until ctx is cancelled
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Sequence returns the sequence number the next tick will use
func (e *Engine) Sequence() uint32 {
	return e.sequence.Load()
}

// AllStats returns statistics for every target in roster order
func (e *Engine) AllStats() []stats.Statistics {
	return e.stats.SnapshotAll()
}

// Stats returns statistics for one target address
func (e *Engine) Stats(address string) (stats.Statistics, bool) {
	return e.stats.Snapshot(address)
}

// Recent returns up to count outcomes, newest first. count <= 0 returns all.
func (e *Engine) Recent(count int) []probe.Outcome {
	return e.history.Recent(count)
}

// ResetStatistics clears all statistics and the outcome history
func (e *Engine) ResetStatistics() {
	e.stats.ResetAll()
	e.history.Clear()
	e.sink.Emit(events.StatsUpdate, e.stats.SnapshotAll())
}
