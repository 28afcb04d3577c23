package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
)

const waitFor = 2 * time.Second

// fakeProber answers from a per-address latency table and counts calls
type fakeProber struct {
	mu        sync.Mutex
	latencies map[string]float64
	calls     map[string]int
}

func newFakeProber(latencies map[string]float64) *fakeProber {
	return &fakeProber{latencies: latencies, calls: make(map[string]int)}
}

func (f *fakeProber) Probe(ctx context.Context, address string, timeout time.Duration) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[address]++
	if v, ok := f.latencies[address]; ok {
		return v, nil
	}
	return 0, errors.New("Timeout")
}

func (f *fakeProber) count(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

type fakeRecorder struct {
	mu    sync.Mutex
	count int
}

func (r *fakeRecorder) Append(probe.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return errors.New("disk full")
}

func (r *fakeRecorder) Close() error { return nil }

func (r *fakeRecorder) appended() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func testConfig(targets ...config.Target) *config.Config {
	cfg := config.Default()
	cfg.Monitor.PollInterval = 10 * time.Millisecond
	cfg.Monitor.ProbeTimeout = time.Second
	cfg.Targets = targets
	return cfg
}

var (
	cloudflare = config.Target{ID: "cf", Address: "1.1.1.1", Label: "Cloudflare", Enabled: true}
	google     = config.Target{ID: "g", Address: "8.8.8.8", Label: "Google", Enabled: true}
)

func newTestEngine(t *testing.T, p probe.Prober, targets ...config.Target) (*Engine, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	e := New(testConfig(targets...), Options{Prober: p, Sink: bus})
	t.Cleanup(func() {
		e.Close()
		bus.Close()
	})
	return e, bus
}

func nextEvent(t *testing.T, ch <-chan events.Event, channel string) events.Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-ch:
			if ev.Channel == channel {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", channel)
		}
	}
}

func loopActive(e *Engine) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.loopActive
}

func total(e *Engine, address string) uint64 {
	s, _ := e.Stats(address)
	return s.Total
}

func TestStateTransitions(t *testing.T) {
	e, _ := newTestEngine(t, newFakeProber(nil))

	assert.Equal(t, Stopped, e.State())

	e.Pause()
	assert.Equal(t, Stopped, e.State(), "pause from stopped is a no-op")
	e.Resume()
	assert.Equal(t, Stopped, e.State(), "resume from stopped is a no-op")

	require.NoError(t, e.Start())
	assert.Equal(t, Running, e.State())

	err := e.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, Running, e.State())

	e.Resume()
	assert.Equal(t, Running, e.State())

	e.Pause()
	assert.Equal(t, Paused, e.State())

	require.NoError(t, e.Start(), "start from paused resumes")
	assert.Equal(t, Running, e.State())

	e.Pause()
	e.Stop()
	assert.Equal(t, Stopped, e.State())
	e.Stop()
	assert.Equal(t, Stopped, e.State())
}

func TestStateChangeEvents(t *testing.T) {
	e, bus := newTestEngine(t, newFakeProber(nil))
	ch := bus.Subscribe()

	require.NoError(t, e.Start())
	e.Pause()
	e.Resume()
	e.Stop()
	e.Stop()

	var got []State
	for len(got) < 4 {
		got = append(got, nextEvent(t, ch, events.StateChange).Payload.(State))
	}
	assert.Equal(t, []State{Running, Paused, Running, Stopped}, got)
}

func TestFirstTickEvents(t *testing.T) {
	p := newFakeProber(map[string]float64{"1.1.1.1": 10, "8.8.8.8": 20})
	e, bus := newTestEngine(t, p, cloudflare, google)
	ch := bus.Subscribe()

	require.NoError(t, e.Start())

	a := nextEvent(t, ch, events.PingResult).Payload.(probe.Outcome)
	b := nextEvent(t, ch, events.PingResult).Payload.(probe.Outcome)
	update := nextEvent(t, ch, events.StatsUpdate).Payload.([]stats.Statistics)

	assert.Equal(t, "1.1.1.1", a.Target, "targets are probed in roster order")
	assert.Equal(t, "8.8.8.8", b.Target)
	assert.Equal(t, uint32(0), a.Sequence, "first tick after a fresh start is sequence 0")
	assert.Equal(t, a.Sequence, b.Sequence, "one sequence number per tick")
	assert.Equal(t, 10.0, a.Latency())

	require.Len(t, update, 2)
	assert.Equal(t, "1.1.1.1", update[0].Target)
	assert.GreaterOrEqual(t, update[0].Total, uint64(1))
}

func TestSequenceIncrementsPerTick(t *testing.T) {
	p := newFakeProber(map[string]float64{"1.1.1.1": 1})
	e, _ := newTestEngine(t, p, cloudflare)

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return e.Sequence() >= 3 }, waitFor, 5*time.Millisecond)
	e.Stop()

	recent := e.Recent(0)
	for i := 1; i < len(recent); i++ {
		assert.Equal(t, recent[i-1].Sequence, recent[i].Sequence+1, "newest first, one tick apart")
	}
}

func TestStartResetsSession(t *testing.T) {
	p := newFakeProber(map[string]float64{"1.1.1.1": 1})
	e, _ := newTestEngine(t, p, cloudflare)

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return e.Sequence() >= 3 }, waitFor, 5*time.Millisecond)
	e.Stop()

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return len(e.Recent(0)) >= 1 }, waitFor, 5*time.Millisecond)
	e.Stop()
	require.Eventually(t, func() bool { return !loopActive(e) }, waitFor, 5*time.Millisecond)

	recent := e.Recent(0)
	assert.Equal(t, uint32(0), recent[len(recent)-1].Sequence, "sequence restarts at 0")
	assert.Equal(t, uint64(len(recent)), total(e, "1.1.1.1"), "statistics were reset with history")
}

func TestPauseResumePreservesStats(t *testing.T) {
	p := newFakeProber(map[string]float64{"1.1.1.1": 5})
	e, _ := newTestEngine(t, p, cloudflare)

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return total(e, "1.1.1.1") >= 2 }, waitFor, 5*time.Millisecond)

	e.Pause()
	require.Eventually(t, func() bool { return !loopActive(e) }, waitFor, 5*time.Millisecond)

	before, _ := e.Stats("1.1.1.1")
	seq := e.Sequence()
	time.Sleep(50 * time.Millisecond)
	during, _ := e.Stats("1.1.1.1")
	assert.Equal(t, before.Total, during.Total, "no probing while paused")

	e.Resume()
	assert.Equal(t, Running, e.State())
	require.Eventually(t, func() bool { return total(e, "1.1.1.1") > before.Total }, waitFor, 5*time.Millisecond)

	after, _ := e.Stats("1.1.1.1")
	require.NotNil(t, after.SessionStart)
	assert.Equal(t, *before.SessionStart, *after.SessionStart, "resume does not reset the session")
	assert.GreaterOrEqual(t, e.Sequence(), seq)
}

func TestRecorderFailureDoesNotAbort(t *testing.T) {
	p := newFakeProber(map[string]float64{"1.1.1.1": 5})
	rec := &fakeRecorder{}
	e := New(testConfig(cloudflare), Options{Prober: p, Recorder: rec})
	defer e.Close()

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return rec.appended() >= 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, Running, e.State())
	assert.GreaterOrEqual(t, total(e, "1.1.1.1"), uint64(3))
}

func TestDisabledTargetsSkipped(t *testing.T) {
	disabled := google
	disabled.Enabled = false

	p := newFakeProber(map[string]float64{"1.1.1.1": 5, "8.8.8.8": 5})
	e, _ := newTestEngine(t, p, cloudflare, disabled)

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return p.count("1.1.1.1") >= 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, p.count("8.8.8.8"))

	enabled, ok := e.ToggleTarget(google.ID)
	require.True(t, ok)
	assert.True(t, enabled)
	require.Eventually(t, func() bool { return p.count("8.8.8.8") >= 1 }, waitFor, 5*time.Millisecond)
}

func TestEmptyRosterIdles(t *testing.T) {
	p := newFakeProber(map[string]float64{"9.9.9.9": 3})
	e, _ := newTestEngine(t, p)

	require.NoError(t, e.Start())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Running, e.State())
	assert.Equal(t, uint32(0), e.Sequence(), "no tick without enabled targets")

	_, err := e.AddTarget("9.9.9.9", "Quad9")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.count("9.9.9.9") >= 1 }, waitFor, 5*time.Millisecond)
}

func TestStopDoesNotPreemptProbe(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var probeErr error

	p := probe.ProberFunc(func(ctx context.Context, address string, timeout time.Duration) (float64, error) {
		close(entered)
		<-release
		probeErr = ctx.Err()
		return 7, nil
	})
	e, _ := newTestEngine(t, p, cloudflare)

	require.NoError(t, e.Start())
	<-entered
	e.Stop()
	assert.Equal(t, Stopped, e.State())
	close(release)

	require.Eventually(t, func() bool { return !loopActive(e) }, waitFor, 5*time.Millisecond)
	assert.NoError(t, probeErr)
	assert.Equal(t, uint64(1), total(e, "1.1.1.1"), "in-flight tick completes")
}

func TestStartWaitsForDrainingLoop(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	block := make(chan struct{})
	var once sync.Once

	p := probe.ProberFunc(func(ctx context.Context, address string, timeout time.Duration) (float64, error) {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()

		once.Do(func() { <-block })

		mu.Lock()
		inFlight--
		mu.Unlock()
		return 1, nil
	})
	e, _ := newTestEngine(t, p, cloudflare)

	require.NoError(t, e.Start())
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	started := make(chan error)
	go func() { started <- e.Start() }()

	time.Sleep(20 * time.Millisecond)
	close(block)
	require.NoError(t, <-started)

	require.Eventually(t, func() bool { return total(e, "1.1.1.1") >= 2 }, waitFor, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, maxInFlight, "at most one loop probes at a time")
	mu.Unlock()
}

func TestCloseCancelsProbe(t *testing.T) {
	entered := make(chan struct{})
	p := probe.ProberFunc(func(ctx context.Context, address string, timeout time.Duration) (float64, error) {
		close(entered)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	e := New(testConfig(cloudflare), Options{Prober: p})

	require.NoError(t, e.Start())
	<-entered

	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, Stopped, e.State())
	assert.False(t, loopActive(e))
}

func TestResetStatistics(t *testing.T) {
	p := newFakeProber(map[string]float64{"1.1.1.1": 5})
	e, _ := newTestEngine(t, p, cloudflare)

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return total(e, "1.1.1.1") >= 2 }, waitFor, 5*time.Millisecond)
	e.Stop()
	require.Eventually(t, func() bool { return !loopActive(e) }, waitFor, 5*time.Millisecond)

	seq := e.Sequence()
	e.ResetStatistics()

	s, ok := e.Stats("1.1.1.1")
	require.True(t, ok)
	assert.Equal(t, uint64(0), s.Total)
	assert.Equal(t, "Cloudflare", s.TargetLabel)
	assert.Empty(t, e.Recent(0))
	assert.Equal(t, seq, e.Sequence(), "sequence resets on fresh start only")
}
