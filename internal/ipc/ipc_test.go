package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/storage"
)

type fakeArchive struct {
	points []storage.DataPoint
}

func (f fakeArchive) Fetch(target string, from, to time.Time) ([]storage.DataPoint, error) {
	return f.points, nil
}

var fixedProber = probe.ProberFunc(func(ctx context.Context, address string, timeout time.Duration) (float64, error) {
	return 12.5, nil
})

// socketPath keeps the path short enough for the sun_path limit
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func setup(t *testing.T, archive storage.Querier) (*engine.Engine, *Server, *Client) {
	t.Helper()

	cfg := config.Default()
	cfg.Monitor.PollInterval = 10 * time.Millisecond
	cfg.Targets = []config.Target{{ID: "cf", Address: "1.1.1.1", Label: "Cloudflare", Enabled: true}}

	bus := events.NewBus()
	eng := engine.New(cfg, engine.Options{Prober: fixedProber, Sink: bus})

	srv := NewServer(socketPath(t), eng, bus, archive)
	require.NoError(t, srv.Start())

	client, err := Connect(srv.SocketPath())
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		srv.Stop()
		eng.Close()
		bus.Close()
	})
	return eng, srv, client
}

func TestLifecycle(t *testing.T) {
	_, _, client := setup(t, nil)

	state, err := client.State()
	require.NoError(t, err)
	assert.Equal(t, engine.Stopped, state)

	require.NoError(t, client.Start())
	assert.ErrorIs(t, client.Start(), engine.ErrAlreadyRunning)

	require.NoError(t, client.Pause())
	state, _ = client.State()
	assert.Equal(t, engine.Paused, state)

	require.NoError(t, client.Resume())
	state, _ = client.State()
	assert.Equal(t, engine.Running, state)

	require.NoError(t, client.Stop())
	state, _ = client.State()
	assert.Equal(t, engine.Stopped, state)
}

func TestTargetOperations(t *testing.T) {
	_, _, client := setup(t, nil)

	added, err := client.AddTarget(" 8.8.8.8 ", "Google")
	require.NoError(t, err)
	assert.Equal(t, "8.8.8.8", added.Address)
	assert.NotEmpty(t, added.ID)
	assert.True(t, added.Enabled)

	_, err = client.AddTarget("  ", "blank")
	assert.ErrorIs(t, err, engine.ErrEmptyAddress)

	targets, err := client.Targets()
	require.NoError(t, err)
	require.Len(t, targets, 2)

	enabled, err := client.ToggleTarget(added.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	updated, err := client.UpdateTarget(added.ID, "", "Google DNS")
	require.NoError(t, err)
	assert.Equal(t, "8.8.8.8", updated.Address)
	assert.Equal(t, "Google DNS", updated.Label)

	require.NoError(t, client.RemoveTarget(added.ID))
	assert.ErrorIs(t, client.RemoveTarget(added.ID), engine.ErrTargetNotFound)

	_, err = client.ToggleTarget("missing")
	assert.ErrorIs(t, err, engine.ErrTargetNotFound)
}

func TestSetPollInterval(t *testing.T) {
	eng, _, client := setup(t, nil)

	assert.ErrorIs(t, client.SetPollInterval(50*time.Millisecond), engine.ErrIntervalTooShort)

	require.NoError(t, client.SetPollInterval(2*time.Second))
	assert.Equal(t, 2*time.Second, eng.Config().Monitor.PollInterval)
}

func TestStatsAndRecent(t *testing.T) {
	eng, _, client := setup(t, nil)
	require.NoError(t, client.Start())

	require.Eventually(t, func() bool {
		recent, err := client.Recent(0)
		return err == nil && len(recent) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	recent, err := client.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "1.1.1.1", recent[0].Target)
	assert.InDelta(t, 12.5, recent[0].Latency(), 1e-9)

	all, err := client.AllStats()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Greater(t, all[0].Total, uint64(0))

	one, err := client.Stats("1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "Cloudflare", one.TargetLabel)

	_, err = client.Stats("9.9.9.9")
	assert.ErrorIs(t, err, engine.ErrTargetNotFound)

	// Close waits for the loop so no tick lands after the reset
	eng.Close()
	require.NoError(t, client.ResetStatistics())
	recent, err = client.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestEventsForwarded(t *testing.T) {
	_, _, client := setup(t, nil)
	require.NoError(t, client.Subscribe())
	require.NoError(t, client.Start())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-client.Events():
			require.True(t, ok, "event channel closed")
			if ev.Channel != events.PingResult {
				continue
			}
			var o probe.Outcome
			require.NoError(t, json.Unmarshal(ev.Payload, &o))
			assert.Equal(t, "1.1.1.1", o.Target)
			assert.True(t, o.Success)
			return
		case <-timeout:
			t.Fatal("no ping-result event received")
		}
	}
}

func TestHistory(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	archive := fakeArchive{points: []storage.DataPoint{
		{Timestamp: now, Value: 10, Loss: 0},
		{Timestamp: now.Add(time.Second), Value: math.NaN(), Loss: 1},
		{Timestamp: now.Add(2 * time.Second), Value: math.NaN(), Loss: math.NaN()},
	}}
	_, _, client := setup(t, archive)

	points, err := client.History("1.1.1.1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 10.0, points[0].Value)
	assert.True(t, math.IsNaN(points[1].Value))
	assert.Equal(t, 1.0, points[1].Loss)
	assert.True(t, math.IsNaN(points[2].Loss))
}

func TestHistoryWithoutArchive(t *testing.T) {
	_, _, client := setup(t, nil)

	_, err := client.History("1.1.1.1", time.Time{}, time.Time{})
	assert.ErrorContains(t, err, "no archive")
}

func TestMalformedAndUnknownRequests(t *testing.T) {
	_, srv, _ := setup(t, nil)

	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewScanner(conn)

	cases := []struct {
		line string
		want string
	}{
		{line: "not json", want: "invalid request"},
		{line: `{"id":"1","type":"bogus"}`, want: "unknown request type: bogus"},
		{line: `{"id":"2","type":"get_recent","data":{"count":"x"}}`, want: "invalid get_recent payload"},
	}
	for _, tc := range cases {
		_, err := conn.Write([]byte(tc.line + "\n"))
		require.NoError(t, err)
		require.True(t, reader.Scan())

		var resp Response
		require.NoError(t, json.Unmarshal(reader.Bytes(), &resp))
		assert.Equal(t, MsgTypeError, resp.Type)
		assert.Contains(t, resp.Error, tc.want)
	}
}

func TestStopRemovesSocket(t *testing.T) {
	_, srv, client := setup(t, nil)

	require.NoError(t, srv.Stop())
	_, err := os.Stat(srv.SocketPath())
	assert.True(t, os.IsNotExist(err))

	assert.Eventually(t, func() bool {
		_, err := client.State()
		return err != nil
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, srv.Stop(), "second stop is a no-op")
}
