package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/storage"
)

var cloudflare = config.Target{ID: "cf", Address: "1.1.1.1", Label: "Cloudflare", Enabled: true}

type fakeArchive struct {
	points []storage.DataPoint
}

func (f *fakeArchive) Fetch(target string, from, to time.Time) ([]storage.DataPoint, error) {
	return f.points, nil
}

func newTestServer(t *testing.T, archive storage.Querier) (*Server, *engine.Engine, *events.Bus) {
	t.Helper()

	cfg := config.Default()
	cfg.Monitor.PollInterval = 100 * time.Millisecond
	cfg.Targets = []config.Target{cloudflare}

	bus := events.NewBus()
	p := probe.ProberFunc(func(context.Context, string, time.Duration) (float64, error) {
		return 4.2, nil
	})
	eng := engine.New(cfg, engine.Options{Prober: p, Sink: bus})
	t.Cleanup(func() {
		eng.Close()
		bus.Close()
	})

	srv := NewServer(Options{Engine: eng, Bus: bus, Archive: archive, Version: "test"})
	return srv, eng, bus
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndStatus(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[StatusResponse](t, w)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, engine.Stopped, status.State)
	assert.Equal(t, 1, status.TargetCount)
	assert.Equal(t, "test", status.Version)
}

func TestLifecycleEndpoints(t *testing.T) {
	srv, eng, _ := newTestServer(t, nil)

	tests := []struct {
		path       string
		wantStatus int
		wantState  string
	}{
		{"/api/v1/monitor/pause", http.StatusOK, "stopped"},
		{"/api/v1/monitor/start", http.StatusOK, "running"},
		{"/api/v1/monitor/start", http.StatusConflict, ""},
		{"/api/v1/monitor/pause", http.StatusOK, "paused"},
		{"/api/v1/monitor/resume", http.StatusOK, "running"},
		{"/api/v1/monitor/stop", http.StatusOK, "stopped"},
	}

	for _, tt := range tests {
		w := do(t, srv, http.MethodPost, tt.path, nil)
		require.Equal(t, tt.wantStatus, w.Code, tt.path)
		if tt.wantState != "" {
			assert.Equal(t, tt.wantState, decode[map[string]string](t, w)["state"], tt.path)
		}
	}

	assert.Equal(t, engine.Stopped, eng.State())
}

func TestTargetEndpoints(t *testing.T) {
	srv, eng, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/targets", TargetRequest{Address: "  ", Label: "blank"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/targets", TargetRequest{Address: "9.9.9.9", Label: "Quad9"})
	require.Equal(t, http.StatusCreated, w.Code)
	added := decode[config.Target](t, w)
	assert.NotEmpty(t, added.ID)

	w = do(t, srv, http.MethodGet, "/api/v1/targets", nil)
	assert.Len(t, decode[[]config.Target](t, w), 2)

	w = do(t, srv, http.MethodPut, "/api/v1/targets/"+added.ID, TargetRequest{Address: "9.9.9.10", Label: "Quad9 alt"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9.9.9.10", decode[config.Target](t, w).Address)

	w = do(t, srv, http.MethodPut, "/api/v1/targets/missing", TargetRequest{Address: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/targets/"+added.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["enabled"])

	w = do(t, srv, http.MethodPost, "/api/v1/targets/missing/toggle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodDelete, "/api/v1/targets/"+added.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodDelete, "/api/v1/targets/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Len(t, eng.Targets(), 1)
}

func TestSettingsEndpoint(t *testing.T) {
	srv, eng, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPut, "/api/v1/settings/interval", IntervalRequest{IntervalMs: 50})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPut, "/api/v1/settings/interval", map[string]string{"interval_ms": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPut, "/api/v1/settings/interval", IntervalRequest{IntervalMs: 2500})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2500*time.Millisecond, eng.Config().Monitor.PollInterval)

	w = do(t, srv, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"poll_interval_ms":2500`)
}

func TestStatsEndpoints(t *testing.T) {
	srv, eng, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/stats/target?address=unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, eng.Start())
	require.Eventually(t, func() bool { return len(eng.Recent(0)) >= 1 }, 2*time.Second, 10*time.Millisecond)
	eng.Close() // waits for the loop to exit

	w = do(t, srv, http.MethodGet, "/api/v1/stats/target?address=1.1.1.1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"target_label":"Cloudflare"`)

	w = do(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = do(t, srv, http.MethodGet, "/api/v1/recent?count=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[[]probe.Outcome](t, w)
	require.Len(t, recent, 1)
	assert.Equal(t, 4.2, recent[0].Latency())

	w = do(t, srv, http.MethodGet, "/api/v1/recent?count=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/stats/reset", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, eng.Recent(0))
}

func TestHistoryEndpoint(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	archive := &fakeArchive{points: []storage.DataPoint{
		{Timestamp: base, Value: 12, Loss: 0},
		{Timestamp: base.Add(time.Second), Value: math.NaN(), Loss: 1},
	}}
	srv, _, _ := newTestServer(t, archive)

	w := do(t, srv, http.MethodGet, "/api/v1/history", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "address is required")

	w = do(t, srv, http.MethodGet, "/api/v1/history?address=1.1.1.1&from=2024-01-01T00:00:00Z&to=2024-01-01T01:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HistoryResponse](t, w)
	assert.Equal(t, "1.1.1.1", resp.Target)
	assert.True(t, resp.From.Equal(base))
	require.Len(t, resp.DataPoints, 2)
	require.NotNil(t, resp.DataPoints[0].Value)
	assert.Equal(t, 12.0, *resp.DataPoints[0].Value)
	assert.Nil(t, resp.DataPoints[1].Value, "NaN becomes null")
	assert.Equal(t, 1.0, *resp.DataPoints[1].Loss)
}

func TestHistoryWithoutArchive(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/history?address=1.1.1.1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[HistoryResponse](t, w).DataPoints)
}

func TestChartEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/chart.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no samples yet")
}

func TestPresetsAndCORS(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/presets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]config.Target](t, w))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, srv, http.MethodOptions, "/api/v1/targets", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWebSocketRelaysEvents(t *testing.T) {
	srv, _, bus := newTestServer(t, nil)
	go srv.Hub().Run()
	t.Cleanup(srv.Hub().Stop)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Narrow ping results to one address
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", Targets: []string{"8.8.8.8"}}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack ServerMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)

	bus.Emit(events.PingResult, probe.NewSuccess(cloudflare, 1, 0))
	bus.Emit(events.PingResult, probe.NewSuccess(config.Target{Address: "8.8.8.8"}, 2, 0))
	bus.Emit(events.StateChange, engine.Running)

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, events.PingResult, msg.Type)
	var o probe.Outcome
	require.NoError(t, json.Unmarshal(msg.Data, &o))
	assert.Equal(t, "8.8.8.8", o.Target, "unsubscribed address filtered out")

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, events.StateChange, msg.Type)
	assert.Equal(t, `"running"`, string(msg.Data))
}
