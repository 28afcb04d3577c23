package api

import (
	"bytes"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/report"
	"github.com/wellsgz/pingmon/internal/storage"
)

// Handler holds dependencies for API handlers
type Handler struct {
	engine    *engine.Engine
	archive   storage.Querier
	version   string
	startTime time.Time
}

// NewHandler creates a new Handler. archive may be nil when no queryable
// recorder is configured.
func NewHandler(eng *engine.Engine, archive storage.Querier, version string) *Handler {
	return &Handler{
		engine:    eng,
		archive:   archive,
		version:   version,
		startTime: time.Now(),
	}
}

// respondError maps engine errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrEmptyAddress),
		errors.Is(err, engine.ErrIntervalTooShort),
		errors.Is(err, engine.ErrInvalidSetting):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrTargetNotFound):
		status = http.StatusNotFound
	}

	c.JSON(status, gin.H{
		"error":   http.StatusText(status),
		"message": err.Error(),
	})
}

// StatusResponse represents the response for the status endpoint
type StatusResponse struct {
	Status      string       `json:"status"`
	State       engine.State `json:"state"`
	Uptime      string       `json:"uptime"`
	UptimeSecs  float64      `json:"uptime_secs"`
	TargetCount int          `json:"target_count"`
	Sequence    uint32       `json:"sequence"`
	Version     string       `json:"version"`
}

// GetStatus returns the current system status
func (h *Handler) GetStatus(c *gin.Context) {
	uptime := time.Since(h.startTime)

	c.JSON(http.StatusOK, StatusResponse{
		Status:      "ok",
		State:       h.engine.State(),
		Uptime:      uptime.Round(time.Second).String(),
		UptimeSecs:  uptime.Seconds(),
		TargetCount: len(h.engine.Targets()),
		Sequence:    h.engine.Sequence(),
		Version:     h.version,
	})
}

// GetConfig returns the monitor settings (read-only)
func (h *Handler) GetConfig(c *gin.Context) {
	cfg := h.engine.Config()

	c.JSON(http.StatusOK, gin.H{
		"monitor": gin.H{
			"poll_interval_ms": cfg.Monitor.PollInterval.Milliseconds(),
			"probe_timeout_ms": cfg.Monitor.ProbeTimeout.Milliseconds(),
			"max_history_size": cfg.Monitor.MaxHistorySize,
			"prober":           cfg.Monitor.Prober,
			"autostart":        cfg.Monitor.Autostart,
		},
		"targets": cfg.Targets,
	})
}

// GetPresets returns the well-known targets offered for quick add
func (h *Handler) GetPresets(c *gin.Context) {
	c.JSON(http.StatusOK, config.PresetTargets())
}

// GetState returns the lifecycle state
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.engine.State()})
}

// Start begins monitoring
func (h *Handler) Start(c *gin.Context) {
	if err := h.engine.Start(); err != nil {
		respondError(c, err)
		return
	}
	h.GetState(c)
}

// Stop ends monitoring
func (h *Handler) Stop(c *gin.Context) {
	h.engine.Stop()
	h.GetState(c)
}

// Pause suspends monitoring
func (h *Handler) Pause(c *gin.Context) {
	h.engine.Pause()
	h.GetState(c)
}

// Resume continues paused monitoring
func (h *Handler) Resume(c *gin.Context) {
	h.engine.Resume()
	h.GetState(c)
}

// GetAllStats returns statistics for every target
func (h *Handler) GetAllStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.AllStats())
}

// GetTargetStats returns statistics for the address in the query string
func (h *Handler) GetTargetStats(c *gin.Context) {
	address := c.Query("address")
	s, ok := h.engine.Stats(address)
	if !ok {
		respondError(c, engine.ErrTargetNotFound)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ResetStats clears statistics and history
func (h *Handler) ResetStats(c *gin.Context) {
	h.engine.ResetStatistics()
	c.Status(http.StatusNoContent)
}

// countParam reads an optional non-negative count from the query string
func countParam(c *gin.Context) (int, bool) {
	raw := c.Query("count")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// GetRecent returns recent outcomes, newest first
func (h *Handler) GetRecent(c *gin.Context) {
	count, ok := countParam(c)
	if !ok {
		respondError(c, engine.ErrInvalidSetting)
		return
	}
	c.JSON(http.StatusOK, h.engine.Recent(count))
}

// IntervalRequest is the body of the interval update
type IntervalRequest struct {
	IntervalMs int64 `json:"interval_ms" binding:"required"`
}

// SetInterval changes the poll interval
func (h *Handler) SetInterval(c *gin.Context) {
	var req IntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Join(engine.ErrInvalidSetting, err))
		return
	}
	if err := h.engine.SetPollInterval(time.Duration(req.IntervalMs) * time.Millisecond); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interval_ms": req.IntervalMs})
}

// TargetRequest is the body for creating or updating a target
type TargetRequest struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

// GetTargets returns the roster
func (h *Handler) GetTargets(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Targets())
}

// AddTarget appends a target
func (h *Handler) AddTarget(c *gin.Context) {
	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Join(engine.ErrInvalidSetting, err))
		return
	}
	t, err := h.engine.AddTarget(req.Address, req.Label)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTarget changes a target's address and label
func (h *Handler) UpdateTarget(c *gin.Context) {
	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Join(engine.ErrInvalidSetting, err))
		return
	}
	t, ok := h.engine.UpdateTarget(c.Param("id"), req.Address, req.Label)
	if !ok {
		respondError(c, engine.ErrTargetNotFound)
		return
	}
	c.JSON(http.StatusOK, t)
}

// RemoveTarget deletes a target
func (h *Handler) RemoveTarget(c *gin.Context) {
	if !h.engine.RemoveTarget(c.Param("id")) {
		respondError(c, engine.ErrTargetNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleTarget flips a target's enabled flag
func (h *Handler) ToggleTarget(c *gin.Context) {
	enabled, ok := h.engine.ToggleTarget(c.Param("id"))
	if !ok {
		respondError(c, engine.ErrTargetNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "enabled": enabled})
}

// HistoryQuery represents query parameters for archived data
type HistoryQuery struct {
	Address string `form:"address" binding:"required"`
	From    string `form:"from"`
	To      string `form:"to"`
}

// DataPoint represents a single archived data point
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"` // nil for NaN values
	Loss      *float64  `json:"loss"`  // nil for no data, 0=success, 1=failure (or 0.0-1.0 for aggregated)
}

// HistoryResponse contains archived data points
type HistoryResponse struct {
	Target     string      `json:"target"`
	From       time.Time   `json:"from"`
	To         time.Time   `json:"to"`
	DataPoints []DataPoint `json:"data_points"`
}

// GetHistory returns archived data for a target address
func (h *Handler) GetHistory(c *gin.Context) {
	var query HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, errors.Join(engine.ErrInvalidSetting, err))
		return
	}

	to := time.Now()
	from := to.Add(-1 * time.Hour)
	if query.From != "" {
		if parsed, err := time.Parse(time.RFC3339, query.From); err == nil {
			from = parsed
		}
	}
	if query.To != "" {
		if parsed, err := time.Parse(time.RFC3339, query.To); err == nil {
			to = parsed
		}
	}

	dataPoints := []DataPoint{}
	if h.archive != nil {
		points, err := h.archive.Fetch(query.Address, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal Server Error",
				"message": "Failed to fetch history: " + err.Error(),
			})
			return
		}

		dataPoints = make([]DataPoint, len(points))
		for i, p := range points {
			dp := DataPoint{Timestamp: p.Timestamp}
			if !math.IsNaN(p.Value) {
				val := p.Value
				dp.Value = &val
			}
			if !math.IsNaN(p.Loss) {
				loss := p.Loss
				dp.Loss = &loss
			}
			dataPoints[i] = dp
		}
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Target:     query.Address,
		From:       from,
		To:         to,
		DataPoints: dataPoints,
	})
}

// GetChart renders recent outcomes as a PNG latency chart
func (h *Handler) GetChart(c *gin.Context) {
	count, ok := countParam(c)
	if !ok {
		respondError(c, engine.ErrInvalidSetting)
		return
	}

	var buf bytes.Buffer
	err := report.RenderLatencyChart(&buf, h.engine.Recent(count), report.Options{})
	if errors.Is(err, report.ErrNoData) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
