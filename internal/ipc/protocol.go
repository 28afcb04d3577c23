// Package ipc exposes the monitor's control surface over a Unix socket
// using newline-delimited JSON.
package ipc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/wellsgz/pingmon/internal/engine"
)

// Request types
const (
	MsgTypeSubscribe      = "subscribe"
	MsgTypeUnsubscribe    = "unsubscribe"
	MsgTypeStart          = "start"
	MsgTypeStop           = "stop"
	MsgTypePause          = "pause"
	MsgTypeResume         = "resume"
	MsgTypeGetState       = "get_state"
	MsgTypeGetStats       = "get_stats"
	MsgTypeGetTargetStats = "get_target_stats"
	MsgTypeGetRecent      = "get_recent"
	MsgTypeSetInterval    = "set_interval"
	MsgTypeGetTargets     = "get_targets"
	MsgTypeAddTarget      = "add_target"
	MsgTypeRemoveTarget   = "remove_target"
	MsgTypeUpdateTarget   = "update_target"
	MsgTypeToggleTarget   = "toggle_target"
	MsgTypeResetStats     = "reset_stats"
	MsgTypeGetHistory     = "get_history"
)

// Response types
const (
	MsgTypeOK    = "ok"
	MsgTypeError = "error"
	MsgTypeEvent = "event"
)

// Error codes carried in responses so clients can restore sentinel errors
const (
	CodeAlreadyRunning   = "already_running"
	CodeEmptyAddress     = "empty_address"
	CodeIntervalTooShort = "interval_too_short"
	CodeTargetNotFound   = "target_not_found"
	CodeInvalidSetting   = "invalid_setting"
)

var codeErrors = map[string]error{
	CodeAlreadyRunning:   engine.ErrAlreadyRunning,
	CodeEmptyAddress:     engine.ErrEmptyAddress,
	CodeIntervalTooShort: engine.ErrIntervalTooShort,
	CodeTargetNotFound:   engine.ErrTargetNotFound,
	CodeInvalidSetting:   engine.ErrInvalidSetting,
}

// errorCode returns the wire code for a known engine error, or ""
func errorCode(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// Request is one line sent by a client
type Request struct {
	ID   string          `json:"id,omitempty"` // Unique request ID for response correlation
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is one line sent by the server. Events carry no ID.
type Response struct {
	ID    string          `json:"id,omitempty"` // Echo of request ID for correlation
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// EventData wraps a bus event pushed to subscribed clients
type EventData struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// AddressRequest names a target by address
type AddressRequest struct {
	Address string `json:"address"`
}

// IDRequest names a target by id
type IDRequest struct {
	ID string `json:"id"`
}

// CountRequest limits a list; zero means everything
type CountRequest struct {
	Count int `json:"count"`
}

// IntervalRequest sets the poll interval
type IntervalRequest struct {
	IntervalMs int64 `json:"interval_ms"`
}

// TargetRequest adds or updates a target
type TargetRequest struct {
	ID      string `json:"id,omitempty"`
	Address string `json:"address"`
	Label   string `json:"label"`
}

// StateResponse reports the lifecycle state
type StateResponse struct {
	State engine.State `json:"state"`
}

// ToggleResponse reports a target's new enabled flag
type ToggleResponse struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

// HistoryRequest queries the archive
type HistoryRequest struct {
	Address string    `json:"address"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
}

// DataPoint is a JSON-safe archived point: nil stands for NaN
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Loss      *float64  `json:"loss"`
}
