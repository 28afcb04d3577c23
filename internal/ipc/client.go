package ipc

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
	"github.com/wellsgz/pingmon/internal/storage"
)

const (
	requestTimeout = 5 * time.Second
	historyTimeout = 10 * time.Second
)

// ErrClosed is returned for requests on a closed or broken connection
var ErrClosed = errors.New("connection closed")

// Client connects to the IPC server of a running monitor
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	scanner *bufio.Scanner

	eventCh chan EventData

	// Pending requests waiting for responses, keyed by request ID
	pending   map[string]chan Response
	pendingMu sync.Mutex

	done   chan struct{} // closed when the read loop exits
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Connect dials the monitor's socket
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to monitor: %w", err)
	}

	client := &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		scanner: bufio.NewScanner(conn),
		eventCh: make(chan EventData, 100),
		pending: make(map[string]chan Response),
		done:    make(chan struct{}),
	}
	client.scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	client.wg.Add(1)
	go client.readLoop()

	return client, nil
}

// readLoop routes responses to their callers and events to the event channel
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.done)
	defer close(c.eventCh)

	for c.scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
			continue
		}

		if resp.Type == MsgTypeEvent {
			var ev EventData
			if err := json.Unmarshal(resp.Data, &ev); err != nil {
				continue
			}
			select {
			case c.eventCh <- ev:
			default:
				// Consumer is behind, drop
			}
			continue
		}

		if resp.ID == "" {
			continue
		}
		c.pendingMu.Lock()
		if ch, ok := c.pending[resp.ID]; ok {
			// Send while holding lock to prevent race with cleanupRequest
			select {
			case ch <- resp:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// sendRequest sends a request and returns a channel to receive the response
func (c *Client) sendRequest(reqType string, data any) (chan Response, string, error) {
	req := Request{ID: generateRequestID(), Type: reqType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode %s request: %w", reqType, err)
		}
		req.Data = raw
	}

	respCh := make(chan Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = respCh
	c.pendingMu.Unlock()

	c.mu.Lock()
	err := c.encoder.Encode(req)
	c.mu.Unlock()

	if err != nil {
		c.cleanupRequest(req.ID)
		return nil, "", err
	}

	return respCh, req.ID, nil
}

// cleanupRequest removes a pending request
func (c *Client) cleanupRequest(reqID string) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// call performs one request and decodes the result into out, which may be nil
func (c *Client) call(reqType string, data, out any, timeout time.Duration) error {
	respCh, reqID, err := c.sendRequest(reqType, data)
	if err != nil {
		return err
	}
	defer c.cleanupRequest(reqID)

	select {
	case resp := <-respCh:
		if resp.Type == MsgTypeError {
			return responseError(resp)
		}
		if out == nil || len(resp.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", reqType, err)
		}
		return nil
	case <-c.done:
		return ErrClosed
	case <-time.After(timeout):
		return fmt.Errorf("%s timeout", reqType)
	}
}

// responseError restores the engine sentinel for coded errors
func responseError(resp Response) error {
	if sentinel, ok := codeErrors[resp.Code]; ok {
		return sentinel
	}
	return errors.New(resp.Error)
}

// Subscribe starts the delivery of monitor events to Events
func (c *Client) Subscribe() error {
	return c.call(MsgTypeSubscribe, nil, nil, requestTimeout)
}

// Unsubscribe stops event delivery
func (c *Client) Unsubscribe() error {
	return c.call(MsgTypeUnsubscribe, nil, nil, requestTimeout)
}

// Events returns the channel of pushed events. It is closed with the connection.
func (c *Client) Events() <-chan EventData {
	return c.eventCh
}

// Start begins monitoring
func (c *Client) Start() error {
	return c.call(MsgTypeStart, nil, nil, requestTimeout)
}

// Stop ends monitoring
func (c *Client) Stop() error {
	return c.call(MsgTypeStop, nil, nil, requestTimeout)
}

// Pause suspends monitoring
func (c *Client) Pause() error {
	return c.call(MsgTypePause, nil, nil, requestTimeout)
}

// Resume continues a paused monitor
func (c *Client) Resume() error {
	return c.call(MsgTypeResume, nil, nil, requestTimeout)
}

// State returns the monitor's lifecycle state
func (c *Client) State() (engine.State, error) {
	var resp StateResponse
	err := c.call(MsgTypeGetState, nil, &resp, requestTimeout)
	return resp.State, err
}

// AllStats returns statistics for every target
func (c *Client) AllStats() ([]stats.Statistics, error) {
	var all []stats.Statistics
	err := c.call(MsgTypeGetStats, nil, &all, requestTimeout)
	return all, err
}

// Stats returns statistics for one target address
func (c *Client) Stats(address string) (stats.Statistics, error) {
	var s stats.Statistics
	err := c.call(MsgTypeGetTargetStats, AddressRequest{Address: address}, &s, requestTimeout)
	return s, err
}

// Recent returns up to count outcomes, newest first
func (c *Client) Recent(count int) ([]probe.Outcome, error) {
	var outcomes []probe.Outcome
	err := c.call(MsgTypeGetRecent, CountRequest{Count: count}, &outcomes, requestTimeout)
	return outcomes, err
}

// ResetStatistics clears statistics and history on the monitor
func (c *Client) ResetStatistics() error {
	return c.call(MsgTypeResetStats, nil, nil, requestTimeout)
}

// SetPollInterval changes the delay between ticks
func (c *Client) SetPollInterval(d time.Duration) error {
	return c.call(MsgTypeSetInterval, IntervalRequest{IntervalMs: d.Milliseconds()}, nil, requestTimeout)
}

// Targets returns the roster
func (c *Client) Targets() ([]config.Target, error) {
	var targets []config.Target
	err := c.call(MsgTypeGetTargets, nil, &targets, requestTimeout)
	return targets, err
}

// AddTarget appends a target and returns it with its assigned id
func (c *Client) AddTarget(address, label string) (config.Target, error) {
	var t config.Target
	err := c.call(MsgTypeAddTarget, TargetRequest{Address: address, Label: label}, &t, requestTimeout)
	return t, err
}

// RemoveTarget deletes a target by id
func (c *Client) RemoveTarget(id string) error {
	return c.call(MsgTypeRemoveTarget, IDRequest{ID: id}, nil, requestTimeout)
}

// UpdateTarget changes a target's address and label
func (c *Client) UpdateTarget(id, address, label string) (config.Target, error) {
	var t config.Target
	err := c.call(MsgTypeUpdateTarget, TargetRequest{ID: id, Address: address, Label: label}, &t, requestTimeout)
	return t, err
}

// ToggleTarget flips a target's enabled flag and returns the new value
func (c *Client) ToggleTarget(id string) (bool, error) {
	var resp ToggleResponse
	err := c.call(MsgTypeToggleTarget, IDRequest{ID: id}, &resp, requestTimeout)
	return resp.Enabled, err
}

// History fetches archived data points. Missing values come back as NaN.
func (c *Client) History(address string, from, to time.Time) ([]storage.DataPoint, error) {
	var safe []DataPoint
	req := HistoryRequest{Address: address, From: from, To: to}
	if err := c.call(MsgTypeGetHistory, req, &safe, historyTimeout); err != nil {
		return nil, err
	}

	points := make([]storage.DataPoint, len(safe))
	for i, p := range safe {
		points[i] = storage.DataPoint{Timestamp: p.Timestamp, Value: math.NaN(), Loss: math.NaN()}
		if p.Value != nil {
			points[i].Value = *p.Value
		}
		if p.Loss != nil {
			points[i].Loss = *p.Loss
		}
	}
	return points, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	return err
}
