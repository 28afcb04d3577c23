package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/logging"
	"github.com/wellsgz/pingmon/internal/storage"
)

var log = logging.For("IPC")

// errNoArchive is returned for history queries when no archive is configured
var errNoArchive = errors.New("no archive configured")

// Server exposes the engine's control surface to local clients
type Server struct {
	socketPath string
	listener   net.Listener
	engine     *engine.Engine
	bus        *events.Bus
	busEvents  <-chan events.Event
	archive    storage.Querier

	clients   map[*serverClient]struct{}
	clientsMu sync.RWMutex

	ctx    chan struct{} // closed when stopping
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// serverClient represents a connected client
type serverClient struct {
	conn       net.Conn
	encoder    *json.Encoder
	subscribed bool
	mu         sync.Mutex
}

// NewServer creates an IPC server for eng. bus and archive may be nil.
func NewServer(socketPath string, eng *engine.Engine, bus *events.Bus, archive storage.Querier) *Server {
	return &Server{
		socketPath: socketPath,
		engine:     eng,
		bus:        bus,
		archive:    archive,
		clients:    make(map[*serverClient]struct{}),
		ctx:        make(chan struct{}),
	}
}

// Start begins listening for connections
func (s *Server) Start() error {
	// Remove a stale socket left by a previous run
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0660); err != nil {
		log.WithError(err).Warn("Failed to set socket permissions")
	}

	log.WithField("socket", s.socketPath).Info("Server listening")

	if s.bus != nil {
		s.busEvents = s.bus.Subscribe()
		s.wg.Add(1)
		go s.forwardEvents(s.busEvents)
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// SocketPath returns the path the server listens on
func (s *Server) SocketPath() string {
	return s.socketPath
}

// acceptLoop accepts new connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx:
				return
			default:
				log.WithError(err).Warn("Accept error")
				continue
			}
		}

		client := &serverClient{
			conn:    conn,
			encoder: json.NewEncoder(conn),
		}

		s.clientsMu.Lock()
		s.clients[client] = struct{}{}
		s.clientsMu.Unlock()

		s.wg.Add(1)
		go s.handleClient(client)
	}
}

// handleClient serves one connection until it closes
func (s *Server) handleClient(client *serverClient) {
	defer s.wg.Done()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client)
		s.clientsMu.Unlock()
		client.conn.Close()
	}()

	scanner := bufio.NewScanner(client.conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			client.sendError("", fmt.Errorf("invalid request: %w", err))
			continue
		}

		s.handleRequest(client, &req)
	}

	if err := scanner.Err(); err != nil {
		log.WithError(err).Debug("Client read error")
	}
}

// handleRequest answers one request
func (s *Server) handleRequest(client *serverClient, req *Request) {
	data, err := s.dispatch(client, req)
	if err != nil {
		client.sendError(req.ID, err)
		return
	}
	client.sendOK(req.ID, data)
}

// dispatch runs the operation named by req and returns its result payload
func (s *Server) dispatch(client *serverClient, req *Request) (any, error) {
	switch req.Type {
	case MsgTypeSubscribe:
		client.setSubscribed(true)
		return nil, nil

	case MsgTypeUnsubscribe:
		client.setSubscribed(false)
		return nil, nil

	case MsgTypeStart:
		return nil, s.engine.Start()

	case MsgTypeStop:
		s.engine.Stop()
		return nil, nil

	case MsgTypePause:
		s.engine.Pause()
		return nil, nil

	case MsgTypeResume:
		s.engine.Resume()
		return nil, nil

	case MsgTypeGetState:
		return StateResponse{State: s.engine.State()}, nil

	case MsgTypeGetStats:
		return s.engine.AllStats(), nil

	case MsgTypeGetTargetStats:
		var r AddressRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		st, ok := s.engine.Stats(r.Address)
		if !ok {
			return nil, engine.ErrTargetNotFound
		}
		return st, nil

	case MsgTypeGetRecent:
		var r CountRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		return s.engine.Recent(r.Count), nil

	case MsgTypeSetInterval:
		var r IntervalRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		return nil, s.engine.SetPollInterval(time.Duration(r.IntervalMs) * time.Millisecond)

	case MsgTypeGetTargets:
		return s.engine.Targets(), nil

	case MsgTypeAddTarget:
		var r TargetRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		return s.engine.AddTarget(r.Address, r.Label)

	case MsgTypeRemoveTarget:
		var r IDRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		if !s.engine.RemoveTarget(r.ID) {
			return nil, engine.ErrTargetNotFound
		}
		return nil, nil

	case MsgTypeUpdateTarget:
		var r TargetRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		t, ok := s.engine.UpdateTarget(r.ID, r.Address, r.Label)
		if !ok {
			return nil, engine.ErrTargetNotFound
		}
		return t, nil

	case MsgTypeToggleTarget:
		var r IDRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		enabled, ok := s.engine.ToggleTarget(r.ID)
		if !ok {
			return nil, engine.ErrTargetNotFound
		}
		return ToggleResponse{ID: r.ID, Enabled: enabled}, nil

	case MsgTypeResetStats:
		s.engine.ResetStatistics()
		return nil, nil

	case MsgTypeGetHistory:
		var r HistoryRequest
		if err := decode(req, &r); err != nil {
			return nil, err
		}
		return s.fetchHistory(r)

	default:
		return nil, fmt.Errorf("unknown request type: %s", req.Type)
	}
}

// fetchHistory queries the archive and converts NaN values to nil
func (s *Server) fetchHistory(r HistoryRequest) ([]DataPoint, error) {
	if s.archive == nil {
		return nil, errNoArchive
	}
	if r.To.IsZero() {
		r.To = time.Now()
	}
	if r.From.IsZero() {
		r.From = r.To.Add(-time.Hour)
	}

	points, err := s.archive.Fetch(r.Address, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	safe := make([]DataPoint, len(points))
	for i, p := range points {
		safe[i] = DataPoint{Timestamp: p.Timestamp}
		if !math.IsNaN(p.Value) {
			v := p.Value
			safe[i].Value = &v
		}
		if !math.IsNaN(p.Loss) {
			l := p.Loss
			safe[i].Loss = &l
		}
	}
	return safe, nil
}

// forwardEvents relays bus events to subscribed clients
func (s *Server) forwardEvents(ch <-chan events.Event) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}

			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				log.WithError(err).WithField("channel", ev.Channel).Warn("Failed to encode event")
				continue
			}
			data, _ := json.Marshal(EventData{Channel: ev.Channel, Payload: payload})
			resp := Response{Type: MsgTypeEvent, Data: data}

			s.clientsMu.RLock()
			for client := range s.clients {
				client.mu.Lock()
				if client.subscribed {
					if err := client.encoder.Encode(resp); err != nil {
						log.WithError(err).Debug("Failed to send event to client")
					}
				}
				client.mu.Unlock()
			}
			s.clientsMu.RUnlock()
		}
	}
}

// Stop closes the listener and every connection, then removes the socket
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.ctx)

	if s.busEvents != nil {
		s.bus.Unsubscribe(s.busEvents)
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.conn.Close()
	}
	s.clientsMu.Unlock()

	s.wg.Wait()

	os.Remove(s.socketPath)

	log.Info("Server stopped")
	return nil
}

// decode unmarshals the request payload into v. A missing payload leaves v zeroed.
func decode(req *Request, v any) error {
	if len(req.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", req.Type, err)
	}
	return nil
}

func (c *serverClient) setSubscribed(on bool) {
	c.mu.Lock()
	c.subscribed = on
	c.mu.Unlock()
}

// sendOK sends a successful response with an optional payload
func (c *serverClient) sendOK(reqID string, data any) {
	resp := Response{ID: reqID, Type: MsgTypeOK}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			c.sendError(reqID, fmt.Errorf("failed to encode response: %w", err))
			return
		}
		resp.Data = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.encoder.Encode(resp); err != nil {
		log.WithError(err).Debug("Failed to send response")
	}
}

// sendError sends an error response tagged with a code for known engine errors
func (c *serverClient) sendError(reqID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder.Encode(Response{ID: reqID, Type: MsgTypeError, Error: err.Error(), Code: errorCode(err)})
}
