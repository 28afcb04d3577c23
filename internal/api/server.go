// Package api exposes the monitor over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/logging"
	"github.com/wellsgz/pingmon/internal/storage"
)

// Options wires the server to the running monitor
type Options struct {
	Engine  *engine.Engine
	Bus     *events.Bus
	Archive storage.Querier // optional
	Version string
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	handler    *Handler
	hub        *Hub
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ErrorHandler())
	router.Use(RequestLogger())
	router.Use(CORS())

	handler := NewHandler(opts.Engine, opts.Archive, opts.Version)

	var hub *Hub
	if opts.Bus != nil {
		hub = NewHub(opts.Bus)
	}

	SetupRoutes(router, handler, hub)

	httpServer := &http.Server{
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		handler:    handler,
		hub:        hub,
	}
}

// Serve runs the hub and the HTTP server on ln until Shutdown is called
func (s *Server) Serve(ln net.Listener) error {
	if s.hub != nil {
		go s.hub.Run()
	}

	logging.For("API").Infof("Starting server on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Start listens on address and serves until Shutdown is called
func (s *Server) Start(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return s.Serve(ln)
}

// Shutdown gracefully shuts down the server with a timeout
func (s *Server) Shutdown(timeout time.Duration) error {
	// Stop the hub first so client connections close
	if s.hub != nil {
		s.hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logging.For("API").Info("Shutting down server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logging.For("API").Info("Server stopped")
	return nil
}

// Router returns the underlying Gin router for testing or extension
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}
