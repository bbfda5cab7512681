// Package server implements the HTTP server functionality for the phrase hat
// server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/phrasehat/internal/game"
	"github.com/Tyrowin/phrasehat/internal/hub"
	"github.com/Tyrowin/phrasehat/internal/metrics"
)

// Server owns the shared hat, the subscription hub and the HTTP router. Every
// instance is independent, so tests can build as many as they need.
type Server struct {
	echo     *echo.Echo
	config   Config
	state    *game.State
	hub      *hub.Hub
	recorder *Recorder
	metrics  *metrics.Metrics
	clock    clockwork.Clock
	origins  *originPolicy
	upgrader websocket.Upgrader

	// wg tracks WebSocket pump goroutines, which outlive their handler.
	wg sync.WaitGroup
}

// NewServer builds a Server from cfg. A nil clock means the real clock.
func NewServer(cfg *Config, clock clockwork.Clock) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sanitized := sanitizeConfig(*cfg)

	m := metrics.New(prometheus.NewRegistry())
	state := game.NewState()
	h := hub.New(hub.Options{BufferSize: sanitized.StreamBufferSize}, m)

	s := &Server{
		config:   sanitized,
		state:    state,
		hub:      h,
		recorder: NewRecorder(state, h, m),
		metrics:  m,
		clock:    clock,
		origins:  newOriginPolicy(sanitized.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.echo = s.SetupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config { return s.config }

// State returns the shared hat.
func (s *Server) State() *game.State { return s.state }

// Hub returns the subscription registry.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Shutdown ends every stream and waits for WebSocket pumps to exit, up to
// timeout. It is meant to run before (or alongside) http.Server.Shutdown,
// which does not wait for hijacked connections and never sees SSE streams
// go idle.
func (s *Server) Shutdown(timeout time.Duration) error {
	slog.Info("Initiating stream shutdown...")
	s.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Stream shutdown completed successfully")
		return nil
	case <-s.clock.After(timeout):
		slog.Warn("Stream shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
