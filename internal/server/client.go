// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/phrasehat/internal/game"
	"github.com/Tyrowin/phrasehat/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one WebSocket connection. It receives hat snapshots like an SSE
// stream and may also record phrases by sending RecordPhrasesMessage frames.
type Client struct {
	conn           *websocket.Conn
	sub            *hub.Subscription
	server         *Server
	addr           string
	maxMessageSize int64
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
	readDone       chan struct{}
}

func newClient(conn *websocket.Conn, sub *hub.Subscription, s *Server, addr string) *Client {
	conn.SetReadLimit(s.config.MaxBodyBytes)

	client := &Client{
		conn:           conn,
		sub:            sub,
		server:         s,
		addr:           addr,
		maxMessageSize: s.config.MaxBodyBytes,
		rateLimit:      s.config.RateLimit,
		readDone:       make(chan struct{}),
	}
	if s.config.RateLimit.Enabled {
		client.rateLimiter = newRateLimiter(s.config.RateLimit)
	}
	return client
}

// WebSocketHandler upgrades the request, registers a subscription for the
// connection and starts its read/write pumps.
func (s *Server) WebSocketHandler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		slog.Warn("WebSocket upgrade failed", "remote_addr", c.RealIP(), "error", err)
		return nil
	}

	sub := s.hub.Register(c.Param("gameId"), c.Param("playerId"))
	s.metrics.StreamsOpened.WithLabelValues("websocket").Inc()
	client := newClient(conn, sub, s, c.RealIP())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
	return nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("Error setting initial read deadline", "remote_addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("Error setting read deadline in pong handler", "remote_addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs the reason the read loop is ending.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("Message exceeded maximum size", "remote_addr", c.addr, "max_bytes", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		slog.Info("Client disconnected", "remote_addr", c.addr, "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		slog.Info("Client connection closed", "remote_addr", c.addr, "reason", err)
	default:
		slog.Warn("WebSocket read error", "remote_addr", c.addr, "error", err)
	}
}

// checkRateLimit reports whether the next message may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		slog.Warn("Rate limit exceeded; discarding message",
			"remote_addr", c.addr,
			"burst", c.rateLimit.Burst,
			"refill_interval", c.rateLimit.RefillInterval,
		)
		return false
	}
	return true
}

// processMessage records the phrases carried by a raw message. Malformed
// messages are logged and dropped.
func (c *Client) processMessage(rawMessage []byte) bool {
	msg, err := decodeRecordPhrases(bytes.NewReader(rawMessage))
	if err != nil {
		slog.Warn("Invalid message", "remote_addr", c.addr, "error", err)
		return false
	}

	c.server.recorder.Record(c.sub.GameID(), c.sub.PlayerID(), msg.Phrases)
	return true
}

func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in readPump", "remote_addr", c.addr, "panic", r)
		}
		close(c.readDone)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := c.server.clock.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in writePump", "remote_addr", c.addr, "panic", r)
		}
		ticker.Stop()
		c.server.endStream(c.sub)
		c.closeConnection()
	}()

	for {
		select {
		case <-c.sub.Ready():
			if !c.writePending() {
				return
			}
		case <-ticker.Chan():
			if !c.handlePing() {
				return
			}
		case <-c.sub.Done():
			c.writeCloseMessage()
			return
		case <-c.readDone:
			return
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("Error closing connection", "remote_addr", c.addr, "error", err)
		}
	}
}

// writePending sends every queued snapshot and returns false if the
// connection should be closed.
func (c *Client) writePending() bool {
	for {
		snap, ok := c.sub.TryNext()
		if !ok {
			return true
		}
		if !c.writeSnapshot(snap) {
			return false
		}
	}
}

func (c *Client) writeSnapshot(snap game.Snapshot) bool {
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Error encoding snapshot", "version", snap.Version, "error", err)
		return false
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("Error setting write deadline", "remote_addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("Error writing message", "remote_addr", c.addr, "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client
func (c *Client) writeCloseMessage() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("Error writing close message", "remote_addr", c.addr, "error", err)
		}
	}
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("Error setting write deadline for ping", "remote_addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		slog.Warn("Error writing ping message", "remote_addr", c.addr, "error", err)
		return false
	}
	return true
}
