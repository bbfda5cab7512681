// Package server exposes HTTP handlers: phrase recording, the event stream,
// the arithmetic echo, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Tyrowin/phrasehat/internal/game"
	"github.com/Tyrowin/phrasehat/internal/hub"
)

const (
	phrasesRecordedReply = "phrases recorded"
	// hatVersionHeader carries the snapshot version, matching the event id
	// on the stream.
	hatVersionHeader = "X-Hat-Version"
)

// RecordPhrasesHandler appends the posted phrases to the hat and broadcasts the
// new hat. The acknowledgement is the same whether zero or many streams were
// reached.
func (s *Server) RecordPhrasesHandler(c echo.Context) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, s.config.MaxBodyBytes)

	msg, err := decodeRecordPhrases(body)
	if err != nil {
		return bodyError(err)
	}

	s.recorder.Record(c.Param("gameId"), c.Param("playerId"), msg.Phrases)
	return c.HTML(http.StatusOK, phrasesRecordedReply)
}

func bodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &maxBytesErr):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large").SetInternal(err)
	case errors.As(err, &httpErr):
		return httpErr
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
}

// StreamHandler opens a Server-Sent Events stream that relays every hat
// broadcast made after the client connected. The stream ends when the client
// goes away, a write fails, or the hub shuts down.
func (s *Server) StreamHandler(c echo.Context) error {
	sub := s.hub.Register(c.Param("gameId"), c.Param("playerId"))
	s.metrics.StreamsOpened.WithLabelValues("sse").Inc()
	defer s.endStream(sub)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	ticker := s.clock.NewTicker(s.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Ready():
			if err := s.writePendingEvents(res, sub); err != nil {
				slog.Debug("Stream write failed", "subscription_id", sub.ID().String(), "error", err)
				return nil
			}
		case <-ticker.Chan():
			if _, err := fmt.Fprint(res, ":\n\n"); err != nil {
				slog.Debug("Keep-alive write failed", "subscription_id", sub.ID().String(), "error", err)
				return nil
			}
			res.Flush()
		case <-sub.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// writePendingEvents drains sub, writing one event per snapshot.
func (s *Server) writePendingEvents(res *echo.Response, sub *hub.Subscription) error {
	for {
		snap, ok := sub.TryNext()
		if !ok {
			return nil
		}
		if err := writeEvent(res, snap); err != nil {
			return err
		}
		res.Flush()
	}
}

func writeEvent(res *echo.Response, snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := fmt.Fprintf(res, "id: %d\ndata: %s\n\n", snap.Version, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// endStream releases the consumer side of sub. Unless eager reaping is
// enabled the registry entry stays until the next broadcast fails on it.
func (s *Server) endStream(sub *hub.Subscription) {
	sub.Close()
	if s.config.EagerReap {
		s.hub.Remove(sub)
	}
	slog.Info("Client stream closed",
		"subscription_id", sub.ID().String(),
		"game_id", sub.GameID(),
		"player_id", sub.PlayerID(),
	)
}

// GameStateHandler returns the current hat. Streams never replay history, so
// clients read this once on connect. The optional game id is ignored: every
// game shares one hat.
func (s *Server) GameStateHandler(c echo.Context) error {
	snap := s.state.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	c.Response().Header().Set(hatVersionHeader, strconv.FormatUint(snap.Version, 10))
	return c.JSONBlob(http.StatusOK, data)
}

// SumHandler echoes the sum of two unsigned 32-bit path parameters.
func SumHandler(c echo.Context) error {
	a, err := strconv.ParseUint(c.Param("a"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid operand a").SetInternal(err)
	}
	b, err := strconv.ParseUint(c.Param("b"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid operand b").SetInternal(err)
	}
	return c.String(http.StatusOK, fmt.Sprintf("%d + %d = %d", a, b, a+b))
}

// HelloHandler returns a static greeting.
func HelloHandler(c echo.Context) error {
	return c.String(http.StatusOK, "Hello from warp!")
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "Phrase hat server is running!")
}

// TestPageHandler serves an HTML page that subscribes to the event stream and
// posts phrases, for trying the server from a browser.
func TestPageHandler(c echo.Context) error {
	return c.HTML(http.StatusOK, testPageHTML)
}
