// Package server wires HTTP handlers and middleware into the echo router for
// the phrase hat application.
package server

import (
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRoutes configures and returns the router with all application routes.
func (s *Server) SetupRoutes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// A panic in one request must not take down the listener.
	e.Use(middleware.Recover())
	e.Use(s.metrics.HTTP.Middleware())
	e.Use(requestLogger())
	if origins := s.origins.corsOrigins(); len(origins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
		}))
	}

	e.GET("/", HealthHandler)
	e.GET("/test", TestPageHandler)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.GET("/hello/from/warp", HelloHandler)
	e.GET("/sum/:a/:b", SumHandler)

	recording := []echo.MiddlewareFunc{
		middleware.BodyLimit(strconv.FormatInt(s.config.MaxBodyBytes, 10) + "B"),
	}
	if s.config.RateLimit.Enabled {
		recording = append(recording, newRateLimitMiddleware(s.config.RateLimit))
	}
	e.POST("/recordphrases", s.RecordPhrasesHandler, recording...)
	e.POST("/games/:gameId/:playerId/recordphrases", s.RecordPhrasesHandler, recording...)

	e.GET("/api/gamestate", s.GameStateHandler)
	e.GET("/api/gamestate/:gameId", s.GameStateHandler)
	e.GET("/api/stream/:gameId/:playerId/events", s.StreamHandler)
	e.GET("/api/ws/:gameId/:playerId", s.WebSocketHandler)

	return e
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				slog.Info("Request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Debug("Request served", attrs...)
			return nil
		},
	})
}
