package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/phrasehat/internal/logging"
	"github.com/Tyrowin/phrasehat/internal/server"
)

func main() {
	config, err := server.NewConfigFromEnv()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(config.LogLevel, config.LogFormat)
	slog.Info("Starting phrase hat server...", "addr", config.Address())

	if err := run(config); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func run(config *server.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(config, clockwork.NewRealClock())
	httpServer := server.CreateServer(config.Address(), srv.Handler())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		// Streams never go idle, so end them before waiting on the listener.
		if err := srv.Shutdown(config.ShutdownTimeout); err != nil {
			slog.Warn("Stream shutdown incomplete", "error", err)
		}
		return server.ShutdownServer(httpServer, config.ShutdownTimeout)
	})

	return g.Wait()
}
