// Command scheduler runs the per-agent operation scheduler: the priority
// queue, the agent lock, the processor worker pool, and the optional admin
// HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/app"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/handlers"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/server"
)

func main() {
	configPath := os.Getenv("SCHEDULER_CONFIG")

	a, err := app.NewApp(configPath, handlers.Build())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		a.Logger.Fatal().Err(err).Msg("Failed to start processor")
	}

	srv := server.NewServer(a)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Fatal().Err(err).Msg("Admin HTTP server failed")
		}
	}()

	a.Logger.Info().
		Int("workers", a.Config.Queue.GetWorkers()).
		Str("addr", fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)).
		Msg("Scheduler ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("Admin HTTP server shutdown failed")
	}

	cancel()
	a.Close()

	common.PrintShutdownBanner(a.Logger)
}
