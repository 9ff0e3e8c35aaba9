package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/cazapp/famicall/internal/adapters/http"
	signaladapter "github.com/cazapp/famicall/internal/adapters/signal"
	"github.com/cazapp/famicall/internal/app"
	"github.com/cazapp/famicall/internal/auth"
	"github.com/cazapp/famicall/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("secret must be set; refusing to accept unauthenticated sessions")
	}

	presence := app.NewPresence()
	rooms := app.NewRooms()
	resolver := auth.NewJWTResolver(cfg.Secret)

	ctl := signaladapter.NewController(presence, rooms)
	ctl.SendBuffer = cfg.SendBuffer
	ctl.ReadLimit = cfg.ReadLimit

	r := router.SetupRouter(ctx, cfg, resolver, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Famicall signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
