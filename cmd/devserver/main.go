package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/shopbook/internal/config"
	"github.com/erauner12/shopbook/internal/devserver"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg, "shopbook-devserver")

	if !cfg.IsDev() && cfg.Dev.JWTSecret == "dev-secret-change-in-production" {
		log.Warn().Msg("dev server is using the default JWT secret - set DEVSERVER_JWT_SECRET when exposing it beyond localhost")
	}

	srv := devserver.New(devserver.Config{
		JWTSecret: cfg.Dev.JWTSecret,
		TokenTTL:  cfg.Dev.TokenTTL,
	})

	httpServer := &http.Server{
		Addr:         cfg.Dev.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Dev.Addr).
			Dur("tokenTTL", cfg.Dev.TokenTTL).
			Str("login", devserver.SeedOwnerUsername+"/"+devserver.SeedPassword).
			Msg("starting dev server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
