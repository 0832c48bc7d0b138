// Command courseforge-api exposes the course pipeline over HTTP: text
// extraction, course generation, and publishing to the course platform.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"courseforge/internal/config"
	"courseforge/internal/drafter"
	"courseforge/internal/imaging"
	"courseforge/internal/logging"
	"courseforge/internal/storage"
)

const shutdownGrace = 10 * time.Second

func main() {
	logging.Init()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	ctx := context.Background()
	a := &app{cfg: cfg, tokens: &tokenStore{}}

	if cfg.GeminiAPIKey != "" {
		gen, err := drafter.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create language-model client")
		}
		a.generator = gen
	}
	if cfg.IdeogramAPIKey != "" {
		store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		a.images = imaging.NewPersistenceClient(imaging.NewIdeogramClient(cfg.IdeogramAPIKey), store)
	}
	if cfg.PlatformToken != "" {
		a.tokens.Set(cfg.PlatformToken)
	}

	logging.NewStartupLogger("courseforge-api").
		Bucket("assets", cfg.S3Bucket).
		Endpoint("platform", cfg.PlatformBaseURL).
		Feature("drafting", a.generator != nil).
		Feature("imaging", a.images != nil).
		Config("model", cfg.GeminiModel).
		InitDuration(time.Since(start)).
		Log()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      newRouter(a),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // generation requests are slow
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		srv.Close()
	}
	log.Info().Msg("Server stopped")
}
