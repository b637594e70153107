// Package main is the entry point for the advisor service.
// It scores risk questionnaires, estimates a fund universe from market data and
// serves the portfolio that maximizes each investor's utility.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/di"
	"github.com/aristath/advisor/internal/server"
	"github.com/aristath/advisor/pkg/logger"
)

// warmTimeout bounds the startup cache warm
const warmTimeout = 5 * time.Minute

// main is the application entry point. It orchestrates the startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes logging
// 3. Loads and cross-checks the questionnaire, profile, fund and optimization documents
// 4. Wires databases, price tiers, the advisor engine and background jobs
// 5. Starts the HTTP server and the scheduler, then warms the price cache
// 6. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting advisor")

	// Any document error is fatal: serving with a partial configuration is never attempted
	docs, err := config.LoadDocuments(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration documents")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, jobs, err := di.Wire(ctx, cfg, docs, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		DataDir:     cfg.DataDir,
		CORSOrigins: cfg.CORSOrigins,
		Advisor:     container.Engine,
		CacheDB:     container.CacheDB,
		Cache:       container.ClientData,
		Scheduler:   container.Scheduler,
	})
	srv.SetJobs(jobs.All()...)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	// Warm the price cache in the background so the first request rarely waits on a live fetch
	go func() {
		warmCtx, warmCancel := context.WithTimeout(ctx, warmTimeout)
		defer warmCancel()
		res, err := container.Prices.Warm(warmCtx, docs.Universe.Funds)
		if err != nil {
			log.Warn().Err(err).Msg("Startup cache warm incomplete")
			return
		}
		log.Info().Interface("result", res).Msg("Startup cache warm finished")
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
