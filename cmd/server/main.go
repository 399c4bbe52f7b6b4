// Package main is the entry point for the trading-assistant governance
// backbone: the daily signal pipeline, job scheduling, alert routing,
// license gating, audit trail, and strategy governance, exposed over
// HTTP for downstream execution tooling to consume.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/trading-assistant/internal/config"
	"github.com/aristath/trading-assistant/internal/di"
	"github.com/aristath/trading-assistant/internal/httpapi"
	"github.com/aristath/trading-assistant/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	log.Info().Msg("starting trading-assistant")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}
	defer container.Close()

	server := httpapi.New(httpapi.Config{
		Log:            log,
		Port:           cfg.Port,
		AuthEnabled:    cfg.AuthEnabled,
		AuthHeaderName: cfg.AuthHeaderName,
		AuthAPIKeys:    cfg.AuthAPIKeys,
	}, container)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("http server started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OpsSchedulerEnabled {
		go func() {
			if err := container.SchedulerWorker.RunForever(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler worker stopped")
			}
		}()
		log.Info().Msg("scheduler worker started")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
