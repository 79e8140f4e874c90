package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/focushub/go/internal/dbconfig"
	"github.com/mcdev12/focushub/go/internal/gateway"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/mcdev12/focushub/go/internal/store/memory"
	"github.com/mcdev12/focushub/go/internal/store/natsjs"
	"github.com/mcdev12/focushub/go/internal/store/postgres"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig(getEnv("FOCUSHUB_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomStore, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to set up store")
	}
	defer roomStore.Close()

	log.Info().
		Str("backend", cfg.Store.Backend).
		Str("addr", cfg.Server.Addr).
		Int("timer_seconds", cfg.Timer.DurationSeconds).
		Msg("starting focushub")

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.TimerDuration = cfg.TimerDuration()
	gatewayService := gateway.NewService(roomStore, gatewayConfig)

	server := setupServer(cfg.Server.Addr, gatewayService)

	// Start gateway service (owns websocket connections)
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancel service context to tear down websocket connections
	cancel()

	// Give sessions time to clean up
	time.Sleep(1 * time.Second)

	log.Info().Msg("focushub shutdown complete")
}

func setupStore(ctx context.Context, cfg *Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(), nil

	case "nats":
		natsCfg := natsjs.DefaultConfig()
		natsCfg.URL = cfg.Store.NATS.URL
		natsCfg.Stream = cfg.Store.NATS.Stream
		natsCfg.Subject = cfg.Store.NATS.Subject
		natsCfg.Bucket = cfg.Store.NATS.Bucket
		return natsjs.New(ctx, natsCfg)

	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		return postgres.New(ctx, dbCfg.DSN())

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
