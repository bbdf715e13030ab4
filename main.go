package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"nextmeeting_server/adapter/in/socket"
	"nextmeeting_server/config"
	"nextmeeting_server/infra/supervision"
	"nextmeeting_server/internal/bootstrap"
	"nextmeeting_server/pkg/logger"
)

func main() {
	// Load .env if present (local development) before reading config.
	godotenv.Load()

	mode := flag.String("mode", "daemon", "Run mode: daemon, auth")
	logLevel := flag.String("log-level", "", "Override NM_LOG_LEVEL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Service: "nextmeeting"}).Fatal().Err(err).Msg("failed to load config")
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Service: "nextmeeting"})

	switch *mode {
	case "daemon":
		runDaemon(cfg, log)
	case "auth":
		if err := bootstrap.RunAuth(context.Background(), cfg, log); err != nil {
			log.Fatal().Err(err).Msg("authorization failed")
		}
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

func runDaemon(cfg *config.Config, log zerolog.Logger) {
	daemon, err := bootstrap.NewDaemon(cfg, log)
	if err != nil {
		switch {
		case errors.Is(err, socket.ErrSocketInUse):
			log.Error().Err(err).Msg("another daemon owns the socket")
		case errors.Is(err, supervision.ErrAlreadyRunning):
			log.Error().Err(err).Msg("another daemon is already running")
		default:
			log.Error().Err(err).Msg("failed to start daemon")
		}
		os.Exit(1)
	}

	if err := daemon.Run(); err != nil {
		log.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}
