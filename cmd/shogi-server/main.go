// Package main implements the shogi analysis gateway: a USI engine pool behind
// a RESTful API with streaming analysis, whole-game batch runs and optional
// account storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shogi/cmd/shogi-server/cli"
	"shogi/internal/server/config"
	"shogi/internal/server/engine"
	"shogi/internal/server/http"
	"shogi/internal/server/processor"
	"shogi/internal/server/service"
	"shogi/internal/server/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	gracefulShutdownTimeout = time.Second * 5

	devJWTSecret = "dev-secret-minimum-32-characters-long"
)

func main() {
	// Check for CLI database commands
	if len(os.Args) > 1 && os.Args[1] == "db" {
		if err := cli.Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "CLI error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var (
		configPath  = flag.String("config", "", "Optional YAML configuration file")
		envPath     = flag.String("env", ".env", "Optional dotenv file loaded before configuration")
		apiHost     = flag.String("api-host", "", "API server host (overrides API_HOST)")
		apiPort     = flag.Int("api-port", 0, "API server port (overrides API_PORT)")
		dev         = flag.Bool("dev", false, "Development mode (relaxed rate limits, console logs)")
		storagePath = flag.String("storage-path", "", "Path to SQLite database file (overrides STORAGE_PATH, persistence disabled if empty)")
		pidPath     = flag.String("pid", "", "Optional path to write PID file")
		pidLock     = flag.Bool("pid-lock", false, "Lock PID file to allow only one instance (requires -pid)")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envPath, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags win over file and environment
	if *apiHost != "" {
		cfg.Server.Host = *apiHost
	}
	if *apiPort != 0 {
		cfg.Server.Port = *apiPort
	}
	if *dev {
		cfg.Server.Dev = true
	}
	if *storagePath != "" {
		cfg.Storage.Path = *storagePath
	}

	setupLogging(cfg)

	if *pidLock && *pidPath == "" {
		log.Fatal().Msg("-pid-lock flag requires the -pid flag to be set")
	}

	if *pidPath != "" {
		pf, err := writePIDFile(*pidPath, *pidLock)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to write PID file")
		}
		defer pf.Release()
		log.Info().Str("path", *pidPath).Bool("lock", *pidLock).Msg("PID file created")
	}

	// 1. Storage (optional)
	var store *storage.Store
	if cfg.Storage.Path != "" {
		log.Info().Str("path", cfg.Storage.Path).Msg("initializing persistent storage")
		store, err = storage.NewStore(cfg.Storage.Path, cfg.Server.Dev)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize storage")
		}
		if err := store.InitDB(); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize schema")
		}
	} else {
		log.Info().Msg("persistent storage disabled (set STORAGE_PATH or -storage-path to enable)")
	}

	// 2. Accounts and tokens
	jwtSecret := []byte(cfg.Auth.JWTSecret)
	if len(jwtSecret) == 0 && cfg.Server.Dev {
		jwtSecret = []byte(devJWTSecret)
		log.Warn().Msg("using fixed JWT secret (dev mode)")
	}
	svc := service.New(store, jwtSecret)

	// 3. Engines and the processor that owns them
	logger := log.Logger
	sessionCfg := cfg.Engine.SessionConfig()
	proc := processor.New(processor.Config{
		Interactive:    engine.NewSession(cfg.Engine.ProcessOptions(processor.EngineInteractive, logger), sessionCfg),
		Batch:          engine.NewSession(cfg.Engine.ProcessOptions(processor.EngineBatch, logger), sessionCfg),
		Store:          store,
		Logger:         logger,
		DefaultDepth:   cfg.Engine.StreamDepth,
		DefaultMultiPV: cfg.Engine.MultiPV,
		QueueWorkers:   cfg.Engine.QueueWorkers,
		QueueSize:      cfg.Engine.QueueSize,
	})

	// 4. HTTP
	app := http.NewFiberApp(proc, svc, http.AppConfig{
		DevMode:      cfg.Server.Dev,
		AllowOrigins: cfg.Server.AllowOrigins,
	})

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		log.Info().
			Str("addr", "http://"+apiAddr).
			Str("engine", cfg.Engine.Command).
			Bool("dev", cfg.Server.Dev).
			Bool("auth", svc.AuthEnabled()).
			Bool("storage", store != nil).
			Msg("shogi gateway starting")

		if err := app.Listen(apiAddr); err != nil {
			log.Error().Err(err).Msg("API server listen error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()

	// Open streams only end once their engine search stops
	proc.Cancel("")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}

	if err := proc.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("processor close error")
	}

	if err := svc.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("service shutdown error")
	}

	log.Info().Msg("gateway exited")
}

// setupLogging configures the global zerolog logger
func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.Log.ZerologLevel())
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Log.Console || cfg.Server.Dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
