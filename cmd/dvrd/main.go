// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ManuGH/dvrd/internal/capture"
	"github.com/ManuGH/dvrd/internal/config"
	dvrdlog "github.com/ManuGH/dvrd/internal/log"
	"github.com/ManuGH/dvrd/internal/recorder"
	"github.com/ManuGH/dvrd/internal/store"
	"github.com/ManuGH/dvrd/internal/tasks"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the real config is loaded.
	dvrdlog.Configure(dvrdlog.Config{
		Level:   "info",
		Service: "dvrd",
		Version: version,
	})
	logger := dvrdlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit --config wins; otherwise pick up ${DVRD_DATA}/config.yaml when
	// it exists.
	effectivePath := *configPath
	if effectivePath == "" {
		dataDir := os.Getenv("DVRD_DATA")
		if dataDir == "" {
			dataDir = config.Defaults().DataDir
		}
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	cfg, err := config.Load(effectivePath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	dvrdlog.Configure(dvrdlog.Config{
		Level:   cfg.LogLevel,
		Service: "dvrd",
		Version: version,
	})

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting dvrd")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Library: %s", cfg.LibraryDir)
	logger.Info().Msgf("→ Capture: %s (stop timeout %s)", cfg.FFmpegBin, cfg.StopTimeout)

	for _, dir := range []string{cfg.DataDir, cfg.LibraryDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Str("path", cfg.DBPath).
			Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("database close failed")
		}
	}()

	shows := store.NewMediaFactory(db, cfg.LibraryDir)
	supervisor := capture.NewSupervisor(cfg.FFmpegBin, cfg.SpawnGrace)
	controller := recorder.NewController(db, shows, supervisor, cfg.StopTimeout)
	manager := recorder.NewManager(db, controller, recorder.ManagerConfig{
		Purge:      cfg.PurgeAfter > 0,
		PurgeAfter: cfg.PurgeAfter,
		RetryError: cfg.RetryError,
	})
	registry := tasks.NewRegistry()
	runner := tasks.NewRunner(registry)
	if err := runner.Register(cfg.RecordingCron, manager); err != nil {
		logger.Fatal().Err(err).Msg("invalid recording schedule")
	}
	cleanup := &tasks.CleanupTask{Registry: registry, Retention: cfg.TaskRetention}
	if err := runner.Register(cfg.CleanupCron, cleanup); err != nil {
		logger.Fatal().Err(err).Msg("invalid cleanup schedule")
	}
	runner.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(ctx, db, registry, runner, manager, cleanup),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	logger.Info().Msg("dvrd exiting")
}
