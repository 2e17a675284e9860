// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config provides configuration management for dvrd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the YAML configuration structure.
type FileConfig struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	LibraryDir string `yaml:"libraryDir,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	ListenAddr string `yaml:"listenAddr,omitempty"`

	Recorder  RecorderConfig  `yaml:"recorder,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
}

// RecorderConfig holds capture and controller settings.
type RecorderConfig struct {
	FFmpegBin    string `yaml:"ffmpegBin,omitempty"`    // default "ffmpeg"
	StopTimeout  string `yaml:"stopTimeout,omitempty"`  // e.g. "10s"
	SpawnGrace   string `yaml:"spawnGrace,omitempty"`   // e.g. "2s"
	RetryError   *bool  `yaml:"retryError,omitempty"`   // retry ERROR recordings on later passes
	PurgeAfter   string `yaml:"purgeAfter,omitempty"`   // e.g. "2h"
}

// SchedulerConfig holds the periodic task schedule.
type SchedulerConfig struct {
	RecordingCron string `yaml:"recordingCron,omitempty"` // default "* * * * *"
	CleanupCron   string `yaml:"cleanupCron,omitempty"`   // default "*/5 * * * *"
	TaskRetention string `yaml:"taskRetention,omitempty"` // e.g. "5m"
}

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	DataDir    string
	LibraryDir string
	DBPath     string
	LogLevel   string
	ListenAddr string

	FFmpegBin   string
	StopTimeout time.Duration
	SpawnGrace  time.Duration
	RetryError  bool
	PurgeAfter  time.Duration

	RecordingCron string
	CleanupCron   string
	TaskRetention time.Duration
}

// Defaults returns the baseline configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:       "/var/lib/dvrd",
		LogLevel:      "info",
		ListenAddr:    ":8080",
		FFmpegBin:     "ffmpeg",
		StopTimeout:   10 * time.Second,
		SpawnGrace:    2 * time.Second,
		RetryError:    true,
		PurgeAfter:    2 * time.Hour,
		RecordingCron: "* * * * *",
		CleanupCron:   "*/5 * * * *",
		TaskRetention: 5 * time.Minute,
	}
}

// Load reads the optional YAML file at path, applies environment overrides
// and validates the result. An empty path skips the file layer.
func Load(path string) (AppConfig, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		var fc FileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := applyFile(&cfg, fc); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.LibraryDir == "" {
		cfg.LibraryDir = filepath.Join(cfg.DataDir, "library")
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, "dvrd.db")

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFile(cfg *AppConfig, fc FileConfig) error {
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.LibraryDir != "" {
		cfg.LibraryDir = fc.LibraryDir
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.Recorder.FFmpegBin != "" {
		cfg.FFmpegBin = fc.Recorder.FFmpegBin
	}
	if err := applyDuration(&cfg.StopTimeout, fc.Recorder.StopTimeout, "recorder.stopTimeout"); err != nil {
		return err
	}
	if err := applyDuration(&cfg.SpawnGrace, fc.Recorder.SpawnGrace, "recorder.spawnGrace"); err != nil {
		return err
	}
	if err := applyDuration(&cfg.PurgeAfter, fc.Recorder.PurgeAfter, "recorder.purgeAfter"); err != nil {
		return err
	}
	if fc.Recorder.RetryError != nil {
		cfg.RetryError = *fc.Recorder.RetryError
	}
	if fc.Scheduler.RecordingCron != "" {
		cfg.RecordingCron = fc.Scheduler.RecordingCron
	}
	if fc.Scheduler.CleanupCron != "" {
		cfg.CleanupCron = fc.Scheduler.CleanupCron
	}
	if err := applyDuration(&cfg.TaskRetention, fc.Scheduler.TaskRetention, "scheduler.taskRetention"); err != nil {
		return err
	}
	return nil
}

func applyDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.DataDir = envString("DVRD_DATA", cfg.DataDir)
	cfg.LibraryDir = envString("DVRD_LIBRARY", cfg.LibraryDir)
	cfg.LogLevel = envString("DVRD_LOG_LEVEL", cfg.LogLevel)
	cfg.ListenAddr = envString("DVRD_LISTEN", cfg.ListenAddr)
	cfg.FFmpegBin = envString("DVRD_FFMPEG", cfg.FFmpegBin)
	cfg.RetryError = envBool("DVRD_RETRY_ERROR", cfg.RetryError)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg AppConfig) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	if cfg.StopTimeout <= 0 {
		return fmt.Errorf("recorder.stopTimeout must be positive")
	}
	if cfg.SpawnGrace <= 0 {
		return fmt.Errorf("recorder.spawnGrace must be positive")
	}
	if cfg.PurgeAfter < 0 {
		return fmt.Errorf("recorder.purgeAfter must not be negative")
	}
	if cfg.TaskRetention <= 0 {
		return fmt.Errorf("scheduler.taskRetention must be positive")
	}
	return nil
}
