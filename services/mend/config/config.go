// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the mend service configuration from an optional
// YAML file, applies environment overrides, and validates the result.
//
// Precedence, lowest to highest: defaults, YAML file, environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig covers the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the host:port the daemon binds.
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// ProjectConfig locates the codebase being mended.
type ProjectConfig struct {
	// Root is the absolute directory all fix targets must live under.
	Root string `yaml:"root" validate:"required"`

	// BackupDir optionally receives ".bak" copies before files are
	// modified.
	BackupDir string `yaml:"backup_dir"`
}

// PipelineConfig tunes fix attempts.
type PipelineConfig struct {
	// MaxAttempts bounds failed fix attempts per error.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1"`

	// GenerationTimeout bounds each external generator call.
	GenerationTimeout Duration `yaml:"generation_timeout"`

	// ScheduleInterval is how often the registry sweeps for records in
	// New and dispatches them.
	ScheduleInterval Duration `yaml:"schedule_interval"`

	// IncludeFileContent sends the target file's content to the
	// generator.
	IncludeFileContent bool `yaml:"include_file_content"`

	// VerifyCommand, when set, runs after each applied fix with "{}"
	// replaced by the target path. Exit status decides verification.
	VerifyCommand []string `yaml:"verify_command"`
}

// ThresholdConfig tunes the adaptive resource limits.
type ThresholdConfig struct {
	// WindowSize is the per-key usage sample window.
	WindowSize int `yaml:"window_size" validate:"gte=1"`

	// AdjustInterval is the adjustment cycle period.
	AdjustInterval Duration `yaml:"adjust_interval"`

	// DefaultMemoryMB, DefaultQuota and DefaultLatency seed thresholds
	// for keys that have never been set.
	DefaultMemoryMB float64  `yaml:"default_memory_mb" validate:"gt=0"`
	DefaultQuota    float64  `yaml:"default_quota" validate:"gt=0"`
	DefaultLatency  Duration `yaml:"default_latency"`
}

// WatcherConfig tunes defect detection from filesystem events.
type WatcherConfig struct {
	// Enabled turns the file watcher on.
	Enabled bool `yaml:"enabled"`

	// Extensions limits detection to matching suffixes.
	Extensions []string `yaml:"extensions"`

	// IgnoreDirs are directory names excluded from the watch tree.
	IgnoreDirs []string `yaml:"ignore_dirs"`

	// Debounce is the per-path quiet period before detection runs.
	Debounce Duration `yaml:"debounce"`
}

// LoggingConfig tunes structured log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is json or text.
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Project   ProjectConfig   `yaml:"project"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Threshold ThresholdConfig `yaml:"threshold"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the baseline configuration. Project.Root has no
// sensible default and must come from the file or environment.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8844",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:       3,
			GenerationTimeout: Duration(60 * time.Second),
			ScheduleInterval:  Duration(time.Second),
		},
		Threshold: ThresholdConfig{
			WindowSize:      100,
			AdjustInterval:  Duration(30 * time.Second),
			DefaultMemoryMB: 256,
			DefaultQuota:    1,
			DefaultLatency:  Duration(30 * time.Second),
		},
		Watcher: WatcherConfig{
			Debounce: Duration(500 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective configuration.
//
// # Inputs
//
//   - path: YAML file path. Empty skips the file layer; a missing file
//     at a non-empty path is an error.
//
// # Outputs
//
//   - Config: Validated effective configuration.
//   - error: File, parse or validation failure.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv layers MEND_* environment overrides on top.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MEND_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("MEND_PROJECT_ROOT"); v != "" {
		cfg.Project.Root = v
	}
	if v := os.Getenv("MEND_BACKUP_DIR"); v != "" {
		cfg.Project.BackupDir = v
	}
	if v := os.Getenv("MEND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MEND_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MEND_WATCHER_ENABLED"); v != "" {
		cfg.Watcher.Enabled = v == "true" || v == "1"
	}
}
