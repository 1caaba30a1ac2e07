// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package config loads and atomically persists Mnemosyne's daemon
// configuration, stored as TOML at <home>/.mnemosyne/config.toml.
//
// Grounded on the Load/validate shape of the teacher's
// gateway/internal/config/config.go (defaulting plus validation of a flat
// options struct), translated from env-var parsing to TOML per spec §9's
// "configuration is a snapshot-loaded structure cached in memory; mutations
// go through a single-writer function that rewrites the file atomically".
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the recognized keys from spec §6.
type Config struct {
	RetentionDays       int    `toml:"retention_days"`
	CompressionEnabled  bool   `toml:"compression_enabled"`
	UseGitignore        bool   `toml:"use_gitignore"`
	UseMnemignore       bool   `toml:"use_mnemignore"`
	MaxFileSizeMB       int    `toml:"max_file_size_mb"`
	ThemeIndex          int    `toml:"theme_index"` // UI-collaborator only; core ignores it
	IDE                 string `toml:"ide"`          // UI-collaborator only; core ignores it
	MaintenanceInterval int    `toml:"maintenance_interval_seconds"`
}

// Default returns the configuration used when no config.toml exists yet.
func Default() Config {
	return Config{
		RetentionDays:       90,
		CompressionEnabled:  true,
		UseGitignore:        true,
		UseMnemignore:       true,
		MaxFileSizeMB:       20,
		MaintenanceInterval: 600,
	}
}

func path(homeDir string) string {
	return filepath.Join(homeDir, "config.toml")
}

// Load reads <homeDir>/config.toml, returning Default() if it does not
// exist yet. Unknown keys are ignored (forward compatibility, per spec §9).
func Load(homeDir string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path(homeDir))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return validate(cfg), nil
}

// Save atomically rewrites <homeDir>/config.toml via a temp-file-then-
// rename, the same durability idiom as the CAS and registry writers.
func Save(homeDir string, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", homeDir, err)
	}
	dst := path(homeDir)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("config: persist: %w", err)
	}
	return nil
}

func validate(cfg Config) Config {
	if cfg.RetentionDays < 0 {
		cfg.RetentionDays = 0
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 20
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = 600
	}
	return cfg
}
