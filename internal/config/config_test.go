// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package config

import "testing"

func TestLoadDefaultsWhenAbsent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load() = %+v, want Default() = %+v", cfg, Default())
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.RetentionDays = 30
	cfg.IDE = "vscode"

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != cfg {
		t.Fatalf("Load() = %+v, want %+v", got, cfg)
	}
}

func TestValidateClampsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.RetentionDays = -5
	cfg.MaxFileSizeMB = 0
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RetentionDays != 0 {
		t.Fatalf("RetentionDays = %d, want 0", got.RetentionDays)
	}
	if got.MaxFileSizeMB != 20 {
		t.Fatalf("MaxFileSizeMB = %d, want default 20", got.MaxFileSizeMB)
	}
}
