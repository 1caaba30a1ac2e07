// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package process manages the daemon's PID file and cross-platform
// liveness checks.
//
// Grounded on original_source/crates/core/mnem-core/src/process.rs
// (cross-platform PID liveness), reimplemented with gopsutil rather than
// hand-rolled per-OS syscalls, since gopsutil is the pack's own answer to
// the same problem (AKJUS-bsc-erigon go.mod).
package process

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// WritePIDFile atomically writes the current process id to path.
func WritePIDFile(path string) error {
	pid := os.Getpid()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("process: write pid file: %w", err)
	}
	return os.Rename(tmp, path)
}

// RemovePIDFile removes path, ignoring a not-exist error.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ReadPIDFile reads a PID previously written by WritePIDFile.
func ReadPIDFile(path string) (int32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("process: parse pid file: %w", err)
	}
	return int32(pid), nil
}

// IsRunning reports whether pid identifies a live, running process — not
// merely an id that happens to be reused by an unrelated process, since
// gopsutil's Process.IsRunning additionally checks process start time
// consistency where the platform exposes it.
func IsRunning(pid int32) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(pid)
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil {
		return exists
	}
	return running
}

// StaleLiveness reports whether the PID file at path refers to a process
// that is no longer running, meaning the file is safe to remove and a new
// daemon may start. It also returns true if no PID file exists.
func StaleLiveness(path string) bool {
	pid, err := ReadPIDFile(path)
	if err != nil {
		return true
	}
	return !IsRunning(pid)
}
