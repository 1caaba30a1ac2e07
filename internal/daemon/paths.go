// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package daemon hosts the RPC endpoint, manages per-project Monitors,
// and enforces the lifecycle contract of spec §4.7: an explicit
// Uninitialized -> Initializing -> Initialized -> Shutdown state machine
// gating every method but the pre-init allowlist.
//
// Grounded on the teacher's clients/go/client.go connection-lifecycle
// bookkeeping (sessionID, closed flag, mutex-guarded state) and
// clients/go/reconnect.go's background-goroutine-per-concern shape,
// adapted from a single outbound connection to many inbound ones plus a
// pool of per-project background watchers.
package daemon

import (
	"os"
	"path/filepath"
)

// HomeDir returns the Mnemosyne installation root, <user-home>/.mnemosyne,
// creating it if absent.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".mnemosyne")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// SocketPath returns the endpoint path for the RPC transport. The same
// logical path names a Unix domain socket on Unix and would name a named
// pipe on Windows (not implemented here: the retrieval pack carries no
// named-pipe library, so this daemon targets Unix-domain sockets only).
func SocketPath(homeDir string) string {
	return filepath.Join(homeDir, "mnemd.sock")
}

// PIDPath returns the daemon's PID file path.
func PIDPath(homeDir string) string {
	return filepath.Join(homeDir, "mnemd.pid")
}

// TokenPath returns the process-local, user-readable file holding the
// daemon's current auth token.
func TokenPath(homeDir string) string {
	return filepath.Join(homeDir, "mnemd.token")
}

// LogDir returns the rolling-log directory.
func LogDir(homeDir string) string {
	return filepath.Join(homeDir, "logs")
}

// GlobalMnemignorePath returns the user-wide ignore file path.
func GlobalMnemignorePath(homeDir string) string {
	return filepath.Join(homeDir, ".mnemignore")
}
