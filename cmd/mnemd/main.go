// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Command mnemd is the Mnemosyne background daemon: it watches registered
// project directories and serves the mnem CLI's RPC requests over a local
// Unix domain socket.
//
// Grounded on clients/go/cmd/cxdb-fixtures/main.go's bare flag-based main —
// no cobra, no subcommands, since this process takes no interactive
// arguments beyond an optional --home override.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/strongdm/mnemosyne/internal/config"
	"github.com/strongdm/mnemosyne/internal/daemon"
	"github.com/strongdm/mnemosyne/internal/process"
	"github.com/strongdm/mnemosyne/internal/registry"
)

func main() {
	homeFlag := flag.String("home", "", "override the Mnemosyne home directory (default: ~/.mnemosyne)")
	flag.Parse()

	if err := run(*homeFlag); err != nil {
		slog.Error("[mnemd] fatal", "err", err)
		os.Exit(1)
	}
}

func run(homeOverride string) error {
	home, err := resolveHome(homeOverride)
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}

	cfg, err := config.Load(home)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.Open(home)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	if err := removeStaleSocket(home); err != nil {
		return err
	}

	d := daemon.New(home, cfg, reg)
	if err := d.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	d.RestoreOnStart()

	ctx, stopMaintenance := context.WithCancel(context.Background())
	defer stopMaintenance()
	d.StartMaintenanceLoop(ctx)

	ln, err := net.Listen("unix", daemon.SocketPath(home))
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}

	d.SetExitFunc(func() {
		ln.Close()
		os.Exit(0)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("[mnemd] received shutdown signal")
		d.Shutdown()
		ln.Close()
		os.Exit(0)
	}()

	slog.Info("[mnemd] listening", "socket", daemon.SocketPath(home), "home", home)
	d.Serve(ln)
	return nil
}

// resolveHome returns override if set (creating it if absent), else
// daemon.HomeDir()'s default.
func resolveHome(override string) (string, error) {
	if override == "" {
		return daemon.HomeDir()
	}
	if err := os.MkdirAll(override, 0o755); err != nil {
		return "", err
	}
	return override, nil
}

// removeStaleSocket clears a leftover socket file from an unclean exit, but
// refuses to do so while a live mnemd still holds the PID file, preventing
// two daemons from fighting over the same socket.
func removeStaleSocket(home string) error {
	if _, err := os.Stat(daemon.SocketPath(home)); err != nil {
		return nil
	}
	if !process.StaleLiveness(daemon.PIDPath(home)) {
		return fmt.Errorf("mnemd: another daemon instance appears to be running (pid file at %s)", daemon.PIDPath(home))
	}
	return os.Remove(daemon.SocketPath(home))
}
