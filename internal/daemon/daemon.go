// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/strongdm/mnemosyne/internal/monitor"
	"github.com/strongdm/mnemosyne/internal/process"
	"github.com/strongdm/mnemosyne/internal/repository"
)

// blacklistedRoots are paths project/watch refuses to track, per spec
// §4.7 ("reject blacklisted paths (root, common system roots ...)").
var blacklistedRoots = map[string]bool{
	"/":     true,
	"/usr":  true,
	"/etc":  true,
	"/bin":  true,
	"/sbin": true,
	"/var":  true,
	"/dev":  true,
	"/proc": true,
	"/sys":  true,
}

// Start mints the auth token, persists it and the PID file, and leaves
// the daemon in Uninitialized — awaiting the first initialize RPC.
func (d *Daemon) Start() error {
	token, err := newToken()
	if err != nil {
		return err
	}
	if err := writeTokenFile(TokenPath(d.homeDir), token); err != nil {
		return err
	}
	d.mu.Lock()
	d.token = token
	d.startTime = time.Now()
	d.mu.Unlock()
	return process.WritePIDFile(PIDPath(d.homeDir))
}

// Token returns the daemon's current auth token.
func (d *Daemon) Token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// RestoreOnStart enumerates the project registry and re-watches every
// entry whose path still exists, per spec §4.7. Failures per project are
// logged and do not abort startup.
func (d *Daemon) RestoreOnStart() {
	for _, p := range d.reg.List() {
		if _, err := os.Stat(p.Path); err != nil {
			continue
		}
		if err := d.watchProject(p.Path, p.Name); err != nil {
			slog.Warn("[daemon] restore-on-start failed", "path", p.Path, "err", err)
		}
	}
}

// StartMaintenanceLoop runs Repository.RunGC on every registered
// Repository every cfg.MaintenanceInterval seconds, until ctx is
// cancelled, per spec §4.7's background maintenance task.
func (d *Daemon) StartMaintenanceLoop(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.maintenanceCancel = cancel
	d.mu.Unlock()

	interval := time.Duration(d.cfg.MaintenanceInterval) * time.Second
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.runMaintenancePass()
			}
		}
	}()
}

func (d *Daemon) runMaintenancePass() {
	d.mu.Lock()
	repos := make([]*repository.Repository, 0, len(d.projects))
	for _, p := range d.projects {
		repos = append(repos, p.repo)
	}
	d.mu.Unlock()

	for _, repo := range repos {
		if _, err := repo.RunGC(); err != nil {
			slog.Warn("[daemon] maintenance gc failed", "root", repo.Root, "err", err)
		}
	}
}

// watchProject opens (or no-ops on) a project, per spec §4.7's
// project/watch contract: reject blacklisted paths, no-op if already
// watched, otherwise open a Repository, spawn a blocking initial scan,
// then an async event loop.
func (d *Daemon) watchProject(absPath, name string) error {
	canon, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canon = absPath
	}
	if err := checkWatchable(canon); err != nil {
		return err
	}

	d.mu.Lock()
	if _, ok := d.projects[canon]; ok {
		d.mu.Unlock()
		return nil // no-op: already watched
	}
	d.mu.Unlock()

	proj, err := d.reg.Register(canon, name)
	if err != nil {
		return fmt.Errorf("daemon: register project: %w", err)
	}

	repo, err := repository.Open(canon, d.cfg)
	if err != nil {
		return fmt.Errorf("daemon: open repository: %w", err)
	}

	mon, err := monitor.New(canon, repo, d.cfg, GlobalMnemignorePath(d.homeDir))
	if err != nil {
		repo.Close()
		return fmt.Errorf("daemon: new monitor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &projectEntry{id: proj.ID, path: canon, repo: repo, mon: mon, cancel: cancel}

	d.mu.Lock()
	d.projects[canon] = entry
	d.mu.Unlock()

	go func() {
		if err := mon.InitialScan(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("[daemon] initial scan failed", "root", canon, "err", err)
		}
	}()
	go func() {
		if err := mon.Run(ctx); err != nil {
			slog.Warn("[daemon] monitor event loop exited", "root", canon, "err", err)
		}
	}()

	return nil
}

// unwatchProject stops watching absPath. Per spec §3's Project lifecycle
// ("removed on explicit forget") and §6's method list (no separate
// "forget" RPC exists), unwatch is this daemon's only access point for
// forgetting a project, so it also removes the registry entry.
func (d *Daemon) unwatchProject(absPath string) error {
	canon, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canon = absPath
	}

	d.mu.Lock()
	entry, ok := d.projects[canon]
	if ok {
		delete(d.projects, canon)
	}
	d.mu.Unlock()

	if !ok {
		return errProjectNotFound(absPath)
	}

	entry.cancel()
	entry.mon.Close()
	entry.repo.Close()
	d.cache = newHistoryCache()
	return d.reg.Forget(entry.id)
}

func checkWatchable(canon string) error {
	if blacklistedRoots[canon] {
		return fmt.Errorf("daemon: refusing to watch blacklisted path %s", canon)
	}
	parent := filepath.Dir(canon)
	if parent == canon {
		return fmt.Errorf("daemon: refusing to watch root-like path %s", canon)
	}
	return nil
}

// Shutdown transitions the daemon to Shutdown, cancels the maintenance
// loop, and stops every watched project's monitor and repository.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	d.state = Shutdown
	cancel := d.maintenanceCancel
	projects := d.projects
	d.projects = make(map[string]*projectEntry)
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, p := range projects {
		p.cancel()
		p.mon.Close()
		p.repo.Close()
	}

	_ = os.Remove(PIDPath(d.homeDir))
	_ = os.Remove(SocketPath(d.homeDir))
	_ = os.Remove(TokenPath(d.homeDir))
}
