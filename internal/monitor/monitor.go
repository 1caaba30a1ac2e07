// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package monitor implements the per-project filesystem watcher:
// recursive directory monitoring with debouncing, ignore-rules, symlink
// containment, binary-file detection, size caps, and backpressure under
// event storms, feeding changed files into a Repository.
//
// Grounded on the teacher's clients/go/fstree/capture.go buildTree
// (batched parallel walk, cycle detection via a visited-path map),
// generalized from a one-shot snapshot walk into a continuously running
// watch loop.
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/strongdm/mnemosyne/internal/config"
	"github.com/strongdm/mnemosyne/internal/repository"
)

// initialScanBatchSize is the size of each data-parallel batch during the
// initial project scan, per spec §4.6.
const initialScanBatchSize = 100

// Monitor watches one project root and feeds changed files into its
// Repository.
type Monitor struct {
	root   string // canonicalized project root
	repo   *repository.Repository
	cfg    config.Config
	ignore *IgnoreSet

	watcher *fsnotify.Watcher
	deb     *debouncer
}

// New constructs a Monitor for root, backed by repo, configured by cfg.
// globalMnemignorePath is the user-wide ignore file (<home>/.mnemignore).
func New(root string, repo *repository.Repository, cfg config.Config, globalMnemignorePath string) (*Monitor, error) {
	canon, err := filepath.EvalSymlinks(root)
	if err != nil {
		canon = root
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("monitor: new watcher: %w", err)
	}
	m := &Monitor{
		root:    canon,
		repo:    repo,
		cfg:     cfg,
		ignore:  LoadIgnoreSet(canon, globalMnemignorePath, cfg.UseGitignore, cfg.UseMnemignore),
		watcher: watcher,
	}
	m.deb = newDebouncer(func(n int) {
		slog.Warn("[monitor] debounce map exceeded capacity, dropping", "root", m.root, "entries", n)
	})
	return m, nil
}

// Close stops the underlying fsnotify watcher.
func (m *Monitor) Close() error {
	return m.watcher.Close()
}

// InitialScan walks the project root respecting ignore rules, processing
// files in parallel batches of 100, per spec §4.6.
func (m *Monitor) InitialScan(ctx context.Context) error {
	var paths []string
	err := filepath.WalkDir(m.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // swallow per-entry walk errors, keep scanning
		}
		rel, relErr := filepath.Rel(m.root, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			if d.IsDir() {
				m.watchDir(path)
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if m.ignore.ShouldIgnore(rel) {
				return filepath.SkipDir
			}
			m.watchDir(path)
			return nil
		}
		if m.ignore.ShouldIgnore(rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("monitor: initial scan: %w", err)
	}

	for start := 0; start < len(paths); start += initialScanBatchSize {
		end := start + initialScanBatchSize
		if end > len(paths) {
			end = len(paths)
		}
		var wg sync.WaitGroup
		for _, p := range paths[start:end] {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.processFile(p)
			}()
		}
		wg.Wait()
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func (m *Monitor) watchDir(path string) {
	if err := m.watcher.Add(path); err != nil {
		slog.Warn("[monitor] failed to watch directory", "path", path, "err", err)
	}
}

// Run subscribes to recursive filesystem events and drives the debounced
// event loop until ctx is cancelled. It never returns a non-nil error for
// per-file failures — those are logged, not propagated, per spec §4.6/§7.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			m.handleEvent(ev)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[monitor] watcher error", "root", m.root, "err", err)
		case now := <-ticker.C:
			for _, path := range m.deb.DrainExpired(now) {
				go m.processFile(path)
			}
		}
	}
}

func (m *Monitor) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(m.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if m.ignore.ShouldIgnore(rel) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			m.watchDir(ev.Name)
			return
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	m.deb.Touch(ev.Name)
}

// processFile applies the per-file checks of spec §4.6 and, if they all
// pass, records a snapshot. Every failure is logged and swallowed so one
// bad file never stops the watcher.
func (m *Monitor) processFile(absPath string) {
	canon, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canon = absPath
	}
	rel, err := filepath.Rel(m.root, canon)
	if err != nil || hasDotDotPrefix(rel) {
		slog.Warn("[monitor] path escapes project root, skipping", "path", absPath)
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return // file vanished between event and processing; not an error
	}
	if info.IsDir() {
		return
	}
	maxBytes := int64(m.cfg.MaxFileSizeMB) * 1024 * 1024
	if info.Size() > maxBytes {
		return
	}

	if looksBinary(absPath) {
		return
	}

	if _, _, err := m.repo.SaveSnapshotFromFile(absPath, ""); err != nil {
		slog.Warn("[monitor] save_snapshot failed", "path", absPath, "err", err)
	}
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) >= 3 && rel[:3] == "../"
}

// looksBinary sniffs the first 1 KiB of path for a NUL byte, the
// conventional binary-content signal.
func looksBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true // unreadable: treat conservatively as binary/skip
	}
	defer f.Close()

	buf := make([]byte, 1024)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}
