// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/mnemosyne/internal/config"
	"github.com/strongdm/mnemosyne/internal/monitor"
	"github.com/strongdm/mnemosyne/internal/registry"
	"github.com/strongdm/mnemosyne/internal/repository"
)

// InitState is one state of the lifecycle machine in spec §4.7.
type InitState int32

const (
	Uninitialized InitState = iota
	Initializing
	Initialized
	Shutdown
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// projectEntry bundles the live state for one watched project: its
// Repository, its Monitor, and the cancellation hook for the Monitor's
// event loop goroutine. Per spec §3's DaemonState invariant, an entry
// exists in Daemon.projects iff both its repo and monitor are present.
type projectEntry struct {
	id     string
	path   string // canonicalized absolute path
	repo   *repository.Repository
	mon    *monitor.Monitor
	cancel context.CancelFunc
}

// counters mirrors spec §3's DaemonState counters, kept with atomics
// since they are updated from every connection's goroutine.
type counters struct {
	totalRequests       atomic.Int64
	totalProcessingUs   atomic.Int64
	totalSaves          atomic.Int64
	totalSaveTimeUs     atomic.Int64
}

// Daemon holds all process-wide state: the lifecycle machine, the auth
// token, every watched project's Repository/Monitor, the history cache,
// and request counters. Clients never hold storage handles directly —
// only the Daemon does, for the lifetime of the process.
type Daemon struct {
	homeDir string
	cfg     config.Config
	reg     *registry.Registry

	mu        sync.Mutex
	state     InitState
	startTime time.Time
	token     string
	projects  map[string]*projectEntry // keyed by canonicalized path

	cache    *historyCache
	counters counters

	maintenanceCancel context.CancelFunc
	exitFunc          func()
}

// New constructs a Daemon rooted at homeDir with cfg and reg already
// loaded. It does not yet start listening or mint a token — call Start.
func New(homeDir string, cfg config.Config, reg *registry.Registry) *Daemon {
	return &Daemon{
		homeDir:  homeDir,
		cfg:      cfg,
		reg:      reg,
		state:    Uninitialized,
		projects: make(map[string]*projectEntry),
		cache:    newHistoryCache(),
		exitFunc: func() { /* overridden by cmd/mnemd; no-op keeps tests hermetic */ },
	}
}

// State returns the current lifecycle state.
func (d *Daemon) State() InitState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetExitFunc overrides the callback invoked when a client issues the
// "exit" RPC or shortly after "shutdown" completes. cmd/mnemd wires this to
// its own process-termination sequence (closing the listener, then
// os.Exit); the default is a no-op so daemon tests stay hermetic.
func (d *Daemon) SetExitFunc(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exitFunc = fn
}
