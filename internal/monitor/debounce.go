// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"sync"
	"time"
)

// maxDebounceEntries bounds the debouncer map; past this, the whole map is
// dropped rather than allowed to grow unbounded under an event storm — a
// deliberate preference for memory safety over event fidelity (§4.6).
const maxDebounceEntries = 10_000

// debounceDelay is how long a path must go quiet before its change is
// processed.
const debounceDelay = 1 * time.Second

// drainInterval is how often the debouncer checks for expired deadlines.
const drainInterval = 500 * time.Millisecond

// debouncer coalesces bursts of filesystem events on the same path into
// one processing pass, grounded on the teacher's mtime-keyed Tracker map
// (clients/go/fstree/tracker.go) extended here with an explicit deadline.
type debouncer struct {
	mu       sync.Mutex
	deadline map[string]time.Time
	onDrop   func(n int)
}

func newDebouncer(onDrop func(n int)) *debouncer {
	return &debouncer{deadline: make(map[string]time.Time), onDrop: onDrop}
}

// Touch records an event for path, resetting its deadline to now+1s. If
// the map would exceed maxDebounceEntries, it is dropped entirely.
func (d *debouncer) Touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.deadline) >= maxDebounceEntries {
		if d.onDrop != nil {
			d.onDrop(len(d.deadline))
		}
		d.deadline = make(map[string]time.Time)
		return
	}
	d.deadline[path] = time.Now().Add(debounceDelay)
}

// DrainExpired removes and returns every path whose deadline has passed.
func (d *debouncer) DrainExpired(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for path, dl := range d.deadline {
		if !now.Before(dl) {
			out = append(out, path)
			delete(d.deadline, path)
		}
	}
	return out
}
