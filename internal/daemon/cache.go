// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"container/list"
	"sync"

	"github.com/strongdm/mnemosyne/internal/kv"
)

// historyCacheSize bounds the LRU cache of get_history results, per
// spec §4.7. hashicorp/golang-lru appears only as an indirect dependency
// nowhere actually imported in the retrieval pack, so this hand-rolled
// cache follows the pack's own preference (e.g. the monitor's debouncer)
// for a plain container/list + map over pulling in a dedicated library
// for a small bounded cache.
const historyCacheSize = 256

type historyCache struct {
	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element
}

type historyCacheEntry struct {
	path string
	recs []kv.SnapshotRecord
}

func newHistoryCache() *historyCache {
	return &historyCache{
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns a cached get_history result for path, if present.
func (c *historyCache) Get(path string) ([]kv.SnapshotRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[path]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*historyCacheEntry).recs, true
}

// Put inserts or refreshes the cached result for path, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *historyCache) Put(path string, recs []kv.SnapshotRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[path]; ok {
		el.Value.(*historyCacheEntry).recs = recs
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&historyCacheEntry{path: path, recs: recs})
	c.items[path] = el
	if c.order.Len() > historyCacheSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*historyCacheEntry).path)
		}
	}
}

// Invalidate drops any cached entry for path. Called whenever
// SaveSnapshot touches that path, per spec §4.7's invalidation note.
func (c *historyCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[path]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.items, path)
}
