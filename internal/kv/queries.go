// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// GetHistory returns every snapshot for pathID, newest first by id.
func (s *Store) GetHistory(pathID uint32) ([]SnapshotRecord, error) {
	var out []SnapshotRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket([]byte(bucketPathSnapshots))
		snaps := tx.Bucket([]byte(bucketSnapshots))
		prefix := u32key(pathID)
		c := idx.Cursor()
		var ids []uint64
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, keyToU64(k[len(prefix):]))
		}
		for i := len(ids) - 1; i >= 0; i-- {
			v := snaps.Get(u64key(ids[i]))
			if v == nil {
				continue
			}
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// GetGlobalHistory returns the newest snapshots across all paths, capped
// at limit.
func (s *Store) GetGlobalHistory(limit int) ([]SnapshotRecord, error) {
	var out []SnapshotRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSnapshots))
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// GetLastHash returns the content hash of the newest snapshot for pathID,
// or "" if none exists. Used by the dedup check in Repository.SaveSnapshot.
func (s *Store) GetLastHash(pathID uint32) (string, error) {
	hist, err := s.getHistoryLimited(pathID, 1)
	if err != nil || len(hist) == 0 {
		return "", err
	}
	return hist[0].ContentHash, nil
}

func (s *Store) getHistoryLimited(pathID uint32, limit int) ([]SnapshotRecord, error) {
	full, err := s.GetHistory(pathID)
	if err != nil {
		return nil, err
	}
	if len(full) > limit {
		full = full[:limit]
	}
	return full, nil
}

// GetHistoryByHash returns every snapshot row whose content hash equals
// hash, across all paths.
func (s *Store) GetHistoryByHash(hash string) ([]SnapshotRecord, error) {
	var out []SnapshotRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSnapshots)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			if rec.ContentHash == hash {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// GetSnapshotByID returns the snapshot with the given id, or ok=false if
// absent or corrupt.
func (s *Store) GetSnapshotByID(id uint64) (SnapshotRecord, bool, error) {
	var rec SnapshotRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSnapshots)).Get(u64key(id))
		if v == nil {
			return nil
		}
		if decode(v, &rec) != nil {
			return nil
		}
		found = true
		return nil
	})
	return rec, found, err
}

// ResolveHash resolves a hex hash prefix to the unique full hash it
// identifies among recorded snapshot content hashes (chunk hashes are not
// searched). Returns ok=false if
// zero or more than one match exists (ambiguous prefixes are never
// resolved).
func (s *Store) ResolveHash(prefix string) (string, bool, error) {
	matches := map[string]struct{}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSnapshots)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			if strings.HasPrefix(rec.ContentHash, prefix) {
				matches[rec.ContentHash] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if len(matches) != 1 {
		return "", false, nil
	}
	for h := range matches {
		return h, true, nil
	}
	return "", false, nil
}

// RecentFile is one row of GetRecentFiles.
type RecentFile struct {
	PathID      uint32
	ContentHash string
	Timestamp   string
}

// GetRecentFiles returns the newest snapshot per path, newest-touched
// first, optionally filtered by an exact branch id, and truncated to limit.
// The filter argument is not applied here.
func (s *Store) GetRecentFiles(limit int, filter string, branchID uint32) ([]RecentFile, error) {
	latest, err := s.GetLatestState()
	if err != nil {
		return nil, err
	}
	var out []RecentFile
	for pathID, rec := range latest {
		if branchID != 0 && rec.BranchID != branchID {
			continue
		}
		out = append(out, RecentFile{PathID: pathID, ContentHash: rec.ContentHash, Timestamp: rec.Timestamp})
	}
	// newest timestamp first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Timestamp > out[i].Timestamp {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	_ = filter // path-substring filtering is applied by the caller, which
	// holds the interned-string table needed to turn pathID into text.
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetDistinctBranches returns every distinct interned branch id that
// appears on at least one snapshot (excluding the "absent" id).
func (s *Store) GetDistinctBranches() ([]uint32, error) {
	seen := map[uint32]struct{}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSnapshots)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			if rec.BranchID != InternEmpty {
				seen[rec.BranchID] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

// GetLatestState returns, for every path that has at least one snapshot,
// its newest snapshot record keyed by path id.
func (s *Store) GetLatestState() (map[uint32]SnapshotRecord, error) {
	out := map[uint32]SnapshotRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSnapshots)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			cur, ok := out[rec.PathID]
			if !ok || rec.ID > cur.ID {
				out[rec.PathID] = rec
			}
		}
		return nil
	})
	return out, err
}

// GetStateAtTimestamp returns, for every path, the newest snapshot whose
// timestamp is <= ts.
func (s *Store) GetStateAtTimestamp(ts time.Time) (map[uint32]SnapshotRecord, error) {
	out := map[uint32]SnapshotRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSnapshots)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			recTime, err := time.Parse(time.RFC3339, rec.Timestamp)
			if err != nil || recTime.After(ts) {
				continue
			}
			cur, ok := out[rec.PathID]
			if !ok || rec.ID > cur.ID {
				out[rec.PathID] = rec
			}
		}
		return nil
	})
	return out, err
}

// FindSymbolsByName returns up to 100 symbols whose interned name contains
// query as a case-insensitive substring. It scans the strings table for
// interned text containing the lowercased query, then collects the symbols
// whose name id is one of those matches.
func (s *Store) FindSymbolsByName(query string) ([]SymbolRecord, error) {
	const cap = 100
	query = strings.ToLower(query)
	var matchingNameIDs []uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketStrings)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if strings.Contains(strings.ToLower(string(v)), query) {
				matchingNameIDs = append(matchingNameIDs, keyToU32(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	nameSet := make(map[uint32]struct{}, len(matchingNameIDs))
	for _, id := range matchingNameIDs {
		nameSet[id] = struct{}{}
	}

	var out []SymbolRecord
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSymbols)).Cursor()
		for k, v := c.First(); k != nil && len(out) < cap; k, v = c.Next() {
			var rec SymbolRecord
			if decode(v, &rec) != nil {
				continue
			}
			if _, ok := nameSet[rec.NameID]; ok {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// GetSymbolHistory returns every symbol row recorded under nameID, in
// snapshot order.
func (s *Store) GetSymbolHistory(nameID uint32) ([]SymbolRecord, error) {
	var out []SymbolRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket([]byte(bucketNameSymbols))
		symbols := tx.Bucket([]byte(bucketSymbols))
		prefix := u32key(nameID)
		c := idx.Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			id := keyToU64(k[len(prefix):])
			v := symbols.Get(u64key(id))
			if v == nil {
				continue
			}
			var rec SymbolRecord
			if decode(v, &rec) != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// GetSymbolsForSnapshot returns every symbol belonging to snapshotID.
func (s *Store) GetSymbolsForSnapshot(snapshotID uint64) ([]SymbolRecord, error) {
	var out []SymbolRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSymbols)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SymbolRecord
			if decode(v, &rec) != nil {
				continue
			}
			if rec.SnapshotID == snapshotID {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// GetSymbolDeltas returns every delta record whose SymbolName equals name
// or (for Renamed entries) whose NewName equals name, in insertion order.
func (s *Store) GetSymbolDeltas(name string) ([]DeltaRecord, error) {
	var out []DeltaRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketDeltas)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec DeltaRecord
			if decode(v, &rec) != nil {
				continue
			}
			if rec.SymbolName == name || rec.NewName == name {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// GetChunksForSnapshot returns the chunk hashes making up snapshotID's
// content, in position order.
func (s *Store) GetChunksForSnapshot(snapshotID uint64) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketSnapshotChunks)).Cursor()
		prefix := u64key(snapshotID)
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			out = append(out, string(v))
		}
		return nil
	})
	return out, err
}

// ListCheckpoints returns every recorded checkpoint, in no particular
// order — callers that need recency should sort on Timestamp.
func (s *Store) ListCheckpoints() ([]CheckpointRecord, error) {
	var out []CheckpointRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketCheckpoints)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec CheckpointRecord
			if decode(v, &rec) != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// FilterChunksByTrigrams returns chunk hashes whose stored bloom filter is
// a superset of the bits set by query's trigrams — a cheap candidate-set
// narrower consumed by Repository.GrepContents before it falls back to a
// full per-file scan.
func (s *Store) FilterChunksByTrigrams(query string) ([]string, error) {
	want := trigramBloom(query)
	if want == 0 {
		return nil, nil
	}
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketChunkTrigrams)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) != 8 {
				continue
			}
			stored := beUint64(v)
			if stored&want == want {
				out = append(out, string(k))
			}
		}
		return nil
	})
	return out, err
}

// SetChunkTrigrams records the bloom filter for a chunk's content, used
// both to populate chunk_trigrams on write and internally by tests.
func (s *Store) SetChunkTrigrams(chunkHash string, content []byte) error {
	bloom := trigramBloom(string(content))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketChunkTrigrams)).Put([]byte(chunkHash), beBytes(bloom))
	})
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// trigramBloom sets one bit per 3-byte substring of s in a 64-bit filter.
func trigramBloom(s string) uint64 {
	var bloom uint64
	b := []byte(s)
	if len(b) < 3 {
		return 0
	}
	for i := 0; i+3 <= len(b); i++ {
		h := uint32(b[i])*131*131 + uint32(b[i+1])*131 + uint32(b[i+2])
		bloom |= 1 << (h % 64)
	}
	return bloom
}
