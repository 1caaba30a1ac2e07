// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package kv implements the embedded transactional key-value store hosting
// Mnemosyne's typed logical tables on top of bbolt: single-writer,
// multi-reader transactions, one bucket per logical table, string
// interning, and monotonic dense id allocation via counters held in the
// "metadata" bucket.
//
// The bucket-per-logical-table layout is grounded on the erigon-style named
// table registration seen in the retrieval pack
// (other_examples/..._kv-tables.go.go); the actual storage engine, bbolt,
// is the one embedded KV engine already present (indirectly) in the pack.
package kv

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names, one per logical table from the spec's table list.
const (
	bucketSnapshots       = "snapshots"
	bucketGitCommits      = "git_commits"
	bucketSessions        = "sessions"
	bucketCheckpoints     = "checkpoints"
	bucketChunks          = "chunks"
	bucketSnapshotChunks  = "snapshot_chunks"
	bucketSymbols         = "symbols"
	bucketReferences      = "symbol_references"
	bucketDeltas          = "symbol_deltas"
	bucketStrings         = "strings"
	bucketStringIndex     = "string_index"
	bucketChunkTrigrams   = "chunk_trigrams"
	bucketMetadata        = "metadata"

	// secondary index: path string id -> ordered snapshot ids, maintained
	// alongside bucketSnapshots so get_history(path) doesn't require a
	// full table scan.
	bucketPathSnapshots = "path_snapshots_idx"
	// secondary index: symbol name id -> ordered symbol ids.
	bucketNameSymbols = "name_symbols_idx"
)

var allBuckets = []string{
	bucketSnapshots, bucketGitCommits, bucketSessions, bucketCheckpoints,
	bucketChunks, bucketSnapshotChunks, bucketSymbols, bucketReferences,
	bucketDeltas, bucketStrings, bucketStringIndex, bucketChunkTrigrams,
	bucketMetadata, bucketPathSnapshots, bucketNameSymbols,
}

// Counter keys held in the metadata bucket, incremented inside the same
// write transaction that inserts the record they identify.
const (
	counterSnapshotID = "snapshot_id"
	counterSessionID  = "session_id"
	counterSymbolID   = "symbol_id"
	counterReferenceID = "reference_id"
	counterDeltaID    = "delta_id"
	counterStringID   = "string_id"
)

// ErrCorrupt marks a record that failed to decode during a scan; per
// spec §4.2 these are skipped, not fatal.
var ErrCorrupt = errors.New("kv: corrupt record")

// Store is the embedded transactional KV database for one project.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database file at path and
// ensures every logical-table bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("kv: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// nextID increments and returns the named counter within tx, which must be
// a write transaction. The value after increment is the id assigned to the
// new record — ids start at 1.
func nextID(tx *bolt.Tx, counter string) (uint64, error) {
	meta := tx.Bucket([]byte(bucketMetadata))
	cur := meta.Get([]byte(counter))
	var id uint64
	if cur != nil {
		id = keyToU64(cur)
	}
	id++
	if err := meta.Put([]byte(counter), u64key(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteAll clears every logical table, resetting the store to empty
// while keeping the underlying file and bucket structure.
func (s *Store) DeleteAll() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}
