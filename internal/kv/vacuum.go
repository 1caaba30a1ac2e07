// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"
)

// Vacuum rewrites the database file into a fresh one with no free pages
// left behind by deleted buckets/keys, then swaps it into place. Used by
// Repository.RunGC after PruneSnapshots to reclaim space freed by deleted
// snapshot/symbol rows, the same compaction bbolt's own CLI tool performs
// by copying bucket-by-bucket into a new file.
func (s *Store) Vacuum() error {
	path := s.db.Path()
	tmpPath := path + ".compact"

	dst, err := bolt.Open(tmpPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("kv: vacuum: open compaction target: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(append([]byte(nil), k...), append([]byte(nil), v...))
				})
			})
		})
	})
	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("kv: vacuum: copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("kv: vacuum: close compaction target: %w", err)
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("kv: vacuum: close source: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("kv: vacuum: rename into place: %w", err)
	}

	reopened, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("kv: vacuum: reopen: %w", err)
	}
	s.db = reopened
	return nil
}
