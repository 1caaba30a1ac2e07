// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// InsertSnapshot inserts rec (whose ID field is ignored and overwritten)
// inside one write transaction, allocating its id and updating the
// path→snapshot secondary index used by GetHistory. Returns the assigned id.
func (s *Store) InsertSnapshot(rec SnapshotRecord) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = nextID(tx, counterSnapshotID)
		if err != nil {
			return err
		}
		rec.ID = id
		data, err := encode(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketSnapshots)).Put(u64key(id), data); err != nil {
			return err
		}
		idxKey := append(u32key(rec.PathID), u64key(id)...)
		return tx.Bucket([]byte(bucketPathSnapshots)).Put(idxKey, nil)
	})
	return id, err
}

// InsertChunk registers a chunk record if not already present.
func (s *Store) InsertChunk(rec ChunkRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketChunks))
		if b.Get([]byte(rec.Hash)) != nil {
			return nil
		}
		data, err := encode(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.Hash), data)
	})
}

// LinkSnapshotChunk records that chunkHash occupies position within
// snapshotID's byte stream.
func (s *Store) LinkSnapshotChunk(snapshotID uint64, position uint32, chunkHash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := snapshotChunkKey(snapshotID, position)
		return tx.Bucket([]byte(bucketSnapshotChunks)).Put(key, []byte(chunkHash))
	})
}

// InsertSymbol inserts rec, allocating its id and updating the
// name→symbol secondary index used by FindSymbolsByName/GetSymbolHistory.
func (s *Store) InsertSymbol(rec SymbolRecord) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = nextID(tx, counterSymbolID)
		if err != nil {
			return err
		}
		rec.ID = id
		data, err := encode(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketSymbols)).Put(u64key(id), data); err != nil {
			return err
		}
		idxKey := append(u32key(rec.NameID), u64key(id)...)
		return tx.Bucket([]byte(bucketNameSymbols)).Put(idxKey, nil)
	})
	return id, err
}

// InsertReference inserts a symbol reference occurrence.
func (s *Store) InsertReference(rec ReferenceRecord) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = nextID(tx, counterReferenceID)
		if err != nil {
			return err
		}
		rec.ID = id
		data, err := encode(rec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketReferences)).Put(u64key(id), data)
	})
	return id, err
}

// InsertSymbolDelta inserts a delta record.
func (s *Store) InsertSymbolDelta(rec DeltaRecord) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = nextID(tx, counterDeltaID)
		if err != nil {
			return err
		}
		rec.ID = id
		data, err := encode(rec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketDeltas)).Put(u64key(id), data)
	})
	return id, err
}

// InsertGitCommit inserts or overwrites commit metadata keyed by hash.
func (s *Store) InsertGitCommit(rec CommitRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := encode(rec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketGitCommits)).Put([]byte(rec.Hash), data)
	})
}

// LinkSnapshotToCommit associates every snapshot currently lacking a
// commit hash with commitHash — used by the git hook to retroactively tag
// snapshots taken since the previous commit.
func (s *Store) LinkSnapshotToCommit(commitHash string) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSnapshots))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue
			}
			if rec.CommitHash != "" {
				continue
			}
			rec.CommitHash = commitHash
			data, err := encode(rec)
			if err != nil {
				return err
			}
			if err := b.Put(k, data); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// SaveCheckpoint inserts or overwrites a checkpoint keyed by its hash.
func (s *Store) SaveCheckpoint(rec CheckpointRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := encode(rec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketCheckpoints)).Put([]byte(rec.Hash), data)
	})
}

// DeleteCheckpoint removes a checkpoint by hash.
func (s *Store) DeleteCheckpoint(hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketCheckpoints)).Delete([]byte(hash))
	})
}

// PruneSnapshots removes, within a single write transaction, every
// snapshot older than days whose CommitHash is empty (snapshots tied to a
// git commit are preserved regardless of age), along with their
// snapshot_chunks and symbols rows. Returns the number of snapshots
// removed.
func (s *Store) PruneSnapshots(days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		snaps := tx.Bucket([]byte(bucketSnapshots))
		pathIdx := tx.Bucket([]byte(bucketPathSnapshots))
		chunks := tx.Bucket([]byte(bucketSnapshotChunks))
		symbols := tx.Bucket([]byte(bucketSymbols))
		nameIdx := tx.Bucket([]byte(bucketNameSymbols))

		var toRemove []SnapshotRecord
		c := snaps.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec SnapshotRecord
			if decode(v, &rec) != nil {
				continue // corrupted record, skip per §4.2
			}
			if rec.CommitHash != "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339, rec.Timestamp)
			if err != nil {
				continue
			}
			if ts.Before(cutoff) {
				toRemove = append(toRemove, rec)
			}
		}

		for _, rec := range toRemove {
			if err := snaps.Delete(u64key(rec.ID)); err != nil {
				return err
			}
			idxKey := append(u32key(rec.PathID), u64key(rec.ID)...)
			_ = pathIdx.Delete(idxKey)

			// remove this snapshot's chunk links
			prefix := u64key(rec.ID)
			cc := chunks.Cursor()
			for k, _ := cc.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = cc.Next() {
				if err := chunks.Delete(k); err != nil {
					return err
				}
			}

			// remove this snapshot's symbols and their name index entries
			sc := symbols.Cursor()
			var symIDs []uint64
			for k, v := sc.First(); k != nil; k, v = sc.Next() {
				var sym SymbolRecord
				if decode(v, &sym) != nil {
					continue
				}
				if sym.SnapshotID == rec.ID {
					symIDs = append(symIDs, sym.ID)
					if err := nameIdx.Delete(append(u32key(sym.NameID), u64key(sym.ID)...)); err != nil {
						return err
					}
				}
			}
			for _, sid := range symIDs {
				if err := symbols.Delete(u64key(sid)); err != nil {
					return err
				}
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("kv: prune snapshots: %w", err)
	}
	return removed, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
