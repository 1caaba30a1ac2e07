// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/strongdm/mnemosyne/internal/checkpoint"
	"github.com/strongdm/mnemosyne/internal/kv"
)

// SaveCheckpoint implements spec §4.5's checkpoint creation: snapshot
// every path's current content hash into a manifest, hash it per §3, and
// persist it. Paths are resolved from the latest-state table, so a
// checkpoint always reflects whatever SaveSnapshot has most recently
// recorded for each file.
func (r *Repository) SaveCheckpoint(description string) (checkpoint.Manifest, error) {
	latest, err := r.KV.GetLatestState()
	if err != nil {
		return checkpoint.Manifest{}, fmt.Errorf("repository: get latest state: %w", err)
	}

	entries := make([]checkpoint.Entry, 0, len(latest))
	for pathID, rec := range latest {
		path, err := r.KV.Resolve(pathID)
		if err != nil {
			return checkpoint.Manifest{}, err
		}
		entries = append(entries, checkpoint.Entry{Path: path, ContentHash: rec.ContentHash})
	}

	manifest := checkpoint.Build(entries, description, time.Now())

	if err := r.KV.SaveCheckpoint(kv.CheckpointRecord{
		Hash:        manifest.Hash,
		Timestamp:   manifest.Timestamp.Format(time.RFC3339),
		Description: manifest.Description,
		Manifest:    manifestEntries(manifest.Entries),
	}); err != nil {
		return checkpoint.Manifest{}, fmt.Errorf("repository: save checkpoint: %w", err)
	}
	return manifest, nil
}

// RevertToCheckpoint implements spec §8 scenario 6: restore every file
// named in checkpointHash's manifest to the content it held at that
// point, first taking a safety checkpoint of the intermediate state so
// the revert itself is undoable.
func (r *Repository) RevertToCheckpoint(checkpointHash string) (checkpoint.Manifest, error) {
	checkpoints, err := r.KV.ListCheckpoints()
	if err != nil {
		return checkpoint.Manifest{}, err
	}
	var target *kv.CheckpointRecord
	for i := range checkpoints {
		if checkpoints[i].Hash == checkpointHash {
			target = &checkpoints[i]
			break
		}
	}
	if target == nil {
		return checkpoint.Manifest{}, fmt.Errorf("%w: checkpoint %s", ErrHashNotFound, checkpointHash)
	}

	if _, err := r.SaveCheckpoint("pre-revert safety checkpoint"); err != nil {
		return checkpoint.Manifest{}, fmt.Errorf("repository: safety checkpoint: %w", err)
	}

	for _, entry := range target.Manifest {
		content, err := r.Blobs.Read(entry.ContentHash)
		if err != nil {
			return checkpoint.Manifest{}, fmt.Errorf("repository: read blob %s for %s: %w", entry.ContentHash, entry.Path, err)
		}
		if _, _, err := r.SaveSnapshot(entry.Path, content, ""); err != nil {
			return checkpoint.Manifest{}, fmt.Errorf("repository: restore snapshot for %s: %w", entry.Path, err)
		}
		absPath := r.absolutize(entry.Path)
		if err := atomicWriteFile(absPath, content, 0o644); err != nil {
			return checkpoint.Manifest{}, fmt.Errorf("repository: write %s: %w", absPath, err)
		}
	}

	ts, _ := time.Parse(time.RFC3339, target.Timestamp)
	return checkpoint.Manifest{
		Hash:        target.Hash,
		Timestamp:   ts,
		Description: target.Description,
		Entries:     manifestEntriesToCheckpoint(target.Manifest),
	}, nil
}

// GetCheckpoint returns the checkpoint manifest identified by hash.
func (r *Repository) GetCheckpoint(hash string) (checkpoint.Manifest, bool, error) {
	checkpoints, err := r.KV.ListCheckpoints()
	if err != nil {
		return checkpoint.Manifest{}, false, err
	}
	for _, cp := range checkpoints {
		if cp.Hash == hash {
			ts, _ := time.Parse(time.RFC3339, cp.Timestamp)
			return checkpoint.Manifest{
				Hash:        cp.Hash,
				Timestamp:   ts,
				Description: cp.Description,
				Entries:     manifestEntriesToCheckpoint(cp.Manifest),
			}, true, nil
		}
	}
	return checkpoint.Manifest{}, false, nil
}

func (r *Repository) absolutize(relPath string) string {
	return filepath.Join(r.Root, filepath.FromSlash(relPath))
}

func manifestEntries(entries []checkpoint.Entry) []kv.CheckpointEntry {
	out := make([]kv.CheckpointEntry, len(entries))
	for i, e := range entries {
		out[i] = kv.CheckpointEntry{Path: e.Path, ContentHash: e.ContentHash}
	}
	return out
}

func manifestEntriesToCheckpoint(entries []kv.CheckpointEntry) []checkpoint.Entry {
	out := make([]checkpoint.Entry, len(entries))
	for i, e := range entries {
		out[i] = checkpoint.Entry{Path: e.Path, ContentHash: e.ContentHash}
	}
	return out
}
