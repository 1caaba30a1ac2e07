// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package repository

import "log/slog"

// RunGC implements spec §4.5's run_gc: compute the set of referenced
// content hashes, prune expired snapshots, recompute the referenced set,
// and delete any blob that fell out of it. Individual deletion failures
// are logged and do not abort the pass.
func (r *Repository) RunGC() (int, error) {
	if r.Cfg.RetentionDays <= 0 {
		return 0, nil // retention_days == 0 disables GC, per spec §6
	}

	before, err := r.referencedHashes()
	if err != nil {
		return 0, err
	}

	removed, err := r.KV.PruneSnapshots(r.Cfg.RetentionDays)
	if err != nil {
		return 0, err
	}

	after, err := r.referencedHashes()
	if err != nil {
		return removed, err
	}

	for hash := range before {
		if _, stillReferenced := after[hash]; stillReferenced {
			continue
		}
		if err := r.Blobs.Delete(hash); err != nil {
			slog.Warn("[repository] gc: failed to delete orphaned blob", "hash", hash, "err", err)
		}
	}

	if err := r.Blobs.CleanTemp(); err != nil {
		slog.Warn("[repository] gc: clean temp failed", "err", err)
	}

	if removed > 0 {
		if err := r.KV.Vacuum(); err != nil {
			slog.Warn("[repository] gc: vacuum failed", "err", err)
		}
	}

	return removed, nil
}

// referencedHashes is the union of every snapshot's content hash, every
// chunk hash, and every checkpoint manifest entry's content hash —
// anything a live restore path could need to read back from the CAS.
func (r *Repository) referencedHashes() (map[string]struct{}, error) {
	out := map[string]struct{}{}

	hist, err := r.KV.GetGlobalHistory(1 << 30)
	if err != nil {
		return nil, err
	}
	for _, rec := range hist {
		out[rec.ContentHash] = struct{}{}
		chunks, err := r.KV.GetChunksForSnapshot(rec.ID)
		if err != nil {
			return nil, err
		}
		for _, h := range chunks {
			out[h] = struct{}{}
		}
	}

	checkpoints, err := r.KV.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	for _, cp := range checkpoints {
		out[cp.Hash] = struct{}{}
		for _, entry := range cp.Manifest {
			out[entry.ContentHash] = struct{}{}
		}
	}

	return out, nil
}
