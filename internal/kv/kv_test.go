// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mnemosyne.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInternRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Intern("a.txt")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if id == InternEmpty {
		t.Fatalf("Intern returned the reserved empty id")
	}
	again, err := s.Intern("a.txt")
	if err != nil {
		t.Fatalf("Intern again: %v", err)
	}
	if again != id {
		t.Fatalf("Intern not idempotent: %d != %d", again, id)
	}
	str, err := s.Resolve(id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if str != "a.txt" {
		t.Fatalf("Resolve = %q, want a.txt", str)
	}
}

func TestInternEmptyStringReservedID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Intern("")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if id != InternEmpty {
		t.Fatalf("Intern(\"\") = %d, want %d", id, InternEmpty)
	}
}

func TestSnapshotHistoryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	pathID, _ := s.Intern("a.txt")

	var lastID uint64
	for i := 0; i < 3; i++ {
		id, err := s.InsertSnapshot(SnapshotRecord{
			PathID:      pathID,
			Timestamp:   time.Now().Add(time.Duration(i) * time.Second).Format(time.RFC3339),
			ContentHash: "hash" + string(rune('0'+i)),
		})
		if err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
		lastID = id
	}

	hist, err := s.GetHistory(pathID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("len(hist) = %d, want 3", len(hist))
	}
	if hist[0].ID != lastID {
		t.Fatalf("hist[0].ID = %d, want newest %d", hist[0].ID, lastID)
	}
	if hist[0].ContentHash != "hash2" {
		t.Fatalf("hist[0].ContentHash = %s, want hash2", hist[0].ContentHash)
	}
}

func TestPruneSnapshotsPreservesCommitted(t *testing.T) {
	s := newTestStore(t)
	pathID, _ := s.Intern("a.txt")

	old := time.Now().AddDate(0, 0, -60).Format(time.RFC3339)
	recent := time.Now().Format(time.RFC3339)

	idOld, _ := s.InsertSnapshot(SnapshotRecord{PathID: pathID, Timestamp: old, ContentHash: "old"})
	idCommitted, _ := s.InsertSnapshot(SnapshotRecord{PathID: pathID, Timestamp: old, ContentHash: "committed", CommitHash: "deadbeef"})
	idRecent, _ := s.InsertSnapshot(SnapshotRecord{PathID: pathID, Timestamp: recent, ContentHash: "new"})

	removed, err := s.PruneSnapshots(30)
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, ok, _ := s.GetSnapshotByID(idOld); ok {
		t.Fatalf("old uncommitted snapshot survived prune")
	}
	if _, ok, _ := s.GetSnapshotByID(idCommitted); !ok {
		t.Fatalf("old committed snapshot was pruned")
	}
	if _, ok, _ := s.GetSnapshotByID(idRecent); !ok {
		t.Fatalf("recent snapshot was pruned")
	}
}

func TestResolveHashAmbiguous(t *testing.T) {
	s := newTestStore(t)
	pathID, _ := s.Intern("a.txt")
	pathID2, _ := s.Intern("b.txt")
	now := time.Now().Format(time.RFC3339)
	s.InsertSnapshot(SnapshotRecord{PathID: pathID, Timestamp: now, ContentHash: "aaaa1111"})
	s.InsertSnapshot(SnapshotRecord{PathID: pathID2, Timestamp: now, ContentHash: "aaaa2222"})

	if _, ok, _ := s.ResolveHash("aaaa"); ok {
		t.Fatalf("ResolveHash resolved an ambiguous prefix")
	}
	full, ok, err := s.ResolveHash("aaaa11")
	if err != nil {
		t.Fatalf("ResolveHash: %v", err)
	}
	if !ok || full != "aaaa1111" {
		t.Fatalf("ResolveHash unique prefix = (%q, %v), want (aaaa1111, true)", full, ok)
	}
}

func TestGetLastHashEmpty(t *testing.T) {
	s := newTestStore(t)
	pathID, _ := s.Intern("never-seen.txt")
	hash, err := s.GetLastHash(pathID)
	if err != nil {
		t.Fatalf("GetLastHash: %v", err)
	}
	if hash != "" {
		t.Fatalf("GetLastHash = %q, want empty", hash)
	}
}
