// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/strongdm/mnemosyne/internal/config"
	"github.com/zeebo/blake3"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	root := t.TempDir()
	repo, err := Open(root, config.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func hashOf(b []byte) string {
	sum := blake3.Sum256(b)
	return fmt.Sprintf("%x", sum[:])
}

func TestSaveSnapshotDedup(t *testing.T) {
	repo := newTestRepository(t)
	content := []byte("hello\n")

	h1, isNew1, err := repo.SaveSnapshot("a.txt", content, "")
	if err != nil {
		t.Fatalf("SaveSnapshot 1: %v", err)
	}
	if !isNew1 {
		t.Fatalf("first save reported as dedup")
	}
	if h1 != hashOf(content) {
		t.Fatalf("hash = %s, want %s", h1, hashOf(content))
	}

	h2, isNew2, err := repo.SaveSnapshot("a.txt", content, "")
	if err != nil {
		t.Fatalf("SaveSnapshot 2: %v", err)
	}
	if isNew2 {
		t.Fatalf("identical second save was not deduped")
	}
	if h2 != h1 {
		t.Fatalf("dedup returned a different hash")
	}

	pathID, _ := repo.KV.Intern("a.txt")
	hist, err := repo.KV.GetHistory(pathID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("len(history) = %d, want 1 after dedup", len(hist))
	}
}

func TestSaveSnapshotChangeInsertsOne(t *testing.T) {
	repo := newTestRepository(t)
	if _, _, err := repo.SaveSnapshot("a.txt", []byte("hello\n"), ""); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	h2, isNew, err := repo.SaveSnapshot("a.txt", []byte("world\n"), "")
	if err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if !isNew {
		t.Fatalf("changed content reported as dedup")
	}
	if h2 != hashOf([]byte("world\n")) {
		t.Fatalf("hash mismatch for changed content")
	}

	pathID, _ := repo.KV.Intern("a.txt")
	hist, _ := repo.KV.GetHistory(pathID)
	if len(hist) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(hist))
	}
}

func TestRestoreFileRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	target := filepath.Join(repo.Root, "a.txt")

	if err := os.WriteFile(target, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	h1, _, err := repo.SaveSnapshot("a.txt", []byte("hello\n"), "")
	if err != nil {
		t.Fatalf("save 1: %v", err)
	}

	if err := os.WriteFile(target, []byte("world\n"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}
	if _, _, err := repo.SaveSnapshot("a.txt", []byte("world\n"), ""); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	if err := repo.RestoreFile(h1, target); err != nil {
		t.Fatalf("RestoreFile: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(got) != "hello\n" {
		t.Fatalf("restored content = %q, want %q", got, "hello\n")
	}

	pathID, _ := repo.KV.Intern("a.txt")
	hist, _ := repo.KV.GetHistory(pathID)
	// The safety snapshot of the on-disk "world\n" matches save 2 and is
	// deduplicated, so RestoreFile adds no row here.
	if len(hist) != 2 {
		t.Fatalf("len(history) = %d, want 2 (2 saves; safety snapshot deduplicated)", len(hist))
	}
}
