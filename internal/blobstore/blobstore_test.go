// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	content := []byte("hello\n")
	hash, err := s.Write(content)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	sum := blake3.Sum256(content)
	want := fmt.Sprintf("%x", sum[:])
	if hash != want {
		t.Fatalf("hash = %s, want %s", hash, want)
	}

	got, err := s.Read(hash)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Read = %q, want %q", got, content)
	}
}

func TestWriteIdempotent(t *testing.T) {
	s := newTestStore(t)
	content := []byte("same content twice")
	h1, err := s.Write(content)
	if err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	h2, err := s.Write(content)
	if err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
}

func TestReadRejectsInvalidHash(t *testing.T) {
	s := newTestStore(t)
	for _, bad := range []string{"../etc/passwd", "0000", "", "zz"} {
		if _, err := s.Read(bad); err == nil {
			t.Errorf("Read(%q) succeeded, want error", bad)
		}
	}
}

func TestReadReturnsLegacyNonZstdBlobAsIs(t *testing.T) {
	s := newTestStore(t)
	// Seed a legacy flat-layout entry whose bytes are not a zstd frame;
	// Read returns such content unchanged.
	hash := "00" + genHex(62)
	legacy := filepath.Join(s.base, "objects", hash)
	if err := os.WriteFile(legacy, []byte("not zstd, returned as-is"), 0o644); err != nil {
		t.Fatalf("seed legacy object: %v", err)
	}
	got, err := s.Read(hash)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "not zstd, returned as-is" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestExistsAndDelete(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.Write([]byte("x"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !s.Exists(hash) {
		t.Fatalf("Exists = false, want true")
	}
	if err := s.Delete(hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists(hash) {
		t.Fatalf("Exists = true after Delete")
	}
	// Deleting a missing blob is not an error.
	if err := s.Delete(hash); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func genHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = "0123456789abcdef"[i%16]
	}
	return string(b)
}
