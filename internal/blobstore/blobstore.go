// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package blobstore implements the content-addressed blob store: raw byte
// payloads keyed by the BLAKE3-256 hex digest of their uncompressed content,
// compressed with zstd and written atomically via a temp-file-then-rename.
package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// MaxDecompressedSize caps how large a single blob may be once decompressed,
// stopping decompression-bomb payloads from exhausting memory.
const MaxDecompressedSize = 256 * 1024 * 1024 // 256 MiB

var (
	// ErrInvalidHash is returned when a caller-supplied hash isn't exactly
	// 64 lowercase hex characters.
	ErrInvalidHash = errors.New("blobstore: invalid hash")
	// ErrTooLarge is returned by Read when the decompressed payload would
	// exceed MaxDecompressedSize.
	ErrTooLarge = errors.New("blobstore: decompressed payload too large")
	// ErrNotFound is returned when no blob exists for the given hash.
	ErrNotFound = errors.New("blobstore: object not found")
)

// zstdMagic is the four-byte frame magic number for a zstd stream.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// entropyDenseMagics are magic-byte prefixes of formats that are already
// compressed; such payloads are still written as a zstd frame, but at the
// encoder's fastest level rather than its best-compression level. No
// store-only (uncompressed) mode is used.
var entropyDenseMagics = [][]byte{
	{0x50, 0x4b, 0x03, 0x04}, // ZIP
	{0x1f, 0x8b},             // GZIP
	zstdMagic,                // ZSTD
	{0x89, 0x50, 0x4e, 0x47}, // PNG
	{0xff, 0xd8, 0xff},       // JPEG
	{0x42, 0x5a, 0x68},       // BZIP2
	{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, // XZ
}

// Store is a sharded, compressed, content-addressed blob store rooted at a
// base directory laid out as:
//
//	<base>/objects/<hash[0:2]>/<hash[2:]>
//	<base>/tmp/...
type Store struct {
	base string
}

// Open returns a Store rooted at base, creating the objects/ and tmp/
// subdirectories if absent.
func Open(base string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(base, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create objects dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(base, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create tmp dir: %w", err)
	}
	return &Store{base: base}, nil
}

func isEntropyDense(b []byte) bool {
	for _, magic := range entropyDenseMagics {
		if len(b) >= len(magic) && bytes.Equal(b[:len(magic)], magic) {
			return true
		}
	}
	return false
}

// Write computes the BLAKE3-256 hash of b, zstd-compresses it (at the
// fastest level if it is already entropy-dense, otherwise at the
// best-compression level), and persists it atomically under its hash.
// Writing identical content twice is a no-op past the initial hash check.
func (s *Store) Write(b []byte) (string, error) {
	sum := blake3.Sum256(b)
	hash := fmt.Sprintf("%x", sum[:])

	if s.Exists(hash) {
		return hash, nil
	}

	level := zstd.SpeedBestCompression
	if isEntropyDense(b) {
		level = zstd.SpeedFastest
	}

	tmp, err := s.tempFile()
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(level))
	if err != nil {
		return "", fmt.Errorf("blobstore: new zstd writer: %w", err)
	}
	if _, err := enc.Write(b); err != nil {
		enc.Close()
		return "", fmt.Errorf("blobstore: compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("blobstore: finalize compression: %w", err)
	}

	if err := s.persistNoClobber(tmp, hash); err != nil {
		return "", err
	}
	return hash, nil
}

// WriteStream reads the file at path incrementally (64 KiB chunks),
// feeding a BLAKE3 hasher and a zstd encoder simultaneously, and persists
// the result atomically under the resulting hash.
func (s *Store) WriteStream(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("blobstore: open %s: %w", path, err)
	}
	defer f.Close()

	tmp, err := s.tempFile()
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return "", fmt.Errorf("blobstore: new zstd writer: %w", err)
	}

	hasher := blake3.New()
	mw := io.MultiWriter(hasher, enc)

	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(mw, f, buf); err != nil {
		enc.Close()
		return "", fmt.Errorf("blobstore: stream %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("blobstore: finalize compression: %w", err)
	}

	hash := fmt.Sprintf("%x", hasher.Sum(nil))
	if s.Exists(hash) {
		return hash, nil
	}
	if err := s.persistNoClobber(tmp, hash); err != nil {
		return "", err
	}
	return hash, nil
}

// Read validates hash, resolves it to an object path (falling back to a
// legacy flat layout for back-compatibility), and returns the decompressed
// bytes, decompressing only if the stored blob is a zstd frame.
func (s *Store) Read(hash string) ([]byte, error) {
	if err := validateHash(hash); err != nil {
		return nil, err
	}

	path := s.shardedPath(hash)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		legacy := filepath.Join(s.base, "objects", hash)
		raw, err = os.ReadFile(legacy)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", hash, err)
	}

	if len(raw) >= 4 && bytes.Equal(raw[:4], zstdMagic) {
		return decompressCapped(raw)
	}
	return raw, nil
}

func decompressCapped(raw []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("blobstore: new zstd reader: %w", err)
	}
	defer dec.Close()

	limited := io.LimitReader(dec, MaxDecompressedSize+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("blobstore: decompress: %w", err)
	}
	if len(out) > MaxDecompressedSize {
		return nil, ErrTooLarge
	}
	return out, nil
}

// Exists reports whether a blob for hash is already stored.
func (s *Store) Exists(hash string) bool {
	if validateHash(hash) != nil {
		return false
	}
	if _, err := os.Stat(s.shardedPath(hash)); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(s.base, "objects", hash)); err == nil {
		return true
	}
	return false
}

// Delete removes the blob for hash, if present. Deleting a missing blob is
// not an error.
func (s *Store) Delete(hash string) error {
	if err := validateHash(hash); err != nil {
		return err
	}
	err := os.Remove(s.shardedPath(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// CleanTemp removes files in tmp/ older than one hour, reclaiming
// in-flight writes abandoned by a crashed process.
func (s *Store) CleanTemp() error {
	dir := filepath.Join(s.base, "tmp")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("blobstore: list tmp: %w", err)
	}
	cutoff := time.Now().Add(-1 * time.Hour)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

func (s *Store) shardedPath(hash string) string {
	return filepath.Join(s.base, "objects", hash[:2], hash[2:])
}

func (s *Store) tempFile() (*os.File, error) {
	name := filepath.Join(s.base, "tmp", strconv.FormatInt(time.Now().UnixNano(), 36)+".tmp")
	return os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
}

// persistNoClobber moves tmp into its sharded final location. An existing
// file at the destination (another writer raced and won) is treated as
// success, since identical hash implies identical content.
func (s *Store) persistNoClobber(tmp *os.File, hash string) error {
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("blobstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blobstore: close temp file: %w", err)
	}

	dst := s.shardedPath(hash)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("blobstore: create shard dir: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		if s.Exists(hash) {
			return nil
		}
		return fmt.Errorf("blobstore: persist %s: %w", hash, err)
	}
	return nil
}

func validateHash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
		}
	}
	return nil
}
