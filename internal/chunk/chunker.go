// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits file content into content-defined chunks for
// dedup across files and snapshots, satisfying the reassembly invariant
// (§8): the concatenation of a snapshot's chunks, in position order,
// reproduces the original bytes exactly.
//
// Grounded on the teacher's streaming-hash discipline in
// clients/go/fstree/capture.go (hashFile), generalized from whole-file
// hashing to per-chunk hashing.
package chunk

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// Chunk is one content-addressed byte range of a file.
type Chunk struct {
	Hash string
	Data []byte
}

const (
	// minSize/maxSize bound a content-defined chunk; targetMask controls
	// the expected average chunk size via a rolling-hash boundary test
	// (a simplified Gear/FastCDC-style cut, not a full implementation —
	// spec §9 explicitly does not mandate a specific chunking strategy,
	// only the reassembly invariant and CAS-backed reuse).
	minSize    = 2 * 1024
	maxSize    = 64 * 1024
	targetMask = 1<<13 - 1 // expected average chunk ~8 KiB
)

// Split divides content into content-defined chunks. Identical byte runs
// anywhere in the input (or across calls, since chunks are content
// addressed) produce identical chunk hashes, which is what lets the
// Repository dedup chunk storage via the blob store.
func Split(content []byte) []Chunk {
	if len(content) == 0 {
		return nil
	}
	var chunks []Chunk
	start := 0
	var roll uint64
	for i := 0; i < len(content); i++ {
		roll = (roll << 1) + uint64(content[i])
		size := i - start + 1
		atBoundary := size >= minSize && (roll&targetMask) == 0
		if atBoundary || size >= maxSize || i == len(content)-1 {
			data := content[start : i+1]
			sum := blake3.Sum256(data)
			chunks = append(chunks, Chunk{
				Hash: fmt.Sprintf("%x", sum[:]),
				Data: data,
			})
			start = i + 1
			roll = 0
		}
	}
	return chunks
}

// Reassemble concatenates chunk data in order, the inverse of Split,
// usable to validate the reassembly invariant in tests and during
// restore paths that read chunks rather than the whole-file CAS entry.
func Reassemble(chunks []Chunk) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	return out
}
