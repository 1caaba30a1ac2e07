// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"bytes"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

// encode marshals v as msgpack with sorted map keys, exactly the teacher's
// discipline for deterministic, content-addressable-friendly encoding
// (clients/go/encoding.go).
func encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := msgpack.NewEncoder(buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// u64key encodes a u64 id as a big-endian 8-byte key so that bbolt's
// lexicographic bucket ordering matches numeric ordering — required for
// "newest first by id" style scans via a reverse cursor.
func u64key(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func keyToU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func u32key(id uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, id)
	return b
}

func keyToU32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// snapshotChunkKey encodes the composite (snapshot_id, position) key for
// the snapshot_chunks table, ordered so a cursor walk over one snapshot's
// prefix yields chunks in position order.
func snapshotChunkKey(snapshotID uint64, position uint32) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[0:8], snapshotID)
	binary.BigEndian.PutUint32(b[8:12], position)
	return b
}
