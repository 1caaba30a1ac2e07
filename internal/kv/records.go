// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package kv

// Logical-table record shapes. Fields carry numeric msgpack tags like the
// teacher's wire records (clients/go/turn.go), kept stable across schema
// growth: decoding matches struct fields by tag, so reordering fields does
// not break reading existing records. Struct fields are encoded in
// declaration order; the sorted-map-key setting in encode.go orders map
// keys only.

// SnapshotRecord is the value stored in the "snapshots" table, keyed by its
// own u64 id.
type SnapshotRecord struct {
	ID         uint64 `msgpack:"1"`
	PathID     uint32 `msgpack:"2"` // interned path string
	Timestamp  string `msgpack:"3"` // RFC-3339
	ContentHash string `msgpack:"4"`
	BranchID   uint32 `msgpack:"5"` // interned, 0 = absent
	SessionID  uint64 `msgpack:"6"` // 0 = absent
	CommitHash string `msgpack:"7"` // "" = absent
}

// CommitRecord is the value stored in the "git_commits" table, keyed by
// commit hash.
type CommitRecord struct {
	Hash      string `msgpack:"1"`
	Message   string `msgpack:"2"`
	Author    string `msgpack:"3"`
	Timestamp string `msgpack:"4"`
}

// SessionRecord is the value stored in the "sessions" table, keyed by u64 id.
type SessionRecord struct {
	ID        uint64 `msgpack:"1"`
	Label     string `msgpack:"2"`
	StartedAt string `msgpack:"3"`
}

// CheckpointRecord is the value stored in the "checkpoints" table, keyed by
// checkpoint hash.
type CheckpointRecord struct {
	Hash        string              `msgpack:"1"`
	Timestamp   string              `msgpack:"2"`
	Description string              `msgpack:"3"`
	Manifest    []CheckpointEntry   `msgpack:"4"`
}

// CheckpointEntry is one (path, content hash) pair inside a checkpoint
// manifest.
type CheckpointEntry struct {
	Path        string `msgpack:"1"`
	ContentHash string `msgpack:"2"`
}

// ChunkRecord is the value stored in the "chunks" table, keyed by chunk hash.
type ChunkRecord struct {
	Hash string `msgpack:"1"`
	Kind string `msgpack:"2"`
}

// SymbolRecord is the value stored in the "symbols" table, keyed by u64 id.
type SymbolRecord struct {
	ID             uint64 `msgpack:"1"`
	NameID         uint32 `msgpack:"2"`
	KindID         uint32 `msgpack:"3"`
	ScopeID        uint32 `msgpack:"4"` // 0 = absent
	SnapshotID     uint64 `msgpack:"5"`
	ChunkHash      string `msgpack:"6"`
	StructuralHash string `msgpack:"7"`
	StartLine      uint32 `msgpack:"8"`
	EndLine        uint32 `msgpack:"9"`
	StartByte      uint32 `msgpack:"10"`
	EndByte        uint32 `msgpack:"11"`
	ParentID       uint64 `msgpack:"12"` // 0 = absent
}

// ReferenceRecord is the value stored in the "symbol_references" table,
// keyed by u64 id.
type ReferenceRecord struct {
	ID         uint64 `msgpack:"1"`
	SnapshotID uint64 `msgpack:"2"`
	NameID     uint32 `msgpack:"3"`
	Line       uint32 `msgpack:"4"`
	Byte       uint32 `msgpack:"5"`
}

// DeltaKind enumerates the SymbolDelta kinds.
type DeltaKind uint8

const (
	DeltaAdded DeltaKind = iota
	DeltaModified
	DeltaDeleted
	DeltaRenamed
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaAdded:
		return "Added"
	case DeltaModified:
		return "Modified"
	case DeltaDeleted:
		return "Deleted"
	case DeltaRenamed:
		return "Renamed"
	default:
		return "Unknown"
	}
}

// DeltaRecord is the value stored in the "symbol_deltas" table, keyed by
// u64 id.
type DeltaRecord struct {
	ID             uint64    `msgpack:"1"`
	FromSnapshotID uint64    `msgpack:"2"` // 0 = absent
	ToSnapshotID   uint64    `msgpack:"3"`
	SymbolName     string    `msgpack:"4"`
	NewName        string    `msgpack:"5"` // "" unless Renamed
	Kind           DeltaKind `msgpack:"6"`
	StructuralHash string    `msgpack:"7"`
}
