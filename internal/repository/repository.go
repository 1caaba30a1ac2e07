// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package repository orchestrates the snapshot pipeline: dedup check, CAS
// write, chunking, symbol extraction, delta computation, and the
// restore/checkpoint/gc operations layered on top of one project's KV
// store and blob store.
//
// Grounded on clients/go/fstree/snapshot.go's Diff/TotalChanges
// path-hash-map comparison for the dedup step, generalized from a whole
// snapshot-tree diff to a per-path hash comparison against the KV store.
package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/strongdm/mnemosyne/internal/blobstore"
	"github.com/strongdm/mnemosyne/internal/chunk"
	"github.com/strongdm/mnemosyne/internal/config"
	"github.com/strongdm/mnemosyne/internal/kv"
	"github.com/strongdm/mnemosyne/internal/semantic"
	"github.com/strongdm/mnemosyne/internal/symboldiff"
)

var (
	// ErrOutsideProject is returned when a target path escapes the
	// project root after canonicalization.
	ErrOutsideProject = errors.New("repository: path outside project root")
	// ErrAmbiguousHash is returned when a hash prefix matches more than
	// one recorded content hash.
	ErrAmbiguousHash = errors.New("repository: ambiguous hash prefix")
	// ErrHashNotFound is returned when a hash prefix matches no recorded
	// content hash.
	ErrHashNotFound = errors.New("repository: hash not found")
	// ErrSymbolNotFound is returned by RestoreSymbol when the symbol
	// cannot be located in the current or the snapshot bytes.
	ErrSymbolNotFound = errors.New("repository: symbol not found")
)

// Repository is the sole writer of snapshots for one project; it owns one
// KV store handle and one CAS handle for the lifetime of the process.
type Repository struct {
	KV    *kv.Store
	Blobs *blobstore.Store
	Root  string // canonicalized project root
	Cfg   config.Config
}

// Open opens (creating if absent) the KV database and blob store rooted
// under <root>/.mnemosyne.
func Open(root string, cfg config.Config) (*Repository, error) {
	canon, err := filepath.EvalSymlinks(root)
	if err != nil {
		canon = root
	}
	base := filepath.Join(canon, ".mnemosyne")
	kvStore, err := kv.Open(filepath.Join(base, "db", "mnemosyne.db"))
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.Open(filepath.Join(base, "cas"))
	if err != nil {
		return nil, err
	}
	return &Repository{KV: kvStore, Blobs: blobs, Root: canon, Cfg: cfg}, nil
}

// Close releases the repository's storage handles.
func (r *Repository) Close() error {
	return r.KV.Close()
}

// SaveSnapshot implements the save_snapshot contract of spec §4.5.
// relPath is the file's path as recorded (interned) in the KV store —
// callers pass the path relative to the project root by convention, kept
// stable across machines. Returns the content hash (new or, on dedup, the
// prior one) and whether a new snapshot row was inserted.
func (r *Repository) SaveSnapshot(relPath string, content []byte, branch string) (string, bool, error) {
	hash := fmt.Sprintf("%x", blake3.Sum256(content))

	pathID, err := r.KV.Intern(relPath)
	if err != nil {
		return "", false, fmt.Errorf("repository: intern path: %w", err)
	}

	lastHash, err := r.KV.GetLastHash(pathID)
	if err != nil {
		return "", false, fmt.Errorf("repository: get last hash: %w", err)
	}
	if lastHash == hash {
		return hash, false, nil // dedup: no-op write
	}

	prevHistory, err := r.KV.GetHistory(pathID)
	if err != nil {
		return "", false, fmt.Errorf("repository: get history: %w", err)
	}
	var prevSnapshotID uint64
	var prevSymbols []kv.SymbolRecord
	if len(prevHistory) > 0 {
		prevSnapshotID = prevHistory[0].ID
		prevSymbols, err = r.KV.GetSymbolsForSnapshot(prevSnapshotID)
		if err != nil {
			return "", false, fmt.Errorf("repository: get prior symbols: %w", err)
		}
	}

	if _, err := r.Blobs.Write(content); err != nil {
		return "", false, fmt.Errorf("repository: write content blob: %w", err)
	}

	var branchID uint32
	if branch != "" {
		branchID, err = r.KV.Intern(branch)
		if err != nil {
			return "", false, fmt.Errorf("repository: intern branch: %w", err)
		}
	}

	snapshotID, err := r.KV.InsertSnapshot(kv.SnapshotRecord{
		PathID:      pathID,
		Timestamp:   time.Now().Format(time.RFC3339),
		ContentHash: hash,
		BranchID:    branchID,
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: insert snapshot: %w", err)
	}

	chunkRanges, err := r.writeChunks(snapshotID, content)
	if err != nil {
		return "", false, fmt.Errorf("repository: write chunks: %w", err)
	}

	ext := filepath.Ext(relPath)
	symbols, references, err := semantic.Parse(content, ext)
	if err != nil {
		return "", false, fmt.Errorf("repository: parse symbols: %w", err)
	}

	prevSignature := structuralSignature(symbolRecordsToHashes(prevSymbols))
	currSignature := structuralSignature(symbolsToHashes(symbols))
	storeSymbols := prevSignature != currSignature || len(prevSymbols) == 0

	if err := r.persistDeltas(prevSnapshotID, snapshotID, prevSymbols, symbols); err != nil {
		return "", false, fmt.Errorf("repository: persist deltas: %w", err)
	}

	if storeSymbols {
		if err := r.persistSymbols(snapshotID, symbols, chunkRanges); err != nil {
			return "", false, fmt.Errorf("repository: persist symbols: %w", err)
		}
	}

	for _, ref := range references {
		nameID, err := r.KV.Intern(ref.Name)
		if err != nil {
			return "", false, fmt.Errorf("repository: intern reference name: %w", err)
		}
		if _, err := r.KV.InsertReference(kv.ReferenceRecord{
			SnapshotID: snapshotID,
			NameID:     nameID,
			Line:       ref.Line,
			Byte:       ref.Byte,
		}); err != nil {
			return "", false, fmt.Errorf("repository: insert reference: %w", err)
		}
	}

	return hash, true, nil
}

// SaveSnapshotFromFile reads absPath (which must be inside r.Root) and
// saves it under its project-relative path.
func (r *Repository) SaveSnapshotFromFile(absPath, branch string) (string, bool, error) {
	rel, err := r.relativize(absPath)
	if err != nil {
		return "", false, err
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", false, fmt.Errorf("repository: read %s: %w", absPath, err)
	}
	return r.SaveSnapshot(rel, content, branch)
}

func (r *Repository) relativize(absPath string) (string, error) {
	canon, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canon = absPath
	}
	rel, err := filepath.Rel(r.Root, canon)
	if err != nil || len(rel) >= 2 && rel[:2] == ".." {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, absPath)
	}
	return filepath.ToSlash(rel), nil
}

type chunkRange struct {
	hash       string
	start, end int
}

func (r *Repository) writeChunks(snapshotID uint64, content []byte) ([]chunkRange, error) {
	chunks := chunk.Split(content)
	ranges := make([]chunkRange, 0, len(chunks))
	offset := 0
	for i, c := range chunks {
		if _, err := r.Blobs.Write(c.Data); err != nil {
			return nil, err
		}
		if err := r.KV.InsertChunk(kv.ChunkRecord{Hash: c.Hash, Kind: "content"}); err != nil {
			return nil, err
		}
		if err := r.KV.SetChunkTrigrams(c.Hash, c.Data); err != nil {
			return nil, err
		}
		if err := r.KV.LinkSnapshotChunk(snapshotID, uint32(i), c.Hash); err != nil {
			return nil, err
		}
		ranges = append(ranges, chunkRange{hash: c.Hash, start: offset, end: offset + len(c.Data)})
		offset += len(c.Data)
	}
	return ranges, nil
}

func chunkForByte(ranges []chunkRange, b uint32) string {
	for _, rg := range ranges {
		if int(b) >= rg.start && int(b) < rg.end {
			return rg.hash
		}
	}
	if len(ranges) > 0 {
		return ranges[len(ranges)-1].hash
	}
	return ""
}

// persistSymbols walks symbols in start_byte order maintaining a stack of
// (parent_end_byte, parent_id), per spec §4.5 step 10.
func (r *Repository) persistSymbols(snapshotID uint64, symbols []semantic.Symbol, ranges []chunkRange) error {
	type frame struct {
		endByte uint32
		id      uint64
	}
	var stack []frame

	for _, sym := range symbols {
		for len(stack) > 0 && stack[len(stack)-1].endByte <= sym.StartByte {
			stack = stack[:len(stack)-1]
		}
		var parentID uint64
		if len(stack) > 0 {
			parentID = stack[len(stack)-1].id
		}

		nameID, err := r.KV.Intern(sym.Name)
		if err != nil {
			return err
		}
		kindID, err := r.KV.Intern(sym.Kind)
		if err != nil {
			return err
		}
		scopeID, err := r.KV.Intern(sym.Scope)
		if err != nil {
			return err
		}

		id, err := r.KV.InsertSymbol(kv.SymbolRecord{
			NameID:         nameID,
			KindID:         kindID,
			ScopeID:        scopeID,
			SnapshotID:     snapshotID,
			ChunkHash:      chunkForByte(ranges, sym.StartByte),
			StructuralHash: sym.StructuralHash,
			StartLine:      sym.StartLine,
			EndLine:        sym.EndLine,
			StartByte:      sym.StartByte,
			EndByte:        sym.EndByte,
			ParentID:       parentID,
		})
		if err != nil {
			return err
		}
		stack = append(stack, frame{endByte: sym.EndByte, id: id})
	}
	return nil
}

func (r *Repository) persistDeltas(prevSnapshotID, currSnapshotID uint64, prev []kv.SymbolRecord, curr []semantic.Symbol) error {
	prevSyms := make([]symboldiff.Symbol, 0, len(prev))
	for _, s := range prev {
		name, err := r.KV.Resolve(s.NameID)
		if err != nil {
			return err
		}
		kind, err := r.KV.Resolve(s.KindID)
		if err != nil {
			return err
		}
		prevSyms = append(prevSyms, symboldiff.Symbol{Name: name, Kind: kind, StructuralHash: s.StructuralHash})
	}
	currSyms := make([]symboldiff.Symbol, 0, len(curr))
	for _, s := range curr {
		currSyms = append(currSyms, symboldiff.Symbol{Name: s.Name, Kind: s.Kind, StructuralHash: s.StructuralHash})
	}

	deltas := symboldiff.Diff(prevSyms, currSyms)
	for _, d := range deltas {
		rec := kv.DeltaRecord{
			ToSnapshotID:   currSnapshotID,
			SymbolName:     d.SymbolName,
			NewName:        d.NewName,
			StructuralHash: d.StructuralHash,
		}
		if d.Kind != symboldiff.Added {
			rec.FromSnapshotID = prevSnapshotID
		}
		switch d.Kind {
		case symboldiff.Added:
			rec.Kind = kv.DeltaAdded
		case symboldiff.Modified:
			rec.Kind = kv.DeltaModified
		case symboldiff.Deleted:
			rec.Kind = kv.DeltaDeleted
		case symboldiff.Renamed:
			rec.Kind = kv.DeltaRenamed
		}
		if _, err := r.KV.InsertSymbolDelta(rec); err != nil {
			return err
		}
	}
	return nil
}

func symbolsToHashes(symbols []semantic.Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = s.StructuralHash
	}
	return out
}

func symbolRecordsToHashes(records []kv.SymbolRecord) []string {
	out := make([]string, len(records))
	for i, s := range records {
		out[i] = s.StructuralHash
	}
	return out
}

// structuralSignature is the file-level structural signature: the
// concatenation of every symbol's structural hash, in the order they were
// produced (start_byte ascending, since semantic.Parse sorts them and
// symbols are inserted, hence iterated, in that same order).
func structuralSignature(hashes []string) string {
	out := ""
	for _, h := range hashes {
		out += h
	}
	return out
}
