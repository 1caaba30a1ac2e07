// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package symboldiff computes an ordered sequence of Added/Modified/
// Deleted/Renamed records between two symbol lists, per spec §4.4.
//
// Grounded on the Added/Removed/Modified triple returned by the teacher's
// clients/go/fstree/snapshot.go Diff method (two path-keyed maps compared
// against each other); this generalizes the same two-map comparison
// pattern from file paths to (name, kind) symbol identity plus a
// structural-hash equality check in place of a plain hash comparison.
package symboldiff

// Symbol is the minimal shape the differ needs from a parsed symbol.
type Symbol struct {
	Name           string
	Kind           string
	StructuralHash string
}

// DeltaKind mirrors kv.DeltaKind without importing the kv package, keeping
// this package free of storage concerns.
type DeltaKind int

const (
	Added DeltaKind = iota
	Modified
	Deleted
	Renamed
)

// Delta is one computed change between prev and curr.
type Delta struct {
	Kind           DeltaKind
	SymbolName     string
	NewName        string // set only for Renamed
	StructuralHash string
}

type key struct {
	name string
	kind string
}

// Diff pairs symbols across prev and curr by (name, kind). Unmatched curr
// entries become Renamed (if some prev entry, matched or not, that no
// earlier rename has claimed shares their structural hash) or Added;
// unmatched prev entries not claimed by a rename become Deleted;
// matched pairs become Modified when their structural hash differs, and
// are otherwise omitted.
func Diff(prev, curr []Symbol) []Delta {
	prevByKey := make(map[key]Symbol, len(prev))
	for _, s := range prev {
		prevByKey[key{s.Name, s.Kind}] = s
	}
	currByKey := make(map[key]Symbol, len(curr))
	for _, s := range curr {
		currByKey[key{s.Name, s.Kind}] = s
	}

	// Track which prev entries get consumed by a rename match so they are
	// not also reported Deleted.
	consumedPrev := make(map[key]bool)

	var deltas []Delta

	// Unmatched-in-curr pass (stable order: curr's own order).
	for _, s := range curr {
		k := key{s.Name, s.Kind}
		if _, ok := prevByKey[k]; ok {
			continue // matched, handled below
		}
		renamedFrom, ok := findByStructuralHash(prev, s.StructuralHash, consumedPrev)
		if ok {
			consumedPrev[key{renamedFrom.Name, renamedFrom.Kind}] = true
			deltas = append(deltas, Delta{
				Kind:           Renamed,
				SymbolName:     renamedFrom.Name,
				NewName:        s.Name,
				StructuralHash: s.StructuralHash,
			})
			continue
		}
		deltas = append(deltas, Delta{
			Kind:           Added,
			SymbolName:     s.Name,
			StructuralHash: s.StructuralHash,
		})
	}

	// Unmatched-in-prev pass: anything left in prev that curr never
	// matched by (name,kind) and that wasn't consumed as a rename source.
	for _, s := range prev {
		k := key{s.Name, s.Kind}
		if _, ok := currByKey[k]; ok {
			continue
		}
		if consumedPrev[k] {
			continue
		}
		deltas = append(deltas, Delta{
			Kind:           Deleted,
			SymbolName:     s.Name,
			StructuralHash: s.StructuralHash,
		})
	}

	// Matched pairs: Modified iff structural hash differs.
	for k, c := range currByKey {
		p, ok := prevByKey[k]
		if !ok {
			continue
		}
		if p.StructuralHash != c.StructuralHash {
			deltas = append(deltas, Delta{
				Kind:           Modified,
				SymbolName:     c.Name,
				StructuralHash: c.StructuralHash,
			})
		}
	}

	return deltas
}

func findByStructuralHash(prev []Symbol, hash string, consumed map[key]bool) (Symbol, bool) {
	for _, s := range prev {
		k := key{s.Name, s.Kind}
		if consumed[k] {
			continue
		}
		if s.StructuralHash == hash {
			return s, true
		}
	}
	return Symbol{}, false
}
