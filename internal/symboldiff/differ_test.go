// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package symboldiff

import (
	"testing"

	"github.com/strongdm/mnemosyne/internal/semantic"
)

func TestRenameThenModify(t *testing.T) {
	// fn foo() { 1 } -> fn bar() { 1 } -> fn bar() { 2 }, mirroring the
	// literal scenario in spec §8 (#4).
	v1 := []Symbol{{Name: "foo", Kind: "function", StructuralHash: "h1"}}
	v2 := []Symbol{{Name: "bar", Kind: "function", StructuralHash: "h1"}}
	v3 := []Symbol{{Name: "bar", Kind: "function", StructuralHash: "h2"}}

	d1 := Diff(v1, v2)
	if len(d1) != 1 || d1[0].Kind != Renamed || d1[0].SymbolName != "foo" || d1[0].NewName != "bar" {
		t.Fatalf("rename step = %+v, want one Renamed(foo->bar)", d1)
	}

	d2 := Diff(v2, v3)
	if len(d2) != 1 || d2[0].Kind != Modified || d2[0].SymbolName != "bar" {
		t.Fatalf("modify step = %+v, want one Modified(bar)", d2)
	}
}

func TestAddedAndDeleted(t *testing.T) {
	prev := []Symbol{{Name: "old", Kind: "function", StructuralHash: "h1"}}
	curr := []Symbol{{Name: "new", Kind: "function", StructuralHash: "h2"}}

	deltas := Diff(prev, curr)
	var gotAdded, gotDeleted bool
	for _, d := range deltas {
		if d.Kind == Added && d.SymbolName == "new" {
			gotAdded = true
		}
		if d.Kind == Deleted && d.SymbolName == "old" {
			gotDeleted = true
		}
	}
	if !gotAdded || !gotDeleted {
		t.Fatalf("deltas = %+v, want one Added(new) and one Deleted(old)", deltas)
	}
}

func TestUnchangedSymbolEmitsNoDelta(t *testing.T) {
	syms := []Symbol{{Name: "same", Kind: "function", StructuralHash: "h1"}}
	deltas := Diff(syms, syms)
	if len(deltas) != 0 {
		t.Fatalf("deltas = %+v, want none for an unchanged symbol", deltas)
	}
}

// TestRenameThenModifyViaRealParser drives semantic.Parse (rather than
// hand-picked hashes) through the same foo->bar rename scenario, so a
// regression in structuralHash's name-exclusion can't hide behind
// hardcoded-equal hashes the way TestRenameThenModify's literals do.
func TestRenameThenModifyViaRealParser(t *testing.T) {
	toSymbols := func(src string) []Symbol {
		t.Helper()
		parsed, _, err := semantic.Parse([]byte(src), ".go")
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		out := make([]Symbol, len(parsed))
		for i, s := range parsed {
			out[i] = Symbol{Name: s.Name, Kind: s.Kind, StructuralHash: s.StructuralHash}
		}
		return out
	}

	v1 := toSymbols("package p\n\nfunc foo() int {\n\treturn 1\n}\n")
	v2 := toSymbols("package p\n\nfunc bar() int {\n\treturn 1\n}\n")
	v3 := toSymbols("package p\n\nfunc bar() int {\n\treturn 2\n}\n")

	d1 := Diff(v1, v2)
	if len(d1) != 1 || d1[0].Kind != Renamed || d1[0].SymbolName != "foo" || d1[0].NewName != "bar" {
		t.Fatalf("rename step = %+v, want one Renamed(foo->bar)", d1)
	}

	d2 := Diff(v2, v3)
	if len(d2) != 1 || d2[0].Kind != Modified || d2[0].SymbolName != "bar" {
		t.Fatalf("modify step = %+v, want one Modified(bar)", d2)
	}
}
