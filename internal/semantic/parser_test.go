// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package semantic

import "testing"

func TestParseUnknownExtensionReturnsEmpty(t *testing.T) {
	symbols, refs, err := Parse([]byte("whatever"), ".xyz")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if symbols != nil || refs != nil {
		t.Fatalf("Parse(unknown ext) = (%v, %v), want (nil, nil)", symbols, refs)
	}
}

func TestParseGoFunctionSymbol(t *testing.T) {
	src := []byte("package p\n\nfunc foo() int {\n\treturn 1\n}\n")
	symbols, _, err := Parse(src, ".go")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(symbols) != 1 {
		t.Fatalf("len(symbols) = %d, want 1", len(symbols))
	}
	if symbols[0].Name != "foo" {
		t.Fatalf("symbols[0].Name = %q, want foo", symbols[0].Name)
	}
	if symbols[0].Kind != "function" {
		t.Fatalf("symbols[0].Kind = %q, want function", symbols[0].Kind)
	}
}

func TestStructuralHashStableAcrossReformatting(t *testing.T) {
	a := []byte("package p\n\nfunc foo() int {\n\treturn 1\n}\n")
	b := []byte("package p\n\nfunc foo() int { return 1 }\n")

	symA, _, err := Parse(a, ".go")
	if err != nil {
		t.Fatalf("Parse a: %v", err)
	}
	symB, _, err := Parse(b, ".go")
	if err != nil {
		t.Fatalf("Parse b: %v", err)
	}
	if len(symA) != 1 || len(symB) != 1 {
		t.Fatalf("expected one symbol in each variant")
	}
	if symA[0].StructuralHash != symB[0].StructuralHash {
		t.Fatalf("structural hash changed under pure reformatting")
	}
}

func TestStructuralHashChangesOnSemanticEdit(t *testing.T) {
	a := []byte("package p\n\nfunc foo() int {\n\treturn 1\n}\n")
	b := []byte("package p\n\nfunc foo() int {\n\treturn 2\n}\n")

	symA, _, _ := Parse(a, ".go")
	symB, _, _ := Parse(b, ".go")
	if symA[0].StructuralHash == symB[0].StructuralHash {
		t.Fatalf("structural hash did not change under a semantic edit")
	}
}

// TestStructuralHashStableAcrossRename covers the rename-detection contract
// symboldiff.Diff relies on: renaming a symbol with an otherwise identical
// body must not change its structural hash, or findByStructuralHash can
// never pair the old and new symbol and report Renamed.
func TestStructuralHashStableAcrossRename(t *testing.T) {
	a := []byte("package p\n\nfunc foo() int {\n\treturn 1\n}\n")
	b := []byte("package p\n\nfunc bar() int {\n\treturn 1\n}\n")

	symA, _, err := Parse(a, ".go")
	if err != nil {
		t.Fatalf("Parse a: %v", err)
	}
	symB, _, err := Parse(b, ".go")
	if err != nil {
		t.Fatalf("Parse b: %v", err)
	}
	if len(symA) != 1 || len(symB) != 1 {
		t.Fatalf("expected one symbol in each variant")
	}
	if symA[0].StructuralHash != symB[0].StructuralHash {
		t.Fatalf("structural hash changed across a pure rename (foo -> bar)")
	}
}

// TestParseGoTypeDeclarationSymbol covers the type_declaration -> type_spec
// nesting: the "name" field lives on the child type_spec, not directly on
// type_declaration.
func TestParseGoTypeDeclarationSymbol(t *testing.T) {
	src := []byte("package p\n\ntype Foo struct {\n\tX int\n}\n")
	symbols, _, err := Parse(src, ".go")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(symbols) != 1 {
		t.Fatalf("len(symbols) = %d, want 1", len(symbols))
	}
	if symbols[0].Name != "Foo" {
		t.Fatalf("symbols[0].Name = %q, want Foo", symbols[0].Name)
	}
	if symbols[0].Kind != "type" {
		t.Fatalf("symbols[0].Kind = %q, want type", symbols[0].Kind)
	}
}

// TestStructuralHashStableAcrossTypeRename exercises the type_spec-nested name
// path through the same rename-invariance contract as the function case.
func TestStructuralHashStableAcrossTypeRename(t *testing.T) {
	a := []byte("package p\n\ntype Foo struct {\n\tX int\n}\n")
	b := []byte("package p\n\ntype Bar struct {\n\tX int\n}\n")

	symA, _, _ := Parse(a, ".go")
	symB, _, _ := Parse(b, ".go")
	if len(symA) != 1 || len(symB) != 1 {
		t.Fatalf("expected one symbol in each variant")
	}
	if symA[0].StructuralHash != symB[0].StructuralHash {
		t.Fatalf("structural hash changed across a pure type rename (Foo -> Bar)")
	}
}
