// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package semantic

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// langSpec maps tree-sitter node type names to this package's symbol
// kinds, and names the node types that count as identifier references.
type langSpec struct {
	symbolKinds     map[string]string
	identifierKinds map[string]bool
	// nameContainer names, for a symbol node type whose own "name" field
	// is empty, the child node type that actually carries the "name"
	// field — e.g. Go's type_declaration wraps a type_spec that holds the
	// identifier (`type Foo struct{}` parses as
	// type_declaration > type_spec[name: Foo, type: struct_type]).
	nameContainer map[string]string
}

var goSpec = langSpec{
	symbolKinds: map[string]string{
		"function_declaration": "function",
		"method_declaration":   "method",
		"type_declaration":     "type",
	},
	identifierKinds: map[string]bool{
		"identifier":     true,
		"field_identifier": true,
	},
	nameContainer: map[string]string{
		"type_declaration": "type_spec",
	},
}

var pythonSpec = langSpec{
	symbolKinds: map[string]string{
		"function_definition": "function",
		"class_definition":    "class",
	},
	identifierKinds: map[string]bool{
		"identifier": true,
	},
}

var jsSpec = langSpec{
	symbolKinds: map[string]string{
		"function_declaration": "function",
		"class_declaration":    "class",
		"method_definition":    "method",
	},
	identifierKinds: map[string]bool{
		"identifier":          true,
		"property_identifier": true,
	},
}

// languageFor returns the tree-sitter grammar and symbol spec registered
// for a file extension. Unknown extensions report ok=false so Parse can
// return empty lists per spec §4.3.
func languageFor(ext string) (*sitter.Language, langSpec, bool) {
	switch ext {
	case ".go":
		return golang.GetLanguage(), goSpec, true
	case ".py":
		return python.GetLanguage(), pythonSpec, true
	case ".js", ".jsx", ".mjs":
		return javascript.GetLanguage(), jsSpec, true
	case ".ts", ".tsx":
		return typescript.GetLanguage(), jsSpec, true
	default:
		return nil, langSpec{}, false
	}
}
