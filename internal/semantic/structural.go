// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package semantic

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/zeebo/blake3"
)

// structuralHash computes a digest of n's parse tree that is invariant
// under reformatting (whitespace is never a token in a tree-sitter parse
// tree), under comments (skipped by type name below), and under the
// symbol's own declared name (nameNode, if non-nil, is skipped so a pure
// rename doesn't change the hash — see differ.findByStructuralHash, which
// pairs symbols across versions on hash equality), but changes under any
// other semantically observable edit: it walks every descendant node,
// appending its grammar type, and for leaf nodes its literal text.
func structuralHash(n *sitter.Node, src []byte, nameNode *sitter.Node) string {
	var b strings.Builder
	var exStart, exEnd uint32
	hasExclude := nameNode != nil
	if hasExclude {
		exStart, exEnd = nameNode.StartByte(), nameNode.EndByte()
	}
	appendStructure(n, src, &b, hasExclude, exStart, exEnd)
	sum := blake3.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:])
}

// appendStructure walks n's subtree, skipping comment nodes and the single
// node whose byte span equals [exStart, exEnd) (the symbol's own name,
// when hasExclude is set). Byte-span identity is used rather than pointer
// equality since distinct accessor calls on the same logical tree-sitter
// node aren't guaranteed to return comparable pointers, while byte offsets
// are stable and already used throughout this package.
func appendStructure(n *sitter.Node, src []byte, b *strings.Builder, hasExclude bool, exStart, exEnd uint32) {
	if n == nil {
		return
	}
	if n.Type() == "comment" || n.Type() == "line_comment" || n.Type() == "block_comment" {
		return
	}
	if hasExclude && n.StartByte() == exStart && n.EndByte() == exEnd {
		return
	}
	b.WriteString(n.Type())
	b.WriteByte(':')

	count := int(n.ChildCount())
	if count == 0 {
		b.WriteString(n.Content(src))
		b.WriteByte('\n')
		return
	}
	for i := 0; i < count; i++ {
		appendStructure(n.Child(i), src, b, hasExclude, exStart, exEnd)
	}
}
