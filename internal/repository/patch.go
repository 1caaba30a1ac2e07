// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"fmt"
	"os"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ApplySelectivePatch implements spec §4.5's apply_selective_patch:
// compute a line diff from the current file to the named snapshot's
// bytes, number contiguous non-Equal runs ("hunks") starting at 1, and
// keep only the hunks named in selectedHunkIndices. A kept Delete skips
// the old line, a kept Insert emits the new line; a rejected Delete keeps
// the old line, a rejected Insert drops the new line.
func (r *Repository) ApplySelectivePatch(fileAbsPath, snapshotHash string, selectedHunkIndices map[int]bool) error {
	current, err := os.ReadFile(fileAbsPath)
	if err != nil {
		return fmt.Errorf("repository: read %s: %w", fileAbsPath, err)
	}
	snapshotBytes, err := r.Blobs.Read(snapshotHash)
	if err != nil {
		return fmt.Errorf("repository: read blob %s: %w", snapshotHash, err)
	}

	dmp := diffmatchpatch.New()
	currLines, snapLines, lineArray := dmp.DiffLinesToChars(string(current), string(snapshotBytes))
	diffs := dmp.DiffMain(currLines, snapLines, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []byte
	hunk := 0
	inHunk := false
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			inHunk = false
			out = append(out, []byte(d.Text)...)
			continue
		}
		if !inHunk {
			hunk++
			inHunk = true
		}
		keep := selectedHunkIndices[hunk]
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			if !keep {
				out = append(out, []byte(d.Text)...) // rejected delete: keep old line
			}
			// kept delete: skip the old line entirely
		case diffmatchpatch.DiffInsert:
			if keep {
				out = append(out, []byte(d.Text)...) // kept insert: emit new line
			}
			// rejected insert: drop the new line
		}
	}

	rel, err := r.relativize(fileAbsPath)
	if err != nil {
		return err
	}
	if _, _, err := r.SaveSnapshot(rel, current, ""); err != nil {
		return fmt.Errorf("repository: safety snapshot: %w", err)
	}
	return atomicWriteFile(fileAbsPath, out, 0o644)
}
