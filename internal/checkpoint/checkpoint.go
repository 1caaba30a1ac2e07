// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint builds whole-project manifest checkpoints and reads
// git HEAD commit metadata for the git-commit-hook path.
//
// Grounded on therealtimex-entire-cli/cmd/entire/cli/strategy/manual_commit_attribution.go's
// use of the modern go-git/v5 object.Tree/object.Commit API — not on
// _examples/go-git-go-git, whose own copy predates go-git/v5.
package checkpoint

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/zeebo/blake3"
)

// Entry is one (path, content hash) pair inside a checkpoint manifest.
type Entry struct {
	Path        string
	ContentHash string
}

// Manifest is a whole-project manifest at a point in time.
type Manifest struct {
	Hash        string
	Timestamp   time.Time
	Description string
	Entries     []Entry
}

// Build computes a Manifest's hash as BLAKE3(timestamp || manifest ||
// description), per spec §3. entries are sorted by path first so the hash
// is stable regardless of caller iteration order.
func Build(entries []Entry, description string, now time.Time) Manifest {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	ts := now.Format(time.RFC3339)
	h := blake3.New()
	h.Write([]byte(ts))
	for _, e := range sorted {
		h.Write([]byte(e.Path))
		h.Write([]byte{0})
		h.Write([]byte(e.ContentHash))
		h.Write([]byte{0})
	}
	h.Write([]byte(description))

	return Manifest{
		Hash:        fmt.Sprintf("%x", h.Sum(nil)),
		Timestamp:   now,
		Description: description,
		Entries:     sorted,
	}
}

// CommitInfo is the metadata imported from a repository's HEAD commit.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	Timestamp time.Time
}

// ReadHead opens the git repository rooted at (or above) projectPath and
// returns its current HEAD commit's metadata, for the git-commit-hook
// association path (spec §3 GitCommit).
func ReadHead(projectPath string) (CommitInfo, error) {
	repo, err := git.PlainOpenWithOptions(projectPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("checkpoint: open git repo at %s: %w", projectPath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("checkpoint: read HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return CommitInfo{}, fmt.Errorf("checkpoint: read commit %s: %w", head.Hash(), err)
	}
	return CommitInfo{
		Hash:      commit.Hash.String(),
		Message:   commit.Message,
		Author:    commit.Author.Name,
		Timestamp: commit.Author.When,
	}, nil
}
