// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"bufio"
	"bytes"
	"strings"
	"sync"
)

// GrepMatch is one matching line found by GrepContents.
type GrepMatch struct {
	Path string
	Line int
	Text string
}

const (
	maxMatchesPerFile = 3
	maxTotalMatches   = 200
	maxMatchLineChars = 120
)

// GrepContents implements spec §4.5's grep_contents: scans deduped
// (newest-per-path) snapshots in parallel, using the trigram bloom filter
// as a cheap candidate-set narrower, then falls back to a full per-file
// scan within the candidate set. Keeps up to 3 matches per file, truncates
// a matching line at ~120 characters, and caps the global result list at
// 200 — the order beyond "first 200 found" is unspecified.
func (r *Repository) GrepContents(query, pathFilter string) ([]GrepMatch, error) {
	latest, err := r.KV.GetLatestState()
	if err != nil {
		return nil, err
	}

	candidateChunks, err := r.KV.FilterChunksByTrigrams(query)
	if err != nil {
		return nil, err
	}
	candidateSet := make(map[string]struct{}, len(candidateChunks))
	for _, h := range candidateChunks {
		candidateSet[h] = struct{}{}
	}

	type job struct {
		pathID     uint32
		hash       string
		snapshotID uint64
	}
	var jobs []job
	for pathID, rec := range latest {
		jobs = append(jobs, job{pathID: pathID, hash: rec.ContentHash, snapshotID: rec.ID})
	}

	var mu sync.Mutex
	var out []GrepMatch
	var wg sync.WaitGroup
	sem := make(chan struct{}, 8)

	for _, j := range jobs {
		mu.Lock()
		full := len(out) >= maxTotalMatches
		mu.Unlock()
		if full {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()

			path, err := r.KV.Resolve(j.pathID)
			if err != nil || path == "" {
				return
			}
			if pathFilter != "" && !strings.Contains(path, pathFilter) {
				return
			}
			if len(candidateSet) > 0 && !fileMayContain(r, j.snapshotID, candidateSet) {
				return
			}
			content, err := r.Blobs.Read(j.hash)
			if err != nil {
				return
			}
			matches := grepLines(content, query, path)

			mu.Lock()
			if len(out) < maxTotalMatches {
				out = append(out, matches...)
			}
			mu.Unlock()
		}(j)
	}
	wg.Wait()

	if len(out) > maxTotalMatches {
		out = out[:maxTotalMatches]
	}
	return out, nil
}

// fileMayContain reports whether snapshotID has at least one chunk in
// candidates — a cheap pre-filter that lets GrepContents skip reading and
// scanning files the trigram bloom already rules out.
func fileMayContain(r *Repository, snapshotID uint64, candidates map[string]struct{}) bool {
	hashes, err := r.KV.GetChunksForSnapshot(snapshotID)
	if err != nil || len(hashes) == 0 {
		return true // no chunk record (e.g. empty file): fall back to scanning
	}
	for _, h := range hashes {
		if _, ok := candidates[h]; ok {
			return true
		}
	}
	return false
}

func grepLines(content []byte, query, path string) []GrepMatch {
	var matches []GrepMatch
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !strings.Contains(text, query) {
			continue
		}
		if len(text) > maxMatchLineChars {
			text = truncateAtRuneBoundary(text, maxMatchLineChars)
		}
		matches = append(matches, GrepMatch{Path: path, Line: line, Text: text})
		if len(matches) >= maxMatchesPerFile {
			break
		}
	}
	return matches
}

// truncateAtRuneBoundary cuts s to at most n bytes without splitting a
// multi-byte UTF-8 rune.
func truncateAtRuneBoundary(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}
