// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// hardIgnoredDirs are skipped by path-component matching (not substring),
// avoiding false positives like "not_target/", per spec §4.6.
var hardIgnoredDirs = map[string]bool{
	"target":       true,
	".git":         true,
	"node_modules": true,
	".DS_Store":    true,
	".mnemosyne":   true,
}

// IgnoreSet layers hard-coded directory names, .gitignore, and
// .mnemignore patterns (per-project and global) into one filter.
type IgnoreSet struct {
	patterns []string
}

// LoadIgnoreSet reads projectRoot/.gitignore and projectRoot/.mnemignore
// (when enabled by cfg) plus a global ignore file, and returns the
// combined filter.
func LoadIgnoreSet(projectRoot, globalMnemignorePath string, useGitignore, useMnemignore bool) *IgnoreSet {
	is := &IgnoreSet{}
	if useGitignore {
		is.loadFile(filepath.Join(projectRoot, ".gitignore"))
	}
	if useMnemignore {
		is.loadFile(filepath.Join(projectRoot, ".mnemignore"))
		is.loadFile(globalMnemignorePath)
	}
	return is
}

func (is *IgnoreSet) loadFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		is.patterns = append(is.patterns, line)
	}
}

// ShouldIgnore reports whether relPath (slash-separated, relative to the
// project root) should be skipped: it passes through a hard-ignored or
// hidden directory component (matched by path component, not substring,
// to avoid false positives like "not_target/"), or it matches one of the
// loaded ignore patterns.
func (is *IgnoreSet) ShouldIgnore(relPath string) bool {
	comps := strings.Split(relPath, "/")
	for i, comp := range comps {
		if hardIgnoredDirs[comp] {
			return true
		}
		isDirComponent := i < len(comps)-1
		if isDirComponent && strings.HasPrefix(comp, ".") {
			return true
		}
	}
	for _, pat := range is.patterns {
		if matched, _ := filepath.Match(pat, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(pat, filepath.Base(relPath)); matched {
			return true
		}
		if strings.HasSuffix(pat, "/") && strings.HasPrefix(relPath, strings.TrimSuffix(pat, "/")) {
			return true
		}
	}
	return false
}
