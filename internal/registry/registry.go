// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package registry maintains the durable mapping from stable project id
// to absolute path, backed by a JSON file at <home>/.mnemosyne/registry.json
// and a per-project ".mnemosyne/tracked" marker file.
//
// Grounded on the mutex-guarded last-known-state struct shape of the
// teacher's clients/go/fstree/tracker.go Tracker, adapted here from an
// in-memory snapshot cache to a durable on-disk registry.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Project is one entry in the registry.
type Project struct {
	ID       string    `json:"project_id"`
	Path     string    `json:"path"`
	Name     string    `json:"project_name"`
	LastOpen time.Time `json:"last_open"`
}

// GenerateID derives a project's stable id deterministically from its
// canonicalized absolute path: the first 32 hex characters (128 bits) of
// BLAKE3(canonical_path). Pure function, per spec §9's reshape of
// `Project::generate_id`.
func GenerateID(canonicalPath string) string {
	sum := blake3.Sum256([]byte(canonicalPath))
	return fmt.Sprintf("%x", sum[:16])
}

// Registry is the durable project_id -> Project map held at
// <home>/.mnemosyne/registry.json.
type Registry struct {
	mu   sync.Mutex
	path string
	data map[string]Project
}

// Open loads (or initializes) the registry file at homeDir/registry.json.
func Open(homeDir string) (*Registry, error) {
	path := filepath.Join(homeDir, "registry.json")
	r := &Registry{path: path, data: map[string]Project{}}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &r.data); err != nil {
			return nil, fmt.Errorf("registry: parse %s: %w", path, err)
		}
	}
	return r, nil
}

// Register inserts or updates the entry for absPath, writing the
// ".mnemosyne/tracked" marker file under it and persisting the registry
// atomically. Returns the (possibly pre-existing) project id.
func (r *Registry) Register(absPath, name string) (Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	canon, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canon = absPath
	}
	id := GenerateID(canon)
	proj := Project{ID: id, Path: absPath, Name: name, LastOpen: time.Now()}
	r.data[id] = proj

	if err := writeMarker(absPath, proj); err != nil {
		return Project{}, err
	}
	if err := r.save(); err != nil {
		return Project{}, err
	}
	return proj, nil
}

// Forget removes a project from the registry. It does not remove the
// on-disk marker file or the project's own .mnemosyne directory.
func (r *Registry) Forget(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return r.save()
}

// List returns every registered project.
func (r *Registry) List() []Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Project, 0, len(r.data))
	for _, p := range r.data {
		out = append(out, p)
	}
	return out
}

// IsTracked reports whether projectPath still carries its ".mnemosyne/tracked"
// marker. A registry entry whose marker is absent is treated as untracked
// even though the registry itself still names it, per spec §3.
func IsTracked(projectPath string) bool {
	_, err := os.Stat(filepath.Join(projectPath, ".mnemosyne", "tracked"))
	return err == nil
}

func writeMarker(projectPath string, proj Project) error {
	dir := filepath.Join(projectPath, ".mnemosyne")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: create %s: %w", dir, err)
	}
	contents := fmt.Sprintf("project_id=%s\nproject_name=%s\npath=%s\nlast_open=%s\n",
		proj.ID, proj.Name, proj.Path, proj.LastOpen.Format(time.RFC3339))
	return atomicWrite(filepath.Join(dir, "tracked"), []byte(contents))
}

func (r *Registry) save() error {
	b, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	return atomicWrite(r.path, b)
}

// atomicWrite writes data to a temp file alongside path and renames it
// into place, matching the CAS writer's durability idiom.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
