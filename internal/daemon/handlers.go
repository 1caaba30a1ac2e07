// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/strongdm/mnemosyne/internal/kv"
	"github.com/strongdm/mnemosyne/internal/rpc"
	"github.com/strongdm/mnemosyne/internal/symboldiff"
)

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// handle routes a normalized method name to its handler.
func (d *Daemon) handle(method string, params json.RawMessage, traceID string) (any, error) {
	switch method {
	case "initialize":
		return d.handleInitialize(params)
	case "initialized":
		return nil, nil
	case "shutdown":
		return d.handleShutdown()
	case "exit":
		d.exitFunc()
		return nil, nil
	case "status":
		return d.handleStatus(), nil
	case "mnem/daemon/status":
		return d.handleStatus(), nil

	case "mnem/project/watch":
		return d.handleProjectWatch(params)
	case "mnem/project/unwatch":
		return d.handleProjectUnwatch(params)
	case "mnem/project/list":
		return d.handleProjectList()
	case "mnem/project/activity":
		return d.handleProjectActivity(params)
	case "mnem/project/map":
		return d.handleProjectMap(params)
	case "mnem/project/statistics":
		return d.handleProjectStatistics(params)
	case "mnem/project/checkpoint":
		return d.handleProjectCheckpoint(params)
	case "mnem/project/revert":
		return d.handleProjectRevert(params)
	case "mnem/project/reload":
		return d.handleProjectReload(params)

	case "mnem/snapshot/create":
		return d.handleSnapshotCreate(params)
	case "mnem/snapshot/list":
		return d.handleSnapshotList(params)
	case "mnem/snapshot/get":
		return d.handleSnapshotGet(params)
	case "mnem/snapshot/restore":
		return d.handleSnapshotRestore(params)
	case "mnem/snapshot/restoreSymbol":
		return d.handleSnapshotRestoreSymbol(params)

	case "mnem/symbol/history":
		return d.handleSymbolHistory(params)
	case "mnem/symbol/diff":
		return d.handleSymbolDiff(params)
	case "mnem/symbol/search":
		return d.handleSymbolSearch(params)
	case "mnem/symbol/semantic_history":
		return d.handleSymbolSemanticHistory(params)

	case "mnem/file/list":
		return d.handleFileList(params)
	case "mnem/file/diff":
		return d.handleFileDiff(params)
	case "mnem/file/info":
		return d.handleFileInfo(params)

	case "mnem/content/search":
		return d.handleContentSearch(params)

	case "mnem/maintenance/gc":
		return d.handleMaintenanceGC(params)

	default:
		return nil, &rpc.Error{Code: rpc.CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

// --- Lifecycle ---

type initializeParams struct {
	Capabilities json.RawMessage `json:"capabilities"`
}

type serverCapabilities struct {
	ServerName    string `json:"server_name"`
	ServerVersion string `json:"server_version"`
	StartedAt     string `json:"started_at"`
}

func (d *Daemon) handleInitialize(raw json.RawMessage) (any, error) {
	var params initializeParams
	_ = decodeParams(raw, &params)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Uninitialized:
		d.state = Initializing
		d.state = Initialized
	case Initializing:
		return nil, &rpc.Error{Code: rpc.CodeServerNotInitialized, Message: "daemon: initialize already in progress"}
	case Initialized:
		// idempotent: fall through, echo the same capabilities
	}

	return serverCapabilities{
		ServerName:    "mnemd",
		ServerVersion: "1.0",
		StartedAt:     d.startTime.Format(time.RFC3339),
	}, nil
}

func (d *Daemon) handleShutdown() (any, error) {
	d.mu.Lock()
	d.state = Shutdown
	d.mu.Unlock()

	go func() {
		time.Sleep(100 * time.Millisecond)
		d.exitFunc()
	}()
	return map[string]bool{"ok": true}, nil
}

type statusResult struct {
	State               string `json:"state"`
	UptimeSeconds        int64  `json:"uptime_seconds"`
	TotalRequests        int64  `json:"total_requests"`
	TotalProcessingUs     int64  `json:"total_processing_time_us"`
	TotalSaves           int64  `json:"total_saves"`
	TotalSaveTimeUs      int64  `json:"total_save_time_us"`
	WatchedProjects      int    `json:"watched_projects"`
}

func (d *Daemon) handleStatus() statusResult {
	d.mu.Lock()
	state := d.state
	started := d.startTime
	n := len(d.projects)
	d.mu.Unlock()

	uptime := int64(0)
	if !started.IsZero() {
		uptime = int64(time.Since(started).Seconds())
	}

	return statusResult{
		State:           state.String(),
		UptimeSeconds:    uptime,
		TotalRequests:    d.counters.totalRequests.Load(),
		TotalProcessingUs: d.counters.totalProcessingUs.Load(),
		TotalSaves:       d.counters.totalSaves.Load(),
		TotalSaveTimeUs:  d.counters.totalSaveTimeUs.Load(),
		WatchedProjects:  n,
	}
}

// --- Projects ---

func (d *Daemon) resolveProject(projectPath string) (*projectEntry, error) {
	canon, err := filepath.EvalSymlinks(projectPath)
	if err != nil {
		canon = projectPath
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.projects[canon]
	if !ok {
		return nil, errProjectNotFound(projectPath)
	}
	return entry, nil
}

type projectWatchParams struct {
	ProjectPath string `json:"project_path"`
	Name        string `json:"name"`
}

func (d *Daemon) handleProjectWatch(raw json.RawMessage) (any, error) {
	var p projectWatchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	d.mu.Lock()
	if _, ok := d.projects[p.ProjectPath]; ok {
		d.mu.Unlock()
		return map[string]bool{"already_watched": true}, nil
	}
	d.mu.Unlock()

	name := p.Name
	if name == "" {
		name = filepath.Base(p.ProjectPath)
	}
	if err := d.watchProject(p.ProjectPath, name); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidPath, Message: err.Error()}
	}
	return map[string]bool{"ok": true}, nil
}

type projectPathParams struct {
	ProjectPath string `json:"project_path"`
}

func (d *Daemon) handleProjectUnwatch(raw json.RawMessage) (any, error) {
	var p projectPathParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	if err := d.unwatchProject(p.ProjectPath); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type projectInfo struct {
	ID       string `json:"project_id"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	LastOpen string `json:"last_open"`
	Watched  bool   `json:"watched"`
}

func (d *Daemon) handleProjectList() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []projectInfo
	for _, p := range d.reg.List() {
		_, watched := d.projects[p.Path]
		out = append(out, projectInfo{ID: p.ID, Path: p.Path, Name: p.Name, LastOpen: p.LastOpen.Format(time.RFC3339), Watched: watched})
	}
	return out, nil
}

func (d *Daemon) handleProjectActivity(raw json.RawMessage) (any, error) {
	var p struct {
		ProjectPath string `json:"project_path"`
		Limit       int    `json:"limit"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	recent, err := entry.repo.KV.GetRecentFiles(limit, "", 0)
	if err != nil {
		return nil, err
	}
	return resolveRecentFiles(entry, recent)
}

type recentFileResult struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Timestamp   string `json:"timestamp"`
}

func resolveRecentFiles(entry *projectEntry, recent []kv.RecentFile) ([]recentFileResult, error) {
	out := make([]recentFileResult, 0, len(recent))
	for _, r := range recent {
		path, err := entry.repo.KV.Resolve(r.PathID)
		if err != nil {
			return nil, err
		}
		out = append(out, recentFileResult{Path: path, ContentHash: r.ContentHash, Timestamp: r.Timestamp})
	}
	return out, nil
}

func (d *Daemon) handleProjectMap(raw json.RawMessage) (any, error) {
	var p projectPathParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	latest, err := entry.repo.KV.GetLatestState()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(latest))
	for pathID, rec := range latest {
		path, err := entry.repo.KV.Resolve(pathID)
		if err != nil {
			return nil, err
		}
		out[path] = rec.ContentHash
	}
	return out, nil
}

type statisticsResult struct {
	TrackedFiles int `json:"tracked_files"`
	TotalSnapshots int `json:"total_snapshots"`
}

func (d *Daemon) handleProjectStatistics(raw json.RawMessage) (any, error) {
	var p projectPathParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	latest, err := entry.repo.KV.GetLatestState()
	if err != nil {
		return nil, err
	}
	hist, err := entry.repo.KV.GetGlobalHistory(1 << 30)
	if err != nil {
		return nil, err
	}
	return statisticsResult{TrackedFiles: len(latest), TotalSnapshots: len(hist)}, nil
}

type checkpointParams struct {
	ProjectPath string `json:"project_path"`
	Description string `json:"description"`
}

type checkpointResult struct {
	Hash        string `json:"hash"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
	FileCount   int    `json:"file_count"`
}

func (d *Daemon) handleProjectCheckpoint(raw json.RawMessage) (any, error) {
	var p checkpointParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	manifest, err := entry.repo.SaveCheckpoint(p.Description)
	if err != nil {
		return nil, err
	}
	return checkpointResult{
		Hash:        manifest.Hash,
		Timestamp:   manifest.Timestamp.Format(time.RFC3339),
		Description: manifest.Description,
		FileCount:   len(manifest.Entries),
	}, nil
}

type revertParams struct {
	ProjectPath    string `json:"project_path"`
	CheckpointHash string `json:"checkpoint_hash"`
}

func (d *Daemon) handleProjectRevert(raw json.RawMessage) (any, error) {
	var p revertParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	manifest, err := entry.repo.RevertToCheckpoint(p.CheckpointHash)
	if err != nil {
		return nil, err
	}
	return checkpointResult{
		Hash:        manifest.Hash,
		Timestamp:   manifest.Timestamp.Format(time.RFC3339),
		Description: manifest.Description,
		FileCount:   len(manifest.Entries),
	}, nil
}

func (d *Daemon) handleProjectReload(raw json.RawMessage) (any, error) {
	var p struct {
		ProjectPath string `json:"project_path"`
	}
	_ = decodeParams(raw, &p)
	if p.ProjectPath == "" {
		d.RestoreOnStart()
		return map[string]bool{"ok": true}, nil
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		// not currently watched: attempt a fresh watch, matching
		// restore-on-start's own "re-watch if the path still exists" rule.
		if werr := d.watchProject(p.ProjectPath, filepath.Base(p.ProjectPath)); werr != nil {
			return nil, werr
		}
		return map[string]bool{"ok": true}, nil
	}
	if err := entry.mon.InitialScan(context.Background()); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

// --- Snapshots ---

type snapshotCreateParams struct {
	ProjectPath    string `json:"project_path"`
	FilePath       string `json:"file_path"`
	ContentBase64  string `json:"content_base64"`
	Branch         string `json:"branch"`
}

type snapshotCreateResult struct {
	ContentHash string `json:"content_hash"`
	IsNew       bool   `json:"is_new"`
}

func (d *Daemon) handleSnapshotCreate(raw json.RawMessage) (any, error) {
	var p snapshotCreateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var hash string
	var isNew bool
	if p.ContentBase64 != "" {
		content, decErr := base64.StdEncoding.DecodeString(p.ContentBase64)
		if decErr != nil {
			return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: decErr.Error()}
		}
		hash, isNew, err = entry.repo.SaveSnapshot(p.FilePath, content, p.Branch)
	} else {
		absPath := filepath.Join(entry.path, filepath.FromSlash(p.FilePath))
		hash, isNew, err = entry.repo.SaveSnapshotFromFile(absPath, p.Branch)
	}
	if err != nil {
		return nil, err
	}
	d.counters.totalSaves.Add(1)
	d.counters.totalSaveTimeUs.Add(time.Since(start).Microseconds())
	if isNew {
		d.cache.Invalidate(p.FilePath)
	}
	return snapshotCreateResult{ContentHash: hash, IsNew: isNew}, nil
}

type snapshotListParams struct {
	ProjectPath string `json:"project_path"`
	FilePath    string `json:"file_path"`
	Limit       int    `json:"limit"`
}

type snapshotInfo struct {
	ID          uint64 `json:"id"`
	Path        string `json:"path"`
	Timestamp   string `json:"timestamp"`
	ContentHash string `json:"content_hash"`
	Branch      string `json:"branch"`
	CommitHash  string `json:"commit_hash,omitempty"`
}

func (d *Daemon) handleSnapshotList(raw json.RawMessage) (any, error) {
	var p snapshotListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}

	if p.FilePath == "" {
		limit := p.Limit
		if limit <= 0 {
			limit = 100
		}
		hist, err := entry.repo.KV.GetGlobalHistory(limit)
		if err != nil {
			return nil, err
		}
		return toSnapshotInfos(entry, hist)
	}

	if recs, ok := d.cache.Get(p.FilePath); ok {
		return toSnapshotInfos(entry, recs)
	}

	pathID, err := entry.repo.KV.Intern(p.FilePath)
	if err != nil {
		return nil, err
	}
	hist, err := entry.repo.KV.GetHistory(pathID)
	if err != nil {
		return nil, err
	}
	d.cache.Put(p.FilePath, hist)
	return toSnapshotInfos(entry, hist)
}

func toSnapshotInfos(entry *projectEntry, recs []kv.SnapshotRecord) ([]snapshotInfo, error) {
	out := make([]snapshotInfo, 0, len(recs))
	for _, rec := range recs {
		path, err := entry.repo.KV.Resolve(rec.PathID)
		if err != nil {
			return nil, err
		}
		branch, err := entry.repo.KV.Resolve(rec.BranchID)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshotInfo{
			ID: rec.ID, Path: path, Timestamp: rec.Timestamp,
			ContentHash: rec.ContentHash, Branch: branch, CommitHash: rec.CommitHash,
		})
	}
	return out, nil
}

type snapshotGetParams struct {
	ProjectPath string `json:"project_path"`
	ContentHash string `json:"content_hash"`
}

type snapshotGetResult struct {
	ContentHash   string `json:"content_hash"`
	ContentBase64 string `json:"content_base64"`
}

func (d *Daemon) handleSnapshotGet(raw json.RawMessage) (any, error) {
	var p snapshotGetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	content, err := entry.repo.Blobs.Read(p.ContentHash)
	if err != nil {
		return nil, err
	}
	return snapshotGetResult{ContentHash: p.ContentHash, ContentBase64: base64.StdEncoding.EncodeToString(content)}, nil
}

type snapshotRestoreParams struct {
	ProjectPath string `json:"project_path"`
	ContentHash string `json:"content_hash"`
	TargetPath  string `json:"target_path"`
}

func (d *Daemon) handleSnapshotRestore(raw json.RawMessage) (any, error) {
	var p snapshotRestoreParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	target := p.TargetPath
	if !filepath.IsAbs(target) {
		target = filepath.Join(entry.path, filepath.FromSlash(target))
	}
	if err := entry.repo.RestoreFile(p.ContentHash, target); err != nil {
		return nil, err
	}
	d.cache.Invalidate(relOf(entry.path, target))
	return map[string]bool{"ok": true}, nil
}

type snapshotRestoreSymbolParams struct {
	ProjectPath string `json:"project_path"`
	FilePath    string `json:"file_path"`
	ContentHash string `json:"content_hash"`
	SymbolName  string `json:"symbol_name"`
}

func (d *Daemon) handleSnapshotRestoreSymbol(raw json.RawMessage) (any, error) {
	var p snapshotRestoreSymbolParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	absPath := p.FilePath
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(entry.path, filepath.FromSlash(absPath))
	}
	if err := entry.repo.RestoreSymbol(absPath, p.ContentHash, p.SymbolName); err != nil {
		return nil, err
	}
	d.cache.Invalidate(relOf(entry.path, absPath))
	return map[string]bool{"ok": true}, nil
}

func relOf(root, absPath string) string {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

// --- Symbols ---

type symbolNameParams struct {
	ProjectPath string `json:"project_path"`
	SymbolName  string `json:"symbol_name"`
}

type symbolInfo struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Scope          string `json:"scope,omitempty"`
	SnapshotID     uint64 `json:"snapshot_id"`
	StructuralHash string `json:"structural_hash"`
	StartLine      uint32 `json:"start_line"`
	EndLine        uint32 `json:"end_line"`
}

func (d *Daemon) handleSymbolHistory(raw json.RawMessage) (any, error) {
	var p symbolNameParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	nameID, err := entry.repo.KV.Intern(p.SymbolName)
	if err != nil {
		return nil, err
	}
	recs, err := entry.repo.KV.GetSymbolHistory(nameID)
	if err != nil {
		return nil, err
	}
	return toSymbolInfos(entry, recs)
}

func toSymbolInfos(entry *projectEntry, recs []kv.SymbolRecord) ([]symbolInfo, error) {
	out := make([]symbolInfo, 0, len(recs))
	for _, rec := range recs {
		name, err := entry.repo.KV.Resolve(rec.NameID)
		if err != nil {
			return nil, err
		}
		kind, err := entry.repo.KV.Resolve(rec.KindID)
		if err != nil {
			return nil, err
		}
		scope, err := entry.repo.KV.Resolve(rec.ScopeID)
		if err != nil {
			return nil, err
		}
		out = append(out, symbolInfo{
			ID: rec.ID, Name: name, Kind: kind, Scope: scope, SnapshotID: rec.SnapshotID,
			StructuralHash: rec.StructuralHash, StartLine: rec.StartLine, EndLine: rec.EndLine,
		})
	}
	return out, nil
}

type symbolDiffParams struct {
	ProjectPath    string `json:"project_path"`
	FromSnapshotID uint64 `json:"from_snapshot_id"`
	ToSnapshotID   uint64 `json:"to_snapshot_id"`
}

type symbolDeltaResult struct {
	Kind           string `json:"kind"`
	SymbolName     string `json:"symbol_name"`
	NewName        string `json:"new_name,omitempty"`
	StructuralHash string `json:"structural_hash"`
}

func (d *Daemon) handleSymbolDiff(raw json.RawMessage) (any, error) {
	var p symbolDiffParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	prevRecs, err := entry.repo.KV.GetSymbolsForSnapshot(p.FromSnapshotID)
	if err != nil {
		return nil, err
	}
	currRecs, err := entry.repo.KV.GetSymbolsForSnapshot(p.ToSnapshotID)
	if err != nil {
		return nil, err
	}
	prev, err := toDiffSymbols(entry, prevRecs)
	if err != nil {
		return nil, err
	}
	curr, err := toDiffSymbols(entry, currRecs)
	if err != nil {
		return nil, err
	}
	deltas := symboldiff.Diff(prev, curr)
	out := make([]symbolDeltaResult, len(deltas))
	for i, delta := range deltas {
		out[i] = symbolDeltaResult{
			Kind: deltaKindString(delta.Kind), SymbolName: delta.SymbolName,
			NewName: delta.NewName, StructuralHash: delta.StructuralHash,
		}
	}
	return out, nil
}

func toDiffSymbols(entry *projectEntry, recs []kv.SymbolRecord) ([]symboldiff.Symbol, error) {
	out := make([]symboldiff.Symbol, 0, len(recs))
	for _, rec := range recs {
		name, err := entry.repo.KV.Resolve(rec.NameID)
		if err != nil {
			return nil, err
		}
		kind, err := entry.repo.KV.Resolve(rec.KindID)
		if err != nil {
			return nil, err
		}
		out = append(out, symboldiff.Symbol{Name: name, Kind: kind, StructuralHash: rec.StructuralHash})
	}
	return out, nil
}

func deltaKindString(k symboldiff.DeltaKind) string {
	switch k {
	case symboldiff.Added:
		return "added"
	case symboldiff.Modified:
		return "modified"
	case symboldiff.Deleted:
		return "deleted"
	case symboldiff.Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

type symbolSearchParams struct {
	ProjectPath string `json:"project_path"`
	Query       string `json:"query"`
}

func (d *Daemon) handleSymbolSearch(raw json.RawMessage) (any, error) {
	var p symbolSearchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	recs, err := entry.repo.KV.FindSymbolsByName(p.Query)
	if err != nil {
		return nil, err
	}
	return toSymbolInfos(entry, recs)
}

type deltaResult struct {
	Kind           string `json:"kind"`
	SymbolName     string `json:"symbol_name"`
	NewName        string `json:"new_name,omitempty"`
	StructuralHash string `json:"structural_hash"`
	FromSnapshotID uint64 `json:"from_snapshot_id,omitempty"`
	ToSnapshotID   uint64 `json:"to_snapshot_id"`
}

func (d *Daemon) handleSymbolSemanticHistory(raw json.RawMessage) (any, error) {
	var p symbolNameParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	deltas, err := entry.repo.KV.GetSymbolDeltas(p.SymbolName)
	if err != nil {
		return nil, err
	}
	out := make([]deltaResult, len(deltas))
	for i, rec := range deltas {
		out[i] = deltaResult{
			Kind: deltaKindFromRecord(rec.Kind), SymbolName: rec.SymbolName, NewName: rec.NewName,
			StructuralHash: rec.StructuralHash, FromSnapshotID: rec.FromSnapshotID, ToSnapshotID: rec.ToSnapshotID,
		}
	}
	return out, nil
}

func deltaKindFromRecord(k kv.DeltaKind) string {
	switch k {
	case kv.DeltaAdded:
		return "added"
	case kv.DeltaModified:
		return "modified"
	case kv.DeltaDeleted:
		return "deleted"
	case kv.DeltaRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// --- Files ---

type fileListParams struct {
	ProjectPath string `json:"project_path"`
	Filter      string `json:"filter"`
	Branch      string `json:"branch"`
	Limit       int    `json:"limit"`
}

func (d *Daemon) handleFileList(raw json.RawMessage) (any, error) {
	var p fileListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	var branchID uint32
	if p.Branch != "" {
		branchID, err = entry.repo.KV.Intern(p.Branch)
		if err != nil {
			return nil, err
		}
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 200
	}
	recent, err := entry.repo.KV.GetRecentFiles(limit, p.Filter, branchID)
	if err != nil {
		return nil, err
	}
	results, err := resolveRecentFiles(entry, recent)
	if err != nil {
		return nil, err
	}
	if p.Filter == "" {
		return results, nil
	}
	filtered := make([]recentFileResult, 0, len(results))
	for _, r := range results {
		if containsSubstring(r.Path, p.Filter) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func containsSubstring(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

type fileDiffParams struct {
	ProjectPath string `json:"project_path"`
	FromHash    string `json:"from_hash"`
	ToHash      string `json:"to_hash"`
}

type diffHunk struct {
	Op   string `json:"op"` // "equal" | "insert" | "delete"
	Text string `json:"text"`
}

func (d *Daemon) handleFileDiff(raw json.RawMessage) (any, error) {
	var p fileDiffParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	from, err := entry.repo.Blobs.Read(p.FromHash)
	if err != nil {
		return nil, err
	}
	to, err := entry.repo.Blobs.Read(p.ToHash)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	fromLines, toLines, lineArray := dmp.DiffLinesToChars(string(from), string(to))
	diffs := dmp.DiffMain(fromLines, toLines, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	out := make([]diffHunk, 0, len(diffs))
	for _, diff := range diffs {
		var op string
		switch diff.Type {
		case diffmatchpatch.DiffEqual:
			op = "equal"
		case diffmatchpatch.DiffInsert:
			op = "insert"
		case diffmatchpatch.DiffDelete:
			op = "delete"
		}
		out = append(out, diffHunk{Op: op, Text: diff.Text})
	}
	return out, nil
}

type fileInfoParams struct {
	ProjectPath string `json:"project_path"`
	FilePath    string `json:"file_path"`
}

type fileInfoResult struct {
	Path          string `json:"path"`
	SnapshotCount int    `json:"snapshot_count"`
	LatestHash    string `json:"latest_content_hash"`
	LatestAt      string `json:"latest_timestamp"`
}

func (d *Daemon) handleFileInfo(raw json.RawMessage) (any, error) {
	var p fileInfoParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	pathID, err := entry.repo.KV.Intern(p.FilePath)
	if err != nil {
		return nil, err
	}
	hist, err := entry.repo.KV.GetHistory(pathID)
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, &rpc.Error{Code: rpc.CodeSnapshotNotFound, Message: fmt.Sprintf("no snapshots for %s", p.FilePath)}
	}
	return fileInfoResult{
		Path: p.FilePath, SnapshotCount: len(hist),
		LatestHash: hist[0].ContentHash, LatestAt: hist[0].Timestamp,
	}, nil
}

// --- Content ---

type contentSearchParams struct {
	ProjectPath string `json:"project_path"`
	Query       string `json:"query"`
	PathFilter  string `json:"path_filter"`
}

type grepMatchResult struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (d *Daemon) handleContentSearch(raw json.RawMessage) (any, error) {
	var p contentSearchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	matches, err := entry.repo.GrepContents(p.Query, p.PathFilter)
	if err != nil {
		return nil, err
	}
	out := make([]grepMatchResult, len(matches))
	for i, m := range matches {
		out[i] = grepMatchResult{Path: m.Path, Line: m.Line, Text: m.Text}
	}
	return out, nil
}

// --- Maintenance ---

func (d *Daemon) handleMaintenanceGC(raw json.RawMessage) (any, error) {
	var p struct {
		ProjectPath string `json:"project_path"`
	}
	_ = decodeParams(raw, &p)

	if p.ProjectPath == "" {
		d.runMaintenancePass()
		return map[string]bool{"ok": true}, nil
	}
	entry, err := d.resolveProject(p.ProjectPath)
	if err != nil {
		return nil, err
	}
	removed, err := entry.repo.RunGC()
	if err != nil {
		return nil, err
	}
	return map[string]int{"removed": removed}, nil
}
