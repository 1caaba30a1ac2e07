// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

// canonicalMethods is the v1 wire surface named in spec §6. Every
// "domain/verb" legacy alias (the same string without its "mnem/" prefix)
// is normalized to its canonical "mnem/domain/verb" form at dispatch
// entry, per spec §9's "legacy method-name normalization" design note.
var canonicalMethods = map[string]bool{
	"mnem/project/watch":            true,
	"mnem/project/unwatch":          true,
	"mnem/project/list":             true,
	"mnem/project/activity":         true,
	"mnem/project/map":              true,
	"mnem/project/statistics":       true,
	"mnem/project/checkpoint":       true,
	"mnem/project/revert":           true,
	"mnem/project/reload":           true,
	"mnem/snapshot/create":          true,
	"mnem/snapshot/list":            true,
	"mnem/snapshot/get":             true,
	"mnem/snapshot/restore":         true,
	"mnem/snapshot/restoreSymbol":   true,
	"mnem/symbol/history":           true,
	"mnem/symbol/diff":              true,
	"mnem/symbol/search":            true,
	"mnem/symbol/semantic_history":  true,
	"mnem/file/list":                true,
	"mnem/file/diff":                true,
	"mnem/file/info":                true,
	"mnem/content/search":           true,
	"mnem/daemon/status":            true,
	"mnem/maintenance/gc":           true,
}

// lifecycleMethods never carry an "mnem/" prefix, canonical or legacy.
var lifecycleMethods = map[string]bool{
	"initialize":  true,
	"initialized": true,
	"shutdown":    true,
	"exit":        true,
	"status":      true,
}

// legacyAliases maps a handful of pre-v1 names that don't reduce to
// "strip the mnem/ prefix" to their canonical equivalent, per spec §4.7's
// pre-init allowlist ("daemon/getStatus", "project/reload").
var legacyAliases = map[string]string{
	"daemon/getStatus": "mnem/daemon/status",
	"project/reload":   "mnem/project/reload",
}

// preInitAllowlist is the set of methods (already normalized) that may
// run before the daemon reaches Initialized, per spec §4.7.
var preInitAllowlist = map[string]bool{
	"initialize":          true,
	"status":               true,
	"mnem/daemon/status":   true,
	"mnem/project/reload":  true,
}

// normalizeMethod maps a wire method name to its canonical v1 form.
func normalizeMethod(method string) string {
	if lifecycleMethods[method] {
		return method
	}
	if canonicalMethods[method] {
		return method
	}
	if canon, ok := legacyAliases[method]; ok {
		return canon
	}
	candidate := "mnem/" + method
	if canonicalMethods[candidate] {
		return candidate
	}
	return method
}
