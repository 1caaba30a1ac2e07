// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package daemon

import "testing"

func TestNormalizeMethodCanonicalPassesThrough(t *testing.T) {
	if got := normalizeMethod("mnem/project/watch"); got != "mnem/project/watch" {
		t.Fatalf("got %q, want unchanged canonical name", got)
	}
}

func TestNormalizeMethodLifecyclePassesThrough(t *testing.T) {
	for _, m := range []string{"initialize", "initialized", "shutdown", "exit", "status"} {
		if got := normalizeMethod(m); got != m {
			t.Fatalf("normalizeMethod(%q) = %q, want unchanged", m, got)
		}
	}
}

func TestNormalizeMethodAddsPrefix(t *testing.T) {
	if got := normalizeMethod("project/watch"); got != "mnem/project/watch" {
		t.Fatalf("got %q, want mnem/project/watch", got)
	}
}

func TestNormalizeMethodIrregularAliases(t *testing.T) {
	cases := map[string]string{
		"daemon/getStatus": "mnem/daemon/status",
		"project/reload":   "mnem/project/reload",
	}
	for in, want := range cases {
		if got := normalizeMethod(in); got != want {
			t.Fatalf("normalizeMethod(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMethodUnknownPassesThrough(t *testing.T) {
	if got := normalizeMethod("not/a/real/method"); got != "not/a/real/method" {
		t.Fatalf("got %q, want unchanged", got)
	}
}

func TestPreInitAllowlistMatchesCanonicalForms(t *testing.T) {
	for m := range preInitAllowlist {
		if !lifecycleMethods[m] && !canonicalMethods[m] {
			t.Fatalf("preInitAllowlist entry %q is neither a lifecycle nor canonical method", m)
		}
	}
}
