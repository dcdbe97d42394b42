// Package safety gates and records the agent's mutating actions: which
// services may be restarted, which actions need a second confirming call,
// and an append-only audit trail of everything that was attempted.
package safety

import (
	"path/filepath"
	"slices"
)

// Filter controls which named resources (service names) an action may touch.
// Glob patterns as understood by filepath.Match are supported in both lists.
//
// Rules:
//   - If both lists are empty (or nil), every resource is allowed.
//   - Denylist always takes priority over the allowlist.
//   - If a non-empty allowlist is present, a resource must match at least one
//     allowlist pattern.
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter constructs a Filter. Either list may be nil or empty.
func NewFilter(allowlist, denylist []string) *Filter {
	return &Filter{
		allowlist: allowlist,
		denylist:  denylist,
	}
}

// IsAllowed reports whether name is permitted. A nil Filter allows
// everything.
func (f *Filter) IsAllowed(name string) bool {
	if f == nil {
		return true
	}
	for _, pattern := range f.denylist {
		if matchGlob(pattern, name) {
			return false
		}
	}
	if len(f.allowlist) == 0 {
		return true
	}
	for _, pattern := range f.allowlist {
		if matchGlob(pattern, name) {
			return true
		}
	}
	return false
}

// Unmatched returns the patterns, from either list, that match none of
// known.
func (f *Filter) Unmatched(known []string) []string {
	if f == nil {
		return nil
	}
	var stale []string
	for _, pattern := range append(slices.Clone(f.allowlist), f.denylist...) {
		if !slices.ContainsFunc(known, func(name string) bool { return matchGlob(pattern, name) }) {
			stale = append(stale, pattern)
		}
	}
	return stale
}

// matchGlob treats malformed patterns as non-matching.
func matchGlob(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}
