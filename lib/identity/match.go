// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"path"
	"strings"
)

// MatchPattern checks whether a value matches a shell-style glob
// pattern. Allow-list entries in mindroom's authorization config use
// these patterns against full Matrix user IDs:
//
//	"@alice:example.com"   matches that exact user
//	"@*:example.com"       matches any user on example.com
//	"@admin-?:corp.net"    matches "@admin-1:corp.net", "@admin-x:corp.net"
//	"**"                   matches anything
//
// Beyond plain globbing, the pattern language supports "**" as a
// recursive wildcard across "/" boundaries (Matrix localparts may
// contain slashes): "@bridge/**:example.com" is not expressible with
// path.Match alone, so "**" handling mirrors the gitignore convention.
//
// Returns false for malformed patterns (unmatched brackets, etc.)
// rather than propagating errors — a malformed pattern must never
// grant access.
func MatchPattern(pattern, value string) bool {
	// Universal match.
	if pattern == "**" {
		return true
	}

	// No ** in the pattern — delegate to path.Match which handles
	// single-segment * and ? correctly (not matching /).
	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, value)
	}

	// Suffix form: "prefix/**" — match the prefix (with glob
	// wildcards), then anything after.
	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		// ** matches zero additional segments: entire value is the prefix.
		if matchGlob(prefix, value) {
			return true
		}
		// ** matches one or more additional segments.
		return hasMatchingPrefix(prefix, value)
	}

	// Prefix form: "**/suffix" — match anything before, then the
	// suffix (with glob wildcards).
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		if matchGlob(suffix, value) {
			return true
		}
		return hasMatchingSuffix(suffix, value)
	}

	// Interior form: "prefix/**/suffix" — split on the first /**,
	// match prefix and suffix independently with glob wildcards.
	separatorIndex := strings.Index(pattern, "/**/")
	if separatorIndex >= 0 {
		prefix := pattern[:separatorIndex]
		suffix := pattern[separatorIndex+4:]

		// Zero-segment case: ** matches nothing, prefix and suffix
		// are adjacent.
		if matchGlob(prefix+"/"+suffix, value) {
			return true
		}

		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(value, "/")

		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}

		prefixCandidate := strings.Join(segments[:prefixDepth], "/")
		if !matchGlob(prefix, prefixCandidate) {
			return false
		}

		suffixCandidate := strings.Join(segments[len(segments)-suffixDepth:], "/")
		if !matchGlob(suffix, suffixCandidate) {
			return false
		}

		// Segments consumed by ** must all be non-empty.
		for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** segments or other complex patterns — not supported.
	// Deny by default.
	return false
}

// MatchAnyPattern checks whether a value matches any of the given glob
// patterns. Returns true on the first match. Returns false if the
// patterns slice is empty (default-deny).
func MatchAnyPattern(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, value) {
			return true
		}
	}
	return false
}

// matchGlob matches a pattern against a string using path.Match
// semantics (wildcards * and ? do not cross / boundaries). Returns
// false for malformed patterns.
func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}

// hasMatchingPrefix reports whether the value starts with segments
// that match the given glob pattern, with at least one additional
// segment after the matched portion.
func hasMatchingPrefix(pattern, value string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(value, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[:depth], "/")
	return matchGlob(pattern, candidate)
}

// hasMatchingSuffix reports whether the value ends with segments that
// match the given glob pattern, with at least one additional segment
// before the matched portion.
func hasMatchingSuffix(pattern, value string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(value, "/")
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[len(segments)-depth:], "/")
	return matchGlob(pattern, candidate)
}
