// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package devnode manages virtual display device nodes through an
// external device management tool (devcon-compatible). Deskwing
// installs a virtual display driver so the phone can mirror a second
// monitor; teardown removes the device nodes that driver created so
// they don't accumulate across sessions.
//
// The central type is Tool, a typed wrapper around the device tool
// binary, analogous to how lib/adb wraps the tunnel client. Manager
// layers removal strategy on top: enumerate the device inventory and
// remove matching records, falling back to blind per-pattern removal
// when the tool cannot enumerate.
package devnode

import (
	"errors"
	"os"
	"strings"
)

// ErrNotElevated is returned when a removal operation is attempted
// without an elevated (effective UID 0) process. Device node removal
// modifies system device state and is refused outright otherwise.
var ErrNotElevated = errors.New("process is not elevated")

// geteuid is a stub point for tests; production code always asks the
// real process.
var geteuid = os.Geteuid

// Elevated reports whether the current process runs with effective
// UID 0. Removal operations check this before issuing any command.
func Elevated() bool {
	return geteuid() == 0
}

// DeviceRecord is one row of the device tool's inventory: the device
// instance ID and its human-readable display name.
type DeviceRecord struct {
	ID          string
	DisplayName string
}

// ParseInventory parses "find" output into device records. Each
// device line has the form "<id>: <display name>". The split is on
// the first colon only: display names may themselves contain colons.
// Lines without a colon (headers, match-count trailers, blank lines)
// are skipped, as are lines with an empty ID.
func ParseInventory(output string) []DeviceRecord {
	var records []DeviceRecord
	for _, line := range strings.Split(output, "\n") {
		id, name, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		records = append(records, DeviceRecord{
			ID:          id,
			DisplayName: strings.TrimSpace(name),
		})
	}
	return records
}

// Matcher selects device records for removal.
type Matcher interface {
	// Matches reports whether the record should be removed.
	Matches(record DeviceRecord) bool
}

// GlobMatcher matches a device record's instance ID against a glob
// pattern. Matching is case-insensitive and '*' matches any run of
// characters. Hardware IDs use backslashes as path separators
// (root\usbmmidd), so this is a dedicated matcher rather than
// filepath.Match, which would treat them as escapes.
type GlobMatcher struct {
	pattern string
}

// NewGlobMatcher returns a matcher for the given ID glob pattern.
func NewGlobMatcher(pattern string) GlobMatcher {
	return GlobMatcher{pattern: pattern}
}

// Pattern returns the glob pattern this matcher was built from.
func (m GlobMatcher) Pattern() string {
	return m.pattern
}

// Matches reports whether the record's ID matches the glob pattern.
func (m GlobMatcher) Matches(record DeviceRecord) bool {
	return globMatch(strings.ToLower(m.pattern), strings.ToLower(record.ID))
}

// NameMatcher matches a device record whose display name contains a
// substring, case-insensitively. The default deskwing driver reports
// its monitors with "Virtual Display" in the name.
type NameMatcher struct {
	substring string
}

// NewNameMatcher returns a matcher for the given display-name substring.
func NewNameMatcher(substring string) NameMatcher {
	return NameMatcher{substring: substring}
}

// Matches reports whether the record's display name contains the
// substring.
func (m NameMatcher) Matches(record DeviceRecord) bool {
	return strings.Contains(
		strings.ToLower(record.DisplayName), strings.ToLower(m.substring))
}

// MatchAny combines matchers: a record matches when any member does.
// An empty list matches nothing.
func MatchAny(matchers ...Matcher) Matcher {
	return anyMatcher(matchers)
}

type anyMatcher []Matcher

func (m anyMatcher) Matches(record DeviceRecord) bool {
	for _, matcher := range m {
		if matcher.Matches(record) {
			return true
		}
	}
	return false
}

// globMatch reports whether value matches pattern, where '*' matches
// any run of characters (including none). Both inputs are expected to
// be lowercased by the caller. Standard greedy match with single-star
// backtracking.
func globMatch(pattern, value string) bool {
	patternIndex, valueIndex := 0, 0
	starIndex, backtrack := -1, 0
	for valueIndex < len(value) {
		switch {
		case patternIndex < len(pattern) && pattern[patternIndex] == '*':
			starIndex = patternIndex
			backtrack = valueIndex
			patternIndex++
		case patternIndex < len(pattern) && pattern[patternIndex] == value[valueIndex]:
			patternIndex++
			valueIndex++
		case starIndex >= 0:
			patternIndex = starIndex + 1
			backtrack++
			valueIndex = backtrack
		default:
			return false
		}
	}
	for patternIndex < len(pattern) && pattern[patternIndex] == '*' {
		patternIndex++
	}
	return patternIndex == len(pattern)
}
