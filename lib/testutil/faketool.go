// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Deskwing packages.
//
// Deskwing's job is orchestrating external tools (device tool, tunnel
// client, Python interpreter), so most tests need a stand-in binary
// with scripted behavior. [FakeTool] writes one: an executable shell
// script in a fresh temporary directory. Scripts record their argv
// with `echo "$@" >> <log>` and [Invocations] reads the log back, one
// line per call.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Deskwing-internal dependencies.
package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FakeTool writes an executable shell script named name into a fresh
// temporary directory and returns the script's absolute path. The
// "#!/bin/sh" line is prepended; body is the rest of the script.
//
//	tool := testutil.FakeTool(t, "devcon", `echo "removed"`)
func FakeTool(t *testing.T, name, body string) string {
	t.Helper()
	return FakeToolAt(t, t.TempDir(), name, body)
}

// FakeToolAt is FakeTool with a caller-chosen directory, for tests
// that need several tools side by side or a tool at a specific spot
// (e.g. the working directory).
func FakeToolAt(t *testing.T, directory, name, body string) string {
	t.Helper()

	path := filepath.Join(directory, name)
	script := "#!/bin/sh\n" + body
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool %s: %v", name, err)
	}
	return path
}

// LogFile returns a path (inside a fresh temporary directory) for a
// fake tool's invocation log. The file does not exist until the tool
// first writes to it.
func LogFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "invocations.log")
}

// Invocations reads a fake tool's invocation log: one line per call,
// as written by `echo "$@" >> <log>`. A log that was never written
// (the tool never ran) yields nil.
func Invocations(t *testing.T, logPath string) []string {
	t.Helper()

	data, err := os.ReadFile(logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("reading invocation log: %v", err)
	}

	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
