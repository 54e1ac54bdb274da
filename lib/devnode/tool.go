// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package devnode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tool wraps the device management tool binary at a resolved path.
// The binary is devcon-compatible: "find <pattern>" lists device
// nodes, "remove <pattern>" deletes them. There is no default path;
// callers resolve the binary through toolpath first, so the working
// directory copy wins over an installed one.
type Tool struct {
	path string
}

// NewTool returns a Tool invoking the binary at path.
func NewTool(path string) *Tool {
	return &Tool{path: path}
}

// Path returns the resolved binary path.
func (t *Tool) Path() string {
	return t.path
}

// Run executes the device tool and returns stdout. Stderr is captured
// separately and included in error messages on failure.
func (t *Tool) Run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, t.path, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (stderr: %s)",
			t.path, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// FindAll enumerates every device node the tool can see. Returns the
// parsed inventory. A tool that cannot enumerate (non-zero exit from
// "find *") returns an error; callers fall back to pattern removal.
func (t *Tool) FindAll(ctx context.Context) ([]DeviceRecord, error) {
	output, err := t.Run(ctx, "find", "*")
	if err != nil {
		return nil, err
	}
	return ParseInventory(output), nil
}

// Remove deletes the device nodes matching pattern and returns the
// tool's output. A pattern that matches nothing is success, not an
// error: the tool exits non-zero for it, but teardown's fixed pattern
// list is expected to over-cover.
func (t *Tool) Remove(ctx context.Context, pattern string) (string, error) {
	var combined bytes.Buffer
	command := exec.CommandContext(ctx, t.path, "remove", pattern)
	command.Stdout = &combined
	command.Stderr = &combined

	err := command.Run()
	output := strings.TrimSpace(combined.String())
	if err != nil {
		if noMatchOutput(output) {
			return output, nil
		}
		return "", fmt.Errorf("%s remove %q: %w (%s)", t.path, pattern, err, output)
	}
	return output, nil
}

// noMatchOutput reports whether remove output indicates a benign
// zero-match exit ("No matching devices found.", "No devices removed.").
func noMatchOutput(output string) bool {
	lowered := strings.ToLower(output)
	return strings.Contains(lowered, "no matching devices") ||
		strings.Contains(lowered, "no devices")
}
