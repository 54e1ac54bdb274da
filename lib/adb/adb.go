// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package adb provides typed access to the Android debug bridge CLI.
// Deskwing uses adb for two things: reverse port tunnels so the phone
// can reach the streaming server over USB, and sideloading the client
// app. All commands go through Client, which invokes the binary at a
// resolved path, analogous to how lib/devnode wraps the device tool.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Client invokes the adb binary at a fixed path. There is no default
// path; callers resolve the binary through toolpath first.
type Client struct {
	path string
}

// NewClient returns a Client invoking the binary at path.
func NewClient(path string) *Client {
	return &Client{path: path}
}

// Path returns the resolved binary path.
func (c *Client) Path() string {
	return c.path
}

// Run executes an adb command and returns stdout. Stderr is captured
// separately and included in error messages on failure; adb reports
// "no devices/emulators found" and "device unauthorized" there.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, c.path, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("adb %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Mapping is one reverse tunnel: connections the device opens to its
// Remote port are forwarded to Local on this host. Protocol defaults
// to "tcp".
type Mapping struct {
	Local    int
	Remote   int
	Protocol string
}

func (m Mapping) protocol() string {
	if m.Protocol == "" {
		return "tcp"
	}
	return m.Protocol
}

// RemoteSpec returns the device-side endpoint ("tcp:8080").
func (m Mapping) RemoteSpec() string {
	return fmt.Sprintf("%s:%d", m.protocol(), m.Remote)
}

// LocalSpec returns the host-side endpoint ("tcp:8080").
func (m Mapping) LocalSpec() string {
	return fmt.Sprintf("%s:%d", m.protocol(), m.Local)
}

// Reverse establishes one reverse tunnel on the attached device.
// Fails when no device is attached or USB debugging is off.
func (c *Client) Reverse(ctx context.Context, mapping Mapping) error {
	_, err := c.Run(ctx, "reverse", mapping.RemoteSpec(), mapping.LocalSpec())
	if err != nil {
		return fmt.Errorf("reverse tunnel %s -> %s: %w",
			mapping.RemoteSpec(), mapping.LocalSpec(), err)
	}
	return nil
}

// Install sideloads an app package onto the attached device. The -r
// flag reinstalls over an existing copy, keeping its data, so repeat
// bootstraps don't fail on an already-installed client.
func (c *Client) Install(ctx context.Context, packagePath string) error {
	output, err := c.Run(ctx, "install", "-r", packagePath)
	if err != nil {
		return fmt.Errorf("installing %s: %w", packagePath, err)
	}
	// adb reports some install failures with exit status 0 and a
	// "Failure [REASON]" line on stdout.
	if strings.Contains(output, "Failure") {
		return fmt.Errorf("installing %s: %s", packagePath, strings.TrimSpace(output))
	}
	return nil
}

// Version returns the adb version banner's first line. Used by doctor
// to prove the binary is runnable, not merely present.
func (c *Client) Version(ctx context.Context) (string, error) {
	output, err := c.Run(ctx, "version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(output, "\n")
	return strings.TrimSpace(line), nil
}
