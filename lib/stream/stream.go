// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream builds and runs the streaming server invocation.
// The server itself is an external Python program; this package owns
// translating deskwing's stream configuration into the server's
// command line and running it as the blocking foreground process that
// a bootstrap run hands the terminal to.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// Mode selects the transport between the phone and this host.
type Mode string

const (
	// ModeUSB streams over a USB reverse tunnel.
	ModeUSB Mode = "usb"

	// ModeWireless streams over the local network.
	ModeWireless Mode = "wireless"
)

// ParseMode parses a transport mode, case-insensitively.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(value)) {
	case ModeUSB:
		return ModeUSB, nil
	case ModeWireless:
		return ModeWireless, nil
	}
	return "", fmt.Errorf("unknown stream mode %q (want usb or wireless)", value)
}

// LaunchSpec is everything needed to start the streaming server.
type LaunchSpec struct {
	// Interpreter is the resolved Python binary.
	Interpreter string

	// Script is the server script path.
	Script string

	Mode         Mode
	FPS          int
	DisplayIndex int

	// Quality is the JPEG quality percentage, 1-100.
	Quality int

	// Scale downsamples captured frames; 1.0 (or 0) means native size
	// and is omitted from the argv.
	Scale float64

	// Adaptive lets the server degrade quality under bandwidth
	// pressure. Off by default: a second monitor that changes quality
	// mid-session is more jarring than one that drops frames.
	Adaptive bool

	// BandwidthBps caps the stream's bandwidth in bytes per second.
	// Zero means uncapped and is omitted from the argv.
	BandwidthBps int

	// ControlPort serves the browser control page and websocket.
	ControlPort int

	// DataPort carries the raw frame stream.
	DataPort int
}

// Args returns the interpreter argv for this launch: the script
// followed by its flags. Boolean server flags are presence-only:
// --usb appears only in USB mode, --no-adaptive only when adaptive
// streaming is off.
func (s LaunchSpec) Args() []string {
	args := []string{s.Script}
	if s.Mode == ModeUSB {
		args = append(args, "--usb")
	}
	args = append(args,
		"--fps", strconv.Itoa(s.FPS),
		"--monitor", strconv.Itoa(s.DisplayIndex),
		"--quality", strconv.Itoa(s.Quality),
	)
	if s.Scale != 0 && s.Scale != 1 {
		args = append(args, "--scale", strconv.FormatFloat(s.Scale, 'g', -1, 64))
	}
	if !s.Adaptive {
		args = append(args, "--no-adaptive")
	}
	if s.BandwidthBps > 0 {
		args = append(args, "--bandwidth", strconv.Itoa(s.BandwidthBps))
	}
	args = append(args,
		"--port", strconv.Itoa(s.ControlPort),
		"--raw-port", strconv.Itoa(s.DataPort),
	)
	return args
}

// ControlURL returns the browser address of the server's control
// page, reachable once the server is up.
func (s LaunchSpec) ControlURL() string {
	return fmt.Sprintf("http://localhost:%d", s.ControlPort)
}

// Run starts the server and blocks until it exits. The server runs in
// its own process group so that context cancellation (the user's
// interrupt) kills it and any capture helpers it spawned; without
// Setpgid only the interpreter would receive the signal. env is the
// complete child environment, typically toolpath's Environ() so
// bundle-provided tools stay resolvable; out and errOut receive the
// server's output.
func Run(ctx context.Context, spec LaunchSpec, env []string, out, errOut io.Writer) error {
	cmd := exec.CommandContext(ctx, spec.Interpreter, spec.Args()...)
	cmd.Stdout = out
	cmd.Stderr = errOut
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("streaming server stopped: %w", ctx.Err())
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return fmt.Errorf("streaming server exited with code %d", exitError.ExitCode())
	}
	return fmt.Errorf("launching streaming server: %w", err)
}
