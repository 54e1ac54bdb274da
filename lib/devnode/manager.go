// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package devnode

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
)

// Manager removes the device nodes the virtual display driver
// creates. It prefers enumerate-then-match (list the inventory,
// filter with the matcher, remove each surviving record by ID) and
// falls back to one blind removal per configured pattern when the
// tool cannot enumerate.
type Manager struct {
	tool     *Tool
	patterns []string
	matcher  Matcher
	logger   *slog.Logger
}

// NewManager returns a Manager driving tool. patterns is the ordered
// hardware-ID glob list used for blind removal; matcher filters
// enumerated records. If logger is nil, a no-op logger is used.
func NewManager(tool *Tool, patterns []string, matcher Matcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		tool:     tool,
		patterns: patterns,
		matcher:  matcher,
		logger:   logger,
	}
}

// Teardown removes every matching device node. It refuses to issue
// any removal command without elevation: partial teardowns from
// permission failures midway are worse than not starting.
func (m *Manager) Teardown(ctx context.Context) error {
	if !Elevated() {
		return fmt.Errorf("removing virtual display device nodes: %w", ErrNotElevated)
	}

	records, err := m.tool.FindAll(ctx)
	if err != nil {
		// The tool cannot enumerate. Blind pattern removal still
		// works on such tools since remove treats zero matches as
		// success.
		m.logger.Warn("device enumeration unavailable, falling back to pattern removal",
			"error", err)
		return m.RemoveByPatterns(ctx)
	}

	removed, err := m.removeMatching(ctx, records)
	if err != nil {
		return err
	}
	if removed == 0 {
		m.logger.Info("no matching device nodes present")
	} else {
		m.logger.Info("removed device nodes", "count", removed)
	}
	return nil
}

// RemoveMatching enumerates the inventory and removes every record
// the matcher selects. Returns the number of nodes removed. Zero
// matches is success.
func (m *Manager) RemoveMatching(ctx context.Context) (int, error) {
	records, err := m.tool.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	return m.removeMatching(ctx, records)
}

func (m *Manager) removeMatching(ctx context.Context, records []DeviceRecord) (int, error) {
	removed := 0
	for _, record := range records {
		if !m.matcher.Matches(record) {
			continue
		}
		if _, err := m.tool.Remove(ctx, record.ID); err != nil {
			return removed, fmt.Errorf("removing device %s (%s): %w",
				record.ID, record.DisplayName, err)
		}
		m.logger.Info("removed device node",
			"id", record.ID, "name", record.DisplayName)
		removed++
	}
	return removed, nil
}

// RemoveByPatterns issues one removal per configured pattern without
// enumerating first. Patterns matching nothing succeed.
func (m *Manager) RemoveByPatterns(ctx context.Context) error {
	for _, pattern := range m.patterns {
		output, err := m.tool.Remove(ctx, pattern)
		if err != nil {
			return fmt.Errorf("removing devices matching %q: %w", pattern, err)
		}
		m.logger.Info("issued device removal", "pattern", pattern, "output", output)
	}
	return nil
}

// LaunchControlPanel starts the driver's control panel executable as
// a detached process in its own session, working directory set to the
// executable's directory. The parent never waits on it: the panel
// outlives the bootstrap run. Returns the child PID.
func LaunchControlPanel(path string) (int, error) {
	command := exec.Command(path)
	command.Dir = filepath.Dir(path)
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := command.Start(); err != nil {
		return 0, fmt.Errorf("launching control panel %s: %w", path, err)
	}
	pid := command.Process.Pid
	if err := command.Process.Release(); err != nil {
		return pid, fmt.Errorf("detaching control panel: %w", err)
	}
	return pid, nil
}
