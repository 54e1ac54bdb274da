// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package prereq resolves the external tools a bootstrap run depends
// on: the Python interpreter that hosts the streaming server and the
// adb tunnel client. Each dependency is probed first; a missing tool
// is acquired by extracting the manifest bundle that provides it,
// extending the run's tool search path with the bundle's exported bin
// directory, and probing again. Still missing after acquisition is
// fatal: nothing later in the pipeline can run without these.
package prereq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/deskwing/deskwing/lib/bundle"
	"github.com/deskwing/deskwing/lib/manifest"
	"github.com/deskwing/deskwing/lib/toolpath"
)

// Dependency is one external tool requirement: the binary name and
// the argv that proves it runs ("--version" style).
type Dependency struct {
	Name      string
	ProbeArgs []string
}

// Status reports one resolved dependency.
type Status struct {
	// Name is the dependency's binary name.
	Name string

	// Path is where the binary was found.
	Path string

	// Output is the first line the probe printed ("Python 3.12.1").
	Output string

	// Acquired is true when the tool was missing and a bundle
	// extraction satisfied it.
	Acquired bool
}

// Resolver probes dependencies and acquires missing ones from
// manifest bundles.
type Resolver struct {
	// Tools is the run's ordered tool search path. Acquisition
	// extends it in place so later stages (and the launched server)
	// see bundle-provided binaries.
	Tools *toolpath.Resolver

	// Manifest declares which bundles provide which tools.
	Manifest *manifest.Manifest

	// BundleDir is where bundle archives live.
	BundleDir string

	// ExtractRoot is where bundle targets are created.
	ExtractRoot string

	// Logger receives acquisition progress. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Ensure resolves every dependency in order. It stops at the first
// failure: dependencies are ordered by the caller so that earlier
// ones do not depend on later ones.
func (r *Resolver) Ensure(ctx context.Context, dependencies []Dependency) ([]Status, error) {
	statuses := make([]Status, 0, len(dependencies))
	for _, dependency := range dependencies {
		status, err := r.ensure(ctx, dependency)
		if err != nil {
			return statuses, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (r *Resolver) ensure(ctx context.Context, dependency Dependency) (Status, error) {
	status, probeErr := r.Probe(ctx, dependency)
	if probeErr == nil {
		return status, nil
	}

	provider := r.Manifest.BundleProviding(dependency.Name)
	if provider == nil {
		return Status{}, fmt.Errorf("dependency %s: %w (no bundle provides it)",
			dependency.Name, probeErr)
	}

	r.logger().Info("acquiring missing dependency from bundle",
		"dependency", dependency.Name, "bundle", provider.Name)
	if err := r.acquire(provider); err != nil {
		return Status{}, fmt.Errorf("dependency %s: %w", dependency.Name, err)
	}

	status, probeErr = r.Probe(ctx, dependency)
	if probeErr != nil {
		return Status{}, fmt.Errorf("dependency %s still missing after extracting bundle %q: %w",
			dependency.Name, provider.Name, probeErr)
	}
	status.Acquired = true
	return status, nil
}

// Probe locates the dependency's binary on the tool search path and
// runs its probe argv. Output is combined stdout and stderr: older
// interpreters print their version banner to stderr.
func (r *Resolver) Probe(ctx context.Context, dependency Dependency) (Status, error) {
	path, err := r.Tools.Locate(dependency.Name)
	if err != nil {
		return Status{}, err
	}

	command := exec.CommandContext(ctx, path, dependency.ProbeArgs...)
	command.Env = r.Tools.Environ()
	output, err := command.CombinedOutput()
	if err != nil {
		return Status{}, fmt.Errorf("%s %s: %w (%s)",
			path, strings.Join(dependency.ProbeArgs, " "),
			err, strings.TrimSpace(string(output)))
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	return Status{Name: dependency.Name, Path: path, Output: strings.TrimSpace(line)}, nil
}

// acquire extracts the provider bundle (digest-verified when the
// manifest declares one) and extends the tool search path with the
// bundle's exported bin directory.
func (r *Resolver) acquire(provider *manifest.Bundle) error {
	archivePath := filepath.Join(r.BundleDir, provider.Archive)
	targetDir := filepath.Join(r.ExtractRoot, provider.Target)

	result, err := bundle.ExtractVerified(archivePath, targetDir, provider.Digest)
	if err != nil {
		return fmt.Errorf("bundle %q: %w", provider.Name, err)
	}
	if result.Skipped {
		r.logger().Info("bundle already extracted",
			"bundle", provider.Name, "target", targetDir)
	} else {
		r.logger().Info("extracted bundle",
			"bundle", provider.Name, "target", targetDir, "files", result.Files)
	}

	exportDir := targetDir
	if provider.ExportBin != "" {
		exportDir = filepath.Join(targetDir, filepath.FromSlash(provider.ExportBin))
	}
	r.Tools.Extend(exportDir)
	return nil
}

// InstallPackages installs interpreter packages through the resolved
// interpreter's pip module. Output streams to out so install progress
// is visible; pass nil to discard it.
func (r *Resolver) InstallPackages(ctx context.Context, interpreter string, packages []string, out io.Writer) error {
	if len(packages) == 0 {
		return nil
	}
	if out == nil {
		out = io.Discard
	}

	args := append([]string{"-m", "pip", "install"}, packages...)
	command := exec.CommandContext(ctx, interpreter, args...)
	command.Env = r.Tools.Environ()
	command.Stdout = out
	command.Stderr = out

	if err := command.Run(); err != nil {
		return fmt.Errorf("pip install %s: %w", strings.Join(packages, " "), err)
	}
	return nil
}
