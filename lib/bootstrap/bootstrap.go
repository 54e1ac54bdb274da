// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap assembles the up and down pipelines from loaded
// configuration and manifest. Each stage is a closure over a shared
// Bootstrap value, so earlier stages can resolve state later stages
// need. Most importantly the dependency stage extends the run's tool
// search path in place, and the launch stage exports that same path
// to the server's environment.
//
// Stage list for up (order fixed):
//
//	dependencies      fatal    interpreter + tunnel client present
//	extract:<bundle>  per-manifest  one stage per declared bundle
//	python-packages   warning  pip install of the server's packages
//	tunnels           warning  reverse tunnels for control + data ports
//	deploy-app        warning  sideload the client app
//	launch-server     fatal    blocking foreground server process
//
// Down is a single fatal remove-devices stage.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/deskwing/deskwing/lib/adb"
	"github.com/deskwing/deskwing/lib/bundle"
	"github.com/deskwing/deskwing/lib/config"
	"github.com/deskwing/deskwing/lib/devnode"
	"github.com/deskwing/deskwing/lib/manifest"
	"github.com/deskwing/deskwing/lib/prereq"
	"github.com/deskwing/deskwing/lib/stage"
	"github.com/deskwing/deskwing/lib/stream"
	"github.com/deskwing/deskwing/lib/toolpath"
)

// Options configures a Bootstrap. Config, Manifest, and Tools are
// required; the rest default sensibly.
type Options struct {
	Config   *config.Config
	Manifest *manifest.Manifest

	// Tools is the run's ordered tool search path, shared across all
	// stages. Dependency acquisition extends it in place.
	Tools *toolpath.Resolver

	// Logger receives structured progress. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// Out receives user-facing progress notes and the server's
	// stdout. If nil, os.Stdout.
	Out io.Writer

	// ErrOut receives the server's stderr. If nil, os.Stderr.
	ErrOut io.Writer
}

// Bootstrap holds the state shared by a run's stages.
type Bootstrap struct {
	cfg      *config.Config
	manifest *manifest.Manifest
	tools    *toolpath.Resolver
	logger   *slog.Logger
	out      io.Writer
	errOut   io.Writer

	// interpreter and tunnelClient are resolved binary paths, filled
	// in by the dependencies stage.
	interpreter  string
	tunnelClient string
}

// New validates options and returns a Bootstrap ready to produce
// stage lists.
func New(options Options) (*Bootstrap, error) {
	if options.Config == nil {
		return nil, errors.New("bootstrap: Config is required")
	}
	if options.Manifest == nil {
		return nil, errors.New("bootstrap: Manifest is required")
	}
	if options.Tools == nil {
		return nil, errors.New("bootstrap: Tools is required")
	}

	b := &Bootstrap{
		cfg:      options.Config,
		manifest: options.Manifest,
		tools:    options.Tools,
		logger:   options.Logger,
		out:      options.Out,
		errOut:   options.ErrOut,
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	if b.out == nil {
		b.out = os.Stdout
	}
	if b.errOut == nil {
		b.errOut = os.Stderr
	}
	return b, nil
}

// UpStages returns the ordered bootstrap pipeline.
func (b *Bootstrap) UpStages() []stage.Stage {
	stages := []stage.Stage{
		{Name: "dependencies", Severity: stage.Fatal, Action: b.ensureDependencies},
	}

	for i := range b.manifest.Bundles {
		bundleRef := &b.manifest.Bundles[i]
		severity := stage.Warning
		if bundleRef.Required {
			severity = stage.Fatal
		}
		stages = append(stages, stage.Stage{
			Name:     "extract:" + bundleRef.Name,
			Severity: severity,
			Action: func(ctx context.Context) error {
				return b.extractBundle(ctx, bundleRef)
			},
		})
	}

	stages = append(stages,
		stage.Stage{Name: "python-packages", Severity: stage.Warning, Action: b.installPackages},
		stage.Stage{Name: "tunnels", Severity: stage.Warning, Action: b.provisionTunnels},
		stage.Stage{Name: "deploy-app", Severity: stage.Warning, Action: b.deployApp},
		stage.Stage{Name: "launch-server", Severity: stage.Fatal, Action: b.launchServer},
	)
	return stages
}

// DownStages returns the ordered teardown pipeline.
func (b *Bootstrap) DownStages() []stage.Stage {
	return []stage.Stage{
		{Name: "remove-devices", Severity: stage.Fatal, Action: b.removeDevices},
	}
}

// ensureDependencies probes the interpreter and tunnel client,
// acquiring missing ones from manifest bundles. Resolved paths are
// kept for the later stages.
func (b *Bootstrap) ensureDependencies(ctx context.Context) error {
	resolver := &prereq.Resolver{
		Tools:       b.tools,
		Manifest:    b.manifest,
		BundleDir:   b.cfg.Paths.BundleDir,
		ExtractRoot: b.cfg.Paths.ExtractRoot,
		Logger:      b.logger,
	}

	statuses, err := resolver.Ensure(ctx, []prereq.Dependency{
		{Name: b.cfg.Tools.Interpreter, ProbeArgs: []string{"--version"}},
		{Name: b.cfg.Tools.TunnelClient, ProbeArgs: []string{"version"}},
	})
	if err != nil {
		return err
	}

	for _, status := range statuses {
		b.logger.Info("dependency ready",
			"name", status.Name, "path", status.Path,
			"version", status.Output, "acquired", status.Acquired)
		switch status.Name {
		case b.cfg.Tools.Interpreter:
			b.interpreter = status.Path
		case b.cfg.Tools.TunnelClient:
			b.tunnelClient = status.Path
		}
	}
	return nil
}

// extractBundle provisions one manifest bundle: digest-verified,
// idempotent extraction, then the control-panel launch for bundles
// that declare one.
func (b *Bootstrap) extractBundle(_ context.Context, bundleRef *manifest.Bundle) error {
	archivePath := filepath.Join(b.cfg.Paths.BundleDir, bundleRef.Archive)
	targetDir := filepath.Join(b.cfg.Paths.ExtractRoot, bundleRef.Target)

	result, err := bundle.ExtractVerified(archivePath, targetDir, bundleRef.Digest)
	if err != nil {
		return fmt.Errorf("bundle %q: %w", bundleRef.Name, err)
	}
	if result.Skipped {
		b.logger.Info("bundle already provisioned", "bundle", bundleRef.Name, "target", targetDir)
		return nil
	}
	b.logger.Info("extracted bundle",
		"bundle", bundleRef.Name, "target", targetDir, "files", result.Files)

	if bundleRef.ExportBin != "" {
		b.tools.Extend(filepath.Join(targetDir, filepath.FromSlash(bundleRef.ExportBin)))
	}

	// A fresh extraction launches the bundle's control panel once.
	// Skipped targets were provisioned by an earlier run, which
	// already launched it; relaunching would stack duplicates. The
	// panel is best-effort either way: its absence or failure to
	// start never fails the bundle stage.
	if bundleRef.ControlPanel != "" {
		panelPath := filepath.Join(targetDir, filepath.FromSlash(bundleRef.ControlPanel))
		if _, statErr := os.Stat(panelPath); statErr != nil {
			fmt.Fprintf(b.out, "note: control panel %s not found in bundle %q\n",
				bundleRef.ControlPanel, bundleRef.Name)
			return nil
		}
		pid, launchErr := devnode.LaunchControlPanel(panelPath)
		if launchErr != nil {
			fmt.Fprintf(b.out, "note: %v\n", launchErr)
			return nil
		}
		b.logger.Info("launched control panel", "path", panelPath, "pid", pid)
	}
	return nil
}

// installPackages installs the manifest's interpreter packages.
func (b *Bootstrap) installPackages(ctx context.Context) error {
	interpreter, err := b.interpreterPath()
	if err != nil {
		return err
	}
	resolver := &prereq.Resolver{Tools: b.tools, Logger: b.logger}
	return resolver.InstallPackages(ctx, interpreter, b.manifest.PythonPackages, b.out)
}

// provisionTunnels reverses the control and data ports onto the
// attached device. Both mappings are attempted regardless of the
// other's outcome.
func (b *Bootstrap) provisionTunnels(ctx context.Context) error {
	client, err := b.tunnel()
	if err != nil {
		return err
	}

	mappings := []adb.Mapping{
		{Local: b.cfg.Stream.ControlPort, Remote: b.cfg.Stream.ControlPort},
		{Local: b.cfg.Stream.DataPort, Remote: b.cfg.Stream.DataPort},
	}

	var failures []error
	for _, mapping := range mappings {
		if err := client.Reverse(ctx, mapping); err != nil {
			failures = append(failures, err)
			continue
		}
		b.logger.Info("reverse tunnel ready",
			"remote", mapping.RemoteSpec(), "local", mapping.LocalSpec())
	}
	if err := errors.Join(failures...); err != nil {
		return fmt.Errorf("%w (no device attached or USB debugging disabled?)", err)
	}
	return nil
}

// deployApp sideloads the client package when it is present. A
// missing package file surfaces as the stage's warning, not a
// failure: the app may already be installed from a previous run or
// the store.
func (b *Bootstrap) deployApp(ctx context.Context) error {
	packagePath := b.cfg.Paths.ClientPackage
	if _, err := os.Stat(packagePath); err != nil {
		return fmt.Errorf("client package %s not present, skipping install", packagePath)
	}

	client, err := b.tunnel()
	if err != nil {
		return err
	}
	if err := client.Install(ctx, packagePath); err != nil {
		return fmt.Errorf("%w (no device attached or USB debugging disabled?)", err)
	}

	fmt.Fprintf(b.out, "installed %s onto the device\n", packagePath)
	return nil
}

// launchServer builds the launch invocation and blocks until the
// server exits. The child environment carries the run's extended tool
// search path so bundle-provided tools stay resolvable.
func (b *Bootstrap) launchServer(ctx context.Context) error {
	interpreter, err := b.interpreterPath()
	if err != nil {
		return err
	}

	mode, err := stream.ParseMode(b.cfg.Stream.Mode)
	if err != nil {
		return err
	}

	spec := stream.LaunchSpec{
		Interpreter:  interpreter,
		Script:       b.cfg.Paths.ServerScript,
		Mode:         mode,
		FPS:          b.cfg.Stream.FPS,
		DisplayIndex: b.cfg.Stream.DisplayIndex,
		Quality:      b.cfg.Stream.Quality,
		Scale:        b.cfg.Stream.Scale,
		Adaptive:     b.cfg.Stream.Adaptive,
		BandwidthBps: b.cfg.Stream.BandwidthBps,
		ControlPort:  b.cfg.Stream.ControlPort,
		DataPort:     b.cfg.Stream.DataPort,
	}

	fmt.Fprintf(b.out, "streaming server starting; control page at %s\n", spec.ControlURL())
	b.logger.Info("launching streaming server",
		"interpreter", interpreter, "script", spec.Script, "mode", string(mode))

	return stream.Run(ctx, spec, b.tools.Environ(), b.out, b.errOut)
}

// removeDevices tears down the virtual display device nodes. A
// missing device tool degrades to a printed warning: the driver can
// be removed by hand, and failing the teardown for it would leave the
// rest of the machine state ambiguous.
func (b *Bootstrap) removeDevices(ctx context.Context) error {
	toolPath, err := b.tools.Locate(b.cfg.Tools.DeviceTool)
	if err != nil {
		fmt.Fprintf(b.out,
			"warning: cannot auto-remove the virtual display driver; remove it manually (%v)\n", err)
		return nil
	}

	matchers := make([]devnode.Matcher, 0, len(b.cfg.Driver.DevicePatterns)+1)
	for _, pattern := range b.cfg.Driver.DevicePatterns {
		matchers = append(matchers, devnode.NewGlobMatcher(pattern))
	}
	if b.cfg.Driver.NameMatch != "" {
		matchers = append(matchers, devnode.NewNameMatcher(b.cfg.Driver.NameMatch))
	}

	manager := devnode.NewManager(
		devnode.NewTool(toolPath),
		b.cfg.Driver.DevicePatterns,
		devnode.MatchAny(matchers...),
		b.logger,
	)
	if err := manager.Teardown(ctx); err != nil {
		if errors.Is(err, devnode.ErrNotElevated) {
			return fmt.Errorf("%w; rerun with elevation", err)
		}
		return err
	}
	return nil
}

// interpreterPath returns the interpreter resolved by the
// dependencies stage, falling back to a fresh lookup when the stage
// has not run (down pipelines, tests driving one stage).
func (b *Bootstrap) interpreterPath() (string, error) {
	if b.interpreter != "" {
		return b.interpreter, nil
	}
	return b.tools.Locate(b.cfg.Tools.Interpreter)
}

// tunnel returns an adb client on the resolved tunnel binary.
func (b *Bootstrap) tunnel() (*adb.Client, error) {
	if b.tunnelClient != "" {
		return adb.NewClient(b.tunnelClient), nil
	}
	path, err := b.tools.Locate(b.cfg.Tools.TunnelClient)
	if err != nil {
		return nil, err
	}
	return adb.NewClient(path), nil
}
