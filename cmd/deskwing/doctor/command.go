// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor implements "deskwing doctor": a read-only diagnosis
// of everything the bootstrap is about to depend on.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/deskwing/deskwing/cmd/deskwing/cli"
	"github.com/deskwing/deskwing/cmd/deskwing/cli/doctor"
	"github.com/deskwing/deskwing/lib/bundle"
	"github.com/deskwing/deskwing/lib/config"
	"github.com/deskwing/deskwing/lib/devnode"
	"github.com/deskwing/deskwing/lib/manifest"
	"github.com/deskwing/deskwing/lib/toolpath"
)

// commandParams holds the parameters for the doctor command.
type commandParams struct {
	cli.JSONOutput
	Config   string   `flag:"config" desc:"configuration file path"`
	Manifest string   `flag:"manifest" desc:"provision manifest path (overrides the config)"`
	ToolDirs []string `flag:"tool-dir" desc:"extra directories searched for external tools"`
}

// Command returns the "deskwing doctor" command.
func Command() *cli.Command {
	var params commandParams

	return &cli.Command{
		Name:    "doctor",
		Summary: "Diagnose the streaming environment",
		Description: `Check everything "deskwing up" is about to depend on: external tools
(interpreter, tunnel client, device tool) and which directory each
resolves from, file presence (server script, client package), bundle
archives and their digests, stream configuration sanity, privileges,
and the current virtual display device inventory.

Checks are read-only. The fix for most failures is "deskwing up"
(which extracts missing tools from bundles) or the remediation in the
check's own message.`,
		Usage: "deskwing doctor [flags]",
		Examples: []cli.Example{
			{
				Description: "Check the environment before the first run",
				Command:     "deskwing doctor",
			},
			{
				Description: "Machine-readable output",
				Command:     "deskwing doctor --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("doctor", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			return runDoctor(ctx, params)
		},
	}
}

// checkState accumulates discovered state across checks so later
// checks can reuse results from earlier ones.
type checkState struct {
	// deviceToolPath is set when the device tool resolves, so the
	// inventory check doesn't repeat the lookup.
	deviceToolPath string
}

func runDoctor(ctx context.Context, params commandParams) error {
	cfg, err := config.Load(params.Config)
	if err != nil {
		return err
	}

	manifestPath := cfg.Paths.Manifest
	explicit := false
	if params.Manifest != "" {
		manifestPath = params.Manifest
		explicit = true
	}
	m, err := manifest.Load(manifestPath, explicit)
	if err != nil {
		return err
	}

	tools := toolpath.New(".")
	for _, dir := range cfg.Tools.ExtraDirs {
		tools.Extend(dir)
	}
	for _, dir := range params.ToolDirs {
		tools.Extend(dir)
	}

	var state checkState
	var results []doctor.Result

	// Section 1: external tools.
	results = append(results, checkTools(cfg, m, tools, &state)...)

	// Section 2: privileges.
	results = append(results, checkPrivileges())

	// Section 3: files.
	results = append(results, checkFiles(cfg, manifestPath)...)

	// Section 4: bundles.
	results = append(results, checkBundles(cfg, m)...)

	// Section 5: stream configuration.
	results = append(results, checkStreamConfig(cfg))

	// Section 6: device inventory.
	results = append(results, checkDeviceInventory(ctx, cfg, &state))

	// Produce output.
	if done, err := params.EmitJSON(doctor.BuildReport(results)); done {
		if err != nil {
			return err
		}
		for _, result := range results {
			if result.Status == doctor.StatusFail {
				return &cli.ExitError{Code: 1}
			}
		}
		return nil
	}

	return doctor.PrintChecklist(os.Stdout, results)
}

// --- Section 1: external tools ---

func checkTools(cfg *config.Config, m *manifest.Manifest, tools *toolpath.Resolver, state *checkState) []doctor.Result {
	var results []doctor.Result

	// The interpreter and tunnel client can be acquired from bundles
	// during bootstrap, so a missing one with a providing bundle is a
	// warning, not a failure.
	for _, name := range []string{cfg.Tools.Interpreter, cfg.Tools.TunnelClient} {
		checkName := "tool: " + name
		path, err := tools.Locate(name)
		if err == nil {
			results = append(results, doctor.Pass(checkName, "found at "+path))
			continue
		}
		if provider := m.BundleProviding(name); provider != nil {
			results = append(results, doctor.Warn(checkName,
				fmt.Sprintf("not found; deskwing up will extract it from bundle %q", provider.Name)))
			continue
		}
		results = append(results, doctor.Fail(checkName,
			"not found; install it or declare a bundle that provides it"))
	}

	// The device tool is only needed for teardown, which degrades on
	// its own when the tool is missing.
	checkName := "tool: " + cfg.Tools.DeviceTool
	path, err := tools.Locate(cfg.Tools.DeviceTool)
	if err == nil {
		state.deviceToolPath = path
		results = append(results, doctor.Pass(checkName, "found at "+path))
	} else {
		results = append(results, doctor.Warn(checkName,
			"not found; deskwing down cannot remove the virtual display automatically"))
	}

	return results
}

// --- Section 2: privileges ---

func checkPrivileges() doctor.Result {
	if devnode.Elevated() {
		return doctor.Pass("privileges", "running elevated")
	}
	return doctor.Warn("privileges",
		"not elevated; deskwing down needs sudo to remove device nodes")
}

// --- Section 3: files ---

func checkFiles(cfg *config.Config, manifestPath string) []doctor.Result {
	var results []doctor.Result

	if _, err := os.Stat(cfg.Paths.ServerScript); err == nil {
		results = append(results, doctor.Pass("file: server script", cfg.Paths.ServerScript))
	} else {
		results = append(results, doctor.Fail("file: server script",
			fmt.Sprintf("%s not found; deskwing up cannot launch the streaming server", cfg.Paths.ServerScript)))
	}

	if _, err := os.Stat(cfg.Paths.ClientPackage); err == nil {
		results = append(results, doctor.Pass("file: client package", cfg.Paths.ClientPackage))
	} else {
		results = append(results, doctor.Warn("file: client package",
			fmt.Sprintf("%s not found; app install will be skipped", cfg.Paths.ClientPackage)))
	}

	if _, err := os.Stat(manifestPath); err == nil {
		results = append(results, doctor.Pass("file: manifest", manifestPath))
	} else {
		results = append(results, doctor.Warn("file: manifest",
			fmt.Sprintf("%s not found; built-in defaults in effect", manifestPath)))
	}

	return results
}

// --- Section 4: bundles ---

func checkBundles(cfg *config.Config, m *manifest.Manifest) []doctor.Result {
	var results []doctor.Result

	for _, b := range m.Bundles {
		checkName := "bundle: " + b.Name
		targetDir := filepath.Join(cfg.Paths.ExtractRoot, b.Target)
		if _, err := os.Stat(targetDir); err == nil {
			results = append(results, doctor.Pass(checkName,
				"already provisioned at "+targetDir))
			continue
		}

		archivePath := filepath.Join(cfg.Paths.BundleDir, b.Archive)
		if _, err := os.Stat(archivePath); err != nil {
			message := fmt.Sprintf("archive %s missing", archivePath)
			if b.Required {
				results = append(results, doctor.Fail(checkName, message))
			} else {
				results = append(results, doctor.Warn(checkName, message))
			}
			continue
		}

		if b.Digest == "" {
			results = append(results, doctor.Pass(checkName,
				"archive present (no digest declared)"))
			continue
		}
		if err := bundle.Verify(archivePath, b.Digest); err != nil {
			results = append(results, doctor.Fail(checkName, err.Error()))
		} else {
			results = append(results, doctor.Pass(checkName, "archive verified"))
		}
	}

	return results
}

// --- Section 5: stream configuration ---

func checkStreamConfig(cfg *config.Config) doctor.Result {
	if err := cfg.Validate(); err != nil {
		return doctor.Fail("stream config", err.Error())
	}
	return doctor.Pass("stream config", fmt.Sprintf(
		"mode %s, %d fps, display %d, quality %d",
		cfg.Stream.Mode, cfg.Stream.FPS, cfg.Stream.DisplayIndex, cfg.Stream.Quality))
}

// --- Section 6: device inventory ---

func checkDeviceInventory(ctx context.Context, cfg *config.Config, state *checkState) doctor.Result {
	if state.deviceToolPath == "" {
		return doctor.Skip("device inventory", "device tool not found")
	}

	tool := devnode.NewTool(state.deviceToolPath)
	records, err := tool.FindAll(ctx)
	if err != nil {
		return doctor.Warn("device inventory",
			fmt.Sprintf("cannot enumerate devices: %v", err))
	}

	var matchers []devnode.Matcher
	for _, pattern := range cfg.Driver.DevicePatterns {
		matchers = append(matchers, devnode.NewGlobMatcher(pattern))
	}
	if cfg.Driver.NameMatch != "" {
		matchers = append(matchers, devnode.NewNameMatcher(cfg.Driver.NameMatch))
	}
	matcher := devnode.MatchAny(matchers...)

	count := 0
	for _, record := range records {
		if matcher.Matches(record) {
			count++
		}
	}
	if count == 0 {
		return doctor.Pass("device inventory", "no virtual display nodes present")
	}
	return doctor.Pass("device inventory",
		fmt.Sprintf("%d virtual display node(s) present", count))
}
