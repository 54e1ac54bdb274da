// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deskwing/deskwing/cmd/deskwing/cli/doctor"
	"github.com/deskwing/deskwing/lib/bundle"
	"github.com/deskwing/deskwing/lib/config"
	"github.com/deskwing/deskwing/lib/manifest"
	"github.com/deskwing/deskwing/lib/testutil"
	"github.com/deskwing/deskwing/lib/toolpath"
)

func findResult(t *testing.T, results []doctor.Result, name string) doctor.Result {
	t.Helper()
	for _, result := range results {
		if result.Name == name {
			return result
		}
	}
	t.Fatalf("no check named %q in %+v", name, results)
	return doctor.Result{}
}

func TestCheckTools(t *testing.T) {
	// Pin PATH so a host adb or devcon cannot satisfy the lookups
	// this test needs to fail.
	t.Setenv("PATH", t.TempDir())

	toolDir := t.TempDir()
	testutil.FakeToolAt(t, toolDir, "python", "exit 0")

	cfg := config.Default()
	m := &manifest.Manifest{
		Bundles: []manifest.Bundle{
			{Name: "platform-tools", Archive: "pt.zip", Target: "pt", Provides: "adb"},
		},
	}
	tools := toolpath.New(toolDir)

	var state checkState
	results := checkTools(cfg, m, tools, &state)

	interpreter := findResult(t, results, "tool: python")
	if interpreter.Status != doctor.StatusPass {
		t.Errorf("interpreter check = %+v, want pass", interpreter)
	}
	if !strings.Contains(interpreter.Message, toolDir) {
		t.Errorf("interpreter message %q should name the resolving directory", interpreter.Message)
	}

	// adb is absent but a bundle provides it: warning naming the bundle.
	tunnel := findResult(t, results, "tool: adb")
	if tunnel.Status != doctor.StatusWarn {
		t.Errorf("tunnel check = %+v, want warn", tunnel)
	}
	if !strings.Contains(tunnel.Message, "platform-tools") {
		t.Errorf("tunnel message %q should name the providing bundle", tunnel.Message)
	}

	// The device tool is teardown-only: absence is a warning.
	device := findResult(t, results, "tool: devcon")
	if device.Status != doctor.StatusWarn {
		t.Errorf("device tool check = %+v, want warn", device)
	}
	if state.deviceToolPath != "" {
		t.Errorf("deviceToolPath = %q, want empty for missing tool", state.deviceToolPath)
	}
}

func TestCheckTools_MissingWithoutProviderFails(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Interpreter = "deskwing-absent-python"
	cfg.Tools.TunnelClient = "deskwing-absent-adb"

	var state checkState
	results := checkTools(cfg, manifest.Default(), toolpath.New(t.TempDir()), &state)

	interpreter := findResult(t, results, "tool: deskwing-absent-python")
	if interpreter.Status != doctor.StatusFail {
		t.Errorf("interpreter check = %+v, want fail", interpreter)
	}
}

func TestCheckFiles(t *testing.T) {
	workDir := t.TempDir()
	t.Chdir(workDir)

	cfg := config.Default()
	if err := os.WriteFile(cfg.Paths.ServerScript, []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatalf("writing server script: %v", err)
	}

	results := checkFiles(cfg, cfg.Paths.Manifest)

	script := findResult(t, results, "file: server script")
	if script.Status != doctor.StatusPass {
		t.Errorf("server script check = %+v, want pass", script)
	}

	pkg := findResult(t, results, "file: client package")
	if pkg.Status != doctor.StatusWarn || !strings.Contains(pkg.Message, "skipped") {
		t.Errorf("client package check = %+v, want skip warning", pkg)
	}

	missingScript := config.Default()
	missingScript.Paths.ServerScript = "nope.py"
	results = checkFiles(missingScript, missingScript.Paths.Manifest)
	script = findResult(t, results, "file: server script")
	if script.Status != doctor.StatusFail {
		t.Errorf("missing server script check = %+v, want fail", script)
	}
}

func TestCheckBundles(t *testing.T) {
	workDir := t.TempDir()
	t.Chdir(workDir)

	cfg := config.Default()
	if err := os.MkdirAll(cfg.Paths.BundleDir, 0o755); err != nil {
		t.Fatalf("creating bundle dir: %v", err)
	}

	archivePath := filepath.Join(cfg.Paths.BundleDir, "driver.zip")
	if err := os.WriteFile(archivePath, []byte("archive bytes"), 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	digest, err := bundle.HashFile(archivePath)
	if err != nil {
		t.Fatalf("hashing archive: %v", err)
	}

	if err := os.MkdirAll("provisioned", 0o755); err != nil {
		t.Fatalf("creating provisioned target: %v", err)
	}

	m := &manifest.Manifest{
		Bundles: []manifest.Bundle{
			{Name: "done", Archive: "whatever.zip", Target: "provisioned"},
			{Name: "verified", Archive: "driver.zip", Target: "v", Digest: bundle.FormatDigest(digest)},
			{Name: "corrupt", Archive: "driver.zip", Target: "c", Digest: strings.Repeat("ab", 32)},
			{Name: "missing-required", Archive: "gone.zip", Target: "g", Required: true},
			{Name: "missing-optional", Archive: "gone.zip", Target: "g2"},
		},
	}

	results := checkBundles(cfg, m)

	wantStatus := map[string]doctor.Status{
		"bundle: done":             doctor.StatusPass,
		"bundle: verified":         doctor.StatusPass,
		"bundle: corrupt":          doctor.StatusFail,
		"bundle: missing-required": doctor.StatusFail,
		"bundle: missing-optional": doctor.StatusWarn,
	}
	for name, want := range wantStatus {
		result := findResult(t, results, name)
		if result.Status != want {
			t.Errorf("%s = %+v, want %s", name, result, want)
		}
	}

	if !strings.Contains(findResult(t, results, "bundle: done").Message, "already provisioned") {
		t.Error("provisioned bundle should report already provisioned")
	}
}

func TestCheckStreamConfig(t *testing.T) {
	good := checkStreamConfig(config.Default())
	if good.Status != doctor.StatusPass || !strings.Contains(good.Message, "mode usb") {
		t.Errorf("default config check = %+v, want pass with settings summary", good)
	}

	cfg := config.Default()
	cfg.Stream.DataPort = cfg.Stream.ControlPort
	bad := checkStreamConfig(cfg)
	if bad.Status != doctor.StatusFail || !strings.Contains(bad.Message, "must differ") {
		t.Errorf("clashing ports check = %+v, want fail naming the clash", bad)
	}
}

func TestCheckDeviceInventory(t *testing.T) {
	toolDir := t.TempDir()
	script := `case "$1" in
find)
	cat <<'INVENTORY'
ABC123: Virtual Display Adapter
XYZ789: Generic Monitor
INVENTORY
	;;
esac`
	path := testutil.FakeToolAt(t, toolDir, "devcon", script)

	cfg := config.Default()
	state := checkState{deviceToolPath: path}

	result := checkDeviceInventory(context.Background(), cfg, &state)
	if result.Status != doctor.StatusPass {
		t.Fatalf("inventory check = %+v, want pass", result)
	}
	if !strings.Contains(result.Message, "1 virtual display node(s)") {
		t.Errorf("inventory message = %q, want exactly one matching node", result.Message)
	}
}

func TestCheckDeviceInventory_NoTool(t *testing.T) {
	result := checkDeviceInventory(context.Background(), config.Default(), &checkState{})
	if result.Status != doctor.StatusSkip {
		t.Errorf("inventory check without tool = %+v, want skip", result)
	}
}

func TestCheckDeviceInventory_EnumerationFailure(t *testing.T) {
	toolDir := t.TempDir()
	path := testutil.FakeToolAt(t, toolDir, "devcon", `echo "not supported" >&2; exit 1`)

	state := checkState{deviceToolPath: path}
	result := checkDeviceInventory(context.Background(), config.Default(), &state)
	if result.Status != doctor.StatusWarn {
		t.Errorf("inventory check with failing tool = %+v, want warn", result)
	}
}

func TestCommand_RejectsPositionalArgs(t *testing.T) {
	err := Command().Execute([]string{"unexpected"})
	if err == nil || !strings.Contains(err.Error(), "unexpected argument") {
		t.Errorf("Execute(positional) = %v, want unexpected argument error", err)
	}
}
