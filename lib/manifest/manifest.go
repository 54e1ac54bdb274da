// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest provides parsing and validation for the deskwing
// provision manifest. The manifest declares the bundled archives that
// ship alongside the CLI (driver package, platform tools, embeddable
// interpreter) and the interpreter packages the streaming server
// needs. It is authored on disk as a JSONC file (JSON extended with
// comments and trailing commas), the same format used for hand-edited
// configuration throughout.
//
// The typical flow:
//
//  1. Load or Parse: JSONC bytes → Manifest
//  2. Validate: structural checks (unique names, required fields)
//  3. The bootstrap pipeline turns each bundle into one extraction
//     stage, with the bundle's Required flag deciding the stage's
//     failure severity.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Manifest declares everything the bootstrap may need to provision
// beyond what is already installed on the machine.
type Manifest struct {
	// Bundles are archives shipped alongside the CLI, extracted
	// during bootstrap. Order is preserved: bundles extract in the
	// order they are declared.
	Bundles []Bundle `json:"bundles"`

	// PythonPackages are interpreter packages installed before the
	// streaming server launches.
	PythonPackages []string `json:"python_packages"`
}

// Bundle describes one bundled archive.
type Bundle struct {
	// Name identifies the bundle in stage names and log output.
	Name string `json:"name"`

	// Archive is the archive file name, resolved against the
	// configured bundle directory. The extension selects the format:
	// .zip, .tar, .tar.gz, .tgz, .tar.zst, or .tar.lz4.
	Archive string `json:"archive"`

	// Target is the directory the archive extracts into, resolved
	// against the configured extract root. An existing target means
	// the bundle is already provisioned and extraction is skipped.
	Target string `json:"target"`

	// Digest is an optional BLAKE3 hex digest of the archive,
	// verified before extraction.
	Digest string `json:"digest"`

	// Required marks the bundle as mandatory: a missing archive,
	// digest mismatch, or extraction failure aborts the bootstrap
	// instead of degrading to a warning.
	Required bool `json:"required"`

	// Provides names a tool binary this bundle supplies (for
	// example, a platform-tools bundle provides "adb"). The
	// dependency resolver extracts the bundle when the tool is not
	// already present.
	Provides string `json:"provides"`

	// ExportBin is a directory inside Target added to the run's tool
	// search path after extraction, so the bundle's binaries resolve
	// for the rest of the run.
	ExportBin string `json:"export_bin"`

	// ControlPanel is an executable inside Target launched detached
	// after extraction. Used by driver bundles that ship a control
	// panel; a missing executable is reported as a warning, never a
	// failure.
	ControlPanel string `json:"control_panel"`
}

// Default returns the manifest used when no manifest file exists: no
// bundles, and the streaming server's stock package set.
func Default() *Manifest {
	return &Manifest{
		PythonPackages: []string{"aiohttp", "mss", "numpy", "opencv-python"},
	}
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals and validates the result.
func Parse(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	var m Manifest
	if err := json.Unmarshal(stripped, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads the manifest at path. A missing file is not an error
// unless explicit is true: runs without bundled packages fall back to
// Default(), while an explicitly passed --manifest path must exist.
func Load(path string, explicit bool) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks the manifest for structural errors.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Bundles))
	for i, bundle := range m.Bundles {
		if bundle.Name == "" {
			return fmt.Errorf("bundle %d: name is required", i)
		}
		if seen[bundle.Name] {
			return fmt.Errorf("bundle %q: duplicate name", bundle.Name)
		}
		seen[bundle.Name] = true

		if bundle.Archive == "" {
			return fmt.Errorf("bundle %q: archive is required", bundle.Name)
		}
		if bundle.Target == "" {
			return fmt.Errorf("bundle %q: target is required", bundle.Name)
		}
	}

	for i, pkg := range m.PythonPackages {
		if pkg == "" {
			return fmt.Errorf("python_packages[%d]: empty package name", i)
		}
	}
	return nil
}

// BundleProviding returns the bundle that declares Provides == tool,
// or nil when no bundle supplies it.
func (m *Manifest) BundleProviding(tool string) *Bundle {
	for i := range m.Bundles {
		if m.Bundles[i].Provides == tool {
			return &m.Bundles[i]
		}
	}
	return nil
}
