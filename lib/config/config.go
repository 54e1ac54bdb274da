// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the deskwing
// CLI.
//
// Configuration is loaded from a single file (default deskwing.yaml in
// the working directory, or the path given via --config). A missing
// default file is not an error: every field has a working default, so
// a checkout with no configuration at all still bootstraps with the
// stock streaming parameters. An explicitly passed --config path that
// does not exist is an error: silently ignoring it would hide typos.
//
// Environment variables never override config values. The only lookup
// outside the file is DESKWING_CONFIG, which names an alternative
// default path for the file itself.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file consulted when no --config
// flag is given and DESKWING_CONFIG is unset.
const DefaultPath = "deskwing.yaml"

// Config is the master configuration for deskwing.
type Config struct {
	// Stream configures the streaming server launch.
	Stream StreamConfig `yaml:"stream"`

	// Tools names the external tool binaries deskwing shells out to.
	Tools ToolsConfig `yaml:"tools"`

	// Driver configures virtual display driver device matching.
	Driver DriverConfig `yaml:"driver"`

	// Paths configures file and directory locations.
	Paths PathsConfig `yaml:"paths"`
}

// StreamConfig configures the streaming server launch and the two
// forwarded channels. The server reads frames from the virtual display
// and serves them to the phone over the forwarded ports.
type StreamConfig struct {
	// Mode selects the transport: "usb" (port forwarding over the
	// debug bridge) or "wireless" (direct LAN connection).
	Mode string `yaml:"mode"`

	// FPS is the capture frame rate.
	FPS int `yaml:"fps"`

	// DisplayIndex selects which display the server captures. The
	// virtual display created by the driver is display 2 on a
	// single-monitor machine.
	DisplayIndex int `yaml:"display_index"`

	// Quality is the JPEG encode quality percentage (1-100).
	Quality int `yaml:"quality"`

	// Scale downscales captured frames before encoding (0.1-1.0).
	Scale float64 `yaml:"scale"`

	// Adaptive lets the server adjust quality under bandwidth
	// pressure. Off by default: the wired transport is predictable
	// and constant quality avoids visible pumping.
	Adaptive bool `yaml:"adaptive"`

	// BandwidthBps caps the server's send rate in bytes per second.
	BandwidthBps int `yaml:"bandwidth_bps"`

	// ControlPort is the browser/control channel port. It is
	// reverse-forwarded to the same port on the phone.
	ControlPort int `yaml:"control_port"`

	// DataPort is the raw frame data channel port, forwarded the
	// same way.
	DataPort int `yaml:"data_port"`
}

// ToolsConfig names the external binaries deskwing invokes. Names are
// resolved through the run's tool search path (working directory
// first, then any extra directories, then the system path).
type ToolsConfig struct {
	// Interpreter runs the streaming server and installs its
	// packages.
	Interpreter string `yaml:"interpreter"`

	// TunnelClient establishes reverse port forwarding and installs
	// the client app. This is adb or a compatible debug bridge.
	TunnelClient string `yaml:"tunnel_client"`

	// DeviceTool enumerates and removes display device nodes. This
	// is devcon or a compatible device console.
	DeviceTool string `yaml:"device_tool"`

	// ExtraDirs are additional directories consulted when resolving
	// the tools above, after the working directory and before the
	// system path.
	ExtraDirs []string `yaml:"extra_dirs"`
}

// DriverConfig configures how stale virtual display device nodes are
// recognized during teardown.
type DriverConfig struct {
	// DevicePatterns are hardware-ID patterns removed one by one
	// when the device tool cannot enumerate. Order matters: broader
	// classes first, the vendor driver name last.
	DevicePatterns []string `yaml:"device_patterns"`

	// NameMatch is the case-insensitive substring that identifies a
	// virtual display in enumerated device names.
	NameMatch string `yaml:"name_match"`
}

// PathsConfig configures file locations. Relative paths are resolved
// against the working directory; deskwing is normally run from the
// directory that carries the server script and bundled packages.
type PathsConfig struct {
	// ServerScript is the streaming server entry point, run with the
	// configured interpreter.
	ServerScript string `yaml:"server_script"`

	// ClientPackage is the phone app package installed during
	// bootstrap when present.
	ClientPackage string `yaml:"client_package"`

	// Manifest is the provision manifest (JSONC) declaring bundled
	// archives and required interpreter packages.
	Manifest string `yaml:"manifest"`

	// BundleDir is where bundled archives live.
	BundleDir string `yaml:"bundle_dir"`

	// ExtractRoot is where bundle target directories are created.
	ExtractRoot string `yaml:"extract_root"`
}

// Default returns the default configuration. A run with no config
// file uses exactly these values.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			Mode:         "usb",
			FPS:          60,
			DisplayIndex: 2,
			Quality:      100,
			Scale:        1.0,
			Adaptive:     false,
			BandwidthBps: 500000,
			ControlPort:  8080,
			DataPort:     5001,
		},
		Tools: ToolsConfig{
			Interpreter:  "python",
			TunnelClient: "adb",
			DeviceTool:   "devcon",
		},
		Driver: DriverConfig{
			DevicePatterns: []string{`root\display`, `root\usbmmidd`, `usbmmidd`},
			NameMatch:      "Virtual Display",
		},
		Paths: PathsConfig{
			ServerScript:  "secondScreen_ws.py",
			ClientPackage: "deskwing-client.apk",
			Manifest:      "provision.jsonc",
			BundleDir:     "packages",
			ExtractRoot:   ".",
		},
	}
}

// Load loads configuration from an explicit path, from DESKWING_CONFIG,
// or from DefaultPath, in that precedence order. Only an explicitly
// named file (flag or environment) is required to exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("DESKWING_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize clamps out-of-range tunables to their nearest legal value
// rather than failing the run: quality to 1-100, scale to 0.1-1.0,
// and the frame rate floor to 1. The streaming server applies the
// same clamps; doing it here keeps what we launch and what we report
// consistent.
func (c *Config) Normalize() {
	if c.Stream.Quality < 1 {
		c.Stream.Quality = 1
	}
	if c.Stream.Quality > 100 {
		c.Stream.Quality = 100
	}
	if c.Stream.Scale < 0.1 {
		c.Stream.Scale = 0.1
	}
	if c.Stream.Scale > 1.0 {
		c.Stream.Scale = 1.0
	}
	if c.Stream.FPS < 1 {
		c.Stream.FPS = 1
	}
}

// Validate checks the configuration for errors that clamping cannot
// repair.
func (c *Config) Validate() error {
	var errs []error

	if c.Stream.Mode != "usb" && c.Stream.Mode != "wireless" {
		errs = append(errs, fmt.Errorf("stream.mode must be \"usb\" or \"wireless\", got %q", c.Stream.Mode))
	}
	if c.Stream.ControlPort < 1 || c.Stream.ControlPort > 65535 {
		errs = append(errs, fmt.Errorf("stream.control_port %d out of range", c.Stream.ControlPort))
	}
	if c.Stream.DataPort < 1 || c.Stream.DataPort > 65535 {
		errs = append(errs, fmt.Errorf("stream.data_port %d out of range", c.Stream.DataPort))
	}
	if c.Stream.ControlPort == c.Stream.DataPort {
		errs = append(errs, fmt.Errorf("stream.control_port and stream.data_port must differ (both %d)", c.Stream.ControlPort))
	}
	if c.Stream.DisplayIndex < 1 {
		errs = append(errs, fmt.Errorf("stream.display_index must be at least 1, got %d", c.Stream.DisplayIndex))
	}
	if c.Stream.BandwidthBps < 0 {
		errs = append(errs, fmt.Errorf("stream.bandwidth_bps must not be negative, got %d", c.Stream.BandwidthBps))
	}

	if c.Tools.Interpreter == "" {
		errs = append(errs, fmt.Errorf("tools.interpreter is required"))
	}
	if c.Tools.TunnelClient == "" {
		errs = append(errs, fmt.Errorf("tools.tunnel_client is required"))
	}
	if c.Tools.DeviceTool == "" {
		errs = append(errs, fmt.Errorf("tools.device_tool is required"))
	}

	if c.Paths.ServerScript == "" {
		errs = append(errs, fmt.Errorf("paths.server_script is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
