// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package up implements "deskwing up": the full bootstrap pipeline
// ending in the blocking streaming server launch.
package up

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/deskwing/deskwing/cmd/deskwing/cli"
	"github.com/deskwing/deskwing/lib/bootstrap"
	"github.com/deskwing/deskwing/lib/config"
	"github.com/deskwing/deskwing/lib/manifest"
	"github.com/deskwing/deskwing/lib/stage"
	"github.com/deskwing/deskwing/lib/toolpath"
)

// upParams holds the parameters for the up command. The stream
// overrides only apply when their flag was actually set: an untouched
// flag keeps the config file's (or built-in) value.
type upParams struct {
	Config   string   `flag:"config" desc:"configuration file path"`
	Manifest string   `flag:"manifest" desc:"provision manifest path (overrides the config)"`
	ToolDirs []string `flag:"tool-dir" desc:"extra directories searched for external tools"`

	Mode      string  `flag:"mode" desc:"transport mode: usb or wireless"`
	FPS       int     `flag:"fps" desc:"capture frame rate"`
	Display   int     `flag:"display" desc:"display index to capture"`
	Quality   int     `flag:"quality" desc:"JPEG quality percentage (1-100)"`
	Scale     float64 `flag:"scale" desc:"downscale factor (0.1-1.0)"`
	Adaptive  bool    `flag:"adaptive" desc:"let the server adapt quality to bandwidth"`
	Bandwidth int     `flag:"bandwidth" desc:"send rate cap in bytes per second (0 = uncapped)"`
}

// Command returns the "deskwing up" command.
func Command() *cli.Command {
	var params upParams
	var flagSet *pflag.FlagSet

	return &cli.Command{
		Name:    "up",
		Summary: "Bootstrap the environment and launch the streaming server",
		Description: `Run the bootstrap pipeline: verify or acquire external tools, extract
bundled archives, install the streaming server's interpreter packages,
establish reverse port tunnels to the attached phone, install the
client app, and launch the streaming server in the foreground.

The command blocks until the server exits or the run is interrupted.
Interrupting (Ctrl-C) kills the server and its helpers.`,
		Usage: "deskwing up [flags]",
		Examples: []cli.Example{
			{
				Description: "Bootstrap with the defaults (USB, 60 fps)",
				Command:     "deskwing up",
			},
			{
				Description: "Wireless transport at 30 fps",
				Command:     "deskwing up --mode wireless --fps 30",
			},
			{
				Description: "Lower quality for a slow link",
				Command:     "deskwing up --quality 60 --scale 0.75 --adaptive",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = cli.FlagsFromParams("up", &params)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runUp(params, flagSet)
		},
	}
}

func runUp(params upParams, flagSet *pflag.FlagSet) error {
	cfg, err := config.Load(params.Config)
	if err != nil {
		return err
	}
	applyStreamOverrides(cfg, params, flagSet)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
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

	logger := cli.NewLogger().With("command", "up")

	b, err := bootstrap.New(bootstrap.Options{
		Config:   cfg,
		Manifest: m,
		Tools:    tools,
		Logger:   logger,
		Out:      os.Stdout,
		ErrOut:   os.Stderr,
	})
	if err != nil {
		return err
	}

	// An interrupt cancels the context, which kills the currently
	// blocking subprocess and stops the pipeline at the next stage
	// boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &stage.Runner{Label: "up", Out: os.Stdout, Logger: logger}
	_, err = runner.Run(ctx, b.UpStages())
	return err
}

// applyStreamOverrides copies flag values into the config for flags
// the user actually set.
func applyStreamOverrides(cfg *config.Config, params upParams, flagSet *pflag.FlagSet) {
	if flagSet == nil {
		return
	}
	if flagSet.Changed("mode") {
		cfg.Stream.Mode = params.Mode
	}
	if flagSet.Changed("fps") {
		cfg.Stream.FPS = params.FPS
	}
	if flagSet.Changed("display") {
		cfg.Stream.DisplayIndex = params.Display
	}
	if flagSet.Changed("quality") {
		cfg.Stream.Quality = params.Quality
	}
	if flagSet.Changed("scale") {
		cfg.Stream.Scale = params.Scale
	}
	if flagSet.Changed("adaptive") {
		cfg.Stream.Adaptive = params.Adaptive
	}
	if flagSet.Changed("bandwidth") {
		cfg.Stream.BandwidthBps = params.Bandwidth
	}
}
