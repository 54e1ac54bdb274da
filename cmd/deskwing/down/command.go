// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package down implements "deskwing down": removal of the virtual
// display device nodes the driver created.
package down

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

// downParams holds the parameters for the down command.
type downParams struct {
	Config   string   `flag:"config" desc:"configuration file path"`
	ToolDirs []string `flag:"tool-dir" desc:"extra directories searched for external tools"`
}

// Command returns the "deskwing down" command.
func Command() *cli.Command {
	var params downParams

	return &cli.Command{
		Name:    "down",
		Summary: "Remove virtual display device nodes",
		Description: `Remove the device nodes the virtual display driver created, so they
don't accumulate across sessions. Enumerates the device inventory and
removes nodes matching the configured hardware-id patterns or display
name; falls back to blind per-pattern removal when the device tool
cannot enumerate.

Removal requires elevation.`,
		Usage: "sudo deskwing down [flags]",
		Examples: []cli.Example{
			{
				Description: "Tear down the virtual display",
				Command:     "sudo deskwing down",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("down", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runDown(params)
		},
	}
}

func runDown(params downParams) error {
	cfg, err := config.Load(params.Config)
	if err != nil {
		return err
	}

	m, err := manifest.Load(cfg.Paths.Manifest, false)
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

	logger := cli.NewLogger().With("command", "down")

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &stage.Runner{Label: "down", Out: os.Stdout, Logger: logger}
	_, err = runner.Run(ctx, b.DownStages())
	return err
}
