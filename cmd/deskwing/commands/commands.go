// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete deskwing CLI command tree.
package commands

import (
	"fmt"

	"github.com/deskwing/deskwing/cmd/deskwing/cli"
	doctorcmd "github.com/deskwing/deskwing/cmd/deskwing/doctor"
	downcmd "github.com/deskwing/deskwing/cmd/deskwing/down"
	upcmd "github.com/deskwing/deskwing/cmd/deskwing/up"
	"github.com/deskwing/deskwing/lib/version"
)

// Root builds and returns the complete deskwing CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "deskwing",
		Description: `Deskwing: turn a phone into a second monitor.

Provision the streaming environment (virtual display driver, tools,
port tunnels, client app) and launch the streaming server; tear the
virtual display down again when done.`,
		Subcommands: []*cli.Command{
			upcmd.Command(),
			downcmd.Command(),
			doctorcmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("deskwing %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Diagnose the environment (start here when lost)",
				Command:     "deskwing doctor",
			},
			{
				Description: "Bootstrap everything and launch the streaming server",
				Command:     "deskwing up",
			},
			{
				Description: "Wireless transport at 30 fps",
				Command:     "deskwing up --mode wireless --fps 30",
			},
			{
				Description: "Remove the virtual display device nodes",
				Command:     "sudo deskwing down",
			},
		},
	}
}
