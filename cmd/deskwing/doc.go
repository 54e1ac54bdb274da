// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Deskwing is the CLI for a phone-as-second-monitor streaming setup.
// It provisions the environment (virtual display driver, external
// tools, reverse port tunnels, client app) and launches the streaming
// server (up), removes the virtual display's device nodes (down), and
// diagnoses the environment without changing it (doctor).
package main
