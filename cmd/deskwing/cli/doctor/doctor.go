// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor provides the result and output types for deskwing's
// environment diagnosis. Checks are read-only: the repair path for
// everything doctor reports is "deskwing up" (which acquires missing
// tools from bundles) or the message's own remediation hint, so
// results carry no fix machinery.
package doctor

// Status is the outcome of a single health check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// Result holds the outcome of a single health check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Pass creates a passing check result.
func Pass(name, message string) Result {
	return Result{Name: name, Status: StatusPass, Message: message}
}

// Fail creates a failing check result. The message should say how to
// fix the problem, not just that it exists.
func Fail(name, message string) Result {
	return Result{Name: name, Status: StatusFail, Message: message}
}

// Warn creates a warning check result. Warnings do not cause the
// doctor command to exit non-zero.
func Warn(name, message string) Result {
	return Result{Name: name, Status: StatusWarn, Message: message}
}

// Skip creates a skipped check result. Checks are skipped when a
// prerequisite check failed (e.g. bundle digest checks skip when the
// archive is absent).
func Skip(name, message string) Result {
	return Result{Name: name, Status: StatusSkip, Message: message}
}

// Report is the JSON output structure for the doctor command.
type Report struct {
	Checks []Result `json:"checks"`
	OK     bool     `json:"ok"`
}

// BuildReport assembles the JSON report from check results. OK is
// true when no check failed; warnings and skips do not count against
// it.
func BuildReport(results []Result) Report {
	anyFailed := false
	for _, result := range results {
		if result.Status == StatusFail {
			anyFailed = true
			break
		}
	}
	return Report{Checks: results, OK: !anyFailed}
}
