// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package stage runs deskwing's bootstrap and teardown pipelines: a
// fixed, ordered list of named stages driven by one runner loop.
// Severity is declared per stage, not decided by error content: a
// fatal stage's failure halts the pipeline, a warning stage's failure
// is logged and the run continues unconditionally.
package stage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Severity classifies how a stage's failure affects the pipeline.
type Severity string

const (
	// Fatal failures halt the pipeline immediately.
	Fatal Severity = "fatal"

	// Warning failures are reported and the pipeline continues.
	Warning Severity = "warning"
)

// Stage is one pipeline step. Order in the stage slice is execution
// order, fixed and total.
type Stage struct {
	// Name identifies the stage in progress lines ("tunnels",
	// "extract:display-driver").
	Name string

	// Severity decides what a failed Action does to the pipeline.
	Severity Severity

	// Action does the work. A nil return is success.
	Action func(ctx context.Context) error
}

// Stage outcome statuses.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusFailed  = "failed"
)

// Outcome records one finished stage.
type Outcome struct {
	Name     string
	Status   string
	Duration time.Duration

	// Err is the action's error for warning and failed outcomes.
	Err error
}

// Runner drives a stage list. The zero value prints to stdout and
// logs nowhere.
type Runner struct {
	// Label prefixes progress lines: "[up] stage 1/6: ...".
	Label string

	// Out receives progress lines. If nil, os.Stdout.
	Out io.Writer

	// Logger receives structured stage events. If nil, a no-op
	// logger is used.
	Logger *slog.Logger
}

// Run executes stages in order and returns an outcome per stage run.
// A fatal stage failure stops execution and returns the wrapped
// error; warning failures accumulate in the outcomes only. The
// context is checked between stages so an interrupt stops the
// pipeline at the next stage boundary (the running action's
// subprocess is killed through the same context).
func (r *Runner) Run(ctx context.Context, stages []Stage) ([]Outcome, error) {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	outcomes := make([]Outcome, 0, len(stages))
	total := len(stages)

	for index, stage := range stages {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("pipeline interrupted before stage %q: %w", stage.Name, err)
		}

		startTime := time.Now()
		err := stage.Action(ctx)
		duration := time.Since(startTime)

		switch {
		case err == nil:
			fmt.Fprintf(out, "[%s] stage %d/%d: %s... ok (%s)\n",
				r.Label, index+1, total, stage.Name, formatDuration(duration))
			logger.Info("stage ok", "stage", stage.Name, "duration", duration)
			outcomes = append(outcomes, Outcome{
				Name: stage.Name, Status: StatusOK, Duration: duration,
			})

		case stage.Severity == Warning:
			fmt.Fprintf(out, "[%s] stage %d/%d: %s... warning: %v\n",
				r.Label, index+1, total, stage.Name, err)
			logger.Warn("stage failed, continuing",
				"stage", stage.Name, "duration", duration, "error", err)
			outcomes = append(outcomes, Outcome{
				Name: stage.Name, Status: StatusWarning, Duration: duration, Err: err,
			})

		default:
			fmt.Fprintf(out, "[%s] stage %d/%d: %s... failed (%s)\n",
				r.Label, index+1, total, stage.Name, formatDuration(duration))
			logger.Error("stage failed",
				"stage", stage.Name, "duration", duration, "error", err)
			outcomes = append(outcomes, Outcome{
				Name: stage.Name, Status: StatusFailed, Duration: duration, Err: err,
			})
			return outcomes, fmt.Errorf("stage %q: %w", stage.Name, err)
		}
	}

	return outcomes, nil
}

func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.1fs", duration.Seconds())
}
