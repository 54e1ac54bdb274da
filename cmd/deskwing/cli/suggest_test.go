// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1}, // substitution
		{"abc", "ab", 1},  // deletion
		{"ab", "abc", 1},  // insertion
		{"abc", "bac", 2}, // transposition (counted as 2 edits)
		{"kitten", "sitting", 3},
		{"doctor", "docter", 1},
		{"wireless", "wirelss", 1},
		{"version", "vrsion", 1},
	}

	for _, test := range tests {
		t.Run(test.a+"/"+test.b, func(t *testing.T) {
			got := levenshtein(test.a, test.b)
			if got != test.want {
				t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
			}
		})
	}
}

func TestLevenshtein_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"abc", "abd"},
		{"hello", "helo"},
		{"doctor", "docter"},
	}

	for _, pair := range pairs {
		forward := levenshtein(pair[0], pair[1])
		reverse := levenshtein(pair[1], pair[0])
		if forward != reverse {
			t.Errorf("levenshtein(%q, %q) = %d, but reverse = %d",
				pair[0], pair[1], forward, reverse)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "up"},
		{Name: "down"},
		{Name: "doctor"},
		{Name: "version"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"docter", "doctor"},    // typo
		{"doctr", "doctor"},     // missing letter
		{"vrsion", "version"},   // missing letter
		{"versionn", "version"}, // extra letter
		{"zzzzzzzzz", ""},       // nothing close
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got := suggestCommand(test.input, commands)
			if got != test.want {
				t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlagSet := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("up", pflag.ContinueOnError)
		flagSet.String("config", "", "config path")
		flagSet.Int("fps", 60, "frame rate")
		flagSet.Bool("wireless", false, "wireless transport")
		return flagSet
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"typo long flag", []string{"--confg", "x"}, "--config"},
		{"typo with equals", []string{"--wirelss=true"}, "--wireless"},
		{"nothing close", []string{"--zzzzzzzzzz"}, ""},
		{"defined flag is not flagged", []string{"--config", "x"}, ""},
		{"no flags at all", []string{"positional"}, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := suggestFlag(test.args, newFlagSet())
			if got != test.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
			}
		})
	}
}
