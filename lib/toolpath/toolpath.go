// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolpath resolves external tool binaries against an explicit,
// ordered list of directories before falling back to the system search
// path. Deskwing shells out to several tools (the Python interpreter,
// the device tunnel client, the display device tool) and some of them
// may be carried alongside the checkout or unpacked from a bundled
// archive rather than installed system-wide. The resolver makes that
// precedence explicit and auditable instead of relying on ambient PATH
// mutation: directories added during a run affect only this process
// and its children, never the parent shell.
package toolpath

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates that a tool was not found in any search
// directory or on the system path. Callers distinguish it from
// execution failures with errors.Is.
var ErrNotFound = errors.New("tool not found")

// Resolver locates tool binaries. Directories are consulted in the
// order they were added; the system search path is always consulted
// last. The zero value is usable and resolves purely via the system
// path.
type Resolver struct {
	dirs []string
}

// New returns a Resolver that consults the given directories, in
// order, before the system search path.
func New(dirs ...string) *Resolver {
	r := &Resolver{}
	for _, dir := range dirs {
		r.Extend(dir)
	}
	return r
}

// Extend appends a directory to the search list. Empty strings and
// directories already present are ignored. Later stages use this to
// make a freshly unpacked bundle's binaries resolvable for the rest
// of the run.
func (r *Resolver) Extend(dir string) {
	if dir == "" {
		return
	}
	for _, existing := range r.dirs {
		if existing == dir {
			return
		}
	}
	r.dirs = append(r.dirs, dir)
}

// Dirs returns a copy of the extra search directories, in resolution
// order.
func (r *Resolver) Dirs() []string {
	dirs := make([]string, len(r.dirs))
	copy(dirs, r.dirs)
	return dirs
}

// Locate returns the full path of the named tool. Each extra
// directory is checked for a regular file of that name first; if none
// has one, the system search path decides. The returned error wraps
// ErrNotFound when the tool is absent everywhere.
func (r *Resolver) Locate(name string) (string, error) {
	for _, dir := range r.dirs {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			// Join collapses "./name" to a bare name, which exec
			// would resolve through PATH instead of running the
			// file found here. Keep the path qualified.
			if !strings.ContainsRune(candidate, filepath.Separator) {
				candidate = "." + string(filepath.Separator) + candidate
			}
			return candidate, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		if len(r.dirs) > 0 {
			return "", fmt.Errorf("%q not found in %s or on the system path: %w",
				name, strings.Join(r.dirs, ", "), ErrNotFound)
		}
		return "", fmt.Errorf("%q not found on the system path: %w", name, ErrNotFound)
	}
	return path, nil
}

// Environ returns a copy of the current process environment with PATH
// prefixed by the extra search directories. Child processes launched
// with this environment resolve tools the same way this resolver does.
// The parent process environment is never modified.
func (r *Resolver) Environ() []string {
	environ := os.Environ()
	if len(r.dirs) == 0 {
		return environ
	}

	prefix := strings.Join(r.dirs, string(os.PathListSeparator))
	for i, entry := range environ {
		if value, ok := strings.CutPrefix(entry, "PATH="); ok {
			environ[i] = "PATH=" + prefix + string(os.PathListSeparator) + value
			return environ
		}
	}
	return append(environ, "PATH="+prefix)
}
