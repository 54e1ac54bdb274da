// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle extracts the archives deskwing ships alongside the
// CLI: the virtual display driver package, platform tools, and
// anything else the provision manifest declares. Extraction is
// idempotent (an existing target directory means the bundle is
// already provisioned and the archive is not touched) and atomic:
// entries unpack into a staging directory that is renamed into place
// only after the whole archive has been written, so an interrupted
// run never leaves a half-populated target behind.
package bundle

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Result describes one extraction outcome.
type Result struct {
	// Skipped is true when the target directory already existed and
	// the archive was left untouched.
	Skipped bool

	// Files is the number of entries written (regular files and
	// symlinks; directories are not counted).
	Files int
}

// ExtractVerified is Extract with an optional digest gate: when
// expectedHex is non-empty, the archive is verified against it before
// any extraction happens. The existing-target short circuit applies
// first, so an already-provisioned target never requires the archive
// to still be present.
func ExtractVerified(archivePath, targetDir, expectedHex string) (Result, error) {
	if _, err := os.Stat(targetDir); err == nil {
		return Result{Skipped: true}, nil
	}
	if expectedHex != "" {
		if err := Verify(archivePath, expectedHex); err != nil {
			return Result{}, err
		}
	}
	return Extract(archivePath, targetDir)
}

// Extract unpacks the archive at archivePath into targetDir. The
// archive format is selected by file extension: .zip, .tar, .tar.gz,
// .tgz, .tar.zst, and .tar.lz4 are supported. If targetDir already
// exists, nothing is extracted and the result reports Skipped.
func Extract(archivePath, targetDir string) (Result, error) {
	if _, err := os.Stat(targetDir); err == nil {
		return Result{Skipped: true}, nil
	} else if !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("checking target %s: %w", targetDir, err)
	}

	if _, err := os.Stat(archivePath); err != nil {
		return Result{}, fmt.Errorf("bundle archive %s: %w", archivePath, err)
	}

	// Stage into a sibling directory and rename into place at the
	// end. The rename is the commit point: targetDir either does not
	// exist or holds the complete archive contents.
	staging := targetDir + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return Result{}, fmt.Errorf("clearing stale staging directory %s: %w", staging, err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating staging directory %s: %w", staging, err)
	}
	defer os.RemoveAll(staging)

	var files int
	var err error
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		files, err = extractZip(archivePath, staging)
	case strings.HasSuffix(archivePath, ".tar"),
		strings.HasSuffix(archivePath, ".tar.gz"),
		strings.HasSuffix(archivePath, ".tgz"),
		strings.HasSuffix(archivePath, ".tar.zst"),
		strings.HasSuffix(archivePath, ".tar.lz4"):
		files, err = extractTarArchive(archivePath, staging)
	default:
		return Result{}, fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
	if err != nil {
		return Result{}, fmt.Errorf("extracting %s: %w", archivePath, err)
	}

	if err := os.Rename(staging, targetDir); err != nil {
		return Result{}, fmt.Errorf("moving %s into place: %w", staging, err)
	}
	return Result{Files: files}, nil
}

// extractZip unpacks a zip archive into dir.
func extractZip(archivePath, dir string) (int, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("opening zip: %w", err)
	}
	defer reader.Close()

	files := 0
	for _, entry := range reader.File {
		name, err := entryPath(dir, entry.Name)
		if err != nil {
			return files, err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(name, 0o755); err != nil {
				return files, fmt.Errorf("creating directory %s: %w", name, err)
			}
			continue
		}

		source, err := entry.Open()
		if err != nil {
			return files, fmt.Errorf("opening %s in archive: %w", entry.Name, err)
		}
		err = writeEntry(name, source, entry.Mode())
		source.Close()
		if err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

// extractTarArchive unpacks a tar archive (optionally compressed with
// gzip, zstd, or lz4, selected by extension) into dir.
func extractTarArchive(archivePath, dir string) (int, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		gz, err := gzip.NewReader(file)
		if err != nil {
			return 0, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	case strings.HasSuffix(archivePath, ".tar.zst"):
		decoder, err := zstd.NewReader(file)
		if err != nil {
			return 0, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer decoder.Close()
		reader = decoder
	case strings.HasSuffix(archivePath, ".tar.lz4"):
		reader = lz4.NewReader(file)
	}

	return extractTar(tar.NewReader(reader), dir)
}

// extractTar writes every entry of a tar stream under dir.
func extractTar(tarReader *tar.Reader, dir string) (int, error) {
	files := 0
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, fmt.Errorf("reading archive: %w", err)
		}

		name, err := entryPath(dir, header.Name)
		if err != nil {
			return files, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(name, 0o755); err != nil {
				return files, fmt.Errorf("creating directory %s: %w", name, err)
			}

		case tar.TypeReg:
			if err := writeEntry(name, tarReader, header.FileInfo().Mode()); err != nil {
				return files, err
			}
			files++

		case tar.TypeSymlink:
			// Links must stay inside the extraction root. An
			// absolute target or one that climbs out via .. could
			// redirect later entries outside the staging directory.
			if filepath.IsAbs(header.Linkname) ||
				!filepath.IsLocal(filepath.Join(filepath.Dir(header.Name), header.Linkname)) {
				return files, fmt.Errorf("entry %s: symlink target %s escapes the archive", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return files, fmt.Errorf("creating directory for %s: %w", name, err)
			}
			if err := os.Symlink(header.Linkname, name); err != nil {
				return files, fmt.Errorf("creating symlink %s: %w", name, err)
			}
			files++

		default:
			// Character devices, fifos, and hard links have no
			// business in a tool bundle.
			return files, fmt.Errorf("entry %s: unsupported type %q", header.Name, header.Typeflag)
		}
	}
	return files, nil
}

// entryPath validates an archive entry name and returns its absolute
// destination under dir. Entries that are absolute or climb out of
// the extraction root are rejected.
func entryPath(dir, entryName string) (string, error) {
	name := filepath.FromSlash(entryName)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("entry %s escapes the archive", entryName)
	}
	return filepath.Join(dir, name), nil
}

// writeEntry writes one regular file, creating parent directories as
// needed. Only the permission bits of mode are kept; setuid and
// friends from an archive are never honored.
func writeEntry(name string, source io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", name, err)
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	destination, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := destination.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	return nil
}
