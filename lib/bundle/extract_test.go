// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// tarEntry describes one entry for buildTar.
type tarEntry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

// buildTar assembles a tar stream from entries. Directories are
// inferred by the extractor, so entries only list files and links.
func buildTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, entry := range entries {
		typeflag := entry.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		mode := entry.mode
		if mode == 0 {
			mode = 0o644
		}
		header := &tar.Header{
			Name:     entry.name,
			Mode:     mode,
			Size:     int64(len(entry.body)),
			Typeflag: typeflag,
			Linkname: entry.linkname,
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("writing tar header %s: %v", entry.name, err)
		}
		if typeflag == tar.TypeReg {
			if _, err := writer.Write([]byte(entry.body)); err != nil {
				t.Fatalf("writing tar body %s: %v", entry.name, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return buffer.Bytes()
}

// writeArchive writes data to a file named name inside a fresh temp
// dir and returns the path.
func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	return path
}

var driverEntries = []tarEntry{
	{name: "README", body: "virtual display driver\n"},
	{name: "bin/vddctl", body: "#!/bin/sh\nexit 0\n", mode: 0o755},
	{name: "inf/vdd.inf", body: "[Version]\n"},
}

func TestExtract_Zip(t *testing.T) {
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for _, entry := range driverEntries {
		header := &zip.FileHeader{Name: entry.name, Method: zip.Deflate}
		header.SetMode(os.FileMode(entry.mode))
		if entry.mode == 0 {
			header.SetMode(0o644)
		}
		file, err := writer.CreateHeader(header)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		if _, err := file.Write([]byte(entry.body)); err != nil {
			t.Fatalf("writing zip entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}

	archive := writeArchive(t, "driver.zip", buffer.Bytes())
	target := filepath.Join(t.TempDir(), "driver")

	result, err := Extract(archive, target)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if result.Skipped {
		t.Error("Extract() reported Skipped for a fresh target")
	}
	if result.Files != 3 {
		t.Errorf("Extract() wrote %d files, want 3", result.Files)
	}
	assertDriverTree(t, target)
}

func TestExtract_TarVariants(t *testing.T) {
	tarData := buildTar(t, driverEntries)

	var gzipBuffer bytes.Buffer
	gzipWriter := gzip.NewWriter(&gzipBuffer)
	gzipWriter.Write(tarData)
	gzipWriter.Close()

	var zstdBuffer bytes.Buffer
	zstdWriter, err := zstd.NewWriter(&zstdBuffer)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zstdWriter.Write(tarData)
	zstdWriter.Close()

	var lz4Buffer bytes.Buffer
	lz4Writer := lz4.NewWriter(&lz4Buffer)
	lz4Writer.Write(tarData)
	lz4Writer.Close()

	variants := map[string][]byte{
		"driver.tar":     tarData,
		"driver.tar.gz":  gzipBuffer.Bytes(),
		"driver.tar.zst": zstdBuffer.Bytes(),
		"driver.tar.lz4": lz4Buffer.Bytes(),
	}

	for name, payload := range variants {
		t.Run(name, func(t *testing.T) {
			archive := writeArchive(t, name, payload)
			target := filepath.Join(t.TempDir(), "driver")

			result, err := Extract(archive, target)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if result.Files != 3 {
				t.Errorf("Extract() wrote %d files, want 3", result.Files)
			}
			assertDriverTree(t, target)
		})
	}
}

// assertDriverTree verifies the extracted driver fixture: contents
// intact, directories created, executable bit preserved.
func assertDriverTree(t *testing.T, target string) {
	t.Helper()

	readme, err := os.ReadFile(filepath.Join(target, "README"))
	if err != nil {
		t.Fatalf("reading extracted README: %v", err)
	}
	if string(readme) != "virtual display driver\n" {
		t.Errorf("README content = %q", readme)
	}

	info, err := os.Stat(filepath.Join(target, "bin", "vddctl"))
	if err != nil {
		t.Fatalf("stat extracted vddctl: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("vddctl mode = %v, want owner-executable", info.Mode())
	}

	if _, err := os.Stat(filepath.Join(target, "inf", "vdd.inf")); err != nil {
		t.Errorf("stat extracted vdd.inf: %v", err)
	}
}

func TestExtract_ExistingTargetSkipsWithoutTouchingArchive(t *testing.T) {
	target := filepath.Join(t.TempDir(), "driver")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("creating target: %v", err)
	}
	sentinel := filepath.Join(target, "sentinel")
	if err := os.WriteFile(sentinel, []byte("keep"), 0o644); err != nil {
		t.Fatalf("writing sentinel: %v", err)
	}

	// The archive path does not even exist: a pre-existing target
	// must short-circuit before the archive is opened.
	result, err := Extract(filepath.Join(t.TempDir(), "missing.zip"), target)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if !result.Skipped {
		t.Error("Extract() Skipped = false, want true for existing target")
	}

	data, err := os.ReadFile(sentinel)
	if err != nil || string(data) != "keep" {
		t.Errorf("sentinel disturbed: %q, %v", data, err)
	}
}

func TestExtract_SecondRunSkips(t *testing.T) {
	archive := writeArchive(t, "driver.tar", buildTar(t, driverEntries))
	target := filepath.Join(t.TempDir(), "driver")

	first, err := Extract(archive, target)
	if err != nil {
		t.Fatalf("first Extract() error: %v", err)
	}
	if first.Skipped || first.Files != 3 {
		t.Errorf("first Extract() = %+v, want 3 files extracted", first)
	}

	second, err := Extract(archive, target)
	if err != nil {
		t.Fatalf("second Extract() error: %v", err)
	}
	if !second.Skipped {
		t.Error("second Extract() Skipped = false, want true")
	}
	if second.Files != 0 {
		t.Errorf("second Extract() wrote %d files, want 0", second.Files)
	}
}

func TestExtract_MissingArchive(t *testing.T) {
	target := filepath.Join(t.TempDir(), "driver")
	_, err := Extract(filepath.Join(t.TempDir(), "missing.tar.gz"), target)
	if err == nil {
		t.Fatal("Extract() = nil, want error for missing archive")
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("target directory created despite missing archive")
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	archive := writeArchive(t, "driver.rar", []byte("not an archive"))
	_, err := Extract(archive, filepath.Join(t.TempDir(), "driver"))
	if err == nil || !strings.Contains(err.Error(), "unsupported archive format") {
		t.Errorf("Extract() error = %v, want unsupported-format error", err)
	}
}

func TestExtract_RejectsEscapingEntry(t *testing.T) {
	data := buildTar(t, []tarEntry{{name: "../evil", body: "x"}})
	archive := writeArchive(t, "evil.tar", data)
	target := filepath.Join(t.TempDir(), "driver")

	_, err := Extract(archive, target)
	if err == nil || !strings.Contains(err.Error(), "escapes the archive") {
		t.Fatalf("Extract() error = %v, want escape rejection", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("target directory exists after rejected extraction")
	}
}

func TestExtract_RejectsEscapingSymlink(t *testing.T) {
	data := buildTar(t, []tarEntry{
		{name: "link", typeflag: tar.TypeSymlink, linkname: "../../outside"},
	})
	archive := writeArchive(t, "evil.tar", data)

	_, err := Extract(archive, filepath.Join(t.TempDir(), "driver"))
	if err == nil || !strings.Contains(err.Error(), "escapes the archive") {
		t.Errorf("Extract() error = %v, want symlink escape rejection", err)
	}
}

func TestExtract_AllowsInternalSymlink(t *testing.T) {
	data := buildTar(t, []tarEntry{
		{name: "bin/vddctl", body: "#!/bin/sh\n", mode: 0o755},
		{name: "vddctl", typeflag: tar.TypeSymlink, linkname: "bin/vddctl"},
	})
	archive := writeArchive(t, "driver.tar", data)
	target := filepath.Join(t.TempDir(), "driver")

	result, err := Extract(archive, target)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if result.Files != 2 {
		t.Errorf("Extract() wrote %d entries, want 2", result.Files)
	}
	linked, err := os.Readlink(filepath.Join(target, "vddctl"))
	if err != nil || linked != "bin/vddctl" {
		t.Errorf("Readlink = %q, %v", linked, err)
	}
}

func TestExtract_FailureLeavesNoTargetOrStaging(t *testing.T) {
	// Truncated gzip stream: header parses, body read fails.
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	writer.Write(buildTar(t, driverEntries))
	writer.Close()
	truncated := buffer.Bytes()[:buffer.Len()/2]

	archive := writeArchive(t, "driver.tar.gz", truncated)
	target := filepath.Join(t.TempDir(), "driver")

	if _, err := Extract(archive, target); err == nil {
		t.Fatal("Extract() = nil, want error for truncated archive")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("target directory exists after failed extraction")
	}
	if _, err := os.Stat(target + ".partial"); !os.IsNotExist(err) {
		t.Error("staging directory left behind after failed extraction")
	}
}

func TestExtractVerified(t *testing.T) {
	archive := writeArchive(t, "driver.tar", buildTar(t, driverEntries))
	digest, err := HashFile(archive)
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}

	t.Run("matching digest extracts", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "driver")
		result, err := ExtractVerified(archive, target, FormatDigest(digest))
		if err != nil {
			t.Fatalf("ExtractVerified() error: %v", err)
		}
		if result.Files != 3 {
			t.Errorf("ExtractVerified() wrote %d files, want 3", result.Files)
		}
	})

	t.Run("mismatched digest refuses to extract", func(t *testing.T) {
		wrong := digest
		wrong[0] ^= 0xff
		target := filepath.Join(t.TempDir(), "driver")
		_, err := ExtractVerified(archive, target, FormatDigest(wrong))
		if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
			t.Fatalf("ExtractVerified() error = %v, want digest mismatch", err)
		}
		if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
			t.Error("target created despite digest mismatch")
		}
	})

	t.Run("existing target skips without verifying", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "driver")
		if err := os.MkdirAll(target, 0o755); err != nil {
			t.Fatalf("creating target: %v", err)
		}
		// Archive path is bogus: the skip must win before any hashing.
		result, err := ExtractVerified(filepath.Join(t.TempDir(), "gone.tar"),
			target, strings.Repeat("ab", 32))
		if err != nil {
			t.Fatalf("ExtractVerified() error: %v", err)
		}
		if !result.Skipped {
			t.Error("ExtractVerified() Skipped = false for existing target")
		}
	})

	t.Run("empty digest skips verification", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "driver")
		if _, err := ExtractVerified(archive, target, ""); err != nil {
			t.Fatalf("ExtractVerified() error: %v", err)
		}
	})
}

func TestExtract_ReaderRoundTrip(t *testing.T) {
	// Entry bodies survive the full write-extract cycle unchanged.
	body := strings.Repeat("frame data ", 4096)
	data := buildTar(t, []tarEntry{{name: "data/frames.bin", body: body}})
	archive := writeArchive(t, "data.tar", data)
	target := filepath.Join(t.TempDir(), "data")

	if _, err := Extract(archive, target); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	extracted, err := os.ReadFile(filepath.Join(target, "data", "frames.bin"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if !bytes.Equal(extracted, []byte(body)) {
		t.Error("extracted content differs from archived content")
	}
}
