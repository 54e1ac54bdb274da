// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestHashFile_Deterministic(t *testing.T) {
	path := writeFixture(t, "driver payload")

	first, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}
	second, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}
	if first != second {
		t.Errorf("HashFile() not deterministic: %s vs %s",
			FormatDigest(first), FormatDigest(second))
	}

	other, err := HashFile(writeFixture(t, "different payload"))
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}
	if first == other {
		t.Error("HashFile() identical for different content")
	}
}

func TestHashFile_MissingFile(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("HashFile() = nil, want error for missing file")
	}
}

func TestFormatParseDigest(t *testing.T) {
	digest, err := HashFile(writeFixture(t, "payload"))
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}

	formatted := FormatDigest(digest)
	if len(formatted) != 64 {
		t.Fatalf("FormatDigest() length = %d, want 64", len(formatted))
	}
	if formatted != strings.ToLower(formatted) {
		t.Errorf("FormatDigest() = %q, want lowercase hex", formatted)
	}

	parsed, err := ParseDigest(formatted)
	if err != nil {
		t.Fatalf("ParseDigest(%q) error: %v", formatted, err)
	}
	if parsed != digest {
		t.Error("ParseDigest() did not round-trip FormatDigest()")
	}
}

func TestParseDigest_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short", "abcdef"},
		{"not hex", strings.Repeat("zz", 32)},
		{"too long", strings.Repeat("ab", 33)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseDigest(test.input); err == nil {
				t.Errorf("ParseDigest(%q) = nil, want error", test.input)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	path := writeFixture(t, "driver payload")
	digest, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}

	if err := Verify(path, FormatDigest(digest)); err != nil {
		t.Errorf("Verify() with matching digest: %v", err)
	}

	wrong := digest
	wrong[0] ^= 0xff
	err = Verify(path, FormatDigest(wrong))
	if err == nil {
		t.Fatal("Verify() = nil, want mismatch error")
	}
	if !strings.Contains(err.Error(), "digest mismatch") {
		t.Errorf("Verify() error = %v, want digest mismatch", err)
	}

	if err := Verify(path, "not-a-digest"); err == nil {
		t.Error("Verify() = nil, want error for malformed expected digest")
	}
}
