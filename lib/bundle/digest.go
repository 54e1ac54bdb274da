// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest of a bundle archive. Manifests
// declare digests in hex; a declared digest is verified before the
// archive is unpacked so a truncated or tampered bundle never reaches
// the extraction step.
type Digest [32]byte

// HashFile computes the BLAKE3 digest of the file at path. The file
// is streamed through the hash function (via io.Copy) to keep memory
// usage constant regardless of archive size.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FormatDigest returns the hex-encoded string representation of a
// digest. This is the format manifests declare and logs print.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a 64-character hex string into a Digest.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing bundle digest: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("bundle digest is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// Verify checks the file at path against the expected hex digest.
// A mismatch returns an error naming both digests so the operator can
// tell a stale bundle from a corrupted download.
func Verify(path, expectedHex string) error {
	expected, err := ParseDigest(expectedHex)
	if err != nil {
		return err
	}

	actual, err := HashFile(path)
	if err != nil {
		return err
	}

	if actual != expected {
		return fmt.Errorf("digest mismatch for %s: manifest declares %s, file is %s",
			path, FormatDigest(expected), FormatDigest(actual))
	}
	return nil
}
