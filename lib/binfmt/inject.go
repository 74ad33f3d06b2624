// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package binfmt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/smolpress/smolpress/lib/smol"
)

// Inject writes a copy of the stub at stubPath with the encoded SMOL
// section appended, then atomically renames it over outputPath. The
// stub template is never modified; on any error the output path is
// left untouched.
//
// The appended layout relies on the runtime marker scan rather than
// the format's section table: every format reads trailing bytes past
// the mapped segments without complaint, and one injection path then
// serves Mach-O, ELF, and PE alike.
func Inject(stubPath, outputPath string, section *smol.Section) error {
	encoded := section.Encode()

	stub, err := os.Open(stubPath)
	if err != nil {
		return fmt.Errorf("binfmt: opening stub %s: %w", stubPath, err)
	}
	defer stub.Close()

	// Write to a temp file in the output directory so the final
	// rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(filepath.Dir(outputPath), ".smol-inject-*")
	if err != nil {
		return fmt.Errorf("binfmt: creating temp output: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up the temp file on any error path.
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, stub); err != nil {
		tmpFile.Close()
		return fmt.Errorf("binfmt: copying stub: %w", err)
	}
	if _, err := tmpFile.Write(encoded); err != nil {
		tmpFile.Close()
		return fmt.Errorf("binfmt: appending section: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("binfmt: syncing output: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("binfmt: closing output: %w", err)
	}

	// The output must be directly runnable.
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("binfmt: marking output executable: %w", err)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("binfmt: renaming output to %s: %w", outputPath, err)
	}

	success = true
	return nil
}
