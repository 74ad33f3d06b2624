// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package stub

import (
	"golang.org/x/sys/unix"
)

// execBinary replaces the current process image. It only returns on
// failure.
func execBinary(path string, argv []string, env []string) error {
	return unix.Exec(path, argv, env)
}
