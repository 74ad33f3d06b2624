// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package macho

import (
	"errors"
	"fmt"
)

// StripSignature requires a writable shared mapping, which this
// package only implements on Unix hosts.
func StripSignature(path string) (bool, error) {
	return false, fmt.Errorf("macho: signature stripping is not available on this host: %w",
		errors.ErrUnsupported)
}
