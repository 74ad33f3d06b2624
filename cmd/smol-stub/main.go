// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// smol-stub is the stub template: a small executable that expects a
// SMOL section appended to its own image (by smol-inject) and, when
// run, extracts and executes the embedded payload with the original
// argv and environment.
package main

import (
	"fmt"
	"os"

	"github.com/smolpress/smolpress/lib/stub"
)

func main() {
	runtime := stub.New()
	if err := runtime.Run(os.Args, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	// Reached only on Windows, where the payload ran as a child and
	// execBinary exits with its status.
}
