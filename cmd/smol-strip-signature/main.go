// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// smol-strip-signature removes the code-signature load command from
// a Mach-O executable in place. Exits 0 when a signature was removed,
// 1 when none was present or on any error.
package main

import (
	"fmt"
	"os"

	"github.com/smolpress/smolpress/lib/binfmt"
	"github.com/smolpress/smolpress/lib/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("smol-strip-signature")
		return 0
	}
	if len(os.Args) != 2 || os.Args[1] == "--help" || os.Args[1] == "-h" {
		fmt.Fprintf(os.Stderr, "Usage: smol-strip-signature <executable>\n")
		return 1
	}

	removed, err := binfmt.StripSignature(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if !removed {
		fmt.Fprintf(os.Stderr, "no code signature found in %s\n", os.Args[1])
		return 1
	}

	fmt.Printf("removed code signature from %s\n", os.Args[1])
	return 0
}
