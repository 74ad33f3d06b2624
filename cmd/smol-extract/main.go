// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// smol-extract pulls the embedded payload back out of a packed
// executable without running it: the packer-side inverse of the stub
// runtime, useful for inspecting and verifying packed binaries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/smolpress/smolpress/lib/cachekey"
	"github.com/smolpress/smolpress/lib/compress"
	"github.com/smolpress/smolpress/lib/smol"
	"github.com/smolpress/smolpress/lib/stub"
	"github.com/smolpress/smolpress/lib/updatecfg"
	"github.com/smolpress/smolpress/lib/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("smol-extract")
		return 0
	}

	flagSet := pflag.NewFlagSet("smol-extract", pflag.ContinueOnError)
	infoOnly := flagSet.Bool("info", false, "print section metadata without extracting")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printUsage(flagSet)
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage(flagSet)
		return 0
	}

	args := flagSet.Args()
	if *infoOnly {
		if len(args) != 1 {
			fmt.Fprintf(os.Stderr, "error: --info expects one <packed> argument\n")
			return 1
		}
	} else if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "error: expected <packed> and <output> arguments\n")
		printUsage(flagSet)
		return 1
	}

	file, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening %s: %v\n", args[0], err)
		return 1
	}
	defer file.Close()

	embedded, err := stub.ReadEmbedded(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	header := embedded.Header

	if *infoOnly {
		printInfo(header)
		return 0
	}

	data, err := compress.DecompressSized(embedded.Data, int(header.UncompressedSize), compress.AlgorithmZstd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if derived := cachekey.Derive(data); derived != header.CacheKey {
		fmt.Fprintf(os.Stderr, "error: payload cache key %s does not match embedded %s\n",
			derived, header.CacheKey)
		return 1
	}

	if err := os.WriteFile(args[1], data, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: writing %s: %v\n", args[1], err)
		return 1
	}

	fmt.Printf("%s: extracted %d bytes, cache key %s\n", args[1], len(data), header.CacheKey)
	return 0
}

func printInfo(header *smol.Header) {
	fmt.Printf("compressed size:   %d\n", header.CompressedSize)
	fmt.Printf("uncompressed size: %d\n", header.UncompressedSize)
	fmt.Printf("cache key:         %s\n", header.CacheKey)
	fmt.Printf("platform:          %s\n", header.Platform)
	fmt.Printf("arch:              %s\n", header.Arch)
	if libc := header.Libc.String(); libc != "" {
		fmt.Printf("libc:              %s\n", libc)
	}
	if header.UpdateConfig == nil {
		fmt.Printf("update config:     none\n")
		return
	}
	config, err := updatecfg.DecodeBinary(header.UpdateConfig)
	if err != nil {
		fmt.Printf("update config:     present but malformed (%v)\n", err)
		return
	}
	fmt.Printf("update config:     enabled=%v command=%q tag=%q\n",
		config.Enabled, config.Command, config.Tag)
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: smol-extract [flags] <packed> <output>

Extract the embedded payload from a packed executable.

Flags:
%s`, flagSet.FlagUsages())
}
