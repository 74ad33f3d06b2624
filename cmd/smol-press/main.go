// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// smol-press compresses a file with the packing codec. The output is
// a raw compressed stream, not a SMOL section; smol-inject builds the
// full section when embedding into a stub.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/smolpress/smolpress/lib/compress"
	"github.com/smolpress/smolpress/lib/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("smol-press")
		return 0
	}

	flagSet := pflag.NewFlagSet("smol-press", pflag.ContinueOnError)
	algorithmName := flagSet.String("algorithm", "zstd", "compression algorithm: zstd or lz4")
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
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "error: expected <input> and <output> arguments\n")
		printUsage(flagSet)
		return 1
	}
	inputPath, outputPath := args[0], args[1]

	algorithm, err := compress.ParseAlgorithm(*algorithmName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	input, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading %s: %v\n", inputPath, err)
		return 1
	}

	output, err := compress.Compress(input, algorithm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if err := os.WriteFile(outputPath, output, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: writing %s: %v\n", outputPath, err)
		return 1
	}

	ratio := float64(len(input)) / float64(len(output))
	fmt.Printf("%s: %d -> %d bytes (%.2fx, %s)\n", outputPath, len(input), len(output), ratio, algorithm)
	return 0
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: smol-press [flags] <input> <output>

Compress a file for embedding into a self-extracting stub.

Flags:
%s`, flagSet.FlagUsages())
}
