// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// smol-inject packs a binary into a self-extracting stub: compress
// the payload, assemble the SMOL section, append it to a copy of the
// stub template, and optionally strip the template's code signature
// from the result.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/smolpress/smolpress/lib/binfmt"
	"github.com/smolpress/smolpress/lib/compress"
	"github.com/smolpress/smolpress/lib/smol"
	"github.com/smolpress/smolpress/lib/updatecfg"
	"github.com/smolpress/smolpress/lib/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("smol-inject")
		return 0
	}

	flagSet := pflag.NewFlagSet("smol-inject", pflag.ContinueOnError)
	inputPath := flagSet.String("input", "", "binary to embed")
	stubPath := flagSet.String("stub", "", "stub template executable")
	outputPath := flagSet.String("output", "", "packed executable to produce")
	configPath := flagSet.String("update-config", "", "JSON update config to embed (comments allowed)")
	stripSignature := flagSet.Bool("strip-signature", false, "strip the code signature from the output (Mach-O only)")
	platformName := flagSet.String("platform", runtime.GOOS, "target platform: linux, darwin, or windows")
	archName := flagSet.String("arch", runtime.GOARCH, "target architecture: amd64 or arm64")
	libcName := flagSet.String("libc", "", "target libc for linux: glibc or musl")
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
	if *inputPath == "" || *stubPath == "" || *outputPath == "" {
		fmt.Fprintf(os.Stderr, "error: --input, --stub, and --output are required\n")
		printUsage(flagSet)
		return 1
	}

	if err := inject(*inputPath, *stubPath, *outputPath, *configPath,
		*platformName, *archName, *libcName, *stripSignature); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func inject(inputPath, stubPath, outputPath, configPath, platformName, archName, libcName string, stripSignature bool) error {
	// Refuse to pack a stub that already carries a payload: the
	// runtime would find the first marker and extract the old one.
	packed, err := binfmt.DetectSmol(stubPath)
	if err != nil {
		return fmt.Errorf("inspecting stub %s: %w", stubPath, err)
	}
	if packed {
		return fmt.Errorf("stub %s already contains an embedded payload", stubPath)
	}

	platform, arch, libc, err := resolveTarget(platformName, archName, libcName)
	if err != nil {
		return err
	}

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}

	var configBlock []byte
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", configPath, err)
		}
		config, err := updatecfg.ParseJSON(raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", configPath, err)
		}
		configBlock, err = config.EncodeBinary()
		if err != nil {
			return fmt.Errorf("encoding update config: %w", err)
		}
	}

	compressed, err := compress.Compress(input, compress.AlgorithmZstd)
	if err != nil {
		return err
	}

	section, err := smol.Build(input, compressed, platform, arch, libc, configBlock)
	if err != nil {
		return err
	}

	if err := binfmt.Inject(stubPath, outputPath, section); err != nil {
		return err
	}

	if stripSignature {
		if _, err := binfmt.StripSignature(outputPath); err != nil && !errors.Is(err, binfmt.ErrUnsupportedPlatform) {
			return fmt.Errorf("stripping signature: %w", err)
		}
	}

	ratio := float64(len(input)) / float64(len(compressed))
	fmt.Printf("%s: embedded %d bytes as %d compressed (%.2fx), cache key %s\n",
		outputPath, len(input), len(compressed), ratio, section.CacheKey)
	return nil
}

// resolveTarget maps the flag spellings onto section metadata bytes.
func resolveTarget(platformName, archName, libcName string) (smol.Platform, smol.Arch, smol.Libc, error) {
	var platform smol.Platform
	switch platformName {
	case "linux":
		platform = smol.PlatformLinux
	case "darwin":
		platform = smol.PlatformDarwin
	case "windows", "win32":
		platform = smol.PlatformWindows
	default:
		return 0, 0, 0, fmt.Errorf("unknown platform %q", platformName)
	}

	var arch smol.Arch
	switch archName {
	case "amd64", "x64":
		arch = smol.ArchX64
	case "arm64":
		arch = smol.ArchARM64
	default:
		return 0, 0, 0, fmt.Errorf("unknown architecture %q", archName)
	}

	libc := smol.LibcNone
	if platform == smol.PlatformLinux {
		switch libcName {
		case "", "glibc":
			libc = smol.LibcGlibc
		case "musl":
			libc = smol.LibcMusl
		default:
			return 0, 0, 0, fmt.Errorf("unknown libc %q", libcName)
		}
	} else if libcName != "" {
		return 0, 0, 0, fmt.Errorf("--libc only applies to linux targets")
	}

	return platform, arch, libc, nil
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: smol-inject --input <binary> --stub <template> --output <packed> [flags]

Pack a binary into a self-extracting stub executable.

Flags:
%s`, flagSet.FlagUsages())
}
