// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package binfmt presents one capability surface — sniff, detect,
// strip, inject — over the three executable formats the toolkit
// handles. Mach-O uses the hand-rolled walker in lib/macho; ELF and
// PE delegate parsing to the standard library's debug/elf and
// debug/pe, which honor the same contract: never read out of bounds,
// always return a typed result, never crash on malformed input.
package binfmt

import (
	"errors"
	"fmt"
	"os"

	"github.com/smolpress/smolpress/lib/macho"
	"github.com/smolpress/smolpress/lib/smol"
)

// Kind is a sniffed executable format.
type Kind int

const (
	KindUnknown Kind = iota
	KindMachO
	KindELF
	KindPE
)

// String returns the format name.
func (k Kind) String() string {
	switch k {
	case KindMachO:
		return "Mach-O"
	case KindELF:
		return "ELF"
	case KindPE:
		return "PE"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	// ErrUnsupportedPlatform is returned when an operation is
	// requested on a format that does not support it (signature
	// stripping on anything but Mach-O).
	ErrUnsupportedPlatform = errors.New("operation not supported for this executable format")

	// ErrUnknownFormat is returned when a file matches none of the
	// known magic numbers.
	ErrUnknownFormat = errors.New("unrecognized executable format")
)

// elfPESectionName is the section name used for the payload in ELF
// binaries. PE section headers carry at most 8 name bytes, so the PE
// form is the truncation below.
const (
	elfSectionName = ".pressed_data"
	peSectionName  = ".pressed"
)

// Sniff identifies the executable format of the file at path from
// its magic bytes.
func Sniff(path string) (Kind, error) {
	file, err := os.Open(path)
	if err != nil {
		return KindUnknown, fmt.Errorf("binfmt: opening %s: %w", path, err)
	}
	defer file.Close()

	var magic [4]byte
	if _, err := file.ReadAt(magic[:], 0); err != nil {
		// Too short to hold any executable header.
		return KindUnknown, nil
	}

	switch {
	case magic == [4]byte{0xcf, 0xfa, 0xed, 0xfe}: // MH_MAGIC_64, little-endian
		return KindMachO, nil
	case magic == [4]byte{0x7f, 'E', 'L', 'F'}:
		return KindELF, nil
	case magic[0] == 'M' && magic[1] == 'Z':
		return KindPE, nil
	default:
		return KindUnknown, nil
	}
}

// DetectSmol reports whether the binary at path carries a SMOL
// payload. For each format the section table is consulted first; a
// binary whose payload was appended behind the marker (the injection
// strategy this toolkit uses) is caught by a bounded marker scan.
// A file of unknown format is scanned for the marker as well, so a
// detached section blob is also recognized.
func DetectSmol(path string) (bool, error) {
	kind, err := Sniff(path)
	if err != nil {
		return false, err
	}

	switch kind {
	case KindMachO:
		// A malformed load-command table means the section walk
		// cannot answer; the marker scan below still can.
		found, err := macho.DetectFile(path)
		if err == nil && found {
			return true, nil
		}
	case KindELF:
		found, err := detectELFSection(path)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	case KindPE:
		found, err := detectPESection(path)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}

	return scanForMarker(path)
}

// StripSignature removes code-signing metadata from the binary at
// path. Only Mach-O carries a signature load command; the other
// formats fail with ErrUnsupportedPlatform.
func StripSignature(path string) (bool, error) {
	kind, err := Sniff(path)
	if err != nil {
		return false, err
	}

	switch kind {
	case KindMachO:
		return macho.StripSignature(path)
	case KindELF, KindPE:
		return false, fmt.Errorf("binfmt: %s: %w", kind, ErrUnsupportedPlatform)
	default:
		return false, fmt.Errorf("binfmt: %s: %w", path, ErrUnknownFormat)
	}
}

// scanForMarker runs the chunked marker scan over the whole file.
func scanForMarker(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("binfmt: opening %s: %w", path, err)
	}
	defer file.Close()

	_, err = smol.FindMarker(file)
	if errors.Is(err, smol.ErrMarkerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
