// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package macho walks and mutates 64-bit Mach-O load-command tables.
//
// The parsing here is deliberately hand-rolled rather than delegated
// to a format library: Mach-O is the primary packing target and this
// walk is the reference bounds-checking discipline that the ELF and
// PE paths (which do use a format library) must match. Every offset
// and length is validated before it is dereferenced, and any
// violation fails the whole operation closed — no clamping, no
// partial mutation.
package macho

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Magic64 is the little-endian magic of a 64-bit Mach-O image.
const Magic64 = 0xfeedfacf

// Names of the SMOL payload segment and its section, as written into
// packed binaries' load-command tables.
const (
	SegmentName = "SMOL"
	SectionName = "__PRESSED_DATA"
)

// Load-command layout constants.
const (
	// headerSize is sizeof(mach_header_64).
	headerSize = 32

	// lcSegment64 and lcCodeSignature are the two command types this
	// package acts on.
	lcSegment64     = 0x19
	lcCodeSignature = 0x1d

	// segmentCommandSize is sizeof(segment_command_64): the fixed
	// prefix before that segment's section records.
	segmentCommandSize = 72

	// sectionRecordSize is sizeof(section_64).
	sectionRecordSize = 80

	// maxLoadCommands bounds the declared command count. A corrupted
	// or hostile ncmds above this ceiling is rejected outright rather
	// than iterated.
	maxLoadCommands = 10000

	// minCommandSize is sizeof(load_command): every record starts
	// with a 4-byte type tag and a 4-byte declared length.
	minCommandSize = 8

	// maxCommandSize bounds a single record's declared length.
	maxCommandSize = 64 * 1024

	// maxCommandRegion bounds sizeofcmds, which also bounds how much
	// of a file ReadLoadCommandRegion will read into memory.
	maxCommandRegion = 16 << 20
)

// Sentinel errors. A walk distinguishes "this is not a Mach-O image"
// (ErrNotMachO — detection treats it as a plain not-found) from "this
// claims to be Mach-O but its table is malformed" (ErrInvalidFormat,
// ErrBoundsViolation — always fatal to the operation).
var (
	ErrNotMachO        = errors.New("not a 64-bit Mach-O image")
	ErrInvalidFormat   = errors.New("malformed Mach-O load-command table")
	ErrBoundsViolation = errors.New("load command exceeds mapped region")
)

// walkFunc receives each validated load command: its byte offset in
// the image, its type tag, and its full record (header + payload,
// exactly the declared cmdsize bytes). Returning stop ends the walk.
type walkFunc func(offset int, command uint32, record []byte) (stop bool, err error)

// walkLoadCommands iterates the load-command table of image, which
// must start at the Mach-O header. Before any record is handed to fn,
// the walk verifies that the record's fixed sub-header fits in the
// image, that its declared length is within sane bounds, and that the
// full record fits in the image. The cursor advances strictly
// monotonically (cmdsize >= minCommandSize guarantees progress).
func walkLoadCommands(image []byte, fn walkFunc) error {
	if len(image) < headerSize {
		return fmt.Errorf("macho: %w: %d bytes is smaller than the header", ErrNotMachO, len(image))
	}
	if binary.LittleEndian.Uint32(image[0:4]) != Magic64 {
		return fmt.Errorf("macho: %w: magic %#x", ErrNotMachO, binary.LittleEndian.Uint32(image[0:4]))
	}

	commandCount := binary.LittleEndian.Uint32(image[16:20])
	if commandCount > maxLoadCommands {
		return fmt.Errorf("macho: %w: %d load commands exceeds ceiling %d",
			ErrInvalidFormat, commandCount, maxLoadCommands)
	}

	cursor := headerSize
	for i := uint32(0); i < commandCount; i++ {
		if cursor+minCommandSize > len(image) {
			return fmt.Errorf("macho: %w: command %d header at offset %d",
				ErrBoundsViolation, i, cursor)
		}

		command := binary.LittleEndian.Uint32(image[cursor : cursor+4])
		commandSize := int(binary.LittleEndian.Uint32(image[cursor+4 : cursor+8]))

		if commandSize < minCommandSize || commandSize > maxCommandSize {
			return fmt.Errorf("macho: %w: command %d declares size %d",
				ErrInvalidFormat, i, commandSize)
		}
		if cursor+commandSize > len(image) {
			return fmt.Errorf("macho: %w: command %d (size %d) at offset %d",
				ErrBoundsViolation, i, commandSize, cursor)
		}

		stop, err := fn(cursor, command, image[cursor:cursor+commandSize])
		if err != nil {
			return err
		}
		if stop {
			return nil
		}

		cursor += commandSize
	}
	return nil
}

// DetectPressedData reports whether image's load-command table
// declares the SMOL segment with a __PRESSED_DATA section. The walk
// is read-only; any bounds violation aborts with an error rather than
// a partial answer.
func DetectPressedData(image []byte) (bool, error) {
	found := false
	err := walkLoadCommands(image, func(offset int, command uint32, record []byte) (bool, error) {
		if command != lcSegment64 {
			return false, nil
		}
		if len(record) < segmentCommandSize {
			return false, fmt.Errorf("macho: %w: segment command at offset %d is %d bytes",
				ErrInvalidFormat, offset, len(record))
		}
		if cString(record[8:24]) != SegmentName {
			return false, nil
		}

		sectionCount := int(binary.LittleEndian.Uint32(record[64:68]))
		if sectionCount < 0 || segmentCommandSize+sectionCount*sectionRecordSize > len(record) {
			return false, fmt.Errorf("macho: %w: segment at offset %d declares %d sections in %d bytes",
				ErrBoundsViolation, offset, sectionCount, len(record))
		}

		for s := 0; s < sectionCount; s++ {
			section := record[segmentCommandSize+s*sectionRecordSize:]
			if cString(section[0:16]) == SectionName {
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// findCodeSignature locates the LC_CODE_SIGNATURE record. Returns its
// offset and declared size, or found=false when the table has none.
func findCodeSignature(image []byte) (offset, size int, found bool, err error) {
	err = walkLoadCommands(image, func(recordOffset int, command uint32, record []byte) (bool, error) {
		if command == lcCodeSignature {
			offset = recordOffset
			size = len(record)
			found = true
			return true, nil
		}
		return false, nil
	})
	return offset, size, found, err
}

// ReadLoadCommandRegion reads the Mach-O header plus the complete
// load-command table from the file at path. Only header+sizeofcmds
// bytes are read, bounded by the file's actual size and a sanity
// ceiling, so a forged sizeofcmds cannot trigger an oversized
// allocation.
func ReadLoadCommandRegion(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("macho: opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("macho: stat %s: %w", path, err)
	}
	if info.Size() < headerSize {
		return nil, fmt.Errorf("macho: %w: %s is %d bytes", ErrNotMachO, path, info.Size())
	}

	header := make([]byte, headerSize)
	if _, err := file.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("macho: reading header of %s: %w", path, err)
	}
	if binary.LittleEndian.Uint32(header[0:4]) != Magic64 {
		return nil, fmt.Errorf("macho: %w: %s", ErrNotMachO, path)
	}

	commandBytes := int64(binary.LittleEndian.Uint32(header[20:24]))
	if commandBytes > maxCommandRegion {
		return nil, fmt.Errorf("macho: %w: sizeofcmds %d exceeds ceiling %d",
			ErrInvalidFormat, commandBytes, int64(maxCommandRegion))
	}
	if headerSize+commandBytes > info.Size() {
		return nil, fmt.Errorf("macho: %w: sizeofcmds %d exceeds file size %d",
			ErrBoundsViolation, commandBytes, info.Size())
	}

	region := make([]byte, headerSize+commandBytes)
	if _, err := file.ReadAt(region, 0); err != nil {
		return nil, fmt.Errorf("macho: reading load commands of %s: %w", path, err)
	}
	return region, nil
}

// DetectFile reads path's load-command region and runs
// DetectPressedData over it.
func DetectFile(path string) (bool, error) {
	region, err := ReadLoadCommandRegion(path)
	if err != nil {
		return false, err
	}
	return DetectPressedData(region)
}

// cString returns the bytes of a fixed-width name field up to its
// first NUL.
func cString(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}
