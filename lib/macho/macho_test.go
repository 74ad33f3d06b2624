// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package macho

import (
	"encoding/binary"
	"errors"
	"testing"
)

// imageBuilder assembles synthetic 64-bit Mach-O images for tests:
// a real header followed by hand-packed load commands.
type imageBuilder struct {
	commands [][]byte
}

func (b *imageBuilder) addRaw(command uint32, size int) {
	record := make([]byte, size)
	binary.LittleEndian.PutUint32(record[0:4], command)
	binary.LittleEndian.PutUint32(record[4:8], uint32(size))
	b.commands = append(b.commands, record)
}

// addSegment64 appends an LC_SEGMENT_64 with the given segment name
// and one section record per section name.
func (b *imageBuilder) addSegment64(segmentName string, sectionNames ...string) {
	size := segmentCommandSize + len(sectionNames)*sectionRecordSize
	record := make([]byte, size)
	binary.LittleEndian.PutUint32(record[0:4], lcSegment64)
	binary.LittleEndian.PutUint32(record[4:8], uint32(size))
	copy(record[8:24], segmentName)
	binary.LittleEndian.PutUint32(record[64:68], uint32(len(sectionNames)))
	for i, name := range sectionNames {
		section := record[segmentCommandSize+i*sectionRecordSize:]
		copy(section[0:16], name)
		copy(section[16:32], segmentName)
	}
	b.commands = append(b.commands, record)
}

func (b *imageBuilder) build() []byte {
	var commandBytes int
	for _, record := range b.commands {
		commandBytes += len(record)
	}

	image := make([]byte, headerSize, headerSize+commandBytes)
	binary.LittleEndian.PutUint32(image[0:4], Magic64)
	binary.LittleEndian.PutUint32(image[4:8], 0x0100000c)  // cputype arm64
	binary.LittleEndian.PutUint32(image[12:16], 2)         // MH_EXECUTE
	binary.LittleEndian.PutUint32(image[16:20], uint32(len(b.commands)))
	binary.LittleEndian.PutUint32(image[20:24], uint32(commandBytes))

	for _, record := range b.commands {
		image = append(image, record...)
	}
	return image
}

func TestDetectPressedData(t *testing.T) {
	var builder imageBuilder
	builder.addRaw(0x1b, 24) // LC_UUID filler
	builder.addSegment64("__TEXT", "__text")
	builder.addSegment64(SegmentName, SectionName)
	builder.addRaw(lcCodeSignature, 16)

	found, err := DetectPressedData(builder.build())
	if err != nil {
		t.Fatalf("DetectPressedData failed: %v", err)
	}
	if !found {
		t.Error("section not detected")
	}
}

func TestDetectPressedDataAbsent(t *testing.T) {
	// SMOL segment present but without the payload section.
	var builder imageBuilder
	builder.addSegment64("__TEXT", "__text")
	builder.addSegment64(SegmentName, "__OTHER")

	found, err := DetectPressedData(builder.build())
	if err != nil {
		t.Fatalf("DetectPressedData failed: %v", err)
	}
	if found {
		t.Error("detected a section that is not there")
	}
}

func TestWalkRejectsNonMachO(t *testing.T) {
	for name, image := range map[string][]byte{
		"empty":       {},
		"short":       {0xcf, 0xfa, 0xed},
		"wrong magic": make([]byte, 64),
	} {
		if _, err := DetectPressedData(image); !errors.Is(err, ErrNotMachO) {
			t.Errorf("%s: error = %v, want ErrNotMachO", name, err)
		}
	}
}

func TestWalkRejectsExcessiveCommandCount(t *testing.T) {
	var builder imageBuilder
	builder.addRaw(0x1b, 24)
	image := builder.build()
	binary.LittleEndian.PutUint32(image[16:20], maxLoadCommands+1)

	if _, err := DetectPressedData(image); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("error = %v, want ErrInvalidFormat", err)
	}
}

func TestWalkRejectsBadCommandSize(t *testing.T) {
	build := func() []byte {
		var builder imageBuilder
		builder.addRaw(0x1b, 24)
		return builder.build()
	}

	// Declared size below the minimum record header.
	image := build()
	binary.LittleEndian.PutUint32(image[headerSize+4:headerSize+8], minCommandSize-1)
	if _, err := DetectPressedData(image); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("undersized record: error = %v, want ErrInvalidFormat", err)
	}

	// Declared size above the per-record ceiling.
	image = build()
	binary.LittleEndian.PutUint32(image[headerSize+4:headerSize+8], maxCommandSize+1)
	if _, err := DetectPressedData(image); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("oversized record: error = %v, want ErrInvalidFormat", err)
	}

	// Declared size within limits but past the end of the image.
	image = build()
	binary.LittleEndian.PutUint32(image[headerSize+4:headerSize+8], 4096)
	if _, err := DetectPressedData(image); !errors.Is(err, ErrBoundsViolation) {
		t.Errorf("overreaching record: error = %v, want ErrBoundsViolation", err)
	}
}

func TestWalkTruncatedImagesNeverPanic(t *testing.T) {
	// Every truncation of a valid image must produce a typed error or
	// a clean result — never a panic.
	var builder imageBuilder
	builder.addSegment64("__TEXT", "__text")
	builder.addSegment64(SegmentName, SectionName)
	builder.addRaw(lcCodeSignature, 16)
	image := builder.build()

	// The walk stops as soon as the SMOL segment is found, so
	// truncations that only cut the trailing signature record still
	// detect cleanly. Everything shorter must fail typed.
	segmentRecord := segmentCommandSize + sectionRecordSize
	intactCutoff := headerSize + 2*segmentRecord

	for length := 0; length < len(image); length++ {
		found, err := DetectPressedData(image[:length])
		if err == nil && found && length < intactCutoff {
			t.Fatalf("truncation to %d bytes still detected the section", length)
		}
		if err != nil &&
			!errors.Is(err, ErrNotMachO) &&
			!errors.Is(err, ErrInvalidFormat) &&
			!errors.Is(err, ErrBoundsViolation) {
			t.Fatalf("truncation to %d bytes: untyped error %v", length, err)
		}
	}
}

func TestDetectRejectsForgedSectionCount(t *testing.T) {
	var builder imageBuilder
	builder.addSegment64(SegmentName, SectionName)
	image := builder.build()

	// Claim more sections than the record holds.
	binary.LittleEndian.PutUint32(image[headerSize+64:headerSize+68], 100)

	if _, err := DetectPressedData(image); !errors.Is(err, ErrBoundsViolation) {
		t.Errorf("forged nsects: error = %v, want ErrBoundsViolation", err)
	}
}

func TestFindCodeSignature(t *testing.T) {
	var builder imageBuilder
	builder.addRaw(0x1b, 24)
	builder.addRaw(lcCodeSignature, 16)
	image := builder.build()

	offset, size, found, err := findCodeSignature(image)
	if err != nil {
		t.Fatalf("findCodeSignature failed: %v", err)
	}
	if !found {
		t.Fatal("signature record not found")
	}
	if offset != headerSize+24 || size != 16 {
		t.Errorf("offset/size = %d/%d, want %d/16", offset, size, headerSize+24)
	}

	// Image without a signature record.
	var clean imageBuilder
	clean.addRaw(0x1b, 24)
	if _, _, found, err := findCodeSignature(clean.build()); err != nil || found {
		t.Errorf("clean image: found=%v err=%v", found, err)
	}
}
