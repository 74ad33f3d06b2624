// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package smol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/smolpress/smolpress/lib/cachekey"
)

// Fixed-layout field widths. Changing any of these breaks wire
// compatibility with every deployed stub.
const (
	// SizeHeaderLen covers the two 8-byte little-endian lengths that
	// follow the marker: compressed_size, then uncompressed_size.
	SizeHeaderLen = 16

	// CacheKeyLen is the stored cache key width: 16 ASCII hex digits,
	// not null-terminated.
	CacheKeyLen = cachekey.KeyLen

	// PlatformMetadataLen covers the platform, arch, and libc bytes.
	PlatformMetadataLen = 3

	// ConfigFlagLen is the has_update_config flag byte.
	ConfigFlagLen = 1

	// UpdateConfigLen is the fixed length of the optional embedded
	// update-config block. The block is opaque at this layer; package
	// updatecfg interprets it.
	UpdateConfigLen = 1112

	// HeaderLen is the section header without the optional config
	// block or payload: marker + sizes + cache key + platform
	// metadata + flag.
	HeaderLen = MarkerLen + SizeHeaderLen + CacheKeyLen + PlatformMetadataLen + ConfigFlagLen

	// MaxPayloadSize bounds the compressed_size field a parser will
	// accept. Matches the decompression ceiling: a compressed payload
	// can never usefully exceed the largest output it may expand to.
	MaxPayloadSize = 512 << 20
)

// Platform identifies the target operating system of the embedded
// payload. Stored values are protocol constants.
type Platform byte

const (
	PlatformLinux   Platform = 0
	PlatformDarwin  Platform = 1
	PlatformWindows Platform = 2
)

// Arch identifies the target CPU architecture.
type Arch byte

const (
	ArchX64   Arch = 0
	ArchARM64 Arch = 1
)

// Libc identifies the C library flavor on Linux targets.
type Libc byte

const (
	LibcGlibc Libc = 0
	LibcMusl  Libc = 1
	LibcNone  Libc = 255
)

// Sentinel errors for section encoding and parsing.
var (
	// ErrInvalidInput is returned by Build for malformed arguments
	// (empty payload, wrongly sized config block).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFormat is returned by Parse when the marker does not
	// match or a fixed-offset field is malformed.
	ErrInvalidFormat = errors.New("invalid section format")

	// ErrBoundsViolation is returned when a declared length would
	// read outside the supplied buffer. Parsing fails closed.
	ErrBoundsViolation = errors.New("section field exceeds buffer bounds")

	// ErrMarkerNotFound is returned by FindMarker when the stream is
	// exhausted without locating the magic marker.
	ErrMarkerNotFound = errors.New("magic marker not found")
)

// Section is the decoded form of a SMOL section. Constructed once by
// the packer via Build, written immutably into the host binary, and
// read back by Parse or ReadHeader.
type Section struct {
	// CompressedSize is the byte length of Data.
	CompressedSize uint64

	// UncompressedSize is the length Data expands to. Enforced, not
	// assumed, at extraction time.
	UncompressedSize uint64

	// CacheKey is the fingerprint of the UNCOMPRESSED payload: 16
	// lowercase hex characters.
	CacheKey string

	// Platform, Arch, and Libc describe the embedded payload's
	// target.
	Platform Platform
	Arch     Arch
	Libc     Libc

	// UpdateConfig is the optional embedded update-config block:
	// nil, or exactly UpdateConfigLen bytes copied verbatim. Never
	// interpreted here.
	UpdateConfig []byte

	// Data is the compressed payload.
	Data []byte
}

// Build assembles a Section from a compressed payload. The cache key
// is derived from the uncompressed bytes — the key addresses the
// extracted artifact in the cache, and only uncompressed bytes exist
// there. updateConfig must be nil or exactly UpdateConfigLen bytes.
func Build(uncompressed, compressed []byte, platform Platform, arch Arch, libc Libc, updateConfig []byte) (*Section, error) {
	if len(uncompressed) == 0 {
		return nil, fmt.Errorf("smol: %w: empty uncompressed payload", ErrInvalidInput)
	}
	if len(compressed) == 0 {
		return nil, fmt.Errorf("smol: %w: empty compressed payload", ErrInvalidInput)
	}
	if updateConfig != nil && len(updateConfig) != UpdateConfigLen {
		return nil, fmt.Errorf("smol: %w: update config is %d bytes, want %d",
			ErrInvalidInput, len(updateConfig), UpdateConfigLen)
	}

	return &Section{
		CompressedSize:   uint64(len(compressed)),
		UncompressedSize: uint64(len(uncompressed)),
		CacheKey:         cachekey.Derive(uncompressed),
		Platform:         platform,
		Arch:             arch,
		Libc:             libc,
		UpdateConfig:     append([]byte(nil), updateConfig...),
		Data:             compressed,
	}, nil
}

// Size returns the serialized section length:
// header + optional config block + payload.
func (s *Section) Size() int {
	size := HeaderLen + len(s.Data)
	if len(s.UpdateConfig) > 0 {
		size += UpdateConfigLen
	}
	return size
}

// Encode serializes the section into a fresh buffer laid out exactly
// as documented in the package comment.
func (s *Section) Encode() []byte {
	buffer := make([]byte, 0, s.Size())
	buffer = append(buffer, Marker()...)

	var sizes [SizeHeaderLen]byte
	binary.LittleEndian.PutUint64(sizes[0:8], s.CompressedSize)
	binary.LittleEndian.PutUint64(sizes[8:16], s.UncompressedSize)
	buffer = append(buffer, sizes[:]...)

	buffer = append(buffer, s.CacheKey...)
	buffer = append(buffer, byte(s.Platform), byte(s.Arch), byte(s.Libc))

	if len(s.UpdateConfig) > 0 {
		buffer = append(buffer, 1)
		buffer = append(buffer, s.UpdateConfig...)
	} else {
		buffer = append(buffer, 0)
	}

	buffer = append(buffer, s.Data...)
	return buffer
}

// Parse decodes a serialized section. The marker is validated first
// and a mismatch rejects immediately — this is the fast-path detector
// used everywhere else. Every subsequent field is bounds-checked
// against the supplied buffer; Parse never reads past it, even for a
// buffer shorter than the computed layout.
func Parse(data []byte) (*Section, error) {
	if len(data) < MarkerLen {
		return nil, fmt.Errorf("smol: %w: %d bytes is too short for the marker",
			ErrInvalidFormat, len(data))
	}
	if !bytes.Equal(data[:MarkerLen], Marker()) {
		return nil, fmt.Errorf("smol: %w: marker mismatch", ErrInvalidFormat)
	}

	// Trailing bytes after the payload are tolerated: a section
	// parsed out of a larger mapped region ends where compressed_size
	// says it ends.
	section, _, err := parseAfterMarker(data[MarkerLen:])
	if err != nil {
		return nil, err
	}
	return section, nil
}

// parseAfterMarker decodes the fields that follow the marker. Returns
// the section and the number of bytes consumed from data.
func parseAfterMarker(data []byte) (*Section, int, error) {
	const fixed = SizeHeaderLen + CacheKeyLen + PlatformMetadataLen + ConfigFlagLen
	if len(data) < fixed {
		return nil, 0, fmt.Errorf("smol: %w: header truncated at %d of %d bytes",
			ErrBoundsViolation, len(data), fixed)
	}

	section := &Section{
		CompressedSize:   binary.LittleEndian.Uint64(data[0:8]),
		UncompressedSize: binary.LittleEndian.Uint64(data[8:16]),
	}

	key := data[SizeHeaderLen : SizeHeaderLen+CacheKeyLen]
	if !cachekey.Valid(string(key)) {
		return nil, 0, fmt.Errorf("smol: %w: cache key %q is not %d hex digits",
			ErrInvalidFormat, key, CacheKeyLen)
	}
	section.CacheKey = string(key)

	meta := SizeHeaderLen + CacheKeyLen
	section.Platform = Platform(data[meta])
	section.Arch = Arch(data[meta+1])
	section.Libc = Libc(data[meta+2])

	flag := data[meta+PlatformMetadataLen]
	cursor := fixed
	switch flag {
	case 0:
	case 1:
		if len(data) < cursor+UpdateConfigLen {
			return nil, 0, fmt.Errorf("smol: %w: update config truncated", ErrBoundsViolation)
		}
		section.UpdateConfig = append([]byte(nil), data[cursor:cursor+UpdateConfigLen]...)
		cursor += UpdateConfigLen
	default:
		return nil, 0, fmt.Errorf("smol: %w: has_update_config flag is %d, want 0 or 1",
			ErrInvalidFormat, flag)
	}

	if section.CompressedSize == 0 {
		return nil, 0, fmt.Errorf("smol: %w: compressed size is zero", ErrInvalidFormat)
	}
	if section.CompressedSize > MaxPayloadSize {
		return nil, 0, fmt.Errorf("smol: %w: compressed size %d exceeds %d",
			ErrInvalidFormat, section.CompressedSize, uint64(MaxPayloadSize))
	}
	if uint64(len(data)-cursor) < section.CompressedSize {
		return nil, 0, fmt.Errorf("smol: %w: payload declares %d bytes, %d remain",
			ErrBoundsViolation, section.CompressedSize, len(data)-cursor)
	}
	section.Data = append([]byte(nil), data[cursor:cursor+int(section.CompressedSize)]...)
	cursor += int(section.CompressedSize)

	return section, cursor, nil
}

// Header is the metadata read by a stub before it fetches the
// payload: everything between the marker and the compressed data.
type Header struct {
	CompressedSize   uint64
	UncompressedSize uint64
	CacheKey         string
	Platform         Platform
	Arch             Arch
	Libc             Libc
	UpdateConfig     []byte // nil when has_update_config is 0
}

// ReadHeader reads the section header from r, which must be
// positioned immediately after the marker (where FindMarker leaves
// the offset). On return, r is positioned at the first byte of the
// compressed payload. Sizes are validated against MaxPayloadSize and
// the decompression ceiling; zero sizes are rejected — a corrupted or
// truncated self-image must not be trusted blindly.
func ReadHeader(r io.Reader) (*Header, error) {
	fixed := make([]byte, SizeHeaderLen+CacheKeyLen+PlatformMetadataLen+ConfigFlagLen)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("smol: %w: reading section header: %v", ErrInvalidFormat, err)
	}

	header := &Header{
		CompressedSize:   binary.LittleEndian.Uint64(fixed[0:8]),
		UncompressedSize: binary.LittleEndian.Uint64(fixed[8:16]),
	}

	if header.CompressedSize == 0 || header.UncompressedSize == 0 {
		return nil, fmt.Errorf("smol: %w: zero payload size in header", ErrInvalidFormat)
	}
	if header.CompressedSize > MaxPayloadSize || header.UncompressedSize > MaxPayloadSize {
		return nil, fmt.Errorf("smol: %w: declared sizes %d/%d exceed ceiling %d",
			ErrInvalidFormat, header.CompressedSize, header.UncompressedSize,
			uint64(MaxPayloadSize))
	}

	key := fixed[SizeHeaderLen : SizeHeaderLen+CacheKeyLen]
	if !cachekey.Valid(string(key)) {
		return nil, fmt.Errorf("smol: %w: cache key %q is not %d hex digits",
			ErrInvalidFormat, key, CacheKeyLen)
	}
	header.CacheKey = string(key)

	meta := SizeHeaderLen + CacheKeyLen
	header.Platform = Platform(fixed[meta])
	header.Arch = Arch(fixed[meta+1])
	header.Libc = Libc(fixed[meta+2])

	switch flag := fixed[meta+PlatformMetadataLen]; flag {
	case 0:
	case 1:
		header.UpdateConfig = make([]byte, UpdateConfigLen)
		if _, err := io.ReadFull(r, header.UpdateConfig); err != nil {
			return nil, fmt.Errorf("smol: %w: reading update config: %v", ErrInvalidFormat, err)
		}
	default:
		return nil, fmt.Errorf("smol: %w: has_update_config flag is %d, want 0 or 1",
			ErrInvalidFormat, flag)
	}

	return header, nil
}

// String returns the platform name used in cache metadata.
func (p Platform) String() string {
	switch p {
	case PlatformLinux:
		return "linux"
	case PlatformDarwin:
		return "darwin"
	case PlatformWindows:
		return "win32"
	default:
		return fmt.Sprintf("unknown(%d)", byte(p))
	}
}

// String returns the architecture name used in cache metadata.
func (a Arch) String() string {
	switch a {
	case ArchX64:
		return "x64"
	case ArchARM64:
		return "arm64"
	default:
		return fmt.Sprintf("unknown(%d)", byte(a))
	}
}

// String returns the libc name used in cache metadata; LibcNone
// renders as an empty string (the field is omitted off Linux).
func (l Libc) String() string {
	switch l {
	case LibcGlibc:
		return "glibc"
	case LibcMusl:
		return "musl"
	case LibcNone:
		return ""
	default:
		return fmt.Sprintf("unknown(%d)", byte(l))
	}
}

// PlatformForGOOS maps a Go runtime GOOS value to the stored platform
// byte. Unknown systems map to PlatformLinux, the most permissive
// target for cache metadata purposes.
func PlatformForGOOS(goos string) Platform {
	switch goos {
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// ArchForGOARCH maps a Go runtime GOARCH value to the stored arch
// byte.
func ArchForGOARCH(goarch string) Arch {
	if goarch == "arm64" {
		return ArchARM64
	}
	return ArchX64
}
