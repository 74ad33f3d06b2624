// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package smol implements the SMOL section: the fixed-layout container
// embedded in a host executable that carries a compressed payload plus
// integrity and cache metadata.
//
// The layout is a wire format in the strictest sense. Stub runtimes
// are compiled independently of the packer and must parse sections the
// packer produced, so field order, width, and endianness are protocol
// constants. All multi-byte integers are little-endian, with no
// padding:
//
//	marker              32 bytes  fixed magic string
//	compressed_size      8 bytes  length of trailing payload
//	uncompressed_size    8 bytes  length the payload expands to
//	cache_key           16 bytes  ASCII hex, fingerprint of the
//	                              uncompressed content
//	platform_metadata    3 bytes  platform, arch, libc
//	has_update_config    1 byte   flag
//	update_config       1112 bytes  present only when the flag is set;
//	                              opaque to this package
//	data                variable  exactly compressed_size bytes
//
// The marker literal is assembled at run time from two halves so that
// it never appears contiguously in the binary image of the tools that
// search for it.
package smol
