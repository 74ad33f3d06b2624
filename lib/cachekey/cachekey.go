// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package cachekey derives short deterministic fingerprints of byte
// content. Keys dedupe and address compressed artifacts in the
// extraction cache — they are a cache correctness contract, not a
// security boundary.
package cachekey

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"

	"github.com/zeebo/blake3"
)

// KeyLen is the length of a derived key: 16 lowercase hex characters
// (64 bits of fingerprint).
const KeyLen = 16

// Derive returns the cache key for data: the first 8 bytes of the
// BLAKE3 digest, hex-encoded. Identical input always produces an
// identical key. Empty input is valid and yields the (deterministic)
// digest of the empty string.
func Derive(data []byte) string {
	digest := blake3.Sum256(data)
	return hex.EncodeToString(digest[:KeyLen/2])
}

// DeriveFallback returns the FNV-1a 64-bit key for data. It exists
// for interoperating with stubs built without the BLAKE3 primitive;
// it is deterministic but collision-tolerant only in the cache sense.
func DeriveFallback(data []byte) string {
	hasher := fnv.New64a()
	hasher.Write(data)
	return fmt.Sprintf("%016x", hasher.Sum64())
}

// Valid reports whether key has the shape of a derived cache key:
// exactly KeyLen lowercase hex characters. Parsed sections use this
// to reject corrupted cache key fields before they reach the
// filesystem as directory names.
func Valid(key string) bool {
	if len(key) != KeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
