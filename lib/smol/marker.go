// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package smol

import (
	"bytes"
	"fmt"
	"io"
)

// MarkerLen is the length of the magic marker in bytes.
const MarkerLen = 32

// The marker is "__SMOL_PRESSED_DATA_MAGIC_MARKER", split into two
// halves so the contiguous literal never appears in the image of any
// binary that scans for it (a stub containing the whole string would
// find itself before its payload).
const (
	markerHalf1 = "__SMOL_PRESSED_D"
	markerHalf2 = "ATA_MAGIC_MARKER"
)

// Marker returns the assembled 32-byte magic marker.
func Marker() []byte {
	marker := make([]byte, 0, MarkerLen)
	marker = append(marker, markerHalf1...)
	marker = append(marker, markerHalf2...)
	return marker
}

// markerChunkSize is the read granularity of FindMarker. 4 KiB
// matches the page-sized reads the stub performs against its own
// image.
const markerChunkSize = 4096

// FindMarker scans r from its current position for the magic marker
// and returns the absolute offset of the first byte AFTER it. The
// scan reads fixed-size chunks and overlaps consecutive reads by
// MarkerLen-1 bytes, so a marker straddling a chunk boundary is never
// missed. Returns ErrMarkerNotFound when the stream ends without a
// match.
func FindMarker(r io.ReadSeeker) (int64, error) {
	marker := Marker()

	offset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("smol: seeking for marker scan: %w", err)
	}

	chunk := make([]byte, markerChunkSize)
	for {
		n, readErr := io.ReadFull(r, chunk)
		if n > 0 {
			if i := bytes.Index(chunk[:n], marker); i >= 0 {
				return offset + int64(i) + MarkerLen, nil
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			// A final chunk shorter than the marker cannot hide one.
			return 0, ErrMarkerNotFound
		}
		if readErr != nil {
			return 0, fmt.Errorf("smol: reading during marker scan: %w", readErr)
		}

		// Rewind so a marker split across the boundary is seen whole
		// in the next chunk.
		offset += int64(n) - (MarkerLen - 1)
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return 0, fmt.Errorf("smol: rewinding marker scan: %w", err)
		}
	}
}
