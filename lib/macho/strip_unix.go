// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package macho

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// StripSignature removes the code-signature load command from the
// Mach-O binary at path by zeroing the record in place through a
// writable shared mapping. The record's declared length field is left
// intact so table-cursor arithmetic in other tools stays valid.
//
// Returns (true, nil) when a signature record was zeroed, and
// (false, nil) when the table has none — stripping an already
// stripped binary is not an error and leaves the file byte-identical.
//
// The mutation is visible through the mapping immediately, but
// success is only reported after an explicit msync of the mapped
// pages AND an fsync of the file: a crash between "mapped write
// visible" and "durable on disk" must not leave the file in a state
// inconsistent with what was reported. On any failure before the
// record is written, the file is unmodified; the munmap/close pair
// runs on every path.
func StripSignature(path string) (removed bool, err error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("macho: opening %s for stripping: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("macho: stat %s: %w", path, err)
	}
	if info.Size() < headerSize {
		return false, fmt.Errorf("macho: %w: %s is %d bytes", ErrNotMachO, path, info.Size())
	}
	if info.Size() > int64(int(^uint(0)>>1)) {
		return false, fmt.Errorf("macho: %s is too large to map", path)
	}

	mapped, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return false, fmt.Errorf("macho: mapping %s: %w", path, err)
	}
	defer func() {
		if unmapErr := unix.Munmap(mapped); unmapErr != nil && err == nil {
			err = fmt.Errorf("macho: unmapping %s: %w", path, unmapErr)
		}
	}()

	offset, size, found, err := findCodeSignature(mapped)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	// Zero the type tag and the payload. Bytes [offset+4, offset+8)
	// hold the declared length and stay.
	for i := offset; i < offset+4; i++ {
		mapped[i] = 0
	}
	for i := offset + minCommandSize; i < offset+size; i++ {
		mapped[i] = 0
	}

	if err := unix.Msync(mapped, unix.MS_SYNC); err != nil {
		return false, fmt.Errorf("macho: syncing mapped pages of %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return false, fmt.Errorf("macho: fsync %s: %w", path, err)
	}

	return true, nil
}
