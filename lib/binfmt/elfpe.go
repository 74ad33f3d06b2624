// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package binfmt

import (
	"debug/elf"
	"debug/pe"
)

// detectELFSection reports whether the ELF binary at path has a
// .pressed_data section. Parse failures are swallowed: a truncated or
// malformed ELF simply does not carry the section, and the caller
// falls back to the marker scan.
func detectELFSection(path string) (bool, error) {
	file, err := elf.Open(path)
	if err != nil {
		return false, nil
	}
	defer file.Close()

	return file.Section(elfSectionName) != nil, nil
}

// detectPESection reports whether the PE binary at path has a
// payload section. PE section names are limited to eight bytes, so
// both the truncated and (unlikely) full spellings are accepted.
func detectPESection(path string) (bool, error) {
	file, err := pe.Open(path)
	if err != nil {
		return false, nil
	}
	defer file.Close()

	for _, section := range file.Sections {
		if section.Name == peSectionName || section.Name == elfSectionName {
			return true, nil
		}
	}
	return false, nil
}
