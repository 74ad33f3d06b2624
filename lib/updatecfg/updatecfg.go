// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package updatecfg parses and serializes the update-checking
// configuration that a packer can embed in a stub. The on-disk form is
// the fixed 1112-byte binary block carried in the SMOL section; the
// input form is JSON (comments and trailing commas tolerated).
//
// The SMOL section codec treats the block as opaque bytes. Only this
// package, and the stub's update checker, interpret it.
package updatecfg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"
)

// BinaryLen is the fixed length of the serialized config block. Must
// match the SMOL section's embedded update_config field width.
const BinaryLen = 1112

// Binary block layout, little-endian, no padding beyond the fields
// shown. The reserved bytes bring the fixed prefix to 32 bytes before
// the string fields.
//
//	magic            4 bytes   "SMFG"
//	version          4 bytes   uint32, currently 1
//	enabled          1 byte
//	prompt           1 byte
//	prompt_default   1 byte    'y' or 'n'
//	reserved         5 bytes   zero
//	interval         8 bytes   int64 milliseconds
//	notify_interval  8 bytes   int64 milliseconds
//	binname          128 bytes NUL-padded
//	command          256 bytes NUL-padded
//	url              512 bytes NUL-padded
//	tag              128 bytes NUL-padded
//	skip_env         32 bytes  NUL-padded
//	fake_argv_env    24 bytes  NUL-padded
const (
	binaryVersion = 1

	maxBinNameLen     = 128
	maxCommandLen     = 256
	maxURLLen         = 512
	maxTagLen         = 128
	maxSkipEnvLen     = 32
	maxFakeArgvEnvLen = 24
)

var binaryMagic = [4]byte{'S', 'M', 'F', 'G'}

// ErrInvalidConfig is returned for malformed JSON input, over-length
// fields, or a binary block that fails validation.
var ErrInvalidConfig = errors.New("invalid update config")

// Config is the update-checking configuration embedded in a stub.
type Config struct {
	// Enabled controls whether the stub checks for updates at all.
	Enabled bool `json:"enabled"`

	// Interval is how often to check for updates, in milliseconds.
	Interval int64 `json:"interval"`

	// NotifyInterval is how often to notify the user about a known
	// update, in milliseconds.
	NotifyInterval int64 `json:"notify_interval"`

	// Prompt selects interactive prompting instead of a passive
	// notice.
	Prompt bool `json:"prompt"`

	// PromptDefault is the default prompt answer: "y" or "n".
	PromptDefault string `json:"prompt_default"`

	// BinName is the binary name shown in notifications.
	BinName string `json:"binname"`

	// Command is the command suggested to the user to update.
	Command string `json:"command"`

	// URL is the releases API endpoint polled for new versions.
	URL string `json:"url"`

	// Tag is the release tag pattern to match (glob).
	Tag string `json:"tag"`

	// SkipEnv names an environment variable that, when set, skips
	// update checks entirely.
	SkipEnv string `json:"skip_env"`

	// FakeArgvEnv names an environment variable the stub exports so
	// the payload can present the stub's argv[0] instead of its own.
	FakeArgvEnv string `json:"fake_argv_env"`
}

// Default returns the configuration used when a field is absent from
// the JSON input.
func Default() Config {
	return Config{
		Enabled:        true,
		Interval:       86400000, // 24h
		NotifyInterval: 86400000,
		Prompt:         false,
		PromptDefault:  "n",
		Command:        "self-update",
		Tag:            "*",
	}
}

// ParseJSON parses a JSON config document, applying Default values
// for absent fields. Comments and trailing commas are tolerated.
func ParseJSON(data []byte) (Config, error) {
	config := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
		return Config{}, fmt.Errorf("updatecfg: %w: %v", ErrInvalidConfig, err)
	}
	if config.PromptDefault != "y" && config.PromptDefault != "n" {
		return Config{}, fmt.Errorf("updatecfg: %w: prompt_default %q, want \"y\" or \"n\"",
			ErrInvalidConfig, config.PromptDefault)
	}
	if config.Interval < 0 || config.NotifyInterval < 0 {
		return Config{}, fmt.Errorf("updatecfg: %w: negative interval", ErrInvalidConfig)
	}
	return config, nil
}

// EncodeBinary serializes the config into the fixed 1112-byte block.
// Over-length string fields are an error, not a silent truncation.
func (c Config) EncodeBinary() ([]byte, error) {
	block := make([]byte, BinaryLen)
	copy(block[0:4], binaryMagic[:])
	binary.LittleEndian.PutUint32(block[4:8], binaryVersion)

	if c.Enabled {
		block[8] = 1
	}
	if c.Prompt {
		block[9] = 1
	}
	switch c.PromptDefault {
	case "y", "n":
		block[10] = c.PromptDefault[0]
	case "":
		block[10] = 'n'
	default:
		return nil, fmt.Errorf("updatecfg: %w: prompt_default %q", ErrInvalidConfig, c.PromptDefault)
	}
	// block[11:16] reserved, zero.

	binary.LittleEndian.PutUint64(block[16:24], uint64(c.Interval))
	binary.LittleEndian.PutUint64(block[24:32], uint64(c.NotifyInterval))

	cursor := 32
	for _, field := range []struct {
		name  string
		value string
		width int
	}{
		{"binname", c.BinName, maxBinNameLen},
		{"command", c.Command, maxCommandLen},
		{"url", c.URL, maxURLLen},
		{"tag", c.Tag, maxTagLen},
		{"skip_env", c.SkipEnv, maxSkipEnvLen},
		{"fake_argv_env", c.FakeArgvEnv, maxFakeArgvEnvLen},
	} {
		// Reserve one byte so the stored form is always NUL-terminated.
		if len(field.value) >= field.width {
			return nil, fmt.Errorf("updatecfg: %w: %s is %d bytes, limit %d",
				ErrInvalidConfig, field.name, len(field.value), field.width-1)
		}
		copy(block[cursor:cursor+field.width], field.value)
		cursor += field.width
	}

	return block, nil
}

// DecodeBinary parses a 1112-byte block back into a Config. The magic
// and version are validated first; string fields are read up to their
// first NUL.
func DecodeBinary(block []byte) (Config, error) {
	if len(block) != BinaryLen {
		return Config{}, fmt.Errorf("updatecfg: %w: block is %d bytes, want %d",
			ErrInvalidConfig, len(block), BinaryLen)
	}
	if [4]byte(block[0:4]) != binaryMagic {
		return Config{}, fmt.Errorf("updatecfg: %w: bad magic %x", ErrInvalidConfig, block[0:4])
	}
	if version := binary.LittleEndian.Uint32(block[4:8]); version != binaryVersion {
		return Config{}, fmt.Errorf("updatecfg: %w: version %d, want %d",
			ErrInvalidConfig, version, binaryVersion)
	}

	config := Config{
		Enabled:        block[8] == 1,
		Prompt:         block[9] == 1,
		PromptDefault:  string(block[10:11]),
		Interval:       int64(binary.LittleEndian.Uint64(block[16:24])),
		NotifyInterval: int64(binary.LittleEndian.Uint64(block[24:32])),
	}

	cursor := 32
	for _, field := range []struct {
		target *string
		width  int
	}{
		{&config.BinName, maxBinNameLen},
		{&config.Command, maxCommandLen},
		{&config.URL, maxURLLen},
		{&config.Tag, maxTagLen},
		{&config.SkipEnv, maxSkipEnvLen},
		{&config.FakeArgvEnv, maxFakeArgvEnvLen},
	} {
		*field.target = cString(block[cursor : cursor+field.width])
		cursor += field.width
	}

	if config.PromptDefault != "y" && config.PromptDefault != "n" {
		return Config{}, fmt.Errorf("updatecfg: %w: stored prompt_default %q",
			ErrInvalidConfig, config.PromptDefault)
	}

	return config, nil
}

// cString returns the bytes before the first NUL as a string.
func cString(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}
