// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package dlxcache implements the shared extraction cache used by
// stubs and tooling. Extracted binaries live under
// <base>/<cache_key>/<binary_name> with a .dlx-metadata.json sidecar
// describing provenance and integrity.
package dlxcache

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smolpress/smolpress/lib/cachekey"
)

const (
	// MetadataFileName is the per-entry sidecar describing the
	// cached binary.
	MetadataFileName = ".dlx-metadata.json"

	// MetadataVersion is the schema version written to new sidecars.
	MetadataVersion = "1.0.0"

	dirName = "_dlx"
)

// Sentinel errors.
var (
	ErrInvalidCacheKey = errors.New("invalid cache key")
	ErrNotCached       = errors.New("binary not present in cache")
	ErrIntegrity       = errors.New("cached binary fails integrity check")
)

// Source records where a cache entry came from.
type Source struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// Extra carries compression details for entries produced by stub
// extraction.
type Extra struct {
	CompressedSize       uint64  `json:"compressed_size"`
	CompressionAlgorithm string  `json:"compression_algorithm"`
	CompressionRatio     float64 `json:"compression_ratio"`
}

// Metadata is the .dlx-metadata.json schema.
type Metadata struct {
	Version           string `json:"version"`
	CacheKey          string `json:"cache_key"`
	Timestamp         int64  `json:"timestamp"` // milliseconds since epoch
	Checksum          string `json:"checksum"`  // "sha512-" + hex
	ChecksumAlgorithm string `json:"checksum_algorithm"`
	Platform          string `json:"platform"`
	Arch              string `json:"arch"`
	Libc              string `json:"libc,omitempty"`
	Size              uint64 `json:"size"`
	Source            Source `json:"source"`
	Extra             Extra  `json:"extra"`
}

// BaseDir resolves the cache root. Priority: SOCKET_DLX_DIR as a full
// override, then SOCKET_HOME with _dlx appended, then ~/.socket/_dlx,
// finally the system temp directory when no home can be determined.
func BaseDir() string {
	if dir := os.Getenv("SOCKET_DLX_DIR"); dir != "" {
		return dir
	}
	if home := os.Getenv("SOCKET_HOME"); home != "" {
		return filepath.Join(home, dirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".socket", dirName)
	}
	return filepath.Join(os.TempDir(), ".socket", dirName)
}

// Cache is a handle on one cache root.
type Cache struct {
	base string
}

// Open returns a Cache rooted at the environment-resolved base
// directory. The directory is created lazily on first write.
func Open() *Cache {
	return &Cache{base: BaseDir()}
}

// OpenAt returns a Cache rooted at an explicit directory.
func OpenAt(base string) *Cache {
	return &Cache{base: base}
}

// EntryDir returns the directory holding one cache entry.
func (c *Cache) EntryDir(key string) string {
	return filepath.Join(c.base, key)
}

// BinaryPath returns the canonical extraction path for a cache key,
// whether or not anything is cached there yet.
func (c *Cache) BinaryPath(key, binaryName string) string {
	return filepath.Join(c.base, key, binaryName)
}

// Lookup reports the path of a valid cached binary. The entry must
// exist as a regular file of exactly expectedSize with the executable
// bit set; anything else is a miss, never an error, so callers fall
// through to extraction.
func (c *Cache) Lookup(key, binaryName string, expectedSize int64) (string, bool) {
	if !cachekey.Valid(key) {
		return "", false
	}
	path := c.BinaryPath(key, binaryName)
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	if info.Size() != expectedSize {
		return "", false
	}
	if info.Mode().Perm()&0o111 == 0 {
		return "", false
	}
	return path, true
}

// WriteInfo carries the metadata fields the caller knows about the
// binary being cached.
type WriteInfo struct {
	SourcePath           string
	Platform             string
	Arch                 string
	Libc                 string
	CompressedSize       uint64
	CompressionAlgorithm string
}

// Write stores data under the cache key with its metadata sidecar and
// returns the cached binary path. The binary is written to a temp
// file in the entry directory and renamed into place so a concurrent
// reader never observes a partial binary.
func (c *Cache) Write(key, binaryName string, data []byte, info WriteInfo) (string, error) {
	if !cachekey.Valid(key) {
		return "", fmt.Errorf("dlxcache: %q: %w", key, ErrInvalidCacheKey)
	}

	entryDir := c.EntryDir(key)
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		return "", fmt.Errorf("dlxcache: creating entry directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(entryDir, ".extract-*")
	if err != nil {
		return "", fmt.Errorf("dlxcache: creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("dlxcache: writing binary: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("dlxcache: syncing binary: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("dlxcache: closing binary: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return "", fmt.Errorf("dlxcache: marking binary executable: %w", err)
	}

	finalPath := c.BinaryPath(key, binaryName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("dlxcache: renaming binary into place: %w", err)
	}
	success = true

	meta := Metadata{
		Version:           MetadataVersion,
		CacheKey:          key,
		Timestamp:         time.Now().UnixMilli(),
		Checksum:          Checksum(data),
		ChecksumAlgorithm: "sha512",
		Platform:          info.Platform,
		Arch:              info.Arch,
		Libc:              info.Libc,
		Size:              uint64(len(data)),
		Source: Source{
			Type: "decompression",
			Path: info.SourcePath,
		},
		Extra: Extra{
			CompressedSize:       info.CompressedSize,
			CompressionAlgorithm: info.CompressionAlgorithm,
		},
	}
	if info.CompressedSize > 0 {
		meta.Extra.CompressionRatio = float64(len(data)) / float64(info.CompressedSize)
	}

	// A failed sidecar write does not invalidate the cached binary:
	// Lookup validates size and mode, not metadata.
	if err := c.writeMetadata(entryDir, &meta); err != nil {
		return finalPath, fmt.Errorf("dlxcache: writing metadata: %w", err)
	}
	return finalPath, nil
}

func (c *Cache) writeMetadata(entryDir string, meta *Metadata) error {
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	path := filepath.Join(entryDir, MetadataFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// ReadMetadata loads the sidecar for a cache entry.
func (c *Cache) ReadMetadata(key string) (*Metadata, error) {
	if !cachekey.Valid(key) {
		return nil, fmt.Errorf("dlxcache: %q: %w", key, ErrInvalidCacheKey)
	}
	raw, err := os.ReadFile(filepath.Join(c.EntryDir(key), MetadataFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("dlxcache: %s: %w", key, ErrNotCached)
	}
	if err != nil {
		return nil, fmt.Errorf("dlxcache: reading metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("dlxcache: parsing metadata: %w", err)
	}
	return &meta, nil
}

// Verify recomputes the binary's SHA-512 and compares it against the
// sidecar checksum. Returns the binary path on success.
func (c *Cache) Verify(key, binaryName string) (string, error) {
	meta, err := c.ReadMetadata(key)
	if err != nil {
		return "", err
	}
	path := c.BinaryPath(key, binaryName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("dlxcache: %s: %w", key, ErrNotCached)
	}
	if err != nil {
		return "", fmt.Errorf("dlxcache: reading cached binary: %w", err)
	}
	if uint64(len(data)) != meta.Size || Checksum(data) != meta.Checksum {
		return "", fmt.Errorf("dlxcache: %s: %w", key, ErrIntegrity)
	}
	return path, nil
}

// Checksum returns the prefixed SHA-512 checksum string stored in
// metadata sidecars.
func Checksum(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512-" + hex.EncodeToString(sum[:])
}
