// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package stub implements the self-extraction runtime compiled into
// every packed binary: locate the marker in the stub's own image,
// validate the embedded section, decompress the payload, materialize
// it as an executable file, and hand execution over to it.
package stub

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/smolpress/smolpress/lib/compress"
	"github.com/smolpress/smolpress/lib/debuglog"
	"github.com/smolpress/smolpress/lib/dlxcache"
	"github.com/smolpress/smolpress/lib/smol"
)

// DefaultBinaryName is the file name extracted binaries are cached
// under. Windows callers append .exe.
const DefaultBinaryName = "node"

// Runtime holds the knobs of one stub invocation. The zero value is
// not usable; construct with New.
type Runtime struct {
	// BinaryName names the extracted binary inside its cache entry.
	BinaryName string

	// SelfPath overrides the os.Executable resolution. Tests point it
	// at a fixture image.
	SelfPath string

	// TempDir overrides the platform temp-directory policy.
	TempDir string

	Cache *dlxcache.Cache
	Log   *debuglog.Logger

	// verify runs after the extracted binary is written and before it
	// is used. A failure deletes the written file.
	verify func(path string, size int64) error
}

// New returns a Runtime with the production defaults.
func New() *Runtime {
	name := DefaultBinaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	r := &Runtime{
		BinaryName: name,
		Cache:      dlxcache.Open(),
		Log:        debuglog.New("smol:stub"),
	}
	r.verify = r.verifyWritten
	return r
}

// Embedded is one extracted-and-validated payload: the parsed section
// header plus the raw compressed bytes.
type Embedded struct {
	Header *smol.Header
	Data   []byte
}

// ReadEmbedded scans the stub's own image for the marker and reads
// the section header and exactly the declared number of payload
// bytes. The reader is left wherever the payload ended; trailing
// bytes are ignored.
func ReadEmbedded(r io.ReadSeeker) (*Embedded, error) {
	if _, err := smol.FindMarker(r); err != nil {
		return nil, err
	}
	header, err := smol.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, header.CompressedSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("stub: %w: payload declares %d bytes: %v",
			smol.ErrInvalidFormat, header.CompressedSize, err)
	}
	return &Embedded{Header: header, Data: data}, nil
}

// resolveSelf returns the on-disk path of the running stub.
func (r *Runtime) resolveSelf() (string, error) {
	if r.SelfPath != "" {
		return r.SelfPath, nil
	}
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("stub: resolving own executable: %w", err)
	}
	return path, nil
}

// open reads the embedded payload out of the stub's own image.
func (r *Runtime) open() (*Embedded, string, error) {
	selfPath, err := r.resolveSelf()
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(selfPath)
	if err != nil {
		return nil, "", fmt.Errorf("stub: opening own image %s: %w", selfPath, err)
	}
	defer file.Close()

	embedded, err := ReadEmbedded(file)
	if err != nil {
		return nil, "", err
	}
	r.Log.Logf("found payload in %s: %d compressed, %d uncompressed, key %s",
		selfPath, embedded.Header.CompressedSize, embedded.Header.UncompressedSize,
		embedded.Header.CacheKey)
	return embedded, selfPath, nil
}

// Materialize produces an executable file holding the decompressed
// payload and returns its path. The cache is consulted first; a
// cache-write failure falls back to a private temp file, recorded so
// the caller can delete it when execution cannot proceed. Every
// failure path deletes whatever was written.
func (r *Runtime) Materialize(embedded *Embedded, selfPath string) (path string, temporary bool, err error) {
	header := embedded.Header
	if cached, ok := r.Cache.Lookup(header.CacheKey, r.BinaryName, int64(header.UncompressedSize)); ok {
		r.Log.Logf("cache hit: %s", cached)
		return cached, false, nil
	}

	// SMOL payloads are always zstd.
	data, err := compress.DecompressSized(embedded.Data, int(header.UncompressedSize), compress.AlgorithmZstd)
	if err != nil {
		return "", false, err
	}

	cached, cacheErr := r.Cache.Write(header.CacheKey, r.BinaryName, data, dlxcache.WriteInfo{
		SourcePath:           selfPath,
		Platform:             header.Platform.String(),
		Arch:                 header.Arch.String(),
		Libc:                 header.Libc.String(),
		CompressedSize:       header.CompressedSize,
		CompressionAlgorithm: "zstd",
	})
	if cacheErr == nil {
		if err := r.verify(cached, int64(len(data))); err != nil {
			os.Remove(cached)
			return "", false, fmt.Errorf("stub: verifying cached binary: %w", err)
		}
		r.Log.Logf("extracted to cache: %s", cached)
		return cached, false, nil
	}
	r.Log.Logf("cache write failed (%v), using temp file", cacheErr)

	tmpPath, err := r.writeTemp(data)
	if err != nil {
		return "", false, err
	}
	if err := r.verify(tmpPath, int64(len(data))); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("stub: verifying extracted binary: %w", err)
	}
	return tmpPath, true, nil
}

// writeTemp writes data to a fresh private executable file under the
// temp directory. The file is removed on every failure path.
func (r *Runtime) writeTemp(data []byte) (string, error) {
	file, err := os.CreateTemp(r.tempDir(), ".smol-*")
	if err != nil {
		return "", fmt.Errorf("stub: creating temp file: %w", err)
	}
	path := file.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(path)
		}
	}()

	// Executable before content so a crash never leaves a complete
	// but non-runnable file.
	if err := file.Chmod(0o700); err != nil {
		file.Close()
		return "", fmt.Errorf("stub: marking temp file executable: %w", err)
	}
	if err := writeAll(file, data); err != nil {
		file.Close()
		return "", fmt.Errorf("stub: writing temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return "", fmt.Errorf("stub: syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("stub: closing temp file: %w", err)
	}

	success = true
	return path, nil
}

// writeAll tolerates partial writes.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// verifyWritten is the default post-write check: the file must exist
// with exactly the expected size and the executable bit set.
func (r *Runtime) verifyWritten(path string, size int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() != size {
		return fmt.Errorf("wrote %d bytes, expected %d", info.Size(), size)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o100 == 0 {
		return errors.New("executable bit not set")
	}
	return nil
}

// tempDir resolves the temp directory: TMPDIR, TMP, TEMP then /tmp
// on Unix; TEMP, TMP then the current directory on Windows.
func (r *Runtime) tempDir() string {
	if r.TempDir != "" {
		return r.TempDir
	}
	var names []string
	fallback := "/tmp"
	if runtime.GOOS == "windows" {
		names = []string{"TEMP", "TMP"}
		fallback = "."
	} else {
		names = []string{"TMPDIR", "TMP", "TEMP"}
	}
	for _, name := range names {
		if dir := os.Getenv(name); dir != "" {
			return dir
		}
	}
	return fallback
}

// Run extracts the embedded payload and executes it, passing argv
// and env through unchanged (argv[0] keeps the name the stub was
// invoked under). On Unix the process image is replaced and Run does
// not return on success; on Windows the binary runs as a child whose
// exit code the stub propagates. On failure every handle is closed
// and any temp file deleted before the error comes back.
func (r *Runtime) Run(argv []string, env []string) error {
	embedded, selfPath, err := r.open()
	if err != nil {
		return err
	}

	path, temporary, err := r.Materialize(embedded, selfPath)
	if err != nil {
		return err
	}

	// Drop the payload buffers before handing off; the exec'd image
	// should not pay for them.
	embedded.Data = nil
	embedded.Header = nil

	if len(argv) == 0 {
		argv = []string{path}
	}
	if err := execBinary(path, argv, env); err != nil {
		if temporary {
			os.Remove(path)
		}
		return fmt.Errorf("stub: executing %s: %w", path, err)
	}
	return nil
}
