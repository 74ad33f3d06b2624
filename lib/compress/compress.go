// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// MaxDecompressedSize is the hard ceiling on decompressed output.
// A compressed input whose output would exceed this limit is rejected
// before any large buffer is allocated, bounding memory use against
// decompression-bomb inputs. Packed payloads are native executables
// (typically well under 200 MB), so 512 MiB leaves generous headroom.
const MaxDecompressedSize = 512 << 20

// Sentinel errors for the compression engine. Callers match them with
// errors.Is; the wrapped messages carry the operational detail.
var (
	// ErrInvalidInput is returned when an entry point receives a nil
	// or zero-length input buffer.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCompressFailed is returned when the underlying coder reports
	// zero-length output. Zero output is treated as failure, never as
	// "already minimal".
	ErrCompressFailed = errors.New("compression failed")

	// ErrDecompressFailed is returned when the coder reports failure
	// or produces a length that does not match the expected size.
	ErrDecompressFailed = errors.New("decompression failed")

	// ErrSizeLimitExceeded is returned when decompressed output would
	// exceed MaxDecompressedSize.
	ErrSizeLimitExceeded = errors.New("decompressed size exceeds safety limit")
)

// Algorithm identifies the compression codec. SMOL sections always use
// AlgorithmZstd (a protocol constant — the section layout carries no
// algorithm field, so the stub and the packer must agree statically).
// The standalone compressor tool additionally offers LZ4 for callers
// that track the algorithm out-of-band.
type Algorithm uint8

const (
	AlgorithmZstd Algorithm = 0
	AlgorithmLZ4  Algorithm = 1
)

// String returns the human-readable name of an algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmZstd:
		return "zstd"
	case AlgorithmLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses an algorithm from its string name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "zstd":
		return AlgorithmZstd, nil
	case "lz4":
		return AlgorithmLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm: %q", name)
	}
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
// The decoder carries the memory ceiling so the zstd runtime itself
// refuses to allocate past MaxDecompressedSize.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(MaxDecompressedSize),
	)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses input with the given algorithm and returns the
// compressed bytes. The output buffer is caller-owned. Incompressible
// input is stored in raw blocks by both codecs, so Compress succeeds
// (with slight expansion) even for random data — the round-trip
// guarantee holds for every input.
func Compress(input []byte, algorithm Algorithm) ([]byte, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("compress: %w: empty input", ErrInvalidInput)
	}

	switch algorithm {
	case AlgorithmZstd:
		compressed := zstdEncoder.EncodeAll(input, nil)
		if len(compressed) == 0 {
			return nil, fmt.Errorf("compress: %w: zstd produced no output", ErrCompressFailed)
		}
		return compressed, nil

	case AlgorithmLZ4:
		return compressLZ4(input)

	default:
		return nil, fmt.Errorf("compress: %w: algorithm %d", ErrInvalidInput, algorithm)
	}
}

func compressLZ4(input []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := lz4.NewWriter(&buffer)
	if _, err := writer.Write(input); err != nil {
		return nil, fmt.Errorf("compress: lz4 write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compress: lz4 flush: %w", err)
	}
	if buffer.Len() == 0 {
		return nil, fmt.Errorf("compress: %w: lz4 produced no output", ErrCompressFailed)
	}
	return buffer.Bytes(), nil
}

// Decompress decompresses input without a known output size. The
// output buffer grows as the coder produces data, subject to
// MaxDecompressedSize: input that would expand past the ceiling fails
// with ErrSizeLimitExceeded before the oversized allocation happens.
//
// Prefer DecompressSized when the expected output length is known
// from trusted metadata.
func Decompress(input []byte, algorithm Algorithm) ([]byte, error) {
	return decompressWithLimit(input, MaxDecompressedSize, algorithm)
}

// decompressWithLimit is the progressive decompression path with an
// explicit ceiling. Split out so tests can exercise the limit without
// manufacturing half-gigabyte inputs.
func decompressWithLimit(input []byte, limit int64, algorithm Algorithm) ([]byte, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("compress: %w: empty input", ErrInvalidInput)
	}

	switch algorithm {
	case AlgorithmZstd:
		// The zstd frame header declares the content size when the
		// encoder knew it. Reject oversized frames before decoding.
		var header zstd.Header
		if err := header.Decode(input); err != nil {
			return nil, fmt.Errorf("compress: %w: invalid zstd frame: %v", ErrDecompressFailed, err)
		}
		if header.HasFCS && header.FrameContentSize > uint64(limit) {
			return nil, fmt.Errorf("compress: %w: frame declares %d bytes, limit is %d",
				ErrSizeLimitExceeded, header.FrameContentSize, limit)
		}
		decoder := zstdDecoder
		if limit != MaxDecompressedSize {
			// Tests exercise the ceiling with small limits; build a
			// transient decoder carrying that ceiling.
			bounded, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(limit)))
			if err != nil {
				return nil, fmt.Errorf("compress: %w: %v", ErrDecompressFailed, err)
			}
			defer bounded.Close()
			decoder = bounded
		}
		return decompressStream(decoder.DecodeAll(input, nil))

	case AlgorithmLZ4:
		reader := lz4.NewReader(bytes.NewReader(input))
		return readAllLimited(reader, limit)

	default:
		return nil, fmt.Errorf("compress: %w: algorithm %d", ErrInvalidInput, algorithm)
	}
}

// decompressStream adapts a (data, error) pair into the package error
// taxonomy for the zstd progressive path.
func decompressStream(data []byte, err error) ([]byte, error) {
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, fmt.Errorf("compress: %w: %v", ErrSizeLimitExceeded, err)
		}
		return nil, fmt.Errorf("compress: %w: %v", ErrDecompressFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("compress: %w: coder produced no output", ErrDecompressFailed)
	}
	return data, nil
}

// readAllLimited reads everything from r into a growing buffer,
// failing with ErrSizeLimitExceeded as soon as the total would pass
// the limit (before the next chunk is buffered).
func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	var buffer bytes.Buffer
	chunk := make([]byte, 64*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buffer.Len())+int64(n) > limit {
				return nil, fmt.Errorf("compress: %w: output exceeds %d bytes",
					ErrSizeLimitExceeded, limit)
			}
			buffer.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("compress: %w: %v", ErrDecompressFailed, err)
		}
	}
	if buffer.Len() == 0 {
		return nil, fmt.Errorf("compress: %w: coder produced no output", ErrDecompressFailed)
	}
	return buffer.Bytes(), nil
}

// DecompressSized decompresses input directly into a buffer of exactly
// expectedSize bytes. The size comes from trusted metadata (the SMOL
// section's uncompressed_size field); a coder result of any other
// length fails with ErrDecompressFailed — never silently truncated.
func DecompressSized(input []byte, expectedSize int, algorithm Algorithm) ([]byte, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("compress: %w: empty input", ErrInvalidInput)
	}
	if expectedSize <= 0 {
		return nil, fmt.Errorf("compress: %w: expected size %d", ErrInvalidInput, expectedSize)
	}
	if expectedSize > MaxDecompressedSize {
		return nil, fmt.Errorf("compress: %w: expected size %d exceeds limit %d",
			ErrSizeLimitExceeded, expectedSize, MaxDecompressedSize)
	}

	switch algorithm {
	case AlgorithmZstd:
		output, err := zstdDecoder.DecodeAll(input, make([]byte, 0, expectedSize))
		if err != nil {
			return nil, fmt.Errorf("compress: %w: %v", ErrDecompressFailed, err)
		}
		if len(output) != expectedSize {
			return nil, fmt.Errorf("compress: %w: got %d bytes, expected %d",
				ErrDecompressFailed, len(output), expectedSize)
		}
		return output, nil

	case AlgorithmLZ4:
		reader := lz4.NewReader(bytes.NewReader(input))
		output := make([]byte, expectedSize)
		if _, err := io.ReadFull(reader, output); err != nil {
			return nil, fmt.Errorf("compress: %w: %v", ErrDecompressFailed, err)
		}
		// The stream must be exhausted: trailing data means the
		// declared size was short of the real payload.
		var probe [1]byte
		if n, _ := reader.Read(probe[:]); n != 0 {
			return nil, fmt.Errorf("compress: %w: output longer than expected %d bytes",
				ErrDecompressFailed, expectedSize)
		}
		return output, nil

	default:
		return nil, fmt.Errorf("compress: %w: algorithm %d", ErrInvalidInput, algorithm)
	}
}
