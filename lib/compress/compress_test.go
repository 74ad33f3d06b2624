// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestRoundtrip(t *testing.T) {
	// Compressible, incompressible, and tiny inputs must all survive
	// a sized-path round trip bit-for-bit, under both algorithms.
	random := make([]byte, 64*1024)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("generating random input: %v", err)
	}

	inputs := map[string][]byte{
		"single byte":    {0x42},
		"text":           bytes.Repeat([]byte("smolpress roundtrip payload "), 2048),
		"random":         random,
		"zeros":          make([]byte, 128*1024),
		"short of chunk": bytes.Repeat([]byte{0xAB}, 4095),
	}

	for _, algorithm := range []Algorithm{AlgorithmZstd, AlgorithmLZ4} {
		for name, input := range inputs {
			compressed, err := Compress(input, algorithm)
			if err != nil {
				t.Fatalf("%s/%s: Compress failed: %v", algorithm, name, err)
			}

			output, err := DecompressSized(compressed, len(input), algorithm)
			if err != nil {
				t.Fatalf("%s/%s: DecompressSized failed: %v", algorithm, name, err)
			}
			if !bytes.Equal(output, input) {
				t.Errorf("%s/%s: round trip mismatch", algorithm, name)
			}

			// Progressive path must agree with the sized path.
			output, err = Decompress(compressed, algorithm)
			if err != nil {
				t.Fatalf("%s/%s: Decompress failed: %v", algorithm, name, err)
			}
			if !bytes.Equal(output, input) {
				t.Errorf("%s/%s: progressive round trip mismatch", algorithm, name)
			}
		}
	}
}

func TestEmptyInputRejected(t *testing.T) {
	for _, algorithm := range []Algorithm{AlgorithmZstd, AlgorithmLZ4} {
		if _, err := Compress(nil, algorithm); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: Compress(nil) error = %v, want ErrInvalidInput", algorithm, err)
		}
		if _, err := Compress([]byte{}, algorithm); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: Compress(empty) error = %v, want ErrInvalidInput", algorithm, err)
		}
		if _, err := Decompress(nil, algorithm); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: Decompress(nil) error = %v, want ErrInvalidInput", algorithm, err)
		}
		if _, err := DecompressSized(nil, 16, algorithm); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: DecompressSized(nil) error = %v, want ErrInvalidInput", algorithm, err)
		}
	}
}

func TestSizedMismatchFails(t *testing.T) {
	input := bytes.Repeat([]byte("payload "), 512)
	for _, algorithm := range []Algorithm{AlgorithmZstd, AlgorithmLZ4} {
		compressed, err := Compress(input, algorithm)
		if err != nil {
			t.Fatalf("%s: Compress failed: %v", algorithm, err)
		}

		// Declared size shorter than reality.
		if _, err := DecompressSized(compressed, len(input)-1, algorithm); !errors.Is(err, ErrDecompressFailed) {
			t.Errorf("%s: short size error = %v, want ErrDecompressFailed", algorithm, err)
		}

		// Declared size longer than reality.
		if _, err := DecompressSized(compressed, len(input)+1, algorithm); !errors.Is(err, ErrDecompressFailed) {
			t.Errorf("%s: long size error = %v, want ErrDecompressFailed", algorithm, err)
		}
	}
}

func TestGarbageInputFails(t *testing.T) {
	garbage := []byte("definitely not a compressed stream, of any kind at all")
	for _, algorithm := range []Algorithm{AlgorithmZstd, AlgorithmLZ4} {
		if _, err := DecompressSized(garbage, 1024, algorithm); !errors.Is(err, ErrDecompressFailed) {
			t.Errorf("%s: garbage error = %v, want ErrDecompressFailed", algorithm, err)
		}
	}
}

func TestSizeLimitEnforcedBeforeAllocation(t *testing.T) {
	// The sized path rejects an over-ceiling expected size without
	// touching the coder (the input here is not even valid).
	if _, err := DecompressSized([]byte{0x01}, MaxDecompressedSize+1, AlgorithmZstd); !errors.Is(err, ErrSizeLimitExceeded) {
		t.Errorf("oversized expected size error = %v, want ErrSizeLimitExceeded", err)
	}
}

func TestProgressiveLimit(t *testing.T) {
	// 1 MiB of zeros compresses to almost nothing; decompressing it
	// under a 64 KiB ceiling must fail with the limit error, for both
	// algorithms, without producing partial output.
	input := make([]byte, 1<<20)
	for _, algorithm := range []Algorithm{AlgorithmZstd, AlgorithmLZ4} {
		compressed, err := Compress(input, algorithm)
		if err != nil {
			t.Fatalf("%s: Compress failed: %v", algorithm, err)
		}

		output, err := decompressWithLimit(compressed, 64*1024, algorithm)
		if !errors.Is(err, ErrSizeLimitExceeded) {
			t.Errorf("%s: limit error = %v, want ErrSizeLimitExceeded", algorithm, err)
		}
		if output != nil {
			t.Errorf("%s: got partial output despite limit error", algorithm)
		}
	}
}

func TestAlgorithmNames(t *testing.T) {
	for _, name := range []string{"zstd", "lz4"} {
		algorithm, err := ParseAlgorithm(name)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q) failed: %v", name, err)
		}
		if algorithm.String() != name {
			t.Errorf("round trip of %q gave %q", name, algorithm.String())
		}
	}
	if _, err := ParseAlgorithm("lzfse"); err == nil {
		t.Error("ParseAlgorithm accepted unknown algorithm")
	}
}
