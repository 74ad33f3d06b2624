// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package debuglog

import (
	"bytes"
	"strings"
	"testing"
)

func TestSpecEnables(t *testing.T) {
	tests := []struct {
		spec      string
		namespace string
		want      bool
	}{
		// Blanket switches.
		{"", "smol:stub", false},
		{"0", "smol:stub", false},
		{"false", "smol:stub", false},
		{"FALSE", "smol:stub", false},
		{"1", "smol:stub", true},
		{"true", "smol:stub", true},
		{"yes", "smol:stub", true},

		// Exact namespaces.
		{"smol:stub", "smol:stub", true},
		{"smol:stub", "smol:cache", false},
		{"smol:stub,smol:cache", "smol:cache", true},

		// Globs.
		{"smol:*", "smol:stub", true},
		{"smol:*", "other", false},
		{"*", "anything", true},
		{"*:cache", "smol:cache", true},
		{"smol:*:scan", "smol:stub:scan", true},
		{"smol:*:scan", "smol:stub:read", false},

		// Negation, last match wins.
		{"smol:*,-smol:scan", "smol:scan", false},
		{"smol:*,-smol:scan", "smol:stub", true},
		{"-smol:scan,smol:*", "smol:scan", true},
		{"-smol:*", "smol:stub", false},

		// Whitespace tolerated.
		{" smol:stub , smol:cache ", "smol:cache", true},
	}
	for _, test := range tests {
		if got := specEnables(test.spec, test.namespace); got != test.want {
			t.Errorf("specEnables(%q, %q) = %v, want %v", test.spec, test.namespace, got, test.want)
		}
	}
}

func TestLogfOutput(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewFromSpec("smol:stub", "smol:*", &buffer)

	if !logger.Enabled() {
		t.Fatal("logger should be enabled")
	}
	logger.Logf("extracted %d bytes", 42)

	got := buffer.String()
	if !strings.HasPrefix(got, "[smol:stub] ") {
		t.Errorf("output %q lacks namespace tag", got)
	}
	if !strings.Contains(got, "extracted 42 bytes") {
		t.Errorf("output %q lacks message", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("output %q lacks trailing newline", got)
	}
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewFromSpec("smol:stub", "other:*", &buffer)

	if logger.Enabled() {
		t.Fatal("logger should be disabled")
	}
	logger.Logf("should not appear")
	if buffer.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buffer.String())
	}
}
