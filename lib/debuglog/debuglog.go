// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

// Package debuglog provides diagnostic logging gated by the DEBUG
// environment variable. Logging never affects control flow: a
// disabled logger is a no-op, and write errors are ignored.
//
// The DEBUG value is interpreted as:
//
//	1, true, yes    every namespace
//	0, false, ""    nothing
//	anything else   comma-separated namespace globs; a leading '-'
//	                negates a pattern, and the last matching pattern
//	                wins
//
// There is no package-level state: callers build a Logger from an
// explicit DEBUG string once at startup and pass it down.
package debuglog

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger writes namespace-tagged diagnostics when its namespace is
// enabled by the DEBUG spec it was built from.
type Logger struct {
	namespace string
	enabled   bool
	out       io.Writer
}

// New builds a Logger for namespace from the process environment.
func New(namespace string) *Logger {
	return NewFromSpec(namespace, os.Getenv("DEBUG"), os.Stderr)
}

// NewFromSpec builds a Logger from an explicit DEBUG value and output
// writer. Tests use this to avoid ambient environment state.
func NewFromSpec(namespace, spec string, out io.Writer) *Logger {
	return &Logger{
		namespace: namespace,
		enabled:   specEnables(spec, namespace),
		out:       out,
	}
}

// Enabled reports whether this logger writes anything.
func (l *Logger) Enabled() bool {
	return l.enabled
}

// Logf writes one formatted line tagged with the namespace.
func (l *Logger) Logf(format string, args ...any) {
	if !l.enabled {
		return
	}
	fmt.Fprintf(l.out, "[%s] %s\n", l.namespace, fmt.Sprintf(format, args...))
}

// specEnables evaluates a DEBUG value against one namespace.
func specEnables(spec, namespace string) bool {
	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "", "0", "false":
		return false
	case "1", "true", "yes":
		return true
	}

	// Namespace glob list. Later patterns override earlier ones, so
	// DEBUG=smol:*,-smol:scan enables everything but the scanner.
	enabled := false
	for _, pattern := range strings.Split(spec, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		negate := strings.HasPrefix(pattern, "-")
		if negate {
			pattern = pattern[1:]
		}
		if globMatch(pattern, namespace) {
			enabled = !negate
		}
	}
	return enabled
}

// globMatch matches a pattern whose only metacharacter is '*', which
// matches any run of characters including the empty one.
func globMatch(pattern, name string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}

	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(name, last) {
		return false
	}
	name = name[:len(name)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		index := strings.Index(name, part)
		if index < 0 {
			return false
		}
		name = name[index+len(part):]
	}
	return true
}
