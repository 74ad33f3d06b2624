// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

package dlxcache

import (
	"os"
	"runtime"
)

// HostPlatform returns the metadata platform string for the running
// system, matching Node's process.platform naming.
func HostPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return "darwin"
	case "linux":
		return "linux"
	case "windows":
		return "win32"
	default:
		return runtime.GOOS
	}
}

// HostArch returns the metadata architecture string for the running
// system, matching Node's process.arch naming.
func HostArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "arm64":
		return "arm64"
	case "386":
		return "ia32"
	case "arm":
		return "arm"
	default:
		return runtime.GOARCH
	}
}

var muslLoaderPaths = []string{
	"/lib/ld-musl-x86_64.so.1",
	"/lib/ld-musl-aarch64.so.1",
	"/usr/lib/ld-musl-x86_64.so.1",
	"/usr/lib/ld-musl-aarch64.so.1",
}

// HostLibc returns "musl" or "glibc" on Linux, empty elsewhere. musl
// is detected by its dynamic loader path; everything else is assumed
// glibc, the common case.
func HostLibc() string {
	if runtime.GOOS != "linux" {
		return ""
	}
	for _, loader := range muslLoaderPaths {
		if _, err := os.Stat(loader); err == nil {
			return "musl"
		}
	}
	return "glibc"
}
