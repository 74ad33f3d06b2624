// Copyright 2026 The Smolpress Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package stub

import (
	"errors"
	"os"
	"os/exec"
)

// execBinary runs the extracted binary as a child and exits with its
// status. Windows has no execve, so the stub stays alive as a thin
// parent; stdio is inherited and the child's exit code propagated.
// Returns only when the child could not be started.
func execBinary(path string, argv []string, env []string) error {
	command := &exec.Cmd{
		Path:   path,
		Args:   argv,
		Env:    env,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	os.Exit(0)
	return nil
}
