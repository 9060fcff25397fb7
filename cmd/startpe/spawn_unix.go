// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

//go:build unix

package main

import (
	"fmt"
	"os"
	"syscall"
)

// spawnCommand replaces the runner process image with the entry command
// so the child inherits the process. It only returns on failure.
func spawnCommand(runPath string, arguments, env []string, dir string, _ uint8, _ bool) error {
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("couldn't change directory to %s: %w", dir, err)
	}

	argv := append([]string{runPath}, arguments...)
	if err := syscall.Exec(runPath, argv, env); err != nil {
		return fmt.Errorf("failed to run %s: %w", runPath, err)
	}

	return nil
}

// attachParentConsole is a no-op outside Windows.
func attachParentConsole() bool {
	return false
}

// writeErrorFile is a no-op outside Windows; errors reach stderr.
func writeErrorFile(_ string) {}
