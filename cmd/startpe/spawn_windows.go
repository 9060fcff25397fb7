// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sys/windows"

	"github.com/woozymasta/wrappe"
)

// spawnCommand starts the entry command as a child process. Without a
// console the child's stdio is detached to null; with a visible or
// attached console the runner waits and propagates the exit code.
func spawnCommand(runPath string, arguments, env []string, dir string, showConsole uint8, consoleAttached bool) error {
	command := exec.Command(runPath, arguments...)
	command.Env = env
	command.Dir = dir

	if showConsole == wrappe.ConsoleHide || (showConsole == wrappe.ConsoleAttach && !consoleAttached) {
		command.Stdin = nil
		command.Stdout = nil
		command.Stderr = nil
	} else {
		command.Stdin = os.Stdin
		command.Stdout = os.Stdout
		command.Stderr = os.Stderr
	}

	if err := command.Start(); err != nil {
		return fmt.Errorf("failed to run %s: %w", runPath, err)
	}

	if showConsole == wrappe.ConsoleShow || (showConsole == wrappe.ConsoleAttach && consoleAttached) {
		if err := command.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				os.Exit(exitErr.ExitCode())
			}

			return fmt.Errorf("failed to run %s: %w", runPath, err)
		}

		os.Exit(0)
	}

	return nil
}

// attachParentConsole attaches to the parent process console.
func attachParentConsole() bool {
	kernel32 := windows.NewLazySystemDLL("kernel32.dll")
	attach := kernel32.NewProc("AttachConsole")
	if attach.Find() != nil {
		return false
	}

	const attachParentProcess = ^uintptr(0)
	ret, _, _ := attach.Call(attachParentProcess)
	return ret != 0
}

// errorFileWritten dedupes error files across nested failures.
var errorFileWritten atomic.Bool

// writeErrorFile drops a diagnostic file next to the package. GUI
// subsystem runners have no console, so this is the only place the
// message would otherwise surface.
func writeErrorFile(message string) {
	if errorFileWritten.Swap(true) {
		return
	}

	now := time.Now()
	name := fmt.Sprintf("error-%d-%d.txt", now.Unix(), now.UnixMilli()%1000)
	if exe, err := os.Executable(); err == nil {
		name = filepath.Join(filepath.Dir(exe), name)
	}
	f, err := os.Create(name)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	fmt.Fprintln(f, "An error occurred while starting the application.")
	fmt.Fprintln(f, "Please report this error to the developers.")
	fmt.Fprintln(f)
	fmt.Fprintln(f, message)
}
