// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

// Command startpe is the runner embedded at the head of every package.
// It memory-maps its own executable, locates the starter info record by
// signature, extracts or verifies the payload under a cross-process
// lock, and finally executes the embedded entry command.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/woozymasta/wrappe"
)

// version is stamped by the build.
var version = "dev"

// forceVerboseEnv promotes logging to verbose when set.
const forceVerboseEnv = "STARTPE_FORCE_VERBOSE"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Sprint(r))
		}
	}()

	if err := run(); err != nil {
		fail(err.Error())
	}
}

// fail reports a fatal error and exits non-zero. On platforms without a
// user-visible console the message is also written to an error file
// next to the package.
func fail(message string) {
	fmt.Fprintf(os.Stderr, "error: %s\n", message)
	writeErrorFile(message)
	os.Exit(1)
}

// run drives the complete bootstrap sequence.
func run() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("couldn't get handle to current executable: %w", err)
	}
	for {
		link, linkErr := os.Readlink(exe)
		if linkErr != nil {
			break
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(filepath.Dir(exe), link)
		}
		exe = link
	}

	file, err := os.Open(exe)
	if err != nil {
		return fmt.Errorf("couldn't open current executable: %w", err)
	}
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	mapped, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("couldn't memory map current executable: %w", err)
	}
	defer func() {
		if mapped != nil {
			_ = mapped.Unmap()
		}
	}()

	info, infoStart, err := wrappe.FindStarterInfo(mapped)
	if err != nil {
		return err
	}

	showInformation := info.ShowInformation
	if showInformation < 2 && os.Getenv(forceVerboseEnv) != "" {
		showInformation = 2
	}

	consoleAttached := false
	if info.ShowConsole == wrappe.ConsoleAttach ||
		(info.ShowConsole == wrappe.ConsoleHide && showInformation >= 2) {
		consoleAttached = attachParentConsole()
	}

	if showInformation >= 1 {
		fmt.Printf("startpe %s\n", version)
		fmt.Println(info.UnpackDirectoryString())
	}

	uid := info.UIDString()
	if showInformation >= 2 {
		fmt.Println()
		fmt.Printf("version: %s\n", uid)
		fmt.Printf("show console: %d (attached: %v)\n", info.ShowConsole, consoleAttached)
	}

	unpackRoot, err := resolveUnpackRoot(info.UnpackTarget)
	if err != nil {
		return err
	}

	unpackDir := filepath.Join(unpackRoot, info.UnpackDirectoryString())
	if info.Versioning == wrappe.VersioningSideBySide {
		unpackDir = filepath.Join(unpackDir, uid)
	}
	if showInformation >= 2 {
		fmt.Printf("target directory: %s\n", unpackDir)
	}

	runPath := filepath.Join(unpackDir, filepath.FromSlash(info.CommandString()))
	if showInformation >= 2 {
		fmt.Printf("runpath: %s\n", runPath)
	}

	if err := os.MkdirAll(unpackDir, 0o755); err != nil {
		return fmt.Errorf("couldn't create directory %s: %w", unpackDir, err)
	}

	var lock *wrappe.Lockfile
	if info.Once == 1 {
		lock, err = wrappe.TryAcquireLock(unpackDir)
		if errors.Is(err, wrappe.ErrLockHeld) {
			fmt.Println("another instance is already unpacking, exiting...")
			return nil
		}
	} else {
		lock, err = wrappe.AcquireLock(unpackDir)
	}
	if err != nil {
		return err
	}
	defer func() {
		if lock != nil {
			_ = lock.Release()
		}
	}()

	if info.Once == 1 {
		if showInformation >= 2 {
			fmt.Println("checking for running processes...")
		}

		running, err := wrappe.InstanceRunning(runPath)
		if err != nil {
			return err
		}
		if running {
			fmt.Println("another instance is already running, exiting...")
			return nil
		}
	}

	shouldExtract := true
	if info.Versioning == wrappe.VersioningSideBySide || info.Versioning == wrappe.VersioningReplace {
		shouldExtract = wrappe.ReadVersion(unpackDir) != uid
	}

	verification := info.Verification
	if shouldExtract {
		verification = wrappe.VerifyNone
	}
	if showInformation >= 2 {
		fmt.Printf("should verify: %d\n", verification)
		fmt.Printf("should extract: %v\n", shouldExtract)
	}

	if shouldExtract || verification > wrappe.VerifyNone {
		started := time.Now()
		extracted, err := wrappe.Unpack(mapped[:infoStart], unpackDir, wrappe.UnpackOptions{
			UID:           uid,
			Verification:  verification,
			ShouldExtract: shouldExtract,
			Verbosity:     showInformation,
		})
		if err != nil {
			return err
		}
		if extracted {
			if showInformation >= 2 {
				fmt.Printf("decompressed in %dms\n", time.Since(started).Milliseconds())
			}
			if err := wrappe.SetExecutable(runPath); err != nil {
				fmt.Fprintf(os.Stderr, "failed to set executable permissions for %s: %v\n", runPath, err)
			}
		}
	}

	if err := lock.Release(); err != nil {
		return fmt.Errorf("couldn't release lock: %w", err)
	}
	lock = nil

	bakedArguments := info.BakedArguments()
	if showInformation >= 2 && len(bakedArguments) > 0 {
		fmt.Printf("baked arguments: %q\n", bakedArguments)
	}

	forwardedArguments := os.Args[1:]
	if showInformation >= 2 && len(forwardedArguments) > 0 {
		fmt.Printf("forwarded arguments: %q\n", forwardedArguments)
	}

	launchDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("couldn't get working directory: %w", err)
	}

	currentDir, err := resolveCurrentDir(info.CurrentDir, launchDir, unpackDir, exe, runPath)
	if err != nil {
		return err
	}
	if showInformation >= 2 {
		fmt.Printf("current dir: %s\n", currentDir)
	}

	// Drop the mapping before handing the process over to the command.
	if err := mapped.Unmap(); err != nil {
		return fmt.Errorf("couldn't unmap executable: %w", err)
	}
	mapped = nil
	if err := file.Close(); err != nil {
		return fmt.Errorf("couldn't close executable: %w", err)
	}
	file = nil

	if showInformation >= 2 {
		fmt.Println("running...")
	}

	env := append(os.Environ(),
		"WRAPPE_UNPACK_DIR="+unpackDir,
		"WRAPPE_LAUNCH_DIR="+launchDir,
	)
	arguments := append(bakedArguments, forwardedArguments...)

	return spawnCommand(runPath, arguments, env, currentDir, info.ShowConsole, consoleAttached)
}

// resolveUnpackRoot maps the unpack target policy to a directory.
func resolveUnpackRoot(target uint8) (string, error) {
	switch target {
	case wrappe.UnpackTemp:
		return os.TempDir(), nil
	case wrappe.UnpackLocal:
		return dataLocalDir()
	case wrappe.UnpackCwd:
		return os.Getwd()
	default:
		return "", fmt.Errorf("invalid unpack target %d", target)
	}
}

// resolveCurrentDir maps the working directory policy to a directory.
func resolveCurrentDir(policy uint8, launchDir, unpackDir, exe, runPath string) (string, error) {
	switch policy {
	case wrappe.DirLaunch:
		return launchDir, nil
	case wrappe.DirUnpack:
		return unpackDir, nil
	case wrappe.DirRunner:
		return filepath.Dir(exe), nil
	case wrappe.DirCommand:
		return filepath.Dir(runPath), nil
	default:
		return "", fmt.Errorf("invalid current directory %d", policy)
	}
}

// dataLocalDir returns the user-local data directory for this platform.
func dataLocalDir() (string, error) {
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("couldn't resolve local data directory: %w", err)
	}

	return filepath.Join(home, ".local", "share"), nil
}
