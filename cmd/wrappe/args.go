// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/pathrules"

	"github.com/woozymasta/wrappe"
)

// parseUnpackTarget maps the unpack target flag to its policy byte.
func parseUnpackTarget(value string) (uint8, error) {
	switch strings.ToLower(value) {
	case "temp", "default":
		return wrappe.UnpackTemp, nil
	case "local":
		return wrappe.UnpackLocal, nil
	case "cwd":
		return wrappe.UnpackCwd, nil
	default:
		return 0, fmt.Errorf("not a valid target directory: %q (available: temp, local, cwd)", value)
	}
}

// parseVersioning maps the versioning flag to its policy byte.
func parseVersioning(value string) (uint8, error) {
	switch strings.ToLower(value) {
	case "sidebyside", "default":
		return wrappe.VersioningSideBySide, nil
	case "replace":
		return wrappe.VersioningReplace, nil
	case "none":
		return wrappe.VersioningNone, nil
	default:
		return 0, fmt.Errorf("not a valid versioning strategy: %q (available: sidebyside, replace, none)", value)
	}
}

// parseVerification maps the verification flag to its policy byte.
func parseVerification(value string) (uint8, error) {
	switch strings.ToLower(value) {
	case "none":
		return wrappe.VerifyNone, nil
	case "existence", "default":
		return wrappe.VerifyExistence, nil
	case "checksum":
		return wrappe.VerifyChecksum, nil
	default:
		return 0, fmt.Errorf("not a valid verification option: %q (available: none, existence, checksum)", value)
	}
}

// parseShowInformation maps the information flag to its policy byte.
func parseShowInformation(value string) (uint8, error) {
	switch strings.ToLower(value) {
	case "none":
		return 0, nil
	case "title", "default":
		return 1, nil
	case "verbose":
		return 2, nil
	default:
		return 0, fmt.Errorf("not a valid information details option: %q (available: none, title, verbose)", value)
	}
}

// parseShowConsole maps the console flag to its policy byte. The "auto"
// value starts as hide on Windows runners and may be refined later from
// the entry command's own subsystem.
func parseShowConsole(value, runnerName string) (uint8, error) {
	switch strings.ToLower(value) {
	case "auto":
		if strings.Contains(runnerName, "windows") {
			return wrappe.ConsoleHide, nil
		}
		return wrappe.ConsoleShow, nil
	case "never":
		return wrappe.ConsoleHide, nil
	case "always":
		return wrappe.ConsoleShow, nil
	case "attach":
		return wrappe.ConsoleAttach, nil
	default:
		return 0, fmt.Errorf("not a valid console option: %q (available: auto, always, never, attach)", value)
	}
}

// parseCurrentDir maps the working directory flag to its policy byte.
func parseCurrentDir(value string) (uint8, error) {
	switch strings.ToLower(value) {
	case "inherit", "default":
		return wrappe.DirLaunch, nil
	case "unpack":
		return wrappe.DirUnpack, nil
	case "runner":
		return wrappe.DirRunner, nil
	case "command":
		return wrappe.DirCommand, nil
	default:
		return 0, fmt.Errorf("not a valid current directory: %q (available: inherit, unpack, runner, command)", value)
	}
}

// resolveSource canonicalizes the input path and requires a file or
// directory.
func resolveSource(input string) (string, error) {
	source, err := filepath.Abs(input)
	if err == nil {
		source, err = filepath.EvalSymlinks(source)
	}
	if err != nil {
		return "", fmt.Errorf("input path does not exist: %s", input)
	}

	fi, err := os.Stat(source)
	if err != nil || (!fi.IsDir() && !fi.Mode().IsRegular()) {
		return "", fmt.Errorf("input path is not a file or directory: %s", source)
	}

	return source, nil
}

// resolveCommand canonicalizes the entry command and returns its
// source-relative slash-form path. The command must live inside the
// source tree.
func resolveCommand(command, source string) (string, error) {
	root := source
	if fi, err := os.Stat(source); err == nil && !fi.IsDir() {
		root = filepath.Dir(source)
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(root, command))
	if err != nil {
		resolved, err = filepath.EvalSymlinks(command)
	}
	if err != nil {
		return "", fmt.Errorf("command path is invalid: %s", command)
	}

	fi, err := os.Stat(resolved)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("command path is not a file: %s", resolved)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("command path is not contained in the source directory: %s", resolved)
	}

	return filepath.ToSlash(rel), nil
}

// resolveOutput picks the output path, defaulting to packed-<command
// basename> in the working directory.
func resolveOutput(output, commandRel string) (string, error) {
	if output == "" {
		output = "packed-" + filepath.Base(filepath.FromSlash(commandRel))
	}

	resolved, err := filepath.Abs(output)
	if err != nil {
		return "", fmt.Errorf("output path is invalid: %s", output)
	}

	if fi, err := os.Stat(resolved); err == nil && fi.IsDir() {
		return "", fmt.Errorf("output path is a directory: %s", resolved)
	}
	if _, err := os.Stat(filepath.Dir(resolved)); err != nil {
		return "", fmt.Errorf("output path has no parent directory: %s", resolved)
	}

	return resolved, nil
}

// resolveUnpackDirectory picks the unpack directory name, inferring it
// from the source basename when not given.
func resolveUnpackDirectory(directory, source string) (string, error) {
	if directory == "" {
		directory = filepath.Base(source)
	}
	if directory == "" || directory == "." || directory == string(filepath.Separator) {
		return "", fmt.Errorf("couldn't infer unpack directory name from the input directory")
	}
	if len(directory) >= wrappe.NameSize {
		return "", fmt.Errorf("unpack directory name is longer than %d characters", wrappe.NameSize-1)
	}

	return directory, nil
}

// resolveUID validates an explicit version string or generates a random
// 8-character alphanumeric tag.
func resolveUID(value string) (string, error) {
	if value != "" {
		if len(value) > wrappe.UIDSize {
			return "", fmt.Errorf("version specifier is longer than %d characters", wrappe.UIDSize)
		}

		return value, nil
	}

	return wrappe.GenerateUID()
}

// buildRules converts --include/--exclude flag values into ordered path
// rules. Include rules run before exclude rules in flag order.
func buildRules(includes, excludes []string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(includes)+len(excludes))
	for _, pattern := range includes {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	for _, pattern := range excludes {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	return rules
}
