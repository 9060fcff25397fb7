// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

//go:build unix

package wrappe

import (
	"io/fs"
	"os"
)

// entryMode captures POSIX permission bits for a packed record.
func entryMode(fi os.FileInfo) uint32 {
	return uint32(fi.Mode().Perm())
}

// restorePermissions applies stored mode bits to an extracted node.
// The readonly flag is already represented in the mode on POSIX.
func restorePermissions(path string, mode uint32, _ bool) error {
	if mode == 0 {
		return nil
	}

	return os.Chmod(path, fs.FileMode(mode)&fs.ModePerm)
}

// SetExecutable adds owner and group execute bits to a file. The runner
// applies it to the entry command after extraction.
func SetExecutable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}

	return os.Chmod(path, fi.Mode().Perm()|0o110)
}
