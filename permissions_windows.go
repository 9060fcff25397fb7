// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import "os"

// entryMode captures permission bits for a packed record. Windows only
// distinguishes the write bit, which also feeds the readonly flag.
func entryMode(fi os.FileInfo) uint32 {
	return uint32(fi.Mode().Perm())
}

// restorePermissions applies the platform-independent readonly flag.
// Full POSIX modes cannot be represented here.
func restorePermissions(path string, _ uint32, readonly bool) error {
	if !readonly {
		return nil
	}

	return os.Chmod(path, 0o444)
}

// SetExecutable is a no-op; execution rights come from the extension.
func SetExecutable(_ string) error {
	return nil
}
