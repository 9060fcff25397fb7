// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"os"
	"path/filepath"
	"strings"
)

// ReadVersion returns the UID stored in the unpack directory's version
// sentinel. A missing or unreadable sentinel yields "0", which never
// equals a valid UID and therefore triggers re-extraction.
func ReadVersion(dir string) string {
	raw, err := os.ReadFile(filepath.Join(dir, VersionFile))
	if err != nil {
		return "0"
	}

	return strings.TrimRight(string(raw), "\r\n")
}

// WriteVersion stores the UID in the version sentinel. A torn write can
// only produce a sentinel that differs from the UID, so the next run
// re-extracts.
func WriteVersion(dir, uid string) error {
	return os.WriteFile(filepath.Join(dir, VersionFile), []byte(uid), 0o644)
}
