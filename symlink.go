// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

const (
	// symlinkRetries bounds removal attempts for an occupied link path.
	symlinkRetries = 50
	// symlinkRetryDelay paces removal attempts while the OS releases the name.
	symlinkRetryDelay = 20 * time.Millisecond
)

// createSymlink replaces whatever occupies link with a symlink to
// target. Removal is retried with short sleeps because the OS can hold
// the name briefly after a delete.
func createSymlink(target, link string) error {
	err := os.Symlink(target, link)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("symlink %s to %s: %w", link, target, err)
	}

	for attempt := 0; attempt < symlinkRetries; attempt++ {
		if removeErr := os.RemoveAll(link); removeErr == nil {
			if err = os.Symlink(target, link); err == nil {
				return nil
			}
			if !errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("symlink %s to %s: %w", link, target, err)
			}
		}

		time.Sleep(symlinkRetryDelay)
	}

	return fmt.Errorf("symlink %s to %s: %w", link, target, err)
}
