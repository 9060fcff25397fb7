// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"os"
	"time"
)

// modTimesOnly fills both time pairs from the modification time.
func modTimesOnly(fi os.FileInfo) (aSec uint64, aNano uint32, mSec uint64, mNano uint32) {
	mod := fi.ModTime()
	if mod.Unix() <= 0 {
		return 0, 0, 0, 0
	}

	sec := uint64(mod.Unix())
	nano := uint32(mod.Nanosecond())
	return sec, nano, sec, nano
}

// restoreTimes applies stored access and modification times to an
// extracted node. Zeroed records are skipped.
func restoreTimes(path string, aSec uint64, aNano uint32, mSec uint64, mNano uint32) error {
	if aSec == 0 && mSec == 0 {
		return nil
	}

	accessed := time.Unix(int64(aSec), int64(aNano))
	modified := time.Unix(int64(mSec), int64(mNano))
	if aSec == 0 {
		accessed = modified
	}
	if mSec == 0 {
		modified = accessed
	}

	return os.Chtimes(path, accessed, modified)
}
