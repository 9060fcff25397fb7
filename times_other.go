// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

//go:build !linux && !windows

package wrappe

import "os"

// entryTimes extracts access and modification times as Unix
// seconds+nanos. Platforms without a portable access time fall back to
// the modification time for both.
func entryTimes(fi os.FileInfo) (aSec uint64, aNano uint32, mSec uint64, mNano uint32) {
	return modTimesOnly(fi)
}
