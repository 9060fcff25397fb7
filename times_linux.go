// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"os"
	"syscall"
)

// entryTimes extracts access and modification times as Unix
// seconds+nanos. Unavailable components are zeroed.
func entryTimes(fi os.FileInfo) (aSec uint64, aNano uint32, mSec uint64, mNano uint32) {
	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return modTimesOnly(fi)
	}

	if stat.Atim.Sec > 0 {
		aSec = uint64(stat.Atim.Sec)
		aNano = uint32(stat.Atim.Nsec)
	}
	if stat.Mtim.Sec > 0 {
		mSec = uint64(stat.Mtim.Sec)
		mNano = uint32(stat.Mtim.Nsec)
	}

	return aSec, aNano, mSec, mNano
}
