// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"os"
	"syscall"
	"time"
)

// entryTimes extracts access and modification times as Unix
// seconds+nanos. Unavailable components are zeroed.
func entryTimes(fi os.FileInfo) (aSec uint64, aNano uint32, mSec uint64, mNano uint32) {
	attr, ok := fi.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return modTimesOnly(fi)
	}

	accessed := time.Unix(0, attr.LastAccessTime.Nanoseconds())
	modified := time.Unix(0, attr.LastWriteTime.Nanoseconds())
	if accessed.Unix() > 0 {
		aSec = uint64(accessed.Unix())
		aNano = uint32(accessed.Nanosecond())
	}
	if modified.Unix() > 0 {
		mSec = uint64(modified.Unix())
		mNano = uint32(modified.Nanosecond())
	}

	return aSec, aNano, mSec, mNano
}
