// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import "golang.org/x/sys/unix"

// prefetchPayload hints the kernel to pre-populate the payload mapping.
// It returns a join function for the background advisor, or nil when
// nothing was started.
func prefetchPayload(mapped []byte, offset int) func() {
	if offset < 0 || offset >= len(mapped) {
		return nil
	}

	region := mapped[offset:]
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = unix.Madvise(region, unix.MADV_WILLNEED)
	}()

	return func() { <-done }
}
