// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// win32MemoryRangeEntry mirrors WIN32_MEMORY_RANGE_ENTRY.
type win32MemoryRangeEntry struct {
	VirtualAddress uintptr
	NumberOfBytes  uintptr
}

// prefetchPayload hints the OS to pre-populate the payload mapping. The
// PrefetchVirtualMemory entry point is resolved dynamically since it
// only exists on Windows 8 and later. It returns a join function for
// the background advisor, or nil when nothing was started.
func prefetchPayload(mapped []byte, offset int) func() {
	if offset < 0 || offset >= len(mapped) {
		return nil
	}

	address := uintptr(unsafe.Pointer(&mapped[offset]))
	size := uintptr(len(mapped) - offset)
	done := make(chan struct{})
	go func() {
		defer close(done)
		kernel32 := windows.NewLazySystemDLL("kernel32.dll")
		prefetch := kernel32.NewProc("PrefetchVirtualMemory")
		if prefetch.Find() != nil {
			return
		}

		entry := win32MemoryRangeEntry{
			VirtualAddress: address,
			NumberOfBytes:  size,
		}
		process := windows.CurrentProcess()
		_, _, _ = prefetch.Call(uintptr(process), 1, uintptr(unsafe.Pointer(&entry)), 0)
	}()

	return func() { <-done }
}
