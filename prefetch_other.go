// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

//go:build !linux && !windows

package wrappe

// prefetchPayload is a no-op on platforms without a memory hint API.
func prefetchPayload(_ []byte, _ int) func() {
	return nil
}
