// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

//go:build !linux && !windows

package wrappe

// InstanceRunning always reports no instance; the single-instance check
// is only supported on Windows and Linux.
func InstanceRunning(_ string) (bool, error) {
	return false, nil
}
