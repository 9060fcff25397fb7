// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"syscall"
	"unsafe"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procShowWindow               = user32.NewProc("ShowWindow")
)

const swShow = 5

// InstanceRunning reports whether any live process runs the given entry
// command path. On a match the process's visible window is brought to
// the foreground before reporting true.
func InstanceRunning(runPath string) (bool, error) {
	processes, err := process.Processes()
	if err != nil {
		return false, nil
	}

	for _, proc := range processes {
		exe, err := proc.Exe()
		if err != nil {
			continue
		}

		if exe == runPath {
			focusProcessWindow(uint32(proc.Pid))
			return true, nil
		}
	}

	return false, nil
}

// focusProcessWindow shows and foregrounds the first top-level window
// owned by the process.
func focusProcessWindow(pid uint32) {
	callback := syscall.NewCallback(func(hwnd uintptr, lparam uintptr) uintptr {
		var windowPid uint32
		_, _, _ = procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&windowPid)))
		if windowPid != uint32(lparam) {
			return 1 // continue enumeration
		}

		_, _, _ = procShowWindow.Call(hwnd, swShow)
		ret, _, _ := procSetForegroundWindow.Call(hwnd)
		if ret == 0 {
			return 1
		}

		return 0
	})

	_, _, _ = procEnumWindows.Call(callback, uintptr(pid))
}
