// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import "github.com/shirou/gopsutil/v3/process"

// InstanceRunning reports whether any live process runs the given entry
// command path. Unreadable processes are skipped; only a full process
// list failure is ignored by reporting no instance.
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
			return true, nil
		}
	}

	return false, nil
}
