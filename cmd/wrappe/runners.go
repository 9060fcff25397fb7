// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/woozymasta/wrappe/runners"
)

// runnerTableEnv overrides the embedded runner table with an external
// blob, mainly for development builds packing freshly compiled runners.
const runnerTableEnv = "WRAPPE_RUNNERS"

// runnerTable is the compressed runner table generated at build time.
//
//go:embed runners.tbl
var runnerTable []byte

// loadRunnerTable parses the embedded table, honoring the environment
// override when set.
func loadRunnerTable() (*runners.Table, error) {
	blob := runnerTable
	if path := os.Getenv(runnerTableEnv); path != "" {
		external, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read runner table %s: %w", path, err)
		}

		blob = external
	}

	return runners.Parse(blob)
}
