// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// verifyExtraction checks an existing extraction against the section
// records. Any missing entry, hash mismatch, or unreadable node counts
// as a verify failure and triggers re-extraction; nothing here is
// fatal. It reports whether the extraction is intact.
func verifyExtraction(layout *payloadLayout, dir string, verification uint8, workers int) bool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var failed atomic.Bool

	taskCh := make(chan int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for idx := range taskCh {
				if failed.Load() {
					continue
				}

				if !verifyFile(layout, dir, idx, verification) {
					failed.Store(true)
				}
			}
		})
	}

	for i := range layout.files {
		taskCh <- i
	}
	close(taskCh)
	wg.Wait()

	if failed.Load() {
		return false
	}

	for i := range layout.symlinks {
		if !verifySymlink(layout, dir, i) {
			return false
		}
	}

	return true
}

// verifyFile checks one extracted file. Existence mode requires a
// regular file; checksum mode additionally re-hashes the content.
func verifyFile(layout *payloadLayout, dir string, idx int, verification uint8) bool {
	record := &layout.files[idx]
	path := filepath.Join(dir, filepath.FromSlash(layout.filePaths[idx]))

	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}

	if verification < VerifyChecksum {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	hash := newHash()
	if _, err := io.Copy(hash, f); err != nil {
		return false
	}

	return hash.Sum64() == record.FileHash
}

// verifySymlink checks that one extracted symlink exists, resolves
// inside the unpack directory, and points at the expected record.
func verifySymlink(layout *payloadLayout, dir string, idx int) bool {
	record := &layout.symlinks[idx]
	link := filepath.Join(dir, filepath.FromSlash(layout.symlinkPaths[idx]))

	fi, err := os.Lstat(link)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return false
	}

	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return false
	}

	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	expected := filepath.FromSlash(layout.targetPath(record))
	if expected == "" {
		expected = "."
	}

	return rel == expected
}
