// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"path"
	"strings"
)

// NormalizePath converts a source-relative path to normalized
// slash-separated form. It trims spaces, accepts both "/" and "\",
// removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	raw = strings.TrimPrefix(raw, "./")
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// parentPath returns the slash-form parent of a normalized relative
// path; the empty string denotes the source root.
func parentPath(rel string) string {
	idx := strings.LastIndexByte(rel, '/')
	if idx < 0 {
		return ""
	}

	return rel[:idx]
}

// baseName returns the final component of a normalized relative path.
func baseName(rel string) string {
	idx := strings.LastIndexByte(rel, '/')
	if idx < 0 {
		return rel
	}

	return rel[idx+1:]
}

// indexOfPath finds rel in the accumulated path table by linear search.
// Record order is not predictable across parallel passes, so lookups go
// by path, never by predicted index.
func indexOfPath(table []string, rel string) (uint32, bool) {
	for i, candidate := range table {
		if candidate == rel {
			return uint32(i), true
		}
	}

	return 0, false
}
