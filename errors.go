// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import "errors"

// Sentinel errors for package operations. Use errors.Is in callers.
var (
	// ErrTruncated means the package is shorter than a required record.
	ErrTruncated = errors.New("package is truncated")
	// ErrSignatureNotFound means no starter info signature exists in the image.
	ErrSignatureNotFound = errors.New("starter info signature not found")
	// ErrInvalidSignature means the starter info signature bytes are wrong.
	ErrInvalidSignature = errors.New("starter info signature is invalid")
	// ErrFormatMismatch means the package format version differs from the runner.
	ErrFormatMismatch = errors.New("package format version mismatch")
	// ErrSectionHashMismatch means the section table failed its hash check.
	ErrSectionHashMismatch = errors.New("section table hash mismatch")
	// ErrFileHashMismatch means a compressed file blob failed its hash check.
	ErrFileHashMismatch = errors.New("compressed file hash mismatch")
	// ErrSectionBounds means a section record references an invalid index or range.
	ErrSectionBounds = errors.New("section record out of bounds")
	// ErrNameTooLong means a basename exceeds the fixed name field.
	ErrNameTooLong = errors.New("name exceeds maximum length")
	// ErrArgumentsTooLong means the joined baked arguments exceed the fixed field.
	ErrArgumentsTooLong = errors.New("arguments exceed maximum length")
	// ErrUIDTooLong means the version tag exceeds the fixed UID field.
	ErrUIDTooLong = errors.New("version tag exceeds maximum length")
	// ErrNilWriter means the destination writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrInvalidSource means the pack source is neither a file nor a directory.
	ErrInvalidSource = errors.New("source is not a file or directory")
	// ErrInvalidRules means one or more include/exclude rules are invalid.
	ErrInvalidRules = errors.New("invalid include/exclude rules")
	// ErrLockHeld means the unpack lockfile is held by another process.
	ErrLockHeld = errors.New("unpack lock held by another process")
	// ErrNoRunnerImage means a package build was started without a runner.
	ErrNoRunnerImage = errors.New("runner image is empty")
)
