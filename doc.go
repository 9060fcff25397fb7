// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

/*
Package wrappe implements the payload container behind self-extracting
single-file executables: a runner executable prefix, concatenated
zstd-compressed file blobs, an optional shared dictionary, a compressed
section table (directories, files, symlinks), a packed trailer, and a
starter info record carrying runtime policy. All persisted records are
fixed-width, little-endian, and tightly packed; integrity is covered by
seeded xxHash64 over the section table and over every compressed and
decompressed file stream.

# Packing

Pack walks a source tree and appends the container to a destination
positioned after the runner image. BuildPackage wires the full build:

	info, err := wrappe.NewStarterInfo(uid, "myapp", "bin/app", nil)
	if err != nil {
	    return err
	}
	result, err := wrappe.BuildPackage(wrappe.BuildConfig{
	    Source:      "./dist",
	    Output:      "packed-app",
	    RunnerImage: runnerImage,
	    Info:        info,
	    Pack:        wrappe.PackOptions{Level: 8},
	})

The directory pass is sequential so record indices are deterministic;
file and symlink passes run on a CPU-sized worker pool and resolve
parents and targets by path, never by predicted index.

# Unpacking

The runner memory-maps its own file, finds the starter info record via
FindStarterInfo (tail offset first, reverse signature scan as the slow
path), and hands the truncated mapping to Unpack:

	info, start, err := wrappe.FindStarterInfo(mapped)
	if err != nil {
	    return err
	}
	extracted, err := wrappe.Unpack(mapped[:start], dir, wrappe.UnpackOptions{
	    UID:          info.UIDString(),
	    Verification: info.Verification,
	})

Callers must hold the unpack directory lockfile (AcquireLock or
TryAcquireLock) around the whole verify+extract sequence; the version
sentinel written at the end decides future re-extraction.

Verification failures re-extract; signature, format version, and hash
mismatches are fatal errors because the on-disk invariants they guard
are unrecoverable.
*/
package wrappe
