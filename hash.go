// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"io"

	"github.com/OneOfOne/xxhash"
)

// newHash returns a seeded xxHash64 state. The same seed covers the
// section table, per-file content hashes, and compressed stream hashes.
func newHash() *xxhash.XXHash64 {
	return xxhash.NewS64(hashSeed)
}

// checksum hashes a full byte slice with the shared seed.
func checksum(data []byte) uint64 {
	return xxhash.Checksum64S(data, hashSeed)
}

// hashingReader feeds everything read through it into a seeded hash.
type hashingReader struct {
	r io.Reader
	h *xxhash.XXHash64
}

// newHashingReader wraps r with a fresh seeded hash state.
func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: newHash()}
}

// Read reads from the wrapped reader and updates the hash.
func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n])
	}

	return n, err
}

// Sum64 returns the hash of all bytes read so far.
func (hr *hashingReader) Sum64() uint64 {
	return hr.h.Sum64()
}

// hashingWriter feeds everything written through it into a seeded hash.
type hashingWriter struct {
	w io.Writer
	h *xxhash.XXHash64
}

// newHashingWriter wraps w with a fresh seeded hash state.
func newHashingWriter(w io.Writer) *hashingWriter {
	return &hashingWriter{w: w, h: newHash()}
}

// Write writes to the wrapped writer and updates the hash.
func (hw *hashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		_, _ = hw.h.Write(p[:n])
	}

	return n, err
}

// Sum64 returns the hash of all bytes written so far.
func (hw *hashingWriter) Sum64() uint64 {
	return hw.h.Sum64()
}
