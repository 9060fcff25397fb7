// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

// Package runners implements the compressed runner table shipped inside
// the packer: a mapping from platform triple to runner executable
// bytes. The first entry is the native/default runner for the build
// host. Images are stored as independent zstd frames behind a plain
// little-endian index.
package runners

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// tableMagic starts every runner table blob.
var tableMagic = [6]byte{'W', 'R', 'T', 'B', 'L', 0}

// Sentinel errors for table operations. Use errors.Is in callers.
var (
	// ErrInvalidTable means the table blob is malformed.
	ErrInvalidTable = errors.New("runner table is malformed")
	// ErrRunnerNotFound means no entry matches the requested name.
	ErrRunnerNotFound = errors.New("runner not found in table")
	// ErrAmbiguousRunner means the requested name matches several entries.
	ErrAmbiguousRunner = errors.New("runner name matches several entries")
	// ErrEmptyTable means the table carries no runners.
	ErrEmptyTable = errors.New("runner table is empty")
)

// entry is one parsed index record.
type entry struct {
	name   string
	offset uint64
	size   uint64
}

// Table is a parsed runner table. The blob is referenced, not copied;
// it must stay valid for the table's lifetime.
type Table struct {
	blob    []byte
	entries []entry
	images  int // byte offset of the image region
}

// Parse reads the table index from a blob.
func Parse(blob []byte) (*Table, error) {
	if len(blob) < len(tableMagic)+2 {
		return nil, fmt.Errorf("%w: short index", ErrInvalidTable)
	}
	if string(blob[:len(tableMagic)]) != string(tableMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidTable)
	}

	count := int(binary.LittleEndian.Uint16(blob[len(tableMagic):]))
	off := len(tableMagic) + 2

	entries := make([]entry, 0, count)
	for i := 0; i < count; i++ {
		if off >= len(blob) {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrInvalidTable, i)
		}

		nameLen := int(blob[off])
		off++
		if off+nameLen+16 > len(blob) {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrInvalidTable, i)
		}

		name := string(blob[off : off+nameLen])
		off += nameLen
		entries = append(entries, entry{
			name:   name,
			offset: binary.LittleEndian.Uint64(blob[off : off+8]),
			size:   binary.LittleEndian.Uint64(blob[off+8 : off+16]),
		})
		off += 16
	}

	t := &Table{blob: blob, entries: entries, images: off}
	for i, e := range entries {
		end := e.offset + e.size
		if end < e.offset || int(end) > len(blob)-off {
			return nil, fmt.Errorf("%w: entry %d image out of bounds", ErrInvalidTable, i)
		}
	}

	return t, nil
}

// Keys returns all runner names in table order. The first name is the
// native/default runner.
func (t *Table) Keys() []string {
	keys := make([]string, len(t.entries))
	for i, e := range t.entries {
		keys[i] = e.name
	}

	return keys
}

// Resolve maps a requested runner name to a table key. The keywords
// "native" and "default" select the first entry; otherwise an exact
// match wins, then a unique substring match.
func (t *Table) Resolve(name string) (string, error) {
	if len(t.entries) == 0 {
		return "", ErrEmptyTable
	}

	if name == "native" || name == "default" {
		return t.entries[0].name, nil
	}

	for _, e := range t.entries {
		if e.name == name {
			return e.name, nil
		}
	}

	var match string
	for _, e := range t.entries {
		if strings.Contains(e.name, name) {
			if match != "" {
				return "", fmt.Errorf("%w: %q", ErrAmbiguousRunner, name)
			}

			match = e.name
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", ErrRunnerNotFound, name)
	}

	return match, nil
}

// Runner resolves a name and returns the decompressed runner image.
func (t *Table) Runner(name string) ([]byte, error) {
	key, err := t.Resolve(name)
	if err != nil {
		return nil, err
	}

	for _, e := range t.entries {
		if e.name != key {
			continue
		}

		start := t.images + int(e.offset)
		compressed := t.blob[start : start+int(e.size)]

		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer decoder.Close()

		image, err := decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress runner %s: %w", key, err)
		}

		return image, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrRunnerNotFound, name)
}

// Image is one runner to be written into a table.
type Image struct {
	// Name is the platform triple (or any unique key).
	Name string
	// Data is the uncompressed runner executable.
	Data []byte
}

// Build serializes a runner table from images in order. Images are
// zstd-compressed at the given level; the first image becomes the
// native/default runner.
func Build(images []Image, level int) ([]byte, error) {
	if len(images) > 0xffff {
		return nil, fmt.Errorf("%w: too many entries", ErrInvalidTable)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer func() { _ = encoder.Close() }()

	compressed := make([][]byte, len(images))
	var imageBytes uint64
	for i, image := range images {
		if len(image.Name) > 0xff {
			return nil, fmt.Errorf("%w: name %q too long", ErrInvalidTable, image.Name)
		}

		compressed[i] = encoder.EncodeAll(image.Data, nil)
		imageBytes += uint64(len(compressed[i]))
	}

	blob := make([]byte, 0, len(tableMagic)+2+len(images)*32+int(imageBytes))
	blob = append(blob, tableMagic[:]...)
	blob = binary.LittleEndian.AppendUint16(blob, uint16(len(images)))

	var offset uint64
	for i, image := range images {
		blob = append(blob, byte(len(image.Name)))
		blob = append(blob, image.Name...)
		blob = binary.LittleEndian.AppendUint64(blob, offset)
		blob = binary.LittleEndian.AppendUint64(blob, uint64(len(compressed[i])))
		offset += uint64(len(compressed[i]))
	}

	for i := range compressed {
		blob = append(blob, compressed[i]...)
	}

	return blob, nil
}
