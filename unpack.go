// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// payloadLayout is the parsed container carved out of a mapped package.
// All byte offsets are relative to the start of the mapped image.
type payloadLayout struct {
	header PayloadHeader

	// directories holds reconstructed slash-form paths relative to the
	// unpack directory; index 0 is the unpack directory itself.
	directories []string
	// files and filePaths are parallel arrays of records and their
	// reconstructed relative paths.
	files     []FileSectionHeader
	filePaths []string
	// symlinks and symlinkPaths mirror the same shape for links.
	symlinks     []SymlinkSection
	symlinkPaths []string

	payloadStart int64
	dictionary   []byte
}

// parsePayload reads the trailer at the tail of data and carves the
// region layout backwards: section table, dictionary, payload blob.
// The section table hash is validated here; a mismatch means the
// package itself is corrupt and is always fatal.
func parsePayload(data []byte) (*payloadLayout, error) {
	if len(data) < payloadHeaderSize {
		return nil, fmt.Errorf("%w: no payload header", ErrTruncated)
	}

	header, err := parsePayloadHeader(data[len(data)-payloadHeaderSize:])
	if err != nil {
		return nil, err
	}

	sectionsStart := int64(len(data)) - payloadHeaderSize - int64(header.SectionsSize)
	dictionaryStart := sectionsStart - int64(header.DictionarySize)
	payloadStart := dictionaryStart - int64(header.PayloadSize)
	if payloadStart < 0 {
		return nil, fmt.Errorf("%w: regions exceed image size", ErrTruncated)
	}

	sections, err := decompressSections(
		data[sectionsStart:sectionsStart+int64(header.SectionsSize)],
		header,
	)
	if err != nil {
		return nil, err
	}

	if checksum(sections) != header.SectionHash {
		return nil, ErrSectionHashMismatch
	}

	layout := &payloadLayout{
		header:       header,
		payloadStart: payloadStart,
	}
	if header.DictionarySize > 0 {
		layout.dictionary = data[dictionaryStart:sectionsStart]
	}

	if err := layout.carveSections(sections); err != nil {
		return nil, err
	}

	return layout, nil
}

// decompressSections zstd-decodes the section table region and checks
// its size against the record counts.
func decompressSections(compressed []byte, header PayloadHeader) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	expected := int(header.DirectorySections)*directorySectionSize +
		int(header.FileSections)*fileSectionSize +
		int(header.SymlinkSections)*symlinkSectionSize

	sections, err := decoder.DecodeAll(compressed, make([]byte, 0, expected))
	if err != nil {
		return nil, fmt.Errorf("decompress sections: %w", err)
	}
	if len(sections) != expected {
		return nil, fmt.Errorf("%w: section table is %d bytes, want %d",
			ErrSectionBounds, len(sections), expected)
	}

	return sections, nil
}

// carveSections splits the raw section table into the three record
// arrays and reconstructs relative paths from indexed parents.
func (l *payloadLayout) carveSections(sections []byte) error {
	dirCount := int(l.header.DirectorySections)
	fileCount := int(l.header.FileSections)
	linkCount := int(l.header.SymlinkSections)

	l.directories = make([]string, 0, dirCount+1)
	l.directories = append(l.directories, "")

	off := 0
	for i := 0; i < dirCount; i++ {
		record := parseDirectorySection(sections[off : off+directorySectionSize])
		off += directorySectionSize

		// Topological order: every parent precedes its children.
		if int(record.Parent) >= len(l.directories) {
			return fmt.Errorf("%w: directory %d parent %d", ErrSectionBounds, i, record.Parent)
		}

		l.directories = append(l.directories,
			path.Join(l.directories[record.Parent], fieldString(record.Name[:])))
	}

	l.files = make([]FileSectionHeader, 0, fileCount)
	l.filePaths = make([]string, 0, fileCount)
	for i := 0; i < fileCount; i++ {
		record := parseFileSection(sections[off : off+fileSectionSize])
		off += fileSectionSize

		if int(record.Parent) >= len(l.directories) {
			return fmt.Errorf("%w: file %d parent %d", ErrSectionBounds, i, record.Parent)
		}
		end := record.Position + record.Size
		if end < record.Position || end > l.header.PayloadSize {
			return fmt.Errorf("%w: file %d blob out of payload bounds", ErrSectionBounds, i)
		}

		l.files = append(l.files, record)
		l.filePaths = append(l.filePaths,
			path.Join(l.directories[record.Parent], fieldString(record.Name[:])))
	}

	l.symlinks = make([]SymlinkSection, 0, linkCount)
	l.symlinkPaths = make([]string, 0, linkCount)
	for i := 0; i < linkCount; i++ {
		record := parseSymlinkSection(sections[off : off+symlinkSectionSize])
		off += symlinkSectionSize

		if int(record.Parent) >= len(l.directories) {
			return fmt.Errorf("%w: symlink %d parent %d", ErrSectionBounds, i, record.Parent)
		}
		switch record.Kind {
		case SymlinkToDirectory:
			if int(record.Target) >= len(l.directories) {
				return fmt.Errorf("%w: symlink %d target %d", ErrSectionBounds, i, record.Target)
			}
		case SymlinkToFile:
			if int(record.Target) >= len(l.files) {
				return fmt.Errorf("%w: symlink %d target %d", ErrSectionBounds, i, record.Target)
			}
		default:
			return fmt.Errorf("%w: symlink %d kind %d", ErrSectionBounds, i, record.Kind)
		}

		l.symlinks = append(l.symlinks, record)
		l.symlinkPaths = append(l.symlinkPaths,
			path.Join(l.directories[record.Parent], fieldString(record.Name[:])))
	}

	return nil
}

// targetPath resolves a symlink record's target to a path relative to
// the unpack directory.
func (l *payloadLayout) targetPath(record *SymlinkSection) string {
	if record.Kind == SymlinkToDirectory {
		// Directory targets index the full array including the root.
		return l.directories[record.Target]
	}

	return l.filePaths[record.Target]
}

// Unpack verifies or extracts a package payload into dir. The data
// slice is the mapped package truncated before the starter info record.
// The caller must hold the unpack directory lockfile for the whole
// call. It reports whether extraction was actually performed.
func Unpack(data []byte, dir string, opts UnpackOptions) (bool, error) {
	layout, err := parsePayload(data)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	shouldExtract := opts.ShouldExtract
	if !shouldExtract && opts.Verification >= VerifyExistence {
		if !verifyExtraction(layout, dir, opts.Verification, opts.Workers) {
			if opts.Verbosity >= 2 {
				fmt.Println("verification failed, re-extracting")
			}

			shouldExtract = true
		}
	}

	if !shouldExtract {
		return false, nil
	}

	var joinPrefetch func()
	if layout.header.PayloadSize > prefetchThreshold {
		joinPrefetch = prefetchPayload(data, int(layout.payloadStart))
	}

	if err := extractPayload(data, layout, dir, opts.Workers); err != nil {
		return false, err
	}

	if err := WriteVersion(dir, opts.UID); err != nil {
		return false, fmt.Errorf("write version sentinel: %w", err)
	}

	if joinPrefetch != nil {
		joinPrefetch()
	}

	return true, nil
}

// extractPayload materializes directories, files, and symlinks from the
// payload blob. Failures here are fatal: the package already passed its
// section hash check, so errors indicate payload corruption or an
// unusable target directory.
func extractPayload(data []byte, layout *payloadLayout, dir string, workers int) error {
	for _, rel := range layout.directories[1:] {
		if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(rel)), 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", rel, err)
		}
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	taskCh := make(chan int, workers)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			worker, err := newExtractWorker(layout.dictionary)
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			defer worker.close()

			for idx := range taskCh {
				if err := worker.extractFile(data, layout, dir, idx); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		})
	}

	for i := range layout.files {
		taskCh <- i
	}
	close(taskCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}

	for i := range layout.symlinks {
		record := &layout.symlinks[i]
		link := filepath.Join(dir, filepath.FromSlash(layout.symlinkPaths[i]))
		target := filepath.Join(dir, filepath.FromSlash(layout.targetPath(record)))
		if err := createSymlink(target, link); err != nil {
			return err
		}
	}

	return nil
}

// extractWorker holds one worker's reusable zstd decoder.
type extractWorker struct {
	decoder *zstd.Decoder
}

// newExtractWorker builds one worker decoder, registering the payload
// dictionary when present.
func newExtractWorker(dictionary []byte) (*extractWorker, error) {
	options := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if len(dictionary) > 0 {
		options = append(options, zstd.WithDecoderDicts(dictionary))
	}

	decoder, err := zstd.NewReader(nil, options...)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &extractWorker{decoder: decoder}, nil
}

// close releases the worker decoder.
func (w *extractWorker) close() {
	w.decoder.Close()
}

// extractFile streams one compressed blob out of the payload region,
// checking the compressed hash and restoring metadata.
func (w *extractWorker) extractFile(data []byte, layout *payloadLayout, dir string, idx int) error {
	record := &layout.files[idx]
	rel := layout.filePaths[idx]

	start := layout.payloadStart + int64(record.Position)
	end := start + int64(record.Size)
	if end > int64(len(data)) {
		return fmt.Errorf("%w: file %s blob out of image bounds", ErrSectionBounds, rel)
	}

	compressed := newHashingReader(bytes.NewReader(data[start:end]))
	if err := w.decoder.Reset(compressed); err != nil {
		return fmt.Errorf("reset decoder for %s: %w", rel, err)
	}

	outPath := filepath.Join(dir, filepath.FromSlash(rel))
	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}

	_, copyErr := io.Copy(out, w.decoder)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("decompress %s: %w", rel, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", rel, closeErr)
	}

	if compressed.Sum64() != record.CompressedHash {
		return fmt.Errorf("%w: %s", ErrFileHashMismatch, rel)
	}

	if err := restorePermissions(outPath, record.Mode, record.Readonly == 1); err != nil {
		return fmt.Errorf("set permissions of %s: %w", rel, err)
	}
	if err := restoreTimes(outPath,
		record.TimeAccessedSeconds, record.TimeAccessedNanos,
		record.TimeModifiedSeconds, record.TimeModifiedNanos); err != nil {
		return fmt.Errorf("set times of %s: %w", rel, err)
	}

	return nil
}
