// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/shirou/gopsutil/v3/mem"
)

// walkEntry is one enumerated source node with its root-relative path.
type walkEntry struct {
	rel  string
	path string
	info os.FileInfo
}

// packState carries shared accumulators across the parallel passes.
type packState struct {
	opts *PackOptions

	// parents holds root-relative directory paths indexed like the
	// directory section array. Built sequentially, read-only afterwards.
	parents []string

	// archiveMu guards destination appends and the payload cursor.
	archiveMu sync.Mutex
	dst       io.WriteSeeker
	payload   int64

	// sectionMu guards the file/symlink accumulators.
	sectionMu sync.Mutex
	files     []FileSectionHeader
	filePaths []string
	symlinks  []SymlinkSection

	// read counts uncompressed source bytes.
	read atomic.Int64

	dictionary []byte
	level      zstd.EncoderLevel
	inMemory   int64
}

// Pack walks source, compresses its contents, and appends the payload
// container (blobs, optional dictionary, section table, trailer) to
// dst. The destination must be positioned at the end of the runner
// image; everything the engine writes is appended after it.
//
// Entry-scoped failures are reported through the error callback and
// skipped; only destination and infrastructure failures abort.
func Pack(source string, dst io.WriteSeeker, opts PackOptions) (*PackResult, error) {
	if dst == nil {
		return nil, ErrNilWriter
	}

	opts.applyDefaults()

	matcher, err := newSourceMatcher(opts.Rules, opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	root, entries, err := enumerateSource(source, opts.ExcludeOutput, matcher, &opts.Callbacks)
	if err != nil {
		return nil, err
	}

	state := &packState{
		opts:     &opts,
		dst:      dst,
		level:    zstd.EncoderLevelFromZstd(opts.Level),
		inMemory: opts.InMemoryLimit,
	}
	if state.inMemory <= 0 {
		state.inMemory = defaultInMemoryLimit()
	}

	if opts.BuildDictionary {
		dict, err := trainDictionary(regularFilePaths(entries), &opts.Callbacks)
		if err != nil {
			return nil, fmt.Errorf("train dictionary: %w", err)
		}

		state.dictionary = dict
	}

	start, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek destination: %w", err)
	}

	directories := packDirectories(state, entries)

	if err := packFiles(state, entries); err != nil {
		return nil, err
	}

	if err := packSymlinks(state, root, entries); err != nil {
		return nil, err
	}

	payloadSize := state.payload

	if len(state.dictionary) > 0 {
		if _, err := dst.Write(state.dictionary); err != nil {
			return nil, fmt.Errorf("write dictionary: %w", err)
		}
	}

	sections := make([]byte, 0,
		len(directories)*directorySectionSize+
			len(state.files)*fileSectionSize+
			len(state.symlinks)*symlinkSectionSize)
	for i := range directories {
		sections = directories[i].appendTo(sections)
	}
	for i := range state.files {
		sections = state.files[i].appendTo(sections)
	}
	for i := range state.symlinks {
		sections = state.symlinks[i].appendTo(sections)
	}

	sectionHash := checksum(sections)
	compressedSections, err := compressSections(sections, state.level)
	if err != nil {
		return nil, fmt.Errorf("compress sections: %w", err)
	}

	if _, err := dst.Write(compressedSections); err != nil {
		return nil, fmt.Errorf("write sections: %w", err)
	}

	header := PayloadHeader{
		DirectorySections: uint64(len(directories)),
		FileSections:      uint64(len(state.files)),
		SymlinkSections:   uint64(len(state.symlinks)),
		DictionarySize:    uint64(len(state.dictionary)),
		SectionHash:       sectionHash,
		PayloadSize:       uint64(payloadSize),
		SectionsSize:      uint64(len(compressedSections)),
	}
	if _, err := dst.Write(header.appendTo(make([]byte, 0, payloadHeaderSize))); err != nil {
		return nil, fmt.Errorf("write payload header: %w", err)
	}

	end, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek destination: %w", err)
	}

	return &PackResult{
		Records: len(directories) + len(state.files) + len(state.symlinks),
		Read:    state.read.Load(),
		Written: end - start,
	}, nil
}

// enumerateSource walks the source tree in deterministic lexical order.
// Hidden entries are included; symlinks are recorded, never traversed.
// The returned root is the canonical walk base (the file's parent when
// source is a single file).
func enumerateSource(
	source string,
	excludeOutput string,
	matcher *sourceMatcher,
	callbacks *Callbacks,
) (string, []walkEntry, error) {
	source, err := filepath.EvalSymlinks(source)
	if err != nil {
		return "", nil, fmt.Errorf("resolve source: %w", err)
	}

	fi, err := os.Lstat(source)
	if err != nil {
		return "", nil, fmt.Errorf("stat source: %w", err)
	}

	var excluded string
	if excludeOutput != "" {
		if resolved, err := filepath.Abs(excludeOutput); err == nil {
			excluded = resolved
		}
	}

	if fi.Mode().IsRegular() {
		root := filepath.Dir(source)
		return root, []walkEntry{{rel: filepath.Base(source), path: source, info: fi}}, nil
	}
	if !fi.IsDir() {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidSource, source)
	}

	entries := make([]walkEntry, 0, 256)
	walkErr := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			callbacks.errorf("couldn't read %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == source {
			return nil
		}
		if excluded != "" && path == excluded {
			return nil
		}

		rel, relErr := filepath.Rel(source, path)
		if relErr != nil {
			callbacks.errorf("couldn't resolve %s: %v", path, relErr)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if len(d.Name()) >= NameSize {
			callbacks.errorf("name is too long, skipping %s", rel)
			callbacks.tick()
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			callbacks.errorf("couldn't read metadata of %s: %v", rel, infoErr)
			callbacks.tick()
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		entries = append(entries, walkEntry{rel: rel, path: path, info: info})
		return nil
	})
	if walkErr != nil {
		return "", nil, fmt.Errorf("walk source: %w", walkErr)
	}

	return source, entries, nil
}

// regularFilePaths returns the absolute paths of all enumerated regular
// files in walk order, for dictionary sampling.
func regularFilePaths(entries []walkEntry) []string {
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.info.Mode().IsRegular() {
			paths = append(paths, entry.path)
		}
	}

	return paths
}

// defaultInMemoryLimit derives the scratch-file threshold from total
// RAM spread over the CPU count.
func defaultInMemoryLimit() int64 {
	cpus := int64(runtime.NumCPU())
	if cpus < 1 {
		cpus = 1
	}

	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return 1 << 30
	}

	return int64(vm.Total) / cpus
}

// packDirectories runs the sequential directory pass. Index assignment
// must be deterministic, so this pass never parallelizes. A directory
// whose parent was skipped is skipped too, dropping its subtree from
// the later passes. The virtual root (the unpack directory itself) is
// not persisted; parent index 0 refers to it implicitly.
func packDirectories(state *packState, entries []walkEntry) []DirectorySection {
	directories := make([]DirectorySection, 0, len(entries)/4+1)
	state.parents = append(state.parents, "")

	for _, entry := range entries {
		if !entry.info.IsDir() {
			continue
		}

		state.opts.Callbacks.status(entry.rel)

		parent, ok := indexOfPath(state.parents, parentPath(entry.rel))
		if !ok {
			state.opts.Callbacks.errorf("parent not included, skipping %s", entry.rel)
			state.opts.Callbacks.tick()
			continue
		}

		directories = append(directories, DirectorySection{
			Name:   nameField(baseName(entry.rel)),
			Parent: parent,
		})
		state.parents = append(state.parents, entry.rel)
		state.opts.Callbacks.tick()
	}

	return directories
}

// packFiles runs the parallel file pass over a CPU-sized worker pool.
func packFiles(state *packState, entries []walkEntry) error {
	workers := state.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	taskCh := make(chan walkEntry, workers)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			worker, err := newFileWorker(state)
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			defer worker.close()

			for task := range taskCh {
				if err := worker.compressFile(task); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		})
	}

	for _, entry := range entries {
		if entry.info.Mode().IsRegular() {
			taskCh <- entry
		}
	}
	close(taskCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// fileWorker holds per-worker compression state.
type fileWorker struct {
	state   *packState
	encoder *zstd.Encoder
	buf     bytes.Buffer
}

// newFileWorker builds one worker with a reusable single-threaded
// encoder. The encoder is re-armed per file via Reset.
func newFileWorker(state *packState) (*fileWorker, error) {
	options := []zstd.EOption{
		zstd.WithEncoderLevel(state.level),
		zstd.WithEncoderConcurrency(1),
	}
	if len(state.dictionary) > 0 {
		options = append(options, zstd.WithEncoderDict(state.dictionary))
	}

	encoder, err := zstd.NewWriter(nil, options...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &fileWorker{state: state, encoder: encoder}, nil
}

// close releases the worker encoder.
func (w *fileWorker) close() {
	_ = w.encoder.Close()
}

// compressFile compresses one regular file and appends it to the
// archive under the shared lock. Entry-scoped failures are reported and
// skipped; destination failures abort the build.
func (w *fileWorker) compressFile(entry walkEntry) error {
	callbacks := &w.state.opts.Callbacks
	callbacks.status(entry.rel)
	defer callbacks.tick()

	parent, ok := indexOfPath(w.state.parents, parentPath(entry.rel))
	if !ok {
		callbacks.errorf("parent not included, skipping %s", entry.rel)
		return nil
	}

	f, err := os.Open(entry.path)
	if err != nil {
		callbacks.errorf("couldn't open %s: %v", entry.rel, err)
		return nil
	}
	defer func() { _ = f.Close() }()

	header := FileSectionHeader{
		Name:   nameField(baseName(entry.rel)),
		Parent: parent,
		Mode:   entryMode(entry.info),
	}
	header.TimeAccessedSeconds, header.TimeAccessedNanos,
		header.TimeModifiedSeconds, header.TimeModifiedNanos = entryTimes(entry.info)
	if entry.info.Mode().Perm()&0o200 == 0 {
		header.Readonly = 1
	}

	contentReader := newHashingReader(f)
	size := entry.info.Size()
	var appended bool
	var appendErr error
	if size > w.state.inMemory {
		callbacks.infof("%s (compressing large file to disk)", entry.rel)
		appended, appendErr = w.compressLarge(contentReader, size, &header)
	} else {
		appended, appendErr = w.compressSmall(contentReader, &header)
	}
	if appendErr != nil {
		return appendErr
	}
	if !appended {
		return nil
	}

	header.FileHash = contentReader.Sum64()
	w.state.read.Add(size)

	w.state.sectionMu.Lock()
	w.state.files = append(w.state.files, header)
	w.state.filePaths = append(w.state.filePaths, entry.rel)
	w.state.sectionMu.Unlock()

	return nil
}

// compressSmall encodes the file into the worker's in-memory buffer and
// copies it into the archive under the shared lock. It reports whether
// the blob was appended; encode failures skip the entry.
func (w *fileWorker) compressSmall(src io.Reader, header *FileSectionHeader) (bool, error) {
	w.buf.Reset()
	w.encoder.Reset(&w.buf)
	if _, err := io.Copy(w.encoder, src); err != nil {
		w.state.opts.Callbacks.errorf("couldn't compress %s: %v", fieldString(header.Name[:]), err)
		return false, nil
	}
	if err := w.encoder.Close(); err != nil {
		w.state.opts.Callbacks.errorf("couldn't compress %s: %v", fieldString(header.Name[:]), err)
		return false, nil
	}

	compressed := w.buf.Bytes()
	header.CompressedHash = checksum(compressed)
	header.Size = uint64(len(compressed))

	if err := w.state.appendBlob(bytes.NewReader(compressed), header); err != nil {
		return false, err
	}

	return true, nil
}

// compressLarge encodes the file to a scratch file in the system temp
// directory with a size-scaled worker count, then streams the scratch
// file into the archive. It reports whether the blob was appended.
func (w *fileWorker) compressLarge(src io.Reader, size int64, header *FileSectionHeader) (bool, error) {
	callbacks := &w.state.opts.Callbacks

	scratch, err := os.CreateTemp("", "wrappe-scratch-*")
	if err != nil {
		return false, fmt.Errorf("create scratch file: %w", err)
	}
	scratchPath := scratch.Name()
	defer func() { _ = os.Remove(scratchPath) }()

	concurrency := runtime.NumCPU() / 2
	if scaled := int(size/w.state.inMemory) + 1; scaled < concurrency {
		concurrency = scaled
	}
	if concurrency < 1 {
		concurrency = 1
	}

	options := []zstd.EOption{
		zstd.WithEncoderLevel(w.state.level),
		zstd.WithEncoderConcurrency(concurrency),
	}
	if len(w.state.dictionary) > 0 {
		options = append(options, zstd.WithEncoderDict(w.state.dictionary))
	}

	encoder, err := zstd.NewWriter(scratch, options...)
	if err != nil {
		_ = scratch.Close()
		return false, fmt.Errorf("create zstd encoder: %w", err)
	}

	if _, err := io.Copy(encoder, src); err != nil {
		_ = encoder.Close()
		_ = scratch.Close()
		callbacks.errorf("couldn't compress %s: %v", fieldString(header.Name[:]), err)
		return false, nil
	}
	if err := encoder.Close(); err != nil {
		_ = scratch.Close()
		callbacks.errorf("couldn't compress %s: %v", fieldString(header.Name[:]), err)
		return false, nil
	}
	if err := scratch.Close(); err != nil {
		return false, fmt.Errorf("close scratch file: %w", err)
	}

	cache, err := os.Open(scratchPath)
	if err != nil {
		return false, fmt.Errorf("reopen scratch file: %w", err)
	}
	defer func() { _ = cache.Close() }()

	info, err := cache.Stat()
	if err != nil {
		return false, fmt.Errorf("stat scratch file: %w", err)
	}
	header.Size = uint64(info.Size())

	hashed := newHashingReader(cache)
	if err := w.state.appendBlob(hashed, header); err != nil {
		return false, err
	}
	header.CompressedHash = hashed.Sum64()

	return true, nil
}

// appendBlob copies one compressed stream into the archive under the
// shared lock and records its payload-relative position. The lock is
// held only around the append so offsets stay contiguous and disjoint.
func (s *packState) appendBlob(src io.Reader, header *FileSectionHeader) error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	header.Position = uint64(s.payload)
	written, err := io.Copy(s.dst, src)
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	s.payload += written

	return nil
}

// packSymlinks runs the parallel symlink pass. Targets are resolved by
// path against the directory and file tables built by the earlier
// passes; links leaving the source root are skipped.
func packSymlinks(state *packState, root string, entries []walkEntry) error {
	workers := state.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	taskCh := make(chan walkEntry, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for task := range taskCh {
				packSymlink(state, root, task)
			}
		})
	}

	for _, entry := range entries {
		if entry.info.Mode()&fs.ModeSymlink != 0 {
			taskCh <- entry
		}
	}
	close(taskCh)
	wg.Wait()

	return nil
}

// packSymlink resolves and records one symlink entry.
func packSymlink(state *packState, root string, entry walkEntry) {
	callbacks := &state.opts.Callbacks
	callbacks.status(entry.rel)
	defer callbacks.tick()

	parent, ok := indexOfPath(state.parents, parentPath(entry.rel))
	if !ok {
		callbacks.errorf("parent not included, skipping %s", entry.rel)
		return
	}

	linkTarget, err := os.Readlink(entry.path)
	if err != nil {
		callbacks.errorf("couldn't read linkname of %s: %v", entry.rel, err)
		return
	}
	if !filepath.IsAbs(linkTarget) {
		linkTarget = filepath.Join(filepath.Dir(entry.path), linkTarget)
	}

	resolved, err := filepath.EvalSymlinks(linkTarget)
	if err != nil {
		callbacks.errorf("couldn't resolve link %s: %v", entry.rel, err)
		return
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		callbacks.errorf("link points to outside the directory, skipping %s", entry.rel)
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		// A link to the source root resolves to the unpack directory.
		rel = ""
	}

	targetInfo, err := os.Stat(resolved)
	if err != nil {
		callbacks.errorf("couldn't read link target of %s: %v", entry.rel, err)
		return
	}

	section := SymlinkSection{
		Name:   nameField(baseName(entry.rel)),
		Parent: parent,
		Mode:   entryMode(entry.info),
	}
	section.TimeAccessedSeconds, section.TimeAccessedNanos,
		section.TimeModifiedSeconds, section.TimeModifiedNanos = entryTimes(entry.info)

	if targetInfo.IsDir() {
		section.Kind = SymlinkToDirectory
		target, ok := indexOfPath(state.parents, rel)
		if !ok {
			callbacks.errorf("link target not included, skipping %s", entry.rel)
			return
		}
		section.Target = target
	} else {
		section.Kind = SymlinkToFile
		state.sectionMu.Lock()
		target, ok := indexOfPath(state.filePaths, rel)
		state.sectionMu.Unlock()
		if !ok {
			callbacks.errorf("link target not included, skipping %s", entry.rel)
			return
		}
		section.Target = target
	}

	state.sectionMu.Lock()
	state.symlinks = append(state.symlinks, section)
	state.sectionMu.Unlock()
}

// compressSections zstd-encodes the raw section table.
func compressSections(sections []byte, level zstd.EncoderLevel) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = encoder.Close() }()

	return encoder.EncodeAll(sections, make([]byte, 0, len(sections)/2)), nil
}

// GenerateUID returns a random 8-character alphanumeric version tag.
func GenerateUID() (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	raw, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		return "", fmt.Errorf("generate version tag: %w", err)
	}

	tag := make([]byte, len(raw))
	for i, b := range raw {
		tag[i] = alphabet[int(b)%len(alphabet)]
	}

	return string(tag), nil
}
