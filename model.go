// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"encoding/binary"
	"fmt"

	"github.com/woozymasta/pathrules"
)

// Format version and fixed record geometry. All sizes are frozen per
// format version; changing any of them is a breaking format change.
const (
	// FormatVersion is the single-byte container format version. Runner
	// and package must match exactly.
	FormatVersion byte = 203
	// NameSize is the fixed byte length of a path component field.
	NameSize = 128
	// ArgsSize is the fixed byte length of the baked arguments field.
	ArgsSize = 512
	// UIDSize is the fixed byte length of the version tag field.
	UIDSize = 16

	payloadHeaderSize    = 57
	directorySectionSize = 132
	fileSectionSize      = 193
	symlinkSectionSize   = 166
	starterInfoSize      = 801
)

// Signature is the 8-byte sentinel ("PE3DATA\0") that marks the starter
// info record at the tail of every package. The record starts with these
// bytes.
var Signature = [8]byte{0x50, 0x45, 0x33, 0x44, 0x41, 0x54, 0x41, 0x00}

// hashSeed is the xxHash64 seed shared by section, file, and compressed
// stream hashes.
const hashSeed uint64 = 1246736989840

// Default packer tuning values.
const (
	// DefaultCompressionLevel is the default zstd level used by Pack.
	DefaultCompressionLevel = 8
	// MaxCompressionLevel is the highest accepted zstd level.
	MaxCompressionLevel = 22
	// DefaultWriteBuffer is the buffered writer size for archive appends.
	DefaultWriteBuffer = 16 * 1024 * 1024
)

// Dictionary training limits.
const (
	// dictionarySampleSize caps bytes sampled from one file.
	dictionarySampleSize = 128 * 1024
	// dictionarySampleTotal caps the aggregate training sample.
	dictionarySampleTotal = 4*1024*1024*1024 - dictionarySampleSize
	// dictionaryMinSamples is the minimum sample count required to train.
	dictionaryMinSamples = 8
	// dictionaryMaxSize caps the produced dictionary.
	dictionaryMaxSize = 128 * 1024
)

// Runtime file names created under the unpack directory.
const (
	// VersionFile is the plain-text sentinel storing the package UID.
	VersionFile = "._wrappe_uid_"
	// LockFile is the advisory cross-process lockfile.
	LockFile = "._wrappe_lock_"
)

// prefetchThreshold is the payload size above which the runner hints the
// OS to pre-populate mappings.
const prefetchThreshold = 512 * 1024 * 1024

// Unpack target roots selectable at pack time.
const (
	// UnpackTemp unpacks below the system temporary directory.
	UnpackTemp uint8 = 0
	// UnpackLocal unpacks below the user-local data directory.
	UnpackLocal uint8 = 1
	// UnpackCwd unpacks below the launch working directory.
	UnpackCwd uint8 = 2
)

// Versioning strategies.
const (
	// VersioningSideBySide keeps one UID-named subdirectory per version.
	VersioningSideBySide uint8 = 0
	// VersioningReplace shares one directory and re-extracts on UID change.
	VersioningReplace uint8 = 1
	// VersioningNone re-extracts on every launch.
	VersioningNone uint8 = 2
)

// Verification modes for existing extractions.
const (
	// VerifyNone never verifies an existing extraction.
	VerifyNone uint8 = 0
	// VerifyExistence requires every extracted entry to exist.
	VerifyExistence uint8 = 1
	// VerifyChecksum re-hashes every extracted file.
	VerifyChecksum uint8 = 2
)

// Console policies (Windows runners only).
const (
	// ConsoleHide hides the console window.
	ConsoleHide uint8 = 0
	// ConsoleShow always shows a console window.
	ConsoleShow uint8 = 1
	// ConsoleAttach attaches to the parent console when present.
	ConsoleAttach uint8 = 2
)

// Working directory policies for the entry command.
const (
	// DirLaunch inherits the launch working directory.
	DirLaunch uint8 = 0
	// DirUnpack switches into the unpack directory.
	DirUnpack uint8 = 1
	// DirRunner switches into the runner executable's parent.
	DirRunner uint8 = 2
	// DirCommand switches into the entry command's parent.
	DirCommand uint8 = 3
)

// argumentSeparator joins baked arguments inside StarterInfo.
const argumentSeparator = '\x1f'

// PayloadHeader is the packed trailer record written after the section
// table. It describes the region layout backwards from its own offset.
type PayloadHeader struct {
	// DirectorySections is the directory record count.
	DirectorySections uint64
	// FileSections is the file record count.
	FileSections uint64
	// SymlinkSections is the symlink record count.
	SymlinkSections uint64
	// DictionarySize is the dictionary region size in bytes, zero when absent.
	DictionarySize uint64
	// SectionHash is the seeded xxHash64 of the raw section table bytes.
	SectionHash uint64
	// PayloadSize is the compressed file blob region size in bytes.
	PayloadSize uint64
	// SectionsSize is the compressed section table size in bytes.
	SectionsSize uint64
	// Kind is reserved; only value 0 is defined.
	Kind uint8
}

// Records returns the total section record count.
func (h *PayloadHeader) Records() uint64 {
	return h.DirectorySections + h.FileSections + h.SymlinkSections
}

// appendTo appends the packed little-endian form of the header.
func (h *PayloadHeader) appendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, h.DirectorySections)
	dst = binary.LittleEndian.AppendUint64(dst, h.FileSections)
	dst = binary.LittleEndian.AppendUint64(dst, h.SymlinkSections)
	dst = binary.LittleEndian.AppendUint64(dst, h.DictionarySize)
	dst = binary.LittleEndian.AppendUint64(dst, h.SectionHash)
	dst = binary.LittleEndian.AppendUint64(dst, h.PayloadSize)
	dst = binary.LittleEndian.AppendUint64(dst, h.SectionsSize)
	return append(dst, h.Kind)
}

// parsePayloadHeader decodes a packed payload header.
func parsePayloadHeader(raw []byte) (PayloadHeader, error) {
	if len(raw) < payloadHeaderSize {
		return PayloadHeader{}, fmt.Errorf("%w: payload header needs %d bytes, have %d",
			ErrTruncated, payloadHeaderSize, len(raw))
	}

	return PayloadHeader{
		DirectorySections: binary.LittleEndian.Uint64(raw[0:8]),
		FileSections:      binary.LittleEndian.Uint64(raw[8:16]),
		SymlinkSections:   binary.LittleEndian.Uint64(raw[16:24]),
		DictionarySize:    binary.LittleEndian.Uint64(raw[24:32]),
		SectionHash:       binary.LittleEndian.Uint64(raw[32:40]),
		PayloadSize:       binary.LittleEndian.Uint64(raw[40:48]),
		SectionsSize:      binary.LittleEndian.Uint64(raw[48:56]),
		Kind:              raw[56],
	}, nil
}

// DirectorySection is one node of the persisted directory tree. Index 0
// is the virtual root representing the unpack directory itself.
type DirectorySection struct {
	// Name is the zero-padded directory basename.
	Name [NameSize]byte
	// Parent is the index of the parent directory record.
	Parent uint32
}

// appendTo appends the packed little-endian form of the record.
func (s *DirectorySection) appendTo(dst []byte) []byte {
	dst = append(dst, s.Name[:]...)
	return binary.LittleEndian.AppendUint32(dst, s.Parent)
}

// parseDirectorySection decodes one packed directory record.
func parseDirectorySection(raw []byte) DirectorySection {
	var s DirectorySection
	copy(s.Name[:], raw[0:NameSize])
	s.Parent = binary.LittleEndian.Uint32(raw[NameSize : NameSize+4])
	return s
}

// FileSectionHeader describes one compressed file blob and its metadata.
type FileSectionHeader struct {
	// Position is the blob offset relative to the payload region start.
	Position uint64
	// Size is the compressed blob size in bytes.
	Size uint64
	// Name is the zero-padded file basename.
	Name [NameSize]byte
	// FileHash is the seeded xxHash64 of the decompressed content.
	FileHash uint64
	// CompressedHash is the seeded xxHash64 of the compressed blob.
	CompressedHash uint64
	// TimeAccessedSeconds is the access time in Unix seconds, zero on failure.
	TimeAccessedSeconds uint64
	// TimeModifiedSeconds is the modification time in Unix seconds, zero on failure.
	TimeModifiedSeconds uint64
	// Parent is the index of the containing directory record.
	Parent uint32
	// Mode stores POSIX permission bits.
	Mode uint32
	// TimeAccessedNanos is the sub-second access time component.
	TimeAccessedNanos uint32
	// TimeModifiedNanos is the sub-second modification time component.
	TimeModifiedNanos uint32
	// Readonly is the platform-independent read-only flag.
	Readonly uint8
}

// appendTo appends the packed little-endian form of the record.
func (s *FileSectionHeader) appendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, s.Position)
	dst = binary.LittleEndian.AppendUint64(dst, s.Size)
	dst = append(dst, s.Name[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, s.FileHash)
	dst = binary.LittleEndian.AppendUint64(dst, s.CompressedHash)
	dst = binary.LittleEndian.AppendUint64(dst, s.TimeAccessedSeconds)
	dst = binary.LittleEndian.AppendUint64(dst, s.TimeModifiedSeconds)
	dst = binary.LittleEndian.AppendUint32(dst, s.Parent)
	dst = binary.LittleEndian.AppendUint32(dst, s.Mode)
	dst = binary.LittleEndian.AppendUint32(dst, s.TimeAccessedNanos)
	dst = binary.LittleEndian.AppendUint32(dst, s.TimeModifiedNanos)
	return append(dst, s.Readonly)
}

// parseFileSection decodes one packed file record.
func parseFileSection(raw []byte) FileSectionHeader {
	var s FileSectionHeader
	s.Position = binary.LittleEndian.Uint64(raw[0:8])
	s.Size = binary.LittleEndian.Uint64(raw[8:16])
	copy(s.Name[:], raw[16:16+NameSize])
	off := 16 + NameSize
	s.FileHash = binary.LittleEndian.Uint64(raw[off : off+8])
	s.CompressedHash = binary.LittleEndian.Uint64(raw[off+8 : off+16])
	s.TimeAccessedSeconds = binary.LittleEndian.Uint64(raw[off+16 : off+24])
	s.TimeModifiedSeconds = binary.LittleEndian.Uint64(raw[off+24 : off+32])
	s.Parent = binary.LittleEndian.Uint32(raw[off+32 : off+36])
	s.Mode = binary.LittleEndian.Uint32(raw[off+36 : off+40])
	s.TimeAccessedNanos = binary.LittleEndian.Uint32(raw[off+40 : off+44])
	s.TimeModifiedNanos = binary.LittleEndian.Uint32(raw[off+44 : off+48])
	s.Readonly = raw[off+48]
	return s
}

// Symlink target kinds.
const (
	// SymlinkToDirectory targets a directory record.
	SymlinkToDirectory uint8 = 0
	// SymlinkToFile targets a file record.
	SymlinkToFile uint8 = 1
)

// SymlinkSection describes one symlink by kind and target record index.
type SymlinkSection struct {
	// Name is the zero-padded link basename.
	Name [NameSize]byte
	// Parent is the index of the containing directory record.
	Parent uint32
	// Target indexes the directory array (kind 0) or file array (kind 1).
	Target uint32
	// TimeAccessedSeconds is the access time in Unix seconds, zero on failure.
	TimeAccessedSeconds uint64
	// TimeModifiedSeconds is the modification time in Unix seconds, zero on failure.
	TimeModifiedSeconds uint64
	// TimeAccessedNanos is the sub-second access time component.
	TimeAccessedNanos uint32
	// TimeModifiedNanos is the sub-second modification time component.
	TimeModifiedNanos uint32
	// Mode stores POSIX permission bits.
	Mode uint32
	// Kind selects the target array, 0 for directories and 1 for files.
	Kind uint8
	// Readonly is the platform-independent read-only flag.
	Readonly uint8
}

// appendTo appends the packed little-endian form of the record.
func (s *SymlinkSection) appendTo(dst []byte) []byte {
	dst = append(dst, s.Name[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, s.Parent)
	dst = binary.LittleEndian.AppendUint32(dst, s.Target)
	dst = binary.LittleEndian.AppendUint64(dst, s.TimeAccessedSeconds)
	dst = binary.LittleEndian.AppendUint64(dst, s.TimeModifiedSeconds)
	dst = binary.LittleEndian.AppendUint32(dst, s.TimeAccessedNanos)
	dst = binary.LittleEndian.AppendUint32(dst, s.TimeModifiedNanos)
	dst = binary.LittleEndian.AppendUint32(dst, s.Mode)
	dst = append(dst, s.Kind)
	return append(dst, s.Readonly)
}

// parseSymlinkSection decodes one packed symlink record.
func parseSymlinkSection(raw []byte) SymlinkSection {
	var s SymlinkSection
	copy(s.Name[:], raw[0:NameSize])
	off := NameSize
	s.Parent = binary.LittleEndian.Uint32(raw[off : off+4])
	s.Target = binary.LittleEndian.Uint32(raw[off+4 : off+8])
	s.TimeAccessedSeconds = binary.LittleEndian.Uint64(raw[off+8 : off+16])
	s.TimeModifiedSeconds = binary.LittleEndian.Uint64(raw[off+16 : off+24])
	s.TimeAccessedNanos = binary.LittleEndian.Uint32(raw[off+24 : off+28])
	s.TimeModifiedNanos = binary.LittleEndian.Uint32(raw[off+28 : off+32])
	s.Mode = binary.LittleEndian.Uint32(raw[off+32 : off+36])
	s.Kind = raw[off+36]
	s.Readonly = raw[off+37]
	return s
}

// nameField converts a basename string into a zero-padded fixed field.
// The caller must have validated the length against NameSize-1.
func nameField(name string) [NameSize]byte {
	var field [NameSize]byte
	copy(field[:], name)
	return field
}

// fieldString returns the string up to the first NUL of a fixed field.
func fieldString(field []byte) string {
	for i, c := range field {
		if c == 0 {
			return string(field[:i])
		}
	}

	return string(field)
}

// Callbacks carries progress reporting hooks for the compression engine.
// All callbacks may be invoked concurrently from worker goroutines; nil
// members are skipped.
type Callbacks struct {
	// Tick is called once per processed entry.
	Tick func()
	// Error is called with a message for every skipped entry.
	Error func(message string)
	// Status is called with the entry currently being processed.
	Status func(message string)
	// Info is called with informational notes outside the per-entry flow.
	Info func(message string)
}

// tick invokes the Tick callback when set.
func (c *Callbacks) tick() {
	if c != nil && c.Tick != nil {
		c.Tick()
	}
}

// errorf formats and invokes the Error callback when set.
func (c *Callbacks) errorf(format string, args ...any) {
	if c != nil && c.Error != nil {
		c.Error(fmt.Sprintf(format, args...))
	}
}

// status invokes the Status callback when set.
func (c *Callbacks) status(message string) {
	if c != nil && c.Status != nil {
		c.Status(message)
	}
}

// infof formats and invokes the Info callback when set.
func (c *Callbacks) infof(format string, args ...any) {
	if c != nil && c.Info != nil {
		c.Info(fmt.Sprintf(format, args...))
	}
}

// PackOptions configures the compression engine.
type PackOptions struct {
	// Callbacks are progress reporting hooks, safe for concurrent use.
	Callbacks Callbacks
	// Rules are ordered include/exclude patterns for source selection.
	Rules []pathrules.Rule
	// MatcherOptions control rule matching behavior.
	MatcherOptions pathrules.MatcherOptions
	// ExcludeOutput is skipped during the walk and dictionary sampling.
	// It guards against packing a package into itself.
	ExcludeOutput string
	// Level is the zstd compression level in [0, 22].
	Level int
	// Workers is the worker pool size (zero means GOMAXPROCS).
	Workers int
	// InMemoryLimit is the file size above which compression goes through
	// a scratch file. Zero derives total RAM / CPU count.
	InMemoryLimit int64
	// BuildDictionary trains a shared compression dictionary first.
	BuildDictionary bool
}

// applyDefaults fills zero-valued pack options with defaults.
func (opts *PackOptions) applyDefaults() {
	if opts.Level <= 0 {
		opts.Level = DefaultCompressionLevel
	}
	if opts.Level > MaxCompressionLevel {
		opts.Level = MaxCompressionLevel
	}

	if opts.MatcherOptions == (pathrules.MatcherOptions{}) {
		opts.MatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionInclude,
		}
	}

	if opts.MatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.MatcherOptions.DefaultAction = pathrules.ActionInclude
	}
}

// PackResult contains pack output statistics.
type PackResult struct {
	// Records is the number of directory, file, and symlink records written.
	Records int
	// Read is the number of source bytes read.
	Read int64
	// Written is the number of bytes appended to the destination.
	Written int64
}

// UnpackOptions configures the decompression engine. The caller must
// hold the unpack lockfile for the whole verify+extract sequence.
type UnpackOptions struct {
	// UID is the package version tag written to the sentinel afterwards.
	UID string
	// Verification selects the verify pass strength.
	Verification uint8
	// ShouldExtract forces extraction regardless of verification.
	ShouldExtract bool
	// Verbosity is the runner information level (0, 1, 2).
	Verbosity uint8
	// Workers is the verify/extract worker pool size (zero means GOMAXPROCS).
	Workers int
}
