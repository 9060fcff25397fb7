// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"bytes"
	"fmt"
	"strings"
)

// StarterInfo is the tail record carrying runtime policy for the runner.
// It starts with the package signature and is normally the last bytes of
// the file, but tools appending data after the package (code signers,
// resource editors) can push it inward; FindStarterInfo handles both.
type StarterInfo struct {
	// Signature is the fixed 8-byte package sentinel.
	Signature [8]byte
	// ShowConsole is the Windows console policy (0 hide, 1 always, 2 attach).
	ShowConsole uint8
	// CurrentDir is the working directory policy for the entry command.
	CurrentDir uint8
	// Verification is the verify pass strength for existing extractions.
	Verification uint8
	// ShowInformation is the runner logging level (0, 1, 2).
	ShowInformation uint8
	// UID is the zero-padded package version tag.
	UID [UIDSize]byte
	// UnpackTarget selects the unpack root (0 temp, 1 local data, 2 cwd).
	UnpackTarget uint8
	// Versioning is the extraction strategy (0 sidebyside, 1 replace, 2 none).
	Versioning uint8
	// Once enforces a single running instance when 1.
	Once uint8
	// NoCleanup records the cleanup policy; the runner stores but does not
	// act on it.
	NoCleanup uint8
	// WrappeFormat is the container format version byte.
	WrappeFormat uint8
	// UnpackDirectory is the zero-padded directory name under the unpack root.
	UnpackDirectory [NameSize]byte
	// Command is the zero-padded entry command path relative to the unpack
	// directory.
	Command [NameSize]byte
	// Arguments are the baked arguments joined with the 0x1F separator.
	Arguments [ArgsSize]byte
}

// appendTo appends the packed form of the record.
func (s *StarterInfo) appendTo(dst []byte) []byte {
	dst = append(dst, s.Signature[:]...)
	dst = append(dst, s.ShowConsole, s.CurrentDir, s.Verification, s.ShowInformation)
	dst = append(dst, s.UID[:]...)
	dst = append(dst, s.UnpackTarget, s.Versioning, s.Once, s.NoCleanup, s.WrappeFormat)
	dst = append(dst, s.UnpackDirectory[:]...)
	dst = append(dst, s.Command[:]...)
	return append(dst, s.Arguments[:]...)
}

// parseStarterInfo decodes a packed starter info record.
func parseStarterInfo(raw []byte) (StarterInfo, error) {
	if len(raw) < starterInfoSize {
		return StarterInfo{}, fmt.Errorf("%w: starter info needs %d bytes, have %d",
			ErrTruncated, starterInfoSize, len(raw))
	}

	var s StarterInfo
	copy(s.Signature[:], raw[0:8])
	s.ShowConsole = raw[8]
	s.CurrentDir = raw[9]
	s.Verification = raw[10]
	s.ShowInformation = raw[11]
	copy(s.UID[:], raw[12:12+UIDSize])
	off := 12 + UIDSize
	s.UnpackTarget = raw[off]
	s.Versioning = raw[off+1]
	s.Once = raw[off+2]
	s.NoCleanup = raw[off+3]
	s.WrappeFormat = raw[off+4]
	off += 5
	copy(s.UnpackDirectory[:], raw[off:off+NameSize])
	off += NameSize
	copy(s.Command[:], raw[off:off+NameSize])
	off += NameSize
	copy(s.Arguments[:], raw[off:off+ArgsSize])
	return s, nil
}

// UIDString returns the version tag up to its first NUL.
func (s *StarterInfo) UIDString() string {
	return fieldString(s.UID[:])
}

// UnpackDirectoryString returns the unpack directory name.
func (s *StarterInfo) UnpackDirectoryString() string {
	return fieldString(s.UnpackDirectory[:])
}

// CommandString returns the entry command path.
func (s *StarterInfo) CommandString() string {
	return fieldString(s.Command[:])
}

// BakedArguments splits the stored arguments on the unit separator,
// trimming whitespace and dropping empty entries.
func (s *StarterInfo) BakedArguments() []string {
	raw := fieldString(s.Arguments[:])
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, string(rune(argumentSeparator)))
	args := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			args = append(args, part)
		}
	}

	return args
}

// FindStarterInfo locates and validates the starter info record inside a
// mapped package image. The tail offset is the fast path; when trailing
// data hides it, the last signature occurrence in the image is used.
// It returns the record and its byte offset.
func FindStarterInfo(image []byte) (StarterInfo, int, error) {
	if len(image) < starterInfoSize {
		return StarterInfo{}, 0, fmt.Errorf("%w: file is too small (%d < %d)",
			ErrTruncated, len(image), starterInfoSize)
	}

	start := len(image) - starterInfoSize
	if !bytes.Equal(image[start:start+8], Signature[:]) {
		pos := bytes.LastIndex(image, Signature[:])
		if pos < 0 {
			return StarterInfo{}, 0, ErrSignatureNotFound
		}

		start = pos
	}

	if start+starterInfoSize > len(image) {
		return StarterInfo{}, 0, fmt.Errorf("%w: starter info at %d exceeds image size %d",
			ErrTruncated, start, len(image))
	}

	info, err := parseStarterInfo(image[start : start+starterInfoSize])
	if err != nil {
		return StarterInfo{}, 0, err
	}

	if info.Signature != Signature {
		return StarterInfo{}, 0, ErrInvalidSignature
	}
	if info.WrappeFormat != FormatVersion {
		return StarterInfo{}, 0, fmt.Errorf("%w: runner version (%d) differs from package version (%d)",
			ErrFormatMismatch, FormatVersion, info.WrappeFormat)
	}

	return info, start, nil
}

// NewStarterInfo builds a starter info record from validated strings.
// UID, directory, command, and argument lengths are checked against the
// fixed field sizes.
func NewStarterInfo(uid, unpackDirectory, command string, arguments []string) (StarterInfo, error) {
	info := StarterInfo{
		Signature:    Signature,
		WrappeFormat: FormatVersion,
	}

	if len(uid) > UIDSize {
		return info, fmt.Errorf("%w: %q", ErrUIDTooLong, uid)
	}
	copy(info.UID[:], uid)

	if len(unpackDirectory) >= NameSize {
		return info, fmt.Errorf("%w: unpack directory %q", ErrNameTooLong, unpackDirectory)
	}
	copy(info.UnpackDirectory[:], unpackDirectory)

	if len(command) >= NameSize {
		return info, fmt.Errorf("%w: command %q", ErrNameTooLong, command)
	}
	copy(info.Command[:], command)

	joined := strings.Join(arguments, string(rune(argumentSeparator)))
	if len(joined) >= ArgsSize {
		return info, fmt.Errorf("%w: %d bytes", ErrArgumentsTooLong, len(joined))
	}
	copy(info.Arguments[:], joined)

	return info, nil
}
