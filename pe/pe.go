// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

// Package pe implements the minimal PE image surgery the packer needs
// for Windows runners: reading and switching the subsystem, and
// splicing the resource section (icons, version info) from the entry
// command into the runner image. It is not a general PE editor; images
// it cannot represent are reported as errors so the packer can fall
// back to the unmodified runner.
package pe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Subsystem values used by the packer's console policy.
const (
	// SubsystemGUI is IMAGE_SUBSYSTEM_WINDOWS_GUI.
	SubsystemGUI uint16 = 2
	// SubsystemConsole is IMAGE_SUBSYSTEM_WINDOWS_CUI.
	SubsystemConsole uint16 = 3
)

// Sentinel errors for PE operations. Use errors.Is in callers.
var (
	// ErrNotPE means the image has no valid DOS/PE header chain.
	ErrNotPE = errors.New("not a PE image")
	// ErrNoResources means the source image carries no resource directory.
	ErrNoResources = errors.New("image has no resource directory")
	// ErrNoHeaderRoom means the target has no room for another section header.
	ErrNoHeaderRoom = errors.New("no room for an additional section header")
)

// Header geometry constants.
const (
	dosLfanewOffset   = 0x3c
	coffHeaderSize    = 20
	sectionHeaderSize = 40
	magicPE32         = 0x10b
	magicPE32Plus     = 0x20b
	resourceDirIndex  = 2
	subdirFlag        = 0x80000000
)

// image holds parsed offsets into a PE byte slice.
type image struct {
	data []byte
	// peOffset is the position of the "PE\0\0" signature.
	peOffset int
	// optOffset is the position of the optional header.
	optOffset int
	// optSize is the declared optional header size.
	optSize int
	// pe32Plus reports the PE32+ optional header format.
	pe32Plus bool
	// sections is the position of the section table.
	sections int
	// sectionCount is the declared section count.
	sectionCount int
}

// parse validates the header chain and records the layout offsets.
func parse(data []byte) (*image, error) {
	if len(data) < dosLfanewOffset+4 || data[0] != 'M' || data[1] != 'Z' {
		return nil, ErrNotPE
	}

	peOffset := int(binary.LittleEndian.Uint32(data[dosLfanewOffset:]))
	if peOffset+4+coffHeaderSize > len(data) {
		return nil, ErrNotPE
	}
	if data[peOffset] != 'P' || data[peOffset+1] != 'E' || data[peOffset+2] != 0 || data[peOffset+3] != 0 {
		return nil, ErrNotPE
	}

	coff := peOffset + 4
	sectionCount := int(binary.LittleEndian.Uint16(data[coff+2:]))
	optSize := int(binary.LittleEndian.Uint16(data[coff+16:]))
	optOffset := coff + coffHeaderSize
	if optOffset+optSize > len(data) || optSize < 70 {
		return nil, ErrNotPE
	}

	magic := binary.LittleEndian.Uint16(data[optOffset:])
	if magic != magicPE32 && magic != magicPE32Plus {
		return nil, ErrNotPE
	}

	sections := optOffset + optSize
	if sections+sectionCount*sectionHeaderSize > len(data) {
		return nil, ErrNotPE
	}

	return &image{
		data:         data,
		peOffset:     peOffset,
		optOffset:    optOffset,
		optSize:      optSize,
		pe32Plus:     magic == magicPE32Plus,
		sections:     sections,
		sectionCount: sectionCount,
	}, nil
}

// dataDirOffset returns the byte offset of a data directory entry, or
// -1 when the directory table does not reach the index.
func (img *image) dataDirOffset(index int) int {
	countOffset := img.optOffset + 92
	dirsOffset := img.optOffset + 96
	if img.pe32Plus {
		countOffset = img.optOffset + 108
		dirsOffset = img.optOffset + 112
	}

	count := int(binary.LittleEndian.Uint32(img.data[countOffset:]))
	if index >= count {
		return -1
	}

	offset := dirsOffset + index*8
	if offset+8 > img.sections {
		return -1
	}

	return offset
}

// section returns the bounds of section header i.
func (img *image) section(i int) []byte {
	start := img.sections + i*sectionHeaderSize
	return img.data[start : start+sectionHeaderSize]
}

// Subsystem reads the image subsystem field.
func Subsystem(data []byte) (uint16, error) {
	img, err := parse(data)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(img.data[img.optOffset+68:]), nil
}

// SetSubsystem writes the image subsystem field in place.
func SetSubsystem(data []byte, subsystem uint16) error {
	img, err := parse(data)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(img.data[img.optOffset+68:], subsystem)
	return nil
}

// resourceSection extracts the raw resource region and its RVA from an
// image's resource data directory.
func (img *image) resourceSection() ([]byte, uint32, error) {
	dirOffset := img.dataDirOffset(resourceDirIndex)
	if dirOffset < 0 {
		return nil, 0, ErrNoResources
	}

	dirRVA := binary.LittleEndian.Uint32(img.data[dirOffset:])
	dirSize := binary.LittleEndian.Uint32(img.data[dirOffset+4:])
	if dirRVA == 0 || dirSize == 0 {
		return nil, 0, ErrNoResources
	}

	for i := 0; i < img.sectionCount; i++ {
		header := img.section(i)
		va := binary.LittleEndian.Uint32(header[12:])
		virtualSize := binary.LittleEndian.Uint32(header[8:])
		raw := binary.LittleEndian.Uint32(header[20:])
		rawSize := binary.LittleEndian.Uint32(header[16:])

		if dirRVA < va || dirRVA-va >= virtualSize {
			continue
		}

		start := int(raw) + int(dirRVA-va)
		size := int(dirSize)
		if start+size > len(img.data) {
			available := len(img.data) - start
			if available <= 0 || int(rawSize) < int(dirRVA-va) {
				return nil, 0, fmt.Errorf("%w: resource region out of file bounds", ErrNotPE)
			}
			size = available
		}

		region := make([]byte, dirSize)
		copy(region, img.data[start:start+size])
		return region, dirRVA, nil
	}

	return nil, 0, ErrNoResources
}

// rebaseResourceTree walks a resource directory tree and shifts every
// data entry RVA by delta. Offsets inside the tree are section-relative
// and stay untouched.
func rebaseResourceTree(region []byte, offset int, delta int64, depth int) error {
	if depth > 32 {
		return fmt.Errorf("%w: resource tree too deep", ErrNotPE)
	}
	if offset+16 > len(region) {
		return fmt.Errorf("%w: resource directory out of bounds", ErrNotPE)
	}

	named := int(binary.LittleEndian.Uint16(region[offset+12:]))
	ids := int(binary.LittleEndian.Uint16(region[offset+14:]))
	entries := offset + 16

	for i := 0; i < named+ids; i++ {
		entry := entries + i*8
		if entry+8 > len(region) {
			return fmt.Errorf("%w: resource entry out of bounds", ErrNotPE)
		}

		target := binary.LittleEndian.Uint32(region[entry+4:])
		if target&subdirFlag != 0 {
			if err := rebaseResourceTree(region, int(target&^uint32(subdirFlag)), delta, depth+1); err != nil {
				return err
			}

			continue
		}

		if int(target)+16 > len(region) {
			return fmt.Errorf("%w: resource data entry out of bounds", ErrNotPE)
		}

		dataRVA := binary.LittleEndian.Uint32(region[target:])
		binary.LittleEndian.PutUint32(region[target:], uint32(int64(dataRVA)+delta))
	}

	return nil
}

// align rounds value up to the next multiple of alignment.
func align(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}

	return (value + alignment - 1) &^ (alignment - 1)
}

// CopyResources returns a copy of target with the resource section of
// source appended as a new section and the resource data directory
// repointed at it. The source resource tree is rebased to the new RVA.
func CopyResources(target, source []byte) ([]byte, error) {
	srcImg, err := parse(source)
	if err != nil {
		return nil, err
	}

	region, oldRVA, err := srcImg.resourceSection()
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(target))
	copy(out, target)
	img, err := parse(out)
	if err != nil {
		return nil, err
	}

	dirOffset := img.dataDirOffset(resourceDirIndex)
	if dirOffset < 0 {
		return nil, fmt.Errorf("%w: target has no resource directory slot", ErrNotPE)
	}

	sectionAlignment := binary.LittleEndian.Uint32(out[img.optOffset+32:])
	fileAlignment := binary.LittleEndian.Uint32(out[img.optOffset+36:])
	sizeOfHeaders := binary.LittleEndian.Uint32(out[img.optOffset+60:])

	tableEnd := img.sections + (img.sectionCount+1)*sectionHeaderSize
	if tableEnd > int(sizeOfHeaders) {
		return nil, ErrNoHeaderRoom
	}

	// Place the new section after the highest mapped address.
	var imageEnd uint32
	for i := 0; i < img.sectionCount; i++ {
		header := img.section(i)
		va := binary.LittleEndian.Uint32(header[12:])
		virtualSize := binary.LittleEndian.Uint32(header[8:])
		if end := va + virtualSize; end > imageEnd {
			imageEnd = end
		}
	}
	newRVA := align(imageEnd, sectionAlignment)

	if err := rebaseResourceTree(region, 0, int64(newRVA)-int64(oldRVA), 0); err != nil {
		return nil, err
	}

	rawOffset := align(uint32(len(out)), fileAlignment)
	rawSize := align(uint32(len(region)), fileAlignment)

	header := img.section(img.sectionCount)
	for i := range header {
		header[i] = 0
	}
	copy(header[0:8], ".rsrc\x00\x00\x00")
	binary.LittleEndian.PutUint32(header[8:], uint32(len(region)))
	binary.LittleEndian.PutUint32(header[12:], newRVA)
	binary.LittleEndian.PutUint32(header[16:], rawSize)
	binary.LittleEndian.PutUint32(header[20:], rawOffset)
	// IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_MEM_READ
	binary.LittleEndian.PutUint32(header[36:], 0x40000040)

	binary.LittleEndian.PutUint16(out[img.peOffset+4+2:], uint16(img.sectionCount+1))
	binary.LittleEndian.PutUint32(out[dirOffset:], newRVA)
	binary.LittleEndian.PutUint32(out[dirOffset+4:], uint32(len(region)))
	binary.LittleEndian.PutUint32(out[img.optOffset+56:],
		align(newRVA+uint32(len(region)), sectionAlignment))

	padded := make([]byte, rawOffset+rawSize)
	copy(padded, out)
	copy(padded[rawOffset:], region)

	return padded, nil
}
