// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package pe

import (
	"encoding/binary"
	"errors"
	"testing"
)

// makeTestImage builds a tiny synthetic PE32+ image with one .text
// section and, optionally, a .rsrc section at rsrcVA carrying region.
func makeTestImage(t *testing.T, rsrcVA uint32, region []byte) []byte {
	t.Helper()

	const (
		headersSize = 0x400
		textRaw     = 0x400
		textRawSize = 0x200
	)

	sections := 1
	if region != nil {
		sections = 2
	}

	size := textRaw + textRawSize
	rsrcRaw := size
	if region != nil {
		size += (len(region) + 0x1ff) &^ 0x1ff
	}

	img := make([]byte, size)
	img[0] = 'M'
	img[1] = 'Z'
	binary.LittleEndian.PutUint32(img[0x3c:], 64)

	// PE signature and COFF header.
	copy(img[64:], "PE\x00\x00")
	coff := 68
	binary.LittleEndian.PutUint16(img[coff:], 0x8664)
	binary.LittleEndian.PutUint16(img[coff+2:], uint16(sections))
	binary.LittleEndian.PutUint16(img[coff+16:], 240) // PE32+ optional header

	// Optional header.
	opt := coff + 20
	binary.LittleEndian.PutUint16(img[opt:], 0x20b)
	binary.LittleEndian.PutUint32(img[opt+32:], 0x1000) // SectionAlignment
	binary.LittleEndian.PutUint32(img[opt+36:], 0x200)  // FileAlignment
	binary.LittleEndian.PutUint32(img[opt+56:], 0x2000) // SizeOfImage
	binary.LittleEndian.PutUint32(img[opt+60:], headersSize)
	binary.LittleEndian.PutUint16(img[opt+68:], SubsystemGUI)
	binary.LittleEndian.PutUint32(img[opt+108:], 16) // NumberOfRvaAndSizes

	// Section table.
	table := opt + 240
	text := img[table : table+40]
	copy(text[0:8], ".text\x00\x00\x00")
	binary.LittleEndian.PutUint32(text[8:], 0x100)
	binary.LittleEndian.PutUint32(text[12:], 0x1000)
	binary.LittleEndian.PutUint32(text[16:], textRawSize)
	binary.LittleEndian.PutUint32(text[20:], textRaw)

	if region != nil {
		rsrc := img[table+40 : table+80]
		copy(rsrc[0:8], ".rsrc\x00\x00\x00")
		binary.LittleEndian.PutUint32(rsrc[8:], uint32(len(region)))
		binary.LittleEndian.PutUint32(rsrc[12:], rsrcVA)
		binary.LittleEndian.PutUint32(rsrc[16:], uint32((len(region)+0x1ff)&^0x1ff))
		binary.LittleEndian.PutUint32(rsrc[20:], uint32(rsrcRaw))

		dir := opt + 112 + resourceDirIndex*8
		binary.LittleEndian.PutUint32(img[dir:], rsrcVA)
		binary.LittleEndian.PutUint32(img[dir+4:], uint32(len(region)))

		copy(img[rsrcRaw:], region)
	}

	return img
}

// makeTestResourceRegion builds a one-entry resource tree whose data
// entry points at rsrcVA+0x40.
func makeTestResourceRegion(rsrcVA uint32) []byte {
	region := make([]byte, 0x48)
	binary.LittleEndian.PutUint16(region[14:], 1) // one id entry

	entry := region[16:24]
	binary.LittleEndian.PutUint32(entry[0:], 3)    // RT_ICON
	binary.LittleEndian.PutUint32(entry[4:], 0x20) // data entry offset

	data := region[0x20:0x30]
	binary.LittleEndian.PutUint32(data[0:], rsrcVA+0x40)
	binary.LittleEndian.PutUint32(data[4:], 8)

	copy(region[0x40:], "ICONDATA")
	return region
}

func TestSubsystemRoundTrip(t *testing.T) {
	t.Parallel()

	img := makeTestImage(t, 0, nil)

	got, err := Subsystem(img)
	if err != nil {
		t.Fatalf("Subsystem: %v", err)
	}
	if got != SubsystemGUI {
		t.Fatalf("subsystem=%d, want %d", got, SubsystemGUI)
	}

	if err := SetSubsystem(img, SubsystemConsole); err != nil {
		t.Fatalf("SetSubsystem: %v", err)
	}

	got, err = Subsystem(img)
	if err != nil {
		t.Fatalf("Subsystem: %v", err)
	}
	if got != SubsystemConsole {
		t.Fatalf("subsystem=%d, want %d", got, SubsystemConsole)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Subsystem([]byte("not an executable")); !errors.Is(err, ErrNotPE) {
		t.Fatalf("err=%v, want ErrNotPE", err)
	}
	if _, err := Subsystem(nil); !errors.Is(err, ErrNotPE) {
		t.Fatalf("err=%v, want ErrNotPE", err)
	}
}

func TestCopyResources(t *testing.T) {
	t.Parallel()

	const sourceRVA = 0x3000
	source := makeTestImage(t, sourceRVA, makeTestResourceRegion(sourceRVA))
	target := makeTestImage(t, 0, nil)

	out, err := CopyResources(target, source)
	if err != nil {
		t.Fatalf("CopyResources: %v", err)
	}

	img, err := parse(out)
	if err != nil {
		t.Fatalf("parse spliced image: %v", err)
	}
	if img.sectionCount != 2 {
		t.Fatalf("section count=%d, want 2", img.sectionCount)
	}

	dirOffset := img.dataDirOffset(resourceDirIndex)
	newRVA := binary.LittleEndian.Uint32(out[dirOffset:])
	if newRVA != 0x2000 {
		t.Fatalf("resource directory RVA=%#x, want 0x2000", newRVA)
	}

	// Locate the appended section and check the rebased data entry.
	header := img.section(1)
	rawOffset := binary.LittleEndian.Uint32(header[20:])
	region := out[rawOffset:]

	dataEntry := binary.LittleEndian.Uint32(region[16+4:])
	dataRVA := binary.LittleEndian.Uint32(region[dataEntry:])
	want := newRVA + 0x40
	if dataRVA != want {
		t.Fatalf("data entry RVA=%#x, want %#x", dataRVA, want)
	}

	if string(region[0x40:0x48]) != "ICONDATA" {
		t.Fatalf("resource payload lost: %q", region[0x40:0x48])
	}
}

func TestCopyResourcesWithoutSource(t *testing.T) {
	t.Parallel()

	target := makeTestImage(t, 0, nil)
	source := makeTestImage(t, 0, nil)

	if _, err := CopyResources(target, source); !errors.Is(err, ErrNoResources) {
		t.Fatalf("err=%v, want ErrNoResources", err)
	}
}
