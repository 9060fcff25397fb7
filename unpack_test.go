// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// extractOnce unpacks a package for a verification scenario.
func extractOnce(t *testing.T, data []byte, target, uid string) {
	t.Helper()

	extracted, err := Unpack(data, target, UnpackOptions{UID: uid, ShouldExtract: true})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !extracted {
		t.Fatal("Unpack reported no extraction")
	}
}

func TestUnpackIdempotentRerun(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	_, data := packToFile(t, source, PackOptions{Level: 3})

	target := t.TempDir()
	extractOnce(t, data, target, "uid1")

	// Sentinel matches and the verify pass succeeds: no re-extraction.
	extracted, err := Unpack(data, target, UnpackOptions{
		UID:          "uid1",
		Verification: VerifyExistence,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if extracted {
		t.Fatal("intact extraction was redone")
	}

	extracted, err = Unpack(data, target, UnpackOptions{
		UID:          "uid1",
		Verification: VerifyChecksum,
	})
	if err != nil {
		t.Fatalf("Unpack with checksum verification: %v", err)
	}
	if extracted {
		t.Fatal("checksum-clean extraction was redone")
	}
}

func TestUnpackSelfHealsMissingFile(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	_, data := packToFile(t, source, PackOptions{Level: 3})

	target := t.TempDir()
	extractOnce(t, data, target, "uid1")

	if err := os.Remove(filepath.Join(target, "a.txt")); err != nil {
		t.Fatalf("remove extracted file: %v", err)
	}

	extracted, err := Unpack(data, target, UnpackOptions{
		UID:          "uid1",
		Verification: VerifyExistence,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !extracted {
		t.Fatal("missing file did not trigger re-extraction")
	}

	compareExtractedFile(t, target, "a.txt", []byte("hello\n"), 0o644)
}

func TestUnpackDetectsCorruptedFile(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	_, data := packToFile(t, source, PackOptions{Level: 3})

	target := t.TempDir()
	extractOnce(t, data, target, "uid1")

	// Same size, different content: existence passes, checksum heals.
	if err := os.WriteFile(filepath.Join(target, "a.txt"), []byte("HELLO\n"), 0o644); err != nil {
		t.Fatalf("corrupt extracted file: %v", err)
	}

	extracted, err := Unpack(data, target, UnpackOptions{
		UID:          "uid1",
		Verification: VerifyExistence,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if extracted {
		t.Fatal("existence verification noticed a content change")
	}

	extracted, err = Unpack(data, target, UnpackOptions{
		UID:          "uid1",
		Verification: VerifyChecksum,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !extracted {
		t.Fatal("checksum verification missed a content change")
	}

	compareExtractedFile(t, target, "a.txt", []byte("hello\n"), 0o644)
}

func TestUnpackDetectsPayloadTamper(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	_, data := packToFile(t, source, PackOptions{Level: 3})

	// First payload byte sits right after the runner prefix.
	tampered := make([]byte, len(data))
	copy(tampered, data)
	tampered[len(testRunnerPrefix)] ^= 0xff

	target := t.TempDir()
	if _, err := Unpack(tampered, target, UnpackOptions{UID: "u", ShouldExtract: true}); err == nil {
		t.Fatal("tampered payload extracted without error")
	}
}

func TestUnpackDetectsSectionTamper(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	_, data := packToFile(t, source, PackOptions{Level: 3})

	tampered := make([]byte, len(data))
	copy(tampered, data)
	// Flip the stored section hash itself; the raw table no longer matches.
	sectionHashOffset := len(data) - payloadHeaderSize + 32
	tampered[sectionHashOffset] ^= 0xff

	target := t.TempDir()
	_, err := Unpack(tampered, target, UnpackOptions{UID: "u", ShouldExtract: true})
	if !errors.Is(err, ErrSectionHashMismatch) {
		t.Fatalf("err=%v, want ErrSectionHashMismatch", err)
	}
}

func TestUnpackTruncated(t *testing.T) {
	t.Parallel()

	if _, err := Unpack(make([]byte, 8), t.TempDir(), UnpackOptions{ShouldExtract: true}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v, want ErrTruncated", err)
	}
}

func TestUnpackVerifiesSymlinks(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	_, data := packToFile(t, source, PackOptions{Level: 3})

	target := t.TempDir()
	extractOnce(t, data, target, "uid1")

	// Repoint the link outside the unpack directory.
	link := filepath.Join(target, "link")
	if err := os.Remove(link); err != nil {
		t.Fatalf("remove link: %v", err)
	}
	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	extracted, err := Unpack(data, target, UnpackOptions{
		UID:          "uid1",
		Verification: VerifyExistence,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !extracted {
		t.Fatal("escaping symlink did not trigger re-extraction")
	}

	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatalf("resolve healed link: %v", err)
	}
	want, err := filepath.EvalSymlinks(filepath.Join(target, "real.txt"))
	if err != nil {
		t.Fatalf("resolve expected target: %v", err)
	}
	if resolved != want {
		t.Fatalf("healed link resolves to %s, want %s", resolved, want)
	}
}
