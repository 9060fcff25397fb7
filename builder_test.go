// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildPackageLayout(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	output := filepath.Join(t.TempDir(), "packed-app")

	info, err := NewStarterInfo("buildUID", "myapp", "a.txt", []string{"--flag"})
	if err != nil {
		t.Fatalf("NewStarterInfo: %v", err)
	}
	info.Versioning = VersioningReplace
	info.Verification = VerifyExistence

	runner := bytes.Repeat([]byte("FAKE-RUNNER"), 128)
	result, err := BuildPackage(BuildConfig{
		Pack:        PackOptions{Level: 3},
		Source:      source,
		Output:      output,
		RunnerImage: runner,
		Info:        info,
	})
	if err != nil {
		t.Fatalf("BuildPackage: %v", err)
	}
	if result.Records == 0 {
		t.Fatal("build produced no records")
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read package: %v", err)
	}

	if !bytes.HasPrefix(data, runner) {
		t.Fatal("package does not start with the runner image")
	}

	found, start, err := FindStarterInfo(data)
	if err != nil {
		t.Fatalf("FindStarterInfo: %v", err)
	}
	if start != len(data)-starterInfoSize {
		t.Fatalf("starter info at %d, want %d", start, len(data)-starterInfoSize)
	}
	if found.UIDString() != "buildUID" {
		t.Fatalf("uid=%q, want %q", found.UIDString(), "buildUID")
	}
	if found.Versioning != VersioningReplace || found.Verification != VerifyExistence {
		t.Fatalf("policy fields lost: %+v", found)
	}
	if args := found.BakedArguments(); len(args) != 1 || args[0] != "--flag" {
		t.Fatalf("baked arguments=%q, want [--flag]", args)
	}

	// The payload before the starter info must extract cleanly.
	target := t.TempDir()
	extracted, err := Unpack(data[:start], target, UnpackOptions{
		UID:           found.UIDString(),
		ShouldExtract: true,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !extracted {
		t.Fatal("Unpack reported no extraction")
	}

	compareExtractedFile(t, target, "a.txt", []byte("hello\n"), 0o644)
	if got := ReadVersion(target); got != "buildUID" {
		t.Fatalf("version sentinel=%q, want %q", got, "buildUID")
	}
}

func TestBuildPackageRejectsEmptyRunner(t *testing.T) {
	t.Parallel()

	_, err := BuildPackage(BuildConfig{
		Source: t.TempDir(),
		Output: filepath.Join(t.TempDir(), "out"),
	})
	if err == nil {
		t.Fatal("empty runner image accepted")
	}
}

func TestGenerateUID(t *testing.T) {
	t.Parallel()

	uid, err := GenerateUID()
	if err != nil {
		t.Fatalf("GenerateUID: %v", err)
	}
	if len(uid) != 8 {
		t.Fatalf("uid length=%d, want 8", len(uid))
	}
	for _, c := range uid {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			t.Fatalf("uid %q contains non-alphanumeric %q", uid, c)
		}
	}
}
