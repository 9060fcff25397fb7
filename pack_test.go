// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/pathrules"
)

// testRunnerPrefix stands in for a runner executable image.
var testRunnerPrefix = []byte("RUNNER-IMAGE-PREFIX-")

// writeTestTree creates a small source tree with nested directories, an
// empty directory, mixed permissions, and a file symlink.
func writeTestTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "a.txt"), []byte("hello\n"), 0o644)

	if err := os.MkdirAll(filepath.Join(root, "b", "d"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	blob := make([]byte, 256)
	for i := range blob {
		blob[i] = byte(i*7 + 13)
	}
	writeTestFile(t, filepath.Join(root, "b", "c.bin"), blob, 0o644)
	writeTestFile(t, filepath.Join(root, "b", "d", "e.txt"), bytes.Repeat([]byte("data"), 512), 0o644)
	writeTestFile(t, filepath.Join(root, "locked.bin"), []byte("restricted"), 0o640)
	writeTestFile(t, filepath.Join(root, "real.txt"), []byte("x"), 0o644)

	if err := os.Mkdir(filepath.Join(root, "emptydir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink("real.txt", filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink("b", filepath.Join(root, "dirlink")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	return root
}

func writeTestFile(t *testing.T, path string, data []byte, mode os.FileMode) {
	t.Helper()

	if err := os.WriteFile(path, data, mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
}

// packToFile packs source into a temp package file behind the fake
// runner prefix and returns the package bytes.
func packToFile(t *testing.T, source string, opts PackOptions) (*PackResult, []byte) {
	t.Helper()

	pkg := filepath.Join(t.TempDir(), "packed")
	f, err := os.OpenFile(pkg, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(testRunnerPrefix); err != nil {
		t.Fatalf("write runner prefix: %v", err)
	}

	result, err := Pack(source, f, opts)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	data, err := os.ReadFile(pkg)
	if err != nil {
		t.Fatalf("read package: %v", err)
	}

	return result, data
}

// compareExtractedFile checks one extracted file against expected
// content and permissions.
func compareExtractedFile(t *testing.T, dir, rel string, want []byte, mode os.FileMode) {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(rel))
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read extracted %s: %v", rel, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("extracted %s differs from source (%d vs %d bytes)", rel, len(got), len(want))
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat extracted %s: %v", rel, err)
	}
	if fi.Mode().Perm() != mode {
		t.Fatalf("extracted %s mode=%o, want %o", rel, fi.Mode().Perm(), mode)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	result, data := packToFile(t, source, PackOptions{Level: 3})

	// 3 directories + 5 files + 2 symlinks.
	if result.Records != 10 {
		t.Fatalf("records=%d, want 10", result.Records)
	}
	if result.Read == 0 || result.Written == 0 {
		t.Fatalf("result counters are empty: %+v", result)
	}

	target := t.TempDir()
	extracted, err := Unpack(data, target, UnpackOptions{
		UID:           "testuid1",
		ShouldExtract: true,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !extracted {
		t.Fatal("Unpack reported no extraction")
	}

	compareExtractedFile(t, target, "a.txt", []byte("hello\n"), 0o644)
	compareExtractedFile(t, target, "locked.bin", []byte("restricted"), 0o640)
	compareExtractedFile(t, target, "real.txt", []byte("x"), 0o644)

	blob := make([]byte, 256)
	for i := range blob {
		blob[i] = byte(i*7 + 13)
	}
	compareExtractedFile(t, target, "b/c.bin", blob, 0o644)
	compareExtractedFile(t, target, "b/d/e.txt", bytes.Repeat([]byte("data"), 512), 0o644)

	if fi, err := os.Stat(filepath.Join(target, "emptydir")); err != nil || !fi.IsDir() {
		t.Fatalf("empty directory was not recreated: %v", err)
	}

	link := filepath.Join(target, "link")
	if fi, err := os.Lstat(link); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("link was not recreated as a symlink: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatalf("resolve link: %v", err)
	}
	wantTarget, err := filepath.EvalSymlinks(filepath.Join(target, "real.txt"))
	if err != nil {
		t.Fatalf("resolve link target: %v", err)
	}
	if resolved != wantTarget {
		t.Fatalf("link resolves to %s, want %s", resolved, wantTarget)
	}

	dirLink := filepath.Join(target, "dirlink")
	if fi, err := os.Lstat(dirLink); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("dirlink was not recreated as a symlink: %v", err)
	}
	resolvedDir, err := filepath.EvalSymlinks(dirLink)
	if err != nil {
		t.Fatalf("resolve dirlink: %v", err)
	}
	wantDir, err := filepath.EvalSymlinks(filepath.Join(target, "b"))
	if err != nil {
		t.Fatalf("resolve dirlink target: %v", err)
	}
	if resolvedDir != wantDir {
		t.Fatalf("dirlink resolves to %s, want %s", resolvedDir, wantDir)
	}

	if got := ReadVersion(target); got != "testuid1" {
		t.Fatalf("version sentinel=%q, want %q", got, "testuid1")
	}
}

func TestPackSingleFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "only.bin"), []byte("single file payload"), 0o644)

	_, data := packToFile(t, filepath.Join(root, "only.bin"), PackOptions{Level: 3})

	target := t.TempDir()
	if _, err := Unpack(data, target, UnpackOptions{UID: "u", ShouldExtract: true}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	compareExtractedFile(t, target, "only.bin", []byte("single file payload"), 0o644)
}

func TestPackExcludeRules(t *testing.T) {
	t.Parallel()

	source := writeTestTree(t)
	_, data := packToFile(t, source, PackOptions{
		Level: 3,
		Rules: []pathrules.Rule{{Action: pathrules.ActionExclude, Pattern: "b"}},
	})

	target := t.TempDir()
	if _, err := Unpack(data, target, UnpackOptions{UID: "u", ShouldExtract: true}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "a.txt")); err != nil {
		t.Fatalf("included file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "b")); !os.IsNotExist(err) {
		t.Fatalf("excluded subtree was extracted: %v", err)
	}
}

func TestPackSkipsOversizeNames(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "short.txt"), []byte("kept"), 0o644)

	long := make([]byte, NameSize)
	for i := range long {
		long[i] = 'n'
	}
	writeTestFile(t, filepath.Join(root, string(long)), []byte("dropped"), 0o644)

	var skipped []string
	result, data := packToFile(t, root, PackOptions{
		Level: 3,
		Callbacks: Callbacks{
			Error: func(message string) { skipped = append(skipped, message) },
		},
	})

	if result.Records != 1 {
		t.Fatalf("records=%d, want 1", result.Records)
	}
	if len(skipped) == 0 {
		t.Fatal("no error callback for the oversize name")
	}

	target := t.TempDir()
	if _, err := Unpack(data, target, UnpackOptions{UID: "u", ShouldExtract: true}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	compareExtractedFile(t, target, "short.txt", []byte("kept"), 0o644)
}

func TestPackWithDictionary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for i := 0; i < 12; i++ {
		name := filepath.Join(root, "sample"+string(rune('a'+i))+".json")
		writeTestFile(t, name, bytes.Repeat([]byte(`{"key":"value","flag":true}`), 64), 0o644)
	}

	// Training may be skipped when the corpus is too uniform; the round
	// trip must succeed either way.
	_, data := packToFile(t, root, PackOptions{Level: 3, BuildDictionary: true})

	target := t.TempDir()
	if _, err := Unpack(data, target, UnpackOptions{UID: "u", ShouldExtract: true}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	compareExtractedFile(t, target, "samplea.json",
		bytes.Repeat([]byte(`{"key":"value","flag":true}`), 64), 0o644)
}
