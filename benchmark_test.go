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

// writeBenchTree creates a moderately sized source tree for throughput
// benchmarks.
func writeBenchTree(b *testing.B) string {
	b.Helper()

	root := b.TempDir()
	payload := bytes.Repeat([]byte("benchmark payload content "), 2048)
	for i := 0; i < 32; i++ {
		dir := filepath.Join(root, "dir"+string(rune('a'+i%8)))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.Fatalf("mkdir: %v", err)
		}

		path := filepath.Join(dir, "file"+string(rune('a'+i))+".bin")
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			b.Fatalf("write: %v", err)
		}
	}

	return root
}

func BenchmarkPack(b *testing.B) {
	source := writeBenchTree(b)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		pkg := filepath.Join(b.TempDir(), "packed")
		f, err := os.OpenFile(pkg, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			b.Fatalf("create package: %v", err)
		}

		if _, err := Pack(source, f, PackOptions{Level: 3}); err != nil {
			b.Fatalf("Pack: %v", err)
		}

		_ = f.Close()
	}
}

func BenchmarkUnpack(b *testing.B) {
	source := writeBenchTree(b)

	pkg := filepath.Join(b.TempDir(), "packed")
	f, err := os.OpenFile(pkg, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		b.Fatalf("create package: %v", err)
	}
	if _, err := Pack(source, f, PackOptions{Level: 3}); err != nil {
		b.Fatalf("Pack: %v", err)
	}
	_ = f.Close()

	data, err := os.ReadFile(pkg)
	if err != nil {
		b.Fatalf("read package: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Unpack(data, b.TempDir(), UnpackOptions{UID: "bench", ShouldExtract: true}); err != nil {
			b.Fatalf("Unpack: %v", err)
		}
	}
}
