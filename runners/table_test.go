// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package runners

import (
	"bytes"
	"errors"
	"testing"
)

func buildTestTable(t *testing.T) *Table {
	t.Helper()

	blob, err := Build([]Image{
		{Name: "x86_64-unknown-linux-gnu", Data: bytes.Repeat([]byte("LINUX"), 64)},
		{Name: "x86_64-pc-windows-msvc", Data: bytes.Repeat([]byte("WINDOWS"), 64)},
		{Name: "aarch64-apple-darwin", Data: bytes.Repeat([]byte("DARWIN"), 64)},
	}, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	table, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	return table
}

func TestTableRoundTrip(t *testing.T) {
	t.Parallel()

	table := buildTestTable(t)

	keys := table.Keys()
	if len(keys) != 3 || keys[0] != "x86_64-unknown-linux-gnu" {
		t.Fatalf("keys=%q", keys)
	}

	image, err := table.Runner("x86_64-pc-windows-msvc")
	if err != nil {
		t.Fatalf("Runner: %v", err)
	}
	if !bytes.Equal(image, bytes.Repeat([]byte("WINDOWS"), 64)) {
		t.Fatal("decompressed image differs from input")
	}
}

func TestTableResolve(t *testing.T) {
	t.Parallel()

	table := buildTestTable(t)

	testCases := []struct {
		name    string
		query   string
		want    string
		wantErr error
	}{
		{name: "native", query: "native", want: "x86_64-unknown-linux-gnu"},
		{name: "default", query: "default", want: "x86_64-unknown-linux-gnu"},
		{name: "exact", query: "aarch64-apple-darwin", want: "aarch64-apple-darwin"},
		{name: "substring", query: "windows", want: "x86_64-pc-windows-msvc"},
		{name: "ambiguous", query: "x86_64", wantErr: ErrAmbiguousRunner},
		{name: "missing", query: "riscv", wantErr: ErrRunnerNotFound},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := table.Resolve(tc.query)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err=%v, want %v", err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Resolve(%q)=%q, want %q", tc.query, got, tc.want)
			}
		})
	}
}

func TestParseEmptyTable(t *testing.T) {
	t.Parallel()

	blob, err := Build(nil, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	table, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Keys()) != 0 {
		t.Fatalf("keys=%q, want none", table.Keys())
	}

	if _, err := table.Resolve("native"); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("err=%v, want ErrEmptyTable", err)
	}
}

func TestParseMalformedTable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		blob []byte
	}{
		{name: "short", blob: []byte("WR")},
		{name: "bad magic", blob: []byte("NOPE\x00\x00\x00\x00")},
		{name: "truncated entry", blob: []byte("WRTBL\x00\x01\x00\x05name")},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Parse(tc.blob); !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("err=%v, want ErrInvalidTable", err)
			}
		})
	}
}
