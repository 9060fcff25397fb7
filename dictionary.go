// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// trainDictionary builds a shared compression dictionary from the
// leading bytes of the given regular files. Paths must already be
// sorted and must not include the output file. It returns nil when too
// few samples exist or the produced dictionary exceeds the format cap;
// both are soft conditions reported through the info callback.
func trainDictionary(paths []string, callbacks *Callbacks) ([]byte, error) {
	samples := make([][]byte, 0, len(paths))
	var total int64

	for _, path := range paths {
		if total >= dictionarySampleTotal {
			break
		}

		sample, err := sampleFile(path)
		if err != nil {
			callbacks.errorf("couldn't sample %s: %v", path, err)
			continue
		}
		if len(sample) == 0 {
			continue
		}

		samples = append(samples, sample)
		total += int64(len(sample))
	}

	if len(samples) < dictionaryMinSamples {
		callbacks.infof("not enough samples for a dictionary (%d < %d), skipping",
			len(samples), dictionaryMinSamples)
		return nil, nil
	}

	dict, err := zstd.BuildDict(zstd.BuildDictOptions{
		ID:       uint32(hashSeed & 0x7fffffff),
		Contents: samples,
	})
	if err != nil {
		// Degenerate corpora (too uniform, too small) can defeat the
		// builder; pack without a dictionary instead of aborting.
		callbacks.infof("couldn't build a dictionary: %v", err)
		return nil, nil
	}

	if len(dict) > dictionaryMaxSize {
		callbacks.infof("trained dictionary exceeds %d bytes, skipping", dictionaryMaxSize)
		return nil, nil
	}

	return dict, nil
}

// sampleFile reads up to the per-file sample cap from one file.
func sampleFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sample := make([]byte, dictionarySampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	return sample[:n], nil
}
