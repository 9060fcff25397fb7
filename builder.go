// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"bufio"
	"fmt"
	"os"
)

// BuildConfig describes one package build: the decompressed runner
// image, the source tree, the output path, the runtime policy record,
// and the compression options.
type BuildConfig struct {
	// Pack configures the compression engine.
	Pack PackOptions
	// Source is the file or directory to embed.
	Source string
	// Output is the package path to create.
	Output string
	// RunnerImage is the decompressed runner executable. Windows images
	// should have their subsystem and resources spliced before the build.
	RunnerImage []byte
	// Info is the starter info record appended at the very end.
	Info StarterInfo
}

// BuildPackage writes a self-extracting package: runner image, payload
// container, and starter info record, in that order. The output file is
// made executable on POSIX.
func BuildPackage(cfg BuildConfig) (*PackResult, error) {
	if len(cfg.RunnerImage) == 0 {
		return nil, ErrNoRunnerImage
	}

	f, err := os.OpenFile(cfg.Output, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create package file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	w := bufio.NewWriterSize(f, DefaultWriteBuffer)
	if _, err := w.Write(cfg.RunnerImage); err != nil {
		return nil, fmt.Errorf("write runner image: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush runner image: %w", err)
	}

	cfg.Pack.ExcludeOutput = cfg.Output
	result, err := Pack(cfg.Source, f, cfg.Pack)
	if err != nil {
		return nil, err
	}

	if _, err := f.Write(cfg.Info.appendTo(make([]byte, 0, starterInfoSize))); err != nil {
		return nil, fmt.Errorf("write starter info: %w", err)
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync package file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close package file: %w", err)
	}
	f = nil

	if err := SetExecutable(cfg.Output); err != nil {
		return nil, fmt.Errorf("set package permissions: %w", err)
	}

	return result, nil
}
