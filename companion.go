// companion.go: stages the runtime libraries next to the game
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
)

// CompanionFiles returns the runtime library file names the hooks load.
func CompanionFiles(opts InjectorOptions) []string {
	return []string{
		opts.LoaderLibrary + opts.Extension,
		opts.InterceptLibrary + opts.Extension,
	}
}

// StageCompanions recreates <gameDir>/<CompanionDir> and copies the runtime
// libraries from sourceDir into it. Every source must exist before anything
// in the game directory is touched.
func StageCompanions(sourceDir, gameDir string, opts InjectorOptions, logger Logger) error {
	if logger == nil {
		logger = DefaultLogger()
	}

	files := CompanionFiles(opts)
	for _, name := range files {
		src := filepath.Join(sourceDir, name)
		if _, err := os.Stat(src); err != nil {
			logger.Error("Runtime library missing; reinstall the mod loader", "path", src)
			return NewCompanionMissingError(src)
		}
	}

	target := filepath.Join(gameDir, opts.CompanionDir)
	if err := os.RemoveAll(target); err != nil {
		return NewDirectoryError(target, err)
	}
	if err := os.MkdirAll(target, 0750); err != nil {
		return NewDirectoryError(target, err)
	}

	for _, name := range files {
		src := filepath.Join(sourceDir, name)
		dst := filepath.Join(target, name)
		if err := copyFile(src, dst); err != nil {
			return NewDirectoryError(dst, err)
		}
		logger.Debug("Runtime library staged", "file", dst)
	}
	return nil
}
