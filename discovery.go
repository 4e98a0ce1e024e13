// discovery.go: mod directory discovery
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
	"strings"
)

// ModCandidate is a mod directory holding a file one of the loaders accepts.
type ModCandidate struct {
	Name   string
	Path   string
	Loader PluginLoader
}

// DiscoverMods lists the subdirectories of modsPath in name order and
// returns one candidate per active mod that contains <dir>/<dir><ext> for
// one of loaders, tried in order. Directories without such a file, inactive
// mods and unsafe names are skipped; only an unreadable modsPath is an error.
func DiscoverMods(modsPath string, loaders []PluginLoader, active ActivationSet, logger Logger) ([]ModCandidate, error) {
	if logger == nil {
		logger = DefaultLogger()
	}

	entries, err := os.ReadDir(modsPath)
	if err != nil {
		return nil, NewDirectoryError(modsPath, err)
	}

	var candidates []ModCandidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if err := validateModName(name); err != nil {
			logger.Warn("Skipping mod with unsafe name", "mod", name, "error", err)
			continue
		}
		if active != nil && !active.IsActive(modsPath, name) {
			logger.Debug("Skipping inactive mod", "mod", name)
			continue
		}

		candidate, ok := findModFile(modsPath, name, loaders)
		if !ok {
			logger.Debug("No loadable file in mod directory", "mod", name)
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func findModFile(modsPath, name string, loaders []PluginLoader) (ModCandidate, bool) {
	dir := filepath.Join(modsPath, name)
	for _, l := range loaders {
		path := filepath.Join(dir, name+l.Extension())
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return ModCandidate{Name: name, Path: path, Loader: l}, true
	}
	return ModCandidate{}, false
}

// validateModName rejects directory names that could escape the mods root
// or carry shell metacharacters into log output and file paths.
func validateModName(name string) error {
	if err := checkPathTraversalPatterns(name); err != nil {
		return err
	}
	if err := checkControlCharacters(name); err != nil {
		return err
	}
	return checkDangerousPatterns(name)
}

func checkPathTraversalPatterns(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return NewUnsafeModNameError(name, "path traversal").
			WithContext("validation_type", "path_traversal_check")
	}
	if strings.ContainsAny(name, `/\`) {
		return NewUnsafeModNameError(name, "path separator").
			WithContext("invalid_characters", "path_separators")
	}
	return nil
}

func checkControlCharacters(name string) error {
	for _, r := range name {
		if r < 32 || r == 127 {
			return NewUnsafeModNameError(name, "control character").
				WithContext("control_character_code", r).
				WithContext("validation_type", "control_character_check")
		}
	}
	return nil
}

// Brackets and parentheses are common in mod folder names and allowed.
func checkDangerousPatterns(name string) error {
	for _, pattern := range []string{"~", "|", "&", ";", "$", "`", "<", ">"} {
		if strings.Contains(name, pattern) {
			return NewUnsafeModNameError(name, "dangerous character").
				WithContext("dangerous_character", pattern).
				WithContext("validation_type", "dangerous_character_check")
		}
	}
	return nil
}
