// activation.go: decides which mod directories are active
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
)

// DisabledMarker is a file that deactivates the mod directory containing it.
const DisabledMarker = ".disabled"

// ActivationSet reports whether a mod directory under modsRoot is active.
type ActivationSet interface {
	IsActive(modsRoot, name string) bool
}

// ActivationList activates the named mods, or every mod when the list is
// empty. A directory holding DisabledMarker is never active.
type ActivationList struct {
	all   bool
	names map[string]struct{}
}

// NewActivationList creates an activation list from mod names.
func NewActivationList(names []string) *ActivationList {
	a := &ActivationList{
		all:   len(names) == 0,
		names: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		a.names[n] = struct{}{}
	}
	return a
}

// IsActive implements ActivationSet.
func (a *ActivationList) IsActive(modsRoot, name string) bool {
	if _, err := os.Stat(filepath.Join(modsRoot, name, DisabledMarker)); err == nil {
		return false
	}
	if a.all {
		return true
	}
	_, ok := a.names[name]
	return ok
}
