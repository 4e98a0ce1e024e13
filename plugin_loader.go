// plugin_loader.go: loaders turning mod files into lifecycle callbacks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"plugin"
)

// EntrySymbol is the symbol every mod exposes.
const EntrySymbol = "Main"

// Lifecycle callback names.
const (
	CallbackGameLoading = "GameLoading"
	CallbackGameLoaded  = "GameLoaded"
	CallbackGameExiting = "GameExiting"
)

// Callback is a parameterless lifecycle callback.
type Callback func() error

// Callbacks holds the optional lifecycle callbacks of one mod. A Go mod may
// export its Main symbol as a Callbacks value directly:
//
//	var Main = modloader.Callbacks{
//	    GameLoaded: func() error { return nil },
//	}
type Callbacks struct {
	GameLoading Callback
	GameLoaded  Callback
	GameExiting Callback
}

// Get returns the callback named name, or nil.
func (c Callbacks) Get(name string) Callback {
	switch name {
	case CallbackGameLoading:
		return c.GameLoading
	case CallbackGameLoaded:
		return c.GameLoaded
	case CallbackGameExiting:
		return c.GameExiting
	}
	return nil
}

// LoadedPlugin is a mod whose entry symbol has been resolved.
type LoadedPlugin struct {
	Callbacks Callbacks
	closer    func() error
}

// Close releases the loader resources held for the mod.
func (lp *LoadedPlugin) Close() error {
	if lp == nil || lp.closer == nil {
		return nil
	}
	closer := lp.closer
	lp.closer = nil
	return closer()
}

// PluginLoader loads mods of one file kind.
type PluginLoader interface {
	// Kind names the loader in logs and plugin records.
	Kind() string
	// Extension is the file suffix of <dir>/<dir><ext>.
	Extension() string
	// Load opens path and resolves its entry symbol.
	Load(name, path string) (*LoadedPlugin, error)
}

// GoPluginLoader loads mods built with -buildmode=plugin.
type GoPluginLoader struct {
	extension string
}

// NewGoPluginLoader creates a loader for native mods with the given
// extension. An empty extension uses the platform library extension.
func NewGoPluginLoader(extension string) *GoPluginLoader {
	if extension == "" {
		extension = PlatformLibExtension()
	}
	return &GoPluginLoader{extension: extension}
}

// Kind implements PluginLoader.
func (g *GoPluginLoader) Kind() string { return "native" }

// Extension implements PluginLoader.
func (g *GoPluginLoader) Extension() string { return g.extension }

// Load implements PluginLoader. Native libraries cannot be unloaded, so the
// returned plugin holds nothing to close.
func (g *GoPluginLoader) Load(name, path string) (*LoadedPlugin, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, NewPluginLoadError(name, err).WithContext("path", path)
	}
	sym, err := p.Lookup(EntrySymbol)
	if err != nil {
		return nil, NewPluginContractError(name, EntrySymbol)
	}
	return &LoadedPlugin{Callbacks: CallbacksFromValue(sym)}, nil
}

type (
	gameLoadingFunc    interface{ GameLoading() }
	gameLoadingErrFunc interface{ GameLoading() error }
	gameLoadedFunc     interface{ GameLoaded() }
	gameLoadedErrFunc  interface{ GameLoaded() error }
	gameExitingFunc    interface{ GameExiting() }
	gameExitingErrFunc interface{ GameExiting() error }
)

// CallbacksFromValue extracts lifecycle callbacks from an entry value. The
// value may be a Callbacks (or pointer to one) or any type with GameLoading,
// GameLoaded or GameExiting methods, with or without an error result.
func CallbacksFromValue(v interface{}) Callbacks {
	switch c := v.(type) {
	case Callbacks:
		return c
	case *Callbacks:
		if c == nil {
			return Callbacks{}
		}
		return *c
	}

	var cb Callbacks
	switch h := v.(type) {
	case gameLoadingErrFunc:
		cb.GameLoading = h.GameLoading
	case gameLoadingFunc:
		cb.GameLoading = func() error { h.GameLoading(); return nil }
	}
	switch h := v.(type) {
	case gameLoadedErrFunc:
		cb.GameLoaded = h.GameLoaded
	case gameLoadedFunc:
		cb.GameLoaded = func() error { h.GameLoaded(); return nil }
	}
	switch h := v.(type) {
	case gameExitingErrFunc:
		cb.GameExiting = h.GameExiting
	case gameExitingFunc:
		cb.GameExiting = func() error { h.GameExiting(); return nil }
	}
	return cb
}
