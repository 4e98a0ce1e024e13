// module_reader.go: module handles, assembly resolution and atomic writes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

var (
	errModuleDisposed   = errors.New("module has been disposed")
	errInspectionModule = errors.New("module was opened for inspection only")
)

// ReadOptions controls ModuleReader.Open.
type ReadOptions struct {
	// Resolver checks the module's assembly references after reading.
	// Unresolved references are logged, not fatal.
	Resolver *AssemblyResolver

	// InspectionOnly reads the module without taking an exclusive handle.
	// Inspection modules cannot be written.
	InspectionOnly bool
}

// ModuleReader opens module images and tracks exclusive handles on them.
//
// A path can be held by one live Module at a time. The handle is released by
// Module.Dispose; until then, opening or writing the same path fails.
type ModuleReader struct {
	logger Logger

	mu      sync.Mutex
	handles map[string]*Module
}

// NewModuleReader creates a reader. A nil logger is replaced by DefaultLogger.
func NewModuleReader(logger Logger) *ModuleReader {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &ModuleReader{
		logger:  logger,
		handles: make(map[string]*Module),
	}
}

// Open reads and decodes the module image at path.
func (r *ModuleReader) Open(path string, opts ReadOptions) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, NewModuleReadError(path, err)
	}

	if !opts.InspectionOnly {
		r.mu.Lock()
		if _, held := r.handles[abs]; held {
			r.mu.Unlock()
			return nil, NewModuleInUseError(abs)
		}
		// Reserve the slot before reading so concurrent opens fail fast.
		r.handles[abs] = nil
		r.mu.Unlock()
	}

	m, err := r.decodeFile(abs)
	if err != nil {
		if !opts.InspectionOnly {
			r.release(abs)
		}
		return nil, err
	}
	m.path = abs
	m.inspection = opts.InspectionOnly

	if !opts.InspectionOnly {
		m.reader = r
		r.mu.Lock()
		r.handles[abs] = m
		r.mu.Unlock()
	}

	if missing := m.ResolveReferences(opts.Resolver); len(missing) > 0 {
		r.logger.Warn("Unresolved assembly references",
			"module", m.Name,
			"missing", missing)
	}

	r.logger.Debug("Module opened",
		"path", abs,
		"types", len(m.Types),
		"inspection", opts.InspectionOnly)
	return m, nil
}

func (r *ModuleReader) decodeFile(path string) (*Module, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the configured host assembly or a mod library
	if err != nil {
		return nil, NewModuleReadError(path, err)
	}
	if !IsModuleImage(data) {
		return nil, NewBadModuleFormatError(path, nil)
	}
	m, err := DecodeModule(data)
	if err != nil {
		return nil, NewBadModuleFormatError(path, err)
	}
	return m, nil
}

// IsHeld reports whether a live handle exists for path.
func (r *ModuleReader) IsHeld(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.handles[abs]
	return held
}

func (r *ModuleReader) release(abs string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, abs)
}

// Write serializes the module to path through a temporary file and an
// atomic rename. Writing to a path held by a live handle, including this
// module's own source, fails with a WriteError.
func (m *Module) Write(path string) error {
	if m.disposed {
		return NewWriteError(path, errModuleDisposed)
	}
	if m.inspection {
		return NewWriteError(path, errInspectionModule)
	}
	if m.reader != nil && m.reader.IsHeld(path) {
		return NewWriteError(path, NewModuleInUseError(path))
	}

	data := EncodeModule(m)
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return NewWriteError(path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return NewWriteError(path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return NewWriteError(path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return NewWriteError(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return NewWriteError(path, err)
	}
	return nil
}

// Dispose releases the module's handle. Calling it more than once is a no-op.
func (m *Module) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	if m.reader != nil {
		m.reader.release(m.path)
	}
}

// AssemblyResolver locates referenced assemblies in an ordered list of
// search directories. Resolved modules are cached and never hold handles.
type AssemblyResolver struct {
	reader    *ModuleReader
	extension string
	dirs      []string

	mu    sync.Mutex
	cache map[string]*Module
}

// NewAssemblyResolver creates a resolver looking for <dir>/<name><extension>.
func NewAssemblyResolver(reader *ModuleReader, extension string, dirs ...string) *AssemblyResolver {
	return &AssemblyResolver{
		reader:    reader,
		extension: extension,
		dirs:      dirs,
		cache:     make(map[string]*Module),
	}
}

// AddSearchDirectory appends dir to the search path.
func (a *AssemblyResolver) AddSearchDirectory(dir string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirs = append(a.dirs, dir)
}

// Resolve returns the module for assembly name.
func (a *AssemblyResolver) Resolve(name string) (*Module, error) {
	a.mu.Lock()
	if m, ok := a.cache[name]; ok {
		a.mu.Unlock()
		return m, nil
	}
	dirs := append([]string(nil), a.dirs...)
	a.mu.Unlock()

	for _, dir := range dirs {
		candidate := filepath.Join(dir, name+a.extension)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		m, err := a.reader.Open(candidate, ReadOptions{InspectionOnly: true})
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.cache[name] = m
		a.mu.Unlock()
		return m, nil
	}
	return nil, NewSymbolNotFoundError("assembly", name)
}
