// plugin_registry.go: append-only registry of loaded mods
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sync"
	"time"

	timecache "github.com/agilira/go-timecache"
)

// PluginRecord is a mod whose GameLoading callback completed.
type PluginRecord struct {
	Name      string
	Path      string
	Kind      string
	Handle    *LoadedPlugin
	LoadedAt  time.Time
	Callbacks Callbacks
}

// PluginRegistry keeps loaded mods in load order. Records are never removed
// while the registry lives; Close releases their handles at teardown.
type PluginRegistry struct {
	mu      sync.RWMutex
	records []PluginRecord
}

// NewPluginRegistry creates an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

// Add appends a record for a loaded mod, stamping LoadedAt when unset.
func (r *PluginRegistry) Add(name, path, kind string, lp *LoadedPlugin) PluginRecord {
	rec := PluginRecord{
		Name:     name,
		Path:     path,
		Kind:     kind,
		Handle:   lp,
		LoadedAt: timecache.CachedTime(),
	}
	if lp != nil {
		rec.Callbacks = lp.Callbacks
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return rec
}

// Records returns a copy of the records in load order.
func (r *PluginRegistry) Records() []PluginRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PluginRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Names returns the mod names in load order.
func (r *PluginRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.records))
	for i, rec := range r.records {
		names[i] = rec.Name
	}
	return names
}

// Len returns the number of loaded mods.
func (r *PluginRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Close releases every handle in load order and returns the errors keyed by
// mod name.
func (r *PluginRegistry) Close() map[string]error {
	r.mu.RLock()
	records := make([]PluginRecord, len(r.records))
	copy(records, r.records)
	r.mu.RUnlock()

	var errs map[string]error
	for _, rec := range records {
		if err := rec.Handle.Close(); err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[rec.Name] = err
		}
	}
	return errs
}
