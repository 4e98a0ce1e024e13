// intercept.go: explicit registration of host interception handlers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sync"
)

// Site identifies a host method an intercept handler is attached to.
type Site string

// Sites the runtime attaches to.
const (
	SiteVersionLabel Site = "GameVersionLabelUI.Awake:postfix"
	SiteLoadComplete Site = "Game.LoadComplete"
	SiteQuitGame     Site = "Utils.QuitGame:prefix"
)

// InterceptEvent is passed to every handler of a fired site. Text carries
// the value a postfix may rewrite, such as the version label.
type InterceptEvent struct {
	Site Site
	Text string
}

// InterceptHandler handles a fired site.
type InterceptHandler func(ev *InterceptEvent) error

// InterceptInstaller registers its handlers on a registry.
type InterceptInstaller interface {
	InstallIntercepts(r *InterceptRegistry) error
}

type namedHandler struct {
	name    string
	handler InterceptHandler
}

// InterceptRegistry maps each Site to an ordered list of named handlers.
// Handlers are only ever added through Register or Install.
type InterceptRegistry struct {
	mu       sync.RWMutex
	handlers map[Site][]namedHandler
	logger   Logger
}

// NewInterceptRegistry creates an empty registry.
func NewInterceptRegistry(logger Logger) *InterceptRegistry {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &InterceptRegistry{
		handlers: make(map[Site][]namedHandler),
		logger:   logger,
	}
}

// Register appends handler to site under name. Names are unique per site.
func (r *InterceptRegistry) Register(site Site, name string, handler InterceptHandler) error {
	if handler == nil {
		return NewPluginContractError(name, string(site))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handlers[site] {
		if h.name == name {
			return NewSymbolAmbiguousError("intercept", string(site)+"/"+name, 2)
		}
	}
	r.handlers[site] = append(r.handlers[site], namedHandler{name: name, handler: handler})
	r.logger.Debug("Intercept registered", "site", string(site), "handler", name)
	return nil
}

// Install lets installer register its handlers.
func (r *InterceptRegistry) Install(installer InterceptInstaller) error {
	return installer.InstallIntercepts(r)
}

// Handlers returns the handler names of site in registration order.
func (r *InterceptRegistry) Handlers(site Site) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers[site]))
	for _, h := range r.handlers[site] {
		names = append(names, h.name)
	}
	return names
}

// Fire runs the handlers of site in registration order on an event seeded
// with text and returns the final text. A failing or panicking handler is
// logged and the remaining handlers still run.
func (r *InterceptRegistry) Fire(site Site, text string) (string, []error) {
	r.mu.RLock()
	handlers := make([]namedHandler, len(r.handlers[site]))
	copy(handlers, r.handlers[site])
	r.mu.RUnlock()

	ev := &InterceptEvent{Site: site, Text: text}
	var errs []error
	for _, h := range handlers {
		h := h
		err := invokeIsolated(r.logger, h.name, string(site), func() error {
			return h.handler(ev)
		})
		if err != nil {
			r.logger.Warn("Intercept handler failed",
				"site", string(site),
				"handler", h.name,
				"error", err)
			errs = append(errs, err)
		}
	}
	return ev.Text, errs
}
