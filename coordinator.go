// coordinator.go: in-game plugin lifecycle coordination
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// CoordinatorState is the lifecycle phase of a Coordinator.
type CoordinatorState int

// Coordinator states.
const (
	StateIdle CoordinatorState = iota
	StateDiscovering
	StateLoading
	StateReady
	StateUnloading
)

func (s CoordinatorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// ModsPath is scanned for <dir>/<dir><ext>. Created when missing.
	ModsPath string

	// ActiveMods restricts loading to the named mods; empty loads all.
	// Activation, when set, replaces it.
	ActiveMods []string
	Activation ActivationSet

	// Loaders are tried in order for each mod directory. Defaults to a
	// native loader for the platform extension followed by the Lua loader.
	Loaders []PluginLoader
}

// Coordinator discovers, loads and drives the lifecycle callbacks of mods
// inside the host process. It is the one context object the hooks talk to:
// the entry hook calls Entry, the load-complete site NotifyLoadComplete and
// the quit hook Exit.
type Coordinator struct {
	cfg        CoordinatorConfig
	logger     Logger
	registry   *PluginRegistry
	intercepts *InterceptRegistry

	// lifecycle is held while mod callbacks run so phases never overlap.
	lifecycle sync.Mutex

	mu    sync.Mutex
	state CoordinatorState

	ready       chan struct{}
	readyOnce   sync.Once
	exitOnce    sync.Once
	loadedCount int
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(cfg CoordinatorConfig, logger Logger) *Coordinator {
	if logger == nil {
		logger = DefaultLogger()
	}
	if len(cfg.Loaders) == 0 {
		cfg.Loaders = []PluginLoader{
			NewGoPluginLoader(""),
			NewLuaLoader(logger),
		}
	}
	if cfg.Activation == nil {
		cfg.Activation = NewActivationList(cfg.ActiveMods)
	}
	return &Coordinator{
		cfg:        cfg,
		logger:     logger,
		registry:   NewPluginRegistry(),
		intercepts: NewInterceptRegistry(logger),
		ready:      make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s CoordinatorState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("Coordinator state changed", "from", prev.String(), "to", s.String())
}

// Registry returns the loaded mods.
func (c *Coordinator) Registry() *PluginRegistry { return c.registry }

// Intercepts returns the interception registry the runtime fires.
func (c *Coordinator) Intercepts() *InterceptRegistry { return c.intercepts }

// LoadedCount returns the number of mods whose GameLoading succeeded.
func (c *Coordinator) LoadedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedCount
}

// VersionLabel is the suffix appended to the game's version label.
func (c *Coordinator) VersionLabel() string {
	return fmt.Sprintf("\nModLoader %s with %d mods loaded.", Version, c.LoadedCount())
}

// InstallIntercepts implements InterceptInstaller.
func (c *Coordinator) InstallIntercepts(r *InterceptRegistry) error {
	if err := r.Register(SiteVersionLabel, "modloader.version-label", func(ev *InterceptEvent) error {
		ev.Text += c.VersionLabel()
		return nil
	}); err != nil {
		return err
	}
	return r.Register(SiteLoadComplete, "modloader.load-complete", func(*InterceptEvent) error {
		c.NotifyLoadComplete()
		c.runGameLoaded()
		return nil
	})
}

// Entry discovers and loads mods, invoking GameLoading for each. A mod that
// fails to load, lacks its entry symbol or fails in GameLoading is logged
// and left out; the remaining mods still load. Calling Entry again after a
// successful run does nothing.
func (c *Coordinator) Entry(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Entry called again; ignoring", "state", state.String())
		return nil
	}
	c.state = StateDiscovering
	c.mu.Unlock()

	c.logger.Info("Starting mod loader runtime", "version", Version)
	if err := c.intercepts.Install(c); err != nil {
		c.logger.Warn("Could not register intercepts", "error", err)
	}

	if err := os.MkdirAll(c.cfg.ModsPath, 0750); err != nil {
		c.setState(StateIdle)
		return NewDirectoryError(c.cfg.ModsPath, err)
	}

	candidates, err := DiscoverMods(c.cfg.ModsPath, c.cfg.Loaders, c.cfg.Activation, c.logger)
	if err != nil {
		c.setState(StateIdle)
		return err
	}
	c.logger.Debug("Mods discovered", "count", len(candidates))

	c.setState(StateLoading)
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("Mod loading interrupted", "error", err)
			break
		}
		c.loadOne(cand)
	}

	c.logger.Info("Mod loading finished", "loaded", c.LoadedCount(), "discovered", len(candidates))
	return nil
}

func (c *Coordinator) loadOne(cand ModCandidate) {
	logger := c.logger.With("mod", cand.Name)
	logger.Info("Loading mod", "path", cand.Path, "kind", cand.Loader.Kind())

	var lp *LoadedPlugin
	err := invokeIsolated(logger, cand.Name, "load", func() error {
		var loadErr error
		lp, loadErr = cand.Loader.Load(cand.Name, cand.Path)
		return loadErr
	})
	if err != nil {
		logger.Error("Mod failed to load", "error", err)
		return
	}

	if cb := lp.Callbacks.GameLoading; cb != nil {
		if err := invokeIsolated(logger, cand.Name, CallbackGameLoading, cb); err != nil {
			logger.Error("Mod failed during GameLoading", "error", err)
			if cerr := lp.Close(); cerr != nil {
				logger.Debug("Closing failed mod", "error", cerr)
			}
			return
		}
	}

	c.registry.Add(cand.Name, cand.Path, cand.Loader.Kind(), lp)
	c.mu.Lock()
	c.loadedCount++
	c.mu.Unlock()
	logger.Info("Mod loaded")
}

// NotifyLoadComplete signals that the host finished loading. Only the
// first call has an effect.
func (c *Coordinator) NotifyLoadComplete() {
	c.readyOnce.Do(func() {
		c.logger.Debug("Host load complete")
		close(c.ready)
	})
}

// AwaitReady blocks until NotifyLoadComplete, then invokes GameLoaded on
// every loaded mod in load order. GameLoaded runs at most once whichever
// path triggers it.
func (c *Coordinator) AwaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ready:
	}
	c.runGameLoaded()
	return nil
}

// runGameLoaded moves Loading to Ready and invokes GameLoaded. The state
// transition is the once guard: a call outside the loading phase leaves
// GameLoaded available to a later trigger.
func (c *Coordinator) runGameLoaded() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state != StateLoading {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Load complete outside loading phase", "state", state.String())
		return
	}
	c.state = StateReady
	c.mu.Unlock()

	c.invokeAll(CallbackGameLoaded)
}

// ContinueWhenReady waits for readiness on a separate goroutine and then
// runs GameLoaded, for hosts that cannot block in Entry. Exit waits for a
// GameLoaded pass already in progress.
func (c *Coordinator) ContinueWhenReady(ctx context.Context) {
	SafeGo(c.logger, func() {
		if err := c.AwaitReady(ctx); err != nil {
			c.logger.Debug("Stopped waiting for host readiness", "error", err)
		}
	})
}

// Exit invokes GameExiting on every loaded mod in load order, releases the
// mod handles and closes the logger when it holds resources. Exit on an
// idle coordinator does nothing.
func (c *Coordinator) Exit() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() == StateIdle {
		return
	}
	c.exitOnce.Do(func() {
		c.setState(StateUnloading)
		c.invokeAll(CallbackGameExiting)

		for name, err := range c.registry.Close() {
			c.logger.Warn("Mod handle did not close cleanly", "mod", name, "error", err)
		}

		c.logger.Info("Exiting Airport CEO...")
		c.setState(StateIdle)
		if closer, ok := c.logger.(io.Closer); ok {
			_ = closer.Close()
		}
	})
}

func (c *Coordinator) invokeAll(callback string) {
	for _, rec := range c.registry.Records() {
		cb := rec.Callbacks.Get(callback)
		if cb == nil {
			c.logger.Debug("Mod has no callback; skipping", "mod", rec.Name, "callback", callback)
			continue
		}
		if err := invokeIsolated(c.logger, rec.Name, callback, cb); err != nil {
			c.logger.Error("Mod callback failed", "mod", rec.Name, "callback", callback, "error", err)
		}
	}
}
