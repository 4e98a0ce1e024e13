// cmd/mll/main.go: in-game runtime library called by the planted hooks
//
// Build with -buildmode=plugin. The entry hook calls Entry(debug) once the
// version label is awake, the quit hook calls Exit before the host quits,
// and the interception library forwards host sites through Fire. GameLoaded
// runs on the host thread when the load-complete site fires.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"path/filepath"
	"sync"

	modloader "github.com/agilira/aceo-modloader"
)

const (
	modsDir = "mods"
	logFile = "MLLoutput.log"
)

var (
	mu          sync.Mutex
	coordinator *modloader.Coordinator
	cancel      context.CancelFunc
)

// Entry starts the runtime. Later calls are ignored.
func Entry(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	if coordinator != nil {
		return
	}

	var logger modloader.Logger = modloader.DefaultLogger()
	zl, err := modloader.NewZapLogger(modloader.ZapLoggerConfig{
		FilePath: filepath.Join(modloader.DefaultInjectorOptions("").CompanionDir, logFile),
		Debug:    debug,
	})
	if err == nil {
		logger = zl
	}

	coordinator = modloader.NewCoordinator(modloader.CoordinatorConfig{ModsPath: modsDir}, logger)

	var ctx context.Context
	ctx, cancel = context.WithCancel(context.Background())
	if err := coordinator.Entry(ctx); err != nil {
		logger.Error("Mod loader runtime failed to start", "error", err)
	}
}

// Fire runs the handlers registered for a host site and returns the
// rewritten text.
func Fire(site, text string) string {
	mu.Lock()
	c := coordinator
	mu.Unlock()
	if c == nil {
		return text
	}
	out, _ := c.Intercepts().Fire(modloader.Site(site), text)
	return out
}

// Exit runs GameExiting on every loaded mod and releases the runtime.
func Exit() {
	mu.Lock()
	defer mu.Unlock()
	if coordinator == nil {
		return
	}
	cancel()
	coordinator.Exit()
	coordinator = nil
}

// main is unused when built as a plugin.
func main() {}
