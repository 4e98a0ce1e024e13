// Package modloader patches a compiled game assembly with two permanent
// extension hooks and coordinates the lifecycle of separately built mods
// once the game is running.
//
// The work splits into two halves that never run in the same process:
//
// The patching engine runs offline. It opens the host module image, resolves
// a fixed table of hook sites (the version label Awake method and the quit
// routine), splices short stack-balanced instruction sequences into them,
// merges enum additions published by activated mods, and writes the module
// back. Every run is bracketed by a backup of the original file; any failure
// restores it before the error is reported.
//
//	cfg := modloader.DefaultPatchConfig()
//	cfg.SteamDirectory = "/opt/steam"
//	patcher, err := modloader.NewPatcher(cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := patcher.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The lifecycle coordinator runs inside the game, reached through the planted
// hooks. It discovers mods under the mods directory, loads each one (Go
// plugins or sandboxed Lua scripts), and drives the GameLoading, GameLoaded
// and GameExiting callbacks in a stable registry order. A failing mod is
// logged and excluded; it never stops the others.
//
//	coord := modloader.NewCoordinator(modloader.CoordinatorConfig{
//		ModsPath: "mods",
//	}, logger)
//	coord.Entry(ctx)
//	defer coord.Exit()
//
// Errors are *errors.Error values from github.com/agilira/go-errors with
// codes grouped by family; IsLookupError, IsIOError, IsWriteError,
// IsPluginLoadError and IsTimeoutError classify them.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package modloader
