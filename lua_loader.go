// lua_loader.go: sandboxed Lua script mods
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// LuaExtension is the file suffix of script mods.
const LuaExtension = ".lua"

// LuaLoader runs <dir>/<dir>.lua scripts in a restricted Lua state. A script
// declares a global Main table whose GameLoading, GameLoaded and GameExiting
// fields are optional functions:
//
//	Main = {}
//	function Main.GameLoaded()
//	    modloader.log("ready")
//	end
//
// modloader.restart() touches the restart flag under DataDir and returns
// true, or nil and a message when the flag cannot be written.
type LuaLoader struct {
	// DataDir is the game data directory, relative to the host working
	// directory unless absolute.
	DataDir string

	logger Logger
}

// NewLuaLoader creates a Lua loader. Script output goes to logger.
func NewLuaLoader(logger Logger) *LuaLoader {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &LuaLoader{DataDir: GameDataDir, logger: logger}
}

// Kind implements PluginLoader.
func (ll *LuaLoader) Kind() string { return "lua" }

// Extension implements PluginLoader.
func (ll *LuaLoader) Extension() string { return LuaExtension }

// Load implements PluginLoader.
func (ll *LuaLoader) Load(name, path string) (lp *LoadedPlugin, err error) {
	logger := ll.logger.With("mod", name)
	L := newSandboxedState(name, ll.DataDir, logger)
	defer func() {
		if lp == nil {
			L.Close()
		}
	}()

	if err := runProtected(func() error { return L.DoFile(path) }); err != nil {
		return nil, NewPluginLoadError(name, err).WithContext("path", path)
	}

	mainTable, ok := L.GetGlobal(EntrySymbol).(*lua.LTable)
	if !ok {
		return nil, NewPluginContractError(name, EntrySymbol)
	}

	// gopher-lua states are not goroutine safe; the lock covers callbacks
	// and Close.
	var mu sync.Mutex
	bind := func(field string) Callback {
		fn := L.GetField(mainTable, field)
		if fn.Type() != lua.LTFunction {
			return nil
		}
		return func() error {
			mu.Lock()
			defer mu.Unlock()
			return runProtected(func() error {
				return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, mainTable)
			})
		}
	}

	return &LoadedPlugin{
		Callbacks: Callbacks{
			GameLoading: bind(CallbackGameLoading),
			GameLoaded:  bind(CallbackGameLoaded),
			GameExiting: bind(CallbackGameExiting),
		},
		closer: func() error {
			mu.Lock()
			defer mu.Unlock()
			L.Close()
			return nil
		},
	}, nil
}

// newSandboxedState opens base, table, string and math only and removes the
// base functions that read code from disk or strings.
func newSandboxedState(name, dataDir string, logger Logger) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(fn, lua.LNil)
	}

	logFn := func(level string) lua.LGFunction {
		return func(L *lua.LState) int {
			parts := make([]string, 0, L.GetTop())
			for i := 1; i <= L.GetTop(); i++ {
				parts = append(parts, L.ToStringMeta(L.Get(i)).String())
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "warn":
				logger.Warn(msg)
			case "error":
				logger.Error(msg)
			default:
				logger.Info(msg)
			}
			return 0
		}
	}

	restart := func(L *lua.LState) int {
		if err := RequestRestart(dataDir); err != nil {
			logger.Warn("Restart request failed", "error", err)
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		logger.Info("Restart with mods requested")
		L.Push(lua.LTrue)
		return 1
	}

	api := L.NewTable()
	L.SetField(api, "log", L.NewFunction(logFn("info")))
	L.SetField(api, "warn", L.NewFunction(logFn("warn")))
	L.SetField(api, "error", L.NewFunction(logFn("error")))
	L.SetField(api, "restart", L.NewFunction(restart))
	L.SetField(api, "version", lua.LString(Version))
	L.SetField(api, "mod_name", lua.LString(name))
	L.SetGlobal("modloader", api)
	L.SetGlobal("print", L.NewFunction(logFn("info")))
	return L
}

// runProtected converts a Go panic raised inside the Lua VM into an error.
func runProtected(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
