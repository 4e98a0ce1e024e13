// plugin_loader_test.go: entry value conversion and native loading failures
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainMod struct{ calls []string }

func (p *plainMod) GameLoading() { p.calls = append(p.calls, "loading") }
func (p *plainMod) GameExiting() { p.calls = append(p.calls, "exiting") }

type erroringMod struct{}

func (erroringMod) GameLoaded() error { return fmt.Errorf("no runway") }

// TestCallbacksFromValue tests the accepted entry value shapes
func TestCallbacksFromValue(t *testing.T) {
	t.Run("CallbacksValue", func(t *testing.T) {
		called := false
		cb := CallbacksFromValue(Callbacks{GameLoaded: func() error { called = true; return nil }})
		require.NotNil(t, cb.GameLoaded)
		require.NoError(t, cb.GameLoaded())
		assert.True(t, called)
		assert.Nil(t, cb.GameLoading)
	})

	t.Run("CallbacksPointer", func(t *testing.T) {
		cb := CallbacksFromValue(&Callbacks{GameExiting: func() error { return nil }})
		assert.NotNil(t, cb.GameExiting)

		var nilPtr *Callbacks
		assert.Equal(t, Callbacks{}, CallbacksFromValue(nilPtr))
	})

	t.Run("MethodsWithoutError", func(t *testing.T) {
		mod := &plainMod{}
		cb := CallbacksFromValue(mod)
		require.NotNil(t, cb.GameLoading)
		require.NotNil(t, cb.GameExiting)
		assert.Nil(t, cb.GameLoaded)

		require.NoError(t, cb.GameLoading())
		require.NoError(t, cb.Get(CallbackGameExiting)())
		assert.Equal(t, []string{"loading", "exiting"}, mod.calls)
	})

	t.Run("MethodsWithError", func(t *testing.T) {
		cb := CallbacksFromValue(erroringMod{})
		require.NotNil(t, cb.GameLoaded)
		assert.Error(t, cb.GameLoaded())
	})

	t.Run("Unrelated", func(t *testing.T) {
		assert.Equal(t, Callbacks{}, CallbacksFromValue(42))
		assert.Nil(t, Callbacks{}.Get("Unknown"))
	})
}

// TestLoadedPlugin_Close tests that handles close once
func TestLoadedPlugin_Close(t *testing.T) {
	closes := 0
	lp := &LoadedPlugin{closer: func() error { closes++; return nil }}

	require.NoError(t, lp.Close())
	require.NoError(t, lp.Close())
	assert.Equal(t, 1, closes)

	var nilPlugin *LoadedPlugin
	assert.NoError(t, nilPlugin.Close())
}

// TestGoPluginLoader_RejectsNonPlugin tests load failure on a foreign file
func TestGoPluginLoader_RejectsNonPlugin(t *testing.T) {
	loader := NewGoPluginLoader("")
	assert.Equal(t, PlatformLibExtension(), loader.Extension())
	assert.Equal(t, "native", loader.Kind())

	path := filepath.Join(t.TempDir(), "Fake"+loader.Extension())
	require.NoError(t, os.WriteFile(path, []byte("not a shared object"), 0600))

	_, err := loader.Load("Fake", path)
	require.Error(t, err)
	assert.True(t, IsPluginLoadError(err))
}
