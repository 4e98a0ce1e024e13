// launcher_test.go: game launch, supervision and runtime library staging
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess reports running for a fixed number of liveness checks.
type fakeProcess struct {
	mu         sync.Mutex
	aliveTicks int
	checkErr   error
}

func (p *fakeProcess) PID() int32 { return 4242 }

func (p *fakeProcess) Running() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checkErr != nil {
		return false, p.checkErr
	}
	if p.aliveTicks < 0 {
		return true, nil
	}
	p.aliveTicks--
	return p.aliveTicks >= 0, nil
}

// fakeFinder finds proc after misses failed lookups. A nil proc is never found.
type fakeFinder struct {
	mu     sync.Mutex
	misses int
	proc   GameProcess
	names  []string
}

func (f *fakeFinder) Find(name string) (GameProcess, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	if f.proc == nil {
		return nil, false, nil
	}
	if f.misses > 0 {
		f.misses--
		return nil, false, fmt.Errorf("process table busy")
	}
	return f.proc, true, nil
}

// recordingStarter captures launch commands.
type recordingStarter struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingStarter) start(ctx context.Context, dir, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{dir, name}, args...))
	return r.err
}

func (r *recordingStarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func launcherConfig(t *testing.T) *PatchConfig {
	t.Helper()
	cfg := DefaultPatchConfig()
	cfg.SteamDirectory = filepath.Join("opt", "steam")
	cfg.GameDirectory = t.TempDir()
	cfg.Launch.PollAttempts = 3
	cfg.Launch.PollInterval = time.Millisecond
	cfg.Launch.ExitPollInterval = time.Millisecond
	cfg.Launch.ExitTimeout = timeoutShort
	return &cfg
}

// TestLauncher_Command tests the per-platform Steam invocation
func TestLauncher_Command(t *testing.T) {
	cfg := launcherConfig(t)
	steam := filepath.Join("opt", "steam")
	launch := []string{"-applaunch", SteamAppID}

	cases := []struct {
		goos string
		name string
		args []string
	}{
		{"windows", filepath.Join(steam, "Steam.exe"), launch},
		{"linux", filepath.Join(steam, "steam.sh"), launch},
		{"darwin", "open", append([]string{"-a", filepath.Join(steam, "Steam.app"), "--args"}, launch...)},
	}
	for _, tc := range cases {
		t.Run(tc.goos, func(t *testing.T) {
			name, args := NewLauncher(cfg, nil, WithGOOS(tc.goos)).Command()
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.args, args)
		})
	}

	t.Run("DarwinAppBundle", func(t *testing.T) {
		bundle := *cfg
		bundle.SteamDirectory = "/Applications/Steam.app"
		_, args := NewLauncher(&bundle, nil, WithGOOS("darwin")).Command()
		assert.Equal(t, "/Applications/Steam.app", args[1])
	})
}

// TestLauncher_Launch tests command start and failure reporting
func TestLauncher_Launch(t *testing.T) {
	cfg := launcherConfig(t)
	starter := &recordingStarter{}
	l := NewLauncher(cfg, NewTestLogger(), WithGOOS("linux"), WithCommandStarter(starter.start))

	require.NoError(t, l.Launch(context.Background()))
	require.Equal(t, 1, starter.count())
	assert.Equal(t, []string{cfg.GamePath(), filepath.Join("opt", "steam", "steam.sh"), "-applaunch", SteamAppID}, starter.calls[0])

	starter.err = fmt.Errorf("exec format error")
	err := l.Launch(context.Background())
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeLaunchFailed))
}

// TestLauncher_WaitForGameExit tests discovery polling and liveness polling
// Covers: found then exits, never found, timeout, lookup errors, cancellation
func TestLauncher_WaitForGameExit(t *testing.T) {
	t.Run("ExitsAfterRunning", func(t *testing.T) {
		cfg := launcherConfig(t)
		finder := &fakeFinder{misses: 1, proc: &fakeProcess{aliveTicks: 3}}
		logger := NewTestLogger()
		l := NewLauncher(cfg, logger, WithProcessFinder(finder))

		require.NoError(t, l.WaitForGameExit(context.Background()))
		assert.Equal(t, []string{GameName, GameName}, finder.names)
		assert.True(t, logger.HasMessage("INFO", "Found game process. Waiting until exit."))
		assert.True(t, logger.HasMessage("INFO", "Game exited"))
	})

	t.Run("NeverFound", func(t *testing.T) {
		cfg := launcherConfig(t)
		finder := &fakeFinder{}
		logger := NewTestLogger()
		l := NewLauncher(cfg, logger, WithProcessFinder(finder))

		err := l.WaitForGameExit(context.Background())
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeGameNotFound))
		assert.False(t, IsTimeoutError(err))
		assert.Len(t, finder.names, cfg.Launch.PollAttempts)
		assert.True(t, logger.HasMessage("ERROR", "Game was not launched"))
	})

	t.Run("TimesOut", func(t *testing.T) {
		cfg := launcherConfig(t)
		cfg.Launch.ExitTimeout = 20 * time.Millisecond
		l := NewLauncher(cfg, nil, WithProcessFinder(&fakeFinder{proc: &fakeProcess{aliveTicks: -1}}))

		err := l.WaitForGameExit(context.Background())
		require.Error(t, err)
		assert.True(t, IsTimeoutError(err))
	})

	t.Run("LivenessErrorMeansExit", func(t *testing.T) {
		cfg := launcherConfig(t)
		proc := &fakeProcess{checkErr: fmt.Errorf("no such process")}
		l := NewLauncher(cfg, nil, WithProcessFinder(&fakeFinder{proc: proc}))

		assert.NoError(t, l.WaitForGameExit(context.Background()))
	})

	t.Run("Cancelled", func(t *testing.T) {
		cfg := launcherConfig(t)
		l := NewLauncher(cfg, nil, WithProcessFinder(&fakeFinder{proc: &fakeProcess{aliveTicks: -1}}))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := l.WaitForGameExit(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// TestLauncher_ConsumeRestartFlag tests the relaunch request file
func TestLauncher_ConsumeRestartFlag(t *testing.T) {
	cfg := launcherConfig(t)
	l := NewLauncher(cfg, nil)
	flag := filepath.Join(cfg.GamePath(), GameDataDir, RestartFlag)
	require.NoError(t, os.MkdirAll(filepath.Dir(flag), 0750))

	assert.False(t, l.ConsumeRestartFlag(time.Now()), "no flag present")

	started := time.Now().Add(-time.Minute)
	require.NoError(t, os.WriteFile(flag, nil, 0600))
	assert.True(t, l.ConsumeRestartFlag(started))
	assert.NoFileExists(t, flag)

	require.NoError(t, os.WriteFile(flag, nil, 0600))
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(flag, stale, stale))
	assert.False(t, l.ConsumeRestartFlag(started), "flags older than the launch are ignored")
	assert.NoFileExists(t, flag, "stale flags are removed as well")
}

// TestRequestRestart tests that a runtime restart request is seen by the launcher
func TestRequestRestart(t *testing.T) {
	cfg := launcherConfig(t)
	l := NewLauncher(cfg, nil)
	dataDir := filepath.Join(cfg.GamePath(), GameDataDir)
	require.NoError(t, os.MkdirAll(dataDir, 0750))
	flag := filepath.Join(dataDir, RestartFlag)

	started := time.Now().Add(-time.Second)
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(flag, nil, 0600))
	require.NoError(t, os.Chtimes(flag, stale, stale))

	require.NoError(t, RequestRestart(dataDir))
	assert.True(t, l.ConsumeRestartFlag(started), "an existing flag is touched again")

	err := RequestRestart(filepath.Join(dataDir, "missing"))
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeRestartRequest))
	assert.True(t, IsIOError(err))
}

// TestStageCompanions tests runtime library staging
// Covers: CompanionFiles, StageCompanions
func TestStageCompanions(t *testing.T) {
	opts := DefaultInjectorOptions(".dll")
	assert.Equal(t, []string{"MLL.dll", "Intercept.dll"}, CompanionFiles(opts))

	t.Run("CopiesIntoFreshDirectory", func(t *testing.T) {
		src := t.TempDir()
		game := t.TempDir()
		for _, name := range CompanionFiles(opts) {
			require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(name), 0600))
		}
		stale := filepath.Join(game, opts.CompanionDir, "Old.dll")
		require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0750))
		require.NoError(t, os.WriteFile(stale, nil, 0600))

		require.NoError(t, StageCompanions(src, game, opts, NewTestLogger()))

		assert.NoFileExists(t, stale)
		for _, name := range CompanionFiles(opts) {
			assert.Equal(t, []byte(name), readFile(t, filepath.Join(game, opts.CompanionDir, name)))
		}
	})

	t.Run("MissingSourceTouchesNothing", func(t *testing.T) {
		src := t.TempDir()
		game := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(src, "MLL.dll"), nil, 0600))
		existing := filepath.Join(game, opts.CompanionDir, "MLL.dll")
		require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0750))
		require.NoError(t, os.WriteFile(existing, []byte("old"), 0600))

		logger := NewTestLogger()
		err := StageCompanions(src, game, opts, logger)
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeCompanionMissing))
		assert.True(t, logger.HasMessage("ERROR", "Runtime library missing; reinstall the mod loader"))
		assert.Equal(t, []byte("old"), readFile(t, existing))
	})
}
