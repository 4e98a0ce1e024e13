// patcher_test.go: offline patch runs against a temporary game install
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exitedProcess is a game that has already quit when first checked.
type exitedProcess struct{}

func (exitedProcess) PID() int32             { return 7 }
func (exitedProcess) Running() (bool, error) { return false, nil }

func isPatched(t *testing.T, path string) bool {
	t.Helper()
	awake := findMethod(t, readModule(t, path), "GameVersionLabelUI", "Awake")
	for _, s := range ldstrValues(awake.Body) {
		if s == "Entry" {
			return true
		}
	}
	return false
}

// TestPatcher_PatchAndMergeEnums tests a patch-only run
// Covers: NewPatcher, Run, PatchAssembly, patchFromBackup
func TestPatcher_PatchAndMergeEnums(t *testing.T) {
	g := newGameFixture(t)
	g.addEnumMod(t, "CargoPlus", EnumExtension{Target: "BusinessType", Fields: []string{"Freight"}})
	pristine := readFile(t, g.Config.AssemblyPath())

	auditPath := filepath.Join(g.Root, "audit.jsonl")
	trail, err := NewAuditTrail(auditPath, nil)
	require.NoError(t, err)

	logger := NewTestLogger()
	p, err := NewPatcher(g.Config, logger, WithAuditTrail(trail))
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, trail.Close())

	assert.True(t, isPatched(t, g.Config.AssemblyPath()))
	assert.True(t, p.HasBackup())
	assert.Equal(t, pristine, readFile(t, g.Config.BackupRecord().Backup))
	assert.DirExists(t, g.Config.GameModsPath())

	business, err := FindHostEnum(readModule(t, g.Config.AssemblyPath()), "BusinessType")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fieldValues(business)["Freight"])

	content := string(readFile(t, auditPath))
	assert.Contains(t, content, AuditHooksInjected)
	assert.Contains(t, content, AuditModuleWritten)

	t.Run("RevertRestoresOriginal", func(t *testing.T) {
		reverter, err := NewPatcher(g.Config, nil)
		require.NoError(t, err)
		require.NoError(t, reverter.RevertAssembly())
		assert.Equal(t, pristine, readFile(t, g.Config.AssemblyPath()))
		assert.False(t, reverter.HasBackup())
	})
}

// TestPatcher_SkipsEnumsWhenDisabled tests the enum flag
func TestPatcher_SkipsEnumsWhenDisabled(t *testing.T) {
	g := newGameFixture(t)
	g.addEnumMod(t, "CargoPlus", EnumExtension{Target: "BusinessType", Fields: []string{"Freight"}})
	g.Config.InjectEnums = false

	p, err := NewPatcher(g.Config, nil)
	require.NoError(t, err)
	require.NoError(t, p.PatchAssembly())

	business, err := FindHostEnum(readModule(t, g.Config.AssemblyPath()), "BusinessType")
	require.NoError(t, err)
	assert.NotContains(t, fieldValues(business), "Freight")
}

// TestPatcher_FailureRestoresOriginal tests that a failed patch leaves no trace
func TestPatcher_FailureRestoresOriginal(t *testing.T) {
	g := newGameFixture(t)
	host := newHostModule()
	host.Types = host.Types[:1]
	writeModule(t, g.Config.AssemblyPath(), host)
	pristine := readFile(t, g.Config.AssemblyPath())

	logger := NewTestLogger()
	p, err := NewPatcher(g.Config, logger)
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsLookupError(err))
	assert.Equal(t, pristine, readFile(t, g.Config.AssemblyPath()))
	assert.False(t, p.HasBackup())
	assert.True(t, logger.HasMessage("ERROR", "Patching failed; restoring original assembly"))
}

// TestPatcher_RestoresLeftoverBackupFirst tests recovery from an interrupted run
func TestPatcher_RestoresLeftoverBackupFirst(t *testing.T) {
	g := newGameFixture(t)
	pristine := readFile(t, g.Config.AssemblyPath())
	rec := g.Config.BackupRecord()

	require.NoError(t, os.WriteFile(rec.Backup, pristine, 0600))
	patchedBefore := newHostModule()
	_, err := newTestInjector(false).Inject(patchedBefore)
	require.NoError(t, err)
	writeModule(t, rec.Original, patchedBefore)

	logger := NewTestLogger()
	p, err := NewPatcher(g.Config, logger)
	require.NoError(t, err)
	require.NoError(t, p.PatchAssembly(), "a stale patched binary is not patched twice")

	assert.True(t, logger.HasMessage("WARN", "Backup from a previous run found; restoring it before patching"))
	assert.Equal(t, pristine, readFile(t, rec.Backup))
	assert.True(t, isPatched(t, rec.Original))
}

// TestPatcher_LaunchAndRevert tests the full run with a fake Steam
func TestPatcher_LaunchAndRevert(t *testing.T) {
	g := newGameFixture(t)
	g.writeCompanions(t)
	g.Config.LaunchGame = true
	pristine := readFile(t, g.Config.AssemblyPath())

	var patchedWhileRunning bool
	starter := &recordingStarter{}
	start := func(ctx context.Context, dir, name string, args ...string) error {
		patchedWhileRunning = isPatched(t, g.Config.AssemblyPath())
		return starter.start(ctx, dir, name, args...)
	}

	cfg := g.Config
	launcher := NewLauncher(&cfg, nil,
		WithCommandStarter(start),
		WithProcessFinder(&fakeFinder{proc: exitedProcess{}}))

	p, err := NewPatcher(g.Config, NewTestLogger(), WithLauncher(launcher))
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 1, starter.count())
	assert.True(t, patchedWhileRunning)
	assert.Equal(t, pristine, readFile(t, g.Config.AssemblyPath()), "assembly is reverted after the game exits")
	assert.False(t, p.HasBackup())

	opts := DefaultInjectorOptions(PlatformLibExtension())
	for _, name := range CompanionFiles(opts) {
		assert.FileExists(t, filepath.Join(g.Config.GamePath(), opts.CompanionDir, name))
	}
}

// TestPatcher_MissingCompanionsIsFatal tests that no game starts without the runtime
func TestPatcher_MissingCompanionsIsFatal(t *testing.T) {
	g := newGameFixture(t)
	g.Config.LaunchGame = true
	pristine := readFile(t, g.Config.AssemblyPath())

	starter := &recordingStarter{}
	cfg := g.Config
	launcher := NewLauncher(&cfg, nil, WithCommandStarter(starter.start), WithProcessFinder(&fakeFinder{}))

	p, err := NewPatcher(g.Config, nil, WithLauncher(launcher))
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeCompanionMissing))
	assert.Zero(t, starter.count())
	assert.Equal(t, pristine, readFile(t, g.Config.AssemblyPath()))
}

// TestPatcher_RestartFlagRelaunches tests bounded relaunches
func TestPatcher_RestartFlagRelaunches(t *testing.T) {
	g := newGameFixture(t)
	g.writeCompanions(t)
	g.Config.Patch = false
	g.Config.LaunchGame = true
	g.Config.Launch.MaxRestarts = 2

	flag := filepath.Join(g.Config.GamePath(), GameDataDir, RestartFlag)
	starter := &recordingStarter{}
	start := func(ctx context.Context, dir, name string, args ...string) error {
		future := time.Now().Add(time.Minute)
		if err := os.WriteFile(flag, nil, 0600); err != nil {
			return err
		}
		if err := os.Chtimes(flag, future, future); err != nil {
			return err
		}
		return starter.start(ctx, dir, name, args...)
	}

	cfg := g.Config
	launcher := NewLauncher(&cfg, nil,
		WithCommandStarter(start),
		WithProcessFinder(&fakeFinder{proc: exitedProcess{}}))

	logger := NewTestLogger()
	p, err := NewPatcher(g.Config, logger, WithLauncher(launcher))
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 3, starter.count())
	assert.Equal(t, 2, countMessages(logger, "INFO", "Restart requested; relaunching game"))
	assert.True(t, logger.HasMessage("WARN", "Restart requested but limit reached"))
}

// TestNewPatcher_InvalidConfig tests validation at construction
func TestNewPatcher_InvalidConfig(t *testing.T) {
	cfg := DefaultPatchConfig()
	_, err := NewPatcher(cfg, nil)
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeConfigValidation))
}
