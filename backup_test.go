// backup_test.go: backup and restore of the host binary
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path) // #nosec G304 -- test fixture
	require.NoError(t, err)
	return data
}

// TestBackupManager_RevertRestoresOriginalBytes tests revert(patch(backup(x))) == x
// Covers: Backup, Revert, Exists
func TestBackupManager_RevertRestoresOriginalBytes(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "Assembly-CSharp.dll")
	writeModule(t, original, newHostModule())
	pristine := readFile(t, original)

	rec := NewBackupRecord(original, "Assembly-CSharp.dll.BACKUP")
	assert.Equal(t, filepath.Join(dir, "Assembly-CSharp.dll.BACKUP"), rec.Backup)

	bm := NewBackupManager(NewTestLogger(), nil)
	require.NoError(t, bm.Backup(rec))
	assert.True(t, bm.Exists(rec))
	assert.Equal(t, pristine, readFile(t, rec.Backup))

	require.NoError(t, os.WriteFile(original, []byte("patched"), 0600))

	require.NoError(t, bm.Revert(rec))
	assert.Equal(t, pristine, readFile(t, original))
	assert.False(t, bm.Exists(rec), "revert consumes the backup")
}

// TestBackupManager_ReplacesExistingBackup tests the overwrite warning
func TestBackupManager_ReplacesExistingBackup(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "host.dll")
	require.NoError(t, os.WriteFile(original, []byte("current"), 0600))
	rec := NewBackupRecord(original, "host.dll.BACKUP")
	require.NoError(t, os.WriteFile(rec.Backup, []byte("stale"), 0600))

	logger := NewTestLogger()
	bm := NewBackupManager(logger, nil)
	require.NoError(t, bm.Backup(rec))

	assert.True(t, logger.HasMessage("WARN", "Backup file already exists and will be overwritten"))
	assert.Equal(t, []byte("current"), readFile(t, rec.Backup))
}

// TestBackupManager_RevertWithoutBackup tests the missing backup failure
func TestBackupManager_RevertWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "host.dll")
	require.NoError(t, os.WriteFile(original, []byte("patched"), 0600))

	logger := NewTestLogger()
	bm := NewBackupManager(logger, nil)
	err := bm.Revert(NewBackupRecord(original, "host.dll.BACKUP"))

	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeRevertFailed))
	assert.True(t, IsIOError(err))
	assert.True(t, logger.HasMessage("ERROR", "No backup to restore"))
	assert.Equal(t, []byte("patched"), readFile(t, original), "original is kept when there is nothing to restore")
}

// TestBackupManager_MissingOriginal tests that backing up nothing fails
func TestBackupManager_MissingOriginal(t *testing.T) {
	rec := NewBackupRecord(filepath.Join(t.TempDir(), "missing.dll"), "missing.dll.BACKUP")
	err := NewBackupManager(nil, nil).Backup(rec)

	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeBackupFailed))
}

// TestAuditTrail tests that recorded mutations land in the audit file
// Covers: NewAuditTrail, Record, Close, nil trail
func TestAuditTrail(t *testing.T) {
	t.Run("NilTrailIsSilent", func(t *testing.T) {
		var trail *AuditTrail
		assert.NotPanics(t, func() { trail.Record(AuditReverted, nil) })
		assert.Empty(t, trail.RunID())
		assert.NoError(t, trail.Close())
	})

	t.Run("DisabledWithoutPath", func(t *testing.T) {
		trail, err := NewAuditTrail("", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, trail.RunID())
		trail.Record(AuditBackupCreated, nil)
		assert.NoError(t, trail.Close())
	})

	t.Run("WritesEvents", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "audit", "patch.jsonl")
		trail, err := NewAuditTrail(path, NewTestLogger())
		require.NoError(t, err)

		original := filepath.Join(dir, "host.dll")
		require.NoError(t, os.WriteFile(original, []byte("host"), 0600))
		bm := NewBackupManager(nil, trail)
		rec := NewBackupRecord(original, "host.dll.BACKUP")
		require.NoError(t, bm.Backup(rec))
		require.NoError(t, bm.Revert(rec))
		require.NoError(t, trail.Close())

		content := string(readFile(t, path))
		assert.Contains(t, content, AuditBackupCreated)
		assert.Contains(t, content, AuditReverted)
	})
}
