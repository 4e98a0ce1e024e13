// backup.go: backup and restore of the host binary
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"io"
	"os"
	"path/filepath"
)

// BackupRecord pairs a host binary with its backup. There is at most one
// backup per original.
type BackupRecord struct {
	Original string
	Backup   string
}

// NewBackupRecord places the backup next to original under backupName.
func NewBackupRecord(original, backupName string) BackupRecord {
	return BackupRecord{
		Original: original,
		Backup:   filepath.Join(filepath.Dir(original), backupName),
	}
}

// BackupManager copies the host binary aside and restores it. Revert is the
// single restore path, shared by normal undo and error recovery.
type BackupManager struct {
	logger Logger
	audit  *AuditTrail
}

// NewBackupManager creates a manager. audit may be nil.
func NewBackupManager(logger Logger, audit *AuditTrail) *BackupManager {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &BackupManager{logger: logger, audit: audit}
}

// Exists reports whether rec's backup file is present.
func (bm *BackupManager) Exists(rec BackupRecord) bool {
	_, err := os.Stat(rec.Backup)
	return err == nil
}

// Backup copies the original over the backup. An existing backup is
// replaced after a warning.
func (bm *BackupManager) Backup(rec BackupRecord) error {
	replaced := bm.Exists(rec)
	if replaced {
		bm.logger.Warn("Backup file already exists and will be overwritten",
			"backup", rec.Backup)
	}

	if err := copyFile(rec.Original, rec.Backup); err != nil {
		return NewBackupError(rec.Original, err)
	}

	event := AuditBackupCreated
	if replaced {
		event = AuditBackupReplaced
	}
	bm.audit.Record(event, map[string]interface{}{
		"original": rec.Original,
		"backup":   rec.Backup,
	})
	bm.logger.Info("Backup created", "original", rec.Original, "backup", rec.Backup)
	return nil
}

// Revert deletes the original and moves the backup into its place. A
// failure is logged and returned; it is not retried.
func (bm *BackupManager) Revert(rec BackupRecord) error {
	if !bm.Exists(rec) {
		err := NewRevertError(rec.Original, os.ErrNotExist).
			WithContext("backup", rec.Backup)
		bm.logger.Error("No backup to restore", "backup", rec.Backup)
		bm.audit.Record(AuditRevertFailed, map[string]interface{}{"backup": rec.Backup})
		return err
	}

	if err := os.Remove(rec.Original); err != nil && !os.IsNotExist(err) {
		bm.logger.Error("Could not remove patched binary", "path", rec.Original, "error", err)
		bm.audit.Record(AuditRevertFailed, map[string]interface{}{"original": rec.Original})
		return NewRevertError(rec.Original, err)
	}
	if err := os.Rename(rec.Backup, rec.Original); err != nil {
		bm.logger.Error("Could not move backup into place",
			"backup", rec.Backup,
			"original", rec.Original,
			"error", err)
		bm.audit.Record(AuditRevertFailed, map[string]interface{}{"original": rec.Original})
		return NewRevertError(rec.Original, err)
	}

	bm.audit.Record(AuditReverted, map[string]interface{}{
		"original": rec.Original,
		"backup":   rec.Backup,
	})
	bm.logger.Info("Original binary restored", "path", rec.Original)
	return nil
}

// copyFile copies src to dst, truncating dst and keeping src's mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- configured host assembly path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()) // #nosec G304 -- backup next to the host assembly
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
