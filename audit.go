// audit.go: optional audit trail for patch runs
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/argus"
	"github.com/google/uuid"
)

// Audit event types.
const (
	AuditBackupCreated  = "backup_created"
	AuditBackupReplaced = "backup_replaced"
	AuditHooksInjected  = "hooks_injected"
	AuditEnumsMerged    = "enums_merged"
	AuditModuleWritten  = "module_written"
	AuditReverted       = "reverted"
	AuditRevertFailed   = "revert_failed"
)

// AuditTrail records file mutations of one patch run. The zero value and a
// nil *AuditTrail are valid and record nothing.
type AuditTrail struct {
	auditor *argus.AuditLogger
	runID   string
}

// NewAuditTrail opens an audit trail writing to path. An empty path returns
// a disabled trail.
func NewAuditTrail(path string, logger Logger) (*AuditTrail, error) {
	trail := &AuditTrail{runID: uuid.NewString()}
	if path == "" {
		return trail, nil
	}
	if logger == nil {
		logger = DefaultLogger()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, NewDirectoryError(filepath.Dir(path), err)
	}

	auditor, err := argus.NewAuditLogger(argus.AuditConfig{
		Enabled:       true,
		OutputFile:    path,
		MinLevel:      argus.AuditInfo,
		BufferSize:    256,
		FlushInterval: time.Second,
		IncludeStack:  false,
	})
	if err != nil {
		return nil, NewDirectoryError(path, err)
	}
	trail.auditor = auditor
	logger.Info("Audit trail enabled", "file", path, "run_id", trail.runID)
	return trail, nil
}

// RunID identifies the patch run in every recorded event.
func (a *AuditTrail) RunID() string {
	if a == nil {
		return ""
	}
	return a.runID
}

// Record writes one event.
func (a *AuditTrail) Record(eventType string, context map[string]interface{}) {
	if a == nil || a.auditor == nil {
		return
	}
	if context == nil {
		context = make(map[string]interface{})
	}
	context["run_id"] = a.runID
	context["component"] = "modloader"
	a.auditor.LogSecurityEvent(eventType, "Mod loader file operation", context)
}

// Close flushes and closes the trail.
func (a *AuditTrail) Close() error {
	if a == nil || a.auditor == nil {
		return nil
	}
	return a.auditor.Close()
}
