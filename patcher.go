// patcher.go: offline patch run orchestration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"os"
	"time"
)

// PatcherOption configures a Patcher.
type PatcherOption func(*Patcher)

// WithAuditTrail records file mutations to trail.
func WithAuditTrail(trail *AuditTrail) PatcherOption {
	return func(p *Patcher) { p.audit = trail }
}

// WithLauncher replaces the Steam launcher.
func WithLauncher(l *Launcher) PatcherOption {
	return func(p *Patcher) { p.launcher = l }
}

// WithHookSites replaces the default hook-site table.
func WithHookSites(table HookSiteTable) PatcherOption {
	return func(p *Patcher) { p.table = table }
}

// WithInjectorOptions replaces the injector options derived from the
// platform library extension.
func WithInjectorOptions(opts InjectorOptions) PatcherOption {
	return func(p *Patcher) { p.injectOpts = opts }
}

// Patcher runs the offline part of the mod loader: backup, hook injection,
// enum merging, game launch and revert.
type Patcher struct {
	cfg        PatchConfig
	logger     Logger
	reader     *ModuleReader
	backups    *BackupManager
	audit      *AuditTrail
	launcher   *Launcher
	table      HookSiteTable
	injectOpts InjectorOptions
}

// NewPatcher validates cfg and prepares a patch run.
func NewPatcher(cfg PatchConfig, logger Logger, opts ...PatcherOption) (*Patcher, error) {
	if logger == nil {
		logger = DefaultLogger()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Patcher{
		cfg:        cfg,
		logger:     logger,
		reader:     NewModuleReader(logger),
		table:      DefaultHookSites(),
		injectOpts: DefaultInjectorOptions(PlatformLibExtension()),
	}
	p.injectOpts.Debug = cfg.Debug
	for _, opt := range opts {
		opt(p)
	}
	if p.launcher == nil {
		p.launcher = NewLauncher(&p.cfg, logger)
	}
	p.backups = NewBackupManager(logger, p.audit)
	return p, nil
}

// Config returns the effective configuration.
func (p *Patcher) Config() PatchConfig { return p.cfg }

// Run performs the configured steps. When the game is launched a patched
// assembly is reverted after the game exits, whatever the outcome.
func (p *Patcher) Run(ctx context.Context) error {
	p.logger.Info("Mod loader starting", "version", Version, "run_id", p.audit.RunID())

	mods := p.cfg.GameModsPath()
	if err := os.MkdirAll(mods, 0750); err != nil {
		p.logger.Warn("Could not create mods directory", "path", mods, "error", err)
	}

	patched := false
	if p.cfg.Patch {
		if err := p.PatchAssembly(); err != nil {
			return err
		}
		patched = true
	}

	if !p.cfg.LaunchGame {
		return nil
	}

	err := p.launchAndSupervise(ctx)
	if patched {
		if rerr := p.RevertAssembly(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// PatchAssembly backs up the host assembly and writes the patched copy in
// its place. On any failure after the backup the original is restored
// before the error is returned.
func (p *Patcher) PatchAssembly() error {
	rec := p.cfg.BackupRecord()

	if p.backups.Exists(rec) {
		p.logger.Warn("Backup from a previous run found; restoring it before patching",
			"backup", rec.Backup)
		if err := p.backups.Revert(rec); err != nil {
			return err
		}
	}
	if err := p.backups.Backup(rec); err != nil {
		return err
	}

	if err := p.patchFromBackup(rec); err != nil {
		p.logger.Error("Patching failed; restoring original assembly", "error", err)
		if rerr := p.backups.Revert(rec); rerr != nil {
			p.logger.Error("Restore after failed patch did not complete", "error", rerr)
		}
		return err
	}
	return nil
}

// HasBackup reports whether a backup of the host assembly is present.
func (p *Patcher) HasBackup() bool {
	return p.backups.Exists(p.cfg.BackupRecord())
}

// RevertAssembly restores the host assembly from its backup.
func (p *Patcher) RevertAssembly() error {
	return p.backups.Revert(p.cfg.BackupRecord())
}

func (p *Patcher) patchFromBackup(rec BackupRecord) error {
	resolver := NewAssemblyResolver(p.reader, p.injectOpts.Extension, p.cfg.AssemblyDirectory())
	m, err := p.reader.Open(rec.Backup, ReadOptions{Resolver: resolver})
	if err != nil {
		return err
	}
	defer m.Dispose()

	report, err := NewInjector(p.table, p.injectOpts, p.logger).Inject(m)
	if err != nil {
		return err
	}
	p.audit.Record(AuditHooksInjected, map[string]interface{}{
		"sites":        report.Sites,
		"instructions": report.Instructions,
		"table":        report.TableVersion,
	})
	p.logger.Info("Hooks injected", "sites", len(report.Sites), "table", report.TableVersion)

	if p.cfg.InjectEnums {
		merger := NewEnumMerger(p.reader, p.injectOpts.Extension, p.logger)
		mr, err := merger.MergeFromDirectory(m, p.cfg.EnumModsPath, NewActivationList(p.cfg.ActiveMods))
		if err != nil {
			return err
		}
		p.audit.Record(AuditEnumsMerged, map[string]interface{}{
			"enums":    mr.EnumsMerged,
			"fields":   mr.FieldsAdded,
			"failures": mr.Failures,
		})
	}

	if err := m.Write(rec.Original); err != nil {
		return err
	}
	p.audit.Record(AuditModuleWritten, map[string]interface{}{"path": rec.Original})
	p.logger.Info("Patched assembly written", "path", rec.Original)
	return nil
}

// launchAndSupervise stages the runtime libraries, starts the game and waits
// for it to exit. A restart flag touched during the session relaunches the
// game, up to Launch.MaxRestarts times.
func (p *Patcher) launchAndSupervise(ctx context.Context) error {
	if err := StageCompanions(p.cfg.CompanionSource, p.cfg.GamePath(), p.injectOpts, p.logger); err != nil {
		return err
	}

	for restarts := 0; ; restarts++ {
		started := time.Now()
		if err := p.launcher.Launch(ctx); err != nil {
			return err
		}
		if err := p.launcher.WaitForGameExit(ctx); err != nil {
			return err
		}
		if !p.launcher.ConsumeRestartFlag(started) {
			return nil
		}
		if restarts >= p.cfg.Launch.MaxRestarts {
			p.logger.Warn("Restart requested but limit reached", "max_restarts", p.cfg.Launch.MaxRestarts)
			return nil
		}
		p.logger.Info("Restart requested; relaunching game", "restart", restarts+1)
	}
}
