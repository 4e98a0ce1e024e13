// cmd/modloader/main.go: command line patcher and launcher
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	modloader "github.com/agilira/aceo-modloader"
)

func main() {
	app := &cli.App{
		Name:    "modloader",
		Usage:   "patch Airport CEO with mod support and launch it through Steam",
		Version: modloader.Version,
		Description: "To start the game normally run \"modloader --start\".\n" +
			"To start it with full modding support run \"modloader -p -e --start\".",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration file (json, yaml or toml)"},
			&cli.BoolFlag{Name: "patch", Aliases: []string{"p"}, Usage: "patch the game with the mod loader runtime"},
			&cli.BoolFlag{Name: "enums", Aliases: []string{"e"}, Usage: "inject enums found in mods"},
			&cli.BoolFlag{Name: "start", Aliases: []string{"ss", "s"}, Usage: "start the game through Steam"},
			&cli.StringFlag{Name: "backupname", Aliases: []string{"b"}, Usage: "custom name for the assembly backup"},
			&cli.StringFlag{Name: "steampath", Aliases: []string{"sp"}, Usage: "path to the Steam installation"},
			&cli.StringFlag{Name: "gamepath", Usage: "path to the game installation"},
			&cli.StringFlag{Name: "audit", Usage: "write an audit trail of file operations to this file"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: runPatcher,
		Commands: []*cli.Command{
			{
				Name:   "revert",
				Usage:  "restore the original assembly from its backup",
				Action: runRevert,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (modloader.PatchConfig, error) {
	cfg := modloader.DefaultPatchConfig()
	if path := c.String("config"); path != "" {
		loaded, err := modloader.LoadPatchConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	// Any step flag on the command line selects exactly the named steps.
	if c.IsSet("patch") || c.IsSet("enums") || c.IsSet("start") {
		cfg.Patch = c.Bool("patch")
		cfg.InjectEnums = c.Bool("enums")
		cfg.LaunchGame = c.Bool("start")
	}
	if c.IsSet("backupname") {
		cfg.BackupFilename = c.String("backupname")
	}
	if c.IsSet("steampath") {
		cfg.SteamDirectory = c.String("steampath")
	}
	if c.IsSet("gamepath") {
		cfg.GameDirectory = c.String("gamepath")
	}
	if c.IsSet("audit") {
		cfg.AuditFile = c.String("audit")
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func newLogger(cfg modloader.PatchConfig) (*modloader.ZapLogger, error) {
	return modloader.NewZapLogger(modloader.ZapLoggerConfig{
		FilePath:   cfg.LogFile,
		Console:    true,
		Debug:      cfg.Debug,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
}

func newPatcher(cfg modloader.PatchConfig, logger modloader.Logger) (*modloader.Patcher, *modloader.AuditTrail, error) {
	trail, err := modloader.NewAuditTrail(cfg.AuditFile, logger)
	if err != nil {
		return nil, nil, err
	}
	patcher, err := modloader.NewPatcher(cfg, logger, modloader.WithAuditTrail(trail))
	if err != nil {
		_ = trail.Close()
		return nil, nil, err
	}
	return patcher, trail, nil
}

func runPatcher(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	logger.Info("Starting ACEO ModLoader", "version", modloader.Version)
	if cfg.Debug {
		if data, err := cfg.ToJSON(); err == nil {
			logger.Debug("Effective configuration", "config", string(data))
		}
	}

	patcher, trail, err := newPatcher(cfg, logger)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return err
	}
	defer func() { _ = trail.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := patcher.Run(ctx); err != nil {
		if patcher.HasBackup() {
			logger.Debug("Attempting to restore backup...")
			if rerr := patcher.RevertAssembly(); rerr != nil {
				logger.Error("Backup could not be restored", "error", rerr)
			}
		}
		logger.Error("ModLoader encountered a problem and has stopped. " +
			"If you think there is a bug in ModLoader, please open an issue.")
		logger.Error("More information", "error", err)
		return cli.Exit("", 1)
	}
	return nil
}

func runRevert(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.LaunchGame = false
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	patcher, trail, err := newPatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = trail.Close() }()

	return patcher.RevertAssembly()
}
