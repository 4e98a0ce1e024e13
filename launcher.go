// launcher.go: starts the game through Steam and waits for it to exit
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/process"
)

// RestartFlag is touched inside the game data directory by a mod that wants
// the game relaunched with mods after it quits.
const RestartFlag = "RESTARTFLAG"

// GameProcess is a running game instance.
type GameProcess interface {
	PID() int32
	Running() (bool, error)
}

// ProcessFinder looks a process up by name.
type ProcessFinder interface {
	Find(name string) (GameProcess, bool, error)
}

// CommandStarter starts a command without waiting for it.
type CommandStarter func(ctx context.Context, dir, name string, args ...string) error

// SystemProcessFinder finds processes through gopsutil.
type SystemProcessFinder struct{}

type systemProcess struct{ p *process.Process }

func (s systemProcess) PID() int32             { return s.p.Pid }
func (s systemProcess) Running() (bool, error) { return s.p.IsRunning() }

// Find implements ProcessFinder. The first process whose name matches,
// ignoring a trailing .exe, is returned.
func (SystemProcessFinder) Find(name string) (GameProcess, bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, false, err
	}
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if pname == name || strings.TrimSuffix(pname, ".exe") == name {
			return systemProcess{p: p}, true, nil
		}
	}
	return nil, false, nil
}

func startCommand(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- Steam client path from configuration
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return err
	}
	// Steam hands the launch to its own process; nothing to wait for here.
	return cmd.Process.Release()
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithProcessFinder replaces the gopsutil process finder.
func WithProcessFinder(f ProcessFinder) LauncherOption {
	return func(l *Launcher) { l.finder = f }
}

// WithCommandStarter replaces the os/exec command starter.
func WithCommandStarter(s CommandStarter) LauncherOption {
	return func(l *Launcher) { l.start = s }
}

// WithGOOS overrides the platform used to build the launch command.
func WithGOOS(goos string) LauncherOption {
	return func(l *Launcher) { l.goos = goos }
}

// Launcher starts the game and supervises it with bounded polling.
type Launcher struct {
	cfg       LaunchConfig
	steamPath string
	gameDir   string
	goos      string
	finder    ProcessFinder
	start     CommandStarter
	logger    Logger
}

// NewLauncher creates a launcher from a patch configuration.
func NewLauncher(cfg *PatchConfig, logger Logger, opts ...LauncherOption) *Launcher {
	if logger == nil {
		logger = DefaultLogger()
	}
	l := &Launcher{
		cfg:       cfg.Launch,
		steamPath: expandHome(cfg.SteamDirectory),
		gameDir:   cfg.GamePath(),
		goos:      runtime.GOOS,
		finder:    SystemProcessFinder{},
		start:     startCommand,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Command returns the program and arguments that launch the game.
func (l *Launcher) Command() (string, []string) {
	launchArgs := []string{"-applaunch", l.cfg.AppID}
	switch l.goos {
	case "windows":
		return filepath.Join(l.steamPath, "Steam.exe"), launchArgs
	case "darwin":
		app := l.steamPath
		if !strings.HasSuffix(app, ".app") {
			app = filepath.Join(app, "Steam.app")
		}
		return "open", append([]string{"-a", app, "--args"}, launchArgs...)
	default:
		return filepath.Join(l.steamPath, "steam.sh"), launchArgs
	}
}

// Launch asks Steam to start the game.
func (l *Launcher) Launch(ctx context.Context) error {
	name, args := l.Command()
	l.logger.Info("Launching game...")
	l.logger.Debug("Launching through Steam", "command", name, "args", args)
	if err := l.start(ctx, l.gameDir, name, args...); err != nil {
		return NewLaunchError(name, err)
	}
	return nil
}

// WaitForGameExit looks for the game process up to PollAttempts times, then
// polls its liveness until it exits or ExitTimeout elapses. Not finding the
// process and timing out are reported as distinct errors.
func (l *Launcher) WaitForGameExit(ctx context.Context) error {
	var proc GameProcess
	for i := 0; i < l.cfg.PollAttempts && proc == nil; i++ {
		if err := sleepContext(ctx, l.cfg.PollInterval); err != nil {
			return err
		}
		p, found, err := l.finder.Find(l.cfg.ProcessName)
		if err != nil {
			l.logger.Debug("Process lookup failed", "attempt", i+1, "error", err)
			continue
		}
		if found {
			proc = p
		}
	}

	if proc == nil {
		l.logger.Error("Game was not launched", "process", l.cfg.ProcessName)
		return NewGameNotFoundError(l.cfg.ProcessName, l.cfg.PollAttempts)
	}

	l.logger.Info("Found game process. Waiting until exit.", "pid", proc.PID())
	l.logger.Info("Do NOT close this window! It will close automatically.")

	deadline := time.NewTimer(l.cfg.ExitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.ExitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			l.logger.Warn("Stopped waiting for game exit", "timeout", l.cfg.ExitTimeout)
			return NewWaitTimeoutError(l.cfg.ProcessName, l.cfg.ExitTimeout.String())
		case <-ticker.C:
			running, err := proc.Running()
			if err != nil {
				l.logger.Debug("Liveness check failed; assuming exit", "error", err)
				return nil
			}
			if !running {
				l.logger.Info("Game exited")
				return nil
			}
		}
	}
}

// RequestRestart touches the restart flag inside gameDataDir so the patcher
// relaunches the game with mods once it quits. The caller still has to quit
// the game.
func RequestRestart(gameDataDir string) error {
	path := filepath.Join(gameDataDir, RestartFlag)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 -- fixed name under the game data directory
	if err != nil {
		return NewRestartRequestError(path, err)
	}
	if err := f.Close(); err != nil {
		return NewRestartRequestError(path, err)
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return NewRestartRequestError(path, err)
	}
	return nil
}

// ConsumeRestartFlag reports whether the restart flag was touched after
// since, removing it either way.
func (l *Launcher) ConsumeRestartFlag(since time.Time) bool {
	path := filepath.Join(l.gameDir, GameDataDir, RestartFlag)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	_ = os.Remove(path)
	return !info.ModTime().Before(since)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
