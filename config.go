// config.go: patcher configuration with platform defaults and validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Game identity on Steam.
const (
	GameName      = "Airport CEO"
	SteamAppID    = "673610"
	GameDataDir   = "Airport CEO_Data"
	PublisherName = "Apoapsis Studios"
)

// LaunchConfig controls how the game is started and supervised.
//
// Durations decode from strings ("30s") in YAML and TOML and from
// nanoseconds in JSON.
type LaunchConfig struct {
	ProcessName string `json:"process_name" yaml:"process_name" toml:"process_name"`
	AppID       string `json:"app_id" yaml:"app_id" toml:"app_id"`

	// Finding the process: PollAttempts tries, PollInterval apart.
	PollAttempts int           `json:"poll_attempts" yaml:"poll_attempts" toml:"poll_attempts"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`

	// Waiting for exit: liveness checked every ExitPollInterval until
	// ExitTimeout elapses.
	ExitPollInterval time.Duration `json:"exit_poll_interval" yaml:"exit_poll_interval" toml:"exit_poll_interval"`
	ExitTimeout      time.Duration `json:"exit_timeout" yaml:"exit_timeout" toml:"exit_timeout"`

	// MaxRestarts bounds relaunches requested by the in-game restart flag.
	MaxRestarts int `json:"max_restarts" yaml:"max_restarts" toml:"max_restarts"`
}

// PatchConfig is the complete configuration of a patch run.
//
// The three flags default to true; a configuration file only needs to name
// the ones it turns off.
//
// Example YAML:
//
//	steam_directory: /home/me/.steam/steam
//	inject_enums: false
//	debug: true
//	active_mods: [BetterRunways, CargoPlus]
type PatchConfig struct {
	Patch       bool `json:"patch" yaml:"patch" toml:"patch"`
	InjectEnums bool `json:"inject_enums" yaml:"inject_enums" toml:"inject_enums"`
	LaunchGame  bool `json:"launch_game" yaml:"launch_game" toml:"launch_game"`
	Debug       bool `json:"debug" yaml:"debug" toml:"debug"`

	// Install paths. GameDirectory defaults to the Steam library location.
	SteamDirectory string `json:"steam_directory" yaml:"steam_directory" toml:"steam_directory"`
	GameDirectory  string `json:"game_directory,omitempty" yaml:"game_directory,omitempty" toml:"game_directory"`

	AssemblyName   string `json:"assembly_name" yaml:"assembly_name" toml:"assembly_name"`
	BackupFilename string `json:"backup_filename" yaml:"backup_filename" toml:"backup_filename"`

	// EnumModsPath is scanned for EnumAdditions; ActiveMods restricts which
	// mod directories take part (empty means all).
	EnumModsPath string   `json:"enum_mods_path" yaml:"enum_mods_path" toml:"enum_mods_path"`
	ActiveMods   []string `json:"active_mods,omitempty" yaml:"active_mods,omitempty" toml:"active_mods"`

	// CompanionSource holds the runtime libraries copied next to the game.
	CompanionSource string `json:"companion_source" yaml:"companion_source" toml:"companion_source"`

	LogFile   string `json:"log_file" yaml:"log_file" toml:"log_file"`
	AuditFile string `json:"audit_file,omitempty" yaml:"audit_file,omitempty" toml:"audit_file"`

	Launch LaunchConfig `json:"launch" yaml:"launch" toml:"launch"`
}

// LibExtension returns the library extension the game uses on goos.
func LibExtension(goos string) string {
	switch goos {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// PlatformLibExtension is LibExtension for the running platform.
func PlatformLibExtension() string { return LibExtension(runtime.GOOS) }

// DefaultPatchConfig returns the configuration used when nothing is set.
func DefaultPatchConfig() PatchConfig {
	ext := PlatformLibExtension()
	assembly := "Assembly-CSharp" + ext

	enumMods := ""
	if dir, err := os.UserConfigDir(); err == nil {
		enumMods = filepath.Join(dir, PublisherName, GameName, "Mods")
	}

	companion := "."
	if exe, err := os.Executable(); err == nil {
		companion = filepath.Dir(exe)
	}

	return PatchConfig{
		Patch:           true,
		InjectEnums:     true,
		LaunchGame:      true,
		AssemblyName:    assembly,
		BackupFilename:  assembly + ".BACKUP",
		EnumModsPath:    enumMods,
		CompanionSource: companion,
		LogFile:         "ModLoader.log",
		Launch: LaunchConfig{
			ProcessName:      GameName,
			AppID:            SteamAppID,
			PollAttempts:     20,
			PollInterval:     time.Second,
			ExitPollInterval: time.Second,
			ExitTimeout:      12 * time.Hour,
			MaxRestarts:      3,
		},
	}
}

// ApplyDefaults fills empty fields from DefaultPatchConfig. Flags are left
// alone since false is a legitimate choice.
func (c *PatchConfig) ApplyDefaults() {
	def := DefaultPatchConfig()
	if c.AssemblyName == "" {
		c.AssemblyName = def.AssemblyName
	}
	if c.BackupFilename == "" {
		c.BackupFilename = c.AssemblyName + ".BACKUP"
	}
	if c.EnumModsPath == "" {
		c.EnumModsPath = def.EnumModsPath
	}
	if c.CompanionSource == "" {
		c.CompanionSource = def.CompanionSource
	}
	if c.LogFile == "" {
		c.LogFile = def.LogFile
	}
	if c.Launch.ProcessName == "" {
		c.Launch.ProcessName = def.Launch.ProcessName
	}
	if c.Launch.AppID == "" {
		c.Launch.AppID = def.Launch.AppID
	}
	if c.Launch.PollAttempts <= 0 {
		c.Launch.PollAttempts = def.Launch.PollAttempts
	}
	if c.Launch.PollInterval <= 0 {
		c.Launch.PollInterval = def.Launch.PollInterval
	}
	if c.Launch.ExitPollInterval <= 0 {
		c.Launch.ExitPollInterval = def.Launch.ExitPollInterval
	}
	if c.Launch.ExitTimeout <= 0 {
		c.Launch.ExitTimeout = def.Launch.ExitTimeout
	}
	if c.Launch.MaxRestarts < 0 {
		c.Launch.MaxRestarts = 0
	}
}

// Validate checks the configuration for a run.
func (c *PatchConfig) Validate() error {
	if c.SteamDirectory == "" && c.GameDirectory == "" {
		return NewConfigValidationError("steam_directory or game_directory is required")
	}
	if c.LaunchGame && c.SteamDirectory == "" {
		return NewConfigValidationError("steam_directory is required to launch the game")
	}
	if c.AssemblyName == "" {
		return NewConfigValidationError("assembly_name cannot be empty")
	}
	if strings.ContainsAny(c.AssemblyName, `/\`) {
		return NewConfigValidationError("assembly_name must be a file name, not a path")
	}
	if c.BackupFilename == "" || strings.ContainsAny(c.BackupFilename, `/\`) {
		return NewConfigValidationError("backup_filename must be a non-empty file name")
	}
	if c.BackupFilename == c.AssemblyName {
		return NewConfigValidationError("backup_filename must differ from assembly_name")
	}
	if c.Launch.PollAttempts <= 0 {
		return NewConfigValidationError("launch.poll_attempts must be positive")
	}
	if c.Launch.ExitTimeout <= 0 {
		return NewConfigValidationError("launch.exit_timeout must be positive")
	}
	return nil
}

// GamePath returns the game install directory.
func (c *PatchConfig) GamePath() string {
	if c.GameDirectory != "" {
		return expandHome(c.GameDirectory)
	}
	if runtime.GOOS == "darwin" {
		return expandHome(filepath.Join("~", "Library", "Application Support", "Steam", "steamapps", "common", GameName))
	}
	return filepath.Join(expandHome(c.SteamDirectory), "steamapps", "common", GameName)
}

// AssemblyDirectory returns the directory holding the managed assemblies.
func (c *PatchConfig) AssemblyDirectory() string {
	return filepath.Join(c.GamePath(), GameDataDir, "Managed")
}

// AssemblyPath returns the host assembly path.
func (c *PatchConfig) AssemblyPath() string {
	return filepath.Join(c.AssemblyDirectory(), c.AssemblyName)
}

// BackupRecord returns the backup pairing for the host assembly.
func (c *PatchConfig) BackupRecord() BackupRecord {
	return NewBackupRecord(c.AssemblyPath(), c.BackupFilename)
}

// GameModsPath returns the mods directory the runtime scans.
func (c *PatchConfig) GameModsPath() string {
	return filepath.Join(c.GamePath(), "mods")
}

// ToJSON renders the configuration, mainly for debug output.
func (c *PatchConfig) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
