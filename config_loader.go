// config_loader.go: multi-format configuration loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// LoadPatchConfig reads a configuration file on top of DefaultPatchConfig.
//
// The format is detected from the extension by Argus. JSON and the simple
// formats (INI, HCL, properties) are parsed by Argus and bound through a
// JSON round trip; YAML goes through gopkg.in/yaml.v3 and TOML through
// BurntSushi/toml, both of which decode duration strings. Path
// fields may reference environment variables as $VAR or ${VAR}.
//
//	cfg, err := modloader.LoadPatchConfig("modloader.yaml")
//	if err != nil {
//	    log.Fatalf("Failed to load config: %v", err)
//	}
func LoadPatchConfig(path string) (PatchConfig, error) {
	cfg := DefaultPatchConfig()

	if path == "" {
		return cfg, NewConfigValidationError("empty configuration path")
	}
	if strings.Contains(path, "\x00") {
		return cfg, NewConfigValidationError("null byte in configuration path")
	}
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- operator supplied configuration file
	if err != nil {
		return cfg, NewConfigParseError(cleanPath, err)
	}

	format := argus.DetectFormat(cleanPath)
	if err := parsePatchConfig(data, format, &cfg); err != nil {
		return cfg, NewConfigParseError(cleanPath, fmt.Errorf("parse %s config: %w", format, err))
	}

	cfg.expandEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// parsePatchConfig decodes data in format on top of cfg. Keys absent from
// the document keep the values already in cfg.
func parsePatchConfig(data []byte, format argus.ConfigFormat, cfg *PatchConfig) error {
	switch format {
	case argus.FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return nil

	case argus.FormatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
		return nil

	default:
		configMap, err := argus.ParseConfig(data, format)
		if err != nil {
			return err
		}
		return bindPatchConfig(configMap, cfg)
	}
}

// bindPatchConfig maps a generic configuration map onto cfg.
func bindPatchConfig(configMap map[string]interface{}, cfg *PatchConfig) error {
	jsonBytes, err := json.Marshal(configMap)
	if err != nil {
		return fmt.Errorf("failed to marshal config map: %w", err)
	}
	if err := json.Unmarshal(jsonBytes, cfg); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}
	return nil
}

func (c *PatchConfig) expandEnv() {
	for _, p := range []*string{
		&c.SteamDirectory,
		&c.GameDirectory,
		&c.EnumModsPath,
		&c.CompanionSource,
		&c.LogFile,
		&c.AuditFile,
	} {
		*p = os.ExpandEnv(*p)
	}
}
