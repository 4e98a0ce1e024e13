// errors.go: structured error definitions for the mod loader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	stderrors "errors"
	"strings"

	"github.com/agilira/go-errors"
)

// Error codes for the mod loader
const (
	// Symbol lookup errors (1000-1099)
	ErrCodeSymbolNotFound  = "LOOKUP_1001"
	ErrCodeSymbolAmbiguous = "LOOKUP_1002"
	ErrCodeSiteNotFound    = "LOOKUP_1003"
	ErrCodeFieldNotFound   = "LOOKUP_1004"

	// Filesystem errors (1100-1199)
	ErrCodeBackupFailed     = "IO_1101"
	ErrCodeRevertFailed     = "IO_1102"
	ErrCodeCompanionMissing = "IO_1103"
	ErrCodeModuleRead       = "IO_1104"
	ErrCodeModuleInUse      = "IO_1105"
	ErrCodeDirectory        = "IO_1106"
	ErrCodeRestartRequest   = "IO_1107"

	// Serialization errors (1200-1299)
	ErrCodeWriteFailed = "WRITE_1201"

	// Plugin errors (1300-1399)
	ErrCodePluginLoad     = "PLUGIN_1301"
	ErrCodePluginContract = "PLUGIN_1302"
	ErrCodePluginCallback = "PLUGIN_1303"
	ErrCodePluginPanic    = "PLUGIN_1304"
	ErrCodeUnsafeModName  = "PLUGIN_1305"

	// Patching errors (1400-1499)
	ErrCodeAlreadyPatched  = "PATCH_1401"
	ErrCodeInvalidSequence = "PATCH_1402"
	ErrCodeEnumMerge       = "PATCH_1403"

	// Configuration errors (1500-1599)
	ErrCodeConfigParse      = "CONFIG_1501"
	ErrCodeConfigValidation = "CONFIG_1502"

	// Game launch errors (1600-1699)
	ErrCodeLaunchFailed = "LAUNCH_1601"
	ErrCodeGameNotFound = "LAUNCH_1602"
	ErrCodeWaitTimeout  = "LAUNCH_1603"

	// Module image errors (1700-1799)
	ErrCodeBadModuleFormat = "FORMAT_1701"
)

// Lookup error constructors

func NewSymbolNotFoundError(kind, name string) *errors.Error {
	return errors.New(ErrCodeSymbolNotFound, "Symbol not found: "+name).
		WithUserMessage("A required symbol is missing from the host binary").
		WithContext("symbol_kind", kind).
		WithContext("symbol", name).
		WithSeverity("error")
}

func NewSymbolAmbiguousError(kind, name string, matches int) *errors.Error {
	return errors.New(ErrCodeSymbolAmbiguous, "Symbol is ambiguous: "+name).
		WithUserMessage("A required symbol matched more than once in the host binary").
		WithContext("symbol_kind", kind).
		WithContext("symbol", name).
		WithContext("matches", matches).
		WithSeverity("error")
}

func NewSiteNotFoundError(siteID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeSiteNotFound, "Hook site could not be resolved: "+siteID).
		WithUserMessage("The host binary does not match the supported hook layout").
		WithContext("site", siteID).
		WithSeverity("error")
}

func NewFieldNotFoundError(typeName, field string) *errors.Error {
	return errors.New(ErrCodeFieldNotFound, "Field not found: "+typeName+"."+field).
		WithUserMessage("A required field is missing from the host binary").
		WithContext("type", typeName).
		WithContext("field", field).
		WithSeverity("error")
}

// Filesystem error constructors

func NewBackupError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeBackupFailed, "Backup failed").
		WithUserMessage("Could not back up the host binary").
		WithContext("path", path).
		WithSeverity("error")
}

func NewRevertError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeRevertFailed, "Revert failed").
		WithUserMessage("Could not restore the host binary from its backup").
		WithContext("path", path).
		WithSeverity("error")
}

func NewCompanionMissingError(path string) *errors.Error {
	return errors.New(ErrCodeCompanionMissing, "Companion file missing").
		WithUserMessage("A required runtime library was not found next to the mod loader").
		WithContext("path", path).
		WithSeverity("error")
}

func NewModuleReadError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeModuleRead, "Module read failed").
		WithUserMessage("Could not read the binary module").
		WithContext("path", path).
		WithSeverity("error")
}

func NewModuleInUseError(path string) *errors.Error {
	return errors.New(ErrCodeModuleInUse, "Module is already open").
		WithUserMessage("The binary module is held by another open handle").
		WithContext("path", path).
		WithSeverity("error").
		AsRetryable()
}

func NewDirectoryError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDirectory, "Directory operation failed").
		WithUserMessage("Could not prepare a required directory").
		WithContext("path", path).
		WithSeverity("warning")
}

func NewRestartRequestError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeRestartRequest, "Restart flag could not be written").
		WithUserMessage("Could not request a restart with mods").
		WithContext("path", path).
		WithSeverity("warning")
}

// Serialization error constructors

func NewWriteError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeWriteFailed, "Module write failed").
		WithUserMessage("Could not write the patched binary").
		WithContext("path", path).
		WithSeverity("error")
}

// Plugin error constructors

func NewPluginLoadError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePluginLoad, "Plugin load failed").
		WithUserMessage("The plugin binary could not be loaded").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewPluginContractError(name, symbol string) *errors.Error {
	return errors.New(ErrCodePluginContract, "Plugin contract not satisfied").
		WithUserMessage("The plugin does not expose the required entry point").
		WithContext("plugin_name", name).
		WithContext("symbol", symbol).
		WithSeverity("error")
}

func NewPluginCallbackError(name, callback string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePluginCallback, "Plugin callback failed").
		WithUserMessage("A plugin lifecycle callback returned an error").
		WithContext("plugin_name", name).
		WithContext("callback", callback).
		WithSeverity("error")
}

func NewPluginPanicError(name, callback string, recovered interface{}) *errors.Error {
	return errors.New(ErrCodePluginPanic, "Plugin callback panicked").
		WithUserMessage("A plugin lifecycle callback panicked").
		WithContext("plugin_name", name).
		WithContext("callback", callback).
		WithContext("panic", recovered).
		WithSeverity("error")
}

func NewUnsafeModNameError(name, reason string) *errors.Error {
	return errors.New(ErrCodeUnsafeModName, "Unsafe mod directory name: "+reason).
		WithUserMessage("Mod directory name is not allowed").
		WithContext("mod_name", name).
		WithSeverity("warning")
}

// Patching error constructors

func NewAlreadyPatchedError(siteID string) *errors.Error {
	return errors.New(ErrCodeAlreadyPatched, "Host binary is already patched").
		WithUserMessage("The host binary already contains mod loader hooks; restore the original first").
		WithContext("site", siteID).
		WithSeverity("error")
}

func NewInvalidSequenceError(siteID string, index int, message string) *errors.Error {
	return errors.New(ErrCodeInvalidSequence, "Invalid instruction sequence: "+message).
		WithUserMessage("An injected instruction sequence is not stack balanced").
		WithContext("site", siteID).
		WithContext("instruction_index", index).
		WithSeverity("error")
}

func NewEnumMergeError(enumName, message string) *errors.Error {
	return errors.New(ErrCodeEnumMerge, "Enum merge failed: "+message).
		WithUserMessage("Enum additions could not be merged into the host").
		WithContext("enum", enumName).
		WithSeverity("warning")
}

// Configuration error constructors

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParse, "Configuration parse error").
		WithUserMessage("Failed to parse configuration file").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string) *errors.Error {
	return errors.New(ErrCodeConfigValidation, "Configuration validation error: "+message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

// Game launch error constructors

func NewLaunchError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeLaunchFailed, "Game launch failed").
		WithUserMessage("Could not start the game through Steam").
		WithContext("steam_path", path).
		WithSeverity("error")
}

func NewGameNotFoundError(processName string, attempts int) *errors.Error {
	return errors.New(ErrCodeGameNotFound, "Game process not found").
		WithUserMessage("The game was not launched").
		WithContext("process_name", processName).
		WithContext("attempts", attempts).
		WithSeverity("error")
}

func NewWaitTimeoutError(processName string, timeout interface{}) *errors.Error {
	return errors.New(ErrCodeWaitTimeout, "Timed out waiting for game exit").
		WithUserMessage("The game did not exit within the configured timeout").
		WithContext("process_name", processName).
		WithContext("timeout", timeout).
		WithSeverity("warning")
}

// Module image error constructors

func NewBadModuleFormatError(path string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeBadModuleFormat, "Not a module image").
			WithUserMessage("The file is not a recognised module image").
			WithContext("path", path).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeBadModuleFormat, "Malformed module image").
		WithUserMessage("The file is not a recognised module image").
		WithContext("path", path).
		WithSeverity("error")
}

// errorCode returns the structured code carried by err, if any.
func errorCode(err error) (string, bool) {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return string(coded.Code), true
	}
	return "", false
}

func hasCodePrefix(err error, prefix string) bool {
	code, ok := errorCode(err)
	return ok && strings.HasPrefix(code, prefix)
}

// IsLookupError reports whether err is a symbol or hook site lookup failure.
func IsLookupError(err error) bool { return hasCodePrefix(err, "LOOKUP_") }

// IsIOError reports whether err is a filesystem failure.
func IsIOError(err error) bool { return hasCodePrefix(err, "IO_") }

// IsWriteError reports whether err is a module serialization failure.
func IsWriteError(err error) bool { return hasCodePrefix(err, "WRITE_") }

// IsPluginLoadError reports whether err concerns a single plugin.
func IsPluginLoadError(err error) bool { return hasCodePrefix(err, "PLUGIN_") }

// IsTimeoutError reports whether err is a bounded wait that expired.
func IsTimeoutError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeWaitTimeout
}

// HasErrorCode reports whether err carries exactly the given code.
func HasErrorCode(err error, code string) bool {
	c, ok := errorCode(err)
	return ok && c == code
}
