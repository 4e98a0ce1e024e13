// enum_extension.go: merges mod enum additions into the host's enums
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnumAdditionsType is the class a mod declares its enum additions in,
	// inside a namespace named after the mod.
	EnumAdditionsType = "EnumAdditions"

	// HostEnumContainer is the host type whose nested enums can be extended.
	HostEnumContainer = "Enums"
)

// EnumExtension is the list of new member names a mod adds to one host enum.
type EnumExtension struct {
	Target string
	Fields []string
}

// EnumExtensionResult describes the fields appended to one host enum.
type EnumExtensionResult struct {
	Added []*FieldDef

	// Start is the value assigned to the first added field.
	Start int64

	// Relocated is set when the count based start collided with an
	// existing value and was moved past the host's maximum.
	Relocated bool
}

// ExtendEnum appends ext's fields to target.
//
// Values are assigned from (number of existing fields - 1), which is the
// number of named members when the storage field is present, incrementing
// in the order ext lists them. If that range collides with an existing
// value the start moves to max+1. Names already present in target fail the
// whole extension before anything is appended.
func ExtendEnum(target *TypeDef, ext EnumExtension) (EnumExtensionResult, error) {
	var result EnumExtensionResult
	if !target.IsEnum() {
		return result, NewEnumMergeError(target.FullName(), "target is not an enum")
	}

	existing := make(map[string]struct{}, len(target.Fields))
	used := make(map[int64]struct{}, len(target.Fields))
	var maxValue int64 = -1
	for _, f := range target.Fields {
		existing[f.Name] = struct{}{}
		if f.IsStorage() || !f.HasConstant {
			continue
		}
		used[f.Constant] = struct{}{}
		if f.Constant > maxValue {
			maxValue = f.Constant
		}
	}

	var names []string
	seen := make(map[string]struct{}, len(ext.Fields))
	for _, name := range ext.Fields {
		if name == EnumStorageField {
			continue
		}
		if _, dup := existing[name]; dup {
			return result, NewEnumMergeError(target.FullName(), fmt.Sprintf("member %q already exists", name))
		}
		if _, dup := seen[name]; dup {
			return result, NewEnumMergeError(target.FullName(), fmt.Sprintf("member %q listed twice", name))
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	start := int64(len(target.Fields) - 1)
	if start < 0 {
		start = 0
	}
	for i := range names {
		if _, taken := used[start+int64(i)]; taken {
			start = maxValue + 1
			result.Relocated = true
			break
		}
	}
	result.Start = start

	fieldType := target.FullName()
	for i, name := range names {
		f := &FieldDef{
			Name:        name,
			Attributes:  EnumMemberAttrs,
			FieldType:   fieldType,
			Constant:    start + int64(i),
			HasConstant: true,
		}
		result.Added = append(result.Added, f)
	}
	target.Fields = append(target.Fields, result.Added...)
	return result, nil
}

// MergeReport summarises an enum merge pass.
type MergeReport struct {
	ModsInspected int
	EnumsMerged   int
	FieldsAdded   int
	Failures      []string
}

// EnumMerger collects EnumAdditions from mod libraries and merges them into
// a host module.
type EnumMerger struct {
	reader    *ModuleReader
	extension string
	logger    Logger
}

// NewEnumMerger creates a merger reading <mod>/<mod><extension>.
func NewEnumMerger(reader *ModuleReader, extension string, logger Logger) *EnumMerger {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &EnumMerger{reader: reader, extension: extension, logger: logger}
}

// MergeFromDirectory walks the subdirectories of modsPath in name order and
// merges the additions of every active mod into host. Failures are logged
// per enum and recorded in the report; the pass itself only fails when
// modsPath cannot be listed.
func (em *EnumMerger) MergeFromDirectory(host *Module, modsPath string, active ActivationSet) (MergeReport, error) {
	var report MergeReport

	entries, err := os.ReadDir(modsPath)
	if err != nil {
		if os.IsNotExist(err) {
			em.logger.Debug("Enum mods directory does not exist", "path", modsPath)
			return report, nil
		}
		return report, NewDirectoryError(modsPath, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if err := validateModName(name); err != nil {
			em.logger.Warn("Skipping mod with unsafe name", "mod", name, "error", err)
			continue
		}
		if active != nil && !active.IsActive(modsPath, name) {
			em.logger.Debug("Skipping inactive mod", "mod", name)
			continue
		}

		exts, err := em.CollectExtensions(filepath.Join(modsPath, name), name)
		if err != nil {
			em.logger.Warn("Could not inspect mod for enum additions", "mod", name, "error", err)
			report.Failures = append(report.Failures, name)
			continue
		}
		report.ModsInspected++

		for _, ext := range exts {
			if err := em.mergeOne(host, name, ext, &report); err != nil {
				em.logger.Warn("Enum merge failed",
					"mod", name,
					"enum", ext.Target,
					"error", err)
				report.Failures = append(report.Failures, name+"/"+ext.Target)
			}
		}
	}

	em.logger.Info("Enum merge finished",
		"mods", report.ModsInspected,
		"enums", report.EnumsMerged,
		"fields", report.FieldsAdded,
		"failures", len(report.Failures))
	return report, nil
}

func (em *EnumMerger) mergeOne(host *Module, mod string, ext EnumExtension, report *MergeReport) error {
	target, err := FindHostEnum(host, ext.Target)
	if err != nil {
		return err
	}
	result, err := ExtendEnum(target, ext)
	if err != nil {
		return err
	}
	if result.Relocated {
		em.logger.Warn("Enum values relocated past existing maximum",
			"mod", mod,
			"enum", ext.Target,
			"start", result.Start)
	}
	report.EnumsMerged++
	report.FieldsAdded += len(result.Added)
	for _, f := range result.Added {
		em.logger.Debug("Enum member added",
			"mod", mod,
			"enum", ext.Target,
			"member", f.Name,
			"value", f.Constant)
	}
	return nil
}

// CollectExtensions reads <modDir>/<name><ext> for inspection and returns
// the enums nested in <name>.EnumAdditions. A missing library, a library
// that is not a module image, or a missing EnumAdditions class yields no
// extensions and no error.
func (em *EnumMerger) CollectExtensions(modDir, name string) ([]EnumExtension, error) {
	libPath := filepath.Join(modDir, name+em.extension)
	data, err := os.ReadFile(libPath) // #nosec G304 -- path built from a validated mod name
	if err != nil {
		if os.IsNotExist(err) {
			em.logger.Debug("Mod has no library", "mod", name, "path", libPath)
			return nil, nil
		}
		return nil, NewModuleReadError(libPath, err)
	}
	if !IsModuleImage(data) {
		em.logger.Debug("Mod library carries no enum metadata", "mod", name)
		return nil, nil
	}

	mod, err := em.reader.Open(libPath, ReadOptions{InspectionOnly: true})
	if err != nil {
		return nil, err
	}

	additions := mod.FindTypes(name + "." + EnumAdditionsType)
	if len(additions) == 0 {
		return nil, nil
	}
	if len(additions) > 1 {
		return nil, NewSymbolAmbiguousError("type", name+"."+EnumAdditionsType, len(additions))
	}
	if !additions[0].IsClass() {
		return nil, NewEnumMergeError(additions[0].FullName(), "EnumAdditions must be a class")
	}

	var exts []EnumExtension
	for _, nested := range additions[0].NestedEnums() {
		ext := EnumExtension{Target: nested.Name}
		for _, f := range nested.Fields {
			if f.IsStorage() {
				continue
			}
			ext.Fields = append(ext.Fields, f.Name)
		}
		exts = append(exts, ext)
	}
	return exts, nil
}

// FindHostEnum locates the host enum called name: first as a nested enum of
// the Enums container, then as a top-level enum.
func FindHostEnum(host *Module, name string) (*TypeDef, error) {
	containers := host.FindTypes(HostEnumContainer)
	switch len(containers) {
	case 0:
	case 1:
		nested, err := containers[0].SingleNestedEnum(name)
		if !HasErrorCode(err, ErrCodeSymbolNotFound) {
			return nested, err
		}
	default:
		return nil, NewSymbolAmbiguousError("type", HostEnumContainer, len(containers))
	}

	t, err := host.SingleType(name)
	if err != nil {
		return nil, err
	}
	if !t.IsEnum() {
		return nil, NewSymbolNotFoundError("enum", name)
	}
	return t, nil
}
