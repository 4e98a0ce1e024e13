// module.go: in-memory representation of a compiled module image
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"strings"
)

// CoreLibrary is the runtime library every module references implicitly.
const CoreLibrary = "mscorlib"

// Type attribute flags.
const (
	TypeAttrPublic    uint32 = 0x0001
	TypeAttrNested    uint32 = 0x0002
	TypeAttrInterface uint32 = 0x0020
	TypeAttrAbstract  uint32 = 0x0080
	TypeAttrSealed    uint32 = 0x0100
)

// Field attribute flags.
const (
	FieldAttrPrivate       uint32 = 0x0001
	FieldAttrPublic        uint32 = 0x0006
	FieldAttrStatic        uint32 = 0x0010
	FieldAttrLiteral       uint32 = 0x0040
	FieldAttrSpecialName   uint32 = 0x0200
	FieldAttrRTSpecialName uint32 = 0x0400
	FieldAttrHasDefault    uint32 = 0x8000

	// EnumMemberAttrs is the attribute set of a named enum constant.
	EnumMemberAttrs = FieldAttrPublic | FieldAttrStatic | FieldAttrLiteral | FieldAttrHasDefault
)

// EnumStorageField names the hidden instance field holding an enum's value.
const EnumStorageField = "value__"

const (
	baseTypeEnum      = "System.Enum"
	baseTypeValueType = "System.ValueType"
)

// Module is a mutable handle over a decoded module image.
//
// A Module obtained from ModuleReader.Open holds an exclusive handle on its
// source path until Dispose is called. Inspection modules hold none.
type Module struct {
	Name           string
	RuntimeVersion string
	AssemblyRefs   []string
	Types          []*TypeDef
	MemberRefs     []*MemberRef

	path       string
	reader     *ModuleReader
	inspection bool
	disposed   bool
}

// TypeDef is a type declared by the module.
type TypeDef struct {
	Namespace string
	Name      string
	Flags     uint32
	BaseType  string
	Fields    []*FieldDef
	Methods   []*MethodDef
	Nested    []*TypeDef
}

// FieldDef is a field of a type. Enum members carry their value in Constant.
type FieldDef struct {
	Name        string
	Attributes  uint32
	FieldType   string
	Constant    int64
	HasConstant bool
}

// MethodDef is a method with its instruction stream.
type MethodDef struct {
	Name       string
	Attributes uint32
	Body       []Instruction
	MaxStack   int
}

// Path returns the file the module was read from.
func (m *Module) Path() string { return m.path }

// IsDisposed reports whether Dispose has been called.
func (m *Module) IsDisposed() bool { return m.disposed }

// FindTypes returns every top-level type whose full name is name.
func (m *Module) FindTypes(name string) []*TypeDef {
	var out []*TypeDef
	for _, t := range m.Types {
		if t.FullName() == name {
			out = append(out, t)
		}
	}
	return out
}

// SingleType resolves name to exactly one top-level type.
func (m *Module) SingleType(name string) (*TypeDef, error) {
	matches := m.FindTypes(name)
	switch len(matches) {
	case 0:
		return nil, NewSymbolNotFoundError("type", name)
	case 1:
		return matches[0], nil
	default:
		return nil, NewSymbolAmbiguousError("type", name, len(matches))
	}
}

// ImportReference registers ref with the module and returns its token.
// Identical references share a token. Tokens start at 1.
func (m *Module) ImportReference(ref MemberRef) int {
	for i, existing := range m.MemberRefs {
		if existing.key() == ref.key() {
			return i + 1
		}
	}
	r := ref
	m.MemberRefs = append(m.MemberRefs, &r)
	if ref.Assembly != "" && ref.Assembly != CoreLibrary && ref.Assembly != m.Name {
		m.addAssemblyRef(ref.Assembly)
	}
	return len(m.MemberRefs)
}

// Reference returns the member reference behind token.
func (m *Module) Reference(token int) (*MemberRef, bool) {
	if token < 1 || token > len(m.MemberRefs) {
		return nil, false
	}
	return m.MemberRefs[token-1], true
}

func (m *Module) addAssemblyRef(name string) {
	for _, existing := range m.AssemblyRefs {
		if existing == name {
			return
		}
	}
	m.AssemblyRefs = append(m.AssemblyRefs, name)
}

// ResolveReferences checks every assembly reference against resolver and
// returns the names it could not find. The core library is always assumed
// present.
func (m *Module) ResolveReferences(resolver *AssemblyResolver) []string {
	if resolver == nil {
		return nil
	}
	var missing []string
	for _, name := range m.AssemblyRefs {
		if name == CoreLibrary {
			continue
		}
		if _, err := resolver.Resolve(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// FullName returns Namespace.Name, or Name for types without a namespace.
func (t *TypeDef) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// IsEnum reports whether the type derives from System.Enum.
func (t *TypeDef) IsEnum() bool { return t.BaseType == baseTypeEnum }

// IsClass reports whether the type is a reference type that is not an interface.
func (t *TypeDef) IsClass() bool {
	return t.Flags&TypeAttrInterface == 0 && !t.IsEnum() && t.BaseType != baseTypeValueType
}

// FindMethods returns every method named name.
func (t *TypeDef) FindMethods(name string) []*MethodDef {
	var out []*MethodDef
	for _, md := range t.Methods {
		if md.Name == name {
			out = append(out, md)
		}
	}
	return out
}

// SingleMethod resolves name to exactly one method on t.
func (t *TypeDef) SingleMethod(name string) (*MethodDef, error) {
	matches := t.FindMethods(name)
	qualified := t.FullName() + "::" + name
	switch len(matches) {
	case 0:
		return nil, NewSymbolNotFoundError("method", qualified)
	case 1:
		return matches[0], nil
	default:
		return nil, NewSymbolAmbiguousError("method", qualified, len(matches))
	}
}

// FindField returns the field named name, or nil.
func (t *TypeDef) FindField(name string) *FieldDef {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// SingleNestedEnum resolves name to exactly one nested enum of t.
func (t *TypeDef) SingleNestedEnum(name string) (*TypeDef, error) {
	var matches []*TypeDef
	for _, n := range t.Nested {
		if n.Name == name && n.IsEnum() {
			matches = append(matches, n)
		}
	}
	qualified := t.FullName() + "/" + name
	switch len(matches) {
	case 0:
		return nil, NewSymbolNotFoundError("enum", qualified)
	case 1:
		return matches[0], nil
	default:
		return nil, NewSymbolAmbiguousError("enum", qualified, len(matches))
	}
}

// NestedEnums returns the nested enum types in declaration order.
func (t *TypeDef) NestedEnums() []*TypeDef {
	var out []*TypeDef
	for _, n := range t.Nested {
		if n.IsEnum() {
			out = append(out, n)
		}
	}
	return out
}

// IsStorage reports whether f is the enum storage field.
func (f *FieldDef) IsStorage() bool {
	return f.Name == EnumStorageField || f.Attributes&FieldAttrRTSpecialName != 0
}

// containsCompanionLoad reports whether body already loads a mod loader
// companion library.
func containsCompanionLoad(body []Instruction, companionDir string) bool {
	prefix := companionDir + "/"
	for _, ins := range body {
		if ins.Op == OpLdstr && strings.HasPrefix(ins.Str, prefix) {
			return true
		}
	}
	return false
}
