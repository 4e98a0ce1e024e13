// module_codec.go: protobuf wire codec for module images
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"bytes"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Module images start with a four byte magic and a format version, followed
// by one protobuf wire encoded Module message. Repeated fields are written
// and read in declaration order.
const (
	moduleMagic         = "MLIM"
	moduleFormatVersion = byte(1)
	moduleHeaderLen     = len(moduleMagic) + 1
)

// Module message fields.
const (
	fieldModuleName       protowire.Number = 1
	fieldModuleAsmRefs    protowire.Number = 2
	fieldModuleTypes      protowire.Number = 3
	fieldModuleMemberRefs protowire.Number = 4
	fieldModuleRuntime    protowire.Number = 5
)

// TypeDef message fields.
const (
	fieldTypeNamespace protowire.Number = 1
	fieldTypeName      protowire.Number = 2
	fieldTypeFlags     protowire.Number = 3
	fieldTypeFields    protowire.Number = 4
	fieldTypeMethods   protowire.Number = 5
	fieldTypeNested    protowire.Number = 6
	fieldTypeBase      protowire.Number = 7
)

// FieldDef message fields.
const (
	fieldFieldName        protowire.Number = 1
	fieldFieldAttrs       protowire.Number = 2
	fieldFieldConstant    protowire.Number = 3
	fieldFieldHasConstant protowire.Number = 4
	fieldFieldType        protowire.Number = 5
)

// MethodDef message fields.
const (
	fieldMethodName     protowire.Number = 1
	fieldMethodAttrs    protowire.Number = 2
	fieldMethodBody     protowire.Number = 3
	fieldMethodMaxStack protowire.Number = 4
)

// Instruction message fields.
const (
	fieldInsOp    protowire.Number = 1
	fieldInsInt   protowire.Number = 2
	fieldInsStr   protowire.Number = 3
	fieldInsToken protowire.Number = 4
)

// MemberRef message fields.
const (
	fieldRefKind     protowire.Number = 1
	fieldRefAssembly protowire.Number = 2
	fieldRefType     protowire.Number = 3
	fieldRefName     protowire.Number = 4
	fieldRefParams   protowire.Number = 5
	fieldRefHasThis  protowire.Number = 6
	fieldRefReturns  protowire.Number = 7
)

var errNotModuleImage = errors.New("missing module image header")

// IsModuleImage reports whether data starts with a supported module header.
func IsModuleImage(data []byte) bool {
	return len(data) >= moduleHeaderLen &&
		bytes.Equal(data[:len(moduleMagic)], []byte(moduleMagic)) &&
		data[len(moduleMagic)] == moduleFormatVersion
}

// EncodeModule serializes m into a module image.
func EncodeModule(m *Module) []byte {
	b := make([]byte, 0, 4096)
	b = append(b, moduleMagic...)
	b = append(b, moduleFormatVersion)

	b = appendStringField(b, fieldModuleName, m.Name)
	for _, ref := range m.AssemblyRefs {
		b = protowire.AppendTag(b, fieldModuleAsmRefs, protowire.BytesType)
		b = protowire.AppendString(b, ref)
	}
	for _, t := range m.Types {
		b = appendMessage(b, fieldModuleTypes, func(b []byte) []byte { return appendTypeDef(b, t) })
	}
	for _, r := range m.MemberRefs {
		b = appendMessage(b, fieldModuleMemberRefs, func(b []byte) []byte { return appendMemberRef(b, r) })
	}
	b = appendStringField(b, fieldModuleRuntime, m.RuntimeVersion)
	return b
}

func appendTypeDef(b []byte, t *TypeDef) []byte {
	b = appendStringField(b, fieldTypeNamespace, t.Namespace)
	b = appendStringField(b, fieldTypeName, t.Name)
	b = appendVarintField(b, fieldTypeFlags, uint64(t.Flags))
	for _, f := range t.Fields {
		b = appendMessage(b, fieldTypeFields, func(b []byte) []byte { return appendFieldDef(b, f) })
	}
	for _, md := range t.Methods {
		b = appendMessage(b, fieldTypeMethods, func(b []byte) []byte { return appendMethodDef(b, md) })
	}
	for _, n := range t.Nested {
		b = appendMessage(b, fieldTypeNested, func(b []byte) []byte { return appendTypeDef(b, n) })
	}
	b = appendStringField(b, fieldTypeBase, t.BaseType)
	return b
}

func appendFieldDef(b []byte, f *FieldDef) []byte {
	b = appendStringField(b, fieldFieldName, f.Name)
	b = appendVarintField(b, fieldFieldAttrs, uint64(f.Attributes))
	b = appendVarintField(b, fieldFieldConstant, protowire.EncodeZigZag(f.Constant))
	b = appendVarintField(b, fieldFieldHasConstant, protowire.EncodeBool(f.HasConstant))
	b = appendStringField(b, fieldFieldType, f.FieldType)
	return b
}

func appendMethodDef(b []byte, md *MethodDef) []byte {
	b = appendStringField(b, fieldMethodName, md.Name)
	b = appendVarintField(b, fieldMethodAttrs, uint64(md.Attributes))
	for _, ins := range md.Body {
		b = appendMessage(b, fieldMethodBody, func(b []byte) []byte { return appendInstruction(b, ins) })
	}
	b = appendVarintField(b, fieldMethodMaxStack, uint64(md.MaxStack))
	return b
}

func appendInstruction(b []byte, ins Instruction) []byte {
	b = appendVarintField(b, fieldInsOp, uint64(ins.Op))
	b = appendVarintField(b, fieldInsInt, protowire.EncodeZigZag(ins.Int))
	b = appendStringField(b, fieldInsStr, ins.Str)
	b = appendVarintField(b, fieldInsToken, uint64(ins.Token))
	return b
}

func appendMemberRef(b []byte, r *MemberRef) []byte {
	b = appendVarintField(b, fieldRefKind, uint64(r.Kind))
	b = appendStringField(b, fieldRefAssembly, r.Assembly)
	b = appendStringField(b, fieldRefType, r.DeclaringType)
	b = appendStringField(b, fieldRefName, r.Name)
	b = appendVarintField(b, fieldRefParams, uint64(r.Params))
	b = appendVarintField(b, fieldRefHasThis, protowire.EncodeBool(r.HasThis))
	b = appendVarintField(b, fieldRefReturns, protowire.EncodeBool(r.Returns))
	return b
}

func appendMessage(b []byte, num protowire.Number, fn func([]byte) []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, fn(nil))
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// DecodeModule parses a module image. Unknown fields are skipped.
func DecodeModule(data []byte) (*Module, error) {
	if !IsModuleImage(data) {
		return nil, errNotModuleImage
	}
	m := &Module{}
	err := walkFields(data[moduleHeaderLen:], func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldModuleName:
			return consumeString(typ, b, &m.Name)
		case fieldModuleRuntime:
			return consumeString(typ, b, &m.RuntimeVersion)
		case fieldModuleAsmRefs:
			var s string
			n, err := consumeString(typ, b, &s)
			if err == nil {
				m.AssemblyRefs = append(m.AssemblyRefs, s)
			}
			return n, err
		case fieldModuleTypes:
			t := &TypeDef{}
			n, err := consumeMessage(typ, b, func(v []byte) error { return decodeTypeDef(v, t) })
			if err == nil {
				m.Types = append(m.Types, t)
			}
			return n, err
		case fieldModuleMemberRefs:
			r := &MemberRef{}
			n, err := consumeMessage(typ, b, func(v []byte) error { return decodeMemberRef(v, r) })
			if err == nil {
				m.MemberRefs = append(m.MemberRefs, r)
			}
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodeTypeDef(data []byte, t *TypeDef) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldTypeNamespace:
			return consumeString(typ, b, &t.Namespace)
		case fieldTypeName:
			return consumeString(typ, b, &t.Name)
		case fieldTypeBase:
			return consumeString(typ, b, &t.BaseType)
		case fieldTypeFlags:
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			t.Flags = uint32(v)
			return n, err
		case fieldTypeFields:
			f := &FieldDef{}
			n, err := consumeMessage(typ, b, func(v []byte) error { return decodeFieldDef(v, f) })
			if err == nil {
				t.Fields = append(t.Fields, f)
			}
			return n, err
		case fieldTypeMethods:
			md := &MethodDef{}
			n, err := consumeMessage(typ, b, func(v []byte) error { return decodeMethodDef(v, md) })
			if err == nil {
				t.Methods = append(t.Methods, md)
			}
			return n, err
		case fieldTypeNested:
			nt := &TypeDef{}
			n, err := consumeMessage(typ, b, func(v []byte) error { return decodeTypeDef(v, nt) })
			if err == nil {
				t.Nested = append(t.Nested, nt)
			}
			return n, err
		}
		return 0, nil
	})
}

func decodeFieldDef(data []byte, f *FieldDef) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64
		switch num {
		case fieldFieldName:
			return consumeString(typ, b, &f.Name)
		case fieldFieldType:
			return consumeString(typ, b, &f.FieldType)
		case fieldFieldAttrs:
			n, err := consumeVarint(typ, b, &v)
			f.Attributes = uint32(v)
			return n, err
		case fieldFieldConstant:
			n, err := consumeVarint(typ, b, &v)
			f.Constant = protowire.DecodeZigZag(v)
			return n, err
		case fieldFieldHasConstant:
			n, err := consumeVarint(typ, b, &v)
			f.HasConstant = protowire.DecodeBool(v)
			return n, err
		}
		return 0, nil
	})
}

func decodeMethodDef(data []byte, md *MethodDef) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64
		switch num {
		case fieldMethodName:
			return consumeString(typ, b, &md.Name)
		case fieldMethodAttrs:
			n, err := consumeVarint(typ, b, &v)
			md.Attributes = uint32(v)
			return n, err
		case fieldMethodMaxStack:
			n, err := consumeVarint(typ, b, &v)
			md.MaxStack = int(v)
			return n, err
		case fieldMethodBody:
			var ins Instruction
			n, err := consumeMessage(typ, b, func(v []byte) error { return decodeInstruction(v, &ins) })
			if err == nil {
				md.Body = append(md.Body, ins)
			}
			return n, err
		}
		return 0, nil
	})
}

func decodeInstruction(data []byte, ins *Instruction) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64
		switch num {
		case fieldInsOp:
			n, err := consumeVarint(typ, b, &v)
			ins.Op = OpCode(v)
			return n, err
		case fieldInsInt:
			n, err := consumeVarint(typ, b, &v)
			ins.Int = protowire.DecodeZigZag(v)
			return n, err
		case fieldInsStr:
			return consumeString(typ, b, &ins.Str)
		case fieldInsToken:
			n, err := consumeVarint(typ, b, &v)
			ins.Token = int(v)
			return n, err
		}
		return 0, nil
	})
}

func decodeMemberRef(data []byte, r *MemberRef) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64
		switch num {
		case fieldRefKind:
			n, err := consumeVarint(typ, b, &v)
			r.Kind = RefKind(v)
			return n, err
		case fieldRefAssembly:
			return consumeString(typ, b, &r.Assembly)
		case fieldRefType:
			return consumeString(typ, b, &r.DeclaringType)
		case fieldRefName:
			return consumeString(typ, b, &r.Name)
		case fieldRefParams:
			n, err := consumeVarint(typ, b, &v)
			r.Params = int(v)
			return n, err
		case fieldRefHasThis:
			n, err := consumeVarint(typ, b, &v)
			r.HasThis = protowire.DecodeBool(v)
			return n, err
		case fieldRefReturns:
			n, err := consumeVarint(typ, b, &v)
			r.Returns = protowire.DecodeBool(v)
			return n, err
		}
		return 0, nil
	})
}

// walkFields calls fn for every field in b. fn returns the number of value
// bytes it consumed, or 0 to have the field skipped.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("expected length-delimited value, got wire type %d", typ)
	}
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = s
	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("expected varint value, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeMessage(typ protowire.Type, b []byte, decode func([]byte) error) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("expected embedded message, got wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if err := decode(v); err != nil {
		return 0, err
	}
	return n, nil
}
