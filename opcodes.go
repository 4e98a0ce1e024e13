// opcodes.go: instruction set, member references and stack verification
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"strconv"
)

// OpCode identifies an instruction. Only the operations the injection
// engine emits are modelled; everything else decodes as OpUnknown and is
// carried through untouched.
type OpCode uint8

const (
	OpUnknown OpCode = iota
	OpNop
	OpLdstr
	OpLdcI4
	OpLdnull
	OpLdarg0
	OpLdfld
	OpDup
	OpCall
	OpCallvirt
	OpNewarr
	OpStelemRef
	OpBox
	OpPop
	OpRet
)

var opNames = map[OpCode]string{
	OpUnknown:   "unknown",
	OpNop:       "nop",
	OpLdstr:     "ldstr",
	OpLdcI4:     "ldc.i4",
	OpLdnull:    "ldnull",
	OpLdarg0:    "ldarg.0",
	OpLdfld:     "ldfld",
	OpDup:       "dup",
	OpCall:      "call",
	OpCallvirt:  "callvirt",
	OpNewarr:    "newarr",
	OpStelemRef: "stelem.ref",
	OpBox:       "box",
	OpPop:       "pop",
	OpRet:       "ret",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// Instruction is one operation in a method body. Int holds integer
// operands, Str string operands, and Token a 1-based member reference.
type Instruction struct {
	Op    OpCode
	Int   int64
	Str   string
	Token int
}

func (i Instruction) String() string {
	switch i.Op {
	case OpLdstr:
		return fmt.Sprintf("%s %q", i.Op, i.Str)
	case OpLdcI4:
		return fmt.Sprintf("%s %d", i.Op, i.Int)
	case OpLdfld, OpCall, OpCallvirt, OpNewarr, OpBox:
		return fmt.Sprintf("%s #%d", i.Op, i.Token)
	default:
		return i.Op.String()
	}
}

// RefKind tells what a MemberRef points at.
type RefKind uint8

const (
	RefMethod RefKind = iota + 1
	RefField
	RefType
)

// MemberRef names a method, field or type, possibly in another assembly.
// Params, HasThis and Returns describe a method's stack effect.
type MemberRef struct {
	Kind          RefKind
	Assembly      string
	DeclaringType string
	Name          string
	Params        int
	HasThis       bool
	Returns       bool
}

func (r MemberRef) key() string {
	return fmt.Sprintf("%d|%s|%s|%s|%d|%t|%t", r.Kind, r.Assembly, r.DeclaringType, r.Name, r.Params, r.HasThis, r.Returns)
}

// FullName returns DeclaringType::Name, or the type name for type refs.
func (r MemberRef) FullName() string {
	if r.Kind == RefType {
		return r.DeclaringType
	}
	return r.DeclaringType + "::" + r.Name
}

// stackEffect returns how many values op pops and pushes.
func stackEffect(m *Module, ins Instruction) (pop, push int, err error) {
	switch ins.Op {
	case OpNop, OpRet:
		return 0, 0, nil
	case OpLdstr, OpLdcI4, OpLdnull, OpLdarg0:
		return 0, 1, nil
	case OpLdfld, OpNewarr, OpBox:
		if _, ok := m.Reference(ins.Token); !ok {
			return 0, 0, fmt.Errorf("%s references unknown token %d", ins.Op, ins.Token)
		}
		return 1, 1, nil
	case OpDup:
		return 1, 2, nil
	case OpStelemRef:
		return 3, 0, nil
	case OpPop:
		return 1, 0, nil
	case OpCall, OpCallvirt:
		ref, ok := m.Reference(ins.Token)
		if !ok || ref.Kind != RefMethod {
			return 0, 0, fmt.Errorf("%s references unknown method token %d", ins.Op, ins.Token)
		}
		if ins.Op == OpCallvirt && !ref.HasThis {
			return 0, 0, fmt.Errorf("callvirt on static method %s", ref.FullName())
		}
		pop = ref.Params
		if ref.HasThis {
			pop++
		}
		if ref.Returns {
			push = 1
		}
		return pop, push, nil
	default:
		return 0, 0, fmt.Errorf("opcode %s has no known stack effect", ins.Op)
	}
}

// VerifyStack simulates seq against m's member references. The stack must
// never underflow and must be empty after the last instruction. It returns
// the maximum depth reached.
func VerifyStack(m *Module, siteID string, seq []Instruction) (int, error) {
	depth, maxDepth := 0, 0
	for i, ins := range seq {
		pop, push, err := stackEffect(m, ins)
		if err != nil {
			return 0, NewInvalidSequenceError(siteID, i, err.Error())
		}
		if depth < pop {
			return 0, NewInvalidSequenceError(siteID, i,
				fmt.Sprintf("stack underflow at %s (depth %d, needs %d)", ins, depth, pop))
		}
		depth += push - pop
		if depth > maxDepth {
			maxDepth = depth
		}
		if ins.Op == OpRet && depth != 0 {
			return 0, NewInvalidSequenceError(siteID, i,
				fmt.Sprintf("return with %d values on the stack", depth))
		}
	}
	if depth != 0 {
		return 0, NewInvalidSequenceError(siteID, len(seq),
			fmt.Sprintf("sequence leaves %d values on the stack", depth))
	}
	return maxDepth, nil
}
