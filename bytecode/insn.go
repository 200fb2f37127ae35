// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package bytecode models JVM method bodies as mutable instruction arenas.
// Instructions carry stable identities so that references (branch targets,
// injection nodes) survive insertion and removal of unrelated instructions.
package bytecode

import (
	"fmt"

	"github.com/mixweave/weave/jvm"
)

// LabelID identifies a label pseudo-instruction within one InsnList. Branch
// and switch instructions reference labels by ID rather than by pointer, so
// list mutation never invalidates a branch target.
type LabelID int

// Kind discriminates the operand shape of an Instruction.
type Kind uint8

const (
	// KindPlain is an instruction with no operands (e.g. DUP, IRETURN).
	KindPlain Kind = iota
	// KindInt is an instruction with one immediate integer operand (BIPUSH,
	// SIPUSH, NEWARRAY).
	KindInt
	// KindLdc loads a constant-pool constant (LDC and wide variants).
	KindLdc
	// KindVar addresses one local variable slot (loads, stores, RET).
	KindVar
	// KindIinc increments a local variable in place.
	KindIinc
	// KindMember references a field or method (invokes and field accesses).
	KindMember
	// KindType references a class (NEW, ANEWARRAY, CHECKCAST, INSTANCEOF).
	KindType
	// KindJump is a branch to a label.
	KindJump
	// KindSwitch is a TABLESWITCH or LOOKUPSWITCH dispatch.
	KindSwitch
	// KindLabel is a label pseudo-instruction (not a real opcode).
	KindLabel
	// KindLine is a line-number pseudo-instruction.
	KindLine
	// KindFrame is a stack-map frame pseudo-instruction.
	KindFrame
)

// FrameKind is the stack-map frame delta type.
type FrameKind uint8

const (
	// FrameSame declares locals unchanged and an empty stack.
	FrameSame FrameKind = iota
	// FrameSame1 declares locals unchanged and exactly one stack entry.
	FrameSame1
	// FrameAppend grows the locals of the previous frame.
	FrameAppend
	// FrameChop drops the trailing locals of the previous frame.
	FrameChop
	// FrameFull replaces locals and stack wholesale.
	FrameFull
)

// Instruction is one entry of an InsnList: either a real JVM instruction or
// one of the label/line/frame pseudo-instructions. Instructions are created
// through the New* constructors and must belong to at most one list at a
// time.
type Instruction struct {
	id   int
	list *InsnList

	Op   Opcode
	Kind Kind

	// Operand fields; which ones are meaningful depends on Kind.
	IntVal  int           // KindInt immediate, KindIinc increment
	Cst     any           // KindLdc constant (int32, int64, float32, float64, string, jvm.Type)
	VarIdx  int           // KindVar / KindIinc local slot
	Member  jvm.MemberRef // KindMember target
	Itf     bool          // KindMember: owner is an interface (INVOKEINTERFACE)
	VType   jvm.Type      // KindType operand
	Target  LabelID       // KindJump target
	Targets []LabelID     // KindSwitch branch targets (default last)
	Keys    []int         // KindSwitch lookup keys (LOOKUPSWITCH only)
	Label   LabelID       // KindLabel: this label's identity
	Line    int           // KindLine: source line

	// KindFrame payload.
	Frame       FrameKind
	FrameLocals []FrameEntry // KindFrame: appended (APPEND) or full (FULL) locals
	FrameStack  []FrameEntry // KindFrame: stack entries (FULL, SAME1)
	FrameChopN  int          // KindFrame: locals dropped by CHOP
}

// FrameEntry is one verification-type entry of a stack map frame. Top
// (continuation) slots are represented by the zero value.
type FrameEntry struct {
	Type jvm.Type
	Top  bool // second slot of a category-2 value
}

// IsPseudo reports whether the instruction is a label, line or frame entry
// rather than a real opcode.
func (in *Instruction) IsPseudo() bool {
	return in.Kind == KindLabel || in.Kind == KindLine || in.Kind == KindFrame
}

// ID returns the instruction's stable identity within its arena. IDs are
// never reused, even after the instruction is removed from its list.
func (in *Instruction) ID() int {
	return in.id
}

func (in *Instruction) String() string {
	switch in.Kind {
	case KindLabel:
		return fmt.Sprintf("L%d:", in.Label)
	case KindLine:
		return fmt.Sprintf(".line %d", in.Line)
	case KindFrame:
		return ".frame"
	case KindInt:
		return fmt.Sprintf("%s %d", in.Op, in.IntVal)
	case KindLdc:
		return fmt.Sprintf("%s %v", in.Op, in.Cst)
	case KindVar:
		return fmt.Sprintf("%s %d", in.Op, in.VarIdx)
	case KindIinc:
		return fmt.Sprintf("iinc %d %d", in.VarIdx, in.IntVal)
	case KindMember:
		return fmt.Sprintf("%s %s", in.Op, in.Member)
	case KindType:
		return fmt.Sprintf("%s %s", in.Op, in.VType.InternalName())
	case KindJump:
		return fmt.Sprintf("%s L%d", in.Op, in.Target)
	case KindSwitch:
		return fmt.Sprintf("%s (%d targets)", in.Op, len(in.Targets))
	default:
		return in.Op.String()
	}
}

// NewInsn creates a plain instruction with no operands.
func NewInsn(op Opcode) *Instruction {
	return &Instruction{Op: op, Kind: KindPlain}
}

// NewIntInsn creates a BIPUSH/SIPUSH/NEWARRAY instruction.
func NewIntInsn(op Opcode, operand int) *Instruction {
	return &Instruction{Op: op, Kind: KindInt, IntVal: operand}
}

// NewLdcInsn creates an LDC instruction. cst must be an int32, float32,
// string or jvm.Type; int64 and float64 stand for the wide (LDC2_W) long and
// double constants.
func NewLdcInsn(cst any) *Instruction {
	return &Instruction{Op: LDC, Kind: KindLdc, Cst: cst}
}

// NewVarInsn creates a local variable load/store instruction.
func NewVarInsn(op Opcode, slot int) *Instruction {
	return &Instruction{Op: op, Kind: KindVar, VarIdx: slot}
}

// NewIincInsn creates an IINC instruction.
func NewIincInsn(slot int, incr int) *Instruction {
	return &Instruction{Op: IINC, Kind: KindIinc, VarIdx: slot, IntVal: incr}
}

// NewMethodInsn creates a method invocation instruction.
func NewMethodInsn(op Opcode, ref jvm.MemberRef) *Instruction {
	return &Instruction{Op: op, Kind: KindMember, Member: ref, Itf: op == INVOKEINTERFACE}
}

// NewFieldInsn creates a field access instruction.
func NewFieldInsn(op Opcode, ref jvm.MemberRef) *Instruction {
	return &Instruction{Op: op, Kind: KindMember, Member: ref}
}

// NewTypeInsn creates a NEW/ANEWARRAY/CHECKCAST/INSTANCEOF instruction.
func NewTypeInsn(op Opcode, t jvm.Type) *Instruction {
	return &Instruction{Op: op, Kind: KindType, VType: t}
}

// NewJumpInsn creates a branch instruction targeting the given label.
func NewJumpInsn(op Opcode, target LabelID) *Instruction {
	return &Instruction{Op: op, Kind: KindJump, Target: target}
}

// NewLineInsn creates a line-number pseudo-instruction.
func NewLineInsn(line int) *Instruction {
	return &Instruction{Kind: KindLine, Line: line}
}

// NewFrameInsn creates a stack-map frame pseudo-instruction.
func NewFrameInsn(kind FrameKind, locals []FrameEntry, stack []FrameEntry, chop int) *Instruction {
	return &Instruction{Kind: KindFrame, Frame: kind, FrameLocals: locals, FrameStack: stack, FrameChopN: chop}
}
