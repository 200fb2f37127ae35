// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package point

import (
	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/jvm"
)

// MethodHead matches the first real (non-pseudo) instruction of the method.
type MethodHead struct{}

func (MethodHead) Find(_ string, view bytecode.View, out *Matches) bool {
	for i := 0; i < view.Len(); i++ {
		if in := view.At(i); !in.IsPseudo() {
			out.Add(in)
			return true
		}
	}
	return false
}

// Return matches every return-family instruction, subject to the ordinal
// filter.
type Return struct {
	Ordinal int
}

func (p Return) Find(_ string, view bytecode.View, out *Matches) bool {
	counter := ordinalCounter{ordinal: p.Ordinal}
	matched := false
	for i := 0; i < view.Len(); i++ {
		in := view.At(i)
		if !in.Op.IsReturn() || in.IsPseudo() {
			continue
		}
		emit, done := counter.accept()
		if emit {
			out.Add(in)
			matched = true
		}
		if done {
			break
		}
	}
	return matched
}

// Tail matches the textually last return-family instruction only.
type Tail struct{}

func (Tail) Find(_ string, view bytecode.View, out *Matches) bool {
	for i := view.Len() - 1; i >= 0; i-- {
		if in := view.At(i); in.Op.IsReturn() && !in.IsPseudo() {
			out.Add(in)
			return true
		}
	}
	return false
}

// Invoke matches method invocation instructions whose target member
// satisfies the pattern.
type Invoke struct {
	Target  jvm.MemberPattern
	Ordinal int
}

func (p Invoke) Find(_ string, view bytecode.View, out *Matches) bool {
	counter := ordinalCounter{ordinal: p.Ordinal}
	matched := false
	for i := 0; i < view.Len(); i++ {
		in := view.At(i)
		if in.Kind != bytecode.KindMember || !in.Op.IsInvoke() || !p.Target.Matches(in.Member) {
			continue
		}
		emit, done := counter.accept()
		if emit {
			out.Add(in)
			matched = true
		}
		if done {
			break
		}
	}
	return matched
}

// InvokeAssign matches like Invoke, then advances each match to the local
// store instruction consuming the invocation's return value. Fuzz bounds how
// many intervening real instructions may separate the call from its store;
// only arithmetic, bitwise, conversion and cast-check opcodes may be skipped.
type InvokeAssign struct {
	Target  jvm.MemberPattern
	Ordinal int
	Fuzz    int
}

// DefaultInvokeAssignFuzz is the store-search distance used when the spec
// does not configure one.
const DefaultInvokeAssignFuzz = 1

func (p InvokeAssign) Find(desc string, view bytecode.View, out *Matches) bool {
	raw := Matches{}
	if !(Invoke{Target: p.Target, Ordinal: p.Ordinal}).Find(desc, view, &raw) {
		return false
	}
	fuzz := p.Fuzz
	if fuzz <= 0 {
		fuzz = DefaultInvokeAssignFuzz
	}
	matched := false
	for _, call := range raw.Slice() {
		md, err := jvm.ParseMethodDescriptor(call.Member.Desc)
		if err != nil || md.Return.IsVoid() {
			continue
		}
		if store := findConsumingStore(view, call, fuzz); store != nil {
			out.Add(store)
			matched = true
		}
	}
	return matched
}

// findConsumingStore scans forward from call for the store consuming its
// return value, tolerating up to fuzz skippable real instructions.
func findConsumingStore(view bytecode.View, call *bytecode.Instruction, fuzz int) *bytecode.Instruction {
	idx := view.IndexOf(call)
	if idx < 0 {
		return nil
	}
	skipped := 0
	for i := idx + 1; i < view.Len(); i++ {
		in := view.At(i)
		if in.IsPseudo() {
			continue
		}
		if in.Op.IsStore() {
			return in
		}
		if !in.Op.IsSkippableBetweenCallAndStore() {
			return nil
		}
		if skipped++; skipped > fuzz {
			return nil
		}
	}
	return nil
}

// FieldAccess matches get/put field and static instructions filtered by the
// member pattern and, when Opcode is non-negative, by the exact opcode.
type FieldAccess struct {
	Target  jvm.MemberPattern
	Opcode  int
	Ordinal int
}

func (p FieldAccess) Find(_ string, view bytecode.View, out *Matches) bool {
	counter := ordinalCounter{ordinal: p.Ordinal}
	matched := false
	for i := 0; i < view.Len(); i++ {
		in := view.At(i)
		if in.Kind != bytecode.KindMember || !in.Op.IsFieldAccess() || !p.Target.Matches(in.Member) {
			continue
		}
		if p.Opcode >= 0 && bytecode.Opcode(p.Opcode) != in.Op {
			continue
		}
		emit, done := counter.accept()
		if emit {
			out.Add(in)
			matched = true
		}
		if done {
			break
		}
	}
	return matched
}

// New matches object allocation instructions by type. An empty type matches
// every allocation.
type New struct {
	Type    string // internal class name
	Ordinal int
}

func (p New) Find(_ string, view bytecode.View, out *Matches) bool {
	counter := ordinalCounter{ordinal: p.Ordinal}
	matched := false
	for i := 0; i < view.Len(); i++ {
		in := view.At(i)
		if in.Op != bytecode.NEW {
			continue
		}
		if p.Type != "" && in.VType.InternalName() != p.Type {
			continue
		}
		emit, done := counter.accept()
		if emit {
			out.Add(in)
			matched = true
		}
		if done {
			break
		}
	}
	return matched
}

// StringInvoke matches invocations of single-String-argument methods whose
// argument is the given string literal, loaded immediately before the call.
type StringInvoke struct {
	Target  jvm.MemberPattern
	Literal string
	Ordinal int
}

func (p StringInvoke) Find(_ string, view bytecode.View, out *Matches) bool {
	counter := ordinalCounter{ordinal: p.Ordinal}
	matched := false
	var prev *bytecode.Instruction
	for i := 0; i < view.Len(); i++ {
		in := view.At(i)
		if in.IsPseudo() {
			continue
		}
		lastReal := prev
		prev = in
		if in.Kind != bytecode.KindMember || !in.Op.IsInvoke() || !p.Target.Matches(in.Member) {
			continue
		}
		if !takesSingleString(in.Member.Desc) || lastReal == nil || lastReal.Op != bytecode.LDC {
			continue
		}
		if lit, ok := lastReal.Cst.(string); !ok || lit != p.Literal {
			continue
		}
		emit, done := counter.accept()
		if emit {
			out.Add(in)
			matched = true
		}
		if done {
			break
		}
	}
	return matched
}

func takesSingleString(desc string) bool {
	md, err := jvm.ParseMethodDescriptor(desc)
	return err == nil && len(md.Args) == 1 && md.Args[0].InternalName() == "java/lang/String"
}

// Jump matches branch instructions. Opcode restricts to one branch opcode
// when non-negative.
type Jump struct {
	Opcode  int
	Ordinal int
}

func (p Jump) Find(_ string, view bytecode.View, out *Matches) bool {
	counter := ordinalCounter{ordinal: p.Ordinal}
	matched := false
	for i := 0; i < view.Len(); i++ {
		in := view.At(i)
		if in.Kind != bytecode.KindJump {
			continue
		}
		if p.Opcode >= 0 && bytecode.Opcode(p.Opcode) != in.Op {
			continue
		}
		emit, done := counter.accept()
		if emit {
			out.Add(in)
			matched = true
		}
		if done {
			break
		}
	}
	return matched
}

// Constant matches literal loads. At least one expectation must be set
// unless MatchAll is. With ExpandZeroConditions, single-operand
// zero-comparison branches are additionally matched as implicit zero
// constants; this is opt-in because it changes ordinal semantics.
type Constant struct {
	MatchNull   bool
	IntValue    *int64
	FloatValue  *float64
	StringValue *string
	ClassValue  *string
	MatchAll    bool

	ExpandZeroConditions bool
	Ordinal              int
}

func (p Constant) Find(_ string, view bytecode.View, out *Matches) bool {
	counter := ordinalCounter{ordinal: p.Ordinal}
	matched := false
	for i := 0; i < view.Len(); i++ {
		in := view.At(i)
		if !p.matches(in) {
			continue
		}
		emit, done := counter.accept()
		if emit {
			out.Add(in)
			matched = true
		}
		if done {
			break
		}
	}
	return matched
}

func (p Constant) matches(in *bytecode.Instruction) bool {
	if in.IsPseudo() {
		return false
	}
	if p.ExpandZeroConditions && in.Op.IsZeroComparison() {
		// The compiled zero-comparison idiom: the zero never appears as an
		// explicit constant, the branch opcode implies it.
		return p.MatchAll || (p.IntValue != nil && *p.IntValue == 0)
	}
	value, ok := bytecode.ConstantValue(in)
	if !ok {
		return false
	}
	if p.MatchAll {
		return true
	}
	switch v := value.(type) {
	case nil:
		return p.MatchNull
	case int64:
		return p.IntValue != nil && *p.IntValue == v
	case float64:
		return p.FloatValue != nil && *p.FloatValue == v
	case string:
		return p.StringValue != nil && *p.StringValue == v
	case jvm.Type:
		return p.ClassValue != nil && *p.ClassValue == v.InternalName()
	default:
		return false
	}
}
