// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package injection

import (
	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/injection/node"
)

// Target is the accounting context for one method under transformation. All
// instruction mutation performed by injectors is routed through it so the
// injection node registry stays synchronized, and so the accumulated
// max-stack/max-locals demands of successive injections remain valid.
type Target struct {
	// ClassName is the internal name of the class being transformed.
	ClassName string
	// Method is the live method body.
	Method *bytecode.Method
	// Nodes is the per-method injection node ledger.
	Nodes node.Registry

	origMaxStack  int
	origMaxLocals int
	stackExtra    int
}

// NewTarget wraps a method for transformation.
func NewTarget(className string, m *bytecode.Method) *Target {
	return &Target{
		ClassName:     className,
		Method:        m,
		origMaxStack:  m.MaxStack,
		origMaxLocals: m.MaxLocals,
	}
}

// GrowStack records that inserted code needs extra operand stack slots on
// top of what the original method used. The running maximum across all
// injections is folded into the method's declared max stack.
func (t *Target) GrowStack(extra int) {
	if extra > t.stackExtra {
		t.stackExtra = extra
		if t.origMaxStack+extra > t.Method.MaxStack {
			t.Method.MaxStack = t.origMaxStack + extra
		}
	}
}

// AllocateLocals reserves n fresh local variable slots and returns the first
// one. Injectors use fresh slots for marshaling values; slots are never
// reused within one transformation pass.
func (t *Target) AllocateLocals(n int) int {
	first := t.Method.MaxLocals
	t.Method.MaxLocals += n
	return first
}

// InsertBefore splices insns immediately before mark.
func (t *Target) InsertBefore(mark *bytecode.Instruction, insns ...*bytecode.Instruction) {
	t.Method.Instructions.InsertBefore(mark, insns...)
}

// InsertAfter splices insns immediately after mark.
func (t *Target) InsertAfter(mark *bytecode.Instruction, insns ...*bytecode.Instruction) {
	t.Method.Instructions.InsertAfter(mark, insns...)
}

// Replace substitutes newIn for oldIn and updates the node ledger so later
// injectors resolve the node through either identity.
func (t *Target) Replace(oldIn, newIn *bytecode.Instruction) {
	t.Method.Instructions.Replace(oldIn, newIn)
	t.Nodes.Replace(oldIn, newIn)
}

// Remove deletes in and marks its node (if any) removed, so later injectors
// targeting it fail with a conflict instead of splicing at a stale position.
func (t *Target) Remove(in *bytecode.Instruction) {
	t.Method.Instructions.Remove(in)
	t.Nodes.Remove(in)
}
