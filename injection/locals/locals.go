// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package locals reconstructs the local variable table of methods whose
// debug information was stripped, by abstract interpretation of the
// instruction stream: stack-map frames reset the table authoritatively,
// store instructions update individual slots.
package locals

import (
	"fmt"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/jvm"
)

// Entry describes one live local variable slot at a program point. The
// second slot of a category-2 value is represented by a nil entry in the
// resolved table.
type Entry struct {
	Slot int
	Name string // from debug info when available, else synthesized
	Type jvm.Type
}

// Resolve computes the local variable table in effect immediately before the
// target instruction. The returned slice is indexed by slot; dead or
// continuation slots are nil. It fails when target does not belong to the
// method.
func Resolve(m *bytecode.Method, target *bytecode.Instruction) ([]*Entry, error) {
	list := m.Instructions
	stop := list.IndexOf(target)
	if stop < 0 {
		return nil, fmt.Errorf("instruction %v is not part of %s", target, m)
	}

	frame := newFrameState(m)
	for i := 0; i < stop; i++ {
		in := list.At(i)
		switch in.Kind {
		case bytecode.KindFrame:
			frame.applyFrame(in)
		case bytecode.KindVar:
			if in.Op.IsStore() {
				frame.store(in.VarIdx, storeType(in.Op))
			}
		}
	}
	return frame.snapshot(m), nil
}

// frameState tracks the inferred type occupying each local slot.
type frameState struct {
	slots []*jvm.Type // nil = dead or continuation slot
	// argSlots is the frame size established by the method arguments; CHOP
	// never shrinks below the implicit frame of an empty-locals FULL frame.
	argSlots int
}

func newFrameState(m *bytecode.Method) *frameState {
	fs := &frameState{}
	if !m.IsStatic() {
		this := jvm.ObjectType(m.Owner)
		fs.set(0, this)
	}
	slot := m.FirstArgSlot()
	for _, arg := range m.Descriptor().Args {
		fs.set(slot, arg)
		slot += arg.Size()
	}
	fs.argSlots = slot
	return fs
}

func (fs *frameState) set(slot int, t jvm.Type) {
	for len(fs.slots) <= slot+t.Size()-1 {
		fs.slots = append(fs.slots, nil)
	}
	tt := t
	fs.slots[slot] = &tt
	if t.Size() == 2 {
		// continuation slot
		fs.slots[slot+1] = nil
	}
}

func (fs *frameState) store(slot int, t jvm.Type) {
	fs.set(slot, t)
}

// applyFrame folds one stack-map frame into the state. SAME and SAME1 leave
// locals untouched; APPEND grows the previous frame; CHOP shrinks it,
// nulling the removed tail; FULL replaces it wholesale.
func (fs *frameState) applyFrame(in *bytecode.Instruction) {
	switch in.Frame {
	case bytecode.FrameSame, bytecode.FrameSame1:
		// locals unchanged
	case bytecode.FrameAppend:
		slot := fs.topSlot()
		for _, entry := range in.FrameLocals {
			if entry.Top {
				continue
			}
			fs.set(slot, entry.Type)
			slot += entry.Type.Size()
		}
	case bytecode.FrameChop:
		for n := in.FrameChopN; n > 0; n-- {
			fs.chopOne()
		}
	case bytecode.FrameFull:
		fs.slots = fs.slots[:0]
		slot := 0
		for _, entry := range in.FrameLocals {
			if entry.Top {
				slot++
				continue
			}
			fs.set(slot, entry.Type)
			slot += entry.Type.Size()
		}
	}
}

// topSlot returns the first slot past the last live entry.
func (fs *frameState) topSlot() int {
	for i := len(fs.slots) - 1; i >= 0; i-- {
		if fs.slots[i] != nil {
			return i + fs.slots[i].Size()
		}
	}
	return 0
}

// chopOne removes the last live local, including the continuation slot of a
// category-2 value.
func (fs *frameState) chopOne() {
	for i := len(fs.slots) - 1; i >= 0; i-- {
		if fs.slots[i] == nil {
			continue
		}
		fs.slots = fs.slots[:i]
		return
	}
}

// snapshot converts the raw slot state into entries, naming slots from the
// method's debug table when one exists.
func (fs *frameState) snapshot(m *bytecode.Method) []*Entry {
	entries := make([]*Entry, len(fs.slots))
	for slot, t := range fs.slots {
		if t == nil {
			continue
		}
		entries[slot] = &Entry{
			Slot: slot,
			Name: debugName(m, slot),
			Type: *t,
		}
	}
	return entries
}

func debugName(m *bytecode.Method, slot int) string {
	for _, lv := range m.LocalVariables {
		if lv.Slot == slot {
			return lv.Name
		}
	}
	return fmt.Sprintf("var%d", slot)
}

func storeType(op bytecode.Opcode) jvm.Type {
	switch op {
	case bytecode.ISTORE:
		return jvm.Int
	case bytecode.LSTORE:
		return jvm.Long
	case bytecode.FSTORE:
		return jvm.Float
	case bytecode.DSTORE:
		return jvm.Double
	default:
		return jvm.ObjectType("java/lang/Object")
	}
}
