// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package bytecode

import (
	"fmt"
)

// View is a read-only window over a contiguous run of instructions.
// Injection-point matchers scan views: either a whole InsnList or a slice
// section of one.
type View interface {
	// Len returns the number of instructions in the view.
	Len() int
	// At returns the instruction at index i within the view.
	At(i int) *Instruction
	// IndexOf returns the index of in within the view, or -1 if the
	// instruction is not part of it.
	IndexOf(in *Instruction) int
}

// InsnList is the mutable instruction sequence of one method. Every
// instruction belongs to at most one list; insertion and removal preserve the
// relative order of untouched instructions, and branch targets reference
// labels by stable ID so they remain consistent across mutation.
type InsnList struct {
	insns  []*Instruction
	index  map[int]int // instruction ID -> physical position
	nextID int
	labels int
}

// NewInsnList creates an empty instruction list.
func NewInsnList() *InsnList {
	return &InsnList{index: make(map[int]int)}
}

// Len returns the number of instructions in the list.
func (l *InsnList) Len() int {
	return len(l.insns)
}

// At returns the instruction at physical position i.
func (l *InsnList) At(i int) *Instruction {
	return l.insns[i]
}

// IndexOf returns the physical position of in, or -1 if the instruction does
// not belong to this list.
func (l *InsnList) IndexOf(in *Instruction) int {
	if in == nil || in.list != l {
		return -1
	}
	return l.index[in.id]
}

// Contains reports whether in currently belongs to this list.
func (l *InsnList) Contains(in *Instruction) bool {
	return in != nil && in.list == l
}

// First returns the first instruction, or nil for an empty list.
func (l *InsnList) First() *Instruction {
	if len(l.insns) == 0 {
		return nil
	}
	return l.insns[0]
}

// Last returns the last instruction, or nil for an empty list.
func (l *InsnList) Last() *Instruction {
	if len(l.insns) == 0 {
		return nil
	}
	return l.insns[len(l.insns)-1]
}

// NewLabel creates a fresh label pseudo-instruction owned by this list's
// label namespace. The label still has to be added where it belongs.
func (l *InsnList) NewLabel() *Instruction {
	l.labels++
	return &Instruction{Kind: KindLabel, Label: LabelID(l.labels)}
}

// LabelTarget returns the label instruction with the given ID, or nil if the
// label is not present in the list.
func (l *InsnList) LabelTarget(id LabelID) *Instruction {
	for _, in := range l.insns {
		if in.Kind == KindLabel && in.Label == id {
			return in
		}
	}
	return nil
}

// Add appends instructions to the end of the list.
func (l *InsnList) Add(insns ...*Instruction) {
	for _, in := range insns {
		l.adopt(in)
		l.index[in.id] = len(l.insns)
		l.insns = append(l.insns, in)
	}
}

// InsertBefore inserts insns immediately before mark, preserving their order.
// It panics if mark is not part of the list.
func (l *InsnList) InsertBefore(mark *Instruction, insns ...*Instruction) {
	l.insertAt(l.mustIndexOf(mark), insns)
}

// InsertAfter inserts insns immediately after mark, preserving their order.
// It panics if mark is not part of the list.
func (l *InsnList) InsertAfter(mark *Instruction, insns ...*Instruction) {
	l.insertAt(l.mustIndexOf(mark)+1, insns)
}

// Replace substitutes newIn for oldIn at the same physical position. It
// panics if oldIn is not part of the list.
func (l *InsnList) Replace(oldIn, newIn *Instruction) {
	pos := l.mustIndexOf(oldIn)
	l.adopt(newIn)
	delete(l.index, oldIn.id)
	oldIn.list = nil
	l.insns[pos] = newIn
	l.index[newIn.id] = pos
}

// Remove deletes in from the list. It panics if in is not part of the list.
func (l *InsnList) Remove(in *Instruction) {
	pos := l.mustIndexOf(in)
	delete(l.index, in.id)
	in.list = nil
	l.insns = append(l.insns[:pos], l.insns[pos+1:]...)
	l.reindexFrom(pos)
}

// Section returns a read-only view of the instructions in [from, to)
// (physical positions). It panics when the bounds are invalid.
func (l *InsnList) Section(from, to int) View {
	if from < 0 || to > len(l.insns) || from > to {
		panic(fmt.Errorf("invalid section [%d, %d) of list with %d instructions", from, to, len(l.insns)))
	}
	return &section{list: l, from: from, to: to}
}

func (l *InsnList) adopt(in *Instruction) {
	if in.list == l {
		panic(fmt.Errorf("instruction %v is already part of this list", in))
	}
	if in.list != nil {
		panic(fmt.Errorf("instruction %v belongs to another list", in))
	}
	l.nextID++
	in.id = l.nextID
	in.list = l
}

func (l *InsnList) insertAt(pos int, insns []*Instruction) {
	if len(insns) == 0 {
		return
	}
	for _, in := range insns {
		l.adopt(in)
	}
	l.insns = append(l.insns[:pos], append(append([]*Instruction{}, insns...), l.insns[pos:]...)...)
	l.reindexFrom(pos)
}

func (l *InsnList) mustIndexOf(in *Instruction) int {
	idx := l.IndexOf(in)
	if idx < 0 {
		panic(fmt.Errorf("instruction %v is not part of this list", in))
	}
	return idx
}

func (l *InsnList) reindexFrom(pos int) {
	for i := pos; i < len(l.insns); i++ {
		l.index[l.insns[i].id] = i
	}
}

// section is a View over a sub-range of an InsnList. It observes mutations of
// its backing list through the live position lookup, which matchers must not
// trigger while scanning.
type section struct {
	list *InsnList
	from int
	to   int
}

func (s *section) Len() int {
	return s.to - s.from
}

func (s *section) At(i int) *Instruction {
	return s.list.At(s.from + i)
}

func (s *section) IndexOf(in *Instruction) int {
	idx := s.list.IndexOf(in)
	if idx < s.from || idx >= s.to {
		return -1
	}
	return idx - s.from
}
