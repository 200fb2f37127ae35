// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package bytecode

import (
	"fmt"

	"github.com/mixweave/weave/jvm"
)

// Method is one method body under transformation: its identity, access
// flags, instruction list, frame budget and (when the class was compiled with
// debug information) local variable table.
type Method struct {
	Owner  string // internal name of the declaring class
	Name   string
	Desc   string
	Access int

	Instructions *InsnList
	MaxStack     int
	MaxLocals    int

	// LocalVariables is the debug local variable table. Obfuscated classes
	// usually ship without one; see the locals package for reconstruction.
	LocalVariables []LocalVariable

	parsedDesc *jvm.MethodDescriptor
}

// LocalVariable is one debug local-variable-table entry.
type LocalVariable struct {
	Name  string
	Type  jvm.Type
	Slot  int
	Start LabelID
	End   LabelID
}

// NewMethod creates an empty method with the given identity.
func NewMethod(owner, name, desc string, access int) *Method {
	return &Method{
		Owner:        owner,
		Name:         name,
		Desc:         desc,
		Access:       access,
		Instructions: NewInsnList(),
	}
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool {
	return m.Access&jvm.AccStatic != 0
}

// Ref returns the method's member reference.
func (m *Method) Ref() jvm.MemberRef {
	return jvm.MemberRef{Owner: m.Owner, Name: m.Name, Desc: m.Desc}
}

// Descriptor returns the parsed method descriptor, computing it on first
// use. It panics if the descriptor string is malformed, which indicates the
// method was constructed incorrectly.
func (m *Method) Descriptor() jvm.MethodDescriptor {
	if m.parsedDesc == nil {
		md, err := jvm.ParseMethodDescriptor(m.Desc)
		if err != nil {
			panic(fmt.Errorf("method %s.%s: %w", m.Owner, m.Name, err))
		}
		m.parsedDesc = &md
	}
	return *m.parsedDesc
}

// FirstArgSlot returns the local slot of the first declared argument: 0 for
// static methods, 1 otherwise ("this" occupies slot 0).
func (m *Method) FirstArgSlot() int {
	if m.IsStatic() {
		return 0
	}
	return 1
}

// ArgSlotOf returns the local variable slot holding argument index i,
// accounting for category-2 arguments and the implicit receiver.
func (m *Method) ArgSlotOf(i int) int {
	slot := m.FirstArgSlot()
	for idx, arg := range m.Descriptor().Args {
		if idx == i {
			break
		}
		slot += arg.Size()
	}
	return slot
}

func (m *Method) String() string {
	return fmt.Sprintf("%s.%s%s", m.Owner, m.Name, m.Desc)
}
