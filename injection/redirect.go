// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package injection

import (
	"fmt"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/injection/node"
	"github.com/mixweave/weave/jvm"
)

// redirectInjector replaces a matched call, field access, array access or
// constructor with a call to the handler, reshaping arguments so the original
// receiver (when there is one) becomes the leading handler argument.
type redirectInjector struct {
	info        *Info
	handlerDesc jvm.MethodDescriptor
}

func newRedirectInjector(info *Info, handlerDesc jvm.MethodDescriptor) (Injector, error) {
	return &redirectInjector{info: info, handlerDesc: handlerDesc}, nil
}

func (inj *redirectInjector) Inject(t *Target, n *node.Node) (bool, error) {
	if n.IsRemoved() {
		return false, conflictAt(inj.info, t, n)
	}
	if n.HasDecoration(DecorationRedirected) {
		return false, &ConflictError{
			Origin: inj.info.origin(t),
			Other:  n.Decoration(DecorationRedirected).(string),
			Reason: "target instruction is already redirected",
		}
	}
	target := n.Current()

	var err error
	switch {
	case target.Op == bytecode.NEW:
		err = inj.redirectConstructor(t, target)
	case target.Op.IsInvoke():
		err = inj.redirectInvoke(t, target)
	case target.Op.IsFieldAccess():
		err = inj.redirectFieldAccess(t, target)
	case target.Op == bytecode.ARRAYLENGTH || isArrayAccess(target.Op):
		err = inj.redirectArrayAccess(t, target)
	default:
		err = &ConflictError{
			Origin: inj.info.origin(t),
			Reason: fmt.Sprintf("cannot redirect a %s instruction", target.Op),
		}
	}
	if err != nil {
		return false, err
	}
	n.Decorate(DecorationRedirected, inj.info.origin(t).String())
	return true, nil
}

func (inj *redirectInjector) redirectInvoke(t *Target, target *bytecode.Instruction) error {
	calleeDesc, err := jvm.ParseMethodDescriptor(target.Member.Desc)
	if err != nil {
		return &InvalidSpecError{Origin: inj.info.origin(t), Err: err}
	}
	if target.Member.Name == "<init>" {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: "constructor calls are redirected through their NEW instruction",
		}
	}

	expected := jvm.MethodDescriptor{Return: calleeDesc.Return}
	if target.Op != bytecode.INVOKESTATIC {
		expected.Args = append(expected.Args, jvm.ObjectType(target.Member.Owner))
	}
	expected.Args = append(expected.Args, calleeDesc.Args...)
	captured, err := inj.checkShape(t, expected)
	if err != nil {
		return err
	}

	return inj.spliceHandler(t, target, expected, captured)
}

func (inj *redirectInjector) redirectFieldAccess(t *Target, target *bytecode.Instruction) error {
	fieldType, err := jvm.TypeOf(target.Member.Desc)
	if err != nil {
		return &InvalidSpecError{Origin: inj.info.origin(t), Err: err}
	}
	owner := jvm.ObjectType(target.Member.Owner)

	var expected jvm.MethodDescriptor
	switch target.Op {
	case bytecode.GETSTATIC:
		expected = jvm.MethodDescriptor{Return: fieldType}
	case bytecode.GETFIELD:
		expected = jvm.MethodDescriptor{Args: []jvm.Type{owner}, Return: fieldType}
	case bytecode.PUTSTATIC:
		expected = jvm.MethodDescriptor{Args: []jvm.Type{fieldType}}
	case bytecode.PUTFIELD:
		expected = jvm.MethodDescriptor{Args: []jvm.Type{owner, fieldType}}
	}
	captured, err := inj.checkShape(t, expected)
	if err != nil {
		return err
	}

	return inj.spliceHandler(t, target, expected, captured)
}

func (inj *redirectInjector) redirectArrayAccess(t *Target, target *bytecode.Instruction) error {
	// The instruction does not name the array type; trust the handler's
	// declared array argument and validate arity only.
	var wantArgs int
	switch {
	case target.Op == bytecode.ARRAYLENGTH:
		wantArgs = 1 // (array)
	case target.Op >= bytecode.IALOAD && target.Op <= bytecode.SALOAD:
		wantArgs = 2 // (array, index)
	default:
		wantArgs = 3 // (array, index, value)
	}
	if len(inj.handlerDesc.Args) != wantArgs || len(inj.handlerDesc.Args) > 0 && !inj.handlerDesc.Args[0].IsArray() {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: fmt.Sprintf("array access redirect handler must take %d arguments starting with the array", wantArgs),
		}
	}
	return inj.spliceHandler(t, target, inj.handlerDesc, false)
}

// redirectConstructor substitutes the allocation + constructor-call pair with
// a single handler call returning the constructed object. The canonical
// "NEW, DUP, <arguments>, INVOKESPECIAL <init>" shape is required.
func (inj *redirectInjector) redirectConstructor(t *Target, target *bytecode.Instruction) error {
	list := t.Method.Instructions
	idx := list.IndexOf(target)

	var dup *bytecode.Instruction
	if idx+1 < list.Len() && list.At(idx+1).Op == bytecode.DUP {
		dup = list.At(idx + 1)
	} else {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: "allocation is not followed by DUP; cannot redirect this constructor shape",
		}
	}

	ctor := findConstructorCall(list, idx, target.VType)
	if ctor == nil {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: fmt.Sprintf("no constructor call found for allocation of %s", target.VType.InternalName()),
		}
	}
	ctorDesc, err := jvm.ParseMethodDescriptor(ctor.Member.Desc)
	if err != nil {
		return &InvalidSpecError{Origin: inj.info.origin(t), Err: err}
	}

	expected := jvm.MethodDescriptor{Args: ctorDesc.Args, Return: target.VType}
	captured, err := inj.checkShape(t, expected)
	if err != nil {
		return err
	}
	if !inj.info.HandlerStatic {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: "constructor redirect handlers must be static",
		}
	}

	t.Remove(target)
	t.Remove(dup)
	if captured {
		inj.insertCapturedArgs(t, ctor)
	}
	t.Replace(ctor, handlerCall(inj.info))
	t.GrowStack(inj.handlerDesc.ArgSlots() + expected.Return.Size())
	return nil
}

// findConstructorCall locates the INVOKESPECIAL <init> consuming the
// allocation at newIdx, accounting for nested allocations of the same type.
func findConstructorCall(list *bytecode.InsnList, newIdx int, allocated jvm.Type) *bytecode.Instruction {
	depth := 0
	for i := newIdx + 1; i < list.Len(); i++ {
		in := list.At(i)
		if in.Op == bytecode.NEW && in.VType == allocated {
			depth++
			continue
		}
		if in.Op == bytecode.INVOKESPECIAL && in.Member.Name == "<init>" && in.Member.Owner == allocated.InternalName() {
			if depth == 0 {
				return in
			}
			depth--
		}
	}
	return nil
}

// checkShape validates the handler descriptor against the shape the redirect
// requires. It reports whether the handler additionally captures the target
// method's own arguments as a trailing suffix.
func (inj *redirectInjector) checkShape(t *Target, expected jvm.MethodDescriptor) (captured bool, err error) {
	if inj.handlerDesc.Return.Descriptor() != expected.Return.Descriptor() {
		return false, inj.shapeError(t, expected)
	}
	if descriptorArgsEqual(inj.handlerDesc.Args, expected.Args) {
		return false, nil
	}
	if inj.info.CaptureTargetArgs {
		withCapture := append(append([]jvm.Type{}, expected.Args...), t.Method.Descriptor().Args...)
		if descriptorArgsEqual(inj.handlerDesc.Args, withCapture) {
			return true, nil
		}
	}
	return false, inj.shapeError(t, expected)
}

func (inj *redirectInjector) shapeError(t *Target, expected jvm.MethodDescriptor) error {
	return &ConflictError{
		Origin: inj.info.origin(t),
		Reason: fmt.Sprintf("handler descriptor %s is incompatible with required shape %s", inj.info.Handler.Desc, expected),
	}
}

// spliceHandler performs the instruction replacement common to invoke, field
// and array redirects. Static handlers substitute in place; instance handlers
// marshal the operands through fresh locals to make room for the receiver.
func (inj *redirectInjector) spliceHandler(t *Target, target *bytecode.Instruction, shape jvm.MethodDescriptor, captured bool) error {
	if inj.info.HandlerStatic {
		if captured {
			inj.insertCapturedArgs(t, target)
		}
		t.Replace(target, handlerCall(inj.info))
		t.GrowStack(inj.handlerDesc.ArgSlots() + inj.handlerDesc.Return.Size())
		return nil
	}

	if t.Method.IsStatic() {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: "instance handler cannot be called from a static target method",
		}
	}
	// Pop the operands into fresh locals, push the receiver, reload.
	stores, loads := marshalThroughLocals(t, shape.Args)
	seq := append(stores, loadThis())
	seq = append(seq, loads...)
	if captured {
		seq = append(seq, inj.capturedArgLoads(t)...)
	}
	t.InsertBefore(target, seq...)
	t.Replace(target, handlerCall(inj.info))
	t.GrowStack(inj.handlerDesc.ArgSlots() + 1 + inj.handlerDesc.Return.Size())
	return nil
}

// insertCapturedArgs appends loads of the target method's own arguments
// before the handler call.
func (inj *redirectInjector) insertCapturedArgs(t *Target, before *bytecode.Instruction) {
	t.InsertBefore(before, inj.capturedArgLoads(t)...)
}

func (inj *redirectInjector) capturedArgLoads(t *Target) []*bytecode.Instruction {
	var loads []*bytecode.Instruction
	for i, arg := range t.Method.Descriptor().Args {
		loads = append(loads, bytecode.LoadInsn(arg, t.Method.ArgSlotOf(i)))
	}
	return loads
}

// marshalThroughLocals allocates one fresh local per argument and returns the
// stores draining the stack (topmost argument first) plus the loads restoring
// it in declaration order.
func marshalThroughLocals(t *Target, args []jvm.Type) (stores, loads []*bytecode.Instruction) {
	slots := make([]int, len(args))
	for i, arg := range args {
		slots[i] = t.AllocateLocals(arg.Size())
	}
	for i := len(args) - 1; i >= 0; i-- {
		stores = append(stores, bytecode.StoreInsn(args[i], slots[i]))
	}
	for i, arg := range args {
		loads = append(loads, bytecode.LoadInsn(arg, slots[i]))
	}
	return stores, loads
}

func descriptorArgsEqual(a, b []jvm.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Descriptor() != b[i].Descriptor() {
			return false
		}
	}
	return true
}

func isArrayAccess(op bytecode.Opcode) bool {
	return (op >= bytecode.IALOAD && op <= bytecode.SALOAD) || (op >= bytecode.IASTORE && op <= bytecode.SASTORE)
}
