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

// modifyConstantInjector routes a matched constant through the handler at the
// point the constant is loaded. Zero-comparison jumps matched through
// condition expansion are rewritten into an explicit comparison against the
// handler's result.
type modifyConstantInjector struct {
	info        *Info
	handlerDesc jvm.MethodDescriptor
}

func newModifyConstantInjector(info *Info, handlerDesc jvm.MethodDescriptor) (Injector, error) {
	if len(handlerDesc.Args) != 1 || handlerDesc.Args[0].Descriptor() != handlerDesc.Return.Descriptor() {
		return nil, &InvalidSpecError{
			Origin: Origin{Mixin: info.Mixin, Kind: info.Kind, Handler: info.Handler.String()},
			Err:    fmt.Errorf("constant modifier handlers must have shape (T)T, got %s", info.Handler.Desc),
		}
	}
	return &modifyConstantInjector{info: info, handlerDesc: handlerDesc}, nil
}

func (inj *modifyConstantInjector) Inject(t *Target, n *node.Node) (bool, error) {
	if n.IsRemoved() {
		return false, conflictAt(inj.info, t, n)
	}
	if n.HasDecoration(DecorationModifiedConstant) {
		return false, &ConflictError{
			Origin: inj.info.origin(t),
			Other:  n.Decoration(DecorationModifiedConstant).(string),
			Reason: "constant is already modified",
		}
	}
	target := n.Current()

	var err error
	switch {
	case target.Op.IsZeroComparison():
		err = inj.injectAtComparison(t, target)
	case target.Op.IsConstant():
		err = inj.injectAtConstant(t, target)
	default:
		err = &ConflictError{
			Origin: inj.info.origin(t),
			Reason: fmt.Sprintf("cannot modify a %s instruction as a constant", target.Op),
		}
	}
	if err != nil {
		return false, err
	}
	n.Decorate(DecorationModifiedConstant, inj.info.origin(t).String())
	return true, nil
}

func (inj *modifyConstantInjector) injectAtConstant(t *Target, target *bytecode.Instruction) error {
	constType, ok := bytecode.ConstantType(target)
	if !ok || constType.Descriptor() != inj.handlerDesc.Args[0].Descriptor() {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: fmt.Sprintf("constant is %s, handler modifies %s", constType, inj.handlerDesc.Args[0]),
		}
	}
	seq, extra, err := inj.handlerSequence(t, constType)
	if err != nil {
		return err
	}
	t.InsertAfter(target, seq...)
	t.GrowStack(constType.Size() + extra)
	return nil
}

// injectAtComparison rewrites "IFxx label" into "ICONST_0; <handler>;
// IF_ICMPxx label" so a zero literal that only exists implicitly in the
// comparison still flows through the handler.
func (inj *modifyConstantInjector) injectAtComparison(t *Target, target *bytecode.Instruction) error {
	if inj.handlerDesc.Args[0].Descriptor() != "I" {
		return &ConflictError{
			Origin: inj.info.origin(t),
			Reason: "expanded zero comparisons require an int handler",
		}
	}
	seq, extra, err := inj.handlerSequence(t, jvm.Int)
	if err != nil {
		return err
	}
	pre := append([]*bytecode.Instruction{bytecode.PushInt(0)}, seq...)
	t.InsertBefore(target, pre...)
	t.Replace(target, bytecode.NewJumpInsn(target.Op.ToComparison(), target.Target))
	t.GrowStack(2 + extra)
	return nil
}

// handlerSequence builds the instructions invoking the handler on the value
// currently on top of the stack, leaving the result in its place. Instance
// handlers need the receiver underneath the value, so the value takes a trip
// through a fresh local. The extra return value is the additional stack the
// sequence itself needs beyond the operand already present.
func (inj *modifyConstantInjector) handlerSequence(t *Target, valueType jvm.Type) ([]*bytecode.Instruction, int, error) {
	if inj.info.HandlerStatic {
		return []*bytecode.Instruction{handlerCall(inj.info)}, 0, nil
	}
	if t.Method.IsStatic() {
		return nil, 0, &ConflictError{
			Origin: inj.info.origin(t),
			Reason: "instance handler cannot be called from a static target method",
		}
	}
	slot := t.AllocateLocals(valueType.Size())
	return []*bytecode.Instruction{
		bytecode.StoreInsn(valueType, slot),
		loadThis(),
		bytecode.LoadInsn(valueType, slot),
		handlerCall(inj.info),
	}, 1, nil
}
