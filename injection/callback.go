// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package injection

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/injection/locals"
	"github.com/mixweave/weave/injection/node"
	"github.com/mixweave/weave/jvm"
)

// Runtime carrier classes passed to callback handlers.
const (
	CallbackInfoClass           = "weave/runtime/CallbackInfo"
	CallbackInfoReturnableClass = "weave/runtime/CallbackInfoReturnable"
)

// callbackInjector inserts a handler call at each matched point, passing the
// target method's parameters, a callback-info carrier and (optionally) the
// locals in scope. Cancellable callbacks additionally splice conditional
// return logic keyed off the carrier's cancellation flag.
type callbackInjector struct {
	info        *Info
	handlerDesc jvm.MethodDescriptor
	lv          *locals.Cache
	carrierIdx  int // index of the carrier argument in the handler descriptor
}

func newCallbackInjector(info *Info, handlerDesc jvm.MethodDescriptor, lv *locals.Cache) (Injector, error) {
	carrierIdx := -1
	for i, arg := range handlerDesc.Args {
		name := arg.InternalName()
		if name == CallbackInfoClass || name == CallbackInfoReturnableClass {
			carrierIdx = i
			break
		}
	}
	if carrierIdx < 0 {
		return nil, &InvalidSpecError{
			Origin: info.origin(nil),
			Err:    fmt.Errorf("callback handler %s%s takes no callback-info argument", info.Handler.Name, info.Handler.Desc),
		}
	}
	if !handlerDesc.Return.IsVoid() {
		return nil, &InvalidSpecError{
			Origin: info.origin(nil),
			Err:    fmt.Errorf("callback handler %s must return void", info.Handler.Name),
		}
	}
	return &callbackInjector{info: info, handlerDesc: handlerDesc, lv: lv, carrierIdx: carrierIdx}, nil
}

func (inj *callbackInjector) Inject(t *Target, n *node.Node) (bool, error) {
	if n.IsRemoved() {
		return false, conflictAt(inj.info, t, n)
	}
	target := n.Current()

	if !inj.info.HandlerStatic && t.Method.IsStatic() {
		return false, &ConflictError{
			Origin: inj.info.origin(t),
			Reason: "instance handler cannot be called from a static target method",
		}
	}

	captured, skip, err := inj.capturedLocals(t, target)
	if err != nil {
		return false, err
	}
	if skip {
		return false, nil
	}

	carrier := inj.handlerDesc.Args[inj.carrierIdx]
	returnable := carrier.InternalName() == CallbackInfoReturnableClass
	if returnable == t.Method.Descriptor().Return.IsVoid() {
		return false, &ConflictError{
			Origin: inj.info.origin(t),
			Reason: fmt.Sprintf("callback carrier %s does not fit target return type %s", carrier.InternalName(), t.Method.Descriptor().Return),
		}
	}

	var seq []*bytecode.Instruction
	stack := 0
	if !inj.info.HandlerStatic {
		seq = append(seq, loadThis())
		stack++
	}

	// Standard parameters of the target method.
	for i, arg := range t.Method.Descriptor().Args {
		seq = append(seq, bytecode.LoadInsn(arg, t.Method.ArgSlotOf(i)))
		stack += arg.Size()
	}

	// Construct the carrier; cancellable callbacks keep a reference in a
	// fresh local to interrogate afterwards.
	cancel := bytecode.ICONST_0
	if inj.info.Cancellable {
		cancel = bytecode.ICONST_1
	}
	seq = append(seq,
		bytecode.NewTypeInsn(bytecode.NEW, jvm.ObjectType(carrier.InternalName())),
		bytecode.NewInsn(bytecode.DUP),
		bytecode.NewLdcInsn(t.Method.Name),
		bytecode.NewInsn(cancel),
		bytecode.NewMethodInsn(bytecode.INVOKESPECIAL, jvm.MemberRef{
			Owner: carrier.InternalName(),
			Name:  "<init>",
			Desc:  "(Ljava/lang/String;Z)V",
		}),
	)
	stack += 4 // carrier ref + dup + name + flag

	ciSlot := -1
	if inj.info.Cancellable {
		ciSlot = t.AllocateLocals(1)
		seq = append(seq,
			bytecode.NewInsn(bytecode.DUP),
			bytecode.StoreInsn(carrier, ciSlot),
		)
		stack++
	}

	for _, entry := range captured {
		seq = append(seq, bytecode.LoadInsn(entry.Type, entry.Slot))
		stack += entry.Type.Size()
	}

	seq = append(seq, handlerCall(inj.info))

	if inj.info.Cancellable {
		resume := t.Method.Instructions.NewLabel()
		seq = append(seq,
			bytecode.LoadInsn(carrier, ciSlot),
			bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, jvm.MemberRef{
				Owner: carrier.InternalName(),
				Name:  "isCancelled",
				Desc:  "()Z",
			}),
			bytecode.NewJumpInsn(bytecode.IFEQ, resume.Label),
		)
		seq = append(seq, inj.cancellationReturn(t, carrier, ciSlot)...)
		seq = append(seq, resume)
	}

	t.InsertBefore(target, seq...)
	t.GrowStack(stack + 2)
	return true, nil
}

// cancellationReturn emits the early-return sequence executed when the
// handler cancels the callback, with return opcodes matching the target
// method's return type.
func (inj *callbackInjector) cancellationReturn(t *Target, carrier jvm.Type, ciSlot int) []*bytecode.Instruction {
	ret := t.Method.Descriptor().Return
	if ret.IsVoid() {
		return []*bytecode.Instruction{bytecode.NewInsn(bytecode.RETURN)}
	}
	seq := []*bytecode.Instruction{bytecode.LoadInsn(carrier, ciSlot)}
	if ret.IsPrimitive() {
		// Typed accessor per primitive, e.g. getReturnValueI()I.
		seq = append(seq, bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, jvm.MemberRef{
			Owner: carrier.InternalName(),
			Name:  "getReturnValue" + ret.Descriptor(),
			Desc:  "()" + ret.Descriptor(),
		}))
	} else {
		seq = append(seq,
			bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, jvm.MemberRef{
				Owner: carrier.InternalName(),
				Name:  "getReturnValue",
				Desc:  "()Ljava/lang/Object;",
			}),
			bytecode.NewTypeInsn(bytecode.CHECKCAST, ret),
		)
	}
	return append(seq, bytecode.ReturnInsn(ret))
}

// capturedLocals resolves the locals to capture per the configured mode. It
// returns skip=true for modes that abandon this injection without error.
func (inj *callbackInjector) capturedLocals(t *Target, target *bytecode.Instruction) ([]*locals.Entry, bool, error) {
	if inj.info.Capture == CaptureNone {
		return nil, false, nil
	}
	entries, err := inj.lv.Resolve(t.Method, target)
	if err == nil {
		err = inj.checkCapturedAgainstHandler(t, entries)
	}
	switch inj.info.Capture {
	case CapturePrint:
		inj.printLocals(t, entries)
		return nil, true, nil
	case CaptureFailSoft:
		if err != nil {
			log.Warn().Err(err).Stringer("injector", inj.info.origin(t)).Msg("Skipping injection: cannot capture locals")
			return nil, true, nil
		}
	case CaptureFailHard:
		if err != nil {
			return nil, false, &ConflictError{
				Origin: inj.info.origin(t),
				Reason: fmt.Sprintf("cannot capture locals: %v", err),
			}
		}
	}
	// Capture every live local past the target method arguments, in slot
	// order.
	argTop := t.Method.FirstArgSlot() + t.Method.Descriptor().ArgSlots()
	var captured []*locals.Entry
	for _, entry := range entries {
		if entry != nil && entry.Slot >= argTop {
			captured = append(captured, entry)
		}
	}
	return captured, false, nil
}

// checkCapturedAgainstHandler verifies the handler declares one argument per
// captured local, in order, after the carrier argument.
func (inj *callbackInjector) checkCapturedAgainstHandler(t *Target, entries []*locals.Entry) error {
	argTop := t.Method.FirstArgSlot() + t.Method.Descriptor().ArgSlots()
	declared := inj.handlerDesc.Args[inj.carrierIdx+1:]
	idx := 0
	for _, entry := range entries {
		if entry == nil || entry.Slot < argTop {
			continue
		}
		if idx >= len(declared) {
			return fmt.Errorf("handler captures %d locals but %d are live in scope", len(declared), idx+1)
		}
		if declared[idx].Descriptor() != entry.Type.Descriptor() {
			return fmt.Errorf("captured local %d: handler declares %s, live slot %d holds %s", idx, declared[idx], entry.Slot, entry.Type)
		}
		idx++
	}
	if idx != len(declared) {
		return fmt.Errorf("handler captures %d locals but only %d are live in scope", len(declared), idx)
	}
	return nil
}

func (inj *callbackInjector) printLocals(t *Target, entries []*locals.Entry) {
	evt := log.Info().Stringer("injector", inj.info.origin(t))
	for _, entry := range entries {
		if entry != nil {
			evt = evt.Str(fmt.Sprintf("slot%d", entry.Slot), fmt.Sprintf("%s %s", entry.Type, entry.Name))
		}
	}
	evt.Msg("Available locals at injection point (no injection performed)")
}

// conflictAt builds the error for an injection attempted against a node whose
// instruction an earlier injector removed.
func conflictAt(info *Info, t *Target, n *node.Node) error {
	other, _ := n.Decoration(DecorationRedirected).(string)
	return &ConflictError{
		Origin: info.origin(t),
		Other:  other,
		Reason: "target instruction was removed by an earlier injection",
	}
}
