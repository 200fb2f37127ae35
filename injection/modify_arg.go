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

// modifyArgInjector routes one argument of a matched call through the handler
// just before the call executes. The handler takes the argument type and
// returns the same type.
type modifyArgInjector struct {
	info        *Info
	handlerDesc jvm.MethodDescriptor
}

func newModifyArgInjector(info *Info, handlerDesc jvm.MethodDescriptor) (Injector, error) {
	if len(handlerDesc.Args) != 1 || handlerDesc.Args[0].Descriptor() != handlerDesc.Return.Descriptor() {
		return nil, &InvalidSpecError{
			Origin: Origin{Mixin: info.Mixin, Kind: info.Kind, Handler: info.Handler.String()},
			Err:    fmt.Errorf("argument modifier handlers must have shape (T)T, got %s", info.Handler.Desc),
		}
	}
	return &modifyArgInjector{info: info, handlerDesc: handlerDesc}, nil
}

func (inj *modifyArgInjector) Inject(t *Target, n *node.Node) (bool, error) {
	if n.IsRemoved() {
		return false, conflictAt(inj.info, t, n)
	}
	target := n.Current()
	if !target.Op.IsInvoke() {
		return false, &ConflictError{
			Origin: inj.info.origin(t),
			Reason: fmt.Sprintf("argument modifiers apply to call instructions, matched %s", target.Op),
		}
	}
	calleeDesc, err := jvm.ParseMethodDescriptor(target.Member.Desc)
	if err != nil {
		return false, &InvalidSpecError{Origin: inj.info.origin(t), Err: err}
	}

	argIdx, err := inj.resolveArgIndex(t, calleeDesc)
	if err != nil {
		return false, err
	}

	// Drain the arguments above (and including) the modified one into fresh
	// locals, apply the handler, then restore the stack.
	suffix := calleeDesc.Args[argIdx:]
	stores, loads := marshalThroughLocals(t, suffix)

	var seq []*bytecode.Instruction
	seq = append(seq, stores...)
	if !inj.info.HandlerStatic {
		if t.Method.IsStatic() {
			return false, &ConflictError{
				Origin: inj.info.origin(t),
				Reason: "instance handler cannot be called from a static target method",
			}
		}
		seq = append(seq, loadThis())
	}
	seq = append(seq, loads[0], handlerCall(inj.info))
	seq = append(seq, loads[1:]...)
	t.InsertBefore(target, seq...)
	t.GrowStack(suffixSlots(suffix) + 1)
	return true, nil
}

// resolveArgIndex picks the argument the handler modifies. An explicit index
// wins; otherwise the handler's parameter type must match exactly one callee
// argument, and any ambiguity is a hard error.
func (inj *modifyArgInjector) resolveArgIndex(t *Target, calleeDesc jvm.MethodDescriptor) (int, error) {
	want := inj.handlerDesc.Args[0].Descriptor()
	if idx := inj.info.ArgIndex; idx >= 0 {
		if idx >= len(calleeDesc.Args) {
			return 0, &InvalidSpecError{
				Origin: inj.info.origin(t),
				Err:    fmt.Errorf("argument index %d out of range for callee %s", idx, calleeDesc),
			}
		}
		if calleeDesc.Args[idx].Descriptor() != want {
			return 0, &InvalidSpecError{
				Origin: inj.info.origin(t),
				Err:    fmt.Errorf("argument %d of callee is %s, handler modifies %s", idx, calleeDesc.Args[idx], want),
			}
		}
		return idx, nil
	}

	found := -1
	for i, arg := range calleeDesc.Args {
		if arg.Descriptor() != want {
			continue
		}
		if found >= 0 {
			return 0, &InvalidSpecError{
				Origin: inj.info.origin(t),
				Err:    fmt.Errorf("callee has multiple %s arguments, an explicit index is required", want),
			}
		}
		found = i
	}
	if found < 0 {
		return 0, &InvalidSpecError{
			Origin: inj.info.origin(t),
			Err:    fmt.Errorf("callee %s has no %s argument", calleeDesc, want),
		}
	}
	return found, nil
}

func suffixSlots(args []jvm.Type) int {
	n := 0
	for _, arg := range args {
		n += arg.Size()
	}
	return n
}
