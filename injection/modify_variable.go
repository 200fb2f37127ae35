// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package injection

import (
	"fmt"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/injection/locals"
	"github.com/mixweave/weave/injection/node"
	"github.com/mixweave/weave/jvm"
)

// modifyVariableInjector routes the value of one local variable through the
// handler immediately before the matched instruction executes. The variable
// is discriminated by explicit slot, by ordinal among same-typed locals, by
// debug name, or implicitly when exactly one live local has the handler's
// type.
type modifyVariableInjector struct {
	info        *Info
	handlerDesc jvm.MethodDescriptor
	lv          *locals.Cache
}

func newModifyVariableInjector(info *Info, handlerDesc jvm.MethodDescriptor, lv *locals.Cache) (Injector, error) {
	if len(handlerDesc.Args) != 1 || handlerDesc.Args[0].Descriptor() != handlerDesc.Return.Descriptor() {
		return nil, &InvalidSpecError{
			Origin: Origin{Mixin: info.Mixin, Kind: info.Kind, Handler: info.Handler.String()},
			Err:    fmt.Errorf("variable modifier handlers must have shape (T)T, got %s", info.Handler.Desc),
		}
	}
	return &modifyVariableInjector{info: info, handlerDesc: handlerDesc, lv: lv}, nil
}

func (inj *modifyVariableInjector) Inject(t *Target, n *node.Node) (bool, error) {
	if n.IsRemoved() {
		return false, conflictAt(inj.info, t, n)
	}
	target := n.Current()

	entries, err := inj.lv.Resolve(t.Method, target)
	if err != nil {
		return false, &InvalidSpecError{Origin: inj.info.origin(t), Err: fmt.Errorf("resolving locals: %w", err)}
	}
	slot, err := inj.discriminate(t, entries)
	if err != nil {
		return false, err
	}

	varType := inj.handlerDesc.Args[0]
	var seq []*bytecode.Instruction
	extra := 0
	if !inj.info.HandlerStatic {
		if t.Method.IsStatic() {
			return false, &ConflictError{
				Origin: inj.info.origin(t),
				Reason: "instance handler cannot be called from a static target method",
			}
		}
		seq = append(seq, loadThis())
		extra = 1
	}
	seq = append(seq,
		bytecode.LoadInsn(varType, slot),
		handlerCall(inj.info),
		bytecode.StoreInsn(varType, slot),
	)
	t.InsertBefore(target, seq...)
	t.GrowStack(varType.Size() + extra)
	return true, nil
}

// discriminate selects the slot of the variable to modify from the locals
// live at the injection point.
func (inj *modifyVariableInjector) discriminate(t *Target, entries []*locals.Entry) (int, error) {
	want := inj.handlerDesc.Args[0].Descriptor()

	if idx := inj.info.VarIndex; idx >= 0 {
		for _, e := range entries {
			if e == nil {
				continue
			}
			if e.Slot == idx {
				if e.Type.Descriptor() != want {
					return 0, inj.discriminationError(t, fmt.Sprintf("local %d is %s, handler modifies %s", idx, e.Type, want))
				}
				return idx, nil
			}
		}
		return 0, inj.discriminationError(t, fmt.Sprintf("no live local in slot %d", idx))
	}

	if name := inj.info.VarName; name != "" {
		for _, e := range entries {
			if e == nil || e.Name != name {
				continue
			}
			if e.Type.Descriptor() != want {
				return 0, inj.discriminationError(t, fmt.Sprintf("local %q is %s, handler modifies %s", name, e.Type, want))
			}
			return e.Slot, nil
		}
		return 0, inj.discriminationError(t, fmt.Sprintf("no live local named %q", name))
	}

	matching := make([]*locals.Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil && e.Type.Descriptor() == want {
			matching = append(matching, e)
		}
	}
	if ord := inj.info.VarOrdinal; ord >= 0 {
		if ord >= len(matching) {
			return 0, inj.discriminationError(t, fmt.Sprintf("ordinal %d out of range, only %d %s locals are live", ord, len(matching), want))
		}
		return matching[ord].Slot, nil
	}

	// Implicit discrimination requires a unique candidate.
	switch len(matching) {
	case 1:
		return matching[0].Slot, nil
	case 0:
		return 0, inj.discriminationError(t, fmt.Sprintf("no live %s local at the injection point", want))
	default:
		return 0, inj.discriminationError(t, fmt.Sprintf("%d live %s locals at the injection point, explicit discrimination is required", len(matching), want))
	}
}

func (inj *modifyVariableInjector) discriminationError(t *Target, msg string) error {
	return &InvalidSpecError{Origin: inj.info.origin(t), Err: fmt.Errorf("%s", msg)}
}
