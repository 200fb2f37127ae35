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
	"github.com/mixweave/weave/injection/point"
	"github.com/mixweave/weave/jvm"
)

// Decoration keys used for cross-injector arbitration on shared nodes.
const (
	// DecorationRedirected marks a node whose instruction was consumed by a
	// redirect injector; the value names the redirecting party.
	DecorationRedirected = "weave.redirected"
	// DecorationModifiedConstant marks a node whose constant was already
	// replaced; the value names the modifying party.
	DecorationModifiedConstant = "weave.modified-constant"
)

// Injector synthesizes bytecode at one resolved injection node. The target
// context accumulates its stack and locals demands. Inject reports whether an
// injection was realized; debug-only modes may succeed without injecting.
type Injector interface {
	Inject(t *Target, n *node.Node) (bool, error)
}

// New constructs the injector implementation for info, failing fast with an
// InvalidSpecError before any instruction sequence is touched.
func New(info *Info, lv *locals.Cache) (Injector, error) {
	invalid := func(err error) error {
		return &InvalidSpecError{Origin: info.origin(nil), Err: err}
	}
	if info.Handler.Name == "" || info.Handler.Desc == "" {
		return nil, invalid(fmt.Errorf("injector declares no handler method"))
	}
	handlerDesc, err := jvm.ParseMethodDescriptor(info.Handler.Desc)
	if err != nil {
		return nil, invalid(err)
	}
	if len(info.At) == 0 {
		return nil, invalid(fmt.Errorf("injector declares no injection points"))
	}
	switch info.Kind {
	case KindCallback:
		return newCallbackInjector(info, handlerDesc, lv)
	case KindRedirect:
		return newRedirectInjector(info, handlerDesc)
	case KindModifyArg:
		return newModifyArgInjector(info, handlerDesc)
	case KindModifyConstant:
		return newModifyConstantInjector(info, handlerDesc)
	case KindModifyVariable:
		return newModifyVariableInjector(info, handlerDesc, lv)
	default:
		return nil, invalid(fmt.Errorf("unknown injector kind %q", info.Kind))
	}
}

// ResolveNodes runs all of info's injection point queries against the target
// method and registers every match as an injection node. Queries referencing
// slices search only the resolved sub-range; shifted matches falling outside
// the method are dropped with a diagnostic. A target pattern that resolves
// nothing is retried through the remapper when remapping is enabled.
func ResolveNodes(info *Info, t *Target, remap jvm.Remapper) ([]*node.Node, error) {
	var nodes []*node.Node
	for _, spec := range info.At {
		matches, err := resolveSpec(info, spec, t)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 && info.Remap && remap != nil && spec.Target != "" {
			remapped, retry, rerr := remapSpec(spec, remap)
			if rerr != nil {
				return nil, &InvalidSpecError{Origin: info.origin(t), Err: rerr}
			}
			if retry {
				if matches, err = resolveSpec(info, remapped, t); err != nil {
					return nil, err
				}
			}
		}
		for _, in := range matches {
			nodes = append(nodes, t.Nodes.Add(in))
		}
	}
	return nodes, nil
}

func resolveSpec(info *Info, spec point.Spec, t *Target) ([]*bytecode.Instruction, error) {
	invalid := func(err error) error {
		return &InvalidSpecError{Origin: info.origin(t), Err: err}
	}
	p, selector, err := point.Parse(spec)
	if err != nil {
		return nil, invalid(err)
	}
	var dropped int
	by, err := spec.ShiftAmount()
	if err != nil {
		return nil, invalid(err)
	}
	if by != 0 {
		p = &point.Shift{Point: p, By: by, Dropped: &dropped}
	}
	slice, err := info.Slices.Get(spec.SliceID)
	if err != nil {
		return nil, invalid(err)
	}
	view, err := slice.Resolve(t.Method.Desc, t.Method.Instructions)
	if err != nil {
		return nil, invalid(err)
	}
	found := point.Matches{}
	p.Find(t.Method.Desc, view, &found)
	if dropped > 0 {
		switch spec.Policy {
		case point.ShiftPolicyError:
			return nil, invalid(fmt.Errorf("%d shifted match(es) of %q fell outside the method body", dropped, spec.Value))
		case point.ShiftPolicyWarn:
			log.Warn().
				Stringer("injector", info.origin(t)).
				Str("point", spec.Value).
				Int("dropped", dropped).
				Msg("Shifted injection point matches fell outside the method body")
		}
	}
	reduced, err := selector.Reduce(spec.Value, found.Slice())
	if err != nil {
		return nil, invalid(err)
	}
	return reduced, nil
}

func remapSpec(spec point.Spec, remap jvm.Remapper) (point.Spec, bool, error) {
	pattern, err := jvm.ParseMemberPattern(spec.Target)
	if err != nil {
		return spec, false, err
	}
	mapped, ok := remap(pattern)
	if !ok {
		return spec, false, nil
	}
	spec.Target = mapped.String()
	return spec, true, nil
}

// ValidateCount checks a realized injection count against the
// require/expect/allow contract: below require or above allow is fatal,
// below expect is a debug-level warning.
func ValidateCount(info *Info, t *Target, injected int) error {
	if injected < info.Require || (info.Allow >= 0 && injected > info.Allow) {
		return &CountError{
			Origin:  info.origin(t),
			Found:   injected,
			Require: info.Require,
			Allow:   info.Allow,
		}
	}
	if injected < info.Expect {
		log.Debug().
			Stringer("injector", info.origin(t)).
			Int("expected", info.Expect).
			Int("injected", injected).
			Msg("Injection count below expectation")
	}
	return nil
}

// handlerCall builds the invoke instruction for a handler method.
func handlerCall(info *Info) *bytecode.Instruction {
	op := bytecode.INVOKEVIRTUAL
	if info.HandlerStatic {
		op = bytecode.INVOKESTATIC
	}
	return bytecode.NewMethodInsn(op, info.Handler)
}

// loadThis returns the receiver load used before instance handler calls.
func loadThis() *bytecode.Instruction {
	return bytecode.NewVarInsn(bytecode.ALOAD, 0)
}
