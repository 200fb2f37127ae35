// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package injection

import (
	"github.com/mixweave/weave/injection/point"
	"github.com/mixweave/weave/jvm"
)

// Kind discriminates the injector families.
type Kind string

const (
	// KindCallback inserts a handler call (optionally cancellable, optionally
	// capturing locals) at the matched point.
	KindCallback Kind = "inject"
	// KindRedirect replaces a call, field access, array access or
	// constructor with a handler call.
	KindRedirect Kind = "redirect"
	// KindModifyArg replaces one argument of a matched call.
	KindModifyArg Kind = "modify_arg"
	// KindModifyConstant replaces a matched literal load.
	KindModifyConstant Kind = "modify_constant"
	// KindModifyVariable replaces a local variable's value in place.
	KindModifyVariable Kind = "modify_variable"
)

// LocalCapture selects how a callback injector captures target method
// locals.
type LocalCapture int

const (
	// CaptureNone passes only the target method's own parameters.
	CaptureNone LocalCapture = iota
	// CaptureFailHard captures all locals in scope; failure to resolve them
	// is a hard error.
	CaptureFailHard
	// CaptureFailSoft captures all locals in scope; failure to resolve skips
	// this injection with a warning.
	CaptureFailSoft
	// CapturePrint performs no injection and dumps the available locals for
	// developer inspection.
	CapturePrint
)

// Info is the typed record the annotation/metadata layer produces for one
// injector. All fields are populated at parse time with explicit defaults;
// the engine never performs reflective lookups against raw metadata.
type Info struct {
	// Mixin names the owning mixin, for diagnostics and conflict messages.
	Mixin string
	// Kind selects the injector family.
	Kind Kind

	// Handler is the method the synthesized code calls.
	Handler jvm.MemberRef
	// HandlerStatic records whether the handler has a receiver; instance
	// handlers can only be applied to instance target methods.
	HandlerStatic bool

	// TargetPatterns select the methods of the target class this injector
	// applies to. Resolution of patterns to methods is the merge
	// orchestrator's concern; the engine receives resolved targets through
	// the session.
	TargetPatterns []string

	// At holds the injection point specifiers, Slices the named search
	// ranges they may reference.
	At     []point.Spec
	Slices point.Map

	// Require is the minimum number of successful injections (hard failure
	// below), Expect the minimum expected in debug mode (soft warning
	// below), Allow the sanity ceiling (hard failure above, -1 = unlimited).
	Require int
	Expect  int
	Allow   int

	// Group optionally aggregates this injector into a named injector group
	// whose requirement is validated across members.
	Group string
	// GroupRequire is the group-wide minimum this injector declares (several
	// declarations for the same group resolve to the maximum).
	GroupRequire int

	// Remap enables consulting the obfuscation remapper for target patterns
	// that fail to resolve directly.
	Remap bool
	// Constraints carries the opaque environment-constraint expression
	// checked by the orchestration layer.
	Constraints string

	// Callback knobs.
	Cancellable bool
	Capture     LocalCapture

	// ModifyArg: explicit argument index, or -1 for unique-type
	// auto-detection.
	ArgIndex int

	// ModifyVariable discriminators: explicit slot index, ordinal among
	// same-typed locals, or debug name; all unset means implicit mode, which
	// requires exactly one type-compatible candidate.
	VarIndex   int
	VarOrdinal int
	VarName    string

	// CaptureTargetArgs appends the target method's own arguments to
	// redirect handler calls.
	CaptureTargetArgs bool
}

// NewInfo returns an Info with the documented defaults.
func NewInfo(kind Kind) *Info {
	return &Info{
		Kind:       kind,
		Require:    0,
		Expect:     1,
		Allow:      -1,
		ArgIndex:   -1,
		VarIndex:   -1,
		VarOrdinal: -1,
		Slices:     point.Map{},
	}
}

// origin builds the diagnostic identity for this injector against a target
// method.
func (i *Info) origin(t *Target) Origin {
	o := Origin{
		Mixin:   i.Mixin,
		Kind:    i.Kind,
		Handler: i.Handler.Name + i.Handler.Desc,
	}
	if t != nil {
		o.TargetClass = t.ClassName
		o.TargetRef = t.Method.Name + t.Method.Desc
	}
	return o
}
