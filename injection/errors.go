// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package injection implements the bytecode-synthesis side of the engine:
// target method contexts, the injector family, match-count validation and
// injector groups.
package injection

import (
	"fmt"
)

// Origin identifies the parties involved in one injection for diagnostics:
// which mixin, which injector kind and handler, against which target.
type Origin struct {
	Mixin       string
	Kind        Kind
	Handler     string
	TargetClass string
	TargetRef   string
}

func (o Origin) String() string {
	return fmt.Sprintf("%s->%s::%s targeting %s.%s", o.Mixin, o.Kind, o.Handler, o.TargetClass, o.TargetRef)
}

// InvalidSpecError reports a malformed injector or query specification. It is
// raised during construction, before any instruction sequence is touched.
type InvalidSpecError struct {
	Origin Origin
	Err    error
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid injection specification for %s: %v", e.Origin, e.Err)
}

func (e *InvalidSpecError) Unwrap() error {
	return e.Err
}

// CountError reports a violated require/allow contract after the find pass
// or injection pass for one injector/method pair.
type CountError struct {
	Origin Origin
	// Found is the realized match or injection count.
	Found int
	// Require and Allow echo the violated contract bounds; the violated one
	// is indicated by Found falling outside [Require, Allow].
	Require int
	Allow   int
}

func (e *CountError) Error() string {
	if e.Allow >= 0 && e.Found > e.Allow {
		return fmt.Sprintf("critical injection failure: %s matched %d times, more than allow=%d permits", e.Origin, e.Found, e.Allow)
	}
	return fmt.Sprintf("critical injection failure: %s succeeded %d times, require=%d not satisfied", e.Origin, e.Found, e.Require)
}

// ConflictError reports a structural conflict between two injectors claiming
// the same instruction, or an incompatible handler/target shape discovered at
// application time.
type ConflictError struct {
	Origin Origin
	// Other names the earlier party when the conflict is between injectors.
	Other  string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Other != "" {
		return fmt.Sprintf("injection conflict: %s: %s (earlier injection by %s)", e.Origin, e.Reason, e.Other)
	}
	return fmt.Sprintf("injection conflict: %s: %s", e.Origin, e.Reason)
}

// GroupError reports an injector group whose aggregate success count fell
// short of its requirement.
type GroupError struct {
	Group   string
	Require int
	Found   int
	Members []string
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("injector group %q required %d successful injections but realized %d across %d members", e.Group, e.Require, e.Found, len(e.Members))
}
