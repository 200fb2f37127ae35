// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package point

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mixweave/weave/jvm"
)

// ShiftMode positions the effective target relative to each raw match.
type ShiftMode int

const (
	// ShiftNone targets the matched instruction itself.
	ShiftNone ShiftMode = iota
	// ShiftBefore targets the instruction immediately before each match.
	ShiftBefore
	// ShiftAfter targets the instruction immediately after each match.
	ShiftAfter
	// ShiftByValue targets the instruction By positions away from each match.
	ShiftByValue
)

// ParseShiftMode parses the textual shift mode of an injection point
// specifier.
func ParseShiftMode(s string) (ShiftMode, error) {
	switch strings.ToUpper(s) {
	case "", "NONE":
		return ShiftNone, nil
	case "BEFORE":
		return ShiftBefore, nil
	case "AFTER":
		return ShiftAfter, nil
	case "BY":
		return ShiftByValue, nil
	default:
		return ShiftNone, fmt.Errorf("invalid shift mode %q", s)
	}
}

// MaxShiftBy caps the magnitude of BY shifts. A query that needs to reach
// further than this is targeting the wrong instruction; such specs are
// rejected at construction.
const MaxShiftBy = 5

// ShiftPolicy decides what happens when a shifted match falls outside the
// method and is dropped.
type ShiftPolicy int

const (
	// ShiftPolicyWarn logs each dropped match and continues. This is the
	// default.
	ShiftPolicyWarn ShiftPolicy = iota
	// ShiftPolicyIgnore drops matches silently.
	ShiftPolicyIgnore
	// ShiftPolicyError fails the query when any match is dropped.
	ShiftPolicyError
)

// ParseShiftPolicy parses the textual shift violation policy.
func ParseShiftPolicy(s string) (ShiftPolicy, error) {
	switch strings.ToUpper(s) {
	case "", "WARN":
		return ShiftPolicyWarn, nil
	case "IGNORE":
		return ShiftPolicyIgnore, nil
	case "ERROR":
		return ShiftPolicyError, nil
	default:
		return ShiftPolicyWarn, fmt.Errorf("invalid shift violation policy %q", s)
	}
}

// Spec is the plain data record the annotation/metadata layer produces for
// one injection point specifier. The engine consumes it; it never parses
// annotations itself.
type Spec struct {
	// Value is the textual specifier: "<TYPE>[:<SELECTOR>]", where TYPE is a
	// registered short code, possibly namespaced ("NAMESPACE:CODE").
	Value string
	// Target is the target member pattern, for types that take one.
	Target string
	// SliceID names the slice bounding this query ("" = whole method).
	SliceID string
	// Shift and By position the effective target relative to raw matches;
	// Policy decides how out-of-bounds shifted matches are handled.
	Shift  ShiftMode
	By     int
	Policy ShiftPolicy
	// Ordinal restricts to the n-th raw match; -1 is unrestricted.
	Ordinal int
	// Opcode restricts opcode-filtered types; -1 is unrestricted.
	Opcode int
	// ID tags the query in diagnostics.
	ID string
	// Args carries the type-specific named arguments.
	Args map[string]string
}

// NewSpec returns a Spec with the documented defaults (unrestricted ordinal
// and opcode).
func NewSpec(value string) Spec {
	return Spec{Value: value, Ordinal: -1, Opcode: -1}
}

// Arg returns the named argument, or fallback when unset.
func (s Spec) Arg(name, fallback string) string {
	if v, ok := s.Args[name]; ok {
		return v
	}
	return fallback
}

// BoolArg returns the named argument parsed as a boolean.
func (s Spec) BoolArg(name string, fallback bool) bool {
	v, ok := s.Args[name]
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// IntArg returns the named argument parsed as an integer.
func (s Spec) IntArg(name string, fallback int) int {
	v, ok := s.Args[name]
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// ShiftAmount resolves the shift mode and By value into a single offset; zero
// means the match itself is the target. BY shifts larger than MaxShiftBy in
// either direction are rejected.
func (s Spec) ShiftAmount() (int, error) {
	switch s.Shift {
	case ShiftBefore:
		return -1, nil
	case ShiftAfter:
		return +1, nil
	case ShiftByValue:
		if s.By > MaxShiftBy || s.By < -MaxShiftBy {
			return 0, fmt.Errorf("shift by %d exceeds the maximum of %d", s.By, MaxShiftBy)
		}
		return s.By, nil
	default:
		return 0, nil
	}
}

// TargetPattern parses the spec's target member pattern.
func (s Spec) TargetPattern() (jvm.MemberPattern, error) {
	if s.Target == "" {
		return jvm.MemberPattern{}, fmt.Errorf("injection point %q requires a target member pattern", s.Value)
	}
	return jvm.ParseMemberPattern(s.Target)
}

// Factory constructs a Point from its parsed specifier record.
type Factory func(spec Spec) (Point, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a Point implementation available under the given short
// code. Third-party registrations must use a namespaced code
// ("NAMESPACE:CODE"); registering over an existing code is allowed but
// logged, so accidental clobbering of built-ins is visible.
func Register(code string, factory Factory) {
	code = strings.ToUpper(code)
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[code]; exists {
		log.Warn().Str("code", code).Msg("Overriding existing injection point type registration")
	}
	registry[code] = factory
}

// Parse resolves a Spec to its Point implementation and selector. The
// specifier grammar is "<TYPE>[:<SELECTOR>]"; because custom TYPE codes are
// themselves namespaced with a colon, only a trailing segment that is a valid
// selector token is treated as one.
func Parse(spec Spec) (Point, Selector, error) {
	code := strings.ToUpper(strings.TrimSpace(spec.Value))
	if code == "" {
		return nil, SelectDefault, fmt.Errorf("empty injection point specifier")
	}
	if _, err := spec.ShiftAmount(); err != nil {
		return nil, SelectDefault, fmt.Errorf("injection point %q: %w", spec.Value, err)
	}
	selector := SelectDefault
	if at := strings.LastIndexByte(code, ':'); at >= 0 {
		if sel, ok := ParseSelector(code[at+1:]); ok {
			selector = sel
			code = code[:at]
		}
	}
	registryMu.RLock()
	factory, ok := registry[code]
	registryMu.RUnlock()
	if !ok {
		return nil, SelectDefault, fmt.Errorf("unknown injection point type %q", code)
	}
	p, err := factory(spec)
	if err != nil {
		return nil, SelectDefault, fmt.Errorf("injection point %q: %w", spec.Value, err)
	}
	return p, selector, nil
}

// RegisteredCodes returns the sorted list of known injection point codes.
func RegisteredCodes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func init() {
	Register("HEAD", func(Spec) (Point, error) {
		return MethodHead{}, nil
	})
	Register("RETURN", func(spec Spec) (Point, error) {
		return Return{Ordinal: spec.Ordinal}, nil
	})
	Register("TAIL", func(Spec) (Point, error) {
		return Tail{}, nil
	})
	Register("INVOKE", func(spec Spec) (Point, error) {
		target, err := spec.TargetPattern()
		if err != nil {
			return nil, err
		}
		return Invoke{Target: target, Ordinal: spec.Ordinal}, nil
	})
	Register("INVOKE_ASSIGN", func(spec Spec) (Point, error) {
		target, err := spec.TargetPattern()
		if err != nil {
			return nil, err
		}
		return InvokeAssign{
			Target:  target,
			Ordinal: spec.Ordinal,
			Fuzz:    spec.IntArg("fuzz", DefaultInvokeAssignFuzz),
		}, nil
	})
	Register("INVOKE_STRING", func(spec Spec) (Point, error) {
		target, err := spec.TargetPattern()
		if err != nil {
			return nil, err
		}
		literal, ok := spec.Args["ldc"]
		if !ok {
			return nil, fmt.Errorf("missing required argument \"ldc\"")
		}
		return StringInvoke{Target: target, Literal: literal, Ordinal: spec.Ordinal}, nil
	})
	Register("FIELD", func(spec Spec) (Point, error) {
		target, err := spec.TargetPattern()
		if err != nil {
			return nil, err
		}
		return FieldAccess{Target: target, Opcode: spec.Opcode, Ordinal: spec.Ordinal}, nil
	})
	Register("NEW", func(spec Spec) (Point, error) {
		return New{Type: spec.Arg("class", spec.Target), Ordinal: spec.Ordinal}, nil
	})
	Register("JUMP", func(spec Spec) (Point, error) {
		return Jump{Opcode: spec.Opcode, Ordinal: spec.Ordinal}, nil
	})
	Register("CONSTANT", func(spec Spec) (Point, error) {
		c := Constant{
			Ordinal:              spec.Ordinal,
			ExpandZeroConditions: spec.BoolArg("expandZeroConditions", false),
		}
		count := 0
		if spec.BoolArg("nullValue", false) {
			c.MatchNull = true
			count++
		}
		if v, ok := spec.Args["intValue"]; ok {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid intValue %q: %w", v, err)
			}
			c.IntValue = &parsed
			count++
		}
		if v, ok := spec.Args["floatValue"]; ok {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid floatValue %q: %w", v, err)
			}
			c.FloatValue = &parsed
			count++
		}
		if v, ok := spec.Args["stringValue"]; ok {
			c.StringValue = &v
			count++
		}
		if v, ok := spec.Args["classValue"]; ok {
			c.ClassValue = &v
			count++
		}
		if count > 1 {
			return nil, fmt.Errorf("conflicting constant value expectations")
		}
		if count == 0 {
			if !c.ExpandZeroConditions {
				return nil, fmt.Errorf("no constant value expectation; set one or enable expandZeroConditions")
			}
			zero := int64(0)
			c.IntValue = &zero
		}
		return c, nil
	})
}
