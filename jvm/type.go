// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package jvm models the small slice of the JVM type system the injection
// engine needs: field/method descriptors, member references and the patterns
// used to select them.
package jvm

import (
	"fmt"
	"strings"
)

// Type is a parsed field descriptor. The zero value is the "void" type, which
// only ever appears as a method return type.
type Type struct {
	desc string
}

// Void is the return type of methods that produce no value.
var Void = Type{}

// Primitive types, by descriptor character.
var (
	Boolean = Type{"Z"}
	Char    = Type{"C"}
	Byte    = Type{"B"}
	Short   = Type{"S"}
	Int     = Type{"I"}
	Float   = Type{"F"}
	Long    = Type{"J"}
	Double  = Type{"D"}
)

// ObjectType returns the Type for the given internal class name (for example
// "java/lang/String").
func ObjectType(internalName string) Type {
	return Type{"L" + internalName + ";"}
}

// TypeOf parses a single field descriptor. It accepts primitives, object and
// array descriptors.
func TypeOf(desc string) (Type, error) {
	rest, t, err := consumeType(desc)
	if err != nil {
		return Void, err
	}
	if rest != "" {
		return Void, fmt.Errorf("trailing characters %q in type descriptor %q", rest, desc)
	}
	return t, nil
}

// MustTypeOf is TypeOf for statically-known descriptors; it panics on error.
func MustTypeOf(desc string) Type {
	t, err := TypeOf(desc)
	if err != nil {
		panic(err)
	}
	return t
}

// Descriptor returns the raw descriptor string, or "V" for the void type.
func (t Type) Descriptor() string {
	if t.desc == "" {
		return "V"
	}
	return t.desc
}

// IsVoid reports whether this is the void pseudo-type.
func (t Type) IsVoid() bool {
	return t.desc == ""
}

// IsPrimitive reports whether this is one of the eight primitive types.
func (t Type) IsPrimitive() bool {
	return len(t.desc) == 1
}

// IsArray reports whether this is an array type.
func (t Type) IsArray() bool {
	return strings.HasPrefix(t.desc, "[")
}

// IsReference reports whether values of this type are object references
// (objects and arrays).
func (t Type) IsReference() bool {
	return !t.IsVoid() && !t.IsPrimitive()
}

// Element returns the element type of an array type. Calling it on a
// non-array type returns the type unchanged.
func (t Type) Element() Type {
	return Type{strings.TrimPrefix(t.desc, "[")}
}

// InternalName returns the internal class name for object types ("L...;"
// stripped), or the raw descriptor for everything else.
func (t Type) InternalName() string {
	if strings.HasPrefix(t.desc, "L") && strings.HasSuffix(t.desc, ";") {
		return t.desc[1 : len(t.desc)-1]
	}
	return t.desc
}

// Size returns the number of local-variable (and operand stack) slots a value
// of this type occupies: 2 for long and double, 0 for void, 1 otherwise.
func (t Type) Size() int {
	switch t.desc {
	case "":
		return 0
	case "J", "D":
		return 2
	default:
		return 1
	}
}

func (t Type) String() string {
	return t.Descriptor()
}

// consumeType reads one field descriptor off the front of s.
func consumeType(s string) (rest string, t Type, err error) {
	if s == "" {
		return "", Void, fmt.Errorf("empty type descriptor")
	}
	switch s[0] {
	case 'Z', 'C', 'B', 'S', 'I', 'F', 'J', 'D':
		return s[1:], Type{s[:1]}, nil
	case 'V':
		return s[1:], Void, nil
	case '[':
		rest, elem, err := consumeType(s[1:])
		if err != nil {
			return "", Void, err
		}
		return rest, Type{"[" + elem.desc}, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return "", Void, fmt.Errorf("unterminated object type in %q", s)
		}
		return s[end+1:], Type{s[:end+1]}, nil
	default:
		return "", Void, fmt.Errorf("invalid type descriptor character %q", s[0])
	}
}

// MethodDescriptor is a parsed method descriptor such as
// "(ILjava/lang/String;)V".
type MethodDescriptor struct {
	Args   []Type
	Return Type
}

// ParseMethodDescriptor parses desc into its argument and return types.
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	if !strings.HasPrefix(desc, "(") {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	rest := desc[1:]
	var md MethodDescriptor
	for !strings.HasPrefix(rest, ")") {
		var t Type
		var err error
		rest, t, err = consumeType(rest)
		if err != nil {
			return MethodDescriptor{}, fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		md.Args = append(md.Args, t)
	}
	rest = rest[1:]
	if rest == "V" {
		md.Return = Void
		return md, nil
	}
	leftover, ret, err := consumeType(rest)
	if err != nil {
		return MethodDescriptor{}, fmt.Errorf("method descriptor %q: %w", desc, err)
	}
	if leftover != "" {
		return MethodDescriptor{}, fmt.Errorf("trailing characters %q in method descriptor %q", leftover, desc)
	}
	md.Return = ret
	return md, nil
}

// MustParseMethodDescriptor is ParseMethodDescriptor for statically-known
// descriptors; it panics on error.
func MustParseMethodDescriptor(desc string) MethodDescriptor {
	md, err := ParseMethodDescriptor(desc)
	if err != nil {
		panic(err)
	}
	return md
}

// String re-assembles the canonical descriptor.
func (md MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range md.Args {
		sb.WriteString(a.Descriptor())
	}
	sb.WriteByte(')')
	sb.WriteString(md.Return.Descriptor())
	return sb.String()
}

// ArgSlots returns the number of local-variable slots the arguments occupy,
// not counting the implicit receiver.
func (md MethodDescriptor) ArgSlots() int {
	n := 0
	for _, a := range md.Args {
		n += a.Size()
	}
	return n
}
