// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package jvm

import (
	"fmt"
	"regexp"
	"strings"
)

// Access flags, as found in class files. Only the flags the injection engine
// actually inspects are defined.
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccSynthetic = 0x1000
)

// MemberRef identifies one field or method: the internal name of its owner,
// its name, and its descriptor.
type MemberRef struct {
	Owner string
	Name  string
	Desc  string
}

func (r MemberRef) String() string {
	var sb strings.Builder
	if r.Owner != "" {
		sb.WriteString("L")
		sb.WriteString(r.Owner)
		sb.WriteString(";")
	}
	sb.WriteString(r.Name)
	if r.Desc != "" && !strings.HasPrefix(r.Desc, "(") {
		sb.WriteString(":")
	}
	sb.WriteString(r.Desc)
	return sb.String()
}

// MemberPattern selects members by owner, name and descriptor, each part
// optional. A pattern with no parts set matches everything; a name of "*"
// explicitly matches any name.
type MemberPattern struct {
	Owner string // internal name, empty = any
	Name  string // empty or "*" = any
	Desc  string // descriptor, empty = any
}

var memberPatternRe = regexp.MustCompile(`\A(?:L([^;]+);)?([^(]*)(\(.*)?\z`)

// ParseMemberPattern parses a target-member string. Methods use the form
// "Lowner;name(desc)ret" and fields "Lowner;name:desc", where the owner and
// descriptor parts are optional: "Ljava/io/PrintStream;println(Ljava/lang/String;)V",
// "println", "Ljava/io/PrintStream;println" and "Lcom/example/Foo;count:I"
// are all valid.
func ParseMemberPattern(s string) (MemberPattern, error) {
	m := memberPatternRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return MemberPattern{}, fmt.Errorf("invalid member pattern: %q", s)
	}
	p := MemberPattern{Owner: m[1], Name: m[2], Desc: m[3]}
	if p.Desc != "" {
		if _, err := ParseMethodDescriptor(p.Desc); err != nil {
			return MemberPattern{}, fmt.Errorf("invalid member pattern %q: %w", s, err)
		}
	} else if name, desc, ok := strings.Cut(p.Name, ":"); ok {
		if _, err := TypeOf(desc); err != nil {
			return MemberPattern{}, fmt.Errorf("invalid member pattern %q: %w", s, err)
		}
		p.Name, p.Desc = name, desc
	}
	if p.Owner == "" && p.Name == "" && p.Desc == "" {
		return MemberPattern{}, fmt.Errorf("empty member pattern: %q", s)
	}
	return p, nil
}

// MustParseMemberPattern is ParseMemberPattern for statically-known patterns;
// it panics on error.
func MustParseMemberPattern(s string) MemberPattern {
	p, err := ParseMemberPattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Matches reports whether ref satisfies every part of the pattern that is
// set.
func (p MemberPattern) Matches(ref MemberRef) bool {
	if p.Owner != "" && p.Owner != ref.Owner {
		return false
	}
	if p.Name != "" && p.Name != "*" && p.Name != ref.Name {
		return false
	}
	if p.Desc != "" && p.Desc != ref.Desc {
		return false
	}
	return true
}

// IsEmpty reports whether no parts of the pattern are set.
func (p MemberPattern) IsEmpty() bool {
	return p.Owner == "" && p.Name == "" && p.Desc == ""
}

func (p MemberPattern) String() string {
	var sb strings.Builder
	if p.Owner != "" {
		fmt.Fprintf(&sb, "L%s;", p.Owner)
	}
	if p.Name == "" {
		sb.WriteString("*")
	} else {
		sb.WriteString(p.Name)
	}
	if p.Desc != "" && !strings.HasPrefix(p.Desc, "(") {
		sb.WriteString(":")
	}
	sb.WriteString(p.Desc)
	return sb.String()
}

// Remapper resolves a human-authored member reference against the obfuscated
// member actually present in the loaded class. It returns the remapped
// pattern and true when a mapping exists. The injection engine consults the
// remapper only after a pattern fails to resolve directly.
type Remapper func(MemberPattern) (MemberPattern, bool)
