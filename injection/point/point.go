// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package point provides the injection-point queries that select candidate
// instructions inside a method body, the combinators over them, and the
// registry resolving textual specifiers to implementations.
package point

import (
	"github.com/mixweave/weave/bytecode"
)

// Point is a stateless query over a method's instruction stream. One Point
// instance may be reused to scan many different methods; implementations must
// be immutable, must not mutate the scanned view, and must only report
// instructions present in the supplied view.
type Point interface {
	// Find scans view and appends matching instructions to out, returning
	// whether anything matched. Calling Find twice on an unmodified view must
	// produce identical results.
	Find(desc string, view bytecode.View, out *Matches) bool
}

// Matches accumulates query results in match order, deduplicating by
// instruction identity.
type Matches struct {
	insns []*bytecode.Instruction
	seen  map[*bytecode.Instruction]struct{}
}

// Add appends in unless it is already present.
func (m *Matches) Add(in *bytecode.Instruction) {
	if m.seen == nil {
		m.seen = make(map[*bytecode.Instruction]struct{})
	}
	if _, dup := m.seen[in]; dup {
		return
	}
	m.seen[in] = struct{}{}
	m.insns = append(m.insns, in)
}

// Contains reports whether in has been added.
func (m *Matches) Contains(in *bytecode.Instruction) bool {
	_, ok := m.seen[in]
	return ok
}

// Len returns the number of accumulated matches.
func (m *Matches) Len() int {
	return len(m.insns)
}

// Slice returns the matches in match order. The returned slice is owned by
// the Matches value.
func (m *Matches) Slice() []*bytecode.Instruction {
	return m.insns
}

// ordinalCounter applies the shared ordinal-filter contract: a negative
// ordinal admits every raw match, a non-negative ordinal admits exactly the
// n-th raw match (0-indexed) and then stops the scan.
type ordinalCounter struct {
	ordinal int
	seen    int
}

// accept consumes one raw match and reports whether to emit it and whether
// the scan can short-circuit.
func (c *ordinalCounter) accept() (emit bool, done bool) {
	if c.ordinal < 0 {
		return true, false
	}
	emit = c.seen == c.ordinal
	c.seen++
	return emit, emit
}
