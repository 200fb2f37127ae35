// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package point

import (
	"fmt"

	"github.com/mixweave/weave/bytecode"
)

// Slice bounds injection-point search to the sub-range of a method delimited
// by two boundary queries. Boundaries resolve against the full method; the
// effective search space lies strictly between them. A nil boundary defaults
// to the method head (From) or past the final instruction (To).
type Slice struct {
	ID   string
	From Point
	To   Point
}

// DefaultSliceID is the identifier of the implicit whole-method slice.
const DefaultSliceID = ""

// Resolve computes the slice's effective search space over the method's full
// instruction list. It fails when a specified boundary does not resolve, or
// when the boundaries are inverted.
func (s *Slice) Resolve(desc string, list *bytecode.InsnList) (bytecode.View, error) {
	from := -1
	if s.From != nil {
		idx, err := s.resolveBoundary("from", s.From, desc, list)
		if err != nil {
			return nil, err
		}
		from = idx
	}
	to := list.Len()
	if s.To != nil {
		idx, err := s.resolveBoundary("to", s.To, desc, list)
		if err != nil {
			return nil, err
		}
		to = idx
	}
	if from >= to {
		return nil, fmt.Errorf("slice %q: from (position %d) does not precede to (position %d)", s.ID, from, to)
	}
	return list.Section(from+1, to), nil
}

// resolveBoundary resolves one boundary query to a single position. A
// boundary producing multiple matches keeps the first, matching the FIRST
// selector convention.
func (s *Slice) resolveBoundary(which string, p Point, desc string, list *bytecode.InsnList) (int, error) {
	matches := Matches{}
	if !p.Find(desc, list, &matches) {
		return 0, fmt.Errorf("slice %q: %s boundary did not match any instruction", s.ID, which)
	}
	return list.IndexOf(matches.Slice()[0]), nil
}

// Map is the per-injector collection of named slices.
type Map map[string]*Slice

// Get returns the slice registered under id. The default (empty) id always
// resolves, to an unbounded slice.
func (m Map) Get(id string) (*Slice, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	if id == DefaultSliceID {
		return &Slice{}, nil
	}
	return nil, fmt.Errorf("undeclared slice id %q", id)
}
