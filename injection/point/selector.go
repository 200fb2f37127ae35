// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package point

import (
	"fmt"

	"github.com/mixweave/weave/bytecode"
)

// Selector reduces a multi-match result set after all composition and
// ordinal filtering has been applied.
type Selector int

const (
	// SelectDefault leaves the result set untouched.
	SelectDefault Selector = iota
	// SelectFirst keeps only the first match.
	SelectFirst
	// SelectLast keeps only the last match.
	SelectLast
	// SelectOne requires exactly one match and fails otherwise.
	SelectOne
)

// ParseSelector recognizes the FIRST/LAST/ONE selector suffix tokens of the
// injection point specifier grammar.
func ParseSelector(s string) (Selector, bool) {
	switch s {
	case "FIRST":
		return SelectFirst, true
	case "LAST":
		return SelectLast, true
	case "ONE":
		return SelectOne, true
	default:
		return SelectDefault, false
	}
}

func (s Selector) String() string {
	switch s {
	case SelectFirst:
		return "FIRST"
	case SelectLast:
		return "LAST"
	case SelectOne:
		return "ONE"
	default:
		return "DEFAULT"
	}
}

// Reduce applies the selector to an ordered result set. SelectOne returns an
// error naming the offending query when the cardinality is not exactly one.
func (s Selector) Reduce(query string, matches []*bytecode.Instruction) ([]*bytecode.Instruction, error) {
	switch s {
	case SelectDefault:
		return matches, nil
	case SelectFirst:
		if len(matches) == 0 {
			return nil, nil
		}
		return matches[:1], nil
	case SelectLast:
		if len(matches) == 0 {
			return nil, nil
		}
		return matches[len(matches)-1:], nil
	case SelectOne:
		if len(matches) != 1 {
			return nil, fmt.Errorf("%s expects exactly one match for %q, found %d", s, query, len(matches))
		}
		return matches, nil
	default:
		return nil, fmt.Errorf("unknown selector %d", int(s))
	}
}
