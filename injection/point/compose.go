// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package point

import (
	"github.com/rs/zerolog/log"

	"github.com/mixweave/weave/bytecode"
)

// Intersection runs every child query independently and keeps only the
// instructions present in all of their result sets, in the order of the first
// child's results.
type Intersection struct {
	Points []Point
}

// And composes points into an Intersection.
func And(points ...Point) Intersection {
	return Intersection{Points: points}
}

func (p Intersection) Find(desc string, view bytecode.View, out *Matches) bool {
	if len(p.Points) == 0 {
		return false
	}
	results := make([]Matches, len(p.Points))
	for i, child := range p.Points {
		if !child.Find(desc, view, &results[i]) {
			return false
		}
	}
	matched := false
	for _, in := range results[0].Slice() {
		all := true
		for i := 1; i < len(results); i++ {
			if !results[i].Contains(in) {
				all = false
				break
			}
		}
		if all {
			out.Add(in)
			matched = true
		}
	}
	return matched
}

// Union returns the set union of all children's results, ordered by first
// encounter across children.
type Union struct {
	Points []Point
}

// Or composes points into a Union.
func Or(points ...Point) Union {
	return Union{Points: points}
}

func (p Union) Find(desc string, view bytecode.View, out *Matches) bool {
	matched := false
	for _, child := range p.Points {
		if child.Find(desc, view, out) {
			matched = true
		}
	}
	return matched
}

// Shift remaps every result of the child query to the instruction By
// positions away in the view. Results shifted outside the view are dropped
// with a diagnostic attributed to the child query; the caller's violation
// policy decides whether drops escalate.
type Shift struct {
	Point Point
	By    int

	// Dropped, when non-nil, receives the count of out-of-bounds drops.
	Dropped *int
}

// ShiftedBy wraps child so its matches resolve By instructions away.
func ShiftedBy(child Point, by int) *Shift {
	return &Shift{Point: child, By: by}
}

func (p *Shift) Find(desc string, view bytecode.View, out *Matches) bool {
	raw := Matches{}
	if !p.Point.Find(desc, view, &raw) {
		return false
	}
	matched := false
	for _, in := range raw.Slice() {
		idx := view.IndexOf(in) + p.By
		if idx < 0 || idx >= view.Len() {
			if p.Dropped != nil {
				*p.Dropped++
			}
			log.Debug().
				Type("point", p.Point).
				Int("by", p.By).
				Msg("Shifted injection point match falls outside the method; dropping it")
			continue
		}
		out.Add(view.At(idx))
		matched = true
	}
	return matched
}
