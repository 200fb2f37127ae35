// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package injection

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// Groups aggregates injection outcomes across injectors sharing a group name,
// so a requirement can be satisfied by any member rather than each member
// individually.
type Groups struct {
	groups map[string]*groupState
}

type groupState struct {
	require int
	found   int
	members []string
}

func NewGroups() *Groups {
	return &Groups{groups: make(map[string]*groupState)}
}

// Enroll registers an injector with its group before any injection runs.
// When members declare different requirements the strictest one wins, with a
// warning naming the group.
func (g *Groups) Enroll(info *Info) {
	if info.Group == "" {
		return
	}
	state := g.groups[info.Group]
	if state == nil {
		state = &groupState{require: info.GroupRequire}
		g.groups[info.Group] = state
	} else if info.GroupRequire != state.require {
		if info.GroupRequire > state.require {
			state.require = info.GroupRequire
		}
		log.Warn().
			Str("group", info.Group).
			Int("require", state.require).
			Msg("Injector group members declare conflicting requirements, using the strictest")
	}
	state.members = append(state.members, info.Handler.String())
}

// Record adds an injector's realized injection count to its group tally.
func (g *Groups) Record(info *Info, injected int) {
	if info.Group == "" {
		return
	}
	if state := g.groups[info.Group]; state != nil {
		state.found += injected
	}
}

// Validate checks every group's aggregate count against its requirement and
// returns one GroupError per unsatisfied group, ordered by group name.
func (g *Groups) Validate() []error {
	names := make([]string, 0, len(g.groups))
	for name := range g.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		state := g.groups[name]
		if state.found < state.require {
			errs = append(errs, &GroupError{
				Group:   name,
				Require: state.require,
				Found:   state.found,
				Members: append([]string(nil), state.members...),
			})
		}
	}
	return errs
}
