// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package weave

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Guard detects re-entrant transformation: applying a transformation to a
// class that recursively triggers the same pipeline again, typically because
// a handler's own class needs transforming mid-transformation. On detection
// the re-entrant class is excluded from further processing for the remainder
// of the pass, with a warning, rather than recursing without bound.
type Guard struct {
	mu       sync.Mutex
	active   map[string]struct{}
	excluded map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{
		active:   make(map[string]struct{}),
		excluded: make(map[string]struct{}),
	}
}

// Enter marks the class as being transformed. It reports false when the class
// must be skipped, either because it is already excluded or because this call
// is re-entrant, in which case the class becomes excluded for the rest of the
// pass.
func (g *Guard) Enter(class string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, excluded := g.excluded[class]; excluded {
		return false
	}
	if _, active := g.active[class]; active {
		g.excluded[class] = struct{}{}
		log.Warn().
			Str("class", class).
			Msg("Re-entrant transformation detected, excluding class for the remainder of this pass")
		return false
	}
	g.active[class] = struct{}{}
	return true
}

// Exit releases the class. Exclusion is sticky until Reset.
func (g *Guard) Exit(class string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, class)
}

// Excluded reports whether the class was shut out by re-entrance detection.
func (g *Guard) Excluded(class string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.excluded[class]
	return ok
}

// Reset clears exclusions at the start of a new pass.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.excluded = make(map[string]struct{})
}
