// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package locals

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mixweave/weave/bytecode"
)

// Cache memoizes Resolve results. Reconstruction is expensive and several
// injectors on the same method would otherwise repeat it; distinct classes
// may be transformed by concurrent classloading threads, so the cache
// tolerates concurrent reads and first-writes. Computing an entry twice in a
// race is harmless, singleflight merely avoids the duplicated work.
type Cache struct {
	entries sync.Map // string -> []*Entry
	group   singleflight.Group
}

// Resolve returns the local variable table in effect before target,
// computing and caching it on first use. Cached entries must be treated as
// read-only.
func (c *Cache) Resolve(m *bytecode.Method, target *bytecode.Instruction) ([]*Entry, error) {
	key := fmt.Sprintf("%s.%s%s@%d", m.Owner, m.Name, m.Desc, target.ID())
	if cached, ok := c.entries.Load(key); ok {
		return cached.([]*Entry), nil
	}
	result, err, _ := c.group.Do(key, func() (any, error) {
		entries, err := Resolve(m, target)
		if err != nil {
			return nil, err
		}
		actual, _ := c.entries.LoadOrStore(key, entries)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Entry), nil
}

// Invalidate drops every cached table for the given method. Targets move
// when injectors splice code, so the owning transformation pass invalidates
// after each mutation batch.
func (c *Cache) Invalidate(m *bytecode.Method) {
	prefix := fmt.Sprintf("%s.%s%s@", m.Owner, m.Name, m.Desc)
	c.entries.Range(func(key, _ any) bool {
		if k, ok := key.(string); ok && len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.entries.Delete(key)
		}
		return true
	})
}
