// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixweave/weave/bytecode"
)

func TestRegistryDeduplicates(t *testing.T) {
	r := Registry{}
	in := bytecode.NewInsn(bytecode.NOP)

	first := r.Add(in)
	second := r.Add(in)
	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())
	assert.Same(t, in, first.Original())
	assert.Same(t, in, first.Current())
	assert.False(t, first.IsReplaced())
	assert.False(t, first.IsRemoved())
}

func TestRegistryTracksReplacement(t *testing.T) {
	r := Registry{}
	old := bytecode.NewInsn(bytecode.ICONST_0)
	repl := bytecode.NewInsn(bytecode.ICONST_1)

	n := r.Add(old)
	r.Replace(old, repl)

	assert.True(t, n.IsReplaced())
	assert.Same(t, old, n.Original())
	assert.Same(t, repl, n.Current())

	// Lookups stay permissive: both identities resolve to the same node.
	assert.Same(t, n, r.Get(old))
	assert.Same(t, n, r.Get(repl))

	// A second replacement chains through the current identity.
	again := bytecode.NewInsn(bytecode.ICONST_2)
	r.Replace(repl, again)
	assert.Same(t, again, n.Current())
	assert.Same(t, old, n.Original())
	assert.Same(t, n, r.Get(again))
	assert.Nil(t, r.Get(repl), "an intermediate identity is forgotten")
}

func TestRegistryRemove(t *testing.T) {
	r := Registry{}
	in := bytecode.NewInsn(bytecode.POP)
	n := r.Add(in)

	r.Remove(in)
	require.True(t, n.IsRemoved())
	assert.Nil(t, n.Current())
	assert.Same(t, n, r.Get(in), "the original identity still resolves after removal")

	t.Run("replace after remove is a no-op", func(t *testing.T) {
		r.Replace(in, bytecode.NewInsn(bytecode.NOP))
		assert.True(t, n.IsRemoved())
	})

	t.Run("add revives the node", func(t *testing.T) {
		revived := r.Add(in)
		assert.Same(t, n, revived)
		assert.False(t, n.IsRemoved())
		assert.Same(t, in, n.Current())
	})
}

func TestRegistryMisses(t *testing.T) {
	r := Registry{}
	stranger := bytecode.NewInsn(bytecode.NOP)

	assert.Nil(t, r.Get(stranger))
	assert.NotPanics(t, func() { r.Replace(stranger, bytecode.NewInsn(bytecode.NOP)) })
	assert.NotPanics(t, func() { r.Remove(stranger) })
	assert.Zero(t, r.Len())
	assert.Nil(t, r.Get(nil))
}

func TestDecorations(t *testing.T) {
	r := Registry{}
	n := r.Add(bytecode.NewInsn(bytecode.NOP))

	assert.False(t, n.HasDecoration("weave.redirected"))
	assert.Nil(t, n.Decoration("weave.redirected"))

	n.Decorate("weave.redirected", "com/example/MyMixin.handler")
	assert.True(t, n.HasDecoration("weave.redirected"))
	assert.Equal(t, "com/example/MyMixin.handler", n.Decoration("weave.redirected"))

	n.Decorate("weave.redirected", "other")
	assert.Equal(t, "other", n.Decoration("weave.redirected"))
}
