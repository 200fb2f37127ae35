// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package locals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/jvm"
)

func TestResolveArgumentsOnly(t *testing.T) {
	m := bytecode.NewMethod("com/example/Foo", "scale", "(IJ)J", 0)
	target := bytecode.NewInsn(bytecode.LRETURN)
	m.Instructions.Add(target)

	entries, err := Resolve(m, target)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// this, int arg, long arg plus its continuation slot.
	assert.Equal(t, jvm.ObjectType("com/example/Foo"), entries[0].Type)
	assert.Equal(t, jvm.Int, entries[1].Type)
	assert.Equal(t, jvm.Long, entries[2].Type)
	assert.Nil(t, entries[3], "second slot of a long is a continuation slot")
	assert.Equal(t, 2, entries[2].Slot)
}

func TestResolveStaticHasNoReceiver(t *testing.T) {
	m := bytecode.NewMethod("com/example/Foo", "half", "(D)D", jvm.AccStatic)
	target := bytecode.NewInsn(bytecode.DRETURN)
	m.Instructions.Add(target)

	entries, err := Resolve(m, target)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, jvm.Double, entries[0].Type)
	assert.Nil(t, entries[1])
}

func TestResolveTracksStores(t *testing.T) {
	m := bytecode.NewMethod("com/example/Foo", "run", "()V", jvm.AccStatic)
	target := bytecode.NewInsn(bytecode.RETURN)
	m.Instructions.Add(
		bytecode.NewInsn(bytecode.ICONST_1),
		bytecode.NewVarInsn(bytecode.ISTORE, 0),
		bytecode.NewLdcInsn(int64(7)),
		bytecode.NewVarInsn(bytecode.LSTORE, 1),
		target,
	)

	entries, err := Resolve(m, target)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, jvm.Int, entries[0].Type)
	assert.Equal(t, jvm.Long, entries[1].Type)
	assert.Nil(t, entries[2])
	assert.Equal(t, "var1", entries[1].Name)
}

func TestResolveStopsBeforeTarget(t *testing.T) {
	m := bytecode.NewMethod("com/example/Foo", "run", "()V", jvm.AccStatic)
	target := bytecode.NewVarInsn(bytecode.ISTORE, 0)
	m.Instructions.Add(bytecode.NewInsn(bytecode.ICONST_0), target, bytecode.NewInsn(bytecode.RETURN))

	entries, err := Resolve(m, target)
	require.NoError(t, err)
	assert.Empty(t, entries, "the store at the target itself has not executed yet")
}

func TestResolveAppliesFrames(t *testing.T) {
	t.Run("append then chop", func(t *testing.T) {
		m := bytecode.NewMethod("com/example/Foo", "loop", "(I)V", jvm.AccStatic)
		afterAppend := bytecode.NewInsn(bytecode.NOP)
		afterChop := bytecode.NewInsn(bytecode.RETURN)
		m.Instructions.Add(
			bytecode.NewFrameInsn(bytecode.FrameAppend, []bytecode.FrameEntry{
				{Type: jvm.Long},
				{Type: jvm.ObjectType("java/lang/String")},
			}, nil, 0),
			afterAppend,
			bytecode.NewFrameInsn(bytecode.FrameChop, nil, nil, 2),
			afterChop,
		)

		entries, err := Resolve(m, afterAppend)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, jvm.Int, entries[0].Type)
		assert.Equal(t, jvm.Long, entries[1].Type)
		assert.Nil(t, entries[2])
		assert.Equal(t, jvm.ObjectType("java/lang/String"), entries[3].Type)

		entries, err = Resolve(m, afterChop)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, jvm.Int, entries[0].Type)
	})

	t.Run("full replaces wholesale", func(t *testing.T) {
		m := bytecode.NewMethod("com/example/Foo", "loop", "(I)V", jvm.AccStatic)
		target := bytecode.NewInsn(bytecode.RETURN)
		m.Instructions.Add(
			bytecode.NewFrameInsn(bytecode.FrameFull, []bytecode.FrameEntry{
				{Type: jvm.Float},
			}, nil, 0),
			target,
		)

		entries, err := Resolve(m, target)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, jvm.Float, entries[0].Type)
	})

	t.Run("same leaves locals untouched", func(t *testing.T) {
		m := bytecode.NewMethod("com/example/Foo", "loop", "(I)V", jvm.AccStatic)
		target := bytecode.NewInsn(bytecode.RETURN)
		m.Instructions.Add(
			bytecode.NewFrameInsn(bytecode.FrameSame, nil, nil, 0),
			target,
		)

		entries, err := Resolve(m, target)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, jvm.Int, entries[0].Type)
	})
}

func TestResolveUsesDebugNames(t *testing.T) {
	m := bytecode.NewMethod("com/example/Foo", "run", "(I)V", jvm.AccStatic)
	m.LocalVariables = []bytecode.LocalVariable{{Name: "count", Type: jvm.Int, Slot: 0}}
	target := bytecode.NewInsn(bytecode.RETURN)
	m.Instructions.Add(target)

	entries, err := Resolve(m, target)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "count", entries[0].Name)
}

func TestResolveForeignTarget(t *testing.T) {
	m := bytecode.NewMethod("com/example/Foo", "run", "()V", jvm.AccStatic)
	m.Instructions.Add(bytecode.NewInsn(bytecode.RETURN))

	_, err := Resolve(m, bytecode.NewInsn(bytecode.NOP))
	require.Error(t, err)
	assert.ErrorContains(t, err, "not part of")
}

func TestCache(t *testing.T) {
	m := bytecode.NewMethod("com/example/Foo", "run", "(I)V", jvm.AccStatic)
	target := bytecode.NewInsn(bytecode.RETURN)
	m.Instructions.Add(bytecode.NewInsn(bytecode.ICONST_0), bytecode.NewVarInsn(bytecode.ISTORE, 1), target)

	c := &Cache{}
	first, err := c.Resolve(m, target)
	require.NoError(t, err)
	second, err := c.Resolve(m, target)
	require.NoError(t, err)
	assert.Same(t, first[1], second[1], "repeated lookups share the cached table")

	c.Invalidate(m)
	third, err := c.Resolve(m, target)
	require.NoError(t, err)
	assert.NotSame(t, first[1], third[1], "invalidation forces recomputation")
	assert.Equal(t, first[1].Type, third[1].Type)
}
