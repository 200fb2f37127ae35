// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixweave/weave/jvm"
)

func TestInsnListMutation(t *testing.T) {
	list := NewInsnList()
	a := NewInsn(NOP)
	b := NewVarInsn(ILOAD, 1)
	c := NewInsn(IRETURN)
	list.Add(a, b, c)

	t.Run("indexing", func(t *testing.T) {
		require.Equal(t, 3, list.Len())
		assert.Equal(t, 0, list.IndexOf(a))
		assert.Equal(t, 1, list.IndexOf(b))
		assert.Equal(t, 2, list.IndexOf(c))
		assert.Same(t, a, list.First())
		assert.Same(t, c, list.Last())
	})

	t.Run("insert before preserves order", func(t *testing.T) {
		x := NewInsn(DUP)
		y := NewInsn(POP)
		list.InsertBefore(c, x, y)
		assert.Equal(t, []*Instruction{a, b, x, y, c}, collect(list))
		assert.Equal(t, 4, list.IndexOf(c))
	})

	t.Run("insert after", func(t *testing.T) {
		z := NewInsn(SWAP)
		list.InsertAfter(a, z)
		assert.Equal(t, 0, list.IndexOf(a))
		assert.Equal(t, 1, list.IndexOf(z))
		assert.Equal(t, 2, list.IndexOf(b))
	})

	t.Run("remove reindexes", func(t *testing.T) {
		list.Remove(b)
		assert.False(t, list.Contains(b))
		assert.Equal(t, -1, list.IndexOf(b))
		for i := 0; i < list.Len(); i++ {
			assert.Equal(t, i, list.IndexOf(list.At(i)))
		}
	})

	t.Run("replace keeps position", func(t *testing.T) {
		pos := list.IndexOf(c)
		r := NewInsn(ARETURN)
		list.Replace(c, r)
		assert.Equal(t, pos, list.IndexOf(r))
		assert.False(t, list.Contains(c))
	})
}

func TestInsnListOwnership(t *testing.T) {
	list := NewInsnList()
	in := NewInsn(NOP)
	list.Add(in)

	assert.Panics(t, func() { list.Add(in) }, "double add")

	other := NewInsnList()
	assert.Panics(t, func() { other.Add(in) }, "adopt from another list")

	list.Remove(in)
	require.NotPanics(t, func() { other.Add(in) }, "adoption after removal")
	assert.True(t, other.Contains(in))
	assert.False(t, list.Contains(in))
}

func TestLabelTargetsSurviveMutation(t *testing.T) {
	list := NewInsnList()
	label := list.NewLabel()
	jump := NewJumpInsn(GOTO, label.Label)
	list.Add(NewInsn(NOP), jump, NewInsn(POP), label, NewInsn(RETURN))

	// Branch targets reference labels by ID, so inserting and removing
	// around them must not invalidate the reference.
	list.InsertBefore(label, NewInsn(NOP), NewInsn(NOP))
	list.Remove(list.First())

	resolved := list.LabelTarget(jump.Target)
	require.NotNil(t, resolved)
	assert.Same(t, label, resolved)
	assert.Greater(t, list.IndexOf(resolved), list.IndexOf(jump))
}

func TestSectionView(t *testing.T) {
	list := NewInsnList()
	insns := []*Instruction{
		NewInsn(NOP),
		NewVarInsn(ILOAD, 0),
		NewVarInsn(ILOAD, 1),
		NewInsn(IADD),
		NewInsn(IRETURN),
	}
	list.Add(insns...)

	view := list.Section(1, 4)
	require.Equal(t, 3, view.Len())
	assert.Same(t, insns[1], view.At(0))
	assert.Same(t, insns[3], view.At(2))

	assert.Equal(t, 0, view.IndexOf(insns[1]))
	assert.Equal(t, -1, view.IndexOf(insns[0]), "before the section")
	assert.Equal(t, -1, view.IndexOf(insns[4]), "after the section")

	assert.Panics(t, func() { list.Section(3, 2) })
	assert.Panics(t, func() { list.Section(0, 99) })
}

func TestBuilderHelpers(t *testing.T) {
	t.Run("loads and stores by type", func(t *testing.T) {
		assert.Equal(t, ILOAD, LoadInsn(jvm.Int, 1).Op)
		assert.Equal(t, LLOAD, LoadInsn(jvm.Long, 1).Op)
		assert.Equal(t, ALOAD, LoadInsn(jvm.ObjectType("java/lang/Object"), 1).Op)
		assert.Equal(t, ISTORE, StoreInsn(jvm.Boolean, 2).Op)
		assert.Equal(t, DSTORE, StoreInsn(jvm.Double, 2).Op)
		assert.Equal(t, ASTORE, StoreInsn(jvm.MustTypeOf("[I"), 2).Op)
	})

	t.Run("returns by type", func(t *testing.T) {
		assert.Equal(t, RETURN, ReturnInsn(jvm.Void).Op)
		assert.Equal(t, IRETURN, ReturnInsn(jvm.Short).Op)
		assert.Equal(t, LRETURN, ReturnInsn(jvm.Long).Op)
		assert.Equal(t, ARETURN, ReturnInsn(jvm.ObjectType("java/lang/String")).Op)
	})

	t.Run("integer constants", func(t *testing.T) {
		assert.Equal(t, ICONST_M1, PushInt(-1).Op)
		assert.Equal(t, ICONST_5, PushInt(5).Op)
		assert.Equal(t, BIPUSH, PushInt(100).Op)
		assert.Equal(t, SIPUSH, PushInt(10_000).Op)
		assert.Equal(t, LDC, PushInt(100_000).Op)
	})

	t.Run("constant values normalize", func(t *testing.T) {
		v, ok := ConstantValue(PushInt(3))
		require.True(t, ok)
		assert.Equal(t, int64(3), v)

		v, ok = ConstantValue(NewLdcInsn(int32(100_000)))
		require.True(t, ok)
		assert.Equal(t, int64(100_000), v)

		v, ok = ConstantValue(NewLdcInsn(float32(2.5)))
		require.True(t, ok)
		assert.Equal(t, float64(2.5), v)

		v, ok = ConstantValue(NewLdcInsn("hello"))
		require.True(t, ok)
		assert.Equal(t, "hello", v)

		_, ok = ConstantValue(NewInsn(NOP))
		assert.False(t, ok)
	})

	t.Run("constant types follow the carried width", func(t *testing.T) {
		tests := map[jvm.Type]*Instruction{
			jvm.Int:    NewLdcInsn(int32(100_000)),
			jvm.Long:   NewLdcInsn(int64(1) << 40),
			jvm.Float:  NewLdcInsn(float32(1.5)),
			jvm.Double: NewLdcInsn(float64(1.5)),
		}
		for want, in := range tests {
			typ, ok := ConstantType(in)
			require.True(t, ok)
			assert.Equal(t, want, typ)
		}

		typ, ok := ConstantType(PushInt(100_000))
		require.True(t, ok)
		assert.Equal(t, jvm.Int, typ, "large pushed ints stay int-typed")
	})
}

func collect(list *InsnList) []*Instruction {
	out := make([]*Instruction, list.Len())
	for i := range out {
		out[i] = list.At(i)
	}
	return out
}
