// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package point

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/jvm"
)

func TestSliceResolve(t *testing.T) {
	list, marks := buildBody()
	tick := jvm.MustParseMemberPattern("tick")

	t.Run("bounded both ends", func(t *testing.T) {
		s := &Slice{ID: "loop", From: Invoke{Target: tick, Ordinal: 0}, To: Invoke{Target: tick, Ordinal: 1}}
		view, err := s.Resolve("()I", list)
		require.NoError(t, err)
		// Strictly between the two calls: ldc, log, aload.
		assert.Equal(t, 3, view.Len())
		assert.Same(t, marks["ldc"], view.At(0))
		assert.Same(t, marks["this1"], view.At(2))
	})

	t.Run("boundaries are excluded", func(t *testing.T) {
		s := &Slice{From: Invoke{Target: tick, Ordinal: 0}, To: Invoke{Target: tick, Ordinal: 1}}
		view, err := s.Resolve("()I", list)
		require.NoError(t, err)
		assert.Equal(t, -1, view.IndexOf(marks["tick0"]))
		assert.Equal(t, -1, view.IndexOf(marks["tick1"]))
	})

	t.Run("nil boundaries cover the whole method", func(t *testing.T) {
		s := &Slice{}
		view, err := s.Resolve("()I", list)
		require.NoError(t, err)
		assert.Equal(t, list.Len(), view.Len())
		assert.Same(t, marks["this0"], view.At(0))
	})

	t.Run("multi-match boundary keeps the first", func(t *testing.T) {
		s := &Slice{From: Invoke{Target: tick, Ordinal: -1}}
		view, err := s.Resolve("()I", list)
		require.NoError(t, err)
		assert.Same(t, marks["ldc"], view.At(0))
	})

	t.Run("unresolved boundary fails", func(t *testing.T) {
		s := &Slice{ID: "head", From: Invoke{Target: jvm.MustParseMemberPattern("missing"), Ordinal: -1}}
		_, err := s.Resolve("()I", list)
		require.Error(t, err)
		assert.ErrorContains(t, err, `slice "head"`)
		assert.ErrorContains(t, err, "from boundary")
	})

	t.Run("inverted boundaries fail", func(t *testing.T) {
		s := &Slice{From: Invoke{Target: tick, Ordinal: 1}, To: Invoke{Target: tick, Ordinal: 0}}
		_, err := s.Resolve("()I", list)
		require.Error(t, err)
		assert.ErrorContains(t, err, "does not precede")
	})

	t.Run("adjacent boundaries yield an empty range error", func(t *testing.T) {
		s := &Slice{From: FieldAccess{Target: jvm.MustParseMemberPattern("count"), Opcode: -1, Ordinal: -1}, To: Jump{Opcode: -1, Ordinal: -1}}
		// getfield .. istore .. new .. ifeq: two instructions survive.
		view, err := s.Resolve("()I", list)
		require.NoError(t, err)
		assert.Equal(t, 2, view.Len())

		same := &Slice{From: Jump{Opcode: -1, Ordinal: -1}, To: Jump{Opcode: -1, Ordinal: -1}}
		_, err = same.Resolve("()I", list)
		require.Error(t, err)
	})
}

func TestSliceMap(t *testing.T) {
	list, _ := buildBody()
	m := Map{"early": {ID: "early", To: Jump{Opcode: -1, Ordinal: -1}}}

	t.Run("declared id resolves", func(t *testing.T) {
		s, err := m.Get("early")
		require.NoError(t, err)
		view, err := s.Resolve("()I", list)
		require.NoError(t, err)
		assert.Equal(t, 9, view.Len())
	})

	t.Run("default id always resolves, unbounded", func(t *testing.T) {
		s, err := m.Get(DefaultSliceID)
		require.NoError(t, err)
		view, err := s.Resolve("()I", list)
		require.NoError(t, err)
		assert.Equal(t, list.Len(), view.Len())
	})

	t.Run("undeclared id fails", func(t *testing.T) {
		_, err := m.Get("late")
		require.Error(t, err)
		assert.ErrorContains(t, err, `undeclared slice id "late"`)
	})
}

func TestSelectorReduce(t *testing.T) {
	list, marks := buildBody()
	all := find(t, Return{Ordinal: -1}, list)
	require.Len(t, all, 2)

	for name, tc := range map[string]struct {
		selector Selector
		want     []*bytecode.Instruction
		wantErr  bool
	}{
		"default keeps all": {selector: SelectDefault, want: all},
		"first":             {selector: SelectFirst, want: all[:1]},
		"last":              {selector: SelectLast, want: all[1:]},
		"one fails on two":  {selector: SelectOne, wantErr: true},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := tc.selector.Reduce("RETURN", all)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorContains(t, err, `"RETURN"`)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("one passes on exactly one", func(t *testing.T) {
		got, err := SelectOne.Reduce("TAIL", []*bytecode.Instruction{marks["ret1"]})
		require.NoError(t, err)
		assert.Equal(t, []*bytecode.Instruction{marks["ret1"]}, got)
	})
}
