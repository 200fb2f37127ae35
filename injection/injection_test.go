// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package injection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/injection/locals"
	"github.com/mixweave/weave/injection/point"
	"github.com/mixweave/weave/jvm"
)

// newGameMethod builds the running example method most scenarios inject into:
//
//	void update() {           // com/example/Game.update()V
//	    this.tick();
//	    this.tick();
//	    if (this.isReady()) { this.render(); }
//	}
func newGameMethod() *bytecode.Method {
	m := bytecode.NewMethod("com/example/Game", "update", "()V", 0)
	m.MaxStack = 1
	m.MaxLocals = 1

	list := m.Instructions
	skip := list.NewLabel()
	tick := jvm.MemberRef{Owner: "com/example/Game", Name: "tick", Desc: "()V"}
	list.Add(
		bytecode.NewVarInsn(bytecode.ALOAD, 0),
		bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, tick),
		bytecode.NewVarInsn(bytecode.ALOAD, 0),
		bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, tick),
		bytecode.NewVarInsn(bytecode.ALOAD, 0),
		bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, jvm.MemberRef{Owner: "com/example/Game", Name: "isReady", Desc: "()Z"}),
		bytecode.NewJumpInsn(bytecode.IFEQ, skip.Label),
		bytecode.NewVarInsn(bytecode.ALOAD, 0),
		bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, jvm.MemberRef{Owner: "com/example/Game", Name: "render", Desc: "()V"}),
		skip,
		bytecode.NewInsn(bytecode.RETURN),
	)
	return m
}

func callbackInfo(handler, desc string) *Info {
	info := NewInfo(KindCallback)
	info.Mixin = "com/example/mixin/GameMixin"
	info.Handler = jvm.MemberRef{Owner: info.Mixin, Name: handler, Desc: desc}
	info.HandlerStatic = false
	return info
}

func atInvoke(target string) point.Spec {
	s := point.NewSpec("INVOKE")
	s.Target = target
	return s
}

// Scenario: a callback handler is spliced in front of the matched call.
func TestCallbackBeforeInvoke(t *testing.T) {
	m := newGameMethod()
	target := NewTarget("com/example/Game", m)
	lv := &locals.Cache{}

	info := callbackInfo("onTick", "(Lweave/runtime/CallbackInfo;)V")
	info.At = []point.Spec{atInvoke("tick")}

	inj, err := New(info, lv)
	require.NoError(t, err)
	nodes, err := ResolveNodes(info, target, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 2, "both calls to tick match")

	injected := 0
	for _, n := range nodes {
		ok, err := inj.Inject(target, n)
		require.NoError(t, err)
		if ok {
			injected++
		}
	}
	assert.Equal(t, 2, injected)
	require.NoError(t, ValidateCount(info, target, injected))

	// Each splice: aload_0, new carrier, dup, ldc name, iconst_0, invokespecial
	// <init>, invokevirtual handler, all before the original call.
	idx := m.Instructions.IndexOf(nodes[0].Current())
	prefix := make([]bytecode.Opcode, 0, 7)
	for i := idx - 7; i < idx; i++ {
		prefix = append(prefix, m.Instructions.At(i).Op)
	}
	assert.Equal(t, []bytecode.Opcode{
		bytecode.ALOAD, bytecode.NEW, bytecode.DUP, bytecode.LDC,
		bytecode.ICONST_0, bytecode.INVOKESPECIAL, bytecode.INVOKEVIRTUAL,
	}, prefix)
	assert.GreaterOrEqual(t, m.MaxStack, 6, "carrier construction raises the stack demand")
}

// Scenario: ordinal restricts the same query to the second occurrence.
func TestCallbackOrdinalSelectsSecondOccurrence(t *testing.T) {
	m := newGameMethod()
	target := NewTarget("com/example/Game", m)

	info := callbackInfo("onSecondTick", "(Lweave/runtime/CallbackInfo;)V")
	spec := atInvoke("tick")
	spec.Ordinal = 1
	info.At = []point.Spec{spec}

	nodes, err := ResolveNodes(info, target, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	// The match is the fourth real instruction: the second tick call.
	assert.Equal(t, 3, m.Instructions.IndexOf(nodes[0].Current()))
}

// Scenario: a slice bounds the query to the code past the readiness check.
func TestSliceBoundsTheQuery(t *testing.T) {
	m := newGameMethod()
	target := NewTarget("com/example/Game", m)

	info := callbackInfo("onRender", "(Lweave/runtime/CallbackInfo;)V")
	spec := point.NewSpec("INVOKE")
	spec.Target = "*" // every call in range
	spec.SliceID = "afterCheck"
	info.At = []point.Spec{spec}
	info.Slices = point.Map{
		"afterCheck": {
			ID:   "afterCheck",
			From: point.Invoke{Target: jvm.MustParseMemberPattern("isReady"), Ordinal: -1},
		},
	}

	nodes, err := ResolveNodes(info, target, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1, "only the render call lies past the check")
	assert.Equal(t, "render", nodes[0].Current().Member.Name)
}

// Scenario: require=2 with a single match is a fatal count violation.
func TestRequireViolationFails(t *testing.T) {
	m := newGameMethod()
	target := NewTarget("com/example/Game", m)

	info := callbackInfo("onRender", "(Lweave/runtime/CallbackInfo;)V")
	info.At = []point.Spec{atInvoke("render")}
	info.Require = 2

	nodes, err := ResolveNodes(info, target, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	err = ValidateCount(info, target, len(nodes))
	require.Error(t, err)
	var countErr *CountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 1, countErr.Found)
	assert.Equal(t, 2, countErr.Require)
	assert.ErrorContains(t, err, "require=2 not satisfied")
}

func TestAllowCeilingFails(t *testing.T) {
	m := newGameMethod()
	target := NewTarget("com/example/Game", m)

	info := callbackInfo("onTick", "(Lweave/runtime/CallbackInfo;)V")
	info.At = []point.Spec{atInvoke("tick")}
	info.Allow = 1

	err := ValidateCount(info, target, 2)
	require.Error(t, err)
	assert.ErrorContains(t, err, "more than allow=1 permits")
}

// Scenario: two redirects claiming the same call conflict; the second fails
// and names the first.
func TestDoubleRedirectConflicts(t *testing.T) {
	m := newGameMethod()
	target := NewTarget("com/example/Game", m)
	lv := &locals.Cache{}

	newRedirect := func(mixin string) (*Info, Injector) {
		info := NewInfo(KindRedirect)
		info.Mixin = mixin
		info.Handler = jvm.MemberRef{Owner: mixin, Name: "tickRedirect", Desc: "(Lcom/example/Game;)V"}
		info.HandlerStatic = true
		info.At = []point.Spec{atInvoke("tick")}
		inj, err := New(info, lv)
		require.NoError(t, err)
		return info, inj
	}

	first, firstInj := newRedirect("com/example/mixin/AMixin")
	second, secondInj := newRedirect("com/example/mixin/BMixin")

	firstNodes, err := ResolveNodes(first, target, nil)
	require.NoError(t, err)
	secondNodes, err := ResolveNodes(second, target, nil)
	require.NoError(t, err)
	require.Len(t, firstNodes, 2)
	assert.Same(t, firstNodes[0], secondNodes[0], "both injectors share the per-instruction node")

	ok, err := firstInj.Inject(target, firstNodes[0])
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = secondInj.Inject(target, secondNodes[0])
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Other, "com/example/mixin/AMixin")
	assert.ErrorContains(t, err, "already redirected")
}

func TestResolveNodesRemapFallback(t *testing.T) {
	m := bytecode.NewMethod("a", "a", "()V", 0)
	m.Instructions.Add(
		bytecode.NewVarInsn(bytecode.ALOAD, 0),
		bytecode.NewMethodInsn(bytecode.INVOKEVIRTUAL, jvm.MemberRef{Owner: "a", Name: "b", Desc: "()V"}),
		bytecode.NewInsn(bytecode.RETURN),
	)
	target := NewTarget("a", m)

	info := callbackInfo("onTick", "(Lweave/runtime/CallbackInfo;)V")
	info.Remap = true
	info.At = []point.Spec{atInvoke("Lcom/example/Game;tick()V")}

	remapper := func(p jvm.MemberPattern) (jvm.MemberPattern, bool) {
		if p.Name == "tick" {
			return jvm.MemberPattern{Owner: "a", Name: "b", Desc: "()V"}, true
		}
		return p, false
	}

	nodes, err := ResolveNodes(info, target, remapper)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "b", nodes[0].Current().Member.Name)
}

func TestTargetAccounting(t *testing.T) {
	m := newGameMethod()
	m.MaxStack = 3
	m.MaxLocals = 2
	target := NewTarget("com/example/Game", m)

	t.Run("grow stack folds the running maximum", func(t *testing.T) {
		target.GrowStack(2)
		assert.Equal(t, 5, m.MaxStack)
		target.GrowStack(1)
		assert.Equal(t, 5, m.MaxStack, "a smaller demand never shrinks the folded maximum")
		target.GrowStack(4)
		assert.Equal(t, 7, m.MaxStack)
	})

	t.Run("allocate locals hands out fresh slots", func(t *testing.T) {
		first := target.AllocateLocals(2)
		second := target.AllocateLocals(1)
		assert.Equal(t, 2, first)
		assert.Equal(t, 4, second)
		assert.Equal(t, 5, m.MaxLocals)
	})
}

func TestNewRejectsBrokenSpecs(t *testing.T) {
	lv := &locals.Cache{}
	for name, mutate := range map[string]func(*Info){
		"no handler":         func(i *Info) { i.Handler = jvm.MemberRef{} },
		"bad descriptor":     func(i *Info) { i.Handler.Desc = "(" },
		"no injection point": func(i *Info) { i.At = nil },
		"unknown kind":       func(i *Info) { i.Kind = Kind("teleport") },
	} {
		t.Run(name, func(t *testing.T) {
			info := callbackInfo("onTick", "(Lweave/runtime/CallbackInfo;)V")
			info.At = []point.Spec{atInvoke("tick")}
			mutate(info)
			_, err := New(info, lv)
			require.Error(t, err)
			var spec *InvalidSpecError
			assert.ErrorAs(t, err, &spec)
		})
	}
}

func TestShiftViolationPolicy(t *testing.T) {
	// RETURN shifted one past the end always falls outside the method.
	shiftedReturn := func(policy point.ShiftPolicy) point.Spec {
		s := point.NewSpec("RETURN")
		s.Shift = point.ShiftAfter
		s.Policy = policy
		return s
	}

	t.Run("warn drops the match", func(t *testing.T) {
		m := newGameMethod()
		target := NewTarget("com/example/Game", m)
		info := callbackInfo("onReturn", "(Lweave/runtime/CallbackInfo;)V")
		info.At = []point.Spec{shiftedReturn(point.ShiftPolicyWarn)}

		nodes, err := ResolveNodes(info, target, nil)
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	t.Run("error escalates the drop", func(t *testing.T) {
		m := newGameMethod()
		target := NewTarget("com/example/Game", m)
		info := callbackInfo("onReturn", "(Lweave/runtime/CallbackInfo;)V")
		info.At = []point.Spec{shiftedReturn(point.ShiftPolicyError)}

		_, err := ResolveNodes(info, target, nil)
		require.Error(t, err)
		var invalid *InvalidSpecError
		require.ErrorAs(t, err, &invalid)
		assert.ErrorContains(t, err, "fell outside the method body")
	})

	t.Run("excessive by is rejected", func(t *testing.T) {
		m := newGameMethod()
		target := NewTarget("com/example/Game", m)
		info := callbackInfo("onTick", "(Lweave/runtime/CallbackInfo;)V")
		s := atInvoke("tick")
		s.Shift = point.ShiftByValue
		s.By = point.MaxShiftBy + 1
		info.At = []point.Spec{s}

		_, err := ResolveNodes(info, target, nil)
		require.Error(t, err)
		var invalid *InvalidSpecError
		require.ErrorAs(t, err, &invalid)
		assert.ErrorContains(t, err, "exceeds the maximum")
	})
}
