// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixweave/weave/injection"
	"github.com/mixweave/weave/injection/point"
)

const sampleDocument = `
name: game-mixins
mixins:
  - name: com.example.mixin.GameMixin
    targets:
      - com/example/Game
    injectors:
      - kind: inject
        method: onTick(Lweave/runtime/CallbackInfo;)V
        target:
          - update()V
        at:
          - value: INVOKE
            target: Lcom/example/Game;tick()V
            ordinal: 1
        cancellable: true
        capture: hard
        require: 1
      - kind: redirect
        method: fakeSize(Ljava/util/List;)I
        static: true
        target:
          - countItems()I
        at:
          - value: INVOKE
            target: size
            slice: early
        slice:
          - id: early
            to:
              value: JUMP
      - kind: modify-arg
        method: clampWidth(I)I
        target:
          - resize()V
        at:
          - INVOKE:ONE
        index: 0
        expect: 2
        allow: 3
`

func TestReadDecodesDocument(t *testing.T) {
	doc, err := Read(strings.NewReader(sampleDocument), false)
	require.NoError(t, err)
	assert.Equal(t, "game-mixins", doc.Name)
	require.Len(t, doc.Mixins, 1)

	m := doc.Mixins[0]
	assert.Equal(t, "com.example.mixin.GameMixin", m.Name)
	assert.Equal(t, []string{"com/example/Game"}, m.Targets)
	require.Len(t, m.Injectors, 3)

	t.Run("mapping at form", func(t *testing.T) {
		inj := m.Injectors[0]
		assert.Equal(t, Kind(injection.KindCallback), inj.Kind)
		assert.True(t, inj.Cancellable)
		assert.Equal(t, Capture(injection.CaptureFailHard), inj.Capture)
		require.Len(t, inj.At, 1)
		assert.Equal(t, "INVOKE", inj.At[0].Value)
		require.NotNil(t, inj.At[0].Ordinal)
		assert.Equal(t, 1, *inj.At[0].Ordinal)
	})

	t.Run("scalar at shorthand", func(t *testing.T) {
		inj := m.Injectors[2]
		assert.Equal(t, Kind(injection.KindModifyArg), inj.Kind, "hyphenated kind names normalize")
		require.Len(t, inj.At, 1)
		assert.Equal(t, "INVOKE:ONE", inj.At[0].Value)
		assert.Nil(t, inj.At[0].Ordinal)
	})
}

func TestInjectionInfos(t *testing.T) {
	doc, err := Read(strings.NewReader(sampleDocument), false)
	require.NoError(t, err)
	infos, err := doc.InjectionInfos()
	require.NoError(t, err)
	require.Len(t, infos, 3)

	t.Run("callback", func(t *testing.T) {
		info := infos[0]
		assert.Equal(t, injection.KindCallback, info.Kind)
		assert.Equal(t, "com.example.mixin.GameMixin", info.Mixin)
		assert.Equal(t, "com/example/mixin/GameMixin", info.Handler.Owner)
		assert.Equal(t, "onTick", info.Handler.Name)
		assert.Equal(t, "(Lweave/runtime/CallbackInfo;)V", info.Handler.Desc)
		assert.False(t, info.HandlerStatic)
		assert.Equal(t, []string{"update()V"}, info.TargetPatterns)
		assert.True(t, info.Cancellable)
		assert.Equal(t, injection.CaptureFailHard, info.Capture)
		assert.Equal(t, 1, info.Require)

		require.Len(t, info.At, 1)
		assert.Equal(t, 1, info.At[0].Ordinal)
		assert.Equal(t, "Lcom/example/Game;tick()V", info.At[0].Target)
	})

	t.Run("defaults survive when unset", func(t *testing.T) {
		info := infos[0]
		assert.Equal(t, 1, info.Expect)
		assert.Equal(t, -1, info.Allow)
		assert.Equal(t, -1, info.ArgIndex)
		assert.Equal(t, -1, info.At[0].Opcode, "unset opcode stays unrestricted")
	})

	t.Run("explicit expect and allow override the defaults", func(t *testing.T) {
		info := infos[2]
		assert.Equal(t, 2, info.Expect)
		assert.Equal(t, 3, info.Allow)
		assert.Equal(t, 0, info.ArgIndex)
	})

	t.Run("slices compile eagerly", func(t *testing.T) {
		info := infos[1]
		s, err := info.Slices.Get("early")
		require.NoError(t, err)
		assert.NotNil(t, s.To)
		assert.Nil(t, s.From)
		assert.Equal(t, "early", info.At[0].SliceID)
	})
}

func TestReadRejectsBadDocuments(t *testing.T) {
	for name, tc := range map[string]struct {
		doc     string
		wantErr string
	}{
		"unknown kind": {
			doc: `
mixins:
  - name: m
    injectors:
      - kind: teleport
        method: x()V
`,
			wantErr: "invalid injector kind",
		},
		"bad capture mode": {
			doc: `
mixins:
  - name: m
    injectors:
      - kind: inject
        method: x()V
        capture: loud
`,
			wantErr: "invalid capture mode",
		},
		"at mapping without value": {
			doc: `
mixins:
  - name: m
    injectors:
      - kind: inject
        method: x()V
        at:
          - target: tick
`,
			wantErr: "has no value",
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.doc), false)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestToInfoRejectsBadReferences(t *testing.T) {
	t.Run("handler without descriptor", func(t *testing.T) {
		m := &Mixin{Name: "m", Injectors: []*Injector{{Kind: Kind(injection.KindCallback), Method: "onTick"}}}
		_, err := m.InjectionInfos()
		require.Error(t, err)
		assert.ErrorContains(t, err, "not of the form name(desc)")
	})

	t.Run("duplicate slice ids", func(t *testing.T) {
		m := &Mixin{Name: "m", Injectors: []*Injector{{
			Kind:   Kind(injection.KindCallback),
			Method: "onTick(Lweave/runtime/CallbackInfo;)V",
			Slices: []*Slice{{ID: "s"}, {ID: "s"}},
		}}}
		_, err := m.InjectionInfos()
		require.Error(t, err)
		assert.ErrorContains(t, err, `duplicate slice id "s"`)
	})

	t.Run("malformed slice boundary", func(t *testing.T) {
		m := &Mixin{Name: "m", Injectors: []*Injector{{
			Kind:   Kind(injection.KindCallback),
			Method: "onTick(Lweave/runtime/CallbackInfo;)V",
			Slices: []*Slice{{ID: "s", From: &At{Value: "TELEPORT"}}},
		}}}
		_, err := m.InjectionInfos()
		require.Error(t, err)
		assert.ErrorContains(t, err, `slice "s" from`)
	})

	t.Run("bad shift mode", func(t *testing.T) {
		m := &Mixin{Name: "m", Injectors: []*Injector{{
			Kind:   Kind(injection.KindCallback),
			Method: "onTick(Lweave/runtime/CallbackInfo;)V",
			At:     []*At{{Value: "HEAD", Shift: "SIDEWAYS"}},
		}}}
		_, err := m.InjectionInfos()
		require.Error(t, err)
		assert.ErrorContains(t, err, "invalid shift mode")
	})

	t.Run("bad shift violation policy", func(t *testing.T) {
		m := &Mixin{Name: "m", Injectors: []*Injector{{
			Kind:   Kind(injection.KindCallback),
			Method: "onTick(Lweave/runtime/CallbackInfo;)V",
			At:     []*At{{Value: "HEAD", Violation: "panic"}},
		}}}
		_, err := m.InjectionInfos()
		require.Error(t, err)
		assert.ErrorContains(t, err, "invalid shift violation policy")
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid document passes", func(t *testing.T) {
		require.NoError(t, Validate(strings.NewReader(sampleDocument)))
	})

	t.Run("missing required fields fail", func(t *testing.T) {
		doc := `
mixins:
  - name: m
    targets: [com/example/Game]
    injectors:
      - kind: inject
`
		err := Validate(strings.NewReader(doc))
		require.Error(t, err)
	})

	t.Run("schema and decoder agree on kinds", func(t *testing.T) {
		doc := `
mixins:
  - name: m
    targets: [com/example/Game]
    injectors:
      - kind: teleport
        method: x()V
        target: [run()V]
        at: [HEAD]
`
		err := Validate(strings.NewReader(doc))
		require.Error(t, err)
	})
}

func TestReadWithValidation(t *testing.T) {
	doc, err := Read(strings.NewReader(sampleDocument), true)
	require.NoError(t, err)
	assert.Equal(t, "game-mixins", doc.Name)
}

func TestAtToSpec(t *testing.T) {
	ordinal := 2
	opcode := 180
	at := &At{
		Value:     "FIELD",
		Target:    "count",
		Slice:     "early",
		Shift:     "BY",
		By:        -2,
		Violation: "error",
		Ordinal:   &ordinal,
		Opcode:    &opcode,
		ID:        "q1",
		Args:      map[string]string{"extra": "x"},
	}
	spec, err := at.toSpec()
	require.NoError(t, err)
	assert.Equal(t, point.Spec{
		Value:   "FIELD",
		Target:  "count",
		SliceID: "early",
		Shift:   point.ShiftByValue,
		By:      -2,
		Policy:  point.ShiftPolicyError,
		Ordinal: 2,
		Opcode:  180,
		ID:      "q1",
		Args:    map[string]string{"extra": "x"},
	}, spec)
	amount, err := spec.ShiftAmount()
	require.NoError(t, err)
	assert.Equal(t, -2, amount)
}
