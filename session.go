// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package weave drives mixin injection against in-memory class models: it
// resolves injection point queries to instruction nodes, applies injectors,
// and validates match-count and group contracts. Callers that hold class
// bytes are expected to fall back to the unmodified bytes when a session
// reports a hard failure.
package weave

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mixweave/weave/bytecode"
	"github.com/mixweave/weave/injection"
	"github.com/mixweave/weave/injection/locals"
	"github.com/mixweave/weave/injection/node"
	"github.com/mixweave/weave/internal/diag"
	"github.com/mixweave/weave/jvm"
)

// Class is the in-memory model of one class under transformation. Parsing
// class files into this model and serializing the result back is the host
// toolchain's concern.
type Class struct {
	// Name is the class's internal name (slash-separated).
	Name    string
	Methods []*bytecode.Method
}

// Method returns the named method, or nil.
func (c *Class) Method(name, desc string) *bytecode.Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// Session applies parsed injector records to classes. One session may serve
// many classes concurrently; per-class state is never shared across calls,
// while the locals cache and re-entrance guard are.
type Session struct {
	guard    *Guard
	lv       *locals.Cache
	remapper jvm.Remapper
	dumpDir  string
}

// Option configures a Session.
type Option func(*Session)

// WithRemapper installs the obfuscation remapper consulted when a target
// pattern fails to resolve directly.
func WithRemapper(r jvm.Remapper) Option {
	return func(s *Session) { s.remapper = r }
}

// WithDumpDir enables exporting pre/post bytecode dumps under dir when a
// class fails transformation.
func WithDumpDir(dir string) Option {
	return func(s *Session) { s.dumpDir = dir }
}

func NewSession(opts ...Option) *Session {
	s := &Session{
		guard: NewGuard(),
		lv:    &locals.Cache{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result reports the outcome of one class transformation.
type Result struct {
	Class *Class
	// Skipped is set when the re-entrance guard shut the class out; the
	// class is untouched.
	Skipped bool
	// Modified reports whether any method's instructions changed.
	Modified bool
	// Recorder holds the pre/post dumps captured during the run.
	Recorder *diag.Recorder
}

// Transform applies all applicable injectors to the class's methods. It
// mutates the class in place; on error the class state is unreliable and the
// caller must discard it in favor of the original bytes. Pre/post dumps are
// exported to the configured dump directory on failure.
func (s *Session) Transform(ctx context.Context, class *Class, infos []*injection.Info) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	if !s.guard.Enter(class.Name) {
		return &Result{Class: class, Skipped: true}, nil
	}
	defer s.guard.Exit(class.Name)

	recorder := diag.NewRecorder(class.Name)
	for _, m := range class.Methods {
		recorder.Before(m)
	}

	res := &Result{Class: class, Recorder: recorder}
	if err := s.transform(ctx, class, infos); err != nil {
		for _, m := range class.Methods {
			recorder.After(m)
		}
		if s.dumpDir != "" {
			if dir, exportErr := recorder.Export(s.dumpDir); exportErr != nil {
				logger.Error().Err(exportErr).Str("class", class.Name).Msg("Failed to export transformation dumps")
			} else {
				logger.Info().Str("class", class.Name).Str("dir", dir).Msg("Exported transformation dumps")
			}
		}
		return res, fmt.Errorf("transforming %s: %w", class.Name, err)
	}

	for _, m := range class.Methods {
		recorder.After(m)
	}
	res.Modified = recorder.Changed()
	if res.Modified {
		for _, m := range class.Methods {
			s.lv.Invalidate(m)
		}
	}
	return res, nil
}

// plan is one constructed injector with the targets and nodes it resolved.
type plan struct {
	info     *injection.Info
	injector injection.Injector
	targets  []*plannedTarget
}

type plannedTarget struct {
	target *injection.Target
	nodes  []*node.Node
}

func (s *Session) transform(ctx context.Context, class *Class, infos []*injection.Info) error {
	logger := zerolog.Ctx(ctx)

	// All injectors construct before any instruction sequence is touched, so
	// an invalid specification never partially applies.
	plans := make([]*plan, 0, len(infos))
	groups := injection.NewGroups()
	for _, info := range infos {
		injector, err := injection.New(info, s.lv)
		if err != nil {
			return err
		}
		groups.Enroll(info)
		plans = append(plans, &plan{info: info, injector: injector})
	}

	// One target context per method, shared across injectors, so node
	// identity and conflict arbitration span the whole pass.
	targets := make(map[*bytecode.Method]*injection.Target)
	targetFor := func(m *bytecode.Method) *injection.Target {
		t, ok := targets[m]
		if !ok {
			t = injection.NewTarget(class.Name, m)
			targets[m] = t
		}
		return t
	}

	// Find pass: resolve every query and register the matched nodes before
	// any injection mutates a sequence.
	for _, p := range plans {
		methods, err := s.selectMethods(class, p.info)
		if err != nil {
			return err
		}
		for _, m := range methods {
			t := targetFor(m)
			nodes, err := injection.ResolveNodes(p.info, t, s.remapper)
			if err != nil {
				return err
			}
			p.targets = append(p.targets, &plannedTarget{target: t, nodes: nodes})
		}
	}

	// Inject pass.
	for _, p := range plans {
		injected := 0
		for _, pt := range p.targets {
			for _, n := range pt.nodes {
				realized, err := p.injector.Inject(pt.target, n)
				if err != nil {
					return err
				}
				if realized {
					injected++
				}
			}
			logger.Debug().
				Str("class", class.Name).
				Str("method", pt.target.Method.String()).
				Str("handler", p.info.Handler.Name).
				Int("nodes", len(pt.nodes)).
				Msg("Applied injector")
		}

		var t *injection.Target
		if len(p.targets) > 0 {
			t = p.targets[0].target
		}
		if err := injection.ValidateCount(p.info, t, injected); err != nil {
			return err
		}
		groups.Record(p.info, injected)
	}

	if errs := groups.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// selectMethods resolves an injector's target patterns against the class's
// methods, consulting the remapper for patterns that match nothing when
// remapping is enabled.
func (s *Session) selectMethods(class *Class, info *injection.Info) ([]*bytecode.Method, error) {
	var selected []*bytecode.Method
	seen := make(map[*bytecode.Method]struct{})

	add := func(pattern jvm.MemberPattern) bool {
		any := false
		for _, m := range class.Methods {
			if !pattern.Matches(m.Ref()) {
				continue
			}
			any = true
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			selected = append(selected, m)
		}
		return any
	}

	for _, raw := range info.TargetPatterns {
		pattern, err := jvm.ParseMemberPattern(raw)
		if err != nil {
			return nil, &injection.InvalidSpecError{
				Origin: injection.Origin{Mixin: info.Mixin, Kind: info.Kind, Handler: info.Handler.Name + info.Handler.Desc, TargetClass: class.Name},
				Err:    fmt.Errorf("target pattern %q: %w", raw, err),
			}
		}
		if add(pattern) || !info.Remap || s.remapper == nil {
			continue
		}
		if mapped, ok := s.remapper(pattern); ok {
			add(mapped)
		}
	}
	return selected, nil
}
