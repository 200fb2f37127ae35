// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package config reads weave mixin configuration documents. Documents are
// YAML (JSON being a YAML subset), validated against an embedded JSON schema
// and decoded into the typed records the injection engine consumes.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mixweave/weave/injection"
)

// WeaveMixinsYML is the conventional name of a mixin configuration file.
const WeaveMixinsYML = "weave.mixins.yml"

// Document is the root of a mixin configuration file.
type Document struct {
	// Name identifies this configuration in diagnostics.
	Name string `yaml:"name"`
	// Mixins lists the mixin declarations.
	Mixins []*Mixin `yaml:"mixins"`
}

// Mixin declares one mixin class and the injectors it contributes.
type Mixin struct {
	// Name is the mixin class, in internal-name or dotted form.
	Name string `yaml:"name"`
	// Targets are the internal names of the classes this mixin applies to.
	Targets []string `yaml:"targets"`
	// Injectors lists the injector declarations of this mixin.
	Injectors []*Injector `yaml:"injectors"`
}

// Injector declares one handler and the queries selecting where it applies.
type Injector struct {
	Kind    Kind     `yaml:"kind"`
	Method  string   `yaml:"method"`
	Static  bool     `yaml:"static"`
	Target  []string `yaml:"target"`
	At      []*At    `yaml:"at"`
	Slices  []*Slice `yaml:"slice"`
	Require int      `yaml:"require"`
	Expect  *int     `yaml:"expect"`
	Allow   *int     `yaml:"allow"`

	Group        string `yaml:"group"`
	GroupRequire int    `yaml:"group-require"`

	Remap       bool      `yaml:"remap"`
	Constraints string    `yaml:"constraints"`
	Cancellable bool      `yaml:"cancellable"`
	Capture     Capture   `yaml:"capture"`
	ArgIndex    *int      `yaml:"index"`
	Variable    *Variable `yaml:"variable"`
	CaptureArgs bool      `yaml:"capture-target-args"`
}

// Variable carries the local-variable discriminators of a variable modifier.
type Variable struct {
	Index   *int   `yaml:"index"`
	Ordinal *int   `yaml:"ordinal"`
	Name    string `yaml:"name"`
}

// At is one injection point query. The scalar shorthand "TYPE[:SELECTOR]" is
// accepted in place of the full mapping form.
type At struct {
	Value     string            `yaml:"value"`
	Target    string            `yaml:"target"`
	Slice     string            `yaml:"slice"`
	Shift     string            `yaml:"shift"`
	By        int               `yaml:"by"`
	Violation string            `yaml:"violation"`
	Ordinal   *int              `yaml:"ordinal"`
	Opcode    *int              `yaml:"opcode"`
	ID        string            `yaml:"id"`
	Args      map[string]string `yaml:"args"`
}

var _ yaml.Unmarshaler = (*At)(nil)

func (a *At) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var value string
		if err := node.Decode(&value); err != nil {
			return err
		}
		*a = At{Value: value}
		return nil
	}

	type at At // Dodges infinite UnmarshalYAML recursion.
	var full at
	if err := node.Decode(&full); err != nil {
		return err
	}
	*a = At(full)
	if a.Value == "" {
		return fmt.Errorf("at entry on line %d has no value", node.Line)
	}
	return nil
}

// Slice names a bounded search range referenced by At queries.
type Slice struct {
	ID   string `yaml:"id"`
	From *At    `yaml:"from"`
	To   *At    `yaml:"to"`
}

// Kind is the injector family selector.
type Kind injection.Kind

var _ yaml.Unmarshaler = (*Kind)(nil)

func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}

	switch strings.ReplaceAll(name, "-", "_") {
	case "inject":
		*k = Kind(injection.KindCallback)
	case "redirect":
		*k = Kind(injection.KindRedirect)
	case "modify_arg":
		*k = Kind(injection.KindModifyArg)
	case "modify_constant":
		*k = Kind(injection.KindModifyConstant)
	case "modify_variable":
		*k = Kind(injection.KindModifyVariable)
	default:
		return fmt.Errorf("invalid injector kind: %q", name)
	}
	return nil
}

// Capture is the local-capture behavior of a callback injector.
type Capture injection.LocalCapture

var _ yaml.Unmarshaler = (*Capture)(nil)

func (c *Capture) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}

	switch name {
	case "", "none":
		*c = Capture(injection.CaptureNone)
	case "hard":
		*c = Capture(injection.CaptureFailHard)
	case "soft":
		*c = Capture(injection.CaptureFailSoft)
	case "print":
		*c = Capture(injection.CapturePrint)
	default:
		return fmt.Errorf("invalid capture mode: %q", name)
	}
	return nil
}
