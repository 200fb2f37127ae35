// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mixweave/weave/injection"
	"github.com/mixweave/weave/injection/point"
)

// Load reads and decodes the named mixin configuration file. When validate is
// set, the document is schema-checked before decoding.
func Load(filename string, validate bool) (*Document, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", filename, err)
	}
	defer file.Close()

	doc, err := Read(file, validate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if doc.Name == "" {
		doc.Name = filename
	}
	return doc, nil
}

// Read decodes a mixin configuration document from the reader.
func Read(reader io.Reader, validate bool) (*Document, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if validate {
		if err := Validate(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema validation: %w", err)
		}
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return &doc, nil
}

// InjectionInfos converts every mixin declaration into the engine's typed
// records, ready to be handed to a transformation session.
func (d *Document) InjectionInfos() ([]*injection.Info, error) {
	var infos []*injection.Info
	for _, m := range d.Mixins {
		converted, err := m.InjectionInfos()
		if err != nil {
			return nil, fmt.Errorf("mixin %s: %w", m.Name, err)
		}
		infos = append(infos, converted...)
	}
	return infos, nil
}

func (m *Mixin) InjectionInfos() ([]*injection.Info, error) {
	infos := make([]*injection.Info, 0, len(m.Injectors))
	for _, inj := range m.Injectors {
		info, err := inj.toInfo(m)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", inj.Method, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (inj *Injector) toInfo(m *Mixin) (*injection.Info, error) {
	info := injection.NewInfo(injection.Kind(inj.Kind))
	info.Mixin = m.Name

	paren := strings.IndexByte(inj.Method, '(')
	if paren <= 0 {
		return nil, fmt.Errorf("handler reference %q is not of the form name(desc)", inj.Method)
	}
	info.Handler.Owner = strings.ReplaceAll(m.Name, ".", "/")
	info.Handler.Name = inj.Method[:paren]
	info.Handler.Desc = inj.Method[paren:]
	info.HandlerStatic = inj.Static

	info.TargetPatterns = inj.Target
	for _, at := range inj.At {
		spec, err := at.toSpec()
		if err != nil {
			return nil, err
		}
		info.At = append(info.At, spec)
	}
	for _, s := range inj.Slices {
		slice, err := s.toSlice()
		if err != nil {
			return nil, err
		}
		if _, dup := info.Slices[slice.ID]; dup {
			return nil, fmt.Errorf("duplicate slice id %q", slice.ID)
		}
		info.Slices[slice.ID] = slice
	}

	info.Require = inj.Require
	if inj.Expect != nil {
		info.Expect = *inj.Expect
	}
	if inj.Allow != nil {
		info.Allow = *inj.Allow
	}
	info.Group = inj.Group
	info.GroupRequire = inj.GroupRequire
	info.Remap = inj.Remap
	info.Constraints = inj.Constraints
	info.Cancellable = inj.Cancellable
	info.Capture = injection.LocalCapture(inj.Capture)
	if inj.ArgIndex != nil {
		info.ArgIndex = *inj.ArgIndex
	}
	if v := inj.Variable; v != nil {
		if v.Index != nil {
			info.VarIndex = *v.Index
		}
		if v.Ordinal != nil {
			info.VarOrdinal = *v.Ordinal
		}
		info.VarName = v.Name
	}
	info.CaptureTargetArgs = inj.CaptureArgs
	return info, nil
}

func (a *At) toSpec() (point.Spec, error) {
	spec := point.NewSpec(a.Value)
	spec.Target = a.Target
	spec.SliceID = a.Slice
	spec.By = a.By
	spec.ID = a.ID
	spec.Args = a.Args
	if a.Ordinal != nil {
		spec.Ordinal = *a.Ordinal
	}
	if a.Opcode != nil {
		spec.Opcode = *a.Opcode
	}
	if a.Shift != "" {
		mode, err := point.ParseShiftMode(a.Shift)
		if err != nil {
			return point.Spec{}, err
		}
		spec.Shift = mode
	}
	if a.Violation != "" {
		policy, err := point.ParseShiftPolicy(a.Violation)
		if err != nil {
			return point.Spec{}, err
		}
		spec.Policy = policy
	}
	return spec, nil
}

// toSlice builds the bounded range, compiling the boundary queries eagerly so
// malformed boundaries surface at configuration time.
func (s *Slice) toSlice() (*point.Slice, error) {
	slice := &point.Slice{ID: s.ID}
	var err error
	if slice.From, err = boundaryPoint(s.From); err != nil {
		return nil, fmt.Errorf("slice %q from: %w", s.ID, err)
	}
	if slice.To, err = boundaryPoint(s.To); err != nil {
		return nil, fmt.Errorf("slice %q to: %w", s.ID, err)
	}
	return slice, nil
}

func boundaryPoint(a *At) (point.Point, error) {
	if a == nil {
		return nil, nil
	}
	spec, err := a.toSpec()
	if err != nil {
		return nil, err
	}
	p, _, err := point.Parse(spec)
	if err != nil {
		return nil, err
	}
	by, err := spec.ShiftAmount()
	if err != nil {
		return nil, err
	}
	if by != 0 {
		p = point.ShiftedBy(p, by)
	}
	return p, nil
}
