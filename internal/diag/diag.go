// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package diag captures textual bytecode dumps of methods before and after
// transformation, and renders or exports diffs between them. Exports back a
// failed class's state for offline inspection.
package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mixweave/weave/bytecode"
)

// Recorder accumulates pre/post dumps for the methods of one class.
type Recorder struct {
	class  string
	order  []string
	before map[string]string
	after  map[string]string
}

func NewRecorder(class string) *Recorder {
	return &Recorder{
		class:  class,
		before: make(map[string]string),
		after:  make(map[string]string),
	}
}

// Before snapshots the method's current state as its pre-transformation dump.
func (r *Recorder) Before(m *bytecode.Method) {
	key := m.Name + m.Desc
	if _, dup := r.before[key]; !dup {
		r.order = append(r.order, key)
	}
	r.before[key] = bytecode.Sprint(m)
}

// After snapshots the method's current state as its post-transformation dump.
func (r *Recorder) After(m *bytecode.Method) {
	key := m.Name + m.Desc
	if _, seen := r.before[key]; !seen {
		r.order = append(r.order, key)
	}
	r.after[key] = bytecode.Sprint(m)
}

// Changed reports whether any recorded method's dump differs pre/post.
func (r *Recorder) Changed() bool {
	for _, key := range r.order {
		if after, ok := r.after[key]; ok && after != r.before[key] {
			return true
		}
	}
	return false
}

// Diff writes a colorized per-method diff of all recorded methods, skipping
// methods whose dumps are unchanged.
func (r *Recorder) Diff(writer io.Writer) error {
	for _, key := range r.order {
		before := r.before[key]
		after, ok := r.after[key]
		if !ok || after == before {
			continue
		}
		if _, err := fmt.Fprintf(writer, "--- %s.%s\n", r.class, key); err != nil {
			return err
		}
		if _, err := io.WriteString(writer, RenderDiff(before, after)); err != nil {
			return err
		}
	}
	return nil
}

// Export writes the before/after dumps plus the rendered diff into dir and
// returns the directory holding them. Used for the fallback path, where the
// original class bytes are kept and the attempted transformation is dumped
// for offline inspection.
func (r *Recorder) Export(dir string) (string, error) {
	base := filepath.Join(dir, strings.ReplaceAll(r.class, "/", "."))
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("creating dump directory: %w", err)
	}

	write := func(name string, dumps map[string]string) error {
		var sb strings.Builder
		for _, key := range r.order {
			dump, ok := dumps[key]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "// %s.%s\n%s\n", r.class, key, dump)
		}
		return os.WriteFile(filepath.Join(base, name), []byte(sb.String()), 0o644)
	}

	if err := write("before.txt", r.before); err != nil {
		return "", err
	}
	if err := write("after.txt", r.after); err != nil {
		return "", err
	}

	var diff strings.Builder
	if err := r.Diff(&diff); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(base, "diff.txt"), []byte(diff.String()), 0o644); err != nil {
		return "", err
	}
	return base, nil
}

// RenderDiff produces a human-oriented colorized diff of two dumps.
func RenderDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	fragments := dmp.DiffMain(before, after, false)
	fragments = dmp.DiffCleanupEfficiency(fragments)
	fragments = dmp.DiffCleanupSemantic(fragments)
	return dmp.DiffPrettyText(fragments)
}
