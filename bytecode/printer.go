// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package bytecode

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a javap-flavored textual rendering of the method to w. The
// output is line oriented so that dumps taken before and after transformation
// diff cleanly.
func Fprint(w io.Writer, m *Method) error {
	if _, err := fmt.Fprintf(w, "%s {\n", m); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  // max_stack=%d max_locals=%d\n", m.MaxStack, m.MaxLocals); err != nil {
		return err
	}
	for i := 0; i < m.Instructions.Len(); i++ {
		in := m.Instructions.At(i)
		var err error
		if in.Kind == KindLabel {
			_, err = fmt.Fprintf(w, "  %s\n", in)
		} else {
			_, err = fmt.Fprintf(w, "  %4d: %s\n", i, in)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// Sprint renders the method as a string; see Fprint.
func Sprint(m *Method) string {
	var sb strings.Builder
	_ = Fprint(&sb, m)
	return sb.String()
}
