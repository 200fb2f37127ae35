// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package node tracks the evolving identity of target instructions across
// multiple injector applications within one method transformation pass.
package node

import (
	"github.com/mixweave/weave/bytecode"
)

// Node wraps one physical target instruction. Its original target is the
// instruction identity at discovery time and never changes; the current
// target follows replacements and is cleared by removal. Decorations are an
// open key/value store injectors use to coordinate with each other.
type Node struct {
	original *bytecode.Instruction
	current  *bytecode.Instruction

	decorations map[string]any
}

// Original returns the instruction this node was created for.
func (n *Node) Original() *bytecode.Instruction {
	return n.original
}

// Current returns the instruction currently standing in for the original, or
// nil when the target has been removed.
func (n *Node) Current() *bytecode.Instruction {
	return n.current
}

// IsReplaced reports whether the target has been replaced since discovery.
func (n *Node) IsReplaced() bool {
	return n.current != nil && n.current != n.original
}

// IsRemoved reports whether the target has been removed outright.
func (n *Node) IsRemoved() bool {
	return n.current == nil
}

// Matches reports whether in is this node's original or current target.
func (n *Node) Matches(in *bytecode.Instruction) bool {
	return in != nil && (n.original == in || n.current == in)
}

// Decorate stores an arbitrary per-node fact under key.
func (n *Node) Decorate(key string, value any) {
	if n.decorations == nil {
		n.decorations = make(map[string]any)
	}
	n.decorations[key] = value
}

// HasDecoration reports whether key has been set on this node.
func (n *Node) HasDecoration(key string) bool {
	_, ok := n.decorations[key]
	return ok
}

// Decoration returns the value stored under key, or nil.
func (n *Node) Decoration(key string) any {
	return n.decorations[key]
}

// Registry is the per-method ledger of injection nodes. Lookups are
// permissive: a node is found by either its original or its current
// identity, so injectors running later still locate nodes whose targets
// earlier injectors rewrote.
type Registry struct {
	nodes []*Node
}

// Get returns the node matching in, or nil.
func (r *Registry) Get(in *bytecode.Instruction) *Node {
	for _, n := range r.nodes {
		if n.Matches(in) {
			return n
		}
	}
	return nil
}

// Add returns the node registered for in, creating one when none exists.
// There is at most one node per physical instruction no matter how many
// injectors reference it. Explicitly re-adding a removed node's instruction
// revives the node with in as its current target.
func (r *Registry) Add(in *bytecode.Instruction) *Node {
	if n := r.Get(in); n != nil {
		if n.IsRemoved() {
			n.current = in
		}
		return n
	}
	n := &Node{original: in, current: in}
	r.nodes = append(r.nodes, n)
	return n
}

// Replace updates the current target of the node matching oldIn. It is a
// no-op when no node matches. A removed node stays removed; only a fresh Add
// can produce a live node for its instruction again.
func (r *Registry) Replace(oldIn, newIn *bytecode.Instruction) {
	if n := r.Get(oldIn); n != nil && !n.IsRemoved() {
		n.current = newIn
	}
}

// Remove clears the current target of the node matching in. It is a no-op
// when no node matches.
func (r *Registry) Remove(in *bytecode.Instruction) {
	if n := r.Get(in); n != nil {
		n.current = nil
	}
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}
