// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package version reports the version of the running weave build.
package version

import (
	"runtime/debug"
	"sync"
)

// Static is the release tag baked into the source. It needs to be manually
// updated on release.
const Static = "v0.3.0"

// Tag returns the version of the running build: the main module version the
// Go toolchain recorded when weave was installed from a release, or Static
// with a "+devel" suffix otherwise.
var Tag = sync.OnceValue(func() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return Static
	}
	v := bi.Main.Version
	if bi.Main.Replace != nil {
		v = bi.Main.Replace.Version
	}
	// Test binaries carry an empty main-module version; builds from a working
	// tree report "(devel)".
	if v == "" || v == "(devel)" {
		return Static + "+devel"
	}
	return v
})
