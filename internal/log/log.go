// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package log centralizes configuration of the process-wide zerolog logger.
// Pipeline code obtains loggers from the context via zerolog.Ctx; this package
// only decides what the default context logger looks like.
package log

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const levelEnvVar = "WEAVE_LOG_LEVEL"

var setup sync.Once

// Context returns a copy of ctx carrying the default weave logger. The logger
// is built once per process, honoring the WEAVE_LOG_LEVEL environment variable
// (default "info") and emitting human-readable output when stderr is a
// terminal.
func Context(ctx context.Context) context.Context {
	setup.Do(configure)
	logger := zerolog.New(output()).With().Timestamp().Logger()
	return logger.WithContext(ctx)
}

func configure() {
	level := zerolog.InfoLevel
	if raw := os.Getenv(levelEnvVar); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}

func output() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return os.Stderr
}
