// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mixweave/weave/internal/cmd"
	"github.com/mixweave/weave/internal/log"
	"github.com/mixweave/weave/internal/version"
)

func main() {
	ctx := log.Context(context.Background())

	app := &cli.App{
		Name:    "weave",
		Usage:   "Developer tooling for the weave bytecode injection engine",
		Version: version.Tag(),
		Commands: []*cli.Command{
			cmd.Validate,
			cmd.Points,
			cmd.Diff,
			cmd.Version,
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("Command failed")
	}
}
