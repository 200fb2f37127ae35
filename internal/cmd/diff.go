// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mixweave/weave/internal/diag"
)

var Diff = &cli.Command{
	Name:      "diff",
	Usage:     "Renders a diff between two bytecode dumps, such as the before/after exports of a failed transformation",
	ArgsUsage: "<before> <after>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.ShowSubcommandHelp(c)
		}

		before, err := os.ReadFile(c.Args().Get(0))
		if err != nil {
			return fmt.Errorf("read %s: %w", c.Args().Get(0), err)
		}
		after, err := os.ReadFile(c.Args().Get(1))
		if err != nil {
			return fmt.Errorf("read %s: %w", c.Args().Get(1), err)
		}

		_, err = io.WriteString(c.App.Writer, diag.RenderDiff(string(before), string(after)))
		return err
	},
}
