// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mixweave/weave/injection/point"
)

var Points = &cli.Command{
	Name:  "points",
	Usage: "Lists the registered injection point types, including custom namespaced ones",
	Action: func(c *cli.Context) error {
		for _, code := range point.RegisteredCodes() {
			if _, err := fmt.Fprintln(c.App.Writer, styleName.Render(code)); err != nil {
				return err
			}
		}
		return nil
	},
}
