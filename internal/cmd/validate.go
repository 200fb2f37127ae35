// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mixweave/weave/config"
)

var Validate = &cli.Command{
	Name:      "validate",
	Usage:     "Validates mixin configuration files against the schema and reports the injectors they declare",
	ArgsUsage: "<file...>",
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return cli.ShowSubcommandHelp(c)
		}

		failed := false
		for _, filename := range c.Args().Slice() {
			doc, err := config.Load(filename, true)
			if err != nil {
				failed = true
				fmt.Fprintf(c.App.Writer, "%s %s: %v\n", styleBad.Render("FAIL"), styleName.Render(filename), err)
				continue
			}
			infos, err := doc.InjectionInfos()
			if err != nil {
				failed = true
				fmt.Fprintf(c.App.Writer, "%s %s: %v\n", styleBad.Render("FAIL"), styleName.Render(filename), err)
				continue
			}
			fmt.Fprintf(c.App.Writer, "%s %s: %d mixin(s), %d injector(s)\n",
				styleGood.Render("OK"), styleName.Render(filename), len(doc.Mixins), len(infos))
		}
		if failed {
			return cli.Exit("one or more configuration files are invalid", 1)
		}
		return nil
	},
}
