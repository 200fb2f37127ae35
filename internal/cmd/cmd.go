// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

// Package cmd hosts the subcommands of the weave command line tool.
package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	styleGood = lipgloss.NewStyle()
	styleBad  = lipgloss.NewStyle()
	styleName = lipgloss.NewStyle()
)

func init() {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return
	}
	styleGood = styleGood.Foreground(lipgloss.ANSIColor(2)).Bold(true)
	styleBad = styleBad.Foreground(lipgloss.ANSIColor(1)).Bold(true)
	styleName = styleName.Foreground(lipgloss.ANSIColor(4))
}
