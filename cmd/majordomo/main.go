// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// majordomo is the command-line client for the conversation service.
package main

import (
	"fmt"
	"os"

	"github.com/majordomo-home/majordomo/cmd/majordomo/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an ExitError
		// with the desired code; no redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
