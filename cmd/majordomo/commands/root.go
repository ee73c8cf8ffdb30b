// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the majordomo CLI command tree. Each
// command talks to the conversation daemon over its Unix socket.
package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/majordomo-home/majordomo/cmd/majordomo/cli"
	"github.com/majordomo-home/majordomo/lib/service"
	"github.com/majordomo-home/majordomo/lib/version"
)

// Root returns the majordomo command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:        "majordomo",
		Description: "Talk to your home assistant from the command line.",
		Subcommands: []*cli.Command{
			askCommand(),
			historyCommand(),
			resetCommand(),
			sessionsCommand(),
			entitiesCommand(),
			promptCommand(),
			statusCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func([]string) error {
			version.Print("majordomo")
			return nil
		},
	}
}

// connection carries the flags shared by every daemon-facing command.
type connection struct {
	socketPath string
	agent      string
}

// bind registers the shared flags on the command's flag set.
func (conn *connection) bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&conn.socketPath, "socket", defaultSocketPath(),
		"conversation service socket (or $MAJORDOMO_SOCKET)")
	flagSet.StringVar(&conn.agent, "agent", "",
		"agent name (optional when one agent is configured)")
}

// client returns a socket client with the given per-call timeout.
func (conn *connection) client(callTimeout time.Duration) *service.Client {
	return service.NewClient(conn.socketPath, callTimeout)
}

// defaultSocketPath mirrors the daemon's default socket location.
func defaultSocketPath() string {
	if path := os.Getenv("MAJORDOMO_SOCKET"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "majordomo", "conversation.sock")
}
