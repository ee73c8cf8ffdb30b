// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/majordomo-home/majordomo/cmd/majordomo/cli"
	"github.com/majordomo-home/majordomo/lib/service"
)

func resetCommand() *cli.Command {
	var (
		conn      connection
		sessionID string
	)
	return &cli.Command{
		Name:    "reset",
		Summary: "Clear a session's history and archive its transcript",
		Usage:   "majordomo reset --session <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reset", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&sessionID, "session", "", "session id (required)")
			return flagSet
		},
		Run: func([]string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			client := conn.client(service.DefaultCallTimeout)
			err := client.Call(context.Background(), service.ActionReset, map[string]any{
				"agent":      conn.agent,
				"session_id": sessionID,
			}, nil)
			if err != nil {
				return err
			}
			fmt.Printf("session %s reset\n", sessionID)
			return nil
		},
	}
}
