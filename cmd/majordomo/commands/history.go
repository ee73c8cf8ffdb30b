// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/majordomo-home/majordomo/cmd/majordomo/cli"
	"github.com/majordomo-home/majordomo/lib/service"
)

func historyCommand() *cli.Command {
	var (
		conn      connection
		sessionID string
		asJSON    bool
	)
	return &cli.Command{
		Name:    "history",
		Summary: "Print a session's stored messages",
		Usage:   "majordomo history --session <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&sessionID, "session", "", "session id (required)")
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func([]string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			client := conn.client(service.DefaultCallTimeout)
			var reply service.HistoryReply
			err := client.Call(context.Background(), service.ActionHistory, map[string]any{
				"agent":      conn.agent,
				"session_id": sessionID,
			}, &reply)
			if err != nil {
				return err
			}

			if asJSON {
				return cli.WriteJSON(reply)
			}

			for _, message := range reply.Messages {
				if len(message.Tools) > 0 {
					fmt.Printf("%s: [tools: %s]\n", message.Role, strings.Join(message.Tools, ", "))
				}
				for _, result := range message.Results {
					fmt.Printf("%s: [result] %s\n", message.Role, result)
				}
				if message.Text != "" {
					fmt.Printf("%s: %s\n", message.Role, message.Text)
				}
			}
			return nil
		},
	}
}
