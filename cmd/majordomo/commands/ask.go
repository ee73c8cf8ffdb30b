// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/majordomo-home/majordomo/cmd/majordomo/cli"
	"github.com/majordomo-home/majordomo/lib/service"
)

func askCommand() *cli.Command {
	var (
		conn      connection
		sessionID string
		showTools bool
		asJSON    bool
	)
	return &cli.Command{
		Name:    "ask",
		Summary: "Send one utterance and print the reply",
		Usage:   "majordomo ask [flags] <text>",
		Examples: []cli.Example{
			{Description: "One-shot question", Command: `majordomo ask "is the front door locked?"`},
			{Description: "Continue a session", Command: `majordomo ask --session 4f3a... "and the back door?"`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ask", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.StringVar(&sessionID, "session", "", "session id (a new session is minted when empty)")
			flagSet.BoolVar(&showTools, "show-tools", false, "print the tool calls the turn made")
			flagSet.BoolVar(&asJSON, "json", false, "output the full turn result as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("ask requires the utterance text")
			}
			text := strings.Join(args, " ")

			client := conn.client(service.TurnCallTimeout)
			var reply service.TurnReply
			err := client.Call(context.Background(), service.ActionTurn, map[string]any{
				"agent":      conn.agent,
				"session_id": sessionID,
				"text":       text,
			}, &reply)
			if err != nil {
				return err
			}

			if asJSON {
				return cli.WriteJSON(reply)
			}

			if showTools {
				for _, call := range reply.ToolCalls {
					outcome := "ok"
					if call.IsError {
						outcome = "error"
					}
					fmt.Fprintf(os.Stderr, "tool %s (%s): %s\n", call.Name, outcome, call.Output)
				}
			}
			fmt.Println(reply.Text)
			if reply.State != "done" {
				// The reply text already explains the failure or the
				// exhausted tool budget.
				return &cli.ExitError{Code: 1}
			}
			if sessionID == "" {
				fmt.Fprintf(os.Stderr, "session: %s\n", reply.SessionID)
			}
			return nil
		},
	}
}
