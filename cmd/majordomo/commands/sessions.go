// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/majordomo-home/majordomo/cmd/majordomo/cli"
	"github.com/majordomo-home/majordomo/lib/service"
)

func sessionsCommand() *cli.Command {
	var (
		conn   connection
		asJSON bool
	)
	return &cli.Command{
		Name:    "sessions",
		Summary: "List an agent's active sessions",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sessions", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func([]string) error {
			client := conn.client(service.DefaultCallTimeout)
			var sessions []service.SessionReply
			err := client.Call(context.Background(), service.ActionSessions, map[string]any{
				"agent": conn.agent,
			}, &sessions)
			if err != nil {
				return err
			}

			if asJSON {
				return cli.WriteJSON(sessions)
			}
			if len(sessions) == 0 {
				fmt.Println("no active sessions")
				return nil
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "SESSION\tTURNS\tLAST ACTIVITY")
			for _, session := range sessions {
				fmt.Fprintf(writer, "%s\t%d\t%s\n",
					session.ID, session.Turns,
					session.LastActivity.Local().Format(time.RFC3339))
			}
			return writer.Flush()
		},
	}
}
