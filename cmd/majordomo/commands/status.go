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

func statusCommand() *cli.Command {
	var (
		conn   connection
		asJSON bool
	)
	return &cli.Command{
		Name:    "status",
		Summary: "Show daemon and per-agent status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func([]string) error {
			client := conn.client(service.DefaultCallTimeout)
			var status service.StatusReply
			err := client.Call(context.Background(), service.ActionStatus, nil, &status)
			if err != nil {
				return err
			}

			if asJSON {
				return cli.WriteJSON(status)
			}

			uptime := time.Duration(status.UptimeSeconds * float64(time.Second)).Round(time.Second)
			fmt.Printf("majordomo-conversation-service %s, up %s\n\n", status.Version, uptime)

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "AGENT\tMODEL\tSESSIONS\tTURNS\tMODEL CALLS\tTOOL CALLS\tTOKENS IN/OUT")
			for _, agent := range status.Agents {
				fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%d\t%d\t%d/%d\n",
					agent.Name, agent.Model, agent.ActiveSessions,
					agent.Turns, agent.ModelCalls, agent.ToolCalls,
					agent.InputTokens, agent.OutputTokens)
			}
			return writer.Flush()
		},
	}
}
