// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/majordomo-home/majordomo/cmd/majordomo/cli"
	"github.com/majordomo-home/majordomo/lib/service"
)

func entitiesCommand() *cli.Command {
	var (
		conn   connection
		asJSON bool
	)
	return &cli.Command{
		Name:    "entities",
		Summary: "List the entities exposed to the assistant",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("entities", pflag.ContinueOnError)
			conn.bind(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func([]string) error {
			client := conn.client(service.DefaultCallTimeout)
			var entities []service.EntityReply
			err := client.Call(context.Background(), service.ActionEntities, nil, &entities)
			if err != nil {
				return err
			}

			if asJSON {
				return cli.WriteJSON(entities)
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "ENTITY\tNAME\tAREA\tSTATE")
			for _, entity := range entities {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
					entity.ID, entity.Name, entity.Area, entity.State)
			}
			return writer.Flush()
		},
	}
}
