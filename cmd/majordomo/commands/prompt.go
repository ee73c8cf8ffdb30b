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

func promptCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "prompt",
		Summary: "Print the agent's current system prompt",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("prompt", pflag.ContinueOnError)
			conn.bind(flagSet)
			return flagSet
		},
		Run: func([]string) error {
			client := conn.client(service.DefaultCallTimeout)
			var reply service.PromptReply
			err := client.Call(context.Background(), service.ActionPrompt, map[string]any{
				"agent": conn.agent,
			}, &reply)
			if err != nil {
				return err
			}
			fmt.Println(reply.Prompt)
			return nil
		},
	}
}
