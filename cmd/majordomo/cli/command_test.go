// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "majordomo",
		Subcommands: []*Command{
			{
				Name: "ask",
				Run: func(args []string) error {
					called = "ask"
					return nil
				},
			},
			{
				Name: "sessions",
				Run: func(args []string) error {
					called = "sessions"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"sessions"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "sessions" {
		t.Errorf("dispatched to %q, want %q", called, "sessions")
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath string
	var positional []string

	command := &Command{
		Name: "ask",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ask", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(args []string) error {
			positional = args
			return nil
		},
	}

	if err := command.Execute([]string{"--socket", "/custom.sock", "turn on the light"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socket = %q, want /custom.sock", socketPath)
	}
	if len(positional) != 1 || positional[0] != "turn on the light" {
		t.Errorf("args = %v", positional)
	}
}

func TestCommand_Execute_UnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "majordomo",
		Subcommands: []*Command{
			{Name: "sessions", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"sesions"})
	if err == nil {
		t.Fatal("expected an error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "sessions"`) {
		t.Errorf("expected a suggestion, got: %v", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "ask",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ask", pflag.ContinueOnError)
			flagSet.String("session", "", "session id")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}

	err := command.Execute([]string{"--sesion", "abc"})
	if err == nil {
		t.Fatal("expected an error for unknown flag")
	}
	if !strings.Contains(err.Error(), "--session") {
		t.Errorf("expected a flag suggestion, got: %v", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name: "majordomo",
		Subcommands: []*Command{
			{Name: "ask", Run: func([]string) error { return nil }},
		},
	}

	if err := root.Execute(nil); err == nil {
		t.Fatal("expected an error with no subcommand")
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	root := &Command{
		Name: "majordomo",
		Subcommands: []*Command{
			{Name: "ask", Run: func([]string) error { t.Fatal("run should not fire"); return nil }},
		},
	}
	if err := root.Execute([]string{"--help"}); err != nil {
		t.Fatalf("help should not error: %v", err)
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	root := &Command{
		Name:        "majordomo",
		Description: "Talk to your home from the command line.",
		Subcommands: []*Command{
			{Name: "ask", Summary: "Send one utterance"},
			{Name: "status", Summary: "Show daemon status"},
		},
		Examples: []Example{
			{Description: "Turn on a light", Command: `majordomo ask "turn on the kitchen light"`},
		},
	}

	var out bytes.Buffer
	root.PrintHelp(&out)
	help := out.String()

	for _, want := range []string{
		"Talk to your home",
		"ask",
		"Send one utterance",
		"Turn on a light",
		"majordomo <command> --help",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "entities"},
		{Name: "history"},
		{Name: "reset"},
	}
	if got := suggestCommand("entites", commands); got != "entities" {
		t.Errorf("suggestCommand(entites) = %q", got)
	}
	if got := suggestCommand("zzzzzzzz", commands); got != "" {
		t.Errorf("expected no suggestion for distant input, got %q", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"ask", "", 3},
		{"ask", "ask", 0},
		{"sesions", "sessions", 1},
		{"reste", "reset", 2},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
