// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// majordomo-chat is the interactive terminal chat for the
// conversation service: a full-screen transcript with markdown
// rendering, a fuzzy entity picker, and session controls, talking to
// the daemon over its Unix socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/majordomo-home/majordomo/lib/chatui"
	"github.com/majordomo-home/majordomo/lib/service"
	"github.com/majordomo-home/majordomo/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath string
		agent      string
		sessionID  string
		logOutput  string
	)

	flagSet := pflag.NewFlagSet("majordomo-chat", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", defaultSocketPath(),
		"conversation service socket (or $MAJORDOMO_SOCKET)")
	flagSet.StringVar(&agent, "agent", "", "agent name (optional when one agent is configured)")
	flagSet.StringVar(&sessionID, "session", "", "resume an existing session")
	flagSet.StringVar(&logOutput, "log-output", "",
		"write JSON log records to this file (in addition to the status bar)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other
	// majordomo binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("majordomo-chat")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	// Background logging goes to the status bar, never stderr, which
	// would corrupt the alt-screen display.
	tuiHandler := chatui.NewTUILogHandler(slog.LevelWarn)
	var logger *slog.Logger
	if logOutput != "" {
		fileHandler, closeFile, err := openFileLogHandler(logOutput)
		if err != nil {
			return fmt.Errorf("cannot open log file %s: %w", logOutput, err)
		}
		defer closeFile()
		logger = slog.New(fanoutHandler{tuiHandler, fileHandler})
	} else {
		logger = slog.New(tuiHandler)
	}

	// Turn calls can legitimately run minutes; the per-call timeout
	// covers the slowest action the backend issues.
	backend := &socketBackend{
		client: service.NewClient(socketPath, service.TurnCallTimeout),
		agent:  agent,
		logger: logger,
	}

	// The daemon answers status even when the hub or provider is
	// down; failing here means the socket itself is absent.
	agentName, err := backend.resolveAgentName(context.Background())
	if err != nil {
		return fmt.Errorf("connecting to conversation service at %s: %w", socketPath, err)
	}

	model := chatui.NewModel(backend, agentName, sessionID, chatui.DefaultTheme)
	program := tea.NewProgram(model, tea.WithAltScreen())
	tuiHandler.SetProgram(program)

	_, err = program.Run()
	return err
}

func defaultSocketPath() string {
	if path := os.Getenv("MAJORDOMO_SOCKET"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "majordomo", "conversation.sock")
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Majordomo chat — interactive terminal conversation with your home.

Connects to the conversation service socket and opens a full-screen
chat. Enter sends an utterance; ctrl+e opens the exposed-entity
picker; ctrl+r resets the session.

Usage:
  majordomo-chat [flags]

Examples:
  # Chat with the only configured agent
  majordomo-chat

  # Pick an agent and resume a session
  majordomo-chat --agent butler --session 4f3a...

Flags:
%s`, flagSet.FlagUsages())
}

// openFileLogHandler returns a JSON handler writing to the given
// path, plus a cleanup closing the file. The file is created or
// truncated.
func openFileLogHandler(path string) (slog.Handler, func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return handler, func() { file.Close() }, nil
}

// fanoutHandler sends each record to multiple underlying handlers. A
// record is enabled when any sub-handler is enabled for its level.
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
