// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg delivers a slog record to the chat model for display
// in the status bar.
type logRecordMsg struct {
	// Summary is the one-line "message (key=value, ...)" text.
	Summary string

	// Level is the slog level for styling (warn vs error).
	Level slog.Level
}

// logRecordFadeMsg clears the log message from the status bar and
// restores the help line.
type logRecordFadeMsg struct{}

// logRecordFadeDelay is how long log messages stay visible in the
// status bar.
const logRecordFadeDelay = 5 * time.Second

// TUILogHandler is a slog.Handler that routes log records into a
// bubbletea program as messages. Records below the configured level
// are dropped; the rest are formatted and delivered via
// program.Send.
//
// Create the handler before the program, then call SetProgram once
// the tea.Program exists. Records arriving before SetProgram are
// dropped. Handlers derived via WithAttrs/WithGroup share the same
// program pointer, so one SetProgram call covers all of them.
type TUILogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	groups  []string
}

// NewTUILogHandler creates a handler that delivers records at or
// above level to the program registered with SetProgram.
func NewTUILogHandler(level slog.Level) *TUILogHandler {
	return &TUILogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the bubbletea program that receives log messages.
// Safe to call from any goroutine.
func (handler *TUILogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

// Enabled reports whether the handler wants records at this level.
func (handler *TUILogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

// Handle formats the record and sends it to the bubbletea program.
func (handler *TUILogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}

	var attrParts []string
	for _, attr := range handler.attrs {
		attrParts = append(attrParts, fmt.Sprintf("%s=%s", handler.qualify(attr.Key), attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		attrParts = append(attrParts, fmt.Sprintf("%s=%s", handler.qualify(attr.Key), attr.Value))
		return true
	})

	summary := record.Message
	if len(attrParts) > 0 {
		summary += " (" + strings.Join(attrParts, ", ") + ")"
	}

	program.Send(logRecordMsg{
		Summary: summary,
		Level:   record.Level,
	})
	return nil
}

// qualify prepends the open group path to an attribute key.
func (handler *TUILogHandler) qualify(key string) string {
	if len(handler.groups) == 0 {
		return key
	}
	return strings.Join(handler.groups, ".") + "." + key
}

// WithAttrs returns a derived handler carrying the additional attrs.
func (handler *TUILogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *handler
	derived.attrs = append(append([]slog.Attr{}, handler.attrs...), attrs...)
	return &derived
}

// WithGroup returns a derived handler with the group opened.
func (handler *TUILogHandler) WithGroup(name string) slog.Handler {
	derived := *handler
	derived.groups = append(append([]string{}, handler.groups...), name)
	return &derived
}
