// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui implements the interactive chat terminal UI: a
// bubbletea model with a scrolling transcript, a text input, an
// exposed-entity picker overlay, and markdown rendering of assistant
// replies.
//
// The model talks to the conversation service through the [Backend]
// interface so tests drive it with a fake instead of a live daemon.
// Background log records route through [TUILogHandler] into the
// status bar; writing them to stderr would corrupt the alt screen.
package chatui
