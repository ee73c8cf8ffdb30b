// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the chat TUI. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Speaker labels.
	UserLabel      lipgloss.Color
	AssistantLabel lipgloss.Color

	// Tool call lines in the transcript.
	ToolText    lipgloss.Color
	ToolErrText lipgloss.Color

	// Failed and exhausted turn notices.
	ErrorText lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	SpinnerColor     lipgloss.Color

	// Entity overlay selection and match highlighting.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color
	MatchForeground    lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("243"),
	UserLabel:          lipgloss.Color("39"),
	AssistantLabel:     lipgloss.Color("114"),
	ToolText:           lipgloss.Color("179"),
	ToolErrText:        lipgloss.Color("167"),
	ErrorText:          lipgloss.Color("203"),
	HeaderForeground:   lipgloss.Color("117"),
	BorderColor:        lipgloss.Color("240"),
	HelpText:           lipgloss.Color("243"),
	SpinnerColor:       lipgloss.Color("205"),
	SelectedBackground: lipgloss.Color("237"),
	SelectedForeground: lipgloss.Color("255"),
	MatchForeground:    lipgloss.Color("215"),
}
