// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import "strings"

// DefaultContextWindow is assumed for models not in the registry.
// Conservative: smaller than any current Bedrock conversation model,
// so history trimming errs toward trimming too much rather than
// overflowing the window.
const DefaultContextWindow = 128000

// modelContextWindows maps Bedrock model identifier prefixes to
// context window sizes in tokens. Matching is by prefix so that
// versioned identifiers (":0", ":1") resolve without an entry per
// revision.
var modelContextWindows = map[string]int{
	"anthropic.claude-3-5-haiku":  200000,
	"anthropic.claude-3-5-sonnet": 200000,
	"anthropic.claude-3-7-sonnet": 200000,
	"anthropic.claude-haiku-4-5":  200000,
	"anthropic.claude-opus-4":     200000,
	"anthropic.claude-sonnet-4":   200000,
	"amazon.nova-lite":            300000,
	"amazon.nova-micro":           128000,
	"amazon.nova-premier":         1000000,
	"amazon.nova-pro":             300000,
	"meta.llama3-1":               128000,
	"meta.llama3-2":               128000,
	"meta.llama3-3":               128000,
	"mistral.mistral-large":       128000,
}

// regionPrefixes are cross-region inference profile prefixes. An
// inference profile identifier is the model identifier with one of
// these prepended, e.g. "us.anthropic.claude-sonnet-4-20250514-v1:0".
var regionPrefixes = []string{"us.", "eu.", "apac.", "us-gov."}

// ContextWindowForModel returns the context window size in tokens for
// a Bedrock model identifier, falling back to [DefaultContextWindow]
// for unknown models.
func ContextWindowForModel(model string) int {
	for _, prefix := range regionPrefixes {
		if strings.HasPrefix(model, prefix) {
			model = strings.TrimPrefix(model, prefix)
			break
		}
	}
	for prefix, window := range modelContextWindows {
		if strings.HasPrefix(model, prefix) {
			return window
		}
	}
	return DefaultContextWindow
}
