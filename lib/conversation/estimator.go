// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"sync"

	"github.com/majordomo-home/majordomo/lib/llm"
)

// initialCharactersPerToken seeds the estimator before the first
// calibration. Four characters per token overestimates tokens for
// English prose, which errs toward trimming early rather than
// overflowing the model's context window.
const initialCharactersPerToken = 4.0

// calibrationWeight is the exponential-moving-average weight given to
// each new observation after the first.
const calibrationWeight = 0.3

// CharEstimator estimates token counts from character counts. The
// ratio calibrates from the input token usage the model reports: the
// first observation replaces the seed outright (one real data point
// beats any default), later observations blend in via EMA so turns
// with unusual content profiles do not whipsaw the ratio.
//
// One estimator serves all sessions of an agent; it is safe for
// concurrent use.
type CharEstimator struct {
	mutex        sync.Mutex
	ratio        float64
	observations int
}

// NewCharEstimator returns an estimator seeded at
// [initialCharactersPerToken].
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{ratio: initialCharactersPerToken}
}

// EstimateTokens returns the estimated token count for messages,
// rounded up.
func (estimator *CharEstimator) EstimateTokens(messages []llm.Message) int {
	estimator.mutex.Lock()
	ratio := estimator.ratio
	estimator.mutex.Unlock()
	return int(float64(charCount(messages))/ratio) + 1
}

// RecordUsage calibrates the ratio from the input token count the
// model reported for messages. messages must be the slice actually
// sent, including the system message; the reported count also covers
// tool definitions and framing, which the ratio absorbs.
func (estimator *CharEstimator) RecordUsage(messages []llm.Message, inputTokens int64) {
	if inputTokens <= 0 {
		return
	}
	characters := charCount(messages)
	if characters == 0 {
		return
	}
	observed := float64(characters) / float64(inputTokens)

	estimator.mutex.Lock()
	defer estimator.mutex.Unlock()
	estimator.observations++
	if estimator.observations == 1 {
		estimator.ratio = observed
		return
	}
	estimator.ratio = calibrationWeight*observed + (1-calibrationWeight)*estimator.ratio
}

// Ratio returns the current characters-per-token calibration.
func (estimator *CharEstimator) Ratio() float64 {
	estimator.mutex.Lock()
	defer estimator.mutex.Unlock()
	return estimator.ratio
}

// messageFramingChars approximates the JSON framing around one
// message on the wire (role marker, block structure).
const messageFramingChars = 20

func messageCharCount(message llm.Message) int {
	count := messageFramingChars
	for _, block := range message.Content {
		switch block.Type {
		case llm.ContentText:
			count += len(block.Text)
		case llm.ContentToolUse:
			if block.ToolUse != nil {
				count += len(block.ToolUse.Name) + len(block.ToolUse.Input)
			}
		case llm.ContentToolResult:
			if block.ToolResult != nil {
				count += len(block.ToolResult.ToolUseID) + len(block.ToolResult.Content)
			}
		}
	}
	return count
}

func charCount(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += messageCharCount(messages[i])
	}
	return total
}
