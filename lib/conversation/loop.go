// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/majordomo-home/majordomo/lib/llm"
)

// exhaustedText is the answer when the iteration budget is spent
// before the model settles.
const exhaustedText = "I stopped before finishing: this request needed " +
	"more tool calls than I am allowed in one turn. Please try again or " +
	"split the request into smaller steps."

// loopOutcome is the tool call loop's terminal state. err is non-nil
// only for cancellation; every fault becomes state plus text.
type loopOutcome struct {
	state       TurnState
	text        string
	newMessages []llm.Message
	toolCalls   []ToolCallRecord
	usage       llm.Usage
	modelCalls  int
	err         error
}

// runLoop drives the model/tool iteration for one turn. seed is the
// trimmed working history ending in the new user message; every
// message the loop adds (assistant replies, tool result messages) is
// returned in newMessages for the caller to commit.
//
// Each round invokes the model, then either finishes (no tool use) or
// executes every requested tool in response order and feeds the
// results back. Tool failures of any kind become error results the
// model can react to. After executing a round, the loop stops
// exhausted if the invocation budget is spent, so the model is called
// at most MaxToolCallIterations times.
func (agent *Agent) runLoop(ctx context.Context, logger *slog.Logger, systemPrompt string, seed []llm.Message) loopOutcome {
	messages := slices.Clone(seed)
	baseLength := len(messages)
	var outcome loopOutcome

	finish := func(state TurnState, text string) loopOutcome {
		outcome.state = state
		outcome.text = text
		outcome.newMessages = messages[baseLength:]
		return outcome
	}

	for {
		response, err := agent.provider.Complete(ctx, llm.Request{
			Model:       agent.config.Model,
			System:      systemPrompt,
			Messages:    messages,
			Tools:       agent.tools.Definitions(),
			MaxTokens:   agent.config.MaxTokens,
			Temperature: agent.config.Temperature,
			TopP:        agent.config.TopP,
			TopK:        agent.config.TopK,
		})
		if err != nil {
			if ctx.Err() != nil {
				outcome.err = ctx.Err()
				return outcome
			}
			logger.Warn("model invocation failed", "error", err, "kind", llm.ErrorKindOf(err))
			return finish(TurnFailed, invocationFailureText(err))
		}
		outcome.modelCalls++
		outcome.usage.InputTokens += response.Usage.InputTokens
		outcome.usage.OutputTokens += response.Usage.OutputTokens

		sent := append([]llm.Message{llm.SystemMessage(systemPrompt)}, messages...)
		agent.estimator.RecordUsage(sent, response.Usage.InputTokens)

		messages = append(messages, response.Message())

		toolUses := response.ToolUses()
		if len(toolUses) == 0 {
			return finish(TurnDone, response.TextContent())
		}

		results := make([]llm.ToolResult, 0, len(toolUses))
		for _, use := range toolUses {
			output, isError, err := agent.tools.Call(ctx, use.Name, use.Input)
			if err != nil {
				if ctx.Err() != nil {
					outcome.err = ctx.Err()
					return outcome
				}
				// Dispatch failures (unknown tool name included) feed
				// back to the model like any tool-level failure.
				output, isError = err.Error(), true
			}
			logger.Info("tool call", "tool", use.Name, "is_error", isError)
			outcome.toolCalls = append(outcome.toolCalls, ToolCallRecord{
				ID:        use.ID,
				Name:      use.Name,
				Arguments: use.Input,
				Output:    output,
				IsError:   isError,
			})
			results = append(results, llm.ToolResult{ToolUseID: use.ID, Content: output, IsError: isError})
		}
		messages = append(messages, llm.ToolResultMessage(results...))

		if outcome.modelCalls >= agent.config.MaxToolCallIterations {
			logger.Warn("tool iteration budget exhausted", "invocations", outcome.modelCalls)
			return finish(TurnExhausted, exhaustedText)
		}
	}
}

// invocationFailureText maps a model invocation failure to the
// user-visible turn text. The full error goes to the log, not the
// user.
func invocationFailureText(err error) string {
	var unsupported *llm.UnsupportedBlockError
	if errors.As(err, &unsupported) {
		return "The model replied with a content type I cannot handle, so I stopped this request."
	}
	var providerError *llm.ProviderError
	if errors.As(err, &providerError) {
		switch providerError.Kind() {
		case llm.ErrorKindAuth:
			return "I could not authenticate with the model provider. Please check the service credentials."
		case llm.ErrorKindThrottle:
			return "The model provider is handling too many requests right now. Please try again in a moment."
		case llm.ErrorKindTimeout:
			return "The model provider took too long to answer. Please try again."
		case llm.ErrorKindMalformed:
			return "The model provider rejected the request. Please check the agent configuration."
		}
	}
	return "I could not reach the model provider. Please try again."
}
