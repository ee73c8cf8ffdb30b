// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"encoding/json"

	"github.com/majordomo-home/majordomo/lib/llm"
)

// TurnState classifies how a turn ended.
type TurnState string

const (
	// TurnDone means the model produced a final text answer.
	TurnDone TurnState = "done"

	// TurnFailed means an invocation or prompt fault ended the turn;
	// Text carries the user-facing explanation.
	TurnFailed TurnState = "failed"

	// TurnExhausted means the tool iteration budget was spent before
	// the model settled on an answer.
	TurnExhausted TurnState = "exhausted"
)

// ToolCallRecord documents one tool dispatch within a turn.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    string          `json:"output"`
	IsError   bool            `json:"is_error,omitempty"`
}

// TurnResult is the outcome of one processed turn. Text is always
// user-presentable, whatever the state.
type TurnResult struct {
	SessionID  string           `json:"session_id"`
	Text       string           `json:"text"`
	State      TurnState        `json:"state"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`
	Usage      llm.Usage        `json:"usage"`
	ModelCalls int              `json:"model_calls"`
}

// UsageTotals aggregates consumption across an agent's turns.
type UsageTotals struct {
	Turns        int64 `json:"turns"`
	ModelCalls   int64 `json:"model_calls"`
	ToolCalls    int64 `json:"tool_calls"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// AgentStatus is the externally visible summary of one agent.
type AgentStatus struct {
	Name           string      `json:"name"`
	Model          string      `json:"model"`
	ActiveSessions int         `json:"active_sessions"`
	Usage          UsageTotals `json:"usage"`
	CharsPerToken  float64     `json:"chars_per_token"`
}
