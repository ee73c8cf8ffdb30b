// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "time"

// Action names understood by the conversation service.
const (
	// ActionTurn processes one conversation turn. Fields: agent
	// (optional when one agent is attached), session_id (optional; a
	// new session is minted when empty), text.
	ActionTurn = "turn"

	// ActionHistory returns a session's stored messages. Fields:
	// agent, session_id.
	ActionHistory = "history"

	// ActionReset clears a session's history and archives its
	// transcript. Fields: agent, session_id.
	ActionReset = "reset"

	// ActionSessions lists an agent's sessions. Fields: agent.
	ActionSessions = "sessions"

	// ActionEntities returns the current exposed-entity snapshot.
	ActionEntities = "entities"

	// ActionPrompt renders and returns the agent's current system
	// prompt. Fields: agent.
	ActionPrompt = "prompt"

	// ActionStatus reports daemon and per-agent state. No fields.
	ActionStatus = "status"
)

// TurnRequest is the decoded form of a turn action.
type TurnRequest struct {
	Agent     string `cbor:"agent,omitempty"`
	SessionID string `cbor:"session_id,omitempty"`
	Text      string `cbor:"text"`
}

// ToolCallReply is one tool dispatch within a turn, as reported to
// clients.
type ToolCallReply struct {
	ID        string `cbor:"id"`
	Name      string `cbor:"name"`
	Arguments []byte `cbor:"arguments,omitempty"`
	Output    string `cbor:"output"`
	IsError   bool   `cbor:"is_error,omitempty"`
}

// TurnReply is the response to a turn action. Text is always
// user-presentable; State is one of "done", "failed", "exhausted".
type TurnReply struct {
	SessionID    string          `cbor:"session_id"`
	Text         string          `cbor:"text"`
	State        string          `cbor:"state"`
	ToolCalls    []ToolCallReply `cbor:"tool_calls,omitempty"`
	ModelCalls   int             `cbor:"model_calls"`
	InputTokens  int64           `cbor:"input_tokens"`
	OutputTokens int64           `cbor:"output_tokens"`
}

// MessageReply is one stored message in a history response. Tool-use
// and tool-result details are flattened to display strings; clients
// render history, they do not replay it.
type MessageReply struct {
	Role    string   `cbor:"role"`
	Text    string   `cbor:"text,omitempty"`
	Tools   []string `cbor:"tools,omitempty"`
	Results []string `cbor:"results,omitempty"`
}

// HistoryReply is the response to a history action.
type HistoryReply struct {
	SessionID string         `cbor:"session_id"`
	Messages  []MessageReply `cbor:"messages"`
}

// SessionReply is one session in a sessions response.
type SessionReply struct {
	ID           string    `cbor:"id"`
	Turns        int       `cbor:"turns"`
	LastActivity time.Time `cbor:"last_activity"`
}

// EntityReply is one exposed entity in an entities response.
type EntityReply struct {
	ID     string `cbor:"id"`
	Domain string `cbor:"domain"`
	Name   string `cbor:"name"`
	Area   string `cbor:"area,omitempty"`
	State  string `cbor:"state"`
}

// PromptReply is the response to a prompt action.
type PromptReply struct {
	Agent  string `cbor:"agent"`
	Prompt string `cbor:"prompt"`
}

// AgentStatusReply is one agent's block in a status response.
type AgentStatusReply struct {
	Name           string  `cbor:"name"`
	Model          string  `cbor:"model"`
	ActiveSessions int     `cbor:"active_sessions"`
	Turns          int64   `cbor:"turns"`
	ModelCalls     int64   `cbor:"model_calls"`
	ToolCalls      int64   `cbor:"tool_calls"`
	InputTokens    int64   `cbor:"input_tokens"`
	OutputTokens   int64   `cbor:"output_tokens"`
	CharsPerToken  float64 `cbor:"chars_per_token"`
}

// StatusReply is the response to a status action.
type StatusReply struct {
	Version       string             `cbor:"version"`
	UptimeSeconds float64            `cbor:"uptime_seconds"`
	Agents        []AgentStatusReply `cbor:"agents"`
}
