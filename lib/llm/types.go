// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a [Message].
type Role string

const (
	// RoleSystem is the environment preamble (persona, device summary).
	// At most one system message exists per conversation, always first.
	RoleSystem Role = "system"

	// RoleUser is a message authored by the person talking to the
	// assistant.
	RoleUser Role = "user"

	// RoleAssistant is a message authored by the model, containing text
	// and/or tool-use requests.
	RoleAssistant Role = "assistant"

	// RoleTool carries the results of executing the tool-use requests
	// from the preceding assistant message.
	RoleTool Role = "tool"
)

// ContentType discriminates the variants of a [ContentBlock].
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// ToolUse is a model-requested invocation of a named tool. Input is
// the raw JSON argument object exactly as the model produced it;
// argument validation belongs to the tool, not the transport.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResult is the outcome of executing one [ToolUse], correlated by
// ToolUseID. IsError distinguishes a tool-level failure (unknown tool,
// bad arguments, execution fault) from a successful result; either way
// Content is fed back to the model verbatim.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ContentBlock is one element of a message body: text, a tool-use
// request, or a tool result. Exactly one of the variant fields is set,
// indicated by Type.
type ContentBlock struct {
	Type       ContentType `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ToolUseBlock returns a tool-use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{
		Type:    ContentToolUse,
		ToolUse: &ToolUse{ID: id, Name: name, Input: input},
	}
}

// ToolResultBlock returns a tool-result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Type:       ContentToolResult,
		ToolResult: &ToolResult{ToolUseID: toolUseID, Content: content, IsError: isError},
	}
}

// Message is one entry in a conversation: a role plus an ordered
// sequence of content blocks. Messages are immutable values — code
// that needs a variant builds a new Message.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// SystemMessage returns a system-role message with a single text block.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentBlock{TextBlock(text)}}
}

// UserMessage returns a user-role message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage returns an assistant-role message from the given
// blocks.
func AssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// ToolResultMessage returns a tool-role message carrying one result
// block per given result, in order.
func ToolResultMessage(results ...ToolResult) Message {
	message := Message{Role: RoleTool}
	for _, result := range results {
		message.Content = append(message.Content,
			ToolResultBlock(result.ToolUseID, result.Content, result.IsError))
	}
	return message
}

// TextContent returns the message's text blocks joined with newlines.
// Non-text blocks are skipped.
func (message Message) TextContent() string {
	var parts []string
	for _, block := range message.Content {
		if block.Type == ContentText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the tool-use requests in the message, in order.
func (message Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range message.Content {
		if block.Type == ContentToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// ToolDefinition describes one tool offered to the model: a name, a
// free-text description, and a JSON-schema object for the arguments.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is a single model invocation: the system prompt, the
// conversation so far, the tools on offer, and the inference
// parameters. Temperature, TopP, and TopK are pointers so that nil
// means "provider default" rather than zero.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	TopK        *int
}

// StopReason is the model's reason for ending its reply.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Usage reports token consumption for one invocation, as counted by
// the backend.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is the model's reply to one [Request].
type Response struct {
	// Content is the assistant message body as received, in response
	// order.
	Content []ContentBlock

	// StopReason is why the model stopped.
	StopReason StopReason

	// Model is the identifier reported by the backend.
	Model string

	// Usage is the token accounting for this invocation.
	Usage Usage
}

// Message returns the response content as an assistant [Message],
// suitable for appending to a conversation.
func (response *Response) Message() Message {
	return Message{Role: RoleAssistant, Content: response.Content}
}

// TextContent returns the response's text blocks joined with newlines.
func (response *Response) TextContent() string {
	return response.Message().TextContent()
}

// ToolUses returns the tool-use requests in the response, in response
// order.
func (response *Response) ToolUses() []ToolUse {
	return response.Message().ToolUses()
}
