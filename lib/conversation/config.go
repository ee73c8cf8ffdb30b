// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import "fmt"

// Config is the per-agent conversation tuning. Temperature, TopP, and
// TopK are pointers so nil means "provider default".
type Config struct {
	// Model is the Bedrock model identifier.
	Model string

	// Temperature and TopP steer sampling; both range 0 to 1.
	Temperature *float64
	TopP        *float64

	// TopK is model-family dependent and carried through the
	// provider's additional-fields escape hatch.
	TopK *int

	// MaxTokens bounds the model's output per invocation.
	MaxTokens int

	// RememberConversation includes prior exchanges in the working
	// history; when false every turn starts from the system prompt
	// alone.
	RememberConversation bool

	// RememberInteractions is the number of complete interaction
	// groups retained when RememberConversation is true.
	RememberInteractions int

	// MaxToolCallIterations bounds the model invocations in one turn.
	// When the model still requests tools after the final permitted
	// invocation, the turn ends exhausted instead of invoking again.
	MaxToolCallIterations int

	// RefreshPromptEachTurn re-renders the system prompt per turn
	// when the device context changed; when false the first render is
	// reused for the session's lifetime.
	RefreshPromptEachTurn bool

	// Persona is the leading prompt text.
	Persona string
}

// Validate returns the structural problems with the configuration;
// empty means valid.
func (config *Config) Validate() []string {
	var issues []string
	if config.Model == "" {
		issues = append(issues, "model is required")
	}
	if config.MaxTokens <= 0 {
		issues = append(issues, fmt.Sprintf("max_tokens must be positive, got %d", config.MaxTokens))
	}
	if config.MaxToolCallIterations <= 0 {
		issues = append(issues, fmt.Sprintf("max_tool_call_iterations must be positive, got %d", config.MaxToolCallIterations))
	}
	if config.RememberInteractions < 0 {
		issues = append(issues, fmt.Sprintf("remember_num_interactions must not be negative, got %d", config.RememberInteractions))
	}
	if config.Temperature != nil && (*config.Temperature < 0 || *config.Temperature > 1) {
		issues = append(issues, fmt.Sprintf("temperature must be between 0 and 1, got %g", *config.Temperature))
	}
	if config.TopP != nil && (*config.TopP < 0 || *config.TopP > 1) {
		issues = append(issues, fmt.Sprintf("top_p must be between 0 and 1, got %g", *config.TopP))
	}
	if config.TopK != nil && *config.TopK <= 0 {
		issues = append(issues, fmt.Sprintf("top_k must be positive, got %d", *config.TopK))
	}
	return issues
}
