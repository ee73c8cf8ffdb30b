// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/majordomo-home/majordomo/lib/netutil"
)

// Bedrock implements [Provider] for the AWS Bedrock Converse API.
// Credentials are the transport's concern: either the supplied
// http.Client signs requests (SigV4 round-tripper), or an API key is
// set and sent as a bearer token.
type Bedrock struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewBedrock creates a Bedrock provider. baseURL is the runtime
// endpoint without a trailing slash, e.g.
// "https://bedrock-runtime.us-east-1.amazonaws.com". apiKey may be
// empty when the http.Client's transport signs requests itself.
func NewBedrock(httpClient *http.Client, baseURL, apiKey string) *Bedrock {
	return &Bedrock{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// EndpointForRegion returns the Bedrock runtime endpoint for an AWS
// region.
func EndpointForRegion(region string) string {
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
}

// Complete sends a Converse request and returns the full response.
func (provider *Bedrock) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest, err := toConverseRequest(request)
	if err != nil {
		return nil, fmt.Errorf("llm/bedrock: %w", err)
	}

	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("llm/bedrock: marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/model/%s/converse", provider.baseURL, url.PathEscape(request.Model))
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm/bedrock: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if provider.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+provider.apiKey)
	}

	httpResponse, err := provider.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("llm/bedrock: sending request: %w", err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, readBedrockError(httpResponse)
	}

	var wireResponse converseResponse
	if err := netutil.DecodeResponse(httpResponse.Body, &wireResponse); err != nil {
		return nil, fmt.Errorf("llm/bedrock: decoding response: %w", err)
	}

	return wireResponse.toResponse(request.Model)
}

// UnsupportedBlockError is returned when a response carries a content
// block kind this package does not model. Dropping such a block
// silently would desynchronize the conversation, so translation fails
// instead and the turn is aborted.
type UnsupportedBlockError struct {
	// Kind is the wire-level key (or keys) of the unrecognized block.
	Kind string
}

func (err *UnsupportedBlockError) Error() string {
	return fmt.Sprintf("llm: unsupported content block kind %q", err.Kind)
}

// readBedrockError parses a non-200 Converse response. Bedrock sends
// the exception name in the x-amzn-errortype header and a JSON body of
// the form {"message": "..."}.
func readBedrockError(httpResponse *http.Response) error {
	body := []byte(netutil.ErrorBody(httpResponse.Body))

	code := errorCodeFromHeader(httpResponse.Header.Get("x-amzn-errortype"))

	var wireError struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Code:       code,
			Message:    wireError.Message,
		}
	}

	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Code:       code,
		Message:    string(body),
	}
}

// --- Converse wire types ---
//
// These map directly to the Bedrock Converse API JSON format. They are
// separate from the public types because the wire format uses
// camelCase, nests the assistant message under output.message, and
// represents content blocks as a keyed union (the present key selects
// the variant) rather than a type-tagged struct.

type converseRequest struct {
	System                       []converseSystemBlock    `json:"system,omitempty"`
	Messages                     []converseMessage        `json:"messages"`
	ToolConfig                   *converseToolConfig      `json:"toolConfig,omitempty"`
	InferenceConfig              *converseInferenceConfig `json:"inferenceConfig,omitempty"`
	AdditionalModelRequestFields map[string]any           `json:"additionalModelRequestFields,omitempty"`
}

type converseSystemBlock struct {
	Text string `json:"text"`
}

type converseMessage struct {
	Role    string                 `json:"role"`
	Content []converseContentBlock `json:"content"`
}

type converseContentBlock struct {
	Text       *string             `json:"text,omitempty"`
	ToolUse    *converseToolUse    `json:"toolUse,omitempty"`
	ToolResult *converseToolResult `json:"toolResult,omitempty"`
}

type converseToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

type converseToolResult struct {
	ToolUseID string                      `json:"toolUseId"`
	Content   []converseToolResultContent `json:"content"`
	Status    string                      `json:"status,omitempty"`
}

type converseToolResultContent struct {
	Text string `json:"text"`
}

type converseToolConfig struct {
	Tools []converseTool `json:"tools"`
}

type converseTool struct {
	ToolSpec converseToolSpec `json:"toolSpec"`
}

type converseToolSpec struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	InputSchema converseToolInputSchema `json:"inputSchema"`
}

type converseToolInputSchema struct {
	JSON json.RawMessage `json:"json"`
}

type converseInferenceConfig struct {
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
}

type converseResponse struct {
	Output     converseOutput `json:"output"`
	StopReason string         `json:"stopReason"`
	Usage      converseUsage  `json:"usage"`
}

type converseOutput struct {
	Message converseOutputMessage `json:"message"`
}

type converseOutputMessage struct {
	Role    string            `json:"role"`
	Content []json.RawMessage `json:"content"`
}

type converseUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// --- Wire type conversions ---

func toConverseRequest(request Request) (converseRequest, error) {
	wireRequest := converseRequest{
		InferenceConfig: &converseInferenceConfig{
			MaxTokens:   request.MaxTokens,
			Temperature: request.Temperature,
			TopP:        request.TopP,
		},
	}

	if request.System != "" {
		wireRequest.System = []converseSystemBlock{{Text: request.System}}
	}

	// The Converse inferenceConfig has no portable top-k slot; the
	// parameter rides the model-specific escape hatch under the key
	// the Anthropic model family uses.
	if request.TopK != nil {
		wireRequest.AdditionalModelRequestFields = map[string]any{
			"top_k": *request.TopK,
		}
	}

	for _, message := range request.Messages {
		wireMessage, err := toConverseMessage(message)
		if err != nil {
			return converseRequest{}, err
		}
		wireRequest.Messages = append(wireRequest.Messages, wireMessage)
	}

	if len(request.Tools) > 0 {
		toolConfig := &converseToolConfig{}
		for _, tool := range request.Tools {
			toolConfig.Tools = append(toolConfig.Tools, converseTool{
				ToolSpec: converseToolSpec{
					Name:        tool.Name,
					Description: tool.Description,
					InputSchema: converseToolInputSchema{JSON: tool.InputSchema},
				},
			})
		}
		wireRequest.ToolConfig = toolConfig
	}

	return wireRequest, nil
}

func toConverseMessage(message Message) (converseMessage, error) {
	var wireRole string
	switch message.Role {
	case RoleUser:
		wireRole = "user"
	case RoleAssistant:
		wireRole = "assistant"
	case RoleTool:
		// Converse has no tool role: results travel in a user-role
		// message whose blocks are toolResult variants.
		wireRole = "user"
	case RoleSystem:
		return converseMessage{}, fmt.Errorf("system message must be carried in Request.System, not Messages")
	default:
		return converseMessage{}, fmt.Errorf("unknown message role %q", message.Role)
	}

	wireMessage := converseMessage{Role: wireRole}
	for _, block := range message.Content {
		wireBlock, err := toConverseContentBlock(block)
		if err != nil {
			return converseMessage{}, err
		}
		wireMessage.Content = append(wireMessage.Content, wireBlock)
	}
	return wireMessage, nil
}

func toConverseContentBlock(block ContentBlock) (converseContentBlock, error) {
	switch block.Type {
	case ContentText:
		text := block.Text
		return converseContentBlock{Text: &text}, nil
	case ContentToolUse:
		if block.ToolUse != nil {
			input := block.ToolUse.Input
			if len(input) == 0 {
				// Converse requires the input document to be present.
				input = json.RawMessage(`{}`)
			}
			return converseContentBlock{ToolUse: &converseToolUse{
				ToolUseID: block.ToolUse.ID,
				Name:      block.ToolUse.Name,
				Input:     input,
			}}, nil
		}
	case ContentToolResult:
		if block.ToolResult != nil {
			status := "success"
			if block.ToolResult.IsError {
				status = "error"
			}
			return converseContentBlock{ToolResult: &converseToolResult{
				ToolUseID: block.ToolResult.ToolUseID,
				Content:   []converseToolResultContent{{Text: block.ToolResult.Content}},
				Status:    status,
			}}, nil
		}
	}
	return converseContentBlock{}, &UnsupportedBlockError{Kind: string(block.Type)}
}

func (wireResponse *converseResponse) toResponse(model string) (*Response, error) {
	response := &Response{
		StopReason: mapConverseStopReason(wireResponse.StopReason),
		Model:      model,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.InputTokens,
			OutputTokens: wireResponse.Usage.OutputTokens,
		},
	}
	for _, rawBlock := range wireResponse.Output.Message.Content {
		block, err := fromConverseBlock(rawBlock)
		if err != nil {
			return nil, err
		}
		response.Content = append(response.Content, block)
	}
	return response, nil
}

// fromConverseBlock translates one response content block. The wire
// union is keyed, so an unmodeled variant decodes to an empty struct;
// in that case the raw keys are reported in an [UnsupportedBlockError]
// rather than dropped.
func fromConverseBlock(raw json.RawMessage) (ContentBlock, error) {
	var wire converseContentBlock
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ContentBlock{}, fmt.Errorf("llm/bedrock: decoding content block: %w", err)
	}

	switch {
	case wire.Text != nil:
		return TextBlock(*wire.Text), nil
	case wire.ToolUse != nil:
		return ToolUseBlock(wire.ToolUse.ToolUseID, wire.ToolUse.Name, wire.ToolUse.Input), nil
	case wire.ToolResult != nil:
		// The model never sends tool results; receiving one means the
		// conversation is malformed.
		return ContentBlock{}, &UnsupportedBlockError{Kind: "toolResult"}
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil || len(keyed) == 0 {
		return ContentBlock{}, &UnsupportedBlockError{Kind: "empty"}
	}
	keys := make([]string, 0, len(keyed))
	for key := range keyed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return ContentBlock{}, &UnsupportedBlockError{Kind: keys[0]}
}

func mapConverseStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopReasonEndTurn
	case "tool_use":
		return StopReasonToolUse
	case "max_tokens":
		return StopReasonMaxTokens
	case "stop_sequence":
		return StopReasonStopSequence
	default:
		return StopReason(reason)
	}
}
