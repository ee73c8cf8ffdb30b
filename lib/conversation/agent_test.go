// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/hub"
	"github.com/majordomo-home/majordomo/lib/llm"
	"github.com/majordomo-home/majordomo/lib/prompt"
	"github.com/majordomo-home/majordomo/lib/testutil"
	"github.com/majordomo-home/majordomo/lib/tools"
)

// providerReply is one scripted model response or failure.
type providerReply struct {
	response *llm.Response
	err      error
}

func textReply(text string) providerReply {
	return providerReply{response: &llm.Response{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopReasonEndTurn,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
	}}
}

func toolReply(id, name, arguments string) providerReply {
	return providerReply{response: &llm.Response{
		Content:    []llm.ContentBlock{llm.ToolUseBlock(id, name, json.RawMessage(arguments))},
		StopReason: llm.StopReasonToolUse,
		Usage:      llm.Usage{InputTokens: 120, OutputTokens: 30},
	}}
}

func errorReply(err error) providerReply {
	return providerReply{err: err}
}

// fakeProvider pops scripted replies and records every request it
// receives.
type fakeProvider struct {
	mutex    sync.Mutex
	requests []llm.Request
	script   []providerReply
}

func (provider *fakeProvider) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	request.Messages = slices.Clone(request.Messages)
	provider.requests = append(provider.requests, request)
	if len(provider.script) == 0 {
		return nil, errors.New("fake provider: script exhausted")
	}
	reply := provider.script[0]
	provider.script = provider.script[1:]
	if reply.err != nil {
		return nil, reply.err
	}
	return reply.response, nil
}

func (provider *fakeProvider) recorded() []llm.Request {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return slices.Clone(provider.requests)
}

// blockingProvider parks the first Complete call until released, so a
// test can hold a turn in flight.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (provider *blockingProvider) Complete(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	select {
	case provider.entered <- struct{}{}:
	default:
	}
	select {
	case <-provider.release:
		return textReply("released").response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// scriptedTool returns a fixed output and records its arguments.
type scriptedTool struct {
	mutex   sync.Mutex
	name    string
	output  string
	isError bool
	err     error
	calls   []json.RawMessage
}

func (tool *scriptedTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        tool.name,
		Description: "Test tool.",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}
}

func (tool *scriptedTool) Call(_ context.Context, arguments json.RawMessage) (string, bool, error) {
	tool.mutex.Lock()
	defer tool.mutex.Unlock()
	tool.calls = append(tool.calls, slices.Clone(arguments))
	if tool.err != nil {
		return "", false, tool.err
	}
	return tool.output, tool.isError, nil
}

func (tool *scriptedTool) callCount() int {
	tool.mutex.Lock()
	defer tool.mutex.Unlock()
	return len(tool.calls)
}

type fakeSnapshots struct {
	mutex    sync.Mutex
	snapshot *hub.Snapshot
	err      error
	calls    int
}

func (fake *fakeSnapshots) Snapshot(ctx context.Context) (*hub.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.calls++
	if fake.err != nil {
		return nil, fake.err
	}
	return fake.snapshot, nil
}

func (fake *fakeSnapshots) callCount() int {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return fake.calls
}

func kitchenSnapshot() *hub.Snapshot {
	return &hub.Snapshot{
		Taken: time.Date(2026, time.March, 14, 8, 59, 0, 0, time.UTC),
		Areas: []hub.Area{{
			Name: "Kitchen",
			Entities: []hub.Entity{{
				ID:     "light.kitchen",
				Domain: "light",
				Name:   "Kitchen Light",
				Area:   "Kitchen",
				State:  "off",
			}},
		}},
	}
}

type agentFixture struct {
	agent     *Agent
	provider  *fakeProvider
	tool      *scriptedTool
	snapshots *fakeSnapshots
	clock     *clock.FakeClock
	store     *MemoryStore
}

// newAgentFixture assembles an agent over fakes. configure may adjust
// the config before construction.
func newAgentFixture(t *testing.T, configure func(*AgentConfig)) *agentFixture {
	t.Helper()

	provider := &fakeProvider{}
	tool := &scriptedTool{name: "call_device_service", output: `{"result":"success"}`}
	registry, err := tools.NewRegistry(tool)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	builder, err := prompt.NewBuilder(nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	snapshots := &fakeSnapshots{snapshot: kitchenSnapshot()}
	fakeClock := clock.Fake(time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStore()

	config := AgentConfig{
		Name: "kitchen",
		Conversation: Config{
			Model:                 "anthropic.claude-3-5-haiku-20241022-v1:0",
			MaxTokens:             512,
			RememberConversation:  true,
			RememberInteractions:  5,
			MaxToolCallIterations: 5,
			Persona:               "You are the test assistant.",
		},
		Provider:  provider,
		Tools:     registry,
		Prompts:   builder,
		Snapshots: snapshots,
		Store:     store,
		Clock:     fakeClock,
	}
	if configure != nil {
		configure(&config)
	}

	agent, err := NewAgent(config)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	return &agentFixture{
		agent:     agent,
		provider:  provider,
		tool:      tool,
		snapshots: snapshots,
		clock:     fakeClock,
		store:     store,
	}
}

func requireRoles(t *testing.T, messages []llm.Message, roles ...llm.Role) {
	t.Helper()
	if len(messages) != len(roles) {
		t.Fatalf("got %d messages, want %d", len(messages), len(roles))
	}
	for i, role := range roles {
		if messages[i].Role != role {
			t.Fatalf("message[%d] role = %q, want %q", i, messages[i].Role, role)
		}
	}
}

func TestTurnHappyPath(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	arguments := `{"service":"light.turn_on","target_device":"light.kitchen"}`
	fixture.provider.script = []providerReply{
		toolReply("toolu_1", "call_device_service", arguments),
		textReply("The kitchen light is on."),
	}

	result, err := fixture.agent.ProcessTurn(context.Background(), "morning", "turn on the kitchen light")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if result.State != TurnDone {
		t.Errorf("state = %q, want done", result.State)
	}
	if result.Text != "The kitchen light is on." {
		t.Errorf("text = %q", result.Text)
	}
	if result.SessionID != "morning" {
		t.Errorf("session id = %q", result.SessionID)
	}
	if result.ModelCalls != 2 {
		t.Errorf("model calls = %d, want 2", result.ModelCalls)
	}
	if result.Usage.InputTokens != 220 || result.Usage.OutputTokens != 50 {
		t.Errorf("usage = %+v, want 220/50", result.Usage)
	}

	if length := len(result.ToolCalls); length != 1 {
		t.Fatalf("tool calls = %d, want 1", length)
	}
	record := result.ToolCalls[0]
	if record.ID != "toolu_1" || record.Name != "call_device_service" {
		t.Errorf("tool call record = %+v", record)
	}
	if record.IsError {
		t.Error("tool call recorded as error")
	}
	if record.Output != `{"result":"success"}` {
		t.Errorf("tool output = %q", record.Output)
	}

	if count := fixture.tool.callCount(); count != 1 {
		t.Fatalf("tool invoked %d times, want 1", count)
	}
	if got := string(fixture.tool.calls[0]); got != arguments {
		t.Errorf("tool arguments = %s", got)
	}

	requests := fixture.provider.recorded()
	if length := len(requests); length != 2 {
		t.Fatalf("provider saw %d requests, want 2", length)
	}
	if !strings.Contains(requests[0].System, "light.kitchen") {
		t.Errorf("system prompt lacks the exposed entity:\n%s", requests[0].System)
	}
	if requests[0].Model != "anthropic.claude-3-5-haiku-20241022-v1:0" {
		t.Errorf("model = %q", requests[0].Model)
	}
	requireRoles(t, requests[1].Messages, llm.RoleUser, llm.RoleAssistant, llm.RoleTool)

	history, err := fixture.agent.History(context.Background(), "morning")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	requireRoles(t, history, llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleAssistant)
	toolResult := history[2].Content[0].ToolResult
	if toolResult == nil || toolResult.ToolUseID != "toolu_1" {
		t.Errorf("stored tool result = %+v", toolResult)
	}
	if history[3].TextContent() != "The kitchen light is on." {
		t.Errorf("stored answer = %q", history[3].TextContent())
	}
}

func TestTurnToolErrorFedBack(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.tool.output = `{"result":"error","error":"device \"light.cellar\" is not exposed to the assistant"}`
	fixture.tool.isError = true
	fixture.provider.script = []providerReply{
		toolReply("toolu_1", "call_device_service", `{"service":"light.turn_on","target_device":"light.cellar"}`),
		textReply("I cannot control the cellar light, sorry."),
	}

	result, err := fixture.agent.ProcessTurn(context.Background(), "s", "turn on the cellar light")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.State != TurnDone {
		t.Fatalf("state = %q, want done", result.State)
	}
	if !result.ToolCalls[0].IsError {
		t.Error("tool failure not recorded as error")
	}

	// The model saw the failure as an error tool result and answered
	// from it.
	requests := fixture.provider.recorded()
	last := requests[1].Messages[len(requests[1].Messages)-1]
	if last.Role != llm.RoleTool {
		t.Fatalf("last message role = %q", last.Role)
	}
	fedBack := last.Content[0].ToolResult
	if fedBack == nil || !fedBack.IsError {
		t.Errorf("tool result fed back = %+v", fedBack)
	}

	history, _ := fixture.agent.History(context.Background(), "s")
	if length := len(history); length != 4 {
		t.Errorf("history = %d messages, want the full exchange", length)
	}
}

func TestTurnExhaustion(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, func(config *AgentConfig) {
		config.Conversation.MaxToolCallIterations = 1
	})
	fixture.provider.script = []providerReply{
		toolReply("toolu_1", "call_device_service", `{"service":"light.turn_on","target_device":"light.kitchen"}`),
	}

	result, err := fixture.agent.ProcessTurn(context.Background(), "s", "turn on the light")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.State != TurnExhausted {
		t.Fatalf("state = %q, want exhausted", result.State)
	}
	if result.ModelCalls != 1 {
		t.Errorf("model calls = %d, want exactly the budget", result.ModelCalls)
	}
	if result.Text == "" {
		t.Error("exhausted turn has no explanation text")
	}

	// The single permitted round still executes its tools; there is
	// no second invocation.
	if count := fixture.tool.callCount(); count != 1 {
		t.Errorf("tool invoked %d times, want 1", count)
	}
	if length := len(fixture.provider.recorded()); length != 1 {
		t.Errorf("provider saw %d requests, want 1", length)
	}

	// Only the user message is committed: no dangling tool round-trip.
	history, _ := fixture.agent.History(context.Background(), "s")
	requireRoles(t, history, llm.RoleUser)
}

func TestTurnRememberDisabled(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, func(config *AgentConfig) {
		config.Conversation.RememberConversation = false
	})
	fixture.provider.script = []providerReply{
		textReply("Hello."),
		textReply("Hello again."),
	}

	for _, utterance := range []string{"hi", "hi again"} {
		if _, err := fixture.agent.ProcessTurn(context.Background(), "s", utterance); err != nil {
			t.Fatalf("ProcessTurn(%q): %v", utterance, err)
		}
	}

	// Each turn starts from the system prompt alone.
	requests := fixture.provider.recorded()
	for i, request := range requests {
		if length := len(request.Messages); length != 1 {
			t.Errorf("request[%d] carried %d messages, want 1", i, length)
		}
	}

	// History is still recorded for transcripts even though it is not
	// fed back.
	history, _ := fixture.agent.History(context.Background(), "s")
	if length := len(history); length != 4 {
		t.Errorf("history = %d messages, want 4", length)
	}
}

func TestTurnBusy(t *testing.T) {
	t.Parallel()

	blocking := &blockingProvider{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fixture := newAgentFixture(t, func(config *AgentConfig) {
		config.Provider = blocking
	})

	type turnReply struct {
		result *TurnResult
		err    error
	}
	done := make(chan turnReply, 1)
	go func() {
		result, err := fixture.agent.ProcessTurn(context.Background(), "s", "first")
		done <- turnReply{result, err}
	}()

	testutil.RequireReceive(t, blocking.entered, 5*time.Second, "first turn reaching the model")

	_, err := fixture.agent.ProcessTurn(context.Background(), "s", "second")
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("overlapping turn error = %v, want ErrSessionBusy", err)
	}

	// A different session is not affected by the busy one.
	if err := fixture.agent.Reset(context.Background(), "other"); err != nil {
		t.Errorf("Reset on idle session: %v", err)
	}

	close(blocking.release)
	reply := testutil.RequireReceive(t, done, 5*time.Second, "first turn finishing")
	if reply.err != nil {
		t.Fatalf("first turn failed: %v", reply.err)
	}
	if reply.result.State != TurnDone {
		t.Errorf("first turn state = %q", reply.result.State)
	}
}

func TestPromptCachedWhenRefreshOff(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{textReply("one"), textReply("two")}

	for _, utterance := range []string{"first", "second"} {
		if _, err := fixture.agent.ProcessTurn(context.Background(), "s", utterance); err != nil {
			t.Fatalf("ProcessTurn(%q): %v", utterance, err)
		}
	}

	if count := fixture.snapshots.callCount(); count != 1 {
		t.Errorf("snapshot taken %d times, want 1", count)
	}
	requests := fixture.provider.recorded()
	if requests[0].System != requests[1].System {
		t.Error("system prompt changed between turns despite caching")
	}
}

func TestPromptRefreshSkipsRenderWhenContextUnchanged(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, func(config *AgentConfig) {
		config.Conversation.RefreshPromptEachTurn = true
	})
	fixture.provider.script = []providerReply{
		textReply("one"), textReply("two"), textReply("three"),
	}

	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "first"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	fixture.clock.Advance(time.Hour)
	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "second"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	requests := fixture.provider.recorded()
	if !strings.Contains(requests[0].System, "Saturday, 14 March 2026, 09:00") {
		t.Fatalf("first prompt timestamp missing:\n%s", requests[0].System)
	}
	// The device context did not change, so the render was skipped
	// and the prompt still carries the first turn's timestamp.
	if requests[1].System != requests[0].System {
		t.Error("unchanged context re-rendered the prompt")
	}
	if count := fixture.snapshots.callCount(); count != 2 {
		t.Errorf("snapshot taken %d times, want every turn", count)
	}

	// A state change flips the fingerprint and forces a render at the
	// current clock.
	fixture.snapshots.mutex.Lock()
	fixture.snapshots.snapshot.Areas[0].Entities[0].State = "on"
	fixture.snapshots.mutex.Unlock()

	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "third"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	requests = fixture.provider.recorded()
	third := requests[2].System
	if !strings.Contains(third, "Saturday, 14 March 2026, 10:00") {
		t.Errorf("re-rendered prompt timestamp missing:\n%s", third)
	}
	if !strings.Contains(third, ": on") {
		t.Errorf("re-rendered prompt lacks the new state:\n%s", third)
	}
}

func TestPromptFallbackOnSnapshotFailure(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, func(config *AgentConfig) {
		config.Conversation.RefreshPromptEachTurn = true
	})
	fixture.provider.script = []providerReply{textReply("one"), textReply("two")}

	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "first"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	fixture.snapshots.mutex.Lock()
	fixture.snapshots.err = errors.New("hub unreachable")
	fixture.snapshots.mutex.Unlock()

	result, err := fixture.agent.ProcessTurn(context.Background(), "s", "second")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.State != TurnDone {
		t.Fatalf("state = %q, want done on cached prompt", result.State)
	}

	requests := fixture.provider.recorded()
	if requests[1].System != requests[0].System {
		t.Error("snapshot failure did not fall back to the cached prompt")
	}
}

func TestPromptFailureWithoutCache(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.snapshots.err = errors.New("hub unreachable")

	result, err := fixture.agent.ProcessTurn(context.Background(), "s", "hello")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.State != TurnFailed {
		t.Fatalf("state = %q, want failed", result.State)
	}
	if !strings.Contains(result.Text, "device context") {
		t.Errorf("failure text = %q", result.Text)
	}
	if length := len(fixture.provider.recorded()); length != 0 {
		t.Errorf("model invoked %d times without a prompt", length)
	}

	// The user message is still committed.
	history, _ := fixture.agent.History(context.Background(), "s")
	requireRoles(t, history, llm.RoleUser)
}

func TestModelFailure(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{
		errorReply(&llm.ProviderError{StatusCode: 429, Code: "ThrottlingException", Message: "slow down"}),
	}

	result, err := fixture.agent.ProcessTurn(context.Background(), "s", "hello")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.State != TurnFailed {
		t.Fatalf("state = %q, want failed", result.State)
	}
	if !strings.Contains(result.Text, "too many requests") {
		t.Errorf("throttle text = %q", result.Text)
	}

	history, _ := fixture.agent.History(context.Background(), "s")
	requireRoles(t, history, llm.RoleUser)
}

func TestUnsupportedBlockFailure(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{
		errorReply(&llm.UnsupportedBlockError{Kind: "reasoningContent"}),
	}

	result, err := fixture.agent.ProcessTurn(context.Background(), "s", "hello")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.State != TurnFailed {
		t.Fatalf("state = %q, want failed", result.State)
	}
	if !strings.Contains(result.Text, "content type") {
		t.Errorf("failure text = %q", result.Text)
	}
}

func TestTurnCancellation(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fixture.agent.ProcessTurn(ctx, "s", "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	// A cancelled turn commits nothing.
	history, _ := fixture.agent.History(context.Background(), "s")
	if length := len(history); length != 0 {
		t.Errorf("history = %d messages after cancellation", length)
	}
}

func TestTurnEmptyUtterance(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "   \n"); err == nil {
		t.Fatal("blank utterance accepted")
	}
}

func TestToolUseIDRoundTrip(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{
		{response: &llm.Response{
			Content: []llm.ContentBlock{
				llm.TextBlock("Doing both now."),
				llm.ToolUseBlock("toolu_a", "call_device_service", json.RawMessage(`{"service":"light.turn_on","target_device":"light.kitchen"}`)),
				llm.ToolUseBlock("toolu_b", "call_device_service", json.RawMessage(`{"service":"light.turn_off","target_device":"light.kitchen"}`)),
			},
			StopReason: llm.StopReasonToolUse,
			Usage:      llm.Usage{InputTokens: 150, OutputTokens: 40},
		}},
		textReply("Both done."),
	}

	result, err := fixture.agent.ProcessTurn(context.Background(), "s", "toggle the light twice")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if length := len(result.ToolCalls); length != 2 {
		t.Fatalf("tool calls = %d, want 2", length)
	}

	// Every requested tool use got exactly one result under its id,
	// in request order, within a single tool message.
	requests := fixture.provider.recorded()
	last := requests[1].Messages[len(requests[1].Messages)-1]
	if last.Role != llm.RoleTool {
		t.Fatalf("last message role = %q", last.Role)
	}
	if length := len(last.Content); length != 2 {
		t.Fatalf("tool message carries %d results, want 2", length)
	}
	for i, wantID := range []string{"toolu_a", "toolu_b"} {
		fedBack := last.Content[i].ToolResult
		if fedBack == nil || fedBack.ToolUseID != wantID {
			t.Errorf("result[%d] = %+v, want id %q", i, fedBack, wantID)
		}
	}
}

func TestTrimmingLaw(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, func(config *AgentConfig) {
		config.Conversation.RememberInteractions = 1
	})
	fixture.provider.script = []providerReply{
		textReply("r1"), textReply("r2"), textReply("r3"),
	}

	for _, utterance := range []string{"q1", "q2", "q3"} {
		if _, err := fixture.agent.ProcessTurn(context.Background(), "s", utterance); err != nil {
			t.Fatalf("ProcessTurn(%q): %v", utterance, err)
		}
	}

	// Only the newest complete interaction precedes the third turn's
	// user message.
	requests := fixture.provider.recorded()
	third := requests[2].Messages
	requireRoles(t, third, llm.RoleUser, llm.RoleAssistant, llm.RoleUser)
	if third[0].TextContent() != "q2" || third[2].TextContent() != "q3" {
		t.Errorf("third request history = %q, %q", third[0].TextContent(), third[2].TextContent())
	}
}

func TestExpireIdle(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{textReply("hello")}
	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "hi"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	fixture.clock.Advance(30 * time.Minute)
	if expired := fixture.agent.ExpireIdle(context.Background(), time.Hour); len(expired) != 0 {
		t.Fatalf("expired %v before the idle limit", expired)
	}

	fixture.clock.Advance(31 * time.Minute)
	expired := fixture.agent.ExpireIdle(context.Background(), time.Hour)
	if len(expired) != 1 || expired[0] != "s" {
		t.Fatalf("expired = %v, want [s]", expired)
	}

	history, _ := fixture.agent.History(context.Background(), "s")
	if length := len(history); length != 0 {
		t.Errorf("expired session kept %d messages", length)
	}
	if sessions := fixture.agent.Sessions(); len(sessions) != 0 {
		t.Errorf("expired session still listed: %v", sessions)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{textReply("hello")}
	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "hi"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if err := fixture.agent.Reset(context.Background(), "s"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	history, _ := fixture.agent.History(context.Background(), "s")
	if length := len(history); length != 0 {
		t.Errorf("reset session kept %d messages", length)
	}
	if sessions := fixture.agent.Sessions(); len(sessions) != 0 {
		t.Errorf("reset session still listed: %v", sessions)
	}
}

func TestSessionMintsUUID(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{textReply("hello")}

	result, err := fixture.agent.ProcessTurn(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if length := len(result.SessionID); length != 36 {
		t.Errorf("minted session id = %q", result.SessionID)
	}
	if sessions := fixture.agent.Sessions(); len(sessions) != 1 || sessions[0].ID != result.SessionID {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestStatusAccounting(t *testing.T) {
	t.Parallel()

	fixture := newAgentFixture(t, nil)
	fixture.provider.script = []providerReply{
		toolReply("toolu_1", "call_device_service", `{"service":"light.turn_on","target_device":"light.kitchen"}`),
		textReply("Done."),
	}
	if _, err := fixture.agent.ProcessTurn(context.Background(), "s", "turn on the light"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	status := fixture.agent.Status()
	if status.Name != "kitchen" || status.Model != "anthropic.claude-3-5-haiku-20241022-v1:0" {
		t.Errorf("identity = %q/%q", status.Name, status.Model)
	}
	if status.ActiveSessions != 1 {
		t.Errorf("active sessions = %d", status.ActiveSessions)
	}
	want := UsageTotals{Turns: 1, ModelCalls: 2, ToolCalls: 1, InputTokens: 220, OutputTokens: 50}
	if status.Usage != want {
		t.Errorf("usage = %+v, want %+v", status.Usage, want)
	}
	if status.CharsPerToken <= 0 {
		t.Errorf("chars per token = %v", status.CharsPerToken)
	}
}

func TestNewAgentValidation(t *testing.T) {
	t.Parallel()

	_, err := NewAgent(AgentConfig{Name: "broken"})
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"provider is required", "model is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
}
