//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/event"
	"github.com/flowgent/flowgent/guardrail"
	"github.com/flowgent/flowgent/memory"
	"github.com/flowgent/flowgent/memory/inmemory"
	"github.com/flowgent/flowgent/model"
	"github.com/flowgent/flowgent/tool"
)

// scriptedProvider replays canned responses in order and records every
// request it receives.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*model.Response
	always    *model.Response // repeated once the script runs out
	delay     time.Duration
	requests  []*model.Request
}

func (p *scriptedProvider) Info() model.Info {
	return model.Info{Name: "scripted"}
}

func (p *scriptedProvider) Complete(ctx context.Context, request *model.Request) (*model.Response, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, request)
	if len(p.responses) > 0 {
		rsp := p.responses[0]
		p.responses = p.responses[1:]
		return rsp, nil
	}
	if p.always != nil {
		return p.always, nil
	}
	return nil, errors.New("script exhausted")
}

func textResponse(content string) *model.Response {
	return &model.Response{
		Message: model.NewAssistantMessage(content),
		Usage:   &model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(id, name, args string) *model.Response {
	return &model.Response{
		Message: model.Message{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{
				Type: "function",
				ID:   id,
				Function: model.FunctionDefinitionParam{
					Name:      name,
					Arguments: []byte(args),
				},
			}},
		},
	}
}

// scriptedTool is a scriptable CallableTool with an optional approval gate.
type scriptedTool struct {
	name          string
	needsApproval bool
	result        any
	calls         atomic.Int32
}

func (t *scriptedTool) Declaration() *tool.Declaration {
	return &tool.Declaration{Name: t.name, Description: "test tool"}
}

func (t *scriptedTool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	t.calls.Add(1)
	if t.result != nil {
		return t.result, nil
	}
	return map[string]any{"ok": true}, nil
}

func (t *scriptedTool) NeedsApproval(ctx context.Context, jsonArgs []byte) bool {
	return t.needsApproval
}

// collector accumulates every emitted event.
type collector struct {
	events []*event.Event
}

func (c *collector) handler(e *event.Event) any {
	c.events = append(c.events, e)
	return nil
}

func (c *collector) ofType(t event.Type) []*event.Event {
	var out []*event.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newRunner(t *testing.T, cfg Config) (*Runner, *collector) {
	t.Helper()
	events := &collector{}
	cfg.Handlers = append(cfg.Handlers, events.handler)
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r, events
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Provider: &scriptedProvider{}})
	assert.Error(t, err)

	_, err = New(Config{Registry: agent.NewRegistry(&agent.Agent{Name: "a"})})
	assert.Error(t, err)
}

func TestRunSingleToolCallCompletes(t *testing.T) {
	calc := &scriptedTool{name: "calculator", result: map[string]any{"result": 42}}
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "calculator", `{"expression":"15+27"}`),
		textResponse("42"),
	}}
	r, events := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "calc", Tools: []tool.Tool{calc}}),
		Provider: provider,
	})

	result := r.Run(context.Background(), agent.NewState("calc", model.NewUserMessage("what is 15+27?")))

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Equal(t, "42", result.Output)
	assert.Equal(t, int32(1), calc.calls.Load())

	assert.Len(t, events.ofType(event.TypeToolCallStart), 1)
	assert.Len(t, events.ofType(event.TypeToolCallEnd), 1)

	// user, assistant tool call, tool reply, final assistant answer.
	messages := result.FinalState.Messages
	require.Len(t, messages, 4)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, model.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].ToolCalls, 1)
	assert.Equal(t, model.RoleTool, messages[2].Role)
	assert.Equal(t, model.RoleAssistant, messages[3].Role)
	assert.Equal(t, "42", messages[3].Content)
}

func TestRunApprovalInterruptAndResume(t *testing.T) {
	booking := &scriptedTool{name: "book_flight", needsApproval: true, result: "booked"}
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "book_flight", `{"destination":"SFO"}`),
		textResponse("Your flight is booked."),
	}}
	service := inmemory.NewService()
	r, _ := newRunner(t, Config{
		Registry:      agent.NewRegistry(&agent.Agent{Name: "travel", Tools: []tool.Tool{booking}}),
		Provider:      provider,
		ApprovalStore: inmemory.NewApprovalStore(),
		Memory: memory.Options{
			Service:        service,
			ConversationID: "conv-1",
			AutoStore:      true,
		},
	})
	ctx := context.Background()

	result := r.Run(ctx, agent.NewState("travel", model.NewUserMessage("book me a flight")))

	require.True(t, result.Interrupted())
	interruption, ok := result.Interruptions[0].(*agent.ToolApprovalInterruption)
	require.True(t, ok)
	assert.Equal(t, "call-1", interruption.ToolCall.ID)
	assert.Equal(t, agent.ApprovalPending, result.FinalState.Approvals["call-1"].Status)
	assert.Zero(t, booking.calls.Load())

	// The halted placeholder is persisted but never lives on the state.
	conv, err := service.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	var halted int
	for _, m := range conv.Messages {
		if memory.IsHalted(m) {
			halted++
		}
	}
	assert.Equal(t, 1, halted)
	for _, m := range result.FinalState.Messages {
		assert.False(t, memory.IsHalted(m))
	}

	// Approve and resume from the returned state.
	resumed := result.FinalState
	resumed.SetApproval("call-1", agent.Approval{Status: agent.ApprovalApproved})
	result = r.Run(ctx, resumed)

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Equal(t, "Your flight is booked.", result.Output)
	assert.Equal(t, int32(1), booking.calls.Load())

	reply := findToolReply(t, result.FinalState.Messages, "call-1")
	assert.Equal(t, "approved_and_executed", reply["status"])
}

func TestRunApprovalRejectedSkipsTool(t *testing.T) {
	booking := &scriptedTool{name: "book_flight", needsApproval: true}
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "book_flight", `{"destination":"SFO"}`),
		textResponse("Understood, I won't book it."),
	}}
	r, _ := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "travel", Tools: []tool.Tool{booking}}),
		Provider: provider,
	})
	ctx := context.Background()

	result := r.Run(ctx, agent.NewState("travel", model.NewUserMessage("book me a flight")))
	require.True(t, result.Interrupted())

	resumed := result.FinalState
	resumed.SetApproval("call-1", agent.Approval{
		Status:            agent.ApprovalRejected,
		AdditionalContext: map[string]any{"rejectionReason": "user changed mind"},
	})
	result = r.Run(ctx, resumed)

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Zero(t, booking.calls.Load(), "a rejected tool call must not execute")

	reply := findToolReply(t, result.FinalState.Messages, "call-1")
	assert.Equal(t, "approval_denied", reply["status"])
	assert.Equal(t, "user changed mind", reply["rejection_reason"])
}

func TestRunHandoffSwitchesAgent(t *testing.T) {
	weather := &agent.Agent{
		Name:        "weather",
		Description: "forecasts",
		Instruction: func(*agent.State) string { return "You are a weather forecaster." },
	}
	coordinator := &agent.Agent{Name: "coordinator", AllowedHandoffs: []string{"weather"}}
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "transfer_to_agent", `{"agent_name":"weather","reason":"forecast needed"}`),
		textResponse("Sunny, 22 degrees."),
	}}
	r, events := newRunner(t, Config{
		Registry: agent.NewRegistry(coordinator, weather),
		Provider: provider,
	})

	result := r.Run(context.Background(), agent.NewState("coordinator", model.NewUserMessage("weather in SF?")))

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Equal(t, "weather", result.FinalState.CurrentAgent)
	require.Len(t, events.ofType(event.TypeHandoff), 1)

	// The follow-up model call runs as the weather agent.
	require.Len(t, provider.requests, 2)
	second := provider.requests[1]
	require.NotEmpty(t, second.Messages)
	assert.Equal(t, model.RoleSystem, second.Messages[0].Role)
	assert.Equal(t, "You are a weather forecaster.", second.Messages[0].Content)
}

func TestRunHandoffDeniedFailsRun(t *testing.T) {
	escalate := &scriptedTool{name: "escalate", result: map[string]any{"handoff_to": "unknown"}}
	coordinator := &agent.Agent{
		Name:            "coordinator",
		Tools:           []tool.Tool{escalate},
		AllowedHandoffs: []string{"weather"},
	}
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "escalate", `{}`),
	}}
	r, events := newRunner(t, Config{
		Registry: agent.NewRegistry(coordinator, &agent.Agent{Name: "weather"}),
		Provider: provider,
	})

	result := r.Run(context.Background(), agent.NewState("coordinator", model.NewUserMessage("escalate this")))

	var handoffErr *agent.HandoffError
	require.ErrorAs(t, result.Err, &handoffErr)
	assert.Len(t, events.ofType(event.TypeHandoffDenied), 1)
}

func TestRunInputGuardrailRejectsBeforeOutput(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*model.Response{textResponse("should never surface")},
		delay:     50 * time.Millisecond,
	}
	r, events := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "triage"}),
		Provider: provider,
		Guardrails: &guardrail.Config{
			ExecutionMode: guardrail.ModeParallel,
			Input: []guardrail.Guardrail{
				guardrail.Func("spam-filter", func(ctx context.Context, content string) guardrail.Decision {
					return guardrail.Decision{Valid: false, Reason: "spam detected"}
				}),
			},
		},
	})

	result := r.Run(context.Background(), agent.NewState("triage", model.NewUserMessage("spam spam spam")))

	var guardrailErr *agent.InputGuardrailError
	require.ErrorAs(t, result.Err, &guardrailErr)
	assert.Empty(t, events.ofType(event.TypeAssistantMessage),
		"the discarded model response must not surface")
}

func TestRunResumeSkipsInputGuardrails(t *testing.T) {
	booking := &scriptedTool{name: "book_flight", needsApproval: true, result: "booked"}
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "book_flight", `{}`),
		textResponse("Your flight is booked."),
	}}
	// Passes once, then rejects; the resumed run must never reach it.
	var checks atomic.Int32
	r, _ := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "travel", Tools: []tool.Tool{booking}}),
		Provider: provider,
		Guardrails: &guardrail.Config{
			Input: []guardrail.Guardrail{
				guardrail.Func("once", func(ctx context.Context, content string) guardrail.Decision {
					if checks.Add(1) > 1 {
						return guardrail.Decision{Valid: false, Reason: "re-screened"}
					}
					return guardrail.Decision{Valid: true}
				}),
			},
		},
	})
	ctx := context.Background()

	result := r.Run(ctx, agent.NewState("travel", model.NewUserMessage("book me a flight")))
	require.True(t, result.Interrupted())
	require.Equal(t, int32(1), checks.Load())

	resumed := result.FinalState
	resumed.SetApproval("call-1", agent.Approval{Status: agent.ApprovalApproved})
	result = r.Run(ctx, resumed)

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Equal(t, "Your flight is booked.", result.Output)
	assert.Equal(t, int32(1), checks.Load(), "input guardrails must not re-run on resume")
}

func TestRunAfterToolHookReplacesResult(t *testing.T) {
	calc := &scriptedTool{name: "calculator", result: "raw"}
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "calculator", `{}`),
		textResponse("done"),
	}}
	r, _ := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "calc", Tools: []tool.Tool{calc}}),
		Provider: provider,
		AfterToolExecution: func(ctx context.Context, c model.ToolCall, result any) (any, error) {
			return "replaced", nil
		},
	})

	result := r.Run(context.Background(), agent.NewState("calc", model.NewUserMessage("go")))

	require.True(t, result.Completed(), "result: %+v", result)
	reply := findToolReply(t, result.FinalState.Messages, "call-1")
	assert.Equal(t, "replaced", reply["data"])
}

func TestRunClarificationInterruptAndResume(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{
		toolCallResponse("call-1", "request_user_clarification",
			`{"question":"Which airport?","options":[{"id":"JFK","label":"JFK"},{"id":"EWR","label":"Newark"}]}`),
		textResponse("Booked from JFK."),
	}}
	r, events := newRunner(t, Config{
		Registry:            agent.NewRegistry(&agent.Agent{Name: "travel"}),
		Provider:            provider,
		EnableClarification: true,
	})
	ctx := context.Background()

	result := r.Run(ctx, agent.NewState("travel", model.NewUserMessage("book from the airport")))

	require.True(t, result.Interrupted())
	interruption, ok := result.Interruptions[0].(*agent.ClarificationInterruption)
	require.True(t, ok)
	assert.Equal(t, "Which airport?", interruption.Question)
	require.Len(t, interruption.Options, 2)

	reply := findToolReply(t, result.FinalState.Messages, "call-1")
	assert.Equal(t, "awaiting_clarification", reply["status"])

	resumed := result.FinalState
	resumed.SetClarification(interruption.ClarificationID, "JFK")
	result = r.Run(ctx, resumed)

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Equal(t, "Booked from JFK.", result.Output)
	require.Len(t, events.ofType(event.TypeClarificationProvided), 1)

	reply = findToolReply(t, result.FinalState.Messages, "call-1")
	assert.Equal(t, "clarification_provided", reply["status"])
	assert.Equal(t, "JFK", reply["selected_option"])
}

func TestRunMaxTurnsExceeded(t *testing.T) {
	loop := &scriptedTool{name: "noop"}
	provider := &scriptedProvider{
		always: toolCallResponse("call-x", "noop", `{}`),
	}
	r, _ := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "looper", Tools: []tool.Tool{loop}}),
		Provider: provider,
		MaxTurns: 2,
	})

	result := r.Run(context.Background(), agent.NewState("looper", model.NewUserMessage("go")))

	var maxTurns *agent.MaxTurnsExceededError
	require.ErrorAs(t, result.Err, &maxTurns)
	assert.Equal(t, 2, maxTurns.Turns)
}

func TestRunAgentModelNameWins(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{textResponse("hi")}}
	r, _ := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{
			Name:  "pinned",
			Model: agent.ModelConfig{Name: "agent-model"},
		}),
		Provider: provider,
		Model:    "run-model",
	})

	result := r.Run(context.Background(), agent.NewState("pinned", model.NewUserMessage("hi")))

	require.True(t, result.Completed())
	require.Len(t, provider.requests, 1)
	assert.Equal(t, "agent-model", provider.requests[0].Model)
}

func TestRunStreamEndsWithResult(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{textResponse("done")}}
	r, _ := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "a"}),
		Provider: provider,
	})

	var streamed int
	var last *event.Event
	stream := r.RunStream(context.Background(), agent.NewState("a", model.NewUserMessage("hi")),
		WithStreamHandler(func(e *event.Event) any {
			streamed++
			return nil
		}))
	for e := range stream {
		last = e
	}

	assert.Positive(t, streamed)
	require.NotNil(t, last)
	require.Equal(t, event.TypeRunEnd, last.Type)
	result := last.Data.(*event.RunEndData).Result
	require.NotNil(t, result)
	assert.Equal(t, "done", result.Output)
}

// streamingProvider serves canned chunks, falling back to a plain completion.
type streamingProvider struct {
	chunks   []model.Chunk
	fallback *model.Response
}

func (p *streamingProvider) Info() model.Info { return model.Info{Name: "streaming"} }

func (p *streamingProvider) Complete(ctx context.Context, request *model.Request) (*model.Response, error) {
	if p.fallback != nil {
		return p.fallback, nil
	}
	return nil, errors.New("no fallback configured")
}

func (p *streamingProvider) Stream(ctx context.Context, request *model.Request) (<-chan model.Chunk, error) {
	out := make(chan model.Chunk, len(p.chunks))
	for _, c := range p.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func TestRunStreamingEmitsPartialsOnly(t *testing.T) {
	provider := &streamingProvider{chunks: []model.Chunk{
		{Delta: "4"},
		{Delta: "2"},
		{Done: true, FinishReason: "stop"},
	}}
	r, events := newRunner(t, Config{
		Registry:  agent.NewRegistry(&agent.Agent{Name: "calc"}),
		Provider:  provider,
		Streaming: true,
	})

	result := r.Run(context.Background(), agent.NewState("calc", model.NewUserMessage("15+27?")))

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Equal(t, "42", result.Output)

	assistant := events.ofType(event.TypeAssistantMessage)
	require.NotEmpty(t, assistant)
	for _, e := range assistant {
		assert.True(t, e.Data.(*event.AssistantMessageData).Partial,
			"a streamed reply must not be re-emitted whole")
	}
}

func TestRunStreamingFallsBackToCompletion(t *testing.T) {
	provider := &streamingProvider{
		chunks: []model.Chunk{
			{Delta: "4"},
			{Err: errors.New("stream broke")},
		},
		fallback: textResponse("fallback answer"),
	}
	r, events := newRunner(t, Config{
		Registry:  agent.NewRegistry(&agent.Agent{Name: "calc"}),
		Provider:  provider,
		Streaming: true,
	})

	result := r.Run(context.Background(), agent.NewState("calc", model.NewUserMessage("15+27?")))

	require.True(t, result.Completed(), "result: %+v", result)
	assert.Equal(t, "fallback answer", result.Output)

	// Partial output is discarded from the state; the fallback reply is
	// announced whole.
	var whole int
	for _, e := range events.ofType(event.TypeAssistantMessage) {
		if !e.Data.(*event.AssistantMessageData).Partial {
			whole++
		}
	}
	assert.Equal(t, 1, whole)
	last := result.FinalState.Messages[len(result.FinalState.Messages)-1]
	assert.Equal(t, "fallback answer", last.Content)
}

func TestRunUnknownAgent(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{textResponse("hi")}}
	r, _ := newRunner(t, Config{
		Registry: agent.NewRegistry(&agent.Agent{Name: "a"}),
		Provider: provider,
	})

	result := r.Run(context.Background(), agent.NewState("ghost", model.NewUserMessage("hi")))

	var notFound *agent.AgentNotFoundError
	require.ErrorAs(t, result.Err, &notFound)
}

// findToolReply decodes the reply envelope for the given tool call ID.
func findToolReply(t *testing.T, messages []model.Message, toolID string) map[string]any {
	t.Helper()
	for _, m := range messages {
		if m.Role == model.RoleTool && m.ToolID == toolID {
			var envelope map[string]any
			require.NoError(t, json.Unmarshal([]byte(m.Content), &envelope))
			return envelope
		}
	}
	require.Fail(t, fmt.Sprintf("no tool reply for %s", toolID))
	return nil
}
