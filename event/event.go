//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package event provides the trace event system for agent runs.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/model"
)

// Type identifies the kind of a trace event.
type Type string

// Trace event types, in the order the engine produces them.
const (
	TypeRunStart               Type = "run_start"
	TypeTurnStart              Type = "turn_start"
	TypeLLMCallStart           Type = "llm_call_start"
	TypeLLMCallEnd             Type = "llm_call_end"
	TypeTokenUsage             Type = "token_usage"
	TypeToolRequests           Type = "tool_requests"
	TypeBeforeToolExecution    Type = "before_tool_execution"
	TypeToolCallStart          Type = "tool_call_start"
	TypeToolCallEnd            Type = "tool_call_end"
	TypeToolResultsToLLM       Type = "tool_results_to_llm"
	TypeAssistantMessage       Type = "assistant_message"
	TypeAgentProcessing        Type = "agent_processing"
	TypeHandoff                Type = "handoff"
	TypeHandoffDenied          Type = "handoff_denied"
	TypeClarificationRequested Type = "clarification_requested"
	TypeClarificationProvided  Type = "clarification_provided"
	TypeGuardrailCheck         Type = "guardrail_check"
	TypeGuardrailViolation     Type = "guardrail_violation"
	TypeMemoryOperation        Type = "memory_operation"
	TypeOutputParse            Type = "output_parse"
	TypeDecodeError            Type = "decode_error"
	TypeFinalOutput            Type = "final_output"
	TypeTurnEnd                Type = "turn_end"
	TypeRunEnd                 Type = "run_end"
)

// Event is one entry of a run's trace. Events for a single run are emitted
// in the exact order the engine produces them.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// RunID is the run this event belongs to.
	RunID string `json:"run_id"`

	// Type is the event type.
	Type Type `json:"type"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`

	// Data is the typed payload; its concrete type is determined by Type.
	Data any `json:"data,omitempty"`
}

// New creates a new Event with a generated ID and timestamp.
func New(runID string, t Type, data any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		RunID:     runID,
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Handler observes trace events. It is invoked synchronously in emission
// order. A non-nil return value from a before_tool_execution event replaces
// the tool arguments; returns are ignored for every other event type.
type Handler func(*Event) any

// RunStartData is the payload of run_start.
type RunStartData struct {
	AgentName string `json:"agent_name"`
	TraceID   string `json:"trace_id"`
}

// TurnStartData is the payload of turn_start.
type TurnStartData struct {
	Turn      int    `json:"turn"`
	AgentName string `json:"agent_name"`
}

// LLMCallStartData is the payload of llm_call_start.
type LLMCallStartData struct {
	Model        string `json:"model,omitempty"`
	AgentName    string `json:"agent_name"`
	MessageCount int    `json:"message_count"`
	Streaming    bool   `json:"streaming,omitempty"`
}

// LLMCallEndData is the payload of llm_call_end.
type LLMCallEndData struct {
	Model    string        `json:"model,omitempty"`
	Usage    *model.Usage  `json:"usage,omitempty"`
	Cost     *float64      `json:"cost,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TokenUsageData is the payload of token_usage.
type TokenUsageData struct {
	Usage model.Usage `json:"usage"`
}

// ToolRequestsData is the payload of tool_requests.
type ToolRequestsData struct {
	Calls []model.ToolCall `json:"calls"`
}

// BeforeToolExecutionData is the payload of before_tool_execution. A non-nil
// handler return for this event replaces Arguments for the execution.
type BeforeToolExecutionData struct {
	Call      model.ToolCall `json:"call"`
	Arguments []byte         `json:"arguments"`
}

// ToolCallStartData is the payload of tool_call_start.
type ToolCallStartData struct {
	Call      model.ToolCall `json:"call"`
	Arguments []byte         `json:"arguments"`
}

// ToolCallEndData is the payload of tool_call_end. Envelope is the canonical
// JSON reply produced by the dispatcher, including halted placeholders so
// consumers can render pending interruptions.
type ToolCallEndData struct {
	ToolCallID string        `json:"tool_call_id"`
	ToolName   string        `json:"tool_name"`
	Status     string        `json:"status"`
	Envelope   string        `json:"envelope"`
	Duration   time.Duration `json:"duration"`
	IsError    bool          `json:"is_error,omitempty"`
}

// ToolResultsToLLMData is the payload of tool_results_to_llm.
type ToolResultsToLLMData struct {
	Messages []model.Message `json:"messages"`
}

// AssistantMessageData is the payload of assistant_message. Partial marks
// in-flight snapshots produced during streaming aggregation.
type AssistantMessageData struct {
	Message model.Message `json:"message"`
	Partial bool          `json:"partial,omitempty"`
}

// AgentProcessingData is the payload of agent_processing.
type AgentProcessingData struct {
	AgentName string `json:"agent_name"`
}

// HandoffData is the payload of handoff.
type HandoffData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HandoffDeniedData is the payload of handoff_denied.
type HandoffDeniedData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// ClarificationRequestedData is the payload of clarification_requested.
type ClarificationRequestedData struct {
	ClarificationID string                      `json:"clarification_id"`
	Question        string                      `json:"question"`
	Options         []agent.ClarificationOption `json:"options"`
}

// ClarificationProvidedData is the payload of clarification_provided.
type ClarificationProvidedData struct {
	ClarificationID string `json:"clarification_id"`
	SelectedOption  string `json:"selected_option"`
}

// Guardrail stages.
const (
	GuardrailStageInput  = "input"
	GuardrailStageOutput = "output"
)

// GuardrailCheckData is the payload of guardrail_check.
type GuardrailCheckData struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
	Mode  string `json:"mode"`
}

// GuardrailViolationData is the payload of guardrail_violation.
type GuardrailViolationData struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// MemoryOperationData is the payload of memory_operation.
type MemoryOperationData struct {
	Operation      string `json:"operation"`
	ConversationID string `json:"conversation_id"`
	MessageCount   int    `json:"message_count,omitempty"`
	Error          string `json:"error,omitempty"`
}

// OutputParseData is the payload of output_parse.
type OutputParseData struct {
	Raw string `json:"raw"`
}

// DecodeErrorData is the payload of decode_error.
type DecodeErrorData struct {
	Issues []string `json:"issues"`
}

// FinalOutputData is the payload of final_output.
type FinalOutputData struct {
	Output any `json:"output"`
}

// TurnEndData is the payload of turn_end.
type TurnEndData struct {
	Turn      int    `json:"turn"`
	AgentName string `json:"agent_name"`
}

// RunEndData is the payload of run_end. Result carries the full run result
// so stream consumers receive the terminal outcome in-band.
type RunEndData struct {
	Result *agent.Result `json:"result"`
}
