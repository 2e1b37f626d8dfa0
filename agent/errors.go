//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"fmt"
	"strings"
)

// MaxTurnsExceededError reports that the turn loop hit its bound.
type MaxTurnsExceededError struct {
	Turns int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("max turns exceeded: %d", e.Turns)
}

// ModelBehaviorError reports that the provider returned neither content nor
// tool calls, or failed outright. Fatal to the run.
type ModelBehaviorError struct {
	Detail string
}

func (e *ModelBehaviorError) Error() string {
	return "model behavior error: " + e.Detail
}

// DecodeError reports that the final content did not conform to the agent's
// declared output schema.
type DecodeError struct {
	Issues []string
}

func (e *DecodeError) Error() string {
	return "output decode error: " + strings.Join(e.Issues, "; ")
}

// InputGuardrailError reports an input guardrail violation.
type InputGuardrailError struct {
	Reason string
}

func (e *InputGuardrailError) Error() string {
	return "input guardrail tripwire: " + e.Reason
}

// OutputGuardrailError reports an output guardrail violation.
type OutputGuardrailError struct {
	Reason string
}

func (e *OutputGuardrailError) Error() string {
	return "output guardrail tripwire: " + e.Reason
}

// ToolCallError reports a catastrophic dispatcher failure. Ordinary tool
// execution errors never surface here; they become tool-reply messages with
// an execution_error status and the loop continues.
type ToolCallError struct {
	Tool   string
	Detail string
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool call %s failed: %s", e.Tool, e.Detail)
}

// HandoffError reports a handoff to a target outside the agent's allowed set.
type HandoffError struct {
	Detail string
}

func (e *HandoffError) Error() string {
	return "handoff error: " + e.Detail
}

// AgentNotFoundError reports a registry miss.
type AgentNotFoundError struct {
	AgentName string
}

func (e *AgentNotFoundError) Error() string {
	return "agent not found: " + e.AgentName
}
