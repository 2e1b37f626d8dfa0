//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"github.com/google/uuid"

	"github.com/flowgent/flowgent/model"
)

// RunID identifies a single invocation of the engine.
type RunID string

// TraceID spans a logically grouped sequence of runs. Resumed interruptions
// share a trace.
type TraceID string

// ApprovalStatus is the status of a human approval decision.
type ApprovalStatus string

// Approval status constants.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is a human decision about a pending tool call. AdditionalContext,
// if present on an approved call, is merged into the run context for that
// single tool execution.
type Approval struct {
	Status            ApprovalStatus `json:"status"`
	AdditionalContext map[string]any `json:"additional_context,omitempty"`
}

// State is the per-step snapshot of a run. The engine treats it as immutable:
// each step clones the state and produces a new one.
type State struct {
	// RunID identifies this run.
	RunID RunID `json:"run_id"`

	// TraceID groups this run with the runs it resumes or is resumed by.
	TraceID TraceID `json:"trace_id"`

	// Messages is the conversation so far. Append-only within a step except
	// for the sweep that replaces superseded halted placeholders.
	Messages []model.Message `json:"messages"`

	// CurrentAgent names the agent driving the conversation.
	CurrentAgent string `json:"current_agent"`

	// Context is the caller-supplied run context passed to tools.
	Context map[string]any `json:"context,omitempty"`

	// TurnCount is the number of turns consumed so far. Monotonically
	// non-decreasing.
	TurnCount int `json:"turn_count"`

	// Approvals maps tool call IDs to human approval decisions.
	Approvals map[string]Approval `json:"approvals,omitempty"`

	// Clarifications maps clarification IDs to the selected option ID.
	Clarifications map[string]string `json:"clarifications,omitempty"`
}

// NewState creates a fresh run state for the given agent with new run and
// trace IDs.
func NewState(agentName string, messages ...model.Message) *State {
	return &State{
		RunID:          RunID("run-" + uuid.New().String()),
		TraceID:        TraceID("trace-" + uuid.New().String()),
		Messages:       messages,
		CurrentAgent:   agentName,
		Context:        make(map[string]any),
		Approvals:      make(map[string]Approval),
		Clarifications: make(map[string]string),
	}
}

// Clone creates a deep copy of the state. Maps are copied so the clone can be
// mutated without affecting the original.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Messages = make([]model.Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	clone.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		clone.Context[k] = v
	}
	clone.Approvals = make(map[string]Approval, len(s.Approvals))
	for k, v := range s.Approvals {
		clone.Approvals[k] = v
	}
	clone.Clarifications = make(map[string]string, len(s.Clarifications))
	for k, v := range s.Clarifications {
		clone.Clarifications[k] = v
	}
	return &clone
}

// SetApproval records a human approval decision for a tool call and returns
// the state for chaining. Used by callers when resuming an interrupted run.
func (s *State) SetApproval(toolCallID string, approval Approval) *State {
	if s.Approvals == nil {
		s.Approvals = make(map[string]Approval)
	}
	s.Approvals[toolCallID] = approval
	return s
}

// SetClarification records the option selected for a clarification and
// returns the state for chaining.
func (s *State) SetClarification(clarificationID, optionID string) *State {
	if s.Clarifications == nil {
		s.Clarifications = make(map[string]string)
	}
	s.Clarifications[clarificationID] = optionID
	return s
}

// LastMessage returns the last message, or a zero message when empty.
func (s *State) LastMessage() (model.Message, bool) {
	if len(s.Messages) == 0 {
		return model.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
