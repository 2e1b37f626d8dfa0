//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package agent

import "github.com/flowgent/flowgent/model"

// Interruption is a first-class pause outcome. The engine returns control to
// the caller, who resumes the run after recording an approval or a
// clarification selection on the state.
type Interruption interface {
	isInterruption()
}

// ToolApprovalInterruption pauses the run until a human approves or rejects
// the tool call.
type ToolApprovalInterruption struct {
	// ToolCall is the pending call awaiting a decision.
	ToolCall model.ToolCall `json:"tool_call"`
	// AgentName is the agent that requested the call.
	AgentName string `json:"agent"`
	// RunID identifies the interrupted run.
	RunID RunID `json:"run_id"`
}

func (*ToolApprovalInterruption) isInterruption() {}

// ClarificationOption is one selectable answer to a clarification question.
type ClarificationOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ClarificationInterruption pauses the run until the user selects one of the
// offered options.
type ClarificationInterruption struct {
	ClarificationID string                `json:"clarification_id"`
	Question        string                `json:"question"`
	Options         []ClarificationOption `json:"options"`
	Context         map[string]any        `json:"context,omitempty"`
}

func (*ClarificationInterruption) isInterruption() {}

// Result is the terminal outcome of a run. Exactly one of the three outcome
// shapes holds:
//
//   - Completed: Err is nil and Interruptions is empty; Output carries the
//     final output (decoded per the agent's output schema when one is set,
//     raw text otherwise).
//   - Interrupted: Interruptions is non-empty.
//   - Error: Err is non-nil.
//
// FinalState always reflects every message produced up to the terminal
// condition so callers can render the partial conversation faithfully.
type Result struct {
	FinalState    *State
	Output        any
	Interruptions []Interruption
	Err           error
}

// Completed reports whether the run finished with a final output.
func (r *Result) Completed() bool {
	return r.Err == nil && len(r.Interruptions) == 0
}

// Interrupted reports whether the run paused awaiting caller input.
func (r *Result) Interrupted() bool {
	return len(r.Interruptions) > 0
}
