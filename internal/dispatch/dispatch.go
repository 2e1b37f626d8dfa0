//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package dispatch executes the tool calls requested by a model response. It
// validates arguments, enforces human approval gates, detects clarification
// and handoff markers, and renders every outcome as a canonical JSON reply
// envelope so the model always sees one reply per requested call.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/codes"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/event"
	itelemetry "github.com/flowgent/flowgent/internal/telemetry"
	"github.com/flowgent/flowgent/log"
	"github.com/flowgent/flowgent/model"
	"github.com/flowgent/flowgent/telemetry/trace"
	"github.com/flowgent/flowgent/tool"
)

// Reply envelope statuses.
const (
	StatusExecuted              = "executed"
	StatusApprovedAndExecuted   = "approved_and_executed"
	StatusApprovalDenied        = "approval_denied"
	StatusValidationError       = "validation_error"
	StatusExecutionError        = "execution_error"
	StatusToolNotFound          = "tool_not_found"
	StatusHalted                = "halted"
	StatusAwaitingClarification = "awaiting_clarification"
	StatusClarificationProvided = "clarification_provided"
)

// Marker keys scanned in tool results.
const (
	clarificationTriggerKey = "_clarification_trigger"
	handoffMarkerKey        = "handoff_to"
)

// Handoff is a requested agent transfer extracted from a tool result.
type Handoff struct {
	Target string
	Reason string
}

// Outcome is the merged result of dispatching one batch of tool calls.
type Outcome struct {
	// Messages are the tool replies to append to the conversation, one per
	// non-halted call, in request order.
	Messages []model.Message

	// Halted are storage-only placeholder replies for calls awaiting
	// approval. They are persisted but never replayed to the model.
	Halted []model.Message

	// Interruptions collects every pause raised by this batch.
	Interruptions []agent.Interruption

	// Handoff is the first approved agent transfer, if any.
	Handoff *Handoff

	// HandoffDenied is set when a tool requested a transfer outside the
	// agent's allowed set. Fatal to the run.
	HandoffDenied *Handoff
}

// Interrupted reports whether the batch raised at least one interruption.
func (o *Outcome) Interrupted() bool { return len(o.Interruptions) > 0 }

// Params carries one batch of tool calls to dispatch.
type Params struct {
	// Agent is the agent that requested the calls.
	Agent *agent.Agent

	// State is the current run state; consulted for approvals and context.
	State *agent.State

	// Tools resolves tool names for this batch, including injected built-ins.
	Tools map[string]tool.Tool

	// Calls are the requested tool calls in model order.
	Calls []model.ToolCall

	// After, when set, runs after each successful execution with the call
	// and its result. A non-nil return replaces the result before the reply
	// envelope is rendered; hook errors and panics are logged and swallowed.
	After func(ctx context.Context, call model.ToolCall, result any) (any, error)
}

// Dispatcher executes tool call batches on a shared worker pool.
type Dispatcher struct {
	pool *ants.Pool
	emit func(*event.Event) any
}

// New creates a dispatcher. poolSize bounds concurrent tool executions; a
// non-positive size falls back to unbounded goroutines. emit delivers trace
// events synchronously and returns the handler's value, which replaces the
// tool arguments for before_tool_execution events.
func New(poolSize int, emit func(*event.Event) any) (*Dispatcher, error) {
	d := &Dispatcher{emit: emit}
	if d.emit == nil {
		d.emit = func(*event.Event) any { return nil }
	}
	if poolSize > 0 {
		pool, err := ants.NewPool(poolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create tool worker pool: %w", err)
		}
		d.pool = pool
	}
	return d, nil
}

// Release frees the worker pool.
func (d *Dispatcher) Release() {
	if d.pool != nil {
		d.pool.Release()
	}
}

// callState tracks one call through the dispatch phases.
type callState struct {
	call model.ToolCall
	args []byte
	tool tool.Tool

	status   string
	data     any
	issues   []string
	errText  string
	approved bool
	duration time.Duration

	// set during interpretation
	halted        bool
	interruption  agent.Interruption
	handoff       *Handoff
	handoffDenied *Handoff
	clarification *clarificationRequest
}

type clarificationRequest struct {
	ClarificationID string                      `json:"clarification_id"`
	Question        string                      `json:"question"`
	Options         []agent.ClarificationOption `json:"options"`
	Context         string                      `json:"context,omitempty"`
}

// Dispatch runs one batch of tool calls. Gate checks and events happen
// sequentially in request order; the executions themselves run in parallel
// on the worker pool. Replies are merged back in request order.
func (d *Dispatcher) Dispatch(ctx context.Context, params Params) *Outcome {
	runID := string(params.State.RunID)
	states := make([]*callState, len(params.Calls))

	// Phase 1: argument hooks and gate checks, in request order.
	for i, call := range params.Calls {
		states[i] = d.prepare(ctx, params, call)
	}

	// Phase 2: execute the calls that passed the gates, in parallel.
	d.execute(ctx, params, states)

	// Phase 3: interpret results and render envelopes, in request order.
	out := &Outcome{}
	for _, cs := range states {
		d.interpret(params, cs)
		d.applyAfterHook(ctx, params, cs)
		envelope := cs.envelope()
		reply := model.NewToolMessage(cs.call.ID, cs.call.Function.Name, envelope)

		if cs.halted {
			out.Halted = append(out.Halted, reply)
		} else {
			out.Messages = append(out.Messages, reply)
		}
		if cs.interruption != nil {
			out.Interruptions = append(out.Interruptions, cs.interruption)
		}
		if cs.handoff != nil && out.Handoff == nil {
			out.Handoff = cs.handoff
		}
		if cs.handoffDenied != nil && out.HandoffDenied == nil {
			out.HandoffDenied = cs.handoffDenied
		}
		if cs.clarification != nil {
			d.emit(event.New(runID, event.TypeClarificationRequested, &event.ClarificationRequestedData{
				ClarificationID: cs.clarification.ClarificationID,
				Question:        cs.clarification.Question,
				Options:         cs.clarification.Options,
			}))
		}

		d.emit(event.New(runID, event.TypeToolCallEnd, &event.ToolCallEndData{
			ToolCallID: cs.call.ID,
			ToolName:   cs.call.Function.Name,
			Status:     cs.status,
			Envelope:   envelope,
			Duration:   cs.duration,
			IsError:    cs.isError(),
		}))
	}
	return out
}

// prepare runs the pre-execution pipeline for one call: the argument hook,
// tool lookup, schema validation and the approval gate.
func (d *Dispatcher) prepare(ctx context.Context, params Params, call model.ToolCall) *callState {
	runID := string(params.State.RunID)
	cs := &callState{call: call, args: call.Function.Arguments}

	// The before hook may replace the arguments.
	if replaced := d.emit(event.New(runID, event.TypeBeforeToolExecution, &event.BeforeToolExecutionData{
		Call:      call,
		Arguments: cs.args,
	})); replaced != nil {
		switch v := replaced.(type) {
		case []byte:
			cs.args = v
		case string:
			cs.args = []byte(v)
		default:
			if bts, err := json.Marshal(v); err == nil {
				cs.args = bts
			}
		}
	}

	d.emit(event.New(runID, event.TypeToolCallStart, &event.ToolCallStartData{
		Call:      call,
		Arguments: cs.args,
	}))

	t, ok := params.Tools[call.Function.Name]
	if !ok {
		cs.status = StatusToolNotFound
		cs.errText = fmt.Sprintf("tool %q is not available", call.Function.Name)
		return cs
	}
	cs.tool = t

	if schema := t.Declaration().InputSchema; schema != nil {
		if issues := schema.Validate(cs.args); len(issues) > 0 {
			cs.status = StatusValidationError
			cs.issues = issues
			return cs
		}
	}

	requirer, gated := t.(tool.ApprovalRequirer)
	if !gated || !requirer.NeedsApproval(ctx, cs.args) {
		return cs
	}
	approval, decided := params.State.Approvals[call.ID]
	if !decided || approval.Status == agent.ApprovalPending {
		cs.status = StatusHalted
		cs.halted = true
		cs.interruption = &agent.ToolApprovalInterruption{
			ToolCall:  call,
			AgentName: params.Agent.Name,
			RunID:     params.State.RunID,
		}
		return cs
	}
	if approval.Status == agent.ApprovalRejected {
		cs.status = StatusApprovalDenied
		cs.errText = rejectionReason(approval)
		return cs
	}
	cs.approved = true
	return cs
}

// execute runs every still-undecided call on the worker pool and waits for
// the batch to drain. Panics inside a tool become execution errors.
func (d *Dispatcher) execute(ctx context.Context, params Params, states []*callState) {
	var wg sync.WaitGroup
	for _, cs := range states {
		if cs.status != "" {
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			d.executeOne(ctx, params, cs)
		}
		if d.pool != nil {
			if err := d.pool.Submit(task); err != nil {
				// Pool saturated or released; run inline rather than drop.
				task()
			}
		} else {
			go task()
		}
	}
	wg.Wait()
}

func (d *Dispatcher) executeOne(ctx context.Context, params Params, cs *callState) {
	start := time.Now()
	defer func() {
		cs.duration = time.Since(start)
		if r := recover(); r != nil {
			log.Errorf("Tool %s panicked: %v", cs.call.Function.Name, r)
			cs.status = StatusExecutionError
			cs.errText = fmt.Sprintf("tool panicked: %v", r)
		}
	}()

	callable, ok := cs.tool.(tool.CallableTool)
	if !ok {
		cs.status = StatusExecutionError
		cs.errText = fmt.Sprintf("tool %q is not callable", cs.call.Function.Name)
		return
	}

	callCtx := ctx
	runContext := params.State.Context
	if cs.approved {
		if approval, ok := params.State.Approvals[cs.call.ID]; ok && len(approval.AdditionalContext) > 0 {
			merged := make(map[string]any, len(runContext)+len(approval.AdditionalContext))
			for k, v := range runContext {
				merged[k] = v
			}
			for k, v := range approval.AdditionalContext {
				merged[k] = v
			}
			runContext = merged
		}
	}
	callCtx = agent.WithRunContext(callCtx, runContext)

	spanCtx, span := trace.Tracer.Start(callCtx,
		itelemetry.SpanNamePrefixExecuteTool+" "+cs.call.Function.Name)
	defer span.End()

	data, err := callable.Call(spanCtx, cs.args)
	if err != nil {
		cs.status = StatusExecutionError
		cs.errText = err.Error()
		span.SetStatus(codes.Error, err.Error())
	} else {
		cs.data = data
		if cs.approved {
			cs.status = StatusApprovedAndExecuted
		} else {
			cs.status = StatusExecuted
		}
	}
	itelemetry.TraceToolCall(span, cs.tool.Declaration(), cs.call.ID, cs.args, cs.status, cs.errText)
}

// applyAfterHook offers the result of a successful execution to the
// configured hook. The hook must never fail the call: errors and panics are
// logged and the original result stands.
func (d *Dispatcher) applyAfterHook(ctx context.Context, params Params, cs *callState) {
	if params.After == nil {
		return
	}
	if cs.status != StatusExecuted && cs.status != StatusApprovedAndExecuted {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("After-tool hook panicked for %s: %v", cs.call.Function.Name, r)
		}
	}()
	replaced, err := params.After(ctx, cs.call, cs.data)
	if err != nil {
		log.Warnf("After-tool hook failed for %s: %v", cs.call.Function.Name, err)
		return
	}
	if replaced != nil {
		cs.data = replaced
	}
}

// interpret scans a successful result for clarification and handoff markers.
func (d *Dispatcher) interpret(params Params, cs *callState) {
	if cs.status != StatusExecuted && cs.status != StatusApprovedAndExecuted {
		return
	}
	raw, err := json.Marshal(cs.data)
	if err != nil {
		return
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return
	}

	if trigger, ok := probe[clarificationTriggerKey]; ok && string(trigger) == "true" {
		var req clarificationRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			log.Warnf("Malformed clarification result from tool %s: %v", cs.call.Function.Name, err)
			return
		}
		cs.status = StatusAwaitingClarification
		cs.clarification = &req
		interruption := &agent.ClarificationInterruption{
			ClarificationID: req.ClarificationID,
			Question:        req.Question,
			Options:         req.Options,
		}
		if req.Context != "" {
			interruption.Context = map[string]any{"context": req.Context}
		}
		cs.interruption = interruption
		return
	}

	if rawTarget, ok := probe[handoffMarkerKey]; ok {
		var target string
		if err := json.Unmarshal(rawTarget, &target); err != nil || target == "" {
			return
		}
		var reason string
		if rawReason, ok := probe["reason"]; ok {
			_ = json.Unmarshal(rawReason, &reason)
		}
		if !params.Agent.CanHandoffTo(target) {
			cs.status = StatusExecutionError
			cs.data = nil
			cs.errText = fmt.Sprintf("agent %q is not allowed to hand off to %q", params.Agent.Name, target)
			cs.handoffDenied = &Handoff{Target: target, Reason: cs.errText}
			d.emit(event.New(string(params.State.RunID), event.TypeHandoffDenied, &event.HandoffDeniedData{
				From:   params.Agent.Name,
				To:     target,
				Reason: cs.errText,
			}))
			return
		}
		cs.handoff = &Handoff{Target: target, Reason: reason}
	}
}

// envelope renders the canonical JSON reply for the call's terminal status.
func (cs *callState) envelope() string {
	fields := map[string]any{"status": cs.status}
	switch cs.status {
	case StatusExecuted, StatusApprovedAndExecuted:
		fields["data"] = cs.data
	case StatusApprovalDenied:
		fields["rejection_reason"] = cs.errText
	case StatusValidationError:
		fields["issues"] = cs.issues
	case StatusExecutionError, StatusToolNotFound:
		fields["error"] = cs.errText
	case StatusHalted:
		fields["reason"] = "awaiting human approval"
	case StatusAwaitingClarification:
		fields["clarification_id"] = cs.clarification.ClarificationID
		fields["question"] = cs.clarification.Question
		fields["options"] = cs.clarification.Options
	}
	bts, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, cs.status)
	}
	return string(bts)
}

func (cs *callState) isError() bool {
	switch cs.status {
	case StatusValidationError, StatusExecutionError, StatusToolNotFound, StatusApprovalDenied:
		return true
	}
	return false
}

func rejectionReason(approval agent.Approval) string {
	for _, key := range []string{"rejectionReason", "reason"} {
		if reason, ok := approval.AdditionalContext[key].(string); ok && reason != "" {
			return reason
		}
	}
	return "the user declined to approve this tool call"
}

// ClarificationReply renders the envelope that replaces an
// awaiting_clarification placeholder once the user has selected an option.
func ClarificationReply(clarificationID, selectedOption string) string {
	bts, _ := json.Marshal(map[string]any{
		"status":           StatusClarificationProvided,
		"clarification_id": clarificationID,
		"selected_option":  selectedOption,
	})
	return string(bts)
}

// PendingToolCalls returns the calls of the trailing assistant message that
// have no tool reply yet, in call order. Resuming an interrupted run re-enters
// dispatch with exactly these calls.
func PendingToolCalls(messages []model.Message) []model.ToolCall {
	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant && len(messages[i].ToolCalls) > 0 {
			last = i
			break
		}
		if messages[i].Role != model.RoleTool {
			return nil
		}
	}
	if last < 0 {
		return nil
	}
	answered := make(map[string]bool)
	for _, m := range messages[last+1:] {
		if m.Role == model.RoleTool {
			answered[m.ToolID] = true
		}
	}
	var pending []model.ToolCall
	for _, call := range messages[last].ToolCalls {
		if !answered[call.ID] {
			pending = append(pending, call)
		}
	}
	return pending
}
