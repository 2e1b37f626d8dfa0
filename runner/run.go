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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/event"
	"github.com/flowgent/flowgent/guardrail"
	"github.com/flowgent/flowgent/internal/dispatch"
	itelemetry "github.com/flowgent/flowgent/internal/telemetry"
	"github.com/flowgent/flowgent/log"
	"github.com/flowgent/flowgent/memory"
	"github.com/flowgent/flowgent/model"
	"github.com/flowgent/flowgent/telemetry/trace"
)

type emitFn func(*event.Event) any

// run is the per-invocation engine state.
type run struct {
	runner     *Runner
	state      *agent.State
	emit       emitFn
	broker     *memory.Broker
	dispatcher *dispatch.Dispatcher

	// partialsEmitted records whether the current model call streamed
	// partial assistant messages.
	partialsEmitted bool
}

// execute drives one run to a terminal outcome. The input state is cloned;
// the result's FinalState reflects everything produced up to the terminal
// condition.
func (r *Runner) execute(ctx context.Context, input *agent.State, emit emitFn) (result *agent.Result) {
	state := input.Clone()
	if state == nil {
		return &agent.Result{Err: fmt.Errorf("run state must not be nil")}
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Run %s panicked: %v", state.RunID, rec)
			result = &agent.Result{
				FinalState: state,
				Err:        &agent.ModelBehaviorError{Detail: fmt.Sprintf("engine panic: %v", rec)},
			}
		}
	}()

	dispatcher, err := dispatch.New(r.cfg.ToolPoolSize, emit)
	if err != nil {
		return &agent.Result{FinalState: state, Err: err}
	}
	defer dispatcher.Release()

	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameRun)
	defer span.End()

	rn := &run{
		runner:     r,
		state:      state,
		emit:       emit,
		broker:     memory.NewBroker(r.cfg.Memory),
		dispatcher: dispatcher,
	}

	emit(event.New(string(state.RunID), event.TypeRunStart, &event.RunStartData{
		AgentName: state.CurrentAgent,
		TraceID:   string(state.TraceID),
	}))

	rn.loadMemory(ctx)
	rn.loadDecisions(ctx)

	result = rn.loop(ctx)
	result.FinalState = state
	if result.Err != nil {
		span.SetStatus(codes.Error, result.Err.Error())
	}
	emit(event.New(string(state.RunID), event.TypeRunEnd, &event.RunEndData{Result: result}))
	return result
}

// loadMemory merges the persisted conversation into the state.
func (rn *run) loadMemory(ctx context.Context) {
	if !rn.broker.Enabled() {
		return
	}
	loaded := rn.broker.Load(ctx, rn.state)
	rn.emit(event.New(string(rn.state.RunID), event.TypeMemoryOperation, &event.MemoryOperationData{
		Operation:      "load",
		ConversationID: rn.broker.ConversationID(),
		MessageCount:   loaded,
	}))
}

// loadDecisions rehydrates approvals and clarification selections persisted
// for this run. Decisions already present on the state win.
func (rn *run) loadDecisions(ctx context.Context) {
	runID := string(rn.state.RunID)
	if store := rn.runner.cfg.ApprovalStore; store != nil {
		approvals, err := store.GetRunApprovals(ctx, runID)
		if err != nil {
			log.Warnf("Failed to load approvals for run %s: %v", runID, err)
		}
		for id, approval := range approvals {
			if _, exists := rn.state.Approvals[id]; !exists {
				rn.state.SetApproval(id, approval)
			}
		}
	}
	if store := rn.runner.cfg.ClarificationStore; store != nil {
		selections, err := store.GetRunClarifications(ctx, runID)
		if err != nil {
			log.Warnf("Failed to load clarifications for run %s: %v", runID, err)
		}
		for id, optionID := range selections {
			if _, exists := rn.state.Clarifications[id]; !exists {
				rn.state.SetClarification(id, optionID)
			}
		}
	}
}

// loop is the turn loop. Every iteration consumes a turn: either a pending
// tool-call resume round or a model round.
func (rn *run) loop(ctx context.Context) *agent.Result {
	runID := string(rn.state.RunID)

	if interruption := rn.resumeClarifications(); interruption != nil {
		// An unanswered clarification still blocks the run.
		return &agent.Result{Interruptions: []agent.Interruption{interruption}}
	}

	for {
		if ctx.Err() != nil {
			return &agent.Result{Err: ctx.Err()}
		}
		if rn.state.TurnCount >= rn.runner.maxTurns {
			return &agent.Result{Err: &agent.MaxTurnsExceededError{Turns: rn.state.TurnCount}}
		}
		rn.state.TurnCount++
		turn := rn.state.TurnCount

		ag, ok := rn.runner.cfg.Registry.Lookup(rn.state.CurrentAgent)
		if !ok {
			return &agent.Result{Err: &agent.AgentNotFoundError{AgentName: rn.state.CurrentAgent}}
		}

		rn.emit(event.New(runID, event.TypeAgentProcessing, &event.AgentProcessingData{AgentName: ag.Name}))
		rn.emit(event.New(runID, event.TypeTurnStart, &event.TurnStartData{
			Turn:      turn,
			AgentName: ag.Name,
		}))

		var result *agent.Result
		if pending := dispatch.PendingToolCalls(rn.state.Messages); len(pending) > 0 {
			// Resume round: dispatch the unanswered calls of the trailing
			// assistant message without a fresh model call.
			result = rn.toolRound(ctx, ag, pending)
		} else {
			result = rn.modelRound(ctx, ag, turn)
		}

		rn.emit(event.New(runID, event.TypeTurnEnd, &event.TurnEndData{
			Turn:      turn,
			AgentName: ag.Name,
		}))
		if result != nil {
			return result
		}
	}
}

// resumeClarifications rewrites answered awaiting_clarification placeholders
// into clarification_provided replies. Returns the interruption of the first
// placeholder that is still unanswered, if any.
func (rn *run) resumeClarifications() agent.Interruption {
	runID := string(rn.state.RunID)
	for i, msg := range rn.state.Messages {
		if msg.Role != model.RoleTool {
			continue
		}
		var placeholder struct {
			Status          string                      `json:"status"`
			ClarificationID string                      `json:"clarification_id"`
			Question        string                      `json:"question"`
			Options         []agent.ClarificationOption `json:"options"`
		}
		if err := json.Unmarshal([]byte(msg.Content), &placeholder); err != nil {
			continue
		}
		if placeholder.Status != dispatch.StatusAwaitingClarification {
			continue
		}
		selected, answered := rn.state.Clarifications[placeholder.ClarificationID]
		if !answered {
			return &agent.ClarificationInterruption{
				ClarificationID: placeholder.ClarificationID,
				Question:        placeholder.Question,
				Options:         placeholder.Options,
			}
		}
		rn.state.Messages[i].Content = dispatch.ClarificationReply(placeholder.ClarificationID, selected)
		rn.emit(event.New(runID, event.TypeClarificationProvided, &event.ClarificationProvidedData{
			ClarificationID: placeholder.ClarificationID,
			SelectedOption:  selected,
		}))
	}
	return nil
}

// toolRound dispatches the given calls and merges the outcome. A nil return
// continues the loop.
func (rn *run) toolRound(ctx context.Context, ag *agent.Agent, calls []model.ToolCall) *agent.Result {
	runID := string(rn.state.RunID)
	outcome := rn.dispatcher.Dispatch(ctx, dispatch.Params{
		Agent: ag,
		State: rn.state,
		Tools: rn.runner.resolveTools(ag),
		Calls: calls,
		After: rn.runner.cfg.AfterToolExecution,
	})
	rn.state.Messages = append(rn.state.Messages, outcome.Messages...)

	if outcome.Interrupted() {
		rn.persistInterruption(ctx, outcome)
		return &agent.Result{Interruptions: outcome.Interruptions}
	}
	rn.emit(event.New(runID, event.TypeToolResultsToLLM, &event.ToolResultsToLLMData{
		Messages: outcome.Messages,
	}))
	if outcome.HandoffDenied != nil {
		return &agent.Result{Err: &agent.HandoffError{Detail: outcome.HandoffDenied.Reason}}
	}
	if outcome.Handoff != nil {
		rn.emit(event.New(runID, event.TypeHandoff, &event.HandoffData{
			From: ag.Name,
			To:   outcome.Handoff.Target,
		}))
		rn.state.CurrentAgent = outcome.Handoff.Target
	}
	return nil
}

// modelRound performs one model call and either finalizes the run or feeds
// the requested tool calls to the dispatcher. A nil return continues the loop.
func (rn *run) modelRound(ctx context.Context, ag *agent.Agent, turn int) *agent.Result {
	runID := string(rn.state.RunID)
	provider := rn.runner.cfg.Provider

	modelName := rn.runner.resolveModelName(ag)
	if modelName == "" && !provider.Info().AISDKStyle {
		return &agent.Result{Err: &agent.ModelBehaviorError{
			Detail: fmt.Sprintf("no model name configured for agent %q", ag.Name),
		}}
	}

	tools := rn.runner.resolveTools(ag)
	request := &model.Request{
		Model:            modelName,
		Messages:         rn.requestMessages(ag),
		GenerationConfig: ag.Model.Generation,
		Tools:            tools,
	}

	callModel := func(ctx context.Context) (*model.Response, error) {
		return rn.callModel(ctx, ag, modelName, turn, request)
	}

	var (
		response *model.Response
		err      error
	)
	// Input guardrails screen the very first turn only. Resumed runs enter
	// with a non-zero turn count and are never re-screened.
	grCfg := rn.runner.guardrailConfig(ag)
	executor := guardrail.NewExecutor(grCfg)
	if turn == 1 && grCfg != nil && len(grCfg.Input) > 0 {
		rn.emit(event.New(runID, event.TypeGuardrailCheck, &event.GuardrailCheckData{
			Stage: event.GuardrailStageInput,
			Count: len(grCfg.Input),
			Mode:  executor.Mode(),
		}))
		var violation *guardrail.Violation
		response, violation, err = executor.CheckInputWithModel(ctx, grCfg.Input, rn.lastUserContent(), callModel)
		if violation != nil {
			rn.emit(event.New(runID, event.TypeGuardrailViolation, &event.GuardrailViolationData{
				Stage:  event.GuardrailStageInput,
				Reason: violation.Reason,
			}))
			return &agent.Result{Err: &agent.InputGuardrailError{Reason: violation.Reason}}
		}
	} else {
		response, err = callModel(ctx)
	}

	if err != nil {
		return &agent.Result{Err: &agent.ModelBehaviorError{Detail: err.Error()}}
	}
	if response.IsEmpty() {
		return &agent.Result{Err: &agent.ModelBehaviorError{
			Detail: "model returned neither content nor tool calls",
		}}
	}

	rn.state.Messages = append(rn.state.Messages, response.Message)
	if !rn.partialsEmitted {
		rn.emit(event.New(runID, event.TypeAssistantMessage, &event.AssistantMessageData{
			Message: response.Message,
		}))
	}

	if len(response.Message.ToolCalls) > 0 {
		rn.emit(event.New(runID, event.TypeToolRequests, &event.ToolRequestsData{
			Calls: response.Message.ToolCalls,
		}))
		return rn.toolRound(ctx, ag, response.Message.ToolCalls)
	}
	return rn.finalize(ctx, ag, executor, grCfg, response.Message.Content)
}

// requestMessages renders the request conversation: the agent's instruction
// followed by the run's messages. Halted placeholders never live on the
// state, so no filtering is needed here.
func (rn *run) requestMessages(ag *agent.Agent) []model.Message {
	messages := make([]model.Message, 0, len(rn.state.Messages)+1)
	if ag.Instruction != nil {
		if instruction := ag.Instruction(rn.state); instruction != "" {
			messages = append(messages, model.NewSystemMessage(instruction))
		}
	}
	return append(messages, rn.state.Messages...)
}

// callModel performs one provider call, streaming when configured, and emits
// the call lifecycle events.
func (rn *run) callModel(ctx context.Context, ag *agent.Agent, modelName string, turn int, request *model.Request) (*model.Response, error) {
	runID := string(rn.state.RunID)
	provider := rn.runner.cfg.Provider
	streamer, canStream := provider.(model.Streamer)
	streaming := rn.runner.cfg.Streaming && canStream

	rn.emit(event.New(runID, event.TypeLLMCallStart, &event.LLMCallStartData{
		Model:        modelName,
		AgentName:    ag.Name,
		MessageCount: len(request.Messages),
		Streaming:    streaming,
	}))

	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameCallLLM)
	defer span.End()

	start := time.Now()
	rn.partialsEmitted = false
	var (
		response *model.Response
		err      error
	)
	if streaming {
		response, err = rn.callStreaming(ctx, streamer, request)
		if err != nil {
			// Partial output is discarded; retry as a plain completion.
			log.Warnf("Streaming call failed for run %s, falling back to completion: %v", runID, err)
			response, err = nil, nil
			rn.partialsEmitted = false
		}
	}
	if response == nil && err == nil {
		completer := provider.(model.Completer)
		response, err = completer.Complete(ctx, request)
	}
	duration := time.Since(start)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	itelemetry.TraceCallLLM(span, runID, ag.Name, modelName, turn, response)

	rn.emit(event.New(runID, event.TypeLLMCallEnd, &event.LLMCallEndData{
		Model:    modelName,
		Usage:    response.Usage,
		Cost:     response.Cost,
		Duration: duration,
	}))
	if response.Usage != nil {
		rn.emit(event.New(runID, event.TypeTokenUsage, &event.TokenUsageData{Usage: *response.Usage}))
		if rn.runner.tokenCounter != nil {
			rn.runner.tokenCounter.Add(ctx, int64(response.Usage.TotalTokens))
		}
	}
	return response, nil
}

// callStreaming folds the chunk stream into a response, emitting partial
// assistant messages as the aggregate advances.
func (rn *run) callStreaming(ctx context.Context, streamer model.Streamer, request *model.Request) (*model.Response, error) {
	chunks, err := streamer.Stream(ctx, request)
	if err != nil {
		return nil, err
	}
	runID := string(rn.state.RunID)
	aggregator := model.NewAggregator()
	for chunk := range chunks {
		if chunk.Err != nil {
			for range chunks {
				// Drain so the provider goroutine can exit.
			}
			return nil, chunk.Err
		}
		if aggregator.Fold(chunk) {
			rn.partialsEmitted = true
			rn.emit(event.New(runID, event.TypeAssistantMessage, &event.AssistantMessageData{
				Message: aggregator.Snapshot(),
				Partial: true,
			}))
		}
	}
	return &model.Response{
		Message: aggregator.Snapshot(),
		Usage:   aggregator.Usage(),
		Model:   request.Model,
	}, nil
}

// finalize decodes the final content against the agent's output schema, runs
// the output guardrails and completes the run.
func (rn *run) finalize(ctx context.Context, ag *agent.Agent, executor *guardrail.Executor, grCfg *guardrail.Config, content string) *agent.Result {
	runID := string(rn.state.RunID)

	var output any = content
	if ag.OutputSchema != nil {
		rn.emit(event.New(runID, event.TypeOutputParse, &event.OutputParseData{Raw: content}))
		if issues := ag.OutputSchema.Validate([]byte(content)); len(issues) > 0 {
			rn.emit(event.New(runID, event.TypeDecodeError, &event.DecodeErrorData{Issues: issues}))
			return &agent.Result{Err: &agent.DecodeError{Issues: issues}}
		}
		var decoded any
		if err := json.Unmarshal([]byte(content), &decoded); err == nil {
			output = decoded
		}
	}

	if grCfg != nil && len(grCfg.Output) > 0 {
		rn.emit(event.New(runID, event.TypeGuardrailCheck, &event.GuardrailCheckData{
			Stage: event.GuardrailStageOutput,
			Count: len(grCfg.Output),
			Mode:  guardrail.ModeSequential,
		}))
		if violation := executor.CheckOutput(ctx, grCfg.Output, content); violation != nil {
			rn.emit(event.New(runID, event.TypeGuardrailViolation, &event.GuardrailViolationData{
				Stage:  event.GuardrailStageOutput,
				Reason: violation.Reason,
			}))
			return &agent.Result{Err: &agent.OutputGuardrailError{Reason: violation.Reason}}
		}
	}

	rn.emit(event.New(runID, event.TypeFinalOutput, &event.FinalOutputData{Output: output}))

	if rn.broker.StoreOnCompletion() {
		rn.store(ctx, nil)
	}
	return &agent.Result{Output: output}
}

// persistInterruption stores the conversation (including halted placeholders)
// and records pending approval decisions.
func (rn *run) persistInterruption(ctx context.Context, outcome *dispatch.Outcome) {
	runID := string(rn.state.RunID)
	for _, interruption := range outcome.Interruptions {
		pending, ok := interruption.(*agent.ToolApprovalInterruption)
		if !ok {
			continue
		}
		rn.state.SetApproval(pending.ToolCall.ID, agent.Approval{Status: agent.ApprovalPending})
		if store := rn.runner.cfg.ApprovalStore; store != nil {
			if err := store.StoreApproval(ctx, runID, pending.ToolCall.ID, agent.Approval{
				Status: agent.ApprovalPending,
			}); err != nil {
				log.Warnf("Failed to persist pending approval for run %s: %v", runID, err)
			}
		}
	}
	if rn.broker.Enabled() {
		rn.store(ctx, outcome.Halted)
	}
}

// store persists the conversation through the broker and reports the outcome
// as a trace event. Failures never fail the run.
func (rn *run) store(ctx context.Context, halted []model.Message) {
	data := &event.MemoryOperationData{
		Operation:      "store",
		ConversationID: rn.broker.ConversationID(),
		MessageCount:   len(rn.state.Messages) + len(halted),
	}
	if err := rn.broker.Store(ctx, rn.state, halted); err != nil {
		data.Error = err.Error()
	}
	rn.emit(event.New(string(rn.state.RunID), event.TypeMemoryOperation, data))
}

// lastUserContent returns the content of the most recent user message.
func (rn *run) lastUserContent() string {
	for i := len(rn.state.Messages) - 1; i >= 0; i-- {
		if rn.state.Messages[i].Role == model.RoleUser {
			return rn.state.Messages[i].Content
		}
	}
	return ""
}
