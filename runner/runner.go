//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package runner drives agent runs: the turn loop, model calls, tool
// dispatch, guardrails, interruption/resume and memory brokerage.
package runner

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/event"
	"github.com/flowgent/flowgent/guardrail"
	"github.com/flowgent/flowgent/log"
	"github.com/flowgent/flowgent/memory"
	"github.com/flowgent/flowgent/model"
	tmetric "github.com/flowgent/flowgent/telemetry/metric"
	"github.com/flowgent/flowgent/tool"
	"github.com/flowgent/flowgent/tool/clarify"
	"github.com/flowgent/flowgent/tool/handoff"
)

// DefaultMaxTurns bounds the turn loop when the config does not.
const DefaultMaxTurns = 50

// Config configures a Runner.
type Config struct {
	// Registry holds the agents available to this runner.
	Registry *agent.Registry

	// Provider is the model provider. It must implement model.Completer;
	// model.Streamer is used additionally when Streaming is set.
	Provider model.Provider

	// Model is the run-level model name. An agent's own model name takes
	// precedence when both are set.
	Model string

	// MaxTurns bounds the turn loop. Defaults to DefaultMaxTurns.
	MaxTurns int

	// Streaming requests incremental completions with partial
	// assistant_message events. Falls back to plain completions when the
	// provider cannot stream or the stream fails mid-flight.
	Streaming bool

	// EnableClarification injects the request_user_clarification tool into
	// every agent's tool set.
	EnableClarification bool

	// Guardrails is the run-level guardrail configuration. An agent's
	// Advanced.Guardrails overrides it.
	Guardrails *guardrail.Config

	// Handlers observe trace events in order. A non-nil return from a
	// before_tool_execution handler replaces the tool arguments.
	Handlers []event.Handler

	// AfterToolExecution, when set, runs after every successful tool
	// execution. A non-nil return replaces the tool result; errors and
	// panics in the hook are logged and swallowed.
	AfterToolExecution func(ctx context.Context, call model.ToolCall, result any) (any, error)

	// Memory configures conversation persistence.
	Memory memory.Options

	// ApprovalStore persists approval decisions across process restarts.
	ApprovalStore memory.ApprovalStore

	// ClarificationStore persists clarification selections across process
	// restarts.
	ClarificationStore memory.ClarificationStore

	// ToolPoolSize bounds concurrent tool executions. Non-positive means
	// unbounded.
	ToolPoolSize int
}

// Runner executes agent runs against a fixed configuration.
type Runner struct {
	cfg          Config
	maxTurns     int
	tokenCounter metric.Int64Counter
}

// New creates a runner. The returned runner is safe for concurrent runs.
func New(cfg Config) (*Runner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("runner requires a registry")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("runner requires a model provider")
	}
	if _, ok := cfg.Provider.(model.Completer); !ok {
		return nil, fmt.Errorf("model provider must support plain completions")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	tokenCounter, err := tmetric.Meter.Int64Counter("flowgent.tokens.total")
	if err != nil {
		log.Warnf("Failed to create token counter: %v", err)
	}
	return &Runner{
		cfg:          cfg,
		maxTurns:     maxTurns,
		tokenCounter: tokenCounter,
	}, nil
}

// Run executes the run to a terminal outcome. The input state is never
// mutated; the result carries the final state.
func (r *Runner) Run(ctx context.Context, state *agent.State) *agent.Result {
	return r.execute(ctx, state, r.applyHandlers)
}

// RunOption configures a single RunStream invocation.
type RunOption func(*runOptions)

type runOptions struct {
	handlers []event.Handler
}

// WithStreamHandler adds a handler for this invocation only. It runs after
// the configured handlers; its non-nil return still replaces tool arguments
// for before_tool_execution events.
func WithStreamHandler(h event.Handler) RunOption {
	return func(o *runOptions) {
		o.handlers = append(o.handlers, h)
	}
}

// RunStream executes the run and streams its trace events. The final event
// is always run_end, whose payload carries the run result; the channel is
// closed afterwards. Registered handlers still run before each event is
// forwarded.
func (r *Runner) RunStream(ctx context.Context, state *agent.State, opts ...RunOption) <-chan *event.Event {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	events := make(chan *event.Event, 64)
	go func() {
		defer close(events)
		emit := func(e *event.Event) any {
			v := r.applyHandlers(e)
			for _, h := range o.handlers {
				if hv := h(e); hv != nil && v == nil {
					v = hv
				}
			}
			select {
			case events <- e:
			case <-ctx.Done():
			}
			return v
		}
		r.execute(ctx, state, emit)
	}()
	return events
}

// applyHandlers invokes the registered handlers in order and returns the
// first non-nil value.
func (r *Runner) applyHandlers(e *event.Event) any {
	var result any
	for _, h := range r.cfg.Handlers {
		if v := h(e); v != nil && result == nil {
			result = v
		}
	}
	return result
}

// resolveTools builds the name-resolved tool set for one agent, including
// the injected built-ins.
func (r *Runner) resolveTools(ag *agent.Agent) map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(ag.Tools)+2)
	for _, t := range ag.Tools {
		tools[t.Declaration().Name] = t
	}
	if r.cfg.EnableClarification {
		tools[clarify.ToolName] = clarify.New()
	}
	if len(ag.AllowedHandoffs) > 0 {
		targets := make([]agent.Info, 0, len(ag.AllowedHandoffs))
		for _, name := range ag.AllowedHandoffs {
			if target, ok := r.cfg.Registry.Lookup(name); ok {
				targets = append(targets, target.Info())
			}
		}
		tools[handoff.ToolName] = handoff.New(targets)
	}
	return tools
}

// resolveModelName applies the precedence: agent model name, then the
// run-level override.
func (r *Runner) resolveModelName(ag *agent.Agent) string {
	if ag.Model.Name != "" {
		return ag.Model.Name
	}
	return r.cfg.Model
}

// guardrailConfig applies the per-agent override.
func (r *Runner) guardrailConfig(ag *agent.Agent) *guardrail.Config {
	if ag.Advanced.Guardrails != nil {
		return ag.Advanced.Guardrails
	}
	return r.cfg.Guardrails
}
