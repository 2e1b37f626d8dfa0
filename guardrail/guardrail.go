//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package guardrail provides policy validators for agent input and output.
package guardrail

import (
	"context"
	"time"
)

// Execution mode constants.
const (
	// ModeParallel runs all input guardrails concurrently with the model
	// call; on violation the model response is discarded.
	ModeParallel = "parallel"
	// ModeSequential runs guardrails one after another before the model
	// call; the first failure short-circuits.
	ModeSequential = "sequential"
)

// Fail-safe policy constants, applied when a guardrail times out or panics.
const (
	// FailSafeAllow treats the check as valid.
	FailSafeAllow = "allow"
	// FailSafeBlock treats the check as a violation.
	FailSafeBlock = "block"
)

// DefaultTimeout bounds a single guardrail check.
const DefaultTimeout = 30 * time.Second

// Decision is the verdict of a guardrail check.
type Decision struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Guardrail validates content and may veto a run with a stated reason.
type Guardrail interface {
	// Name identifies the guardrail in events and violations.
	Name() string

	// Check validates the content.
	Check(ctx context.Context, content string) Decision
}

// Config controls how a set of guardrails is executed.
type Config struct {
	// Input guardrails run against the user's initial message.
	Input []Guardrail

	// Output guardrails run against the model's final content.
	Output []Guardrail

	// ExecutionMode is ModeParallel (default) or ModeSequential.
	ExecutionMode string

	// Timeout bounds each guardrail check. Defaults to DefaultTimeout.
	Timeout time.Duration

	// FailSafe is FailSafeAllow (default) or FailSafeBlock.
	FailSafe string
}

type guardrailFunc struct {
	name string
	fn   func(ctx context.Context, content string) Decision
}

func (g *guardrailFunc) Name() string { return g.name }

func (g *guardrailFunc) Check(ctx context.Context, content string) Decision {
	return g.fn(ctx, content)
}

// Func adapts a plain function into a Guardrail.
func Func(name string, fn func(ctx context.Context, content string) Decision) Guardrail {
	return &guardrailFunc{name: name, fn: fn}
}
