//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"

	"github.com/flowgent/flowgent/agent"
)

// ApprovalStore persists human approval decisions keyed by run and tool call.
// It is optional; when configured, the engine loads approvals by run ID on
// start and records pending approvals on interruption.
type ApprovalStore interface {
	// StoreApproval records a decision for a tool call.
	StoreApproval(ctx context.Context, runID, toolCallID string, approval agent.Approval) error

	// GetApproval fetches a decision; nil when absent.
	GetApproval(ctx context.Context, runID, toolCallID string) (*agent.Approval, error)

	// GetRunApprovals fetches every decision recorded for a run.
	GetRunApprovals(ctx context.Context, runID string) (map[string]agent.Approval, error)

	// UpdateApproval replaces an existing decision.
	UpdateApproval(ctx context.Context, runID, toolCallID string, approval agent.Approval) error

	// DeleteApproval removes a decision.
	DeleteApproval(ctx context.Context, runID, toolCallID string) error

	// ClearRunApprovals removes every decision of a run.
	ClearRunApprovals(ctx context.Context, runID string) error
}

// ClarificationStore persists clarification selections keyed by run and
// clarification ID. Symmetric to ApprovalStore.
type ClarificationStore interface {
	// StoreClarification records the selected option for a clarification.
	StoreClarification(ctx context.Context, runID, clarificationID, optionID string) error

	// GetClarification fetches a selection; ok is false when absent.
	GetClarification(ctx context.Context, runID, clarificationID string) (optionID string, ok bool, err error)

	// GetRunClarifications fetches every selection recorded for a run.
	GetRunClarifications(ctx context.Context, runID string) (map[string]string, error)

	// DeleteClarification removes a selection.
	DeleteClarification(ctx context.Context, runID, clarificationID string) error

	// ClearRunClarifications removes every selection of a run.
	ClearRunClarifications(ctx context.Context, runID string) error
}
