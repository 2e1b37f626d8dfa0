//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowgent/flowgent/agent"
)

// ApprovalStore is an in-process memory.ApprovalStore.
type ApprovalStore struct {
	mu   sync.RWMutex
	runs map[string]map[string]agent.Approval
}

// NewApprovalStore creates an empty in-memory approval store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{runs: make(map[string]map[string]agent.Approval)}
}

// StoreApproval records a decision for a tool call.
func (s *ApprovalStore) StoreApproval(ctx context.Context, runID, toolCallID string, approval agent.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = make(map[string]agent.Approval)
		s.runs[runID] = run
	}
	run[toolCallID] = approval
	return nil
}

// GetApproval fetches a decision; nil when absent.
func (s *ApprovalStore) GetApproval(ctx context.Context, runID, toolCallID string) (*agent.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	approval, ok := s.runs[runID][toolCallID]
	if !ok {
		return nil, nil
	}
	return &approval, nil
}

// GetRunApprovals fetches every decision recorded for a run.
func (s *ApprovalStore) GetRunApprovals(ctx context.Context, runID string) (map[string]agent.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := s.runs[runID]
	out := make(map[string]agent.Approval, len(run))
	for id, approval := range run {
		out[id] = approval
	}
	return out, nil
}

// UpdateApproval replaces an existing decision.
func (s *ApprovalStore) UpdateApproval(ctx context.Context, runID, toolCallID string, approval agent.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("approval not found: run %s call %s", runID, toolCallID)
	}
	if _, ok := run[toolCallID]; !ok {
		return fmt.Errorf("approval not found: run %s call %s", runID, toolCallID)
	}
	run[toolCallID] = approval
	return nil
}

// DeleteApproval removes a decision.
func (s *ApprovalStore) DeleteApproval(ctx context.Context, runID, toolCallID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs[runID], toolCallID)
	return nil
}

// ClearRunApprovals removes every decision of a run.
func (s *ApprovalStore) ClearRunApprovals(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

// ClarificationStore is an in-process memory.ClarificationStore.
type ClarificationStore struct {
	mu   sync.RWMutex
	runs map[string]map[string]string
}

// NewClarificationStore creates an empty in-memory clarification store.
func NewClarificationStore() *ClarificationStore {
	return &ClarificationStore{runs: make(map[string]map[string]string)}
}

// StoreClarification records the selected option for a clarification.
func (s *ClarificationStore) StoreClarification(ctx context.Context, runID, clarificationID, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = make(map[string]string)
		s.runs[runID] = run
	}
	run[clarificationID] = optionID
	return nil
}

// GetClarification fetches a selection; ok is false when absent.
func (s *ClarificationStore) GetClarification(ctx context.Context, runID, clarificationID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	optionID, ok := s.runs[runID][clarificationID]
	return optionID, ok, nil
}

// GetRunClarifications fetches every selection recorded for a run.
func (s *ClarificationStore) GetRunClarifications(ctx context.Context, runID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := s.runs[runID]
	out := make(map[string]string, len(run))
	for id, optionID := range run {
		out[id] = optionID
	}
	return out, nil
}

// DeleteClarification removes a selection.
func (s *ClarificationStore) DeleteClarification(ctx context.Context, runID, clarificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs[runID], clarificationID)
	return nil
}

// ClearRunClarifications removes every selection of a run.
func (s *ClarificationStore) ClearRunClarifications(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}
