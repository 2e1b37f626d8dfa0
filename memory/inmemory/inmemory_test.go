//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/memory"
	"github.com/flowgent/flowgent/model"
)

func intPtr(i int) *int { return &i }

func TestServiceStoreAndGet(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.StoreMessages(ctx, "conv-1",
		[]model.Message{model.NewUserMessage("hi")},
		memory.Metadata{UserID: "u-1", TurnCount: 1}))

	conv, err := svc.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "u-1", conv.UserID)
	assert.Equal(t, 1, conv.Metadata.TotalMessages)
	require.Len(t, conv.Messages, 1)

	// The returned conversation is a copy.
	conv.Messages[0].Content = "mutated"
	again, err := svc.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Content)

	missing, err := svc.GetConversation(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestServiceStoreReplacesAndKeepsCreatedAt(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.StoreMessages(ctx, "conv-1", []model.Message{model.NewUserMessage("a")}, memory.Metadata{}))
	first, _ := svc.GetConversation(ctx, "conv-1")

	require.NoError(t, svc.StoreMessages(ctx, "conv-1", []model.Message{
		model.NewUserMessage("a"), model.NewAssistantMessage("b"),
	}, memory.Metadata{}))
	second, _ := svc.GetConversation(ctx, "conv-1")

	assert.Len(t, second.Messages, 2)
	assert.Equal(t, first.Metadata.CreatedAt, second.Metadata.CreatedAt)
}

func TestServiceAppendAndRecent(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.AppendMessages(ctx, "conv-1", []model.Message{model.NewUserMessage("one")}))
	require.NoError(t, svc.AppendMessages(ctx, "conv-1", []model.Message{
		model.NewAssistantMessage("two"), model.NewUserMessage("three"),
	}))

	recent, err := svc.GetRecentMessages(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Content)
	assert.Equal(t, "three", recent[1].Content)
}

func TestServiceFindAndClear(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.StoreMessages(ctx, "conv-1", nil, memory.Metadata{UserID: "u-1"}))
	require.NoError(t, svc.StoreMessages(ctx, "conv-2", nil, memory.Metadata{UserID: "u-1"}))
	require.NoError(t, svc.StoreMessages(ctx, "conv-3", nil, memory.Metadata{UserID: "u-2"}))

	found, err := svc.FindConversations(ctx, memory.Query{UserID: "u-1"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	limited, err := svc.FindConversations(ctx, memory.Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, svc.ClearUserConversations(ctx, "u-1"))
	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Conversations)

	require.NoError(t, svc.DeleteConversation(ctx, "conv-3"))
	stats, _ = svc.GetStats(ctx)
	assert.Zero(t, stats.Conversations)
}

func TestServiceRestoreToCheckpoint(t *testing.T) {
	ctx := context.Background()
	seed := []model.Message{
		model.NewUserMessage("first question"),
		model.NewAssistantMessage("first answer"),
		model.NewUserMessage("second question"),
		model.NewAssistantMessage("second answer"),
	}

	tests := []struct {
		name     string
		criteria memory.CheckpointCriteria
		restored bool
		removed  int
	}{
		{
			name:     "by absolute index",
			criteria: memory.CheckpointCriteria{Index: intPtr(2)},
			restored: true,
			removed:  2,
		},
		{
			name:     "by user message index",
			criteria: memory.CheckpointCriteria{UserMessageIndex: intPtr(1)},
			restored: true,
			removed:  2,
		},
		{
			name:     "by text prefix",
			criteria: memory.CheckpointCriteria{Text: "first", TextMatch: memory.TextMatchStartsWith},
			restored: true,
			removed:  4,
		},
		{
			name:     "by text contains",
			criteria: memory.CheckpointCriteria{Text: "second", TextMatch: memory.TextMatchContains},
			restored: true,
			removed:  2,
		},
		{
			name:     "no match",
			criteria: memory.CheckpointCriteria{Text: "absent", TextMatch: memory.TextMatchExact},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService()
			require.NoError(t, svc.StoreMessages(ctx, "conv-1", seed, memory.Metadata{}))

			result, err := svc.RestoreToCheckpoint(ctx, "conv-1", tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.restored, result.Restored)
			assert.Equal(t, tt.removed, result.RemovedCount)

			conv, _ := svc.GetConversation(ctx, "conv-1")
			assert.Len(t, conv.Messages, len(seed)-tt.removed)
		})
	}
}

func TestApprovalStore(t *testing.T) {
	store := NewApprovalStore()
	ctx := context.Background()

	missing, err := store.GetApproval(ctx, "run-1", "call-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.StoreApproval(ctx, "run-1", "call-1", agent.Approval{Status: agent.ApprovalPending}))
	require.NoError(t, store.UpdateApproval(ctx, "run-1", "call-1", agent.Approval{Status: agent.ApprovalApproved}))

	got, err := store.GetApproval(ctx, "run-1", "call-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, agent.ApprovalApproved, got.Status)

	assert.Error(t, store.UpdateApproval(ctx, "run-1", "call-2", agent.Approval{}))

	all, err := store.GetRunApprovals(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteApproval(ctx, "run-1", "call-1"))
	require.NoError(t, store.ClearRunApprovals(ctx, "run-1"))
	all, _ = store.GetRunApprovals(ctx, "run-1")
	assert.Empty(t, all)
}

func TestClarificationStore(t *testing.T) {
	store := NewClarificationStore()
	ctx := context.Background()

	_, ok, err := store.GetClarification(ctx, "run-1", "clar-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.StoreClarification(ctx, "run-1", "clar-1", "JFK"))
	option, ok, err := store.GetClarification(ctx, "run-1", "clar-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "JFK", option)

	all, err := store.GetRunClarifications(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"clar-1": "JFK"}, all)

	require.NoError(t, store.DeleteClarification(ctx, "run-1", "clar-1"))
	require.NoError(t, store.ClearRunClarifications(ctx, "run-1"))
}
