//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package memory provides conversation persistence for agent runs: the
// storage service contract, the broker that loads and stores run state, and
// the optional approval/clarification stores.
package memory

import (
	"context"
	"time"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/model"
)

// Metadata describes a persisted conversation.
type Metadata struct {
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	TotalMessages int                       `json:"total_messages"`
	LastActivity  time.Time                 `json:"last_activity"`
	Approvals     map[string]agent.Approval `json:"approvals,omitempty"`
	TurnCount     int                       `json:"turn_count,omitempty"`
	RunID         string                    `json:"run_id,omitempty"`
	TraceID       string                    `json:"trace_id,omitempty"`
	AgentName     string                    `json:"agent_name,omitempty"`
	UserID        string                    `json:"user_id,omitempty"`
	Custom        map[string]any            `json:"custom,omitempty"`
}

// Conversation is a persisted message log plus metadata.
type Conversation struct {
	ID       string          `json:"conversation_id"`
	UserID   string          `json:"user_id,omitempty"`
	Messages []model.Message `json:"messages"`
	Metadata Metadata        `json:"metadata"`
}

// Query selects conversations in FindConversations.
type Query struct {
	UserID string
	Limit  int
}

// Stats reports aggregate storage counters.
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// Text match modes for CheckpointCriteria.
const (
	TextMatchExact      = "exact"
	TextMatchStartsWith = "startsWith"
	TextMatchContains   = "contains"
)

// CheckpointCriteria selects one user message to restore to. The fields are
// applied in precedence order: MessageID, Index, UserMessageIndex, then Text
// with TextMatch. The targeted user message and everything after it are
// removed; the prefix is preserved.
type CheckpointCriteria struct {
	// MessageID selects a message by explicit ID (stored in Custom metadata
	// by callers that assign IDs). Implementations without per-message IDs
	// may ignore it.
	MessageID string

	// Index selects a message by absolute index.
	Index *int

	// UserMessageIndex selects the nth user-role message (0-based).
	UserMessageIndex *int

	// Text selects the first user message matching per TextMatch.
	Text string

	// TextMatch is TextMatchExact, TextMatchStartsWith or TextMatchContains.
	TextMatch string
}

// CheckpointResult reports the outcome of a checkpoint restore.
type CheckpointResult struct {
	Restored            bool   `json:"restored"`
	RemovedCount        int    `json:"removed_count"`
	CheckpointIndex     int    `json:"checkpoint_index"`
	CheckpointUserQuery string `json:"checkpoint_user_query,omitempty"`
}

// Service is the conversation storage contract consumed by the broker.
// Implementations must treat a missing conversation as (nil, nil) from
// GetConversation rather than an error.
type Service interface {
	// StoreMessages persists the full message log and metadata, replacing
	// any previous content for the conversation.
	StoreMessages(ctx context.Context, conversationID string, messages []model.Message, metadata Metadata) error

	// GetConversation fetches a conversation by ID; nil when missing.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)

	// AppendMessages appends messages to an existing conversation.
	AppendMessages(ctx context.Context, conversationID string, messages []model.Message) error

	// FindConversations lists conversations matching the query.
	FindConversations(ctx context.Context, query Query) ([]*Conversation, error)

	// GetRecentMessages returns up to limit most recent messages.
	GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	// DeleteConversation removes a conversation.
	DeleteConversation(ctx context.Context, conversationID string) error

	// ClearUserConversations removes every conversation of a user.
	ClearUserConversations(ctx context.Context, userID string) error

	// GetStats reports aggregate counters.
	GetStats(ctx context.Context) (*Stats, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// RestoreToCheckpoint rewinds a conversation to before the selected
	// user message.
	RestoreToCheckpoint(ctx context.Context, conversationID string, criteria CheckpointCriteria) (*CheckpointResult, error)

	// Close releases backend resources.
	Close() error
}
