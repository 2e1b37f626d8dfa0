//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/log"
	"github.com/flowgent/flowgent/model"
)

// StatusHalted marks storage-only placeholder tool replies. Halted markers
// preserve the 1:1 pairing with assistant tool calls in persisted logs and
// are filtered out whenever state is rebuilt for the model.
const StatusHalted = "halted"

// Options configures a Broker.
type Options struct {
	// Service is the backing conversation store.
	Service Service

	// ConversationID selects the conversation to load and store.
	ConversationID string

	// UserID is recorded in stored metadata.
	UserID string

	// AutoStore enables loading on run start and storing on interruption.
	AutoStore bool

	// StoreOnCompletion additionally stores when a run completes.
	StoreOnCompletion bool

	// MaxMessages bounds how many persisted messages are loaded. Zero
	// means unbounded.
	MaxMessages int

	// CompressionThreshold triggers middle-drop compression when the
	// stored log would exceed it. Zero disables compression.
	CompressionThreshold int
}

// Broker mediates between run state and conversation storage. Storage
// failures never corrupt run outcomes: they are logged and swallowed.
type Broker struct {
	opts Options
}

// NewBroker creates a broker with the given options.
func NewBroker(opts Options) *Broker {
	return &Broker{opts: opts}
}

// Enabled reports whether load/store are active for this run.
func (b *Broker) Enabled() bool {
	return b.opts.Service != nil && b.opts.AutoStore && b.opts.ConversationID != ""
}

// StoreOnCompletion reports whether completed runs are persisted too.
func (b *Broker) StoreOnCompletion() bool {
	return b.Enabled() && b.opts.StoreOnCompletion
}

// ConversationID returns the configured conversation ID.
func (b *Broker) ConversationID() string {
	return b.opts.ConversationID
}

// Load merges the persisted conversation into the state in place: prior
// messages are prepended (halted markers filtered, new messages deduplicated)
// and approvals are rehydrated from conversation metadata. Returns the number
// of messages loaded.
func (b *Broker) Load(ctx context.Context, state *agent.State) int {
	if !b.Enabled() {
		return 0
	}
	conv, err := b.opts.Service.GetConversation(ctx, b.opts.ConversationID)
	if err != nil {
		log.Warnf("Memory load failed for conversation %s: %v", b.opts.ConversationID, err)
		return 0
	}
	if conv == nil {
		return 0
	}

	prior := conv.Messages
	if b.opts.MaxMessages > 0 && len(prior) > b.opts.MaxMessages {
		prior = prior[len(prior)-b.opts.MaxMessages:]
	}
	prior = FilterHalted(prior)

	// Deduplicate the state's fresh messages against what was loaded so a
	// resumed interruption does not replay its trigger message twice.
	seen := make(map[string]struct{}, len(prior))
	for _, m := range prior {
		seen[dedupeKey(m)] = struct{}{}
	}
	merged := make([]model.Message, 0, len(prior)+len(state.Messages))
	merged = append(merged, prior...)
	for _, m := range state.Messages {
		if _, dup := seen[dedupeKey(m)]; dup {
			continue
		}
		merged = append(merged, m)
	}
	state.Messages = merged

	if state.Approvals == nil {
		state.Approvals = make(map[string]agent.Approval)
	}
	for id, approval := range conv.Metadata.Approvals {
		if _, exists := state.Approvals[id]; !exists {
			state.Approvals[id] = approval
		}
	}
	if state.TurnCount < conv.Metadata.TurnCount {
		state.TurnCount = conv.Metadata.TurnCount
	}
	return len(prior)
}

// Store persists the state's message log plus the given halted placeholders.
// Best-effort: failures are logged and returned for trace reporting only.
func (b *Broker) Store(ctx context.Context, state *agent.State, halted []model.Message) error {
	if b.opts.Service == nil || b.opts.ConversationID == "" {
		return nil
	}
	messages := make([]model.Message, 0, len(state.Messages)+len(halted))
	messages = append(messages, state.Messages...)
	messages = append(messages, halted...)
	messages = b.compress(messages)

	now := time.Now()
	metadata := Metadata{
		CreatedAt:     now,
		UpdatedAt:     now,
		TotalMessages: len(messages),
		LastActivity:  now,
		Approvals:     state.Approvals,
		TurnCount:     state.TurnCount,
		RunID:         string(state.RunID),
		TraceID:       string(state.TraceID),
		AgentName:     state.CurrentAgent,
		UserID:        b.opts.UserID,
	}
	if err := b.opts.Service.StoreMessages(ctx, b.opts.ConversationID, messages, metadata); err != nil {
		log.Warnf("Memory store failed for conversation %s: %v", b.opts.ConversationID, err)
		return err
	}
	return nil
}

// compress drops the middle of an oversized log, keeping the first 20% and
// the most recent 80% of the threshold.
func (b *Broker) compress(messages []model.Message) []model.Message {
	threshold := b.opts.CompressionThreshold
	if threshold <= 0 || len(messages) <= threshold {
		return messages
	}
	head := threshold * 20 / 100
	tail := threshold * 80 / 100
	kept := make([]model.Message, 0, head+tail)
	kept = append(kept, messages[:head]...)
	kept = append(kept, messages[len(messages)-tail:]...)
	return kept
}

// FilterHalted removes storage-only halted placeholder replies.
func FilterHalted(messages []model.Message) []model.Message {
	filtered := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if IsHalted(m) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}

// IsHalted reports whether the message is a halted placeholder tool reply.
func IsHalted(m model.Message) bool {
	return m.Role == model.RoleTool && replyStatus(m.Content) == StatusHalted
}

func replyStatus(content string) string {
	var envelope struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return ""
	}
	return envelope.Status
}

func dedupeKey(m model.Message) string {
	key := struct {
		Role      model.Role       `json:"role"`
		Content   string           `json:"content"`
		ToolCalls []model.ToolCall `json:"tool_calls,omitempty"`
		ToolID    string           `json:"tool_id,omitempty"`
	}{m.Role, m.Content, m.ToolCalls, m.ToolID}
	b, _ := json.Marshal(key)
	return string(b)
}
