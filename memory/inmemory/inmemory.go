//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-process implementations of the memory storage
// contracts, suitable for tests and single-process deployments.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowgent/flowgent/memory"
	"github.com/flowgent/flowgent/model"
)

// Service is an in-process memory.Service backed by a map.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]*memory.Conversation
}

// NewService creates an empty in-memory service.
func NewService() *Service {
	return &Service{conversations: make(map[string]*memory.Conversation)}
}

// StoreMessages persists the full message log, replacing previous content.
func (s *Service) StoreMessages(ctx context.Context, conversationID string, messages []model.Message, metadata memory.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.conversations[conversationID]
	if ok {
		metadata.CreatedAt = existing.Metadata.CreatedAt
	} else {
		metadata.CreatedAt = now
	}
	metadata.UpdatedAt = now
	metadata.LastActivity = now
	metadata.TotalMessages = len(messages)

	s.conversations[conversationID] = &memory.Conversation{
		ID:       conversationID,
		UserID:   metadata.UserID,
		Messages: cloneMessages(messages),
		Metadata: metadata,
	}
	return nil
}

// GetConversation fetches a conversation by ID; nil when missing.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*memory.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	return cloneConversation(conv), nil
}

// AppendMessages appends to an existing conversation, creating it if absent.
func (s *Service) AppendMessages(ctx context.Context, conversationID string, messages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &memory.Conversation{
			ID:       conversationID,
			Metadata: memory.Metadata{CreatedAt: now},
		}
		s.conversations[conversationID] = conv
	}
	conv.Messages = append(conv.Messages, cloneMessages(messages)...)
	conv.Metadata.UpdatedAt = now
	conv.Metadata.LastActivity = now
	conv.Metadata.TotalMessages = len(conv.Messages)
	return nil
}

// FindConversations lists conversations matching the query, most recent first.
func (s *Service) FindConversations(ctx context.Context, query memory.Query) ([]*memory.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*memory.Conversation
	for _, conv := range s.conversations {
		if query.UserID != "" && conv.UserID != query.UserID {
			continue
		}
		matched = append(matched, cloneConversation(conv))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Metadata.LastActivity.After(matched[j].Metadata.LastActivity)
	})
	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

// GetRecentMessages returns up to limit most recent messages.
func (s *Service) GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	messages := conv.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return cloneMessages(messages), nil
}

// DeleteConversation removes a conversation.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

// ClearUserConversations removes every conversation of a user.
func (s *Service) ClearUserConversations(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conv := range s.conversations {
		if conv.UserID == userID {
			delete(s.conversations, id)
		}
	}
	return nil
}

// GetStats reports aggregate counters.
func (s *Service) GetStats(ctx context.Context) (*memory.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &memory.Stats{Conversations: len(s.conversations)}
	for _, conv := range s.conversations {
		stats.Messages += len(conv.Messages)
	}
	return stats, nil
}

// HealthCheck always succeeds for the in-process backend.
func (s *Service) HealthCheck(ctx context.Context) error { return nil }

// RestoreToCheckpoint rewinds a conversation to before the selected user
// message. Criteria are applied in precedence order: Index, UserMessageIndex,
// then Text with the configured match mode.
func (s *Service) RestoreToCheckpoint(ctx context.Context, conversationID string, criteria memory.CheckpointCriteria) (*memory.CheckpointResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return &memory.CheckpointResult{}, nil
	}

	idx := findCheckpoint(conv.Messages, criteria)
	if idx < 0 {
		return &memory.CheckpointResult{}, nil
	}

	removed := len(conv.Messages) - idx
	result := &memory.CheckpointResult{
		Restored:            true,
		RemovedCount:        removed,
		CheckpointIndex:     idx,
		CheckpointUserQuery: conv.Messages[idx].Content,
	}
	now := time.Now()
	conv.Messages = conv.Messages[:idx]
	conv.Metadata.UpdatedAt = now
	conv.Metadata.LastActivity = now
	conv.Metadata.TotalMessages = len(conv.Messages)
	return result, nil
}

// Close is a no-op for the in-process backend.
func (s *Service) Close() error { return nil }

// findCheckpoint resolves criteria to the index of the targeted user message,
// or -1 when nothing matches.
func findCheckpoint(messages []model.Message, criteria memory.CheckpointCriteria) int {
	if criteria.Index != nil {
		i := *criteria.Index
		if i >= 0 && i < len(messages) {
			return i
		}
		return -1
	}
	if criteria.UserMessageIndex != nil {
		nth := *criteria.UserMessageIndex
		count := 0
		for i, m := range messages {
			if m.Role != model.RoleUser {
				continue
			}
			if count == nth {
				return i
			}
			count++
		}
		return -1
	}
	if criteria.Text != "" {
		for i, m := range messages {
			if m.Role != model.RoleUser {
				continue
			}
			if textMatches(m.Content, criteria.Text, criteria.TextMatch) {
				return i
			}
		}
	}
	return -1
}

func textMatches(content, text, mode string) bool {
	switch mode {
	case memory.TextMatchStartsWith:
		return strings.HasPrefix(content, text)
	case memory.TextMatchContains:
		return strings.Contains(content, text)
	default:
		return content == text
	}
}

func cloneMessages(messages []model.Message) []model.Message {
	cloned := make([]model.Message, len(messages))
	copy(cloned, messages)
	return cloned
}

func cloneConversation(conv *memory.Conversation) *memory.Conversation {
	cloned := *conv
	cloned.Messages = cloneMessages(conv.Messages)
	return &cloned
}
