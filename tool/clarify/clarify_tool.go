//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package clarify provides the built-in tool the model calls to ask the user
// a multiple-choice question. Its result carries a trigger marker that the
// dispatcher converts into a clarification interruption.
package clarify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowgent/flowgent/tool"
)

// ToolName is the reserved name of the clarification tool.
const ToolName = "request_user_clarification"

// TriggerKey marks a tool result as a clarification request. The dispatcher
// checks for it in every tool result, so tools other than this one can also
// raise clarifications.
const TriggerKey = "_clarification_trigger"

// Option is one choice offered to the user.
type Option struct {
	ID    string `json:"id" description:"Stable identifier of the option."`
	Label string `json:"label" description:"Human-readable label shown to the user."`
}

// Request is the input schema of the clarification tool.
type Request struct {
	Question string   `json:"question" description:"The question to ask the user."`
	Options  []Option `json:"options" description:"The choices to offer; at least two."`
	Context  string   `json:"context,omitempty" description:"Optional context explaining why the question is asked."`
}

// Response is the marker result the dispatcher intercepts.
type Response struct {
	Trigger         bool     `json:"_clarification_trigger"`
	ClarificationID string   `json:"clarification_id"`
	Question        string   `json:"question"`
	Options         []Option `json:"options"`
	Context         string   `json:"context,omitempty"`
}

// Tool asks the user a multiple-choice question. It never produces a normal
// tool reply: the dispatcher intercepts the trigger marker and interrupts
// the run until an option is selected.
type Tool struct{}

// New creates the clarification tool.
func New() *Tool { return &Tool{} }

// Call validates the request and mints a clarification ID. The returned
// value is the trigger marker, not a user-visible result.
func (t *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var req Request
	if err := json.Unmarshal(jsonArgs, &req); err != nil {
		return nil, fmt.Errorf("invalid clarification request: %w", err)
	}
	if req.Question == "" {
		return nil, fmt.Errorf("clarification question must not be empty")
	}
	if len(req.Options) < 2 {
		return nil, fmt.Errorf("clarification needs at least 2 options, got %d", len(req.Options))
	}
	return &Response{
		Trigger:         true,
		ClarificationID: "clarification-" + uuid.New().String(),
		Question:        req.Question,
		Options:         req.Options,
		Context:         req.Context,
	}, nil
}

// Declaration returns the tool's metadata.
func (t *Tool) Declaration() *tool.Declaration {
	two := 2
	return &tool.Declaration{
		Name: ToolName,
		Description: "Ask the user a multiple-choice question when the request is ambiguous " +
			"and you cannot proceed without their input. Execution pauses until the user answers.",
		InputSchema: &tool.Schema{
			Type:     "object",
			Required: []string{"question", "options"},
			Properties: map[string]*tool.Schema{
				"question": {
					Type:        "string",
					Description: "The question to ask the user.",
				},
				"options": {
					Type:     "array",
					MinItems: &two,
					Items: &tool.Schema{
						Type:     "object",
						Required: []string{"id", "label"},
						Properties: map[string]*tool.Schema{
							"id":    {Type: "string", Description: "Stable identifier of the option."},
							"label": {Type: "string", Description: "Human-readable label shown to the user."},
						},
					},
					Description: "The choices to offer; at least two.",
				},
				"context": {
					Type:        "string",
					Description: "Optional context explaining why the question is asked.",
				},
			},
		},
	}
}
