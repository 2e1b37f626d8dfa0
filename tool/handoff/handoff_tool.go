//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package handoff provides the built-in tool the model calls to transfer the
// run to another agent. Its result carries the handoff marker the dispatcher
// turns into an agent switch.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowgent/flowgent/agent"
	"github.com/flowgent/flowgent/tool"
)

// ToolName is the reserved name of the handoff tool.
const ToolName = "transfer_to_agent"

// MarkerKey marks a tool result as a handoff request. Any tool may return a
// JSON object with this key to transfer the run.
const MarkerKey = "handoff_to"

// Request is the input schema of the handoff tool.
type Request struct {
	AgentName string `json:"agent_name" description:"Name of the agent to transfer to."`
	Reason    string `json:"reason,omitempty" description:"Why the transfer is needed."`
}

// Response is the marker result the dispatcher intercepts.
type Response struct {
	HandoffTo string `json:"handoff_to"`
	Reason    string `json:"reason,omitempty"`
}

// Tool transfers the run to one of a fixed set of target agents.
type Tool struct {
	targets []agent.Info
}

// New creates a handoff tool offering the given target agents.
func New(targets []agent.Info) *Tool {
	return &Tool{targets: targets}
}

// Call validates the target name against the configured set and returns the
// handoff marker.
func (t *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var req Request
	if err := json.Unmarshal(jsonArgs, &req); err != nil {
		return nil, fmt.Errorf("invalid handoff request: %w", err)
	}
	if req.AgentName == "" {
		return nil, fmt.Errorf("agent_name must not be empty")
	}
	for _, target := range t.targets {
		if target.Name == req.AgentName {
			return &Response{HandoffTo: req.AgentName, Reason: req.Reason}, nil
		}
	}
	return nil, fmt.Errorf("unknown target agent %q", req.AgentName)
}

// Declaration returns the tool's metadata. The description enumerates the
// available targets so the model can choose among them.
func (t *Tool) Declaration() *tool.Declaration {
	var sb strings.Builder
	sb.WriteString("Transfer the conversation to another agent. Available agents:")
	for _, target := range t.targets {
		sb.WriteString("\n- ")
		sb.WriteString(target.Name)
		if target.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(target.Description)
		}
	}
	names := make([]string, 0, len(t.targets))
	for _, target := range t.targets {
		names = append(names, target.Name)
	}
	return &tool.Declaration{
		Name:        ToolName,
		Description: sb.String(),
		InputSchema: &tool.Schema{
			Type:     "object",
			Required: []string{"agent_name"},
			Properties: map[string]*tool.Schema{
				"agent_name": {
					Type:        "string",
					Description: "Name of the agent to transfer to.",
					Enum:        names,
				},
				"reason": {
					Type:        "string",
					Description: "Why the transfer is needed.",
				},
			},
		},
	}
}
