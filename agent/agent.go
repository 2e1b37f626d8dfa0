//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package agent provides the core agent types: agent definitions, the
// immutable run state, the run result algebra and the error taxonomy.
package agent

import (
	"github.com/flowgent/flowgent/guardrail"
	"github.com/flowgent/flowgent/model"
	"github.com/flowgent/flowgent/tool"
)

// Info contains basic information about an agent.
type Info struct {
	Name        string
	Description string
}

// ModelConfig selects the model an agent talks to.
type ModelConfig struct {
	// Name is the model name. When empty the run-level override applies.
	Name string

	// Generation carries the generation parameters for this agent's calls.
	Generation model.GenerationConfig
}

// AdvancedConfig holds optional per-agent behavior overrides.
type AdvancedConfig struct {
	// Guardrails overrides the run-level guardrail configuration for this
	// agent when non-nil.
	Guardrails *guardrail.Config
}

// Agent is a named unit of behavior: instruction, tools, allowed handoffs
// and model configuration.
type Agent struct {
	// Name uniquely identifies the agent within a registry.
	Name string

	// Description explains what the agent does; surfaced to handoff tools.
	Description string

	// Instruction produces the system prompt from the current run state.
	Instruction func(state *State) string

	// Tools is the set of tools the agent may invoke.
	Tools []tool.Tool

	// OutputSchema, when set, constrains the agent's final output. The
	// final content is parsed as JSON and validated against it.
	OutputSchema *tool.Schema

	// AllowedHandoffs names the agents this agent may hand control to.
	AllowedHandoffs []string

	// Model selects the model for this agent.
	Model ModelConfig

	// Advanced holds optional behavior overrides.
	Advanced AdvancedConfig
}

// Info returns the basic information about this agent.
func (a *Agent) Info() Info {
	return Info{Name: a.Name, Description: a.Description}
}

// FindTool finds a tool by name. Returns nil if not found.
func (a *Agent) FindTool(name string) tool.Tool {
	for _, t := range a.Tools {
		if t.Declaration().Name == name {
			return t
		}
	}
	return nil
}

// CanHandoffTo reports whether the agent may hand control to target.
func (a *Agent) CanHandoffTo(target string) bool {
	for _, name := range a.AllowedHandoffs {
		if name == target {
			return true
		}
	}
	return false
}

// Registry is an immutable map from agent name to agent definition.
type Registry struct {
	agents map[string]*Agent
}

// NewRegistry builds a registry from the given agents.
func NewRegistry(agents ...*Agent) *Registry {
	m := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		m[a.Name] = a
	}
	return &Registry{agents: m}
}

// Lookup finds an agent by name.
func (r *Registry) Lookup(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Infos returns the info of every registered agent.
func (r *Registry) Infos() []Info {
	infos := make([]Info, 0, len(r.agents))
	for _, a := range r.agents {
		infos = append(infos, a.Info())
	}
	return infos
}
