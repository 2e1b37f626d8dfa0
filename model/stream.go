//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package model

import "sort"

// Aggregator folds streaming chunks into an in-flight assistant message.
// Text deltas are appended to a running buffer; tool call deltas are merged
// per index, filling in id/name once and concatenating argument fragments.
// Snapshot returns a consistent copy at any point, so callers can emit
// partial assistant messages while the stream is still running.
type Aggregator struct {
	text  []byte
	calls map[int]*partialToolCall
	usage *Usage
}

type partialToolCall struct {
	id   string
	name string
	args []byte
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{calls: make(map[int]*partialToolCall)}
}

// Fold merges one chunk into the aggregate. It reports whether the chunk
// advanced the message state; bookkeeping-only chunks (done markers, bare
// usage) return false so callers can skip redundant partial emissions.
func (a *Aggregator) Fold(chunk Chunk) bool {
	advanced := false
	if chunk.Delta != "" {
		a.text = append(a.text, chunk.Delta...)
		advanced = true
	}
	if d := chunk.ToolCallDelta; d != nil {
		call, ok := a.calls[d.Index]
		if !ok {
			call = &partialToolCall{}
			a.calls[d.Index] = call
		}
		if d.ID != "" {
			call.id = d.ID
		}
		if d.Name != "" {
			call.name = d.Name
		}
		if d.ArgumentsDelta != "" {
			call.args = append(call.args, d.ArgumentsDelta...)
		}
		advanced = true
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
	return advanced
}

// Usage returns the last usage observed on the stream, if any.
func (a *Aggregator) Usage() *Usage {
	return a.usage
}

// Snapshot returns a copy of the current assistant message.
func (a *Aggregator) Snapshot() Message {
	msg := Message{
		Role:    RoleAssistant,
		Content: string(a.text),
	}
	if len(a.calls) == 0 {
		return msg
	}
	indices := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	msg.ToolCalls = make([]ToolCall, 0, len(indices))
	for _, i := range indices {
		call := a.calls[i]
		idx := i
		args := make([]byte, len(call.args))
		copy(args, call.args)
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			Type:  "function",
			ID:    call.id,
			Index: &idx,
			Function: FunctionDefinitionParam{
				Name:      call.name,
				Arguments: args,
			},
		})
	}
	return msg
}
