//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package tool

// Result is a structured tool execution result. Tools may return it instead
// of a plain value to attach a status and free-form metadata to the payload.
type Result struct {
	// Status describes the outcome ("success", "error", ...).
	Status string `json:"status,omitempty"`

	// Data is the tool's payload.
	Data any `json:"data,omitempty"`

	// Metadata carries optional auxiliary information about the execution.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResult creates a success Result wrapping the given data.
func NewResult(data any) *Result {
	return &Result{Status: "success", Data: data}
}
