//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package function wraps plain Go functions as callable tools, deriving the
// input and output JSON schemas from the function's types via reflection.
package function

import (
	"context"
	"encoding/json"
	"reflect"

	itool "github.com/flowgent/flowgent/internal/tool"
	"github.com/flowgent/flowgent/tool"
)

// FunctionTool wraps a typed function as a CallableTool. The dispatcher
// validates arguments against the derived input schema before Call runs.
type FunctionTool[I, O any] struct {
	name              string
	description       string
	inputSchema       *tool.Schema
	outputSchema      *tool.Schema
	fn                func(context.Context, I) (O, error)
	needsApproval     bool
	approvalPredicate func(context.Context, I) bool
}

// Option is a function that configures a FunctionTool.
type Option func(*functionToolOptions)

type functionToolOptions struct {
	name          string
	description   string
	needsApproval bool
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(opts *functionToolOptions) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *functionToolOptions) {
		opts.description = description
	}
}

// WithNeedsApproval gates every call of the tool behind human approval.
func WithNeedsApproval(needsApproval bool) Option {
	return func(opts *functionToolOptions) {
		opts.needsApproval = needsApproval
	}
}

// New creates a FunctionTool from fn, deriving schemas from I and O.
func New[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	options := &functionToolOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var (
		emptyI I
		emptyO O
	)
	ft := &FunctionTool[I, O]{
		name:          options.name,
		description:   options.description,
		fn:            fn,
		needsApproval: options.needsApproval,
		inputSchema:   itool.GenerateJSONSchema(reflect.TypeOf(emptyI)),
		outputSchema:  itool.GenerateJSONSchema(reflect.TypeOf(emptyO)),
	}
	return ft
}

// WithApprovalPredicate gates calls behind approval per invocation: the
// predicate receives the decoded arguments and returns whether this call
// needs a human decision. Overrides WithNeedsApproval.
func (ft *FunctionTool[I, O]) WithApprovalPredicate(predicate func(context.Context, I) bool) *FunctionTool[I, O] {
	ft.approvalPredicate = predicate
	return ft
}

// Call decodes jsonArgs into I and invokes the wrapped function.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if err := json.Unmarshal(jsonArgs, &input); err != nil {
		return nil, err
	}
	return ft.fn(ctx, input)
}

// NeedsApproval reports whether the given call requires human approval.
func (ft *FunctionTool[I, O]) NeedsApproval(ctx context.Context, jsonArgs []byte) bool {
	if ft.approvalPredicate != nil {
		var input I
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			// Undecodable arguments on an approval-gated tool fail closed.
			return true
		}
		return ft.approvalPredicate(ctx, input)
	}
	return ft.needsApproval
}

// Declaration returns the tool's metadata and derived schemas.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         ft.name,
		Description:  ft.description,
		InputSchema:  ft.inputSchema,
		OutputSchema: ft.outputSchema,
	}
}
