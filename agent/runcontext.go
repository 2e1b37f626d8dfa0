//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package agent

import "context"

type runContextKey struct{}

// WithRunContext attaches the run's key-value context to ctx. The engine
// calls this before every tool execution; approved tool calls may see extra
// entries merged from the approval decision.
func WithRunContext(ctx context.Context, runContext map[string]any) context.Context {
	return context.WithValue(ctx, runContextKey{}, runContext)
}

// RunContextFrom extracts the run context attached by the engine. Tools use
// it to read caller-supplied values such as user identity or tenancy.
func RunContextFrom(ctx context.Context) map[string]any {
	if v, ok := ctx.Value(runContextKey{}).(map[string]any); ok {
		return v
	}
	return nil
}
