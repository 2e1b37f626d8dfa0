//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package model provides interfaces for working with LLM providers.
package model

import "context"

// Provider is the base interface implemented by every model provider.
//
// A provider exposes one or both of the capability interfaces below:
//
//   - Completer for single-shot completions.
//   - Streamer for incremental streaming completions.
//
// The engine prefers Streamer when streaming is requested and falls back to
// Completer when the stream fails mid-flight.
type Provider interface {
	// Info returns basic information about the provider.
	Info() Info
}

// Completer is implemented by providers that support plain completions.
type Completer interface {
	Provider

	// Complete generates a single completion for the given request.
	Complete(ctx context.Context, request *Request) (*Response, error)
}

// Streamer is implemented by providers that support streaming completions.
// The returned channel is closed by the provider once the stream terminates;
// a chunk carrying a non-nil Err signals a transport failure mid-stream.
type Streamer interface {
	Provider

	// Stream generates a streaming completion for the given request.
	Stream(ctx context.Context, request *Request) (<-chan Chunk, error)
}

// Info contains basic information about a Provider.
type Info struct {
	// Name is the provider name, used for diagnostics only.
	Name string

	// AISDKStyle reports whether the provider resolves the model itself.
	// For such providers the engine does not require a model name on the
	// agent or the run config.
	AISDKStyle bool
}
