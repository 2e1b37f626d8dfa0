//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package model

// Usage represents token usage information.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens in the response.
	TotalTokens int `json:"total_tokens"`
}

// Response is the completion returned by a provider.
type Response struct {
	// Message is the assistant message produced by the model. The message
	// may carry content, tool calls, or both.
	Message Message `json:"message"`

	// Usage contains token usage information, when reported.
	Usage *Usage `json:"usage,omitempty"`

	// Cost is the provider-reported cost of the call, when available.
	Cost *float64 `json:"cost,omitempty"`

	// Prompt is the rendered prompt the provider sent upstream, when exposed.
	Prompt string `json:"prompt,omitempty"`

	// Model is the model that generated the response.
	Model string `json:"model,omitempty"`
}

// IsEmpty reports whether the response carries neither content nor tool calls.
func (rsp *Response) IsEmpty() bool {
	if rsp == nil {
		return true
	}
	return rsp.Message.Content == "" && len(rsp.Message.ContentParts) == 0 && len(rsp.Message.ToolCalls) == 0
}

// Chunk is one element of a streaming completion.
type Chunk struct {
	// Delta is an incremental piece of assistant text.
	Delta string `json:"delta,omitempty"`

	// ToolCallDelta is an incremental piece of an indexed tool call.
	ToolCallDelta *ToolCallDelta `json:"tool_call_delta,omitempty"`

	// Done marks the end of the stream.
	Done bool `json:"is_done,omitempty"`

	// FinishReason is the provider's finish reason, if any.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage carries final token usage, typically on the last chunk.
	Usage *Usage `json:"usage,omitempty"`

	// Err signals a transport failure mid-stream. The engine discards
	// partial output and falls back to a plain completion.
	Err error `json:"-"`
}

// ToolCallDelta is an incremental update to the tool call at Index.
type ToolCallDelta struct {
	// Index identifies which tool call of the message this delta extends.
	Index int `json:"index"`

	// ID is the tool call ID, sent once per index.
	ID string `json:"id,omitempty"`

	// Name is the function name, sent once per index.
	Name string `json:"name,omitempty"`

	// ArgumentsDelta is an incremental fragment of the JSON arguments.
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}
