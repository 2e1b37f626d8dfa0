//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package model

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Content part type constants.
const (
	ContentPartText  = "text"
	ContentPartImage = "image"
	ContentPartFile  = "file"
)

// ContentPart is one element of a multi-part message content.
type ContentPart struct {
	Type string `json:"type"`           // "text", "image" or "file"
	Text string `json:"text,omitempty"` // text parts
	URL  string `json:"url,omitempty"`  // image/file references by URL
	Name string `json:"name,omitempty"` // optional display name for references
}

// Attachment is a binary or referenced payload attached to a message.
// Exactly one of URL and Data should be set.
type Attachment struct {
	Type   string `json:"type"`             // "image", "document", "file", "audio" or "video"
	URL    string `json:"url,omitempty"`    // remote reference
	Data   []byte `json:"data,omitempty"`   // inline payload, base64-encoded on the wire
	MIME   string `json:"mime,omitempty"`   // MIME type
	Name   string `json:"name,omitempty"`   // original file name
	Format string `json:"format,omitempty"` // provider-specific format hint
}

// Message represents a single message in a conversation.
type Message struct {
	Role Role `json:"role"`

	// Content is the plain-string message content. When ContentParts is
	// non-empty it takes precedence and Content may be empty.
	Content string `json:"content"`

	// ContentParts is the optional ordered multi-part content.
	ContentParts []ContentPart `json:"content_parts,omitempty"`

	// Attachments carries optional binary payloads.
	Attachments []Attachment `json:"attachments,omitempty"`

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolID names the tool call a tool-role message answers.
	ToolID string `json:"tool_id,omitempty"`

	// ToolName is the name of the tool that produced a tool-role message.
	ToolName string `json:"tool_name,omitempty"`
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a new tool-role message answering the given call.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{Role: RoleTool, ToolID: toolID, ToolName: toolName, Content: content}
}

// ToolCall represents a call to a tool (function) in the model response.
type ToolCall struct {
	// Type of the tool. Currently, only `function` is supported.
	Type string `json:"type"`
	// Function definition for the tool.
	Function FunctionDefinitionParam `json:"function,omitempty"`
	// The ID of the tool call returned by the model. IDs are unique within
	// a single assistant message and join tool replies to their calls.
	ID string `json:"id,omitempty"`
	// Index is the index of the tool call in the message for streaming responses.
	Index *int `json:"index,omitempty"`
}

// FunctionDefinitionParam describes the function invoked by a tool call.
type FunctionDefinitionParam struct {
	// Name is the name of the function to be called.
	Name string `json:"name"`
	// Description of what the function does.
	Description string `json:"description,omitempty"`
	// Arguments to pass to the function, json-encoded.
	Arguments []byte `json:"arguments,omitempty"`
}
