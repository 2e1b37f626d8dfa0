// Package tool provides tool interfaces and implementations for the agent system.
package tool

import (
	"context"
)

// Tool is the base interface implemented by every tool.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration
}

// CallableTool defines the interface for tools that support calling operations.
type CallableTool interface {
	// Call calls the tool with the provided context and arguments.
	// Returns the result of execution or an error if the operation fails.
	Call(ctx context.Context, jsonArgs []byte) (any, error)

	Tool
}

// ApprovalRequirer is implemented by tools whose execution must be approved
// by a human before it runs. The dispatcher consults it on every call; when it
// returns true and no approval has been granted, the run is interrupted.
type ApprovalRequirer interface {
	// NeedsApproval reports whether the given call requires approval.
	// jsonArgs carries the raw arguments of the pending call so predicates
	// can decide per invocation.
	NeedsApproval(ctx context.Context, jsonArgs []byte) bool
}

// Declaration describes the metadata of a tool, such as its name, description, and expected arguments.
type Declaration struct {
	// Name is the unique identifier of the tool.
	Name string `json:"name"`

	// Description explains the tool's purpose and functionality.
	Description string `json:"description"`

	// InputSchema defines the expected input for the tool in JSON schema format.
	InputSchema *Schema `json:"inputSchema"`

	// OutputSchema defines the expected output for the tool in JSON schema format.
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Schema represents the structure of JSON Schema used for defining arguments and responses.
// It follows the JSON Schema standard, supporting various types, properties, and validation rules.
// This structure is typically used to define the expected format of arguments for tools or functions
// and to validate that incoming data conforms to the expected structure.
type Schema struct {
	// Type specifies the data type (e.g., "object", "array", "string", "number").
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the arguments, each with its own schema.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Items defines the schema of array elements for array types.
	Items *Schema `json:"items,omitempty"`
	// AdditionalProperties controls whether properties not defined in Properties are allowed.
	AdditionalProperties any `json:"additionalProperties,omitempty"`
	// MinItems is the minimum number of elements for array types.
	MinItems *int `json:"minItems,omitempty"`
	// Enum restricts string values to the listed options.
	Enum []string `json:"enum,omitempty"`
}
