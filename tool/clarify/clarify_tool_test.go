//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package clarify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallMintsClarification(t *testing.T) {
	result, err := New().Call(context.Background(),
		[]byte(`{"question":"Which airport?","options":[{"id":"JFK","label":"JFK"},{"id":"EWR","label":"Newark"}]}`))
	require.NoError(t, err)

	rsp, ok := result.(*Response)
	require.True(t, ok)
	assert.True(t, rsp.Trigger)
	assert.Contains(t, rsp.ClarificationID, "clarification-")
	assert.Equal(t, "Which airport?", rsp.Question)
	require.Len(t, rsp.Options, 2)
	assert.Equal(t, "JFK", rsp.Options[0].ID)
	assert.Equal(t, "Newark", rsp.Options[1].Label)
}

func TestCallRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "malformed json", args: `not json`},
		{name: "empty question", args: `{"question":"","options":[{"id":"a","label":"A"},{"id":"b","label":"B"}]}`},
		{name: "single option", args: `{"question":"pick","options":[{"id":"a","label":"A"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Call(context.Background(), []byte(tt.args))
			assert.Error(t, err)
		})
	}
}

func TestDeclaration(t *testing.T) {
	decl := New().Declaration()
	assert.Equal(t, ToolName, decl.Name)
	require.NotNil(t, decl.InputSchema)
	assert.ElementsMatch(t, []string{"question", "options"}, decl.InputSchema.Required)

	options := decl.InputSchema.Properties["options"]
	require.NotNil(t, options)
	require.NotNil(t, options.MinItems)
	assert.Equal(t, 2, *options.MinItems)
}
