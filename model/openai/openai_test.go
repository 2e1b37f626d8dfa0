//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgent/flowgent/model"
	"github.com/flowgent/flowgent/tool"
)

type staticTool struct{ name string }

func (t *staticTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        t.name,
		Description: "a tool",
		InputSchema: &tool.Schema{
			Type:       "object",
			Properties: map[string]*tool.Schema{"q": {Type: "string"}},
		},
	}
}

func TestInfo(t *testing.T) {
	m := New("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)
	assert.False(t, m.Info().AISDKStyle)

	proxy := New("", WithAISDKStyle(true))
	assert.True(t, proxy.Info().AISDKStyle)
}

func TestBuildChatRequestModelName(t *testing.T) {
	m := New("default-model")

	chatRequest, err := m.buildChatRequest(&model.Request{Model: "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", string(chatRequest.Model))

	chatRequest, err = m.buildChatRequest(&model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "default-model", string(chatRequest.Model))

	// No name anywhere is only valid for providers that resolve it themselves.
	_, err = New("").buildChatRequest(&model.Request{})
	assert.Error(t, err)
	_, err = New("", WithAISDKStyle(true)).buildChatRequest(&model.Request{})
	assert.NoError(t, err)
}

func TestBuildChatRequestGenerationConfig(t *testing.T) {
	maxTokens := 128
	temperature := 0.2
	m := New("m")

	chatRequest, err := m.buildChatRequest(&model.Request{
		GenerationConfig: model.GenerationConfig{
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Stop:        []string{"END"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(128), chatRequest.MaxCompletionTokens.Value)
	assert.Equal(t, 0.2, chatRequest.Temperature.Value)
	assert.Equal(t, "END", chatRequest.Stop.OfString.Value)
}

func TestConvertMessages(t *testing.T) {
	converted := convertMessages([]model.Message{
		model.NewSystemMessage("be brief"),
		model.NewUserMessage("hi"),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{
			ID: "call-1",
			Function: model.FunctionDefinitionParam{
				Name:      "calculator",
				Arguments: []byte(`{"expression":"1+1"}`),
			},
		}}},
		model.NewToolMessage("call-1", "calculator", `{"status":"executed","data":2}`),
	})

	require.Len(t, converted, 4)
	require.NotNil(t, converted[0].OfSystem)
	require.NotNil(t, converted[1].OfUser)
	require.NotNil(t, converted[2].OfAssistant)
	require.Len(t, converted[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "calculator", converted[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, converted[3].OfTool)
	assert.Equal(t, "call-1", converted[3].OfTool.ToolCallID)
}

func TestConvertTools(t *testing.T) {
	converted := convertTools(map[string]tool.Tool{"search": &staticTool{name: "search"}})
	require.Len(t, converted, 1)
	assert.Equal(t, "search", converted[0].Function.Name)
	assert.Equal(t, "object", converted[0].Function.Parameters["type"])
}
