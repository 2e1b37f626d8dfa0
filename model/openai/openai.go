//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package openai adapts OpenAI-compatible chat completion APIs to the model
// provider interfaces. It works against the official endpoint as well as any
// server speaking the same protocol via WithBaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowgent/flowgent/log"
	"github.com/flowgent/flowgent/model"
	"github.com/flowgent/flowgent/tool"
)

const defaultChannelBufferSize = 256

// Model talks to an OpenAI-compatible chat completion endpoint. It implements
// both model.Completer and model.Streamer.
type Model struct {
	client            openai.Client
	name              string
	aiSDKStyle        bool
	channelBufferSize int
}

// Option is a function that configures the model.
type Option func(*options)

type options struct {
	APIKey            string
	BaseURL           string
	AISDKStyle        bool
	ChannelBufferSize int
	OpenAIOptions     []openaiopt.RequestOption
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(opts *options) {
		opts.APIKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(opts *options) {
		opts.BaseURL = url
	}
}

// WithAISDKStyle marks the provider as one that resolves the model itself;
// requests without a model name are then valid.
func WithAISDKStyle(aiSDKStyle bool) Option {
	return func(opts *options) {
		opts.AISDKStyle = aiSDKStyle
	}
}

// WithChannelBufferSize sets the buffer size of the streaming chunk channel.
func WithChannelBufferSize(size int) Option {
	return func(opts *options) {
		opts.ChannelBufferSize = size
	}
}

// WithOpenAIOptions appends raw request options passed to the client.
func WithOpenAIOptions(openaiOpts ...openaiopt.RequestOption) Option {
	return func(opts *options) {
		opts.OpenAIOptions = append(opts.OpenAIOptions, openaiOpts...)
	}
}

// New creates an OpenAI-compatible model with the given default name.
func New(name string, opts ...Option) *Model {
	o := &options{
		ChannelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	clientOpts = append(clientOpts, o.OpenAIOptions...)

	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		aiSDKStyle:        o.AISDKStyle,
		channelBufferSize: o.ChannelBufferSize,
	}
}

// Info implements the model.Provider interface.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:       m.name,
		AISDKStyle: m.aiSDKStyle,
	}
}

// Complete implements the model.Completer interface.
func (m *Model) Complete(ctx context.Context, request *model.Request) (*model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	chatRequest, err := m.buildChatRequest(request)
	if err != nil {
		return nil, err
	}
	completion, err := m.client.Chat.Completions.New(ctx, chatRequest)
	if err != nil {
		return nil, err
	}

	response := &model.Response{Model: completion.Model}
	if completion.Usage.TotalTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		}
	}
	if len(completion.Choices) == 0 {
		return response, nil
	}
	choice := completion.Choices[0]
	message := model.Message{
		Role:    model.RoleAssistant,
		Content: choice.Message.Content,
	}
	for i, toolCall := range choice.Message.ToolCalls {
		index := i
		message.ToolCalls = append(message.ToolCalls, model.ToolCall{
			Type: "function",
			ID:   toolCall.ID,
			Function: model.FunctionDefinitionParam{
				Name:      toolCall.Function.Name,
				Arguments: []byte(toolCall.Function.Arguments),
			},
			Index: &index,
		})
	}
	response.Message = message
	return response, nil
}

// Stream implements the model.Streamer interface. Transport errors surface
// as a chunk with Err set; the channel is always closed.
func (m *Model) Stream(ctx context.Context, request *model.Request) (<-chan model.Chunk, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	chatRequest, err := m.buildChatRequest(request)
	if err != nil {
		return nil, err
	}
	chatRequest.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	chunks := make(chan model.Chunk, m.channelBufferSize)
	go func() {
		defer close(chunks)
		stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				chunks <- model.Chunk{Usage: &model.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				chunks <- model.Chunk{Delta: choice.Delta.Content}
			}
			for _, toolCall := range choice.Delta.ToolCalls {
				chunks <- model.Chunk{ToolCallDelta: &model.ToolCallDelta{
					Index:          int(toolCall.Index),
					ID:             toolCall.ID,
					Name:           toolCall.Function.Name,
					ArgumentsDelta: toolCall.Function.Arguments,
				}}
			}
			if choice.FinishReason != "" {
				chunks <- model.Chunk{Done: true, FinishReason: choice.FinishReason}
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- model.Chunk{Err: err}
		}
	}()
	return chunks, nil
}

func (m *Model) buildChatRequest(request *model.Request) (openai.ChatCompletionNewParams, error) {
	name := request.Model
	if name == "" {
		name = m.name
	}
	if name == "" && !m.aiSDKStyle {
		return openai.ChatCompletionNewParams{}, errors.New("no model name configured")
	}

	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(name),
		Messages: convertMessages(request.Messages),
		Tools:    convertTools(request.Tools),
	}
	if request.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) == 1 {
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(request.Stop[0]),
		}
	} else if len(request.Stop) > 1 {
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: request.Stop,
		}
	}
	return chatRequest, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, toolCall := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: toolCall.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      toolCall.Function.Name,
						Arguments: string(toolCall.Function.Arguments),
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case model.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolID))
		default:
			result = append(result, convertUserMessage(msg))
		}
	}
	return result
}

func convertUserMessage(msg model.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ContentParts) == 0 {
		return openai.UserMessage(msg.Content)
	}
	var parts []openai.ChatCompletionContentPartUnionParam
	for _, part := range msg.ContentParts {
		switch part.Type {
		case model.ContentPartImage:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: part.URL,
			}))
		case model.ContentPartText:
			parts = append(parts, openai.TextContentPart(part.Text))
		default:
			// File references degrade to text so compatible servers without
			// file support still see the reference.
			parts = append(parts, openai.TextContentPart(part.Name+": "+part.URL))
		}
	}
	return openai.UserMessage(parts)
}

func convertTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range tools {
		declaration := t.Declaration()
		schemaBytes, err := json.Marshal(declaration.InputSchema)
		if err != nil {
			log.Errorf("failed to marshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("failed to unmarshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}
