//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

// Package telemetry provides the shared observability plumbing: span naming,
// GenAI semantic attributes and the collector connection helper used by the
// trace and metric exporters.
package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/flowgent/flowgent/model"
	"github.com/flowgent/flowgent/tool"
)

// telemetry service constants.
const (
	ServiceName      = "telemetry"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "flowgent"
	InstrumentName   = "flowgent.agent"

	SpanNameRun               = "agent_run"
	SpanNameCallLLM           = "call_llm"
	SpanNamePrefixExecuteTool = "execute_tool"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// telemetry attribute constants.
var (
	KeyRunID        = "flowgent.run_id"
	KeyTraceID      = "flowgent.trace_id"
	KeyAgentName    = "flowgent.agent_name"
	KeyTurn         = "flowgent.turn"
	KeyToolCallID   = "flowgent.tool_call_id"
	KeyToolCallArgs = "flowgent.tool_call_args"
	KeyToolError    = "flowgent.tool_error"
	KeyToolStatus   = "flowgent.tool_status"
)

// TraceCallLLM records the attributes of a model invocation on the span.
func TraceCallLLM(span trace.Span, runID, agentName, modelName string, turn int, rsp *model.Response) {
	span.SetAttributes(
		attribute.String("gen_ai.system", "flowgent"),
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.request.model", modelName),
		attribute.String(KeyRunID, runID),
		attribute.String(KeyAgentName, agentName),
		attribute.Int(KeyTurn, turn),
	)
	if rsp == nil || rsp.Usage == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", rsp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", rsp.Usage.CompletionTokens),
	)
}

// TraceToolCall records the attributes of one tool execution on the span.
func TraceToolCall(span trace.Span, declaration *tool.Declaration, toolCallID string, args []byte, status, errText string) {
	span.SetAttributes(
		attribute.String("gen_ai.system", "flowgent"),
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String("gen_ai.tool.name", declaration.Name),
		attribute.String("gen_ai.tool.description", declaration.Description),
		attribute.String(KeyToolCallID, toolCallID),
		attribute.String(KeyToolCallArgs, string(args)),
		attribute.String(KeyToolStatus, status),
	)
	if errText != "" {
		span.SetAttributes(attribute.String(KeyToolError, errText))
	}
}

// NewGRPCConn creates the shared gRPC connection to the OTLP collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
