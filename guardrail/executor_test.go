//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package guardrail

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgent/flowgent/model"
)

func allow(name string) Guardrail {
	return Func(name, func(ctx context.Context, content string) Decision {
		return Decision{Valid: true}
	})
}

func reject(name, reason string) Guardrail {
	return Func(name, func(ctx context.Context, content string) Decision {
		return Decision{Valid: false, Reason: reason}
	})
}

func TestSequentialViolationSkipsModel(t *testing.T) {
	executor := NewExecutor(&Config{ExecutionMode: ModeSequential})
	var called atomic.Bool

	rsp, violation, err := executor.CheckInputWithModel(context.Background(),
		[]Guardrail{allow("ok"), reject("spam", "spam detected")},
		"buy now",
		func(ctx context.Context) (*model.Response, error) {
			called.Store(true)
			return &model.Response{}, nil
		})

	require.NoError(t, err)
	require.NotNil(t, violation)
	assert.Equal(t, "spam", violation.Guardrail)
	assert.Equal(t, "spam detected", violation.Reason)
	assert.Nil(t, rsp)
	assert.False(t, called.Load(), "sequential mode must not call the model on violation")
}

func TestParallelViolationDiscardsResponse(t *testing.T) {
	executor := NewExecutor(&Config{ExecutionMode: ModeParallel})

	rsp, violation, err := executor.CheckInputWithModel(context.Background(),
		[]Guardrail{reject("spam", "spam detected")},
		"buy now",
		func(ctx context.Context) (*model.Response, error) {
			// Slower than the guardrail; its output must be dropped.
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
			}
			return &model.Response{Message: model.NewAssistantMessage("hi")}, nil
		})

	require.NoError(t, err)
	require.NotNil(t, violation)
	assert.Nil(t, rsp)
}

func TestParallelAllPassReturnsResponse(t *testing.T) {
	executor := NewExecutor(nil)

	rsp, violation, err := executor.CheckInputWithModel(context.Background(),
		[]Guardrail{allow("a"), allow("b")},
		"hello",
		func(ctx context.Context) (*model.Response, error) {
			return &model.Response{Message: model.NewAssistantMessage("hi")}, nil
		})

	require.NoError(t, err)
	assert.Nil(t, violation)
	require.NotNil(t, rsp)
	assert.Equal(t, "hi", rsp.Message.Content)
}

func TestModelErrorSurfacesWithoutViolation(t *testing.T) {
	executor := NewExecutor(nil)
	wantErr := errors.New("upstream down")

	rsp, violation, err := executor.CheckInputWithModel(context.Background(),
		[]Guardrail{allow("a")},
		"hello",
		func(ctx context.Context) (*model.Response, error) {
			return nil, wantErr
		})

	assert.Nil(t, rsp)
	assert.Nil(t, violation)
	assert.ErrorIs(t, err, wantErr)
}

func TestNoGuardrailsCallsModelDirectly(t *testing.T) {
	executor := NewExecutor(nil)
	rsp, violation, err := executor.CheckInputWithModel(context.Background(), nil, "hello",
		func(ctx context.Context) (*model.Response, error) {
			return &model.Response{Message: model.NewAssistantMessage("direct")}, nil
		})
	require.NoError(t, err)
	assert.Nil(t, violation)
	assert.Equal(t, "direct", rsp.Message.Content)
}

func TestTimeoutFailSafe(t *testing.T) {
	hang := Func("slow", func(ctx context.Context, content string) Decision {
		<-ctx.Done()
		return Decision{Valid: true}
	})

	blockExec := NewExecutor(&Config{Timeout: 20 * time.Millisecond, FailSafe: FailSafeBlock})
	violation := blockExec.CheckOutput(context.Background(), []Guardrail{hang}, "x")
	require.NotNil(t, violation)
	assert.Contains(t, violation.Reason, "timed out")

	allowExec := NewExecutor(&Config{Timeout: 20 * time.Millisecond, FailSafe: FailSafeAllow})
	assert.Nil(t, allowExec.CheckOutput(context.Background(), []Guardrail{hang}, "x"))
}

func TestPanicFailSafe(t *testing.T) {
	panicky := Func("panicky", func(ctx context.Context, content string) Decision {
		panic("boom")
	})

	blockExec := NewExecutor(&Config{FailSafe: FailSafeBlock})
	violation := blockExec.CheckOutput(context.Background(), []Guardrail{panicky}, "x")
	require.NotNil(t, violation)
	assert.Contains(t, violation.Reason, "panicked")

	allowExec := NewExecutor(&Config{FailSafe: FailSafeAllow})
	assert.Nil(t, allowExec.CheckOutput(context.Background(), []Guardrail{panicky}, "x"))
}

func TestCheckOutputFirstFailureWins(t *testing.T) {
	executor := NewExecutor(nil)
	violation := executor.CheckOutput(context.Background(),
		[]Guardrail{allow("a"), reject("pii", "contains PII"), reject("other", "later")}, "x")
	require.NotNil(t, violation)
	assert.Equal(t, "pii", violation.Guardrail)
}

func TestExecutorDefaults(t *testing.T) {
	executor := NewExecutor(nil)
	assert.Equal(t, ModeParallel, executor.Mode())
}
