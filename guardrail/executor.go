//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package guardrail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowgent/flowgent/log"
	"github.com/flowgent/flowgent/model"
)

// Violation describes a failed guardrail check.
type Violation struct {
	Guardrail string
	Reason    string
}

// Executor runs guardrail sets according to a Config.
type Executor struct {
	mode     string
	timeout  time.Duration
	failSafe string
}

// NewExecutor creates an executor, applying the config defaults.
func NewExecutor(cfg *Config) *Executor {
	e := &Executor{
		mode:     ModeParallel,
		timeout:  DefaultTimeout,
		failSafe: FailSafeAllow,
	}
	if cfg == nil {
		return e
	}
	if cfg.ExecutionMode != "" {
		e.mode = cfg.ExecutionMode
	}
	if cfg.Timeout > 0 {
		e.timeout = cfg.Timeout
	}
	if cfg.FailSafe != "" {
		e.failSafe = cfg.FailSafe
	}
	return e
}

// Mode returns the effective execution mode.
func (e *Executor) Mode() string { return e.mode }

// errViolation cancels the errgroup early on the first violation; the actual
// violation is reported out of band so the model-call error does not mask it.
var errViolation = fmt.Errorf("guardrail violation")

// CheckInputWithModel runs the input guardrails and the model call per the
// configured mode. On violation the model response is discarded and a non-nil
// Violation is returned. The returned error reports model-call failures only.
func (e *Executor) CheckInputWithModel(
	ctx context.Context,
	guardrails []Guardrail,
	content string,
	callModel func(ctx context.Context) (*model.Response, error),
) (*model.Response, *Violation, error) {
	if len(guardrails) == 0 {
		rsp, err := callModel(ctx)
		return rsp, nil, err
	}

	if e.mode == ModeSequential {
		for _, g := range guardrails {
			if d := e.check(ctx, g, content); !d.Valid {
				return nil, &Violation{Guardrail: g.Name(), Reason: d.Reason}, nil
			}
		}
		rsp, err := callModel(ctx)
		return rsp, nil, err
	}

	// Parallel mode: guardrails and the model call run concurrently. The
	// first violation cancels the group; the in-flight response is dropped.
	var (
		mu        sync.Mutex
		violation *Violation
		response  *model.Response
		modelErr  error
	)
	group, gctx := errgroup.WithContext(ctx)
	for _, g := range guardrails {
		group.Go(func() error {
			if d := e.check(gctx, g, content); !d.Valid {
				mu.Lock()
				if violation == nil {
					violation = &Violation{Guardrail: g.Name(), Reason: d.Reason}
				}
				mu.Unlock()
				return errViolation
			}
			return nil
		})
	}
	group.Go(func() error {
		rsp, err := callModel(gctx)
		mu.Lock()
		response, modelErr = rsp, err
		mu.Unlock()
		// Model failures must not cancel guardrails; the caller decides.
		return nil
	})
	_ = group.Wait()

	if violation != nil {
		return nil, violation, nil
	}
	return response, nil, modelErr
}

// CheckOutput runs the output guardrails sequentially; the first failure wins.
func (e *Executor) CheckOutput(ctx context.Context, guardrails []Guardrail, content string) *Violation {
	for _, g := range guardrails {
		if d := e.check(ctx, g, content); !d.Valid {
			return &Violation{Guardrail: g.Name(), Reason: d.Reason}
		}
	}
	return nil
}

// check runs one guardrail with the configured timeout and fail-safe policy.
func (e *Executor) check(ctx context.Context, g Guardrail, content string) Decision {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan Decision, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Guardrail %s panicked: %v", g.Name(), r)
				done <- e.failSafeDecision(fmt.Sprintf("guardrail panicked: %v", r))
			}
		}()
		done <- g.Check(cctx, content)
	}()

	select {
	case d := <-done:
		return d
	case <-cctx.Done():
		log.Warnf("Guardrail %s did not finish in %s, applying %s policy", g.Name(), e.timeout, e.failSafe)
		return e.failSafeDecision("guardrail timed out")
	}
}

func (e *Executor) failSafeDecision(reason string) Decision {
	if e.failSafe == FailSafeBlock {
		return Decision{Valid: false, Reason: reason}
	}
	return Decision{Valid: true}
}
