// Copyright 2026 The Bridle Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package subagent delegates goals to isolated, budgeted execution
// loops that route every action through the interceptor.
//
// Failures inside a delegation (runner errors, panics, budget
// exhaustion) are captured and returned as a failed result, never
// propagated to the caller. Parallel delegation bounds concurrency with
// a weighted semaphore, isolates sibling faults, and preserves input
// order in the result slice.
package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/peg/bridle/internal/intercept"
)

// Goal describes one delegation.
type Goal struct {
	// Goal is the objective handed to the sub-agent loop.
	Goal string

	// PreferredSessionID threads browser-session continuity across
	// delegations within a conversation. The delegator only references
	// the session; it never owns its lifecycle.
	PreferredSessionID string

	// InheritedContext carries conversation context into the specialist
	// framing.
	InheritedContext string

	// MaxToolCalls caps total tool invocations for this goal. 0 uses
	// the delegator default.
	MaxToolCalls int
}

// Result is the terminal outcome of one delegation. Returned once and
// never updated afterwards.
type Result struct {
	OK            bool     `json:"ok"`
	Summary       string   `json:"summary"`
	SessionID     string   `json:"session_id,omitempty"`
	ArtifactPaths []string `json:"artifact_paths,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// RunnerFunc is the injected sub-agent loop (the model client is
// external to this pipeline). It receives a Run whose Call method is
// the only path to the governed tool surface.
type RunnerFunc func(ctx context.Context, run *Run) (summary string, err error)

// DefaultMaxToolCalls bounds a delegation when the goal does not set
// its own ceiling.
const DefaultMaxToolCalls = 40

// Delegator spawns sub-agent loops.
type Delegator struct {
	interceptor *intercept.Interceptor
	artifacts   *intercept.ArtifactStore
	runner      RunnerFunc
	maxCalls    int
	logger      *slog.Logger
}

// Option configures a Delegator.
type Option func(*Delegator)

// WithMaxToolCalls sets the default per-goal call ceiling.
func WithMaxToolCalls(n int) Option {
	return func(d *Delegator) {
		if n > 0 {
			d.maxCalls = n
		}
	}
}

// WithArtifacts lets results report the artifacts recorded during the
// delegation's session.
func WithArtifacts(store *intercept.ArtifactStore) Option {
	return func(d *Delegator) { d.artifacts = store }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Delegator) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Delegator routing all tool calls through interceptor.
func New(interceptor *intercept.Interceptor, runner RunnerFunc, opts ...Option) *Delegator {
	d := &Delegator{
		interceptor: interceptor,
		runner:      runner,
		maxCalls:    DefaultMaxToolCalls,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Delegate runs one goal to completion and returns its result. Any
// failure inside the spawn is captured in the result, never propagated.
func (d *Delegator) Delegate(ctx context.Context, goal Goal) (result Result) {
	sessionID := goal.PreferredSessionID
	if sessionID == "" {
		sessionID = "sub-" + uuid.NewString()
	}
	result.SessionID = sessionID

	maxCalls := goal.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = d.maxCalls
	}

	run := &Run{
		id:          uuid.NewString(),
		sessionID:   sessionID,
		goal:        goal,
		interceptor: d.interceptor,
		budget:      newCallBudget(maxCalls),
		warnings:    intercept.NewWarnCache(),
		logger:      d.logger,
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subagent: runner panicked",
				"run_id", run.id,
				"goal", goal.Goal,
				"panic", r,
			)
			result.OK = false
			result.Error = fmt.Sprintf("subagent: runner panic: %v", r)
		}
		if d.artifacts != nil {
			result.ArtifactPaths = d.artifacts.PathsForSession(sessionID)
		}
	}()

	d.logger.Info("subagent: delegation started",
		"run_id", run.id,
		"session", sessionID,
		"max_tool_calls", maxCalls,
	)

	summary, err := d.runner(ctx, run)
	if err != nil {
		d.logger.Warn("subagent: delegation failed",
			"run_id", run.id,
			"tool_calls", run.budget.used(),
			"error", err,
		)
		result.OK = false
		result.Error = err.Error()
		return result
	}

	d.logger.Info("subagent: delegation completed",
		"run_id", run.id,
		"tool_calls", run.budget.used(),
	)
	result.OK = true
	result.Summary = summary
	return result
}

// DelegateParallel runs goals in semaphore-capped batches. One goal's
// failure never aborts its siblings, and results preserve input order.
func (d *Delegator) DelegateParallel(ctx context.Context, goals []Goal, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result, len(goals))
	sem := semaphore.NewWeighted(int64(concurrency))

	var wg sync.WaitGroup
	for idx, goal := range goals {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[idx] = Result{OK: false, Error: err.Error()}
			continue
		}

		wg.Add(1)
		go func(idx int, goal Goal) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = d.Delegate(ctx, goal)
		}(idx, goal)
	}
	wg.Wait()

	return results
}

// Run is one delegation's execution context: the governed tool surface
// plus the call budget.
type Run struct {
	id          string
	sessionID   string
	goal        Goal
	interceptor *intercept.Interceptor
	budget      *callBudget
	warnings    *intercept.WarnCache
	logger      *slog.Logger
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// SessionID returns the browser session this run operates in.
func (r *Run) SessionID() string { return r.sessionID }

// Framing renders the specialist framing for the sub-agent: the goal
// plus any inherited session and context.
func (r *Run) Framing() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a browser specialist working toward a single goal: %s\n", r.goal.Goal)
	if r.goal.PreferredSessionID != "" {
		fmt.Fprintf(&b, "Continue in existing browser session %s.\n", r.goal.PreferredSessionID)
	}
	if r.goal.InheritedContext != "" {
		fmt.Fprintf(&b, "Context from the requesting conversation:\n%s\n", r.goal.InheritedContext)
	}
	return b.String()
}

// Call issues one governed action. The circuit breaker trips once the
// call budget is exhausted; after that every call fails fast with
// ErrBudgetExhausted.
func (r *Run) Call(ctx context.Context, tool string, args map[string]any, sess intercept.Session, perform intercept.PerformFunc) (any, error) {
	if err := r.budget.take(); err != nil {
		r.logger.Warn("subagent: call budget exhausted",
			"run_id", r.id,
			"tool", tool,
		)
		return nil, err
	}

	if sess.ID == "" {
		sess.ID = r.sessionID
	}
	if sess.Warnings == nil {
		sess.Warnings = r.warnings
	}
	return r.interceptor.Execute(ctx, tool, args, sess, perform)
}

// CallsRemaining reports the remaining budget.
func (r *Run) CallsRemaining() int {
	return r.budget.remainingCount()
}
