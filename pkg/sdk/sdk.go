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

// Package sdk is the public API for embedding the gating pipeline in an
// agent runtime.
//
// The SDK wraps browser tool functions with policy enforcement. A
// wrapped function classifies, decides, optionally gates, and executes
// with bounded retry. Denials surface as *policy.DeniedError.
//
// Basic usage:
//
//	s, _ := sdk.New("bridle.yaml", "approvals.jsonl")
//	safeClick := s.Wrap("browser_click", rawClick)
//	result, err := safeClick(ctx, map[string]any{"selector": "#buy"})
package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/peg/bridle/internal/approval"
	"github.com/peg/bridle/internal/intercept"
	"github.com/peg/bridle/internal/policy"
)

// contextKey is an unexported type for context keys, preventing
// collisions with keys from other packages.
type contextKey string

const (
	// SessionKey is the context key for the browser session identifier.
	SessionKey contextKey = "bridle-session"

	// OriginKey is the context key for the session's current origin.
	OriginKey contextKey = "bridle-origin"

	defaultSession = "unknown-session"
)

// ToolFunc is a runtime tool function wrapped by policy checks.
type ToolFunc func(ctx context.Context, params map[string]any) (any, error)

// SDK wraps the pipeline for agent runtime integrations.
type SDK struct {
	source      *policy.Source
	interceptor *intercept.Interceptor
	logger      *slog.Logger
}

// New creates an SDK from a config file path and an approval log path.
func New(configPath, approvalLogPath string, opts ...intercept.Option) (*SDK, error) {
	source, err := policy.NewSource(policy.NewFileStore(configPath), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("sdk: load config: %w", err)
	}

	log, err := approval.NewLog(approvalLogPath, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("sdk: open approval log: %w", err)
	}

	return &SDK{
		source:      source,
		interceptor: intercept.New(source, log, opts...),
		logger:      slog.Default(),
	}, nil
}

// NewWithSource creates an SDK over a caller-owned config source and
// interceptor, for embedders that manage their own loading.
func NewWithSource(source *policy.Source, interceptor *intercept.Interceptor) *SDK {
	return &SDK{
		source:      source,
		interceptor: interceptor,
		logger:      slog.Default(),
	}
}

// Interceptor exposes the underlying interceptor for delegator wiring.
func (s *SDK) Interceptor() *intercept.Interceptor {
	return s.interceptor
}

// Wrap returns a policy-enforced wrapper for a tool function.
func (s *SDK) Wrap(toolName string, fn ToolFunc) ToolFunc {
	warnings := intercept.NewWarnCache()

	return func(ctx context.Context, params map[string]any) (any, error) {
		start := time.Now()
		sess := sessionFromContext(ctx)
		sess.Warnings = warnings

		result, err := s.interceptor.Execute(ctx, toolName, params, sess, func(ctx context.Context) (any, error) {
			return fn(ctx, params)
		})

		s.logger.Debug("sdk: tool completed",
			"tool", toolName,
			"session", sess.ID,
			"duration", time.Since(start),
			"error", err,
		)
		return result, err
	}
}

// Preflight checks whether a tool call would be allowed without
// executing it. Agents can use this to plan around restrictions or
// batch approval requests before attempting blocked actions.
func (s *SDK) Preflight(ctx context.Context, toolName string, params map[string]any) policy.Decision {
	sess := sessionFromContext(ctx)
	return policy.Evaluate(policy.Request{
		Tool:          toolName,
		Args:          params,
		SessionID:     sess.ID,
		CurrentOrigin: sess.CurrentOrigin,
	}, s.source.Current())
}

// sessionFromContext builds the session context from ctx values.
func sessionFromContext(ctx context.Context) intercept.Session {
	sess := intercept.Session{ID: defaultSession}
	if ctx == nil {
		return sess
	}
	if id, _ := ctx.Value(SessionKey).(string); id != "" {
		sess.ID = id
	}
	if origin, _ := ctx.Value(OriginKey).(string); origin != "" {
		sess.CurrentOrigin = origin
	}
	return sess
}
