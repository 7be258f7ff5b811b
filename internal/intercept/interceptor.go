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

// Package intercept orchestrates one governed action end-to-end:
// classify, decide, await approval if gated, execute with bounded
// retry, then record artifacts and emit events.
//
// The interceptor's return value depends only on the governed action's
// outcome. Artifact writes, event emission, and webhook notifications
// are best-effort side effects whose failures are logged, never raised.
package intercept

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/peg/bridle/internal/approval"
	"github.com/peg/bridle/internal/events"
	"github.com/peg/bridle/internal/notify"
	"github.com/peg/bridle/internal/policy"
	"github.com/peg/bridle/internal/retry"
	"github.com/peg/bridle/internal/risk"
)

// PerformFunc executes the underlying action. Supplied per call by the
// caller; this package never constructs the automation driver, it only
// governs whether and how many times the function runs.
type PerformFunc func(ctx context.Context) (any, error)

// ApprovalCallback resolves a gate decision. Returning true approves
// the action. The callback must honor ctx cancellation.
type ApprovalCallback func(ctx context.Context, tool string, decision policy.Decision) (bool, error)

// SnapshotFunc captures a fresh page observation for selector healing.
type SnapshotFunc func(ctx context.Context) (any, error)

// HealFunc receives a fresh snapshot after a selector failure so the
// caller can retry with corrected targeting.
type HealFunc func(tool string, args map[string]any, snapshot any)

// defaultRetryBackoff applies when the config leaves RetryBackoff unset.
const defaultRetryBackoff = 250 * time.Millisecond

// Session carries the per-session context an action executes under.
type Session struct {
	// ID identifies the browser session.
	ID string

	// CurrentOrigin is the origin the session is currently on, if known.
	CurrentOrigin string

	// HasCredentialsOnPage reports whether credential fields were
	// observed on the current page.
	HasCredentialsOnPage bool

	// Warnings dedupes repeated denial warnings for this session. The
	// cache is owned by the caller's session context; nil disables
	// deduplication.
	Warnings *WarnCache
}

// Interceptor governs browser actions against the active policy.
// Safe for concurrent use; Execute holds no global lock.
type Interceptor struct {
	source    *policy.Source
	log       *approval.Log
	sink      events.Sink
	notifier  notify.Notifier
	onGate    ApprovalCallback
	snapshot  SnapshotFunc
	heal      HealFunc
	artifacts *ArtifactStore
	logger    *slog.Logger
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithEventSink streams terminal action outcomes to sink.
func WithEventSink(sink events.Sink) Option {
	return func(i *Interceptor) { i.sink = sink }
}

// WithNotifier sends webhook notifications on deny and gate outcomes.
func WithNotifier(n notify.Notifier) Option {
	return func(i *Interceptor) { i.notifier = n }
}

// WithApprovalCallback installs the gate resolver. Without one, every
// gated action resolves to denied.
func WithApprovalCallback(cb ApprovalCallback) Option {
	return func(i *Interceptor) { i.onGate = cb }
}

// WithSelectorHealing installs the snapshot capture and healing hook
// used after selector-category failures of interactive actions.
func WithSelectorHealing(snapshot SnapshotFunc, heal HealFunc) Option {
	return func(i *Interceptor) {
		i.snapshot = snapshot
		i.heal = heal
	}
}

// WithArtifacts records observational results to store.
func WithArtifacts(store *ArtifactStore) Option {
	return func(i *Interceptor) { i.artifacts = store }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an Interceptor over a config source and approval log.
func New(source *policy.Source, log *approval.Log, opts ...Option) *Interceptor {
	i := &Interceptor{
		source: source,
		log:    log,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Execute runs one action through the pipeline.
//
// Ungoverned tools pass through untouched. Denied actions return a
// *policy.DeniedError without invoking perform. Gated actions block on
// the approval callback (absent callback or timeout resolves to
// denied). Allowed actions run inside the bounded retry loop; on
// exhaustion the last error is returned, classified but not obscured.
func (i *Interceptor) Execute(ctx context.Context, tool string, args map[string]any, sess Session, perform PerformFunc) (any, error) {
	if !risk.Governed(tool) {
		return perform(ctx)
	}

	cfg := i.source.Current()
	req := policy.Request{
		Tool:                 tool,
		Args:                 args,
		SessionID:            sess.ID,
		CurrentOrigin:        sess.CurrentOrigin,
		HasCredentialsOnPage: sess.HasCredentialsOnPage,
	}
	decision := policy.Evaluate(req, cfg)
	kind := risk.KindForTool(tool)

	RecordDecision(decision.Outcome.String(), decision.Tier.String())

	switch decision.Outcome {
	case policy.OutcomeDeny:
		i.warnDenied(sess, tool, decision, args)
		i.notifyOutcome("deny", tool, decision, sess)
		return nil, &policy.DeniedError{Tool: tool, Decision: decision}

	case policy.OutcomeGate:
		approved, resolvedBy := i.resolveGate(ctx, cfg, tool, decision)
		i.recordGate(sess, tool, decision, approved, resolvedBy)
		if !approved {
			i.notifyOutcome("gate", tool, decision, sess)
			denied := decision
			denied.Outcome = policy.OutcomeDeny
			denied.Reason = fmt.Sprintf("approval %s for gated action %q", resolvedBy, decision.ActionKey)
			return nil, &policy.DeniedError{Tool: tool, Decision: denied}
		}
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	result, out := retry.Do(ctx, cfg.MaxRetries, backoff, func(ctx context.Context) (any, error) {
		return perform(ctx)
	})
	RecordExecution(out.Attempts, out.LastErr == nil, out.Category.String())

	if out.LastErr != nil {
		i.logger.Debug("intercept: action failed",
			"tool", tool,
			"attempts", out.Attempts,
			"category", out.Category.String(),
			"error", out.LastErr,
		)
		if out.Category == retry.CategorySelector && kind.Interactive() {
			i.healSelector(ctx, tool, args)
		}
		i.emitEvent(tool, "error", out.Category.String(), decision, sess)
		return nil, &ExecutionError{
			Tool:     tool,
			Attempts: out.Attempts,
			Category: out.Category,
			Err:      out.LastErr,
		}
	}

	if kind.Observational() {
		result = i.recordArtifact(cfg, sess, decision, result)
	}
	i.emitEvent(tool, "success", "", decision, sess)

	return result, nil
}

// resolveGate blocks until the approval callback resolves, the gate
// timeout expires, or ctx is cancelled. Missing callback, timeout, and
// callback error all resolve to denied rather than hanging.
func (i *Interceptor) resolveGate(ctx context.Context, cfg *policy.Config, tool string, decision policy.Decision) (bool, string) {
	if i.onGate == nil {
		return false, "missing-callback"
	}

	gateCtx, cancel := context.WithTimeout(ctx, cfg.EffectiveGateTimeout())
	defer cancel()

	type resolution struct {
		approved bool
		err      error
	}
	ch := make(chan resolution, 1)
	go func() {
		approved, err := i.onGate(gateCtx, tool, decision)
		ch <- resolution{approved: approved, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			i.logger.Warn("intercept: approval callback failed",
				"tool", tool,
				"error", r.err,
			)
			return false, "callback-error"
		}
		if r.approved {
			return true, "callback"
		}
		return false, "rejected"
	case <-gateCtx.Done():
		return false, "timeout"
	}
}

// recordGate appends the resolved gate outcome to the approval log
// before execution proceeds.
func (i *Interceptor) recordGate(sess Session, tool string, decision policy.Decision, approved bool, resolvedBy string) {
	if i.log == nil {
		return
	}

	outcome := approval.OutcomeDenied
	if approved {
		outcome = approval.OutcomeApproved
	}
	RecordGate(string(outcome))

	err := i.log.Append(approval.Event{
		Tool:       tool,
		SessionID:  sess.ID,
		Outcome:    outcome,
		ActionKey:  decision.ActionKey,
		RiskTier:   decision.Tier.String(),
		ResolvedBy: resolvedBy,
	})
	if err != nil {
		i.logger.Error("intercept: append approval event",
			"tool", tool,
			"error", err,
		)
	}
}

// healSelector captures a fresh observation and hands it to the healing
// hook. Best-effort: failures are logged and the original error still
// propagates to the caller.
func (i *Interceptor) healSelector(ctx context.Context, tool string, args map[string]any) {
	if i.snapshot == nil || i.heal == nil {
		return
	}

	snap, err := i.snapshot(ctx)
	if err != nil {
		i.logger.Warn("intercept: healing snapshot failed",
			"tool", tool,
			"error", err,
		)
		return
	}
	i.heal(tool, args, snap)
}

// recordArtifact saves observational binary results, compressing them
// to the configured byte budget first. The (possibly compressed) result
// is returned; a failed save never fails the action.
func (i *Interceptor) recordArtifact(cfg *policy.Config, sess Session, decision policy.Decision, result any) any {
	data, ok := result.([]byte)
	if !ok {
		return result
	}

	if cfg.ArtifactByteBudget > 0 && len(data) > cfg.ArtifactByteBudget {
		data = CompressImage(data, cfg.ArtifactByteBudget, i.logger)
		result = data
	}

	if i.artifacts == nil {
		return result
	}
	path, err := i.artifacts.Save(sess.ID, decision.ActionKey, data)
	if err != nil {
		i.logger.Warn("intercept: artifact save failed",
			"session", sess.ID,
			"action_key", decision.ActionKey,
			"error", err,
		)
		return result
	}
	i.logger.Debug("intercept: artifact recorded",
		"session", sess.ID,
		"path", path,
	)
	return result
}

// emitEvent streams a terminal outcome, success or failure. Never
// blocks.
func (i *Interceptor) emitEvent(tool, outcome, failureCategory string, decision policy.Decision, sess Session) {
	if i.sink == nil {
		return
	}
	i.sink.Emit(events.BrowserEvent{
		Tool:            tool,
		Outcome:         outcome,
		RiskTier:        decision.Tier.String(),
		ActionKey:       decision.ActionKey,
		TargetOrigin:    decision.Evidence.TargetOrigin,
		SessionID:       sess.ID,
		Timestamp:       time.Now().UTC(),
		FailureCategory: failureCategory,
	})
}

// notifyOutcome fires the operator webhook for a refusal. Best-effort.
func (i *Interceptor) notifyOutcome(outcome, tool string, decision policy.Decision, sess Session) {
	notify.SendAsync(i.notifier, notify.Event{
		Outcome:   outcome,
		Tool:      tool,
		ActionKey: decision.ActionKey,
		RiskTier:  decision.Tier.String(),
		Reason:    decision.Reason,
		SessionID: sess.ID,
	}, i.logger)
}

// warnDenied logs a denial once per session/tool/reason combination.
func (i *Interceptor) warnDenied(sess Session, tool string, decision policy.Decision, args map[string]any) {
	key := tool + "\x00" + decision.Reason
	if !sess.Warnings.Once(key) {
		return
	}
	i.logger.Warn("intercept: action denied",
		"tool", tool,
		"session", sess.ID,
		"tier", decision.Tier.String(),
		"reason", decision.Reason,
		"args", RedactArgs(args),
	)
}
