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

package intercept

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peg/bridle/internal/adapt"
	"github.com/peg/bridle/internal/approval"
	"github.com/peg/bridle/internal/events"
	"github.com/peg/bridle/internal/policy"
	"github.com/peg/bridle/internal/retry"
)

func testApprovalLog(t *testing.T) *approval.Log {
	t.Helper()
	l, err := approval.NewLog(filepath.Join(t.TempDir(), "approvals.jsonl"), nil)
	require.NoError(t, err)
	return l
}

func newTestInterceptor(t *testing.T, cfg *policy.Config, opts ...Option) (*Interceptor, *approval.Log) {
	t.Helper()
	log := testApprovalLog(t)
	return New(policy.NewStaticSource(cfg), log, opts...), log
}

func countingPerform(result any, errs ...error) (PerformFunc, *atomic.Int32) {
	var calls atomic.Int32
	fn := func(ctx context.Context) (any, error) {
		n := int(calls.Add(1))
		if n <= len(errs) && errs[n-1] != nil {
			return nil, errs[n-1]
		}
		return result, nil
	}
	return fn, &calls
}

func TestUngovernedToolPassesThrough(t *testing.T) {
	// The strictest possible config must not touch non-browser tools.
	i, _ := newTestInterceptor(t, &policy.Config{RequireApprovalForHighRisk: true})

	perform, calls := countingPerform("file contents")
	result, err := i.Execute(context.Background(), "read_file", nil, Session{ID: "s-1"}, perform)

	require.NoError(t, err)
	assert.Equal(t, "file contents", result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeniedActionNeverRunsPerformer(t *testing.T) {
	i, _ := newTestInterceptor(t, &policy.Config{AllowedHosts: []string{"example.com"}})

	perform, calls := countingPerform(nil)
	_, err := i.Execute(context.Background(), "browser_navigate",
		map[string]any{"url": "https://evil.com"}, Session{ID: "s-1"}, perform)

	var denied *policy.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "browser_navigate", denied.Tool)
	assert.Zero(t, calls.Load(), "a denied action is never attempted")
}

func TestGateWithoutCallbackDenies(t *testing.T) {
	i, log := newTestInterceptor(t, &policy.Config{RequireApprovalForHighRisk: true})

	perform, calls := countingPerform(nil)
	_, err := i.Execute(context.Background(), "browser_evaluate",
		map[string]any{"function": "() => 1"}, Session{ID: "s-1"}, perform)

	var denied *policy.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Zero(t, calls.Load(), "no callback means the gate fails closed")

	evs, err := log.Read()
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, approval.OutcomeDenied, evs[0].Outcome)
	assert.Equal(t, "missing-callback", evs[0].ResolvedBy)
}

func TestGateApprovedRunsAndRecords(t *testing.T) {
	cb := func(ctx context.Context, tool string, d policy.Decision) (bool, error) {
		return true, nil
	}
	i, log := newTestInterceptor(t,
		&policy.Config{RequireApprovalForHighRisk: true},
		WithApprovalCallback(cb),
	)

	perform, calls := countingPerform("eval result")
	result, err := i.Execute(context.Background(), "browser_evaluate", nil, Session{ID: "s-1"}, perform)

	require.NoError(t, err)
	assert.Equal(t, "eval result", result)
	assert.Equal(t, int32(1), calls.Load())

	evs, err := log.Read()
	require.NoError(t, err)
	require.Len(t, evs, 1, "the approval is on disk before execution returns")
	assert.Equal(t, approval.OutcomeApproved, evs[0].Outcome)
	assert.Equal(t, "callback", evs[0].ResolvedBy)
	assert.Equal(t, "evaluate-script", evs[0].ActionKey)
	assert.Equal(t, "high", evs[0].RiskTier)
}

func TestGateRejectedDenies(t *testing.T) {
	cb := func(ctx context.Context, tool string, d policy.Decision) (bool, error) {
		return false, nil
	}
	i, log := newTestInterceptor(t,
		&policy.Config{RequireApprovalForHighRisk: true},
		WithApprovalCallback(cb),
	)

	perform, calls := countingPerform(nil)
	_, err := i.Execute(context.Background(), "browser_evaluate", nil, Session{ID: "s-1"}, perform)

	var denied *policy.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Zero(t, calls.Load())

	evs, _ := log.Read()
	require.Len(t, evs, 1)
	assert.Equal(t, "rejected", evs[0].ResolvedBy)
}

func TestGateCallbackErrorDenies(t *testing.T) {
	cb := func(ctx context.Context, tool string, d policy.Decision) (bool, error) {
		return true, errors.New("approval transport down")
	}
	i, log := newTestInterceptor(t,
		&policy.Config{RequireApprovalForHighRisk: true},
		WithApprovalCallback(cb),
	)

	perform, calls := countingPerform(nil)
	_, err := i.Execute(context.Background(), "browser_evaluate", nil, Session{ID: "s-1"}, perform)

	require.Error(t, err)
	assert.Zero(t, calls.Load(), "a failing callback is a denial, not an approval")

	evs, _ := log.Read()
	require.Len(t, evs, 1)
	assert.Equal(t, "callback-error", evs[0].ResolvedBy)
}

func TestGateTimeoutDenies(t *testing.T) {
	cb := func(ctx context.Context, tool string, d policy.Decision) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}
	i, log := newTestInterceptor(t,
		&policy.Config{
			RequireApprovalForHighRisk: true,
			GateTimeout:                20 * time.Millisecond,
		},
		WithApprovalCallback(cb),
	)

	perform, calls := countingPerform(nil)
	start := time.Now()
	_, err := i.Execute(context.Background(), "browser_evaluate", nil, Session{ID: "s-1"}, perform)

	require.Error(t, err)
	assert.Zero(t, calls.Load())
	assert.Less(t, time.Since(start), 5*time.Second, "gate resolves at the timeout, not indefinitely")

	evs, _ := log.Read()
	require.Len(t, evs, 1)
	assert.Equal(t, "timeout", evs[0].ResolvedBy)
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	i, _ := newTestInterceptor(t, &policy.Config{
		AllowedHosts: []string{"example.com"},
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})

	perform, calls := countingPerform("loaded", errors.New("net::ERR_TIMED_OUT"))
	result, err := i.Execute(context.Background(), "browser_navigate",
		map[string]any{"url": "https://example.com"}, Session{ID: "s-1"}, perform)

	require.NoError(t, err)
	assert.Equal(t, "loaded", result)
	assert.Equal(t, int32(2), calls.Load(), "one transient failure, one success: exactly two runs")
}

func TestExhaustedRetriesReturnExecutionError(t *testing.T) {
	i, _ := newTestInterceptor(t, &policy.Config{
		AllowedHosts: []string{"example.com"},
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})

	netErr := errors.New("net::ERR_CONNECTION_REFUSED")
	perform, calls := countingPerform(nil, netErr, netErr)
	_, err := i.Execute(context.Background(), "browser_navigate",
		map[string]any{"url": "https://example.com"}, Session{ID: "s-1"}, perform)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, execErr.Attempts)
	assert.Equal(t, retry.CategoryNetwork, execErr.Category)
	assert.Equal(t, netErr.Error(), err.Error(), "the last error's text is surfaced unchanged")
	assert.ErrorIs(t, err, netErr)
}

func TestSelectorFailureTriggersHealingNotRetry(t *testing.T) {
	var healed atomic.Int32
	snapshot := func(ctx context.Context) (any, error) { return "fresh snapshot", nil }
	heal := func(tool string, args map[string]any, snap any) {
		healed.Add(1)
		assert.Equal(t, "browser_click", tool)
		assert.Equal(t, "fresh snapshot", snap)
	}

	i, _ := newTestInterceptor(t,
		&policy.Config{MaxRetries: 3, RetryBackoff: time.Millisecond},
		WithSelectorHealing(snapshot, heal),
	)

	perform, calls := countingPerform(nil, errors.New("no node found for selector #buy"))
	_, err := i.Execute(context.Background(), "browser_click",
		map[string]any{"selector": "#buy"}, Session{ID: "s-1"}, perform)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, retry.CategorySelector, execErr.Category)
	assert.Equal(t, int32(1), calls.Load(), "selector failures are not retried")
	assert.Equal(t, int32(1), healed.Load())
}

func TestSelectorHealingSkippedForObservational(t *testing.T) {
	var healed atomic.Int32
	i, _ := newTestInterceptor(t,
		&policy.Config{},
		WithSelectorHealing(
			func(ctx context.Context) (any, error) { return nil, nil },
			func(string, map[string]any, any) { healed.Add(1) },
		),
	)

	perform, _ := countingPerform(nil, errors.New("no element matches selector .panel"))
	_, err := i.Execute(context.Background(), "browser_screenshot", nil, Session{ID: "s-1"}, perform)

	require.Error(t, err)
	assert.Zero(t, healed.Load(), "healing only fires for interactive kinds")
}

func TestObservationalResultSavedAsArtifact(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	i, _ := newTestInterceptor(t, &policy.Config{}, WithArtifacts(store))

	payload := []byte("snapshot bytes")
	perform, _ := countingPerform(payload)
	result, err := i.Execute(context.Background(), "browser_snapshot", nil, Session{ID: "s-art"}, perform)

	require.NoError(t, err)
	assert.Equal(t, payload, result)

	paths := store.PathsForSession("s-art")
	require.Len(t, paths, 1)
}

func TestEventEmittedOnSuccess(t *testing.T) {
	sink := events.NewChannelSink(4, nil)
	i, _ := newTestInterceptor(t, &policy.Config{AllowedHosts: []string{"example.com"}},
		WithEventSink(sink))

	perform, _ := countingPerform("ok")
	_, err := i.Execute(context.Background(), "browser_navigate",
		map[string]any{"url": "https://example.com"}, Session{ID: "s-1"}, perform)
	require.NoError(t, err)

	select {
	case ev := <-sink.Events():
		assert.Equal(t, "browser_navigate", ev.Tool)
		assert.Equal(t, "success", ev.Outcome)
		assert.Equal(t, "example.com", ev.TargetOrigin)
		assert.Equal(t, "s-1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestEventEmittedOnFailure(t *testing.T) {
	// An allowed action that exhausts its retries is a terminal outcome
	// too; observers must see it, not just successes.
	sink := events.NewChannelSink(4, nil)
	i, _ := newTestInterceptor(t, &policy.Config{
		AllowedHosts: []string{"example.com"},
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, WithEventSink(sink))

	netErr := errors.New("net::ERR_CONNECTION_REFUSED")
	perform, _ := countingPerform(nil, netErr, netErr)
	_, err := i.Execute(context.Background(), "browser_navigate",
		map[string]any{"url": "https://example.com"}, Session{ID: "s-1"}, perform)
	require.Error(t, err)

	select {
	case ev := <-sink.Events():
		assert.Equal(t, "browser_navigate", ev.Tool)
		assert.Equal(t, "error", ev.Outcome)
		assert.Equal(t, "network", ev.FailureCategory)
		assert.Equal(t, "s-1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no event emitted for the failed action")
	}
}

func TestSessionEscalationFlow(t *testing.T) {
	// Once the adaptation hint escalates, a Medium click that used to be
	// allowed now needs approval.
	src := policy.NewStaticSource(&policy.Config{})
	approvals := 0
	cb := func(ctx context.Context, tool string, d policy.Decision) (bool, error) {
		approvals++
		return true, nil
	}
	i := New(src, testApprovalLog(t), WithApprovalCallback(cb))

	perform, _ := countingPerform("clicked")
	_, err := i.Execute(context.Background(), "browser_click", nil, Session{ID: "s-1"}, perform)
	require.NoError(t, err)
	assert.Zero(t, approvals)

	src.SetAdaptation(adapt.Hint{RegressionPressure: 0.6, Escalate: true})
	_, err = i.Execute(context.Background(), "browser_click", nil, Session{ID: "s-1"}, perform)
	require.NoError(t, err)
	assert.Equal(t, 1, approvals, "escalation routes the click through the gate")
}

func TestNilApprovalLogTolerated(t *testing.T) {
	i := New(policy.NewStaticSource(&policy.Config{RequireApprovalForHighRisk: true}), nil)

	perform, calls := countingPerform(nil)
	_, err := i.Execute(context.Background(), "browser_evaluate", nil, Session{ID: "s-1"}, perform)

	require.Error(t, err)
	assert.Zero(t, calls.Load())
}
