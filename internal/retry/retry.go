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

// Package retry classifies execution failures and runs the bounded
// retry loop around governed actions.
//
// Classification is substring matching against error text; it never
// panics. Only transient infrastructure faults (network, timeout) are
// retryable. Selector failures are not: retrying an action whose target
// element cannot be found is wasted work, and the interceptor triggers
// selector healing instead.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peg/bridle/internal/policy"
)

// Category is the retry taxonomy for a failed execution attempt.
type Category int

const (
	// CategoryNetwork is a transient network fault. Retryable.
	CategoryNetwork Category = iota

	// CategoryTimeout is a transient deadline expiry. Retryable.
	CategoryTimeout

	// CategorySelector means the target element could not be found.
	// Not retryable; the interceptor triggers selector healing.
	CategorySelector

	// CategoryPolicy is this pipeline's own denial. Not retryable and
	// never surfaced as a server error.
	CategoryPolicy

	// CategoryInvalidInput is malformed arguments. Not retryable.
	CategoryInvalidInput

	// CategoryUnknown is everything else. Not retryable by default,
	// conservative.
	CategoryUnknown
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryTimeout:
		return "timeout"
	case CategorySelector:
		return "selector"
	case CategoryPolicy:
		return "policy"
	case CategoryInvalidInput:
		return "invalid-input"
	case CategoryUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Retryable reports whether another attempt can help.
func (c Category) Retryable() bool {
	return c == CategoryNetwork || c == CategoryTimeout
}

// categoryPatterns maps error-text fragments to categories, checked in
// order. Timeout precedes network because driver messages like
// "net::ERR_TIMED_OUT" carry both markers.
var categoryPatterns = []struct {
	category Category
	markers  []string
}{
	{CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{CategoryNetwork, []string{
		"net::", "econnrefused", "econnreset", "connection refused",
		"connection reset", "dns", "socket hang up", "broken pipe",
		"network",
	}},
	{CategorySelector, []string{
		"no node found", "element not found", "selector", "not visible",
		"stale element", "detached from the document", "no element matches",
	}},
	{CategoryInvalidInput, []string{
		"invalid argument", "invalid input", "malformed", "missing required",
	}},
}

// Classify maps an error to its retry category. A nil error classifies
// as CategoryUnknown; callers should not classify success.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var denied *policy.DeniedError
	if errors.As(err, &denied) {
		return CategoryPolicy
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	text := strings.ToLower(err.Error())
	for _, p := range categoryPatterns {
		for _, m := range p.markers {
			if strings.Contains(text, m) {
				return p.category
			}
		}
	}
	return CategoryUnknown
}

// Outcome summarizes one retry-wrapped execution. Scoped to a single
// interceptor call and discarded after return.
type Outcome struct {
	// Attempts is how many times the action performer ran.
	Attempts int

	// LastErr is the final attempt's error, nil on success.
	LastErr error

	// Category classifies LastErr. Meaningless on success.
	Category Category
}

// Do runs fn with up to maxRetries additional attempts after the first
// failure, classifying each failure and stopping immediately on a
// non-retryable category. Backoff is linear: base × attempt number.
//
// Cancellation is observed between attempts: once ctx is done, no
// further attempt runs and the outcome carries ctx.Err().
func Do(ctx context.Context, maxRetries int, base time.Duration, fn func(context.Context) (any, error)) (any, Outcome) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var out Outcome
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			out.LastErr = err
			out.Category = Classify(err)
			return nil, out
		}

		result, err := fn(ctx)
		out.Attempts = attempt
		if err == nil {
			out.LastErr = nil
			return result, out
		}

		out.LastErr = err
		out.Category = Classify(err)
		if !out.Category.Retryable() || attempt > maxRetries {
			return nil, out
		}

		if err := sleep(ctx, base*time.Duration(attempt)); err != nil {
			out.LastErr = err
			out.Category = Classify(err)
			return nil, out
		}
	}
	return nil, out
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
