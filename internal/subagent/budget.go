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

package subagent

import (
	"errors"
	"sync"
)

// ErrBudgetExhausted is returned once a run's tool-call ceiling is
// reached. It bounds cost and risk from any run-away loop.
var ErrBudgetExhausted = errors.New("subagent: tool call budget exhausted")

// callBudget is the hard ceiling on tool invocations within one run.
type callBudget struct {
	mu        sync.Mutex
	limit     int
	remaining int
}

func newCallBudget(limit int) *callBudget {
	if limit < 1 {
		limit = 1
	}
	return &callBudget{limit: limit, remaining: limit}
}

// take consumes one call, or fails once the budget is spent.
func (b *callBudget) take() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remaining <= 0 {
		return ErrBudgetExhausted
	}
	b.remaining--
	return nil
}

func (b *callBudget) remainingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

func (b *callBudget) used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit - b.remaining
}
