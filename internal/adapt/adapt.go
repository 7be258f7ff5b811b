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

// Package adapt aggregates historical session outcomes into a
// regression-pressure signal consumed by the policy engine.
//
// The signal can only tighten enforcement. A stale hint therefore never
// weakens policy below the configured baseline, which is what makes the
// eventually-consistent recomputation schedule acceptable.
package adapt

import (
	"log/slog"
	"sync"
)

// CorpusEntry records the outcome of one completed session. Entries are
// appended by session-closing code and read-only to this engine.
type CorpusEntry struct {
	SessionID            string `json:"session_id"`
	ActionCount          int    `json:"action_count"`
	FailureCount         int    `json:"failure_count"`
	HighRiskToolsPresent bool   `json:"high_risk_tools_present"`

	// Regression marks a session assessed as a behavioral regression.
	Regression bool `json:"regression,omitempty"`

	// Investigate marks a session flagged for manual review.
	Investigate bool `json:"investigate,omitempty"`
}

// Hint is the output of a corpus recomputation. It is consumed read-only
// by policy evaluation and never mutated mid-decision.
type Hint struct {
	// RegressionPressure is the weighted trouble ratio, clamped to [0,1].
	RegressionPressure float64 `json:"regression_pressure"`

	// Escalate is true once pressure crosses the threshold with enough
	// samples observed.
	Escalate bool `json:"escalate"`
}

// Params tunes the pressure computation.
type Params struct {
	// InvestigateWeight scales investigate-flagged sessions relative to
	// regression-flagged ones.
	InvestigateWeight float64

	// HighRiskFailureWeight scales sessions where high-risk tools were
	// present and at least one action failed.
	HighRiskFailureWeight float64

	// EscalateThreshold is the pressure above which Escalate turns on.
	EscalateThreshold float64

	// MinSamples is the minimum corpus size before Escalate may turn on,
	// avoiding overreaction to small samples.
	MinSamples int
}

// DefaultParams returns the default computation parameters.
func DefaultParams() Params {
	return Params{
		InvestigateWeight:     0.5,
		HighRiskFailureWeight: 0.75,
		EscalateThreshold:     0.3,
		MinSamples:            5,
	}
}

// Compute derives a hint from the full corpus. It is pure: the same
// entries and params always yield the same hint.
func Compute(entries []CorpusEntry, p Params) Hint {
	if len(entries) == 0 {
		return Hint{}
	}

	var weighted float64
	for _, e := range entries {
		switch {
		case e.Regression:
			weighted += 1.0
		case e.Investigate:
			weighted += p.InvestigateWeight
		case e.HighRiskToolsPresent && e.FailureCount > 0:
			weighted += p.HighRiskFailureWeight
		}
	}

	pressure := weighted / float64(len(entries))
	if pressure > 1 {
		pressure = 1
	}
	if pressure < 0 {
		pressure = 0
	}

	return Hint{
		RegressionPressure: pressure,
		Escalate:           len(entries) >= p.MinSamples && pressure >= p.EscalateThreshold,
	}
}

// Engine owns the corpus store and the current hint. Recomputation runs
// on session close, not per action; readers may observe a slightly stale
// hint.
type Engine struct {
	mu     sync.RWMutex
	store  *Store
	params Params
	hint   Hint
	logger *slog.Logger
}

// NewEngine creates an adaptation engine over a corpus store and
// computes the initial hint from any existing entries.
func NewEngine(store *Store, params Params, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  store,
		params: params,
		logger: logger,
	}

	entries, err := store.ReadAll()
	if err != nil {
		return nil, err
	}
	e.hint = Compute(entries, params)

	logger.Info("adapt: corpus loaded",
		"sessions", len(entries),
		"pressure", e.hint.RegressionPressure,
		"escalate", e.hint.Escalate,
	)
	return e, nil
}

// Hint returns a copy of the current hint.
func (e *Engine) Hint() Hint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hint
}

// RecordSession appends a completed session to the corpus and refreshes
// the hint.
func (e *Engine) RecordSession(entry CorpusEntry) error {
	if err := e.store.Append(entry); err != nil {
		return err
	}
	return e.Recompute()
}

// Recompute re-reads the full corpus and replaces the hint.
func (e *Engine) Recompute() error {
	entries, err := e.store.ReadAll()
	if err != nil {
		return err
	}
	hint := Compute(entries, e.params)

	e.mu.Lock()
	changed := hint != e.hint
	e.hint = hint
	e.mu.Unlock()

	if changed {
		e.logger.Info("adapt: hint refreshed",
			"sessions", len(entries),
			"pressure", hint.RegressionPressure,
			"escalate", hint.Escalate,
		)
	}
	return nil
}
