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

// Package policy combines risk classification, host matching, and the
// adaptation hint into a single allow/gate/deny decision.
//
// Evaluate is pure and idempotent: identical inputs always yield
// identical outcomes, which is what makes decisions deterministic to
// test and replay. Adaptation may only tighten a decision, never relax
// one.
package policy

import (
	"fmt"

	"github.com/peg/bridle/internal/risk"
)

// Outcome is the final verdict for an action request.
type Outcome int

const (
	// OutcomeAllow permits the action to execute.
	OutcomeAllow Outcome = iota

	// OutcomeGate requires explicit approval before execution.
	OutcomeGate

	// OutcomeDeny rejects the action. It is never attempted.
	OutcomeDeny
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeGate:
		return "gate"
	case OutcomeDeny:
		return "deny"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Request is one action request entering the pipeline. Immutable per
// call; constructed by the caller.
type Request struct {
	// Tool is the opaque action identifier (e.g. "browser_click").
	Tool string

	// Args is the action-specific argument map. Only risk and host
	// signals are extracted from it; the shape is otherwise not
	// validated here.
	Args map[string]any

	// SessionID identifies the browser session issuing the action.
	SessionID string

	// CurrentOrigin is the origin the session is currently on, if known.
	CurrentOrigin string

	// HasCredentialsOnPage reports whether credential fields were
	// observed on the current page.
	HasCredentialsOnPage bool
}

// TargetURL extracts the destination URL from navigation-class
// arguments. Empty if not present or not a string.
func (r Request) TargetURL() string {
	u, _ := r.Args["url"].(string)
	return u
}

// Evidence records which signals and patterns drove a decision, so a
// denied operator sees why, not just "refused".
type Evidence struct {
	// MatchedSignals lists risk and host signals in match order.
	MatchedSignals []string `json:"matched_signals,omitempty"`

	// TargetOrigin is the destination host for navigation-class
	// actions, if one was evaluated.
	TargetOrigin string `json:"target_origin,omitempty"`
}

// Decision is the sole authority on whether execution may proceed.
// Produced once per request; immutable afterwards.
type Decision struct {
	Outcome   Outcome   `json:"outcome"`
	Tier      risk.Tier `json:"risk_tier"`
	ActionKey string    `json:"action_key"`
	Reason    string    `json:"reason"`
	Evidence  Evidence  `json:"evidence"`
}

// Denied reports whether the action was rejected outright.
func (d Decision) Denied() bool {
	return d.Outcome == OutcomeDeny
}

// DeniedError is returned when an action is refused by policy or by an
// unresolved gate. The action was never attempted.
type DeniedError struct {
	// Tool is the action that was refused.
	Tool string

	// Decision carries the full evidence for the refusal.
	Decision Decision
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("bridle: denied %q: %s", e.Tool, e.Decision.Reason)
}

// Evaluate runs a request through the decision ladder:
//
//  1. Classify risk (tool identity + sensitive-keyword scan).
//  2. Current origin against the block-list: match forces deny.
//  3. Navigation target against block- then allow-list: block match or
//     allow miss forces deny (empty allow-list allows nothing).
//  4. Credential isolation: script evaluation on a credentialed page is
//     denied when isolation is on.
//  5. High tier gates when approval is required.
//  6. The adaptation hint promotes any remaining Medium-or-above allow
//     to gate when escalation is on, High included. It never relaxes a
//     deny.
func Evaluate(req Request, cfg *Config) Decision {
	c := risk.Classify(req.Tool, req.Args, cfg.SensitiveActionKeys)

	d := Decision{
		Outcome:   OutcomeAllow,
		Tier:      c.Tier,
		ActionKey: c.ActionKey,
		Evidence:  Evidence{MatchedSignals: c.MatchedSignals},
	}

	lists := cfg.lists()

	if req.CurrentOrigin != "" {
		host := hostOf(req.CurrentOrigin)
		if pattern, ok := lists.Blocked(host); ok {
			d.Outcome = OutcomeDeny
			d.Reason = fmt.Sprintf("current origin %q matches blocked pattern %q", host, pattern)
			d.Evidence.MatchedSignals = append(d.Evidence.MatchedSignals, "blocked-origin:"+pattern)
			return d
		}
	}

	if c.Kind.Navigates() {
		target := hostOf(req.TargetURL())
		d.Evidence.TargetOrigin = target

		if pattern, ok := lists.Blocked(target); ok {
			d.Outcome = OutcomeDeny
			d.Reason = fmt.Sprintf("target %q matches blocked pattern %q", target, pattern)
			d.Evidence.MatchedSignals = append(d.Evidence.MatchedSignals, "blocked-origin:"+pattern)
			return d
		}
		pattern, ok := lists.Allowed(target)
		if !ok {
			d.Outcome = OutcomeDeny
			d.Reason = fmt.Sprintf("target %q matches no allowed host pattern", target)
			d.Evidence.MatchedSignals = append(d.Evidence.MatchedSignals, "host-not-allowed:"+target)
			return d
		}
		d.Evidence.MatchedSignals = append(d.Evidence.MatchedSignals, "allowed-host:"+pattern)
	}

	if cfg.CredentialIsolation && req.HasCredentialsOnPage && c.Kind == risk.KindEvaluate {
		d.Outcome = OutcomeDeny
		d.Reason = "script evaluation blocked on a page with credential fields"
		d.Evidence.MatchedSignals = append(d.Evidence.MatchedSignals, "credential-isolation")
		return d
	}

	if c.Tier == risk.TierHigh && cfg.RequireApprovalForHighRisk {
		d.Outcome = OutcomeGate
		d.Reason = fmt.Sprintf("high-risk action %q requires approval", c.ActionKey)
		return d
	}

	// Escalation runs on every would-be allow at Medium or above,
	// including High-tier actions a configuration chose not to gate.
	if esc := cfg.Adaptation; esc != nil && esc.Escalate && c.Tier >= risk.TierMedium {
		d.Outcome = OutcomeGate
		d.Reason = fmt.Sprintf("escalated by adaptation (pressure %.2f)", esc.RegressionPressure)
		d.Evidence.MatchedSignals = append(d.Evidence.MatchedSignals, "adaptation-escalation")
		return d
	}

	if c.Tier == risk.TierHigh {
		d.Reason = fmt.Sprintf("high-risk action %q allowed without approval by configuration", c.ActionKey)
		return d
	}

	d.Reason = fmt.Sprintf("%s-tier action %q allowed", c.Tier, c.ActionKey)
	return d
}
