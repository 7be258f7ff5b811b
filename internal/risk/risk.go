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

// Package risk classifies browser tool calls by severity.
//
// Classification is a pure lookup: tool identity maps to a closed set of
// action kinds, each with a base tier. Argument content can only promote
// a tier upward (sensitive-keyword match), never lower it. Unrecognized
// tools inside the governed namespace classify as the most conservative
// tier rather than silently passing as low risk.
//
// This package has no I/O and no state. It is safe to call from the hot
// path and from tests without any setup.
package risk

import (
	"fmt"
	"strings"
)

// Tier is the coarse severity classification of a requested action.
type Tier int

const (
	// TierLow covers passive observation: snapshots, screenshots,
	// hovering, scrolling, explicit waits.
	TierLow Tier = iota

	// TierMedium covers state-changing interactions: clicks, typed
	// input, option selection, key presses, tab lifecycle, history
	// traversal, navigation.
	TierMedium

	// TierHigh covers arbitrary script evaluation, file upload, and any
	// action promoted by a sensitive-keyword match.
	TierHigh
)

// String returns the lowercase tier name.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Kind is the closed set of governed browser action kinds.
//
// KindUnknown is the explicit fallback for tools inside the governed
// namespace that this version does not recognize. It carries the most
// conservative base tier.
type Kind int

const (
	KindUnknown Kind = iota

	// Passive observation.
	KindSnapshot
	KindScreenshot
	KindHover
	KindScroll
	KindWait

	// State-changing interaction.
	KindNavigate
	KindHistory
	KindClick
	KindType
	KindSelect
	KindPressKey
	KindDrag
	KindTab

	// High-impact.
	KindEvaluate
	KindUpload
)

// String returns the canonical action key for the kind.
func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindScreenshot:
		return "screenshot"
	case KindHover:
		return "hover"
	case KindScroll:
		return "scroll"
	case KindWait:
		return "wait"
	case KindNavigate:
		return "navigate"
	case KindHistory:
		return "history"
	case KindClick:
		return "click"
	case KindType:
		return "type"
	case KindSelect:
		return "select"
	case KindPressKey:
		return "press-key"
	case KindDrag:
		return "drag"
	case KindTab:
		return "tab"
	case KindEvaluate:
		return "evaluate-script"
	case KindUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// BaseTier returns the kind's tier before any argument-driven promotion.
// KindUnknown is High: a tool we cannot identify gets the strictest
// treatment, never a silent pass.
func (k Kind) BaseTier() Tier {
	switch k {
	case KindSnapshot, KindScreenshot, KindHover, KindScroll, KindWait:
		return TierLow
	case KindNavigate, KindHistory, KindClick, KindType, KindSelect,
		KindPressKey, KindDrag, KindTab:
		return TierMedium
	case KindEvaluate, KindUpload:
		return TierHigh
	default:
		return TierHigh
	}
}

// Navigates reports whether the kind can move the session to a new origin.
func (k Kind) Navigates() bool {
	return k == KindNavigate
}

// Interactive reports whether the kind targets a page element by selector.
// These are the kinds eligible for selector healing after a targeting
// failure.
func (k Kind) Interactive() bool {
	switch k {
	case KindClick, KindType, KindSelect, KindHover, KindDrag, KindUpload:
		return true
	default:
		return false
	}
}

// Observational reports whether the kind produces observational evidence
// worth recording as an artifact.
func (k Kind) Observational() bool {
	return k == KindSnapshot || k == KindScreenshot
}

// governedPrefix namespaces the tools this pipeline governs. Tools outside
// the namespace pass through the interceptor untouched.
const governedPrefix = "browser_"

// kindByTool maps governed tool names to action kinds.
var kindByTool = map[string]Kind{
	"browser_snapshot":      KindSnapshot,
	"browser_screenshot":    KindScreenshot,
	"browser_hover":         KindHover,
	"browser_scroll":        KindScroll,
	"browser_wait":          KindWait,
	"browser_wait_for":      KindWait,
	"browser_navigate":      KindNavigate,
	"browser_navigate_back": KindHistory,
	"browser_go_back":       KindHistory,
	"browser_go_forward":    KindHistory,
	"browser_click":         KindClick,
	"browser_type":          KindType,
	"browser_fill":          KindType,
	"browser_select_option": KindSelect,
	"browser_press_key":     KindPressKey,
	"browser_drag":          KindDrag,
	"browser_tab_new":       KindTab,
	"browser_tab_close":     KindTab,
	"browser_tab_select":    KindTab,
	"browser_evaluate":      KindEvaluate,
	"browser_file_upload":   KindUpload,

	// Short aliases used by SDK callers.
	"click":           KindClick,
	"type":            KindType,
	"navigate":        KindNavigate,
	"evaluate-script": KindEvaluate,
	"upload":          KindUpload,
	"screenshot":      KindScreenshot,
	"snapshot":        KindSnapshot,
}

// KindForTool resolves a tool name to an action kind. Unrecognized tools
// resolve to KindUnknown.
func KindForTool(tool string) Kind {
	if k, ok := kindByTool[tool]; ok {
		return k
	}
	return KindUnknown
}

// Governed reports whether a tool is subject to this pipeline. A tool is
// governed if its name is in the lookup table or carries the governed
// namespace prefix (in which case it classifies as KindUnknown, High).
func Governed(tool string) bool {
	if _, ok := kindByTool[tool]; ok {
		return true
	}
	return strings.HasPrefix(tool, governedPrefix)
}

// Classification is the deterministic output of Classify. It is embedded
// into a policy decision and never persisted on its own.
type Classification struct {
	// Tier is the final tier after any promotion.
	Tier Tier

	// Kind is the resolved action kind.
	Kind Kind

	// ActionKey is the canonical key for the kind (e.g. "click",
	// "evaluate-script").
	ActionKey string

	// MatchedSignals records the evidence that drove the outcome:
	// base-tier assignment and any sensitive-keyword promotion.
	MatchedSignals []string
}

// Classify maps a tool call to a risk classification.
//
// A single keyword match against the sensitive vocabulary promotes the
// tier to High regardless of the tool's base tier. This is the only case
// where argument content, not tool identity, drives the outcome. Ties
// break toward the higher tier.
func Classify(tool string, args map[string]any, sensitiveKeys []string) Classification {
	kind := KindForTool(tool)
	tier := kind.BaseTier()

	c := Classification{
		Kind:      kind,
		ActionKey: kind.String(),
	}
	c.MatchedSignals = append(c.MatchedSignals, "base-tier:"+tier.String())
	if kind == KindUnknown {
		c.MatchedSignals = append(c.MatchedSignals, "unrecognized-tool:"+tool)
	}

	if key, ok := matchSensitive(args, sensitiveKeys); ok {
		if tier < TierHigh {
			tier = TierHigh
		}
		c.MatchedSignals = append(c.MatchedSignals, "sensitive-keyword:"+key)
	}

	c.Tier = tier
	return c
}

// matchSensitive scans string-valued arguments (recursing into nested
// maps and slices) for any configured sensitive keyword. Matching is
// case-insensitive substring.
func matchSensitive(args map[string]any, keys []string) (string, bool) {
	if len(keys) == 0 || len(args) == 0 {
		return "", false
	}
	for _, v := range args {
		if key, ok := valueMatches(v, keys, 0); ok {
			return key, true
		}
	}
	return "", false
}

// maxScanDepth bounds recursion into nested argument structures.
const maxScanDepth = 4

func valueMatches(v any, keys []string, depth int) (string, bool) {
	if depth > maxScanDepth {
		return "", false
	}
	switch val := v.(type) {
	case string:
		lower := strings.ToLower(val)
		for _, key := range keys {
			if key == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(key)) {
				return key, true
			}
		}
	case map[string]any:
		for _, nested := range val {
			if key, ok := valueMatches(nested, keys, depth+1); ok {
				return key, true
			}
		}
	case []any:
		for _, nested := range val {
			if key, ok := valueMatches(nested, keys, depth+1); ok {
				return key, true
			}
		}
	}
	return "", false
}
