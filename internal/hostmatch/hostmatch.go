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

// Package hostmatch evaluates destination hosts and origins against
// allow and block pattern lists.
//
// Each pattern is either a regular expression (marked with a "re:"
// prefix) or a glob ("*.example.com"). A pattern that fails to compile
// matches nothing; it never aborts evaluation. An empty allow-list
// allows nothing: fail-closed, not fail-open.
package hostmatch

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// regexMarker is the structural prefix that identifies a regex pattern.
// Detection is by marker, not by trying the pattern and catching errors.
const regexMarker = "re:"

// Pattern is a single compiled host pattern.
type Pattern struct {
	// Raw is the original pattern string including any marker.
	Raw string

	re *regexp.Regexp
	g  glob.Glob
}

// Compile builds a Pattern from a raw string. An invalid regex or glob
// yields a pattern that matches nothing; the failure is logged once at
// compile time, never surfaced at match time.
func Compile(raw string, logger *slog.Logger) Pattern {
	if logger == nil {
		logger = slog.Default()
	}
	p := Pattern{Raw: raw}

	if rest, ok := strings.CutPrefix(raw, regexMarker); ok {
		re, err := regexp.Compile(rest)
		if err != nil {
			logger.Warn("hostmatch: invalid regex pattern skipped",
				"pattern", raw,
				"error", err,
			)
			return p
		}
		p.re = re
		return p
	}

	// Glob with "." as separator so "*.example.com" does not match
	// "example.com.evil.net" through a multi-label wildcard.
	g, err := glob.Compile(raw, '.')
	if err != nil {
		logger.Warn("hostmatch: invalid glob pattern skipped",
			"pattern", raw,
			"error", err,
		)
		return p
	}
	p.g = g
	return p
}

// CompileAll compiles a list of raw patterns.
func CompileAll(raw []string, logger *slog.Logger) []Pattern {
	patterns := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			continue
		}
		patterns = append(patterns, Compile(r, logger))
	}
	return patterns
}

// Match reports whether the pattern matches the host.
func (p Pattern) Match(host string) bool {
	if host == "" {
		return false
	}
	if p.re != nil {
		return p.re.MatchString(host)
	}
	if p.g != nil {
		return p.g.Match(host)
	}
	return false
}

// MatchAny returns the first pattern that matches host, if any.
func MatchAny(patterns []Pattern, host string) (Pattern, bool) {
	for _, p := range patterns {
		if p.Match(host) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Lists holds the compiled allow and block lists for a deployment.
// Block matches always win over allow matches and are evaluated first.
type Lists struct {
	Allow []Pattern
	Block []Pattern
}

// NewLists compiles raw allow and block pattern lists.
func NewLists(allow, block []string, logger *slog.Logger) Lists {
	return Lists{
		Allow: CompileAll(allow, logger),
		Block: CompileAll(block, logger),
	}
}

// Blocked reports whether the host matches the block list, returning the
// matching raw pattern.
func (l Lists) Blocked(host string) (string, bool) {
	if p, ok := MatchAny(l.Block, host); ok {
		return p.Raw, true
	}
	return "", false
}

// Allowed reports whether the host matches the allow list. An empty
// allow-list allows nothing.
func (l Lists) Allowed(host string) (string, bool) {
	if len(l.Allow) == 0 {
		return "", false
	}
	if p, ok := MatchAny(l.Allow, host); ok {
		return p.Raw, true
	}
	return "", false
}

// HostOf extracts a bare hostname from a URL or origin string. Inputs
// that do not parse as URLs are returned trimmed, so operators can match
// raw hostnames and full origins with the same patterns.
func HostOf(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		return u.Hostname()
	}
	// "example.com/path" without a scheme.
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 && !strings.Contains(s, "]") {
		// Strip a trailing port but leave IPv6 literals alone.
		if port := s[idx+1:]; port != "" && isDigits(port) {
			s = s[:idx]
		}
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
