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

// Package approval records resolved gate outcomes in an append-only,
// time-pruned JSONL audit log.
//
// One event per line, ordered by write time. Appends are serialized by
// a mutex so concurrent sessions never interleave within a line.
// Readers tolerate malformed lines by skipping them, and a missing log
// file reads as an empty log, never a crash.
package approval

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Outcome is how a gate was resolved.
type Outcome string

const (
	// OutcomeApproved means the gate resolved to approval and the
	// action proceeded.
	OutcomeApproved Outcome = "approved"

	// OutcomeDenied means the gate resolved to denial: explicit
	// rejection, missing callback, or timeout.
	OutcomeDenied Outcome = "denied"
)

// Event is one resolved gate outcome. Created only when a gate decision
// is resolved; never mutated after write.
type Event struct {
	// ID is a ULID, time-ordered and globally unique.
	ID string `json:"id"`

	// Timestamp is when the gate was resolved (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Tool is the gated action's tool name.
	Tool string `json:"tool"`

	// SessionID identifies the session that requested the action.
	SessionID string `json:"session_id"`

	// Outcome is "approved" or "denied".
	Outcome Outcome `json:"outcome"`

	// ActionKey is the canonical action kind (e.g. "evaluate-script").
	ActionKey string `json:"action_key"`

	// RiskTier is the classified tier at decision time.
	RiskTier string `json:"risk_tier"`

	// ResolvedBy records what resolved the gate: "callback",
	// "rejected", "missing-callback", "callback-error", or "timeout".
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// NewEventID returns a new ULID event identifier.
func NewEventID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err == nil {
		return id.String()
	}

	slog.Error("approval: generate event id", "error", err)
	return ulid.Make().String()
}

// Log is the append-only approval audit log.
type Log struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewLog creates an approval log at path, creating the parent directory
// if needed.
func NewLog(path string, logger *slog.Logger) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("approval: log path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("approval: create log dir: %w", err)
	}
	return &Log{path: path, logger: logger}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one event to the log. Missing ID and timestamp are
// filled in.
func (l *Log) Append(event Event) error {
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("approval: marshal event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("approval: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("approval: append event: %w", err)
	}

	l.logger.Debug("approval: wrote event",
		"event_id", event.ID,
		"tool", event.Tool,
		"outcome", event.Outcome,
	)
	return nil
}

// Read returns every parseable event in write order. Malformed lines
// are skipped; a missing file reads as empty.
func (l *Log) Read() ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *Log) readLocked() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("approval: open log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("approval: read log: %w", err)
	}
	return events, nil
}

// Prune drops events older than maxAge and, if maxCount > 0, keeps only
// the newest maxCount events. The rewrite operates on a full snapshot
// and replaces the file atomically. Pruning twice with the same cutoff
// is a no-op the second time.
func (l *Log) Prune(maxAge time.Duration, maxCount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readLocked()
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	kept := events
	if maxAge > 0 {
		cutoff := time.Now().UTC().Add(-maxAge)
		kept = kept[:0:0]
		for _, e := range events {
			if !e.Timestamp.Before(cutoff) {
				kept = append(kept, e)
			}
		}
	}
	if maxCount > 0 && len(kept) > maxCount {
		kept = kept[len(kept)-maxCount:]
	}

	removed := len(events) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("approval: open prune tmp: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range kept {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("approval: flush prune tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("approval: close prune tmp: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("approval: replace log: %w", err)
	}

	l.logger.Info("approval: pruned log",
		"removed", removed,
		"kept", len(kept),
	)
	return removed, nil
}
