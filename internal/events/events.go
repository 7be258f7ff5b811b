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

// Package events streams ephemeral browser events to an external sink.
//
// Delivery is best-effort and must never block the interceptor: the
// channel sink drops events when its buffer is full and only counts the
// drops.
package events

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// BrowserEvent is one terminal action outcome, streamed for live
// observability. Not persisted by this subsystem.
type BrowserEvent struct {
	Tool         string    `json:"tool"`
	Outcome      string    `json:"outcome"`
	RiskTier     string    `json:"risk_tier"`
	ActionKey    string    `json:"action_key"`
	TargetOrigin string    `json:"target_origin,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	// FailureCategory is the retry classification when Outcome is
	// "error"; empty otherwise.
	FailureCategory string `json:"failure_category,omitempty"`
}

// Sink receives browser events. Implementations must not block.
type Sink interface {
	Emit(event BrowserEvent)
}

// ChannelSink buffers events on a channel for an external consumer.
type ChannelSink struct {
	ch      chan BrowserEvent
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int, logger *slog.Logger) *ChannelSink {
	if buffer < 1 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelSink{
		ch:     make(chan BrowserEvent, buffer),
		logger: logger,
	}
}

// Emit enqueues the event, dropping it if the buffer is full.
func (s *ChannelSink) Emit(event BrowserEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case s.ch <- event:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.logger.Warn("events: sink buffer full, dropping",
				"dropped_total", s.dropped.Load(),
			)
		}
	}
}

// Events returns the consumer side of the sink.
func (s *ChannelSink) Events() <-chan BrowserEvent {
	return s.ch
}

// Dropped returns how many events were dropped so far.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// FuncSink adapts a plain callback into a Sink. The callback runs on a
// fresh goroutine per event so a slow consumer cannot stall callers.
type FuncSink func(BrowserEvent)

// Emit implements Sink.
func (f FuncSink) Emit(event BrowserEvent) {
	if f == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	go f(event)
}
