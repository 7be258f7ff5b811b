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

package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(4, nil)

	sink.Emit(BrowserEvent{Tool: "browser_click", Outcome: "success"})

	select {
	case ev := <-sink.Events():
		assert.Equal(t, "browser_click", ev.Tool)
		assert.False(t, ev.Timestamp.IsZero(), "timestamp is filled on emit")
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			sink.Emit(BrowserEvent{Tool: "browser_click"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full buffer")
	}

	assert.Equal(t, int64(8), sink.Dropped())
	assert.Len(t, sink.Events(), 2)
}

func TestFuncSink(t *testing.T) {
	var mu sync.Mutex
	var got []BrowserEvent
	done := make(chan struct{})

	sink := FuncSink(func(ev BrowserEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		done <- struct{}{}
	})

	sink.Emit(BrowserEvent{Tool: "browser_type"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "browser_type", got[0].Tool)
}

func TestNilFuncSinkIsNoop(t *testing.T) {
	var sink FuncSink
	assert.NotPanics(t, func() {
		sink.Emit(BrowserEvent{Tool: "browser_click"})
	})
}
