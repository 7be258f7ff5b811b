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

package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSend(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(Event{
		Outcome:   "deny",
		Tool:      "browser_navigate",
		RiskTier:  "medium",
		Reason:    "target matches no allowed host pattern",
		SessionID: "s-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "deny", received.Outcome)
	assert.Equal(t, "browser_navigate", received.Tool)
	assert.NotEmpty(t, received.Timestamp, "timestamp filled when unset")
}

func TestWebhookSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(Event{Outcome: "gate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(Event{Outcome: "deny"})
	assert.Error(t, err)
}

func TestSendAsyncNilNotifier(t *testing.T) {
	assert.NotPanics(t, func() {
		SendAsync(nil, Event{Outcome: "deny"}, nil)
	})
}

func TestSendAsyncDelivers(t *testing.T) {
	got := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		json.NewDecoder(r.Body).Decode(&ev)
		got <- ev
	}))
	defer srv.Close()

	SendAsync(NewWebhookNotifier(srv.URL), Event{Outcome: "gate", Tool: "browser_evaluate"}, nil)

	select {
	case ev := <-got:
		assert.Equal(t, "gate", ev.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("async notification never arrived")
	}
}
