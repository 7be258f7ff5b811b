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

// Package notify sends best-effort webhook notifications for deny and
// gate outcomes so operators see refusals as they happen.
//
// Notification failures are logged and swallowed; they never affect the
// governed action's result.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event is the JSON payload POSTed to the webhook.
type Event struct {
	Outcome   string `json:"outcome"`    // "deny" or "gate"
	Tool      string `json:"tool"`       // e.g. "browser_navigate"
	ActionKey string `json:"action_key"` // canonical action kind
	RiskTier  string `json:"risk_tier"`  // "low", "medium", "high"
	Reason    string `json:"reason"`     // human-readable explanation
	SessionID string `json:"session_id"` // originating session
	Timestamp string `json:"timestamp"`  // RFC 3339
}

// Notifier sends notifications.
type Notifier interface {
	Send(event Event) error
}

// WebhookNotifier POSTs events as JSON to a webhook URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for the given URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send POSTs the event. A non-2xx response is an error.
func (n *WebhookNotifier) Send(event Event) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SendAsync dispatches the event on a background goroutine, logging and
// swallowing any error.
func SendAsync(n Notifier, event Event, logger *slog.Logger) {
	if n == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		if err := n.Send(event); err != nil {
			logger.Warn("notify: send failed",
				"tool", event.Tool,
				"outcome", event.Outcome,
				"error", err,
			)
		}
	}()
}
