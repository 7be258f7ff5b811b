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

package intercept

import "sync"

// WarnCache dedupes repeated warnings within one session. It is owned
// by the caller's session context, not shared process-wide, so warnings
// never bleed across sessions or tests.
type WarnCache struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewWarnCache creates an empty cache.
func NewWarnCache() *WarnCache {
	return &WarnCache{seen: make(map[string]struct{})}
}

// Once reports true the first time key is seen. A nil cache always
// reports true, disabling deduplication.
func (c *WarnCache) Once(key string) bool {
	if c == nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}
