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

// Package watch hot-reloads the policy configuration when its file
// changes on disk.
//
// Editors and atomic writers fire several filesystem events per save,
// so reloads are debounced. A reload that fails validation leaves the
// previous configuration active.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/peg/bridle/internal/policy"
)

// debounceWindow coalesces bursts of filesystem events into one reload.
const debounceWindow = 200 * time.Millisecond

// ConfigWatcher reloads a policy.Source when its backing file changes.
type ConfigWatcher struct {
	source  *policy.Source
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewConfigWatcher watches path and reloads source on change. The
// parent directory is watched, not the file itself, so atomic
// rename-into-place writes are observed.
func NewConfigWatcher(source *policy.Source, path string, logger *slog.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch: watch config dir: %w", err)
	}

	return &ConfigWatcher{
		source:  source,
		path:    filepath.Clean(path),
		watcher: w,
		logger:  logger,
	}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (c *ConfigWatcher) Run(ctx context.Context) error {
	defer c.watcher.Close()

	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-c.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != c.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := c.source.Reload(); err != nil {
				c.logger.Warn("watch: reload failed, keeping previous config",
					"path", c.path,
					"error", err,
				)
			}

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watch: watcher error", "error", err)
		}
	}
}
