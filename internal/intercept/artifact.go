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

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
)

// ArtifactStore writes observational evidence (snapshots, screenshots)
// to disk and tracks the paths written per session.
type ArtifactStore struct {
	mu    sync.Mutex
	dir   string
	paths map[string][]string
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("intercept: artifact dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("intercept: create artifact dir: %w", err)
	}
	return &ArtifactStore{
		dir:   dir,
		paths: make(map[string][]string),
	}, nil
}

// Save writes one artifact and returns its path. Filenames embed the
// session, action key, and a ULID so concurrent writes never collide.
func (s *ArtifactStore) Save(sessionID, actionKey string, data []byte) (string, error) {
	name := fmt.Sprintf("%s-%s-%s.bin", sessionID, actionKey, ulid.Make().String())
	if actionKey == "screenshot" {
		name = fmt.Sprintf("%s-%s-%s.jpg", sessionID, actionKey, ulid.Make().String())
	}
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("intercept: write artifact: %w", err)
	}

	s.mu.Lock()
	s.paths[sessionID] = append(s.paths[sessionID], path)
	s.mu.Unlock()

	return path, nil
}

// PathsForSession returns the artifacts recorded for a session so far.
func (s *ArtifactStore) PathsForSession(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths[sessionID]...)
}

// jpegQualitySteps are tried in order until the encoded size fits the
// budget.
var jpegQualitySteps = []int{85, 70, 55, 40, 25}

// CompressImage re-encodes an image as JPEG at decreasing quality until
// it fits within budget bytes. Inputs that do not decode, or that never
// fit, are returned as-is (or at the lowest quality reached). This
// function never fails the action that produced the image.
func CompressImage(data []byte, budget int, logger *slog.Logger) []byte {
	if budget <= 0 || len(data) <= budget {
		return data
	}
	if logger == nil {
		logger = slog.Default()
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Debug("intercept: artifact not an image, skipping compression",
			"size", len(data),
			"error", err,
		)
		return data
	}

	best := data
	for _, quality := range jpegQualitySteps {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			logger.Warn("intercept: jpeg encode failed",
				"quality", quality,
				"error", err,
			)
			return best
		}
		if buf.Len() < len(best) {
			best = buf.Bytes()
		}
		if buf.Len() <= budget {
			logger.Debug("intercept: artifact compressed",
				"format", format,
				"from", len(data),
				"to", buf.Len(),
				"quality", quality,
			)
			return buf.Bytes()
		}
	}

	logger.Debug("intercept: artifact still over budget after compression",
		"from", len(data),
		"to", len(best),
		"budget", budget,
	)
	return best
}
