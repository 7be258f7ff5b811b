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

package adapt

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store is the append-only JSONL corpus store, one CorpusEntry per line.
// A missing file reads as an empty corpus; malformed lines are skipped.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a corpus store at path. The directory is created if
// it does not exist.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("adapt: corpus path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("adapt: create corpus dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Append writes one entry to the corpus.
func (s *Store) Append(entry CorpusEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("adapt: marshal corpus entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("adapt: open corpus: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("adapt: append corpus entry: %w", err)
	}
	return nil
}

// ReadAll returns every parseable entry in the corpus. Malformed lines
// are skipped rather than failing the whole read.
func (s *Store) ReadAll() ([]CorpusEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("adapt: open corpus: %w", err)
	}
	defer f.Close()

	var entries []CorpusEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry CorpusEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("adapt: read corpus: %w", err)
	}
	return entries, nil
}
