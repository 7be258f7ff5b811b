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

import "github.com/peg/bridle/internal/retry"

// ExecutionError is returned when the underlying action failed after
// exhausting retries. It carries the classified retry category while
// keeping the last error's text and chain intact: Error() is exactly
// the underlying message, and errors.Is/As see through Unwrap.
type ExecutionError struct {
	// Tool is the action that failed.
	Tool string

	// Attempts is how many times the performer was invoked.
	Attempts int

	// Category is the retry classification of the final failure.
	Category retry.Category

	// Err is the last attempt's error, unchanged.
	Err error
}

// Error returns the underlying error text unchanged.
func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
