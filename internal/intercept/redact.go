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

import "strings"

// redactedPlaceholder replaces credential-looking argument values.
const redactedPlaceholder = "[redacted]"

// secretKeyFragments flag argument keys whose values must never reach
// a log line or event payload.
var secretKeyFragments = []string{
	"password", "passwd", "secret", "token", "credential",
	"api_key", "apikey", "authorization", "cookie", "session_key",
	"private_key",
}

// secretValuePrefixes flag values that embed credentials regardless of
// their key.
var secretValuePrefixes = []string{
	"bearer ", "basic ", "-----begin",
}

// maxRedactDepth bounds recursion into nested argument structures.
const maxRedactDepth = 4

// RedactArgs returns a copy of args with credential-looking values
// masked. The input map is never mutated.
func RedactArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return args
	}
	return redactMap(args, 0)
}

func redactMap(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if secretKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v, depth)
	}
	return out
}

func redactValue(v any, depth int) any {
	if depth > maxRedactDepth {
		return v
	}
	switch val := v.(type) {
	case string:
		lower := strings.ToLower(val)
		for _, prefix := range secretValuePrefixes {
			if strings.HasPrefix(lower, prefix) {
				return redactedPlaceholder
			}
		}
		return val
	case map[string]any:
		return redactMap(val, depth+1)
	case []any:
		out := make([]any, len(val))
		for i, nested := range val {
			out[i] = redactValue(nested, depth+1)
		}
		return out
	default:
		return v
	}
}

func secretKey(k string) bool {
	lower := strings.ToLower(k)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
