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

// Package build exposes the version metadata stamped into the bridle
// binary.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "\
//	  -X github.com/peg/bridle/internal/build.rawVersion=v0.3.0 \
//	  -X github.com/peg/bridle/internal/build.Commit=4f2a91c \
//	  -X github.com/peg/bridle/internal/build.Date=2026-08-26T00:00:00Z"
//
// A binary installed with `go install` carries no ldflags; for that
// case Version falls back to the module version recorded in the
// embedded build info.
package build

import "runtime/debug"

// rawVersion is the ldflag-injected version before any fallback.
var rawVersion = "dev"

// Commit is the short git commit hash. Set by ldflags at build time.
var Commit = "unknown"

// Date is the UTC build timestamp. Set by ldflags at build time.
var Date = "unknown"

// Version is the best available version string: ldflags first, then
// the module version from build info, then "dev".
var Version = resolveVersion()

func resolveVersion() string {
	if rawVersion != "dev" {
		return rawVersion
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return rawVersion
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return rawVersion
}
