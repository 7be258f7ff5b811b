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

package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peg/bridle/internal/adapt"
)

const sampleConfig = `
require_approval_for_high_risk: true
allowed_hosts:
  - example.com
  - "*.example.com"
blocked_origins:
  - "*.pastebin.com"
sensitive_action_keys:
  - checkout
credential_isolation: true
max_retries: 2
retry_backoff: 250ms
gate_timeout: 5m
artifact_byte_budget: 1048576
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.True(t, cfg.RequireApprovalForHighRisk)
	assert.Equal(t, []string{"example.com", "*.example.com"}, cfg.AllowedHosts)
	assert.Equal(t, []string{"*.pastebin.com"}, cfg.BlockedOrigins)
	assert.True(t, cfg.CredentialIsolation)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Minute, cfg.GateTimeout)
	assert.Equal(t, 1048576, cfg.ArtifactByteBudget)
}

func TestParseRejectsNegativeRetries(t *testing.T) {
	_, err := Parse([]byte("max_retries: -1"))
	assert.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("gate_timeout: soon"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gate_timeout")
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("allowed_hosts: [unclosed"))
	assert.Error(t, err)
}

func TestEffectiveGateTimeoutDefault(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultGateTimeout, cfg.EffectiveGateTimeout())

	cfg.GateTimeout = time.Minute
	assert.Equal(t, time.Minute, cfg.EffectiveGateTimeout())
}

func TestFileStoreLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.True(t, cfg.RequireApprovalForHighRisk)
}

func TestFileStoreLoadMissing(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Error(t, err)
}

func TestSourceReload(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	src, err := NewSource(NewFileStore(path), nil)
	require.NoError(t, err)
	assert.Len(t, src.Current().AllowedHosts, 2)

	updated := `
allowed_hosts:
  - only.example.com
sensitive_action_keys:
  - checkout
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, src.Reload())
	assert.Equal(t, []string{"only.example.com"}, src.Current().AllowedHosts)
}

func TestSourceReloadRejectsEmptyConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	src, err := NewSource(NewFileStore(path), nil)
	require.NoError(t, err)

	// Truncated file, as a watcher would see mid-write.
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 1\n"), 0o644))
	assert.Error(t, src.Reload())
	assert.Len(t, src.Current().AllowedHosts, 2, "old config stays active")
}

func TestSourceReloadKeepsAdaptation(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	src, err := NewSource(NewFileStore(path), nil)
	require.NoError(t, err)

	src.SetAdaptation(adapt.Hint{RegressionPressure: 0.8, Escalate: true})
	require.NoError(t, src.Reload())

	hint := src.Current().Adaptation
	require.NotNil(t, hint, "reload must not drop the live adaptation hint")
	assert.True(t, hint.Escalate)
}

func TestStaticSourceRejectsReload(t *testing.T) {
	src := NewStaticSource(&Config{})
	assert.Error(t, src.Reload())
}

func TestSetAdaptationSwapsConfig(t *testing.T) {
	src := NewStaticSource(&Config{AllowedHosts: []string{"example.com"}})
	before := src.Current()

	src.SetAdaptation(adapt.Hint{Escalate: true})
	after := src.Current()

	assert.NotSame(t, before, after, "in-flight decisions keep the config they started with")
	assert.Nil(t, before.Adaptation)
	require.NotNil(t, after.Adaptation)
	assert.True(t, after.Adaptation.Escalate)
}
