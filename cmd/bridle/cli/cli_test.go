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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peg/bridle/internal/approval"
	"github.com/peg/bridle/internal/policy"
)

const cliConfig = `
require_approval_for_high_risk: true
allowed_hosts:
  - example.com
sensitive_action_keys:
  - checkout
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(context.Background(), &out, &out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCLIConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliConfig), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "bridle")
}

func TestVersionFlag(t *testing.T) {
	out, err := runCLI(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "bridle")
}

func TestCheckDeniedNavigation(t *testing.T) {
	cfg := writeCLIConfig(t)

	out, err := runCLI(t, "check", "browser_navigate",
		"--config", cfg,
		"--args", `{"url":"https://evil.com"}`)

	require.NoError(t, err, "check reports the decision, it does not fail the command")
	assert.Contains(t, out, "deny")
	assert.Contains(t, out, "evil.com")
}

func TestCheckJSONOutput(t *testing.T) {
	cfg := writeCLIConfig(t)

	out, err := runCLI(t, "check", "browser_click",
		"--config", cfg,
		"--args", `{"text":"Proceed to checkout"}`,
		"--json")
	require.NoError(t, err)

	var decision policy.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.Equal(t, policy.OutcomeGate, decision.Outcome, "checkout keyword promotes to high and gates")
}

func TestCheckRejectsBadArgsJSON(t *testing.T) {
	cfg := writeCLIConfig(t)

	_, err := runCLI(t, "check", "browser_click", "--config", cfg, "--args", "{bad")
	assert.Error(t, err)
}

func TestCheckMissingConfig(t *testing.T) {
	_, err := runCLI(t, "check", "browser_click",
		"--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestInitWritesProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridle.yaml")

	out, err := runCLI(t, "init", "--config", path, "--profile", "paranoid")
	require.NoError(t, err)
	assert.Contains(t, out, "paranoid")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	cfg, err := policy.Parse(data)
	require.NoError(t, err)
	assert.Zero(t, cfg.MaxRetries)
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := writeCLIConfig(t)

	_, err := runCLI(t, "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestInitUnknownProfile(t *testing.T) {
	_, err := runCLI(t, "init",
		"--config", filepath.Join(t.TempDir(), "bridle.yaml"),
		"--profile", "lenient")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available:")
}

func TestAuditListEmpty(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "approvals.jsonl")

	out, err := runCLI(t, "audit", "list", "--approval-log", logPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no approval events")
}

func TestAuditListAndPrune(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "approvals.jsonl")

	log, err := approval.NewLog(logPath, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(approval.Event{
			Tool:      "browser_evaluate",
			SessionID: "s-1",
			Outcome:   approval.OutcomeApproved,
			RiskTier:  "high",
		}))
	}

	out, err := runCLI(t, "audit", "list", "--approval-log", logPath, "--last", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("browser_evaluate")))

	out, err = runCLI(t, "audit", "prune", "--approval-log", logPath, "--max-count", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 4 events")
}

func TestExitCode(t *testing.T) {
	assert.Zero(t, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
}
