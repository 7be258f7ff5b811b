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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peg/bridle/internal/policy"
)

// newCheckCmd dry-runs a tool call against the config and prints the
// decision the pipeline would make, without executing anything.
func newCheckCmd(opts *rootOptions) *cobra.Command {
	var argsJSON string
	var origin string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <tool>",
		Short: "Evaluate a tool call against the policy without executing it",
		Example: `  bridle check browser_navigate --args '{"url":"https://example.com"}'
  bridle check browser_click --args '{"text":"Proceed to checkout"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			source, err := policy.NewSource(policy.NewFileStore(opts.configPath), slog.Default())
			if err != nil {
				return err
			}

			toolArgs := map[string]any{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("check: parse --args: %w", err)
				}
			}

			decision := policy.Evaluate(policy.Request{
				Tool:          posArgs[0],
				Args:          toolArgs,
				SessionID:     "cli-check",
				CurrentOrigin: origin,
			}, source.Current())

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(decision)
			}

			fmt.Fprintf(out, "%-10s %s\n", "outcome:", decision.Outcome)
			fmt.Fprintf(out, "%-10s %s\n", "tier:", decision.Tier)
			fmt.Fprintf(out, "%-10s %s\n", "action:", decision.ActionKey)
			fmt.Fprintf(out, "%-10s %s\n", "reason:", decision.Reason)
			if len(decision.Evidence.MatchedSignals) > 0 {
				fmt.Fprintf(out, "%-10s %s\n", "signals:", strings.Join(decision.Evidence.MatchedSignals, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&origin, "origin", "", "Current page origin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decision as JSON")
	return cmd
}
