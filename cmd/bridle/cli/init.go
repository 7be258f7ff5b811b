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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peg/bridle/policies"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var profile string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter policy config from a built-in profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := policies.Profile(profile)
			if err != nil {
				return fmt.Errorf("init: %w (available: %s)", err, strings.Join(policies.ProfileNames, ", "))
			}

			if !force {
				if _, err := os.Stat(opts.configPath); err == nil {
					return fmt.Errorf("init: %s already exists (use --force to overwrite)", opts.configPath)
				}
			}

			if err := os.WriteFile(opts.configPath, data, 0o600); err != nil {
				return fmt.Errorf("init: write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s profile to %s\n", profile, opts.configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "standard", "Built-in profile to start from")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
