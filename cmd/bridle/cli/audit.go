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
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/peg/bridle/internal/approval"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and prune the approval audit log",
	}
	cmd.AddCommand(newAuditListCmd(opts))
	cmd.AddCommand(newAuditPruneCmd(opts))
	return cmd
}

func newAuditListCmd(opts *rootOptions) *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print resolved gate outcomes, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := approval.NewLog(opts.approvalLogPath, slog.Default())
			if err != nil {
				return err
			}

			events, err := log.Read()
			if err != nil {
				return err
			}
			if last > 0 && len(events) > last {
				events = events[len(events)-last:]
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "no approval events recorded")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(out, "%s  %-8s  %-8s  %-20s  %s (%s)\n",
					e.Timestamp.Format(time.RFC3339),
					e.Outcome,
					e.RiskTier,
					e.Tool,
					e.SessionID,
					e.ResolvedBy,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&last, "last", 0, "Show only the newest N events")
	return cmd
}

func newAuditPruneCmd(opts *rootOptions) *cobra.Command {
	var maxAge time.Duration
	var maxCount int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop approval events past the age cutoff or count cap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := approval.NewLog(opts.approvalLogPath, slog.Default())
			if err != nil {
				return err
			}

			removed, err := log.Prune(maxAge, maxCount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d events\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "Drop events older than this")
	cmd.Flags().IntVar(&maxCount, "max-count", 10000, "Keep at most this many newest events")
	return cmd
}
