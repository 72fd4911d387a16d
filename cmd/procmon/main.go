// Copyright (c) 2026 John Earle
//
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

// procmon operator CLI
//
// Runs one flow of the monitoring engine and prints its JSON summary. The
// process exits non-zero on configuration errors only; per-item failures
// are part of the summary.
//
// Usage:
//
//	procmon assign [--no-alerts] [--stale-days 60]
//	procmon alerts [--window 3]
//	procmon sync --id 0001234-56.2021.8.26.0100 | --owner-name NAME | --owner-doc DOC | --party TEXT
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexdesk/procmon/internal/app"
	"github.com/lexdesk/procmon/internal/config"
	"github.com/lexdesk/procmon/internal/ingest"
	"github.com/lexdesk/procmon/internal/jobs"
)

func main() {
	app.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "procmon",
		Short:         "Run process-monitoring sweeps and on-demand syncs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAssignCmd(), newAlertsCmd(), newSyncCmd())
	return root
}

func newAssignCmd() *cobra.Command {
	var (
		noAlerts  bool
		staleDays int
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign owners to ownerless subjects from interaction history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *jobs.Orchestrator) (any, error) {
				enable := !noAlerts
				return o.AutoAssign(ctx, jobs.AssignRequest{
					EnableAlerts:       &enable,
					StaleThresholdDays: staleDays,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&noAlerts, "no-alerts", false, "do not raise alerts")
	cmd.Flags().IntVar(&staleDays, "stale-days", 0, "idle days after which a new owner is alerted (default from config)")
	return cmd
}

func newAlertsCmd() *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Raise stalled, deadline and stalled-process alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *jobs.Orchestrator) (any, error) {
				return o.GenerateAlerts(ctx, jobs.AlertRequest{DeadlineWindowDays: window})
			})
		},
	}
	cmd.Flags().IntVar(&window, "window", 0, "deadline window in days (default from config)")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var (
		id, party      string
		ownerName, doc string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh case records from the judicial-records API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := jobs.SyncRequest{Identifier: id, Party: party}
			if ownerName != "" || doc != "" {
				req.OwnerCriteria = &ingest.OwnerCriteria{Name: ownerName, Document: doc}
			}
			return withOrchestrator(cmd.Context(), func(ctx context.Context, o *jobs.Orchestrator) (any, error) {
				return o.Sync(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "case identifier, punctuated or not")
	cmd.Flags().StringVar(&ownerName, "owner-name", "", "party name to search for")
	cmd.Flags().StringVar(&doc, "owner-doc", "", "party document number to search for")
	cmd.Flags().StringVar(&party, "party", "", "free-text party search; stores the most recent match")
	cmd.MarkFlagsOneRequired("id", "owner-name", "owner-doc", "party")
	return cmd
}

// withOrchestrator loads configuration, connects, runs fn and prints its
// result as JSON.
func withOrchestrator(ctx context.Context, fn func(context.Context, *jobs.Orchestrator) (any, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := fn(ctx, a.Orchestrator)
	if err != nil {
		slog.Error("flow failed", "error", err)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
