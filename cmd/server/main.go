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

// procmon server
//
// Entry point for the monitoring engine's long-running service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Applies schema migrations and connects to PostgreSQL and Redis
//  3. Schedules the auto-assignment and alert sweeps on cron expressions
//  4. Serves the job-trigger API, /health and /metrics
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexdesk/procmon/internal/api"
	"github.com/lexdesk/procmon/internal/app"
	"github.com/lexdesk/procmon/internal/config"
	"github.com/lexdesk/procmon/internal/schedule"
)

func main() {
	app.SetupLogging()
	slog.Info("starting procmon server")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"concurrency", cfg.Monitor.Concurrency,
		"schedule_auto_assign", cfg.Schedule.AutoAssign,
		"schedule_alerts", cfg.Schedule.Alerts,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Scheduler ---
	sched, err := schedule.New(ctx, cfg.Schedule, a.Orchestrator)
	if err != nil {
		slog.Error("invalid schedule", "error", err)
		os.Exit(1)
	}
	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	// --- Job-trigger API ---
	handler := api.NewHandler(a.Orchestrator, a.HealthChecks())
	ready, err := api.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-schedDone

	slog.Info("procmon server stopped")
}
