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

// Package schedule runs the periodic sweeps on cron expressions. A run that
// is still going when its next tick fires is skipped rather than stacked.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/lexdesk/procmon/internal/config"
	"github.com/lexdesk/procmon/internal/jobs"
)

// Sweeps is the part of the orchestrator the scheduler triggers.
type Sweeps interface {
	AutoAssign(ctx context.Context, req jobs.AssignRequest) (jobs.Summary, error)
	GenerateAlerts(ctx context.Context, req jobs.AlertRequest) (jobs.Summary, error)
}

// Scheduler triggers the sweeps.
type Scheduler struct {
	cron    *cron.Cron
	entries int
}

// New registers every non-empty expression in cfg. An invalid expression
// is an error; an empty one disables that sweep.
func New(ctx context.Context, cfg config.ScheduleConfig, sweeps Sweeps) (*Scheduler, error) {
	log := slogAdapter{}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(log),
			cron.SkipIfStillRunning(log),
		)),
	}

	add := func(flow, expr string, run func(context.Context) (jobs.Summary, error)) error {
		if expr == "" {
			slog.Info("scheduled sweep disabled", "flow", flow)
			return nil
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("parse %s schedule %q: %w", flow, expr, err)
		}
		if _, err := s.cron.AddFunc(expr, func() { trigger(ctx, flow, run) }); err != nil {
			return fmt.Errorf("schedule %s: %w", flow, err)
		}
		s.entries++
		slog.Info("scheduled sweep registered", "flow", flow, "schedule", expr)
		return nil
	}

	if err := add(jobs.FlowAutoAssign, cfg.AutoAssign, func(ctx context.Context) (jobs.Summary, error) {
		return sweeps.AutoAssign(ctx, jobs.AssignRequest{})
	}); err != nil {
		return nil, err
	}
	if err := add(jobs.FlowAlerts, cfg.Alerts, func(ctx context.Context) (jobs.Summary, error) {
		return sweeps.GenerateAlerts(ctx, jobs.AlertRequest{})
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Entries returns how many sweeps are scheduled.
func (s *Scheduler) Entries() int { return s.entries }

// Run starts the scheduler. It blocks until the context is cancelled and
// then waits for running sweeps to finish.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler starting", "entries", s.entries)
	s.cron.Start()

	<-ctx.Done()
	slog.Info("scheduler stopping")
	<-s.cron.Stop().Done()
}

func trigger(ctx context.Context, flow string, run func(context.Context) (jobs.Summary, error)) {
	if ctx.Err() != nil {
		return
	}
	sum, err := run(ctx)
	if err != nil {
		slog.Error("scheduled sweep failed", "flow", flow, "error", err)
		return
	}
	slog.Info("scheduled sweep finished",
		"flow", flow,
		"processed", sum.Processed,
		"assigned", sum.Assigned,
		"alerts_created", sum.AlertsCreated,
		"errors", len(sum.Errors),
	)
}

// slogAdapter routes cron's own logging through slog.
type slogAdapter struct{}

func (slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
