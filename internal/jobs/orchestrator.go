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

// Package jobs composes the scanner, resolver, alert policy and ingestion
// service into the three operational flows: the auto-assignment sweep, the
// alert sweep and on-demand sync. Each run is stateless; everything it
// learns is written to the datastore.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lexdesk/procmon/internal/alert"
	"github.com/lexdesk/procmon/internal/cnj"
	"github.com/lexdesk/procmon/internal/config"
	"github.com/lexdesk/procmon/internal/ingest"
	"github.com/lexdesk/procmon/internal/metrics"
	"github.com/lexdesk/procmon/internal/models"
	"github.com/lexdesk/procmon/internal/ownership"
	"github.com/lexdesk/procmon/internal/scan"
)

// Flow names, used in summaries and metrics.
const (
	FlowAutoAssign = "auto-assign"
	FlowAlerts     = "alerts"
	FlowSync       = "sync"
)

// ConfigError aborts a whole invocation: the engine is not set up to run
// the requested flow.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrInvalidRequest is returned for a sync request without any criteria.
var ErrInvalidRequest = errors.New("sync request needs an identifier, owner criteria or party")

// Scanner finds work for the sweeps.
type Scanner interface {
	Ownerless(ctx context.Context) ([]scan.StaleSubject, error)
	Stale(ctx context.Context, thresholdDays int) ([]scan.StaleSubject, error)
	StaleCases(ctx context.Context, thresholdDays int) ([]scan.StaleCase, error)
	Deadlines(ctx context.Context, windowDays int) ([]scan.DeadlineItem, error)
}

// Resolver infers an owner for a subject.
type Resolver interface {
	Resolve(ctx context.Context, subjectID string) (ownership.Candidate, bool, error)
}

// Assigner writes an assignment and its log entry.
type Assigner interface {
	AssignOwner(ctx context.Context, entry models.AssignmentLogEntry) (bool, error)
}

// Raiser raises deduplicated alerts.
type Raiser interface {
	Raise(ctx context.Context, c alert.Candidate) (bool, error)
}

// Syncer refreshes case records from upstream.
type Syncer interface {
	SyncOne(ctx context.Context, identifier string) (ingest.SyncResult, error)
	SyncForOwner(ctx context.Context, criteria ingest.OwnerCriteria) (ingest.SyncResult, error)
	SyncParty(ctx context.Context, text string) (ingest.SyncResult, error)
}

// Deps wires an Orchestrator. Syncer may be nil when the upstream API is
// not configured; SyncErr then says why.
type Deps struct {
	Scanner  Scanner
	Resolver Resolver
	Assigner Assigner
	Raiser   Raiser
	Syncer   Syncer
	SyncErr  error
	Monitor  config.MonitorConfig
}

// Orchestrator runs the operational flows.
type Orchestrator struct {
	d Deps
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{d: d}
}

// AssignRequest tunes the auto-assignment sweep. Zero values fall back to
// configuration; EnableAlerts defaults to true.
type AssignRequest struct {
	EnableAlerts       *bool `json:"enableAlerts,omitempty"`
	StaleThresholdDays int   `json:"staleThresholdDays,omitempty" validate:"gte=0,lte=3650"`
}

// AutoAssign assigns an owner to every ownerless, non-terminal subject it
// can attribute. Subjects nobody can be inferred for get a no-owner alert;
// subjects assigned after a long idle period alert their new owner.
func (o *Orchestrator) AutoAssign(ctx context.Context, req AssignRequest) (Summary, error) {
	metrics.SweepRuns.WithLabelValues(FlowAutoAssign).Inc()
	sum := newSummary(FlowAutoAssign)

	alerts := req.EnableAlerts == nil || *req.EnableAlerts
	threshold := req.StaleThresholdDays
	if threshold <= 0 {
		threshold = o.d.Monitor.CriticalStaleDays
	}

	subjects, err := o.d.Scanner.Ownerless(ctx)
	if err != nil {
		slog.Error("auto-assign: listing ownerless subjects failed", "error", err)
		sum.addError(err.Error())
		sum.finish()
		return *sum, nil
	}

	runPool(ctx, o.d.Monitor.Concurrency, subjects, sum, func(ctx context.Context, s scan.StaleSubject) Result {
		return o.assignOne(ctx, s, alerts, threshold)
	})

	sum.finish()
	slog.Info("auto-assign sweep complete",
		"processed", sum.Processed,
		"assigned", sum.Assigned,
		"alerts_created", sum.AlertsCreated,
		"errors", len(sum.Errors),
	)
	return *sum, nil
}

func (o *Orchestrator) assignOne(ctx context.Context, s scan.StaleSubject, alerts bool, threshold int) Result {
	sub := s.Subject
	res := Result{Item: sub.ID}
	ref := models.SubjectRef{Type: models.SubjectMatter, ID: sub.ID}

	cand, found, err := o.d.Resolver.Resolve(ctx, sub.ID)
	if err != nil {
		res.Outcome, res.Err = OutcomeError, err
		return res
	}

	if !found {
		res.Outcome = OutcomeNoHistory
		if alerts {
			created, err := o.d.Raiser.Raise(ctx, alert.Candidate{
				Kind:    models.AlertNoOwnerFound,
				Subject: ref,
				Display: sub.Title,
				Days:    s.Days,
			})
			if err != nil {
				res.Err = fmt.Errorf("raise no-owner alert: %w", err)
			}
			res.AlertCreated = created
		}
		return res
	}

	assigned, err := o.d.Assigner.AssignOwner(ctx, models.AssignmentLogEntry{
		SubjectID: sub.ID,
		OwnerID:   cand.PersonID,
		Source:    cand.Source,
		ActorID:   cand.ActorID,
	})
	if err != nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("assign owner: %w", err)
		return res
	}
	if !assigned {
		res.Outcome, res.Detail = OutcomeSkipped, "owner set concurrently"
		return res
	}

	res.Outcome, res.Detail = OutcomeAssigned, cand.PersonID
	slog.Info("subject assigned",
		"subject_id", sub.ID,
		"owner_id", cand.PersonID,
		"source", cand.Source,
		"idle_days", s.Days,
	)

	if alerts && s.Days >= threshold {
		created, err := o.d.Raiser.Raise(ctx, alert.Candidate{
			Kind:           models.AlertNewlyAssignedCritical,
			Subject:        ref,
			Display:        sub.Title,
			TargetPersonID: cand.PersonID,
			Days:           s.Days,
		})
		if err != nil {
			res.Err = fmt.Errorf("raise newly-assigned alert: %w", err)
		}
		res.AlertCreated = created
	}
	return res
}

// AlertRequest tunes the alert sweep.
type AlertRequest struct {
	DeadlineWindowDays int `json:"deadlineWindowDays,omitempty" validate:"gte=0,lte=365"`
}

// GenerateAlerts runs the stalled, deadline and stalled-process passes.
// The passes are independent: one failing to list its work does not stop
// the others.
func (o *Orchestrator) GenerateAlerts(ctx context.Context, req AlertRequest) (Summary, error) {
	metrics.SweepRuns.WithLabelValues(FlowAlerts).Inc()
	sum := newSummary(FlowAlerts)

	m := o.d.Monitor
	window := req.DeadlineWindowDays
	if window <= 0 {
		window = m.DeadlineWindowDays
	}

	if stale, err := o.d.Scanner.Stale(ctx, m.StalledAlertDays); err != nil {
		slog.Error("alerts: stalled pass failed", "error", err)
		sum.addError("stalled: " + err.Error())
	} else {
		runPool(ctx, m.Concurrency, stale, sum, func(ctx context.Context, s scan.StaleSubject) Result {
			return o.raise(ctx, s.Subject.ID, alert.Candidate{
				Kind:           models.AlertStalled,
				Subject:        models.SubjectRef{Type: models.SubjectMatter, ID: s.Subject.ID},
				Display:        s.Subject.Title,
				TargetPersonID: s.Subject.OwnerID,
				Days:           s.Days,
			})
		})
	}

	if items, err := o.d.Scanner.Deadlines(ctx, window); err != nil {
		slog.Error("alerts: deadline pass failed", "error", err)
		sum.addError("deadlines: " + err.Error())
	} else {
		runPool(ctx, m.Concurrency, mostUrgentPerCase(items), sum, func(ctx context.Context, d scan.DeadlineItem) Result {
			return o.raise(ctx, d.Event.CanonicalID, alert.Candidate{
				Kind:    models.AlertDeadlineApproaching,
				Subject: models.SubjectRef{Type: models.SubjectCase, ID: d.Event.CanonicalID},
				Display: cnj.Normalize(d.Event.CanonicalID).Format(),
				Days:    d.DaysRemaining,
			})
		})
	}

	if cases, err := o.d.Scanner.StaleCases(ctx, m.StalledProcessDays); err != nil {
		slog.Error("alerts: stalled-process pass failed", "error", err)
		sum.addError("stalled-process: " + err.Error())
	} else {
		runPool(ctx, m.Concurrency, cases, sum, func(ctx context.Context, c scan.StaleCase) Result {
			return o.raise(ctx, c.Case.CanonicalID, alert.Candidate{
				Kind:    models.AlertStalledProcess,
				Subject: models.SubjectRef{Type: models.SubjectCase, ID: c.Case.CanonicalID},
				Display: cnj.Normalize(c.Case.CanonicalID).Format(),
				Days:    c.Days,
			})
		})
	}

	sum.finish()
	slog.Info("alert sweep complete",
		"processed", sum.Processed,
		"alerts_created", sum.AlertsCreated,
		"errors", len(sum.Errors),
	)
	return *sum, nil
}

// mostUrgentPerCase keeps the deadline with the fewest days remaining for
// each case, preserving first-seen order. Deadline alerts are per case, so
// only that item may raise one.
func mostUrgentPerCase(items []scan.DeadlineItem) []scan.DeadlineItem {
	idx := make(map[string]int, len(items))
	out := make([]scan.DeadlineItem, 0, len(items))
	for _, it := range items {
		id := it.Event.CanonicalID
		i, ok := idx[id]
		if !ok {
			idx[id] = len(out)
			out = append(out, it)
			continue
		}
		if it.DaysRemaining < out[i].DaysRemaining {
			out[i] = it
		}
	}
	return out
}

func (o *Orchestrator) raise(ctx context.Context, item string, c alert.Candidate) Result {
	res := Result{Item: string(c.Kind) + ":" + item}
	created, err := o.d.Raiser.Raise(ctx, c)
	switch {
	case err != nil:
		res.Outcome, res.Err = OutcomeError, err
	case created:
		res.Outcome, res.AlertCreated = OutcomeAlerted, true
		res.Detail = string(c.Priority())
	default:
		res.Outcome, res.Detail = OutcomeSkipped, "alert already pending"
	}
	return res
}

// SyncRequest selects what to refresh. Exactly one field is expected;
// Identifier wins over OwnerCriteria, which wins over Party.
type SyncRequest struct {
	Identifier    string                `json:"identifier,omitempty" validate:"omitempty,max=64"`
	OwnerCriteria *ingest.OwnerCriteria `json:"ownerCriteria,omitempty"`
	Party         string                `json:"party,omitempty" validate:"omitempty,max=200"`
}

// SyncSummary reports an on-demand sync: the usual per-item summary, the
// overall outcome and the records stored. Upstream failures that did not
// stop the sync are listed in Errors.
type SyncSummary struct {
	Summary
	Outcome string              `json:"outcome"`
	Records []models.CaseRecord `json:"records"`
}

// Sync refreshes case records on demand. A missing API key is a
// ConfigError; upstream and datastore failures are reported in the
// summary with outcome "error".
func (o *Orchestrator) Sync(ctx context.Context, req SyncRequest) (SyncSummary, error) {
	metrics.SweepRuns.WithLabelValues(FlowSync).Inc()

	if o.d.Syncer == nil {
		err := o.d.SyncErr
		if err == nil {
			err = errors.New("judicial-records client is not configured")
		}
		return SyncSummary{}, &ConfigError{Err: err}
	}

	var (
		res  ingest.SyncResult
		err  error
		item string
	)
	sum := newSummary(FlowSync)
	switch {
	case req.Identifier != "":
		item = req.Identifier
		res, err = o.d.Syncer.SyncOne(ctx, req.Identifier)
	case req.OwnerCriteria != nil && req.OwnerCriteria.Text() != "":
		item = req.OwnerCriteria.Text()
		res, err = o.d.Syncer.SyncForOwner(ctx, *req.OwnerCriteria)
	case req.Party != "":
		item = req.Party
		res, err = o.d.Syncer.SyncParty(ctx, req.Party)
	default:
		return SyncSummary{}, ErrInvalidRequest
	}

	out := SyncSummary{Records: res.Records}
	if out.Records == nil {
		out.Records = []models.CaseRecord{}
	}

	switch {
	case errors.Is(err, ingest.ErrNotFound):
		out.Outcome = OutcomeNotFound
		sum.add(Result{Item: item, Outcome: OutcomeNotFound})
	case err != nil:
		out.Outcome = OutcomeError
		sum.add(Result{Item: item, Outcome: OutcomeError, Err: err})
	default:
		out.Outcome = OutcomeFound
		for _, rec := range res.Records {
			sum.add(Result{Item: rec.CanonicalID, Outcome: OutcomeFound})
		}
	}
	for _, w := range res.Warnings {
		sum.addError(w.Error())
	}
	sum.finish()
	out.Summary = *sum

	slog.Info("on-demand sync complete",
		"item", item,
		"outcome", out.Outcome,
		"records", len(out.Records),
		"warnings", len(res.Warnings),
	)
	return out, nil
}
