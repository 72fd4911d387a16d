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

// Package alert raises deduplicated, priority-tiered alerts. At most one
// pending alert exists per (kind, subject); raising again while one is
// pending is a no-op.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lexdesk/procmon/internal/metrics"
	"github.com/lexdesk/procmon/internal/models"
)

// Tier thresholds, in idle days.
const (
	CriticalDays = 60
	HighDays     = 45
)

// Deadline tier thresholds, in days remaining.
const (
	DeadlineCriticalDays = 2
	DeadlineHighDays     = 3
)

// Tier maps idle days to a priority: 60 or more is critical, 45 or more
// is high, anything less is normal.
func Tier(days int) models.Priority {
	switch {
	case days >= CriticalDays:
		return models.PriorityCritical
	case days >= HighDays:
		return models.PriorityHigh
	default:
		return models.PriorityNormal
	}
}

// DeadlineTier maps days remaining before a deadline to a priority.
func DeadlineTier(daysRemaining int) models.Priority {
	switch {
	case daysRemaining <= DeadlineCriticalDays:
		return models.PriorityCritical
	case daysRemaining <= DeadlineHighDays:
		return models.PriorityHigh
	default:
		return models.PriorityNormal
	}
}

// Candidate describes an alert the caller wants raised. Days is idle days
// for staleness kinds and days remaining for deadline alerts.
type Candidate struct {
	Kind           models.AlertKind
	Subject        models.SubjectRef
	Display        string
	TargetPersonID string
	Days           int
}

// Priority returns the tier for the candidate's kind and day count.
func (c Candidate) Priority() models.Priority {
	if c.Kind == models.AlertDeadlineApproaching {
		return DeadlineTier(c.Days)
	}
	return Tier(c.Days)
}

// Store persists alerts.
type Store interface {
	PendingAlert(ctx context.Context, kind models.AlertKind, subject models.SubjectRef) (*models.Alert, error)
	InsertAlert(ctx context.Context, a *models.Alert) (bool, error)
}

// Claimer narrows concurrent raises of the same pair to one caller.
type Claimer interface {
	Claim(ctx context.Context, kind, subject string) (bool, error)
	Release(ctx context.Context, kind, subject string) error
}

// Notifier hands created alerts to delivery.
type Notifier interface {
	PublishAlert(ctx context.Context, a *models.Alert) error
}

// Policy raises alerts. Claimer and Notifier are optional.
type Policy struct {
	store    Store
	claimer  Claimer
	notifier Notifier
}

// NewPolicy creates an alert policy.
func NewPolicy(store Store, claimer Claimer, notifier Notifier) *Policy {
	return &Policy{store: store, claimer: claimer, notifier: notifier}
}

// Raise creates the alert unless one is already pending for the same kind
// and subject. created is false when deduplicated.
func (p *Policy) Raise(ctx context.Context, c Candidate) (bool, error) {
	if c.Subject.Type == "" {
		c.Subject.Type = models.SubjectNone
	}
	kind, key := string(c.Kind), c.Subject.Key()

	if p.claimer != nil {
		won, err := p.claimer.Claim(ctx, kind, key)
		switch {
		case err != nil:
			slog.Warn("alert claim unavailable, relying on datastore",
				"kind", kind,
				"subject", key,
				"error", err,
			)
		case !won:
			metrics.AlertsSuppressed.WithLabelValues(kind).Inc()
			return false, nil
		default:
			defer func() {
				if err := p.claimer.Release(context.WithoutCancel(ctx), kind, key); err != nil {
					slog.Debug("alert claim release failed", "subject", key, "error", err)
				}
			}()
		}
	}

	existing, err := p.store.PendingAlert(ctx, c.Kind, c.Subject)
	if err != nil {
		return false, fmt.Errorf("check pending alert: %w", err)
	}
	if existing != nil {
		metrics.AlertsSuppressed.WithLabelValues(kind).Inc()
		return false, nil
	}

	title, description := render(c)
	a := &models.Alert{
		Kind:           c.Kind,
		Subject:        c.Subject,
		TargetPersonID: c.TargetPersonID,
		Title:          title,
		Description:    description,
		Priority:       c.Priority(),
		Severity:       c.Days,
	}

	created, err := p.store.InsertAlert(ctx, a)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	if !created {
		metrics.AlertsSuppressed.WithLabelValues(kind).Inc()
		return false, nil
	}

	metrics.AlertsCreated.WithLabelValues(kind, string(a.Priority)).Inc()
	slog.Info("alert created",
		"alert_id", a.ID,
		"kind", kind,
		"subject", key,
		"priority", a.Priority,
	)

	if p.notifier != nil {
		if err := p.notifier.PublishAlert(ctx, a); err != nil {
			slog.Warn("alert notification not queued",
				"alert_id", a.ID,
				"error", err,
			)
		}
	}
	return true, nil
}
