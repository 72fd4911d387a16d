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

// Package scan finds subjects and cases that have gone quiet and activity
// deadlines that are about to expire.
package scan

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lexdesk/procmon/internal/models"
	"github.com/lexdesk/procmon/internal/store"
)

// PageSize is how many rows each datastore round trip reads.
const PageSize = 1000

// Source is the datastore surface the scanner pages through.
type Source interface {
	ListSubjectsPage(ctx context.Context, f store.SubjectFilter, offset, limit int) ([]models.Subject, error)
	ListCasesPage(ctx context.Context, offset, limit int) ([]models.CaseRecord, error)
	ListDeadlinesPage(ctx context.Context, from, to time.Time, offset, limit int) ([]models.ActivityEvent, error)
}

// StaleSubject is a subject with the whole days since its last activity.
type StaleSubject struct {
	Subject models.Subject
	Days    int
}

// StaleCase is a case record with the whole days since its last activity.
type StaleCase struct {
	Case models.CaseRecord
	Days int
}

// DeadlineItem is an activity event whose deadline falls in the window.
type DeadlineItem struct {
	Event         models.ActivityEvent
	DaysRemaining int
}

// Scanner runs the staleness and deadline queries.
type Scanner struct {
	src      Source
	terminal []string
	now      func() time.Time
}

// New creates a scanner that ignores subjects in any terminal status.
func New(src Source, terminalStatuses []string) *Scanner {
	return &Scanner{src: src, terminal: terminalStatuses, now: time.Now}
}

// Stale returns non-terminal subjects idle for at least thresholdDays.
func (s *Scanner) Stale(ctx context.Context, thresholdDays int) ([]StaleSubject, error) {
	return s.subjects(ctx, store.SubjectFilter{ExcludeStatuses: s.terminal}, thresholdDays)
}

// Ownerless returns every non-terminal subject without an owner, with its
// idle days.
func (s *Scanner) Ownerless(ctx context.Context) ([]StaleSubject, error) {
	return s.subjects(ctx, store.SubjectFilter{ExcludeStatuses: s.terminal, OwnerlessOnly: true}, 0)
}

func (s *Scanner) subjects(ctx context.Context, f store.SubjectFilter, threshold int) ([]StaleSubject, error) {
	now := s.now()
	var out []StaleSubject
	err := pages(ctx, func(ctx context.Context, offset, limit int) ([]models.Subject, error) {
		return s.src.ListSubjectsPage(ctx, f, offset, limit)
	}, func(sub models.Subject) {
		if days := DaysSince(sub.ActivitySince(), now); days >= threshold {
			out = append(out, StaleSubject{Subject: sub, Days: days})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan subjects: %w", err)
	}
	return out, nil
}

// StaleCases returns case records idle for at least thresholdDays. A case
// that never recorded activity is measured from its creation.
func (s *Scanner) StaleCases(ctx context.Context, thresholdDays int) ([]StaleCase, error) {
	now := s.now()
	var out []StaleCase
	err := pages(ctx, s.src.ListCasesPage, func(c models.CaseRecord) {
		since := c.CreatedAt
		if c.LastActivityAt != nil {
			since = *c.LastActivityAt
		}
		if days := DaysSince(since, now); days >= thresholdDays {
			out = append(out, StaleCase{Case: c, Days: days})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan cases: %w", err)
	}
	return out, nil
}

// Deadlines returns events whose deadline lies between today and today
// plus windowDays, inclusive, whatever the state of their subject.
func (s *Scanner) Deadlines(ctx context.Context, windowDays int) ([]DeadlineItem, error) {
	today := truncateDay(s.now())
	until := today.AddDate(0, 0, windowDays+1).Add(-time.Nanosecond)

	var out []DeadlineItem
	err := pages(ctx, func(ctx context.Context, offset, limit int) ([]models.ActivityEvent, error) {
		return s.src.ListDeadlinesPage(ctx, today, until, offset, limit)
	}, func(e models.ActivityEvent) {
		if e.Deadline == nil {
			return
		}
		out = append(out, DeadlineItem{
			Event:         e,
			DaysRemaining: DaysSince(today, truncateDay(*e.Deadline)),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan deadlines: %w", err)
	}
	return out, nil
}

// pages calls fetch with growing offsets until a short page, handing every
// row to visit.
func pages[T any](ctx context.Context, fetch func(ctx context.Context, offset, limit int) ([]T, error), visit func(T)) error {
	for offset := 0; ; offset += PageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := fetch(ctx, offset, PageSize)
		if err != nil {
			return err
		}
		for _, row := range page {
			visit(row)
		}
		if len(page) < PageSize {
			return nil
		}
	}
}

// DaysSince returns the whole days elapsed from since to now, never
// negative.
func DaysSince(since, now time.Time) int {
	d := now.Sub(since)
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Hours() / 24))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
