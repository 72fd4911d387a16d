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

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexdesk/procmon/internal/models"
)

var alertColumns = []string{
	"id", "kind", "subject_type", "subject_id", "target_person_id", "title",
	"description", "priority", "severity", "status", "created_at",
}

// PendingAlert returns the pending alert of kind for subject, or nil, nil
// when there is none.
func (s *Store) PendingAlert(ctx context.Context, kind models.AlertKind, subject models.SubjectRef) (*models.Alert, error) {
	st, sid := subjectColumnsOf(subject)
	row, err := queryRow(ctx, s.db, psql.Select(alertColumns...).
		From("alerts").
		Where(squirrel.Eq{
			"kind":         string(kind),
			"subject_type": st,
			"subject_id":   sid,
			"status":       models.AlertPending,
		}).
		Limit(1))
	if err != nil {
		return nil, err
	}
	return scanAlert(row)
}

// InsertAlert stores a new pending alert unless an equivalent pending one
// already exists. It reports whether a row was inserted and fills in the
// alert's id and creation time when it was.
func (s *Store) InsertAlert(ctx context.Context, a *models.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	st, sid := subjectColumnsOf(a.Subject)

	var target *string
	if a.TargetPersonID != "" {
		target = &a.TargetPersonID
	}

	row, err := queryRow(ctx, s.db, psql.Insert("alerts").
		Columns(alertColumns[:10]...).
		Values(
			a.ID, string(a.Kind), st, sid, target, a.Title,
			a.Description, string(a.Priority), a.Severity, models.AlertPending,
		).
		Suffix("ON CONFLICT (kind, subject_type, subject_id) WHERE status = 'pending' DO NOTHING RETURNING created_at"))
	if err != nil {
		return false, err
	}

	err = row.Scan(&a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	a.Status = models.AlertPending
	return true, nil
}

// ListPendingAlerts returns pending alerts, newest first.
func (s *Store) ListPendingAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := query(ctx, s.db, psql.Select(alertColumns...).
		From("alerts").
		Where(squirrel.Eq{"status": models.AlertPending}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func subjectColumnsOf(ref models.SubjectRef) (string, string) {
	if ref.Type == "" || ref.Type == models.SubjectNone {
		return string(models.SubjectNone), ""
	}
	return string(ref.Type), ref.ID
}

// scanAlert scans a single row into an Alert.
func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	var kind, subjectType, priority string
	var target *string
	err := row.Scan(
		&a.ID, &kind, &subjectType, &a.Subject.ID, &target, &a.Title,
		&a.Description, &priority, &a.Severity, &a.Status, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Kind = models.AlertKind(kind)
	a.Subject.Type = models.SubjectType(subjectType)
	a.Priority = models.Priority(priority)
	if target != nil {
		a.TargetPersonID = *target
	}
	return &a, nil
}
