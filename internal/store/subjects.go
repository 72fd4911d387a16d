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
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexdesk/procmon/internal/models"
)

var subjectColumns = []string{
	"id", "title", "canonical_id", "status", "owner_id", "last_activity_at", "created_at",
}

var employmentColumns = []string{
	"e.id", "e.person_id", "e.status", "e.work_email", "e.contact_email", "e.deleted_at",
}

// SubjectFilter narrows a subject listing.
type SubjectFilter struct {
	// ExcludeStatuses drops subjects in any of these (terminal) statuses.
	ExcludeStatuses []string
	// OwnerlessOnly keeps subjects without an owner.
	OwnerlessOnly bool
}

// ListSubjectsPage returns one page of subjects matching f, ordered by id.
func (s *Store) ListSubjectsPage(ctx context.Context, f SubjectFilter, offset, limit int) ([]models.Subject, error) {
	q := psql.Select(subjectColumns...).From("matters")
	if len(f.ExcludeStatuses) > 0 {
		q = q.Where(squirrel.NotEq{"status": f.ExcludeStatuses})
	}
	if f.OwnerlessOnly {
		q = q.Where(squirrel.Eq{"owner_id": nil})
	}
	q = q.OrderBy("id").Offset(uint64(offset)).Limit(uint64(limit))

	rows, err := query(ctx, s.db, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []models.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, *sub)
	}
	return subjects, rows.Err()
}

// GetSubject retrieves a subject by id. It returns nil, nil when absent.
func (s *Store) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	row, err := queryRow(ctx, s.db, psql.Select(subjectColumns...).
		From("matters").
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	sub, err := scanSubject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// AssignOwner sets the owner of a still-ownerless subject and appends the
// assignment log entry in the same transaction. It reports false when the
// subject already had an owner, in which case nothing is written.
func (s *Store) AssignOwner(ctx context.Context, entry models.AssignmentLogEntry) (bool, error) {
	assigned := false
	err := s.inTx(ctx, func(q querier) error {
		tag, err := exec(ctx, q, psql.Update("matters").
			Set("owner_id", entry.OwnerID).
			Where(squirrel.Eq{"id": entry.SubjectID, "owner_id": nil}))
		if err != nil {
			return fmt.Errorf("set owner: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		id := entry.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := exec(ctx, q, psql.Insert("assignment_log").
			Columns("id", "subject_id", "owner_id", "source", "actor_id").
			Values(id, entry.SubjectID, entry.OwnerID, entry.Source, entry.ActorID)); err != nil {
			return fmt.Errorf("append assignment log: %w", err)
		}
		assigned = true
		return nil
	})
	return assigned, err
}

// LatestInteractionActor returns the actor of the subject's most recent
// interaction-log entry that has one.
func (s *Store) LatestInteractionActor(ctx context.Context, subjectID string) (string, bool, error) {
	return s.latestActor(ctx, psql.Select("actor_id").
		From("interaction_logs").
		Where(squirrel.Eq{"subject_id": subjectID}).
		Where(squirrel.NotEq{"actor_id": nil}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1))
}

// LatestActivityActor returns the actor of the most recent entry in the
// broad activity log, across every entity.
func (s *Store) LatestActivityActor(ctx context.Context) (string, bool, error) {
	return s.latestActor(ctx, psql.Select("actor_id").
		From("activity_logs").
		Where(squirrel.NotEq{"actor_id": nil}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1))
}

func (s *Store) latestActor(ctx context.Context, q squirrel.SelectBuilder) (string, bool, error) {
	row, err := queryRow(ctx, s.db, q)
	if err != nil {
		return "", false, err
	}
	var actor string
	err = row.Scan(&actor)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return actor, actor != "", nil
}

// EmploymentsByActor returns the employments of the person linked to the
// user actorID.
func (s *Store) EmploymentsByActor(ctx context.Context, actorID string) ([]models.Employment, error) {
	rows, err := query(ctx, s.db, psql.Select(employmentColumns...).
		From("employments e").
		Join("people p ON p.id = e.person_id").
		Where(squirrel.Eq{"p.user_id": actorID}).
		OrderBy("e.id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployments(rows)
}

// EmploymentsByLogin returns employments whose work or contact email
// matches the login of the user actorID, case-insensitively.
func (s *Store) EmploymentsByLogin(ctx context.Context, actorID string) ([]models.Employment, error) {
	rows, err := query(ctx, s.db, psql.Select(employmentColumns...).
		From("employments e").
		Join("users u ON u.login <> '' AND LOWER(u.login) IN (LOWER(e.work_email), LOWER(e.contact_email))").
		Where(squirrel.Eq{"u.id": actorID}).
		OrderBy("e.id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployments(rows)
}

// scanSubject scans a single row into a Subject.
func scanSubject(row pgx.Row) (*models.Subject, error) {
	var sub models.Subject
	var canonical, owner *string
	var lastActivity *time.Time
	if err := row.Scan(
		&sub.ID, &sub.Title, &canonical, &sub.Status, &owner, &lastActivity, &sub.CreatedAt,
	); err != nil {
		return nil, err
	}
	if canonical != nil {
		sub.CanonicalID = *canonical
	}
	if owner != nil {
		sub.OwnerID = *owner
	}
	sub.LastActivityAt = lastActivity
	return &sub, nil
}

// collectEmployments scans multiple rows into a slice of Employments.
func collectEmployments(rows pgx.Rows) ([]models.Employment, error) {
	var out []models.Employment
	for rows.Next() {
		var e models.Employment
		if err := rows.Scan(
			&e.ID, &e.PersonID, &e.Status, &e.WorkEmail, &e.ContactEmail, &e.DeletedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
