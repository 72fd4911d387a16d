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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/lexdesk/procmon/internal/models"
)

var caseColumns = []string{
	"canonical_id", "court_system", "justice_segment", "court_code",
	"instance_tier", "class_name", "subject_matter", "origin_unit",
	"filing_date", "last_activity", "last_activity_at", "secrecy_level",
	"raw_payload", "created_at", "updated_at",
}

var eventColumns = []string{
	"id", "canonical_id", "occurred_at", "code", "description",
	"complements", "fingerprint", "read", "urgent", "deadline",
}

// UpsertCase inserts or updates a case record keyed on its canonical id.
// The returned record carries the stored timestamps.
func (s *Store) UpsertCase(ctx context.Context, c *models.CaseRecord) (*models.CaseRecord, error) {
	raw := c.RawPayload
	if len(raw) == 0 {
		raw = nil
	}

	insert := psql.Insert("case_records").
		Columns(caseColumns[:13]...).
		Values(
			c.CanonicalID, c.CourtSystem, c.JusticeSegment, c.CourtCode,
			c.InstanceTier, c.ClassName, c.SubjectMatter, c.OriginUnit,
			c.FilingDate, c.LastActivity, c.LastActivityAt, c.SecrecyLevel,
			raw,
		).
		Suffix(`ON CONFLICT (canonical_id) DO UPDATE SET
			court_system     = EXCLUDED.court_system,
			justice_segment  = EXCLUDED.justice_segment,
			court_code       = EXCLUDED.court_code,
			instance_tier    = EXCLUDED.instance_tier,
			class_name       = EXCLUDED.class_name,
			subject_matter   = EXCLUDED.subject_matter,
			origin_unit      = EXCLUDED.origin_unit,
			filing_date      = EXCLUDED.filing_date,
			last_activity    = EXCLUDED.last_activity,
			last_activity_at = EXCLUDED.last_activity_at,
			secrecy_level    = EXCLUDED.secrecy_level,
			raw_payload      = EXCLUDED.raw_payload,
			updated_at       = NOW()
		RETURNING created_at, updated_at`)

	row, err := queryRow(ctx, s.db, insert)
	if err != nil {
		return nil, err
	}

	out := *c
	if err := row.Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert case %s: %w", c.CanonicalID, err)
	}
	return &out, nil
}

// GetCase retrieves a case record by canonical id. It returns nil, nil
// when no record exists.
func (s *Store) GetCase(ctx context.Context, canonicalID string) (*models.CaseRecord, error) {
	row, err := queryRow(ctx, s.db, psql.Select(caseColumns...).
		From("case_records").
		Where(squirrel.Eq{"canonical_id": canonicalID}))
	if err != nil {
		return nil, err
	}
	return scanCase(row)
}

// ListCasesPage returns one page of case records ordered by canonical id.
func (s *Store) ListCasesPage(ctx context.Context, offset, limit int) ([]models.CaseRecord, error) {
	rows, err := query(ctx, s.db, psql.Select(caseColumns...).
		From("case_records").
		OrderBy("canonical_id").
		Offset(uint64(offset)).
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CaseRecord
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *c)
	}
	return records, rows.Err()
}

// ReplaceEvents swaps the stored activity of a case for events in one
// transaction. Events whose fingerprint was already marked read keep
// their read flag.
func (s *Store) ReplaceEvents(ctx context.Context, canonicalID string, events []models.ActivityEvent) error {
	return s.inTx(ctx, func(q querier) error {
		read, err := readFingerprints(ctx, q, canonicalID)
		if err != nil {
			return fmt.Errorf("load read flags: %w", err)
		}

		if _, err := exec(ctx, q, psql.Delete("activity_events").
			Where(squirrel.Eq{"canonical_id": canonicalID})); err != nil {
			return fmt.Errorf("delete events: %w", err)
		}

		if len(events) == 0 {
			return nil
		}

		insert := psql.Insert("activity_events").Columns(eventColumns[1:]...)
		for _, e := range events {
			complements, err := json.Marshal(e.Complements)
			if err != nil {
				return fmt.Errorf("marshal complements: %w", err)
			}
			insert = insert.Values(
				canonicalID, e.OccurredAt, e.Code, e.Description, complements,
				e.Fingerprint, e.Read || read[e.Fingerprint], e.Urgent, e.Deadline,
			)
		}
		if _, err := exec(ctx, q, insert); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
		return nil
	})
}

func readFingerprints(ctx context.Context, q querier, canonicalID string) (map[string]bool, error) {
	rows, err := query(ctx, q, psql.Select("fingerprint").
		From("activity_events").
		Where(squirrel.Eq{"canonical_id": canonicalID, "read": true}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	read := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		read[fp] = true
	}
	return read, rows.Err()
}

// ListEvents returns the stored activity of a case, newest first.
func (s *Store) ListEvents(ctx context.Context, canonicalID string) ([]models.ActivityEvent, error) {
	rows, err := query(ctx, s.db, psql.Select(eventColumns...).
		From("activity_events").
		Where(squirrel.Eq{"canonical_id": canonicalID}).
		OrderBy("occurred_at DESC", "id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListDeadlinesPage returns one page of activity events whose deadline
// falls within [from, to], earliest deadline first.
func (s *Store) ListDeadlinesPage(ctx context.Context, from, to time.Time, offset, limit int) ([]models.ActivityEvent, error) {
	rows, err := query(ctx, s.db, psql.Select(eventColumns...).
		From("activity_events").
		Where(squirrel.GtOrEq{"deadline": from}).
		Where(squirrel.LtOrEq{"deadline": to}).
		OrderBy("deadline", "id").
		Offset(uint64(offset)).
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// scanCase scans a single row into a CaseRecord.
func scanCase(row pgx.Row) (*models.CaseRecord, error) {
	var c models.CaseRecord
	var raw []byte
	err := row.Scan(
		&c.CanonicalID, &c.CourtSystem, &c.JusticeSegment, &c.CourtCode,
		&c.InstanceTier, &c.ClassName, &c.SubjectMatter, &c.OriginUnit,
		&c.FilingDate, &c.LastActivity, &c.LastActivityAt, &c.SecrecyLevel,
		&raw, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		c.RawPayload = json.RawMessage(raw)
	}
	return &c, nil
}

// collectEvents scans multiple rows into a slice of ActivityEvents.
func collectEvents(rows pgx.Rows) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	for rows.Next() {
		var e models.ActivityEvent
		var complements []byte
		if err := rows.Scan(
			&e.ID, &e.CanonicalID, &e.OccurredAt, &e.Code, &e.Description,
			&complements, &e.Fingerprint, &e.Read, &e.Urgent, &e.Deadline,
		); err != nil {
			return nil, err
		}
		if len(complements) > 0 {
			if err := json.Unmarshal(complements, &e.Complements); err != nil {
				return nil, fmt.Errorf("decode complements: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
