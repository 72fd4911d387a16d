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

// Package ingest pulls case records from the judicial-records API and
// stores them with their recent activity.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexdesk/procmon/internal/cnj"
	"github.com/lexdesk/procmon/internal/datajud"
	"github.com/lexdesk/procmon/internal/models"
)

// ErrNotFound is returned when every court system that answered had no
// record for the identifier.
var ErrNotFound = errors.New("process not found")

// IngestionError reports a sync that could not complete: every court
// system failed, or the datastore rejected a write.
type IngestionError struct {
	Identifier string
	Op         string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Identifier, e.Op, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Records is the upstream lookup surface.
type Records interface {
	FindByNumber(ctx context.Context, n cnj.Number) datajud.Lookup
	SearchParty(ctx context.Context, text string) datajud.Lookup
}

// Store persists case records and their activity.
type Store interface {
	UpsertCase(ctx context.Context, c *models.CaseRecord) (*models.CaseRecord, error)
	ReplaceEvents(ctx context.Context, canonicalID string, events []models.ActivityEvent) error
}

// OwnerCriteria identifies a party to search for. Document wins over Name
// when both are set.
type OwnerCriteria struct {
	Name     string `json:"name,omitempty"`
	Document string `json:"document,omitempty"`
}

// Text returns the search text for the criteria.
func (c OwnerCriteria) Text() string {
	if d := strings.TrimSpace(c.Document); d != "" {
		return d
	}
	return strings.TrimSpace(c.Name)
}

// Service fetches and stores case records.
type Service struct {
	records   Records
	store     Store
	maxEvents int
	maxOwner  int
}

// NewService creates an ingestion service. maxEvents bounds the activity
// kept per case; maxOwnerResults bounds how many party matches are stored.
func NewService(records Records, store Store, maxEvents, maxOwnerResults int) *Service {
	if maxEvents <= 0 {
		maxEvents = 50
	}
	if maxOwnerResults <= 0 {
		maxOwnerResults = 20
	}
	return &Service{
		records:   records,
		store:     store,
		maxEvents: maxEvents,
		maxOwner:  maxOwnerResults,
	}
}

// SyncResult is what a sync stored. Warnings holds the upstream and
// per-case failures that did not stop it: a court that errored before
// another one answered, or a party match that could not be written.
type SyncResult struct {
	Records  []models.CaseRecord
	Warnings []error
}

func (r *SyncResult) warnCourts(l datajud.Lookup) {
	for _, e := range l.Errors {
		r.Warnings = append(r.Warnings, e)
	}
}

// SyncOne refreshes a single case by identifier. The result carries
// warnings even when err is ErrNotFound.
func (s *Service) SyncOne(ctx context.Context, identifier string) (SyncResult, error) {
	var res SyncResult
	n := cnj.Normalize(identifier)
	if n.Canonical == "" {
		return res, ErrNotFound
	}
	if len(n.Canonical) == cnj.Digits && !n.ValidCheckDigits() {
		slog.Warn("process number fails check digits",
			"identifier", n.Format(),
		)
	}

	lookup := s.records.FindByNumber(ctx, n)
	if !lookup.Found() {
		if lookup.AllFailed() {
			return res, &IngestionError{
				Identifier: n.Canonical,
				Op:         "fetch",
				Err:        errors.Join(courtErrors(lookup)...),
			}
		}
		res.warnCourts(lookup)
		return res, ErrNotFound
	}
	res.warnCourts(lookup)

	rec, err := s.store1(ctx, lookup.Hits[0], n)
	if err != nil {
		return res, err
	}
	res.Records = append(res.Records, *rec)
	return res, nil
}

// SyncForOwner stores every case matching the owner criteria, up to the
// configured bound. Per-case failures become warnings and do not stop the
// remaining cases; only when none could be stored is the sync an error.
func (s *Service) SyncForOwner(ctx context.Context, criteria OwnerCriteria) (SyncResult, error) {
	var res SyncResult
	text := criteria.Text()
	if text == "" {
		return res, ErrNotFound
	}

	lookup := s.records.SearchParty(ctx, text)
	if !lookup.Found() {
		if lookup.AllFailed() {
			return res, &IngestionError{
				Identifier: text,
				Op:         "search",
				Err:        errors.Join(courtErrors(lookup)...),
			}
		}
		res.warnCourts(lookup)
		return res, ErrNotFound
	}
	res.warnCourts(lookup)

	hits := lookup.Hits
	if len(hits) > s.maxOwner {
		hits = hits[:s.maxOwner]
	}

	var failed []error
	for _, hit := range hits {
		rec, err := s.store1(ctx, hit, cnj.Number{})
		if err != nil {
			failed = append(failed, err)
			continue
		}
		res.Records = append(res.Records, *rec)
	}

	if len(res.Records) == 0 && len(failed) > 0 {
		return res, errors.Join(failed...)
	}
	if len(failed) > 0 {
		slog.Warn("owner sync stored partial results",
			"criteria", text,
			"stored", len(res.Records),
			"failed", len(failed),
		)
		res.Warnings = append(res.Warnings, failed...)
	}
	return res, nil
}

// SyncParty stores only the most recently filed case matching text.
func (s *Service) SyncParty(ctx context.Context, text string) (SyncResult, error) {
	var res SyncResult
	text = strings.TrimSpace(text)
	if text == "" {
		return res, ErrNotFound
	}

	lookup := s.records.SearchParty(ctx, text)
	best, ok := lookup.MostRecent()
	if !ok {
		if lookup.AllFailed() {
			return res, &IngestionError{
				Identifier: text,
				Op:         "search",
				Err:        errors.Join(courtErrors(lookup)...),
			}
		}
		res.warnCourts(lookup)
		return res, ErrNotFound
	}
	res.warnCourts(lookup)

	rec, err := s.store1(ctx, best, cnj.Number{})
	if err != nil {
		return res, err
	}
	res.Records = append(res.Records, *rec)
	return res, nil
}

// store1 transforms a hit and writes it: the case upsert first, then the
// full replacement of its activity.
func (s *Service) store1(ctx context.Context, hit datajud.Hit, fallback cnj.Number) (*models.CaseRecord, error) {
	rec, events := toRecord(hit, fallback, s.maxEvents)
	if rec.CanonicalID == "" {
		return nil, &IngestionError{Op: "transform", Err: errors.New("upstream record has no process number")}
	}

	stored, err := s.store.UpsertCase(ctx, rec)
	if err != nil {
		return nil, &IngestionError{Identifier: rec.CanonicalID, Op: "upsert case", Err: err}
	}
	if err := s.store.ReplaceEvents(ctx, rec.CanonicalID, events); err != nil {
		return nil, &IngestionError{Identifier: rec.CanonicalID, Op: "replace events", Err: err}
	}

	slog.Info("case synced",
		"canonical_id", rec.CanonicalID,
		"court", rec.CourtSystem,
		"events", len(events),
	)
	return stored, nil
}

func courtErrors(l datajud.Lookup) []error {
	errs := make([]error, 0, len(l.Errors))
	for _, e := range l.Errors {
		errs = append(errs, e)
	}
	return errs
}
