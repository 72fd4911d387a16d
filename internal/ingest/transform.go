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

package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lexdesk/procmon/internal/cnj"
	"github.com/lexdesk/procmon/internal/datajud"
	"github.com/lexdesk/procmon/internal/models"
)

// toRecord converts an upstream hit into a case record and its most
// recent events. fallback is used when the payload carries no usable
// process number.
func toRecord(hit datajud.Hit, fallback cnj.Number, maxEvents int) (*models.CaseRecord, []models.ActivityEvent) {
	p := hit.Process

	n := cnj.Normalize(p.Number)
	if n.Canonical == "" {
		n = fallback
	}

	rec := &models.CaseRecord{
		CanonicalID:    n.Canonical,
		CourtSystem:    strings.ToLower(hit.Court),
		JusticeSegment: n.Justice,
		CourtCode:      n.Court,
		InstanceTier:   instanceTier(n, p.Grade),
		FilingDate:     p.FiledTime(),
		SecrecyLevel:   p.Secrecy,
		RawPayload:     hit.Raw,
	}
	if rec.CourtSystem == "" {
		rec.CourtSystem, _ = n.CourtOrDefault()
	}
	if p.Class != nil {
		rec.ClassName = p.Class.Name
	}
	if p.Unit != nil {
		rec.OriginUnit = p.Unit.Name
	}
	subjects := make([]string, 0, len(p.Subjects))
	for _, s := range p.Subjects {
		if s.Name != "" {
			subjects = append(subjects, s.Name)
		}
	}
	rec.SubjectMatter = strings.Join(subjects, "; ")

	events := transformEvents(rec.CanonicalID, p.Movements, maxEvents)
	if len(events) > 0 {
		rec.LastActivity = events[0].Description
		at := events[0].OccurredAt
		rec.LastActivityAt = &at
	} else if updated := datajud.ParseTime(p.UpdatedAt); updated != nil {
		rec.LastActivityAt = updated
	}
	return rec, events
}

// instanceTier prefers the tier derived from the number, then the upstream
// grade field, and defaults to first instance.
func instanceTier(n cnj.Number, grade string) string {
	if n.Resolved {
		return n.Instance
	}
	switch strings.ToUpper(strings.TrimSpace(grade)) {
	case "G1", "JE":
		return models.InstanceFirst
	case "G2", "TR":
		return models.InstanceSecond
	}
	_, tier := n.CourtOrDefault()
	return tier
}

// transformEvents sorts movements newest first and keeps at most max of
// them. Movements without a parseable timestamp are dropped.
func transformEvents(canonicalID string, movements []datajud.Movement, max int) []models.ActivityEvent {
	events := make([]models.ActivityEvent, 0, len(movements))
	for _, m := range movements {
		at := datajud.ParseTime(m.OccurredAt)
		if at == nil {
			continue
		}

		complements := make([]models.Complement, 0, len(m.Complements))
		for _, c := range m.Complements {
			complements = append(complements, models.Complement{
				Code:        c.Code,
				Name:        c.Name,
				Value:       datajud.ComplementValue(c.Value),
				Description: c.Description,
			})
		}

		text := m.Name
		for _, c := range complements {
			if c.Description != "" {
				text += " " + c.Description
			}
		}

		events = append(events, models.ActivityEvent{
			CanonicalID: canonicalID,
			OccurredAt:  *at,
			Code:        m.Code,
			Description: m.Name,
			Complements: complements,
			Fingerprint: fingerprint(*at, m.Code, m.Name),
			Urgent:      isUrgent(text),
			Deadline:    deadlineFor(*at, m.Name, complements),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.After(events[j].OccurredAt)
	})
	if max > 0 && len(events) > max {
		events = events[:max]
	}
	return events
}

// fingerprint identifies an event across resyncs.
func fingerprint(at time.Time, code int, description string) string {
	h := sha256.New()
	h.Write([]byte(at.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(code)))
	h.Write([]byte{0})
	h.Write([]byte(description))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
