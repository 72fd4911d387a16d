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

// Package models defines the data structures shared across the monitoring engine.
package models

import (
	"encoding/json"
	"time"
)

// Instance tiers of a judicial process.
const (
	InstanceFirst  = "first"
	InstanceSecond = "second"
)

// CaseRecord is a judicial process as last seen upstream. CanonicalID is
// the identity key: records are upserted on it and never duplicated.
type CaseRecord struct {
	CanonicalID    string          `json:"canonical_id"`
	CourtSystem    string          `json:"court_system"`
	JusticeSegment string          `json:"justice_segment,omitempty"`
	CourtCode      string          `json:"court_code,omitempty"`
	InstanceTier   string          `json:"instance_tier,omitempty"`
	ClassName      string          `json:"class_name,omitempty"`
	SubjectMatter  string          `json:"subject_matter,omitempty"`
	OriginUnit     string          `json:"origin_unit,omitempty"`
	FilingDate     *time.Time      `json:"filing_date,omitempty"`
	LastActivity   string          `json:"last_activity,omitempty"`
	LastActivityAt *time.Time      `json:"last_activity_at,omitempty"`
	SecrecyLevel   int             `json:"secrecy_level"`
	RawPayload     json.RawMessage `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Complement is a structured sub-field attached to an activity event.
type Complement struct {
	Code        int    `json:"code,omitempty"`
	Name        string `json:"name,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// ActivityEvent is one movement in a case's history.
type ActivityEvent struct {
	ID          int64        `json:"id,omitempty"`
	CanonicalID string       `json:"canonical_id"`
	OccurredAt  time.Time    `json:"occurred_at"`
	Code        int          `json:"code,omitempty"`
	Description string       `json:"description"`
	Complements []Complement `json:"complements,omitempty"`
	Fingerprint string       `json:"fingerprint"`
	Read        bool         `json:"read"`
	Urgent      bool         `json:"urgent"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
}
