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

package models

import "time"

// Subject is a tracked matter. The CRUD side owns it; the engine only
// fills OwnerID when it is empty.
type Subject struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	CanonicalID    string     `json:"canonical_id,omitempty"`
	Status         string     `json:"status"`
	OwnerID        string     `json:"owner_id,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ActivitySince returns the most recent activity timestamp, falling back to
// the creation time for subjects that never saw activity.
func (s Subject) ActivitySince() time.Time {
	if s.LastActivityAt != nil {
		return *s.LastActivityAt
	}
	return s.CreatedAt
}

// Employment statuses.
const (
	EmploymentActive   = "active"
	EmploymentInactive = "inactive"
)

// Employment is a person's employment record, the unit that can own a subject.
type Employment struct {
	ID           string     `json:"id"`
	PersonID     string     `json:"person_id"`
	Status       string     `json:"status"`
	WorkEmail    string     `json:"work_email,omitempty"`
	ContactEmail string     `json:"contact_email,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the employment may receive assignments. A
// soft-deleted record is never active.
func (e Employment) Active() bool {
	return e.DeletedAt == nil && e.Status == EmploymentActive
}

// AssignmentLogEntry is the append-only audit row written on every
// automatic assignment.
type AssignmentLogEntry struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	OwnerID   string    `json:"owner_id"`
	Source    string    `json:"source"`
	ActorID   string    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
