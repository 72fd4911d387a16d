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

// AlertKind enumerates the alerts the engine raises.
type AlertKind string

const (
	AlertNoOwnerFound          AlertKind = "no_owner_found"
	AlertNewlyAssignedCritical AlertKind = "newly_assigned_critical"
	AlertStalled               AlertKind = "stalled"
	AlertDeadlineApproaching   AlertKind = "deadline_approaching"
	AlertStalledProcess        AlertKind = "stalled_process"
)

// Priority is the escalation tier of an alert.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Alert statuses. Only the UI moves an alert out of pending.
const (
	AlertPending  = "pending"
	AlertResolved = "resolved"
)

// SubjectType says what an alert points at.
type SubjectType string

const (
	SubjectCase   SubjectType = "case"
	SubjectMatter SubjectType = "matter"
	SubjectNone   SubjectType = "none"
)

// SubjectRef is a polymorphic reference to the thing an alert is about.
// A subject-less alert has Type SubjectNone and an empty ID.
type SubjectRef struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id,omitempty"`
}

// Key identifies the subject for deduplication purposes.
func (s SubjectRef) Key() string {
	if s.Type == "" || s.Type == SubjectNone {
		return string(SubjectNone)
	}
	return string(s.Type) + ":" + s.ID
}

// Alert is a pending or resolved notice for operators.
type Alert struct {
	ID             string     `json:"id"`
	Kind           AlertKind  `json:"kind"`
	Subject        SubjectRef `json:"subject"`
	TargetPersonID string     `json:"target_person_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       Priority   `json:"priority"`
	Severity       int        `json:"severity"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}
