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

// Package ownership infers the owner of an ownerless subject from who
// last worked on it.
//
// The chain is fixed: the subject's own interaction log is consulted
// first; only when it has no actor at all is the broad activity log used.
// For the chosen actor, matchers run in order until one yields an active
// employment. Inactive and soft-deleted employments count as not found.
package ownership

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lexdesk/procmon/internal/models"
)

// Sources of an inferred owner, recorded in the assignment log.
const (
	SourceInteraction = "interaction_log"
	SourceActivity    = "activity_log"
)

// Candidate is an inferred owner. PersonID is the employment id that will
// own the subject; ActorID is the user whose activity pointed at it.
type Candidate struct {
	PersonID string
	ActorID  string
	Source   string
	Matcher  string
}

// ActorSource finds the actor to attribute a subject to.
type ActorSource interface {
	Name() string
	Actor(ctx context.Context, subjectID string) (actorID string, found bool, err error)
}

// Matcher maps an actor to an active employment.
type Matcher interface {
	Name() string
	Match(ctx context.Context, actorID string) (personID string, found bool, err error)
}

// Resolver walks actor sources and matchers in order.
type Resolver struct {
	sources  []ActorSource
	matchers []Matcher
}

// NewResolver builds a resolver over the given ordered strategies.
func NewResolver(sources []ActorSource, matchers []Matcher) *Resolver {
	return &Resolver{sources: sources, matchers: matchers}
}

// Resolve returns the inferred owner of subjectID. found is false when no
// strategy yields an active employment; the caller must not assign then.
//
// Only the first source that produces an actor is used: a later source is
// a fallback for missing history, not for an actor who cannot be matched.
func (r *Resolver) Resolve(ctx context.Context, subjectID string) (Candidate, bool, error) {
	for _, src := range r.sources {
		actor, ok, err := src.Actor(ctx, subjectID)
		if err != nil {
			return Candidate{}, false, fmt.Errorf("%s: %w", src.Name(), err)
		}
		if !ok {
			continue
		}

		for _, m := range r.matchers {
			person, ok, err := m.Match(ctx, actor)
			if err != nil {
				return Candidate{}, false, fmt.Errorf("%s: %w", m.Name(), err)
			}
			if ok {
				return Candidate{
					PersonID: person,
					ActorID:  actor,
					Source:   src.Name(),
					Matcher:  m.Name(),
				}, true, nil
			}
		}

		slog.Debug("actor has no active employment",
			"subject_id", subjectID,
			"actor_id", actor,
			"source", src.Name(),
		)
		return Candidate{}, false, nil
	}
	return Candidate{}, false, nil
}

// firstActive returns the first active employment in list.
func firstActive(list []models.Employment) (string, bool) {
	for _, e := range list {
		if e.Active() {
			return e.ID, true
		}
	}
	return "", false
}
