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

package ownership

import (
	"context"

	"github.com/lexdesk/procmon/internal/models"
)

// History is the datastore surface the default strategies read.
type History interface {
	LatestInteractionActor(ctx context.Context, subjectID string) (string, bool, error)
	LatestActivityActor(ctx context.Context) (string, bool, error)
	EmploymentsByActor(ctx context.Context, actorID string) ([]models.Employment, error)
	EmploymentsByLogin(ctx context.Context, actorID string) ([]models.Employment, error)
}

// interactionSource reads the subject's own interaction log.
type interactionSource struct{ h History }

func (interactionSource) Name() string { return SourceInteraction }

func (s interactionSource) Actor(ctx context.Context, subjectID string) (string, bool, error) {
	return s.h.LatestInteractionActor(ctx, subjectID)
}

// activitySource reads the most recent entry of the broad activity log,
// which is not specific to the subject.
type activitySource struct{ h History }

func (activitySource) Name() string { return SourceActivity }

func (s activitySource) Actor(ctx context.Context, _ string) (string, bool, error) {
	return s.h.LatestActivityActor(ctx)
}

// personMatcher follows actor -> person -> employment.
type personMatcher struct{ h History }

func (personMatcher) Name() string { return "person" }

func (m personMatcher) Match(ctx context.Context, actorID string) (string, bool, error) {
	list, err := m.h.EmploymentsByActor(ctx, actorID)
	if err != nil {
		return "", false, err
	}
	id, ok := firstActive(list)
	return id, ok, nil
}

// loginMatcher matches the actor's login against employment contact fields.
type loginMatcher struct{ h History }

func (loginMatcher) Name() string { return "login" }

func (m loginMatcher) Match(ctx context.Context, actorID string) (string, bool, error) {
	list, err := m.h.EmploymentsByLogin(ctx, actorID)
	if err != nil {
		return "", false, err
	}
	id, ok := firstActive(list)
	return id, ok, nil
}

// NewDefault builds the standard chain over h: interaction log, then the
// broad activity log; person link, then login match.
func NewDefault(h History) *Resolver {
	return NewResolver(
		[]ActorSource{interactionSource{h}, activitySource{h}},
		[]Matcher{personMatcher{h}, loginMatcher{h}},
	)
}
