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

package jobs

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexdesk/procmon/internal/metrics"
)

// Per-item outcomes.
const (
	OutcomeAssigned  = "assigned"
	OutcomeNoHistory = "no-history"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
	OutcomeAlerted   = "alerted"
	OutcomeFound     = "found"
	OutcomeNotFound  = "not-found"
)

// maxSamples bounds both the outcome sample and the error list.
const maxSamples = 50

// Result is the outcome of one item of a sweep.
type Result struct {
	Item         string
	Outcome      string
	Detail       string
	AlertCreated bool
	Err          error
}

// Sample is one reported per-item outcome.
type Sample struct {
	Item    string `json:"item"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Summary is what a sweep reports back to its trigger.
type Summary struct {
	Flow          string         `json:"flow"`
	Processed     int            `json:"processed"`
	Assigned      int            `json:"assigned"`
	AlertsCreated int            `json:"alerts_created"`
	Outcomes      map[string]int `json:"outcomes"`
	Samples       []Sample       `json:"samples"`
	Errors        []string       `json:"errors"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

func newSummary(flow string) *Summary {
	return &Summary{
		Flow:      flow,
		Outcomes:  make(map[string]int),
		Samples:   []Sample{},
		Errors:    []string{},
		StartedAt: time.Now().UTC(),
	}
}

// add folds one result into the summary.
func (s *Summary) add(r Result) {
	s.Processed++
	s.Outcomes[r.Outcome]++
	if r.Outcome == OutcomeAssigned {
		s.Assigned++
	}
	if r.AlertCreated {
		s.AlertsCreated++
	}
	if len(s.Samples) < maxSamples {
		s.Samples = append(s.Samples, Sample{Item: r.Item, Outcome: r.Outcome, Detail: r.Detail})
	}
	if r.Err != nil {
		s.addError(r.Item + ": " + r.Err.Error())
	}
	metrics.ItemOutcomes.WithLabelValues(s.Flow, r.Outcome).Inc()
}

// addError records a non-fatal failure that is not tied to an item.
func (s *Summary) addError(msg string) {
	if len(s.Errors) < maxSamples {
		s.Errors = append(s.Errors, msg)
	}
}

func (s *Summary) finish() {
	s.FinishedAt = time.Now().UTC()
	metrics.SweepDuration.WithLabelValues(s.Flow).Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
}

// runPool applies fn to every item with at most limit running at once and
// folds the results into sum. fn reports failures through its Result, so
// one item never cancels the others.
func runPool[T any](ctx context.Context, limit int, items []T, sum *Summary, fn func(context.Context, T) Result) {
	if limit <= 0 {
		limit = 1
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			r := fn(ctx, item)
			mu.Lock()
			sum.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}
