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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/procmon/internal/alert"
	"github.com/lexdesk/procmon/internal/config"
	"github.com/lexdesk/procmon/internal/ingest"
	"github.com/lexdesk/procmon/internal/models"
	"github.com/lexdesk/procmon/internal/ownership"
	"github.com/lexdesk/procmon/internal/scan"
)

// --- fakes ---

type fakeScanner struct {
	ownerless []scan.StaleSubject
	stale     []scan.StaleSubject
	cases     []scan.StaleCase
	deadlines []scan.DeadlineItem
	staleErr  error
	window    int
	staleDays int
}

func (f *fakeScanner) Ownerless(context.Context) ([]scan.StaleSubject, error) {
	return f.ownerless, nil
}

func (f *fakeScanner) Stale(_ context.Context, threshold int) ([]scan.StaleSubject, error) {
	f.staleDays = threshold
	return f.stale, f.staleErr
}

func (f *fakeScanner) StaleCases(context.Context, int) ([]scan.StaleCase, error) {
	return f.cases, nil
}

func (f *fakeScanner) Deadlines(_ context.Context, window int) ([]scan.DeadlineItem, error) {
	f.window = window
	return f.deadlines, nil
}

type fakeResolver struct {
	owners map[string]ownership.Candidate
	err    map[string]error
}

func (f *fakeResolver) Resolve(_ context.Context, subjectID string) (ownership.Candidate, bool, error) {
	if err := f.err[subjectID]; err != nil {
		return ownership.Candidate{}, false, err
	}
	c, ok := f.owners[subjectID]
	return c, ok, nil
}

type fakeAssigner struct {
	mu       sync.Mutex
	assigned map[string]models.AssignmentLogEntry
	taken    map[string]bool
}

func (f *fakeAssigner) AssignOwner(_ context.Context, e models.AssignmentLogEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taken[e.SubjectID] {
		return false, nil
	}
	if f.assigned == nil {
		f.assigned = make(map[string]models.AssignmentLogEntry)
	}
	f.assigned[e.SubjectID] = e
	return true, nil
}

// memAlerts behaves like the alerts table's pending-uniqueness index.
type memAlerts struct {
	mu      sync.Mutex
	pending map[string]models.Alert
	seq     int
}

func newMemAlerts() *memAlerts { return &memAlerts{pending: make(map[string]models.Alert)} }

func (m *memAlerts) PendingAlert(_ context.Context, kind models.AlertKind, s models.SubjectRef) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.pending[string(kind)+"|"+s.Key()]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *memAlerts) InsertAlert(_ context.Context, a *models.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(a.Kind) + "|" + a.Subject.Key()
	if _, ok := m.pending[k]; ok {
		return false, nil
	}
	m.seq++
	a.ID = fmt.Sprintf("a-%d", m.seq)
	a.Status = models.AlertPending
	m.pending[k] = *a
	return true, nil
}

func (m *memAlerts) all() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Alert, 0, len(m.pending))
	for _, a := range m.pending {
		out = append(out, a)
	}
	return out
}

type fakeSyncer struct {
	res   ingest.SyncResult
	err   error
	calls []string
}

func (f *fakeSyncer) SyncOne(_ context.Context, id string) (ingest.SyncResult, error) {
	f.calls = append(f.calls, "one:"+id)
	return f.res, f.err
}

func (f *fakeSyncer) SyncForOwner(_ context.Context, c ingest.OwnerCriteria) (ingest.SyncResult, error) {
	f.calls = append(f.calls, "owner:"+c.Text())
	return f.res, f.err
}

func (f *fakeSyncer) SyncParty(_ context.Context, text string) (ingest.SyncResult, error) {
	f.calls = append(f.calls, "party:"+text)
	return f.res, f.err
}

func monitor() config.MonitorConfig {
	return config.MonitorConfig{
		CriticalStaleDays:  60,
		StalledAlertDays:   15,
		StalledProcessDays: 30,
		DeadlineWindowDays: 3,
		Concurrency:        4,
	}
}

func subject(id string, days int) scan.StaleSubject {
	return scan.StaleSubject{
		Subject: models.Subject{ID: id, Title: "Matter " + id, Status: "active"},
		Days:    days,
	}
}

type failingScanner struct{ fakeScanner }

func (f *failingScanner) Ownerless(context.Context) ([]scan.StaleSubject, error) {
	return nil, errors.New("dial tcp: connection refused")
}

// --- auto-assignment ---

func TestAutoAssign_NoHistoryAlertsOnce(t *testing.T) {
	alerts := newMemAlerts()
	sc := &fakeScanner{ownerless: []scan.StaleSubject{subject("m-1", 75)}}
	o := New(Deps{
		Scanner:  sc,
		Resolver: &fakeResolver{},
		Assigner: &fakeAssigner{},
		Raiser:   alert.NewPolicy(alerts, nil, nil),
		Monitor:  monitor(),
	})

	sum, err := o.AutoAssign(context.Background(), AssignRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 0, sum.Assigned)
	assert.Equal(t, 1, sum.AlertsCreated)
	assert.Equal(t, 1, sum.Outcomes[OutcomeNoHistory])
	assert.False(t, sum.FinishedAt.IsZero(), "returned summary carries its finish time")

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertNoOwnerFound, got[0].Kind)
	assert.Equal(t, models.PriorityCritical, got[0].Priority)
	assert.Equal(t, models.SubjectRef{Type: models.SubjectMatter, ID: "m-1"}, got[0].Subject)

	sum, err = o.AutoAssign(context.Background(), AssignRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.AlertsCreated, "rerun must not duplicate the pending alert")
	assert.Len(t, alerts.all(), 1)
}

func TestAutoAssign_AssignsAndAlertsNewOwner(t *testing.T) {
	alerts := newMemAlerts()
	assigner := &fakeAssigner{}
	o := New(Deps{
		Scanner: &fakeScanner{ownerless: []scan.StaleSubject{
			subject("m-1", 90),
			subject("m-2", 10),
		}},
		Resolver: &fakeResolver{owners: map[string]ownership.Candidate{
			"m-1": {PersonID: "emp-1", ActorID: "u-1", Source: ownership.SourceInteraction},
			"m-2": {PersonID: "emp-2", ActorID: "u-2", Source: ownership.SourceActivity},
		}},
		Assigner: assigner,
		Raiser:   alert.NewPolicy(alerts, nil, nil),
		Monitor:  monitor(),
	})

	sum, err := o.AutoAssign(context.Background(), AssignRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Assigned)
	assert.Equal(t, 1, sum.AlertsCreated)
	assert.Empty(t, sum.Errors)

	assert.Equal(t, "emp-1", assigner.assigned["m-1"].OwnerID)
	assert.Equal(t, ownership.SourceInteraction, assigner.assigned["m-1"].Source)
	assert.Equal(t, "u-2", assigner.assigned["m-2"].ActorID)

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertNewlyAssignedCritical, got[0].Kind)
	assert.Equal(t, "emp-1", got[0].TargetPersonID)
}

func TestAutoAssign_Options(t *testing.T) {
	off := false
	alerts := newMemAlerts()
	o := New(Deps{
		Scanner: &fakeScanner{ownerless: []scan.StaleSubject{subject("m-1", 20), subject("m-2", 20)}},
		Resolver: &fakeResolver{owners: map[string]ownership.Candidate{
			"m-1": {PersonID: "emp-1"},
		}},
		Assigner: &fakeAssigner{},
		Raiser:   alert.NewPolicy(alerts, nil, nil),
		Monitor:  monitor(),
	})

	sum, err := o.AutoAssign(context.Background(), AssignRequest{EnableAlerts: &off})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.AlertsCreated)
	assert.Empty(t, alerts.all())

	sum, err = o.AutoAssign(context.Background(), AssignRequest{StaleThresholdDays: 15})
	require.NoError(t, err)
	// m-1 is assigned again by the fake; at 20 idle days it now crosses the
	// lowered threshold. m-2 has no history.
	assert.Equal(t, 2, sum.AlertsCreated)
}

func TestAutoAssign_ItemFailuresDoNotAbort(t *testing.T) {
	o := New(Deps{
		Scanner: &fakeScanner{ownerless: []scan.StaleSubject{subject("m-1", 5), subject("m-2", 5), subject("m-3", 5)}},
		Resolver: &fakeResolver{
			owners: map[string]ownership.Candidate{"m-2": {PersonID: "emp-2"}, "m-3": {PersonID: "emp-3"}},
			err:    map[string]error{"m-1": errors.New("db timeout")},
		},
		Assigner: &fakeAssigner{taken: map[string]bool{"m-3": true}},
		Raiser:   alert.NewPolicy(newMemAlerts(), nil, nil),
		Monitor:  monitor(),
	})

	sum, err := o.AutoAssign(context.Background(), AssignRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 1, sum.Outcomes[OutcomeError])
	assert.Equal(t, 1, sum.Outcomes[OutcomeAssigned])
	assert.Equal(t, 1, sum.Outcomes[OutcomeSkipped])
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "m-1: db timeout")
	require.False(t, sum.FinishedAt.IsZero())
	assert.False(t, sum.FinishedAt.Before(sum.StartedAt))
}

func TestAutoAssign_ListFailureStillFinishes(t *testing.T) {
	o := New(Deps{Scanner: &failingScanner{}, Monitor: monitor()})

	sum, err := o.AutoAssign(context.Background(), AssignRequest{})
	require.NoError(t, err)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "connection refused")
	assert.False(t, sum.FinishedAt.IsZero())
}

// --- alerts ---

func TestGenerateAlerts_AllPasses(t *testing.T) {
	alerts := newMemAlerts()
	deadline := time.Now().UTC()
	owned := subject("m-1", 50)
	owned.Subject.OwnerID = "emp-9"
	sc := &fakeScanner{
		stale: []scan.StaleSubject{owned},
		deadlines: []scan.DeadlineItem{
			{Event: models.ActivityEvent{CanonicalID: "00012345620218260100", Deadline: &deadline}, DaysRemaining: 1},
			{Event: models.ActivityEvent{CanonicalID: "00012345620218260100", Deadline: &deadline}, DaysRemaining: 3},
		},
		cases: []scan.StaleCase{
			{Case: models.CaseRecord{CanonicalID: "50000011220234036100"}, Days: 40},
		},
	}
	m := monitor()
	m.Concurrency = 1
	o := New(Deps{Scanner: sc, Raiser: alert.NewPolicy(alerts, nil, nil), Monitor: m})

	sum, err := o.GenerateAlerts(context.Background(), AlertRequest{DeadlineWindowDays: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, sc.window)
	assert.Equal(t, 15, sc.staleDays)
	assert.Equal(t, 3, sum.Processed, "deadlines are grouped per case")
	assert.Equal(t, 3, sum.AlertsCreated)
	assert.Zero(t, sum.Outcomes[OutcomeSkipped])
	assert.False(t, sum.FinishedAt.IsZero())

	byKind := map[models.AlertKind]models.Alert{}
	for _, a := range alerts.all() {
		byKind[a.Kind] = a
	}
	assert.Equal(t, "emp-9", byKind[models.AlertStalled].TargetPersonID)
	assert.Equal(t, models.PriorityHigh, byKind[models.AlertStalled].Priority)
	assert.Equal(t, "Deadline in 1 day: 0001234-56.2021.8.26.0100", byKind[models.AlertDeadlineApproaching].Title)
	assert.Equal(t, models.SubjectCase, byKind[models.AlertStalledProcess].Subject.Type)
}

func TestGenerateAlerts_MostUrgentDeadlineWins(t *testing.T) {
	deadline := time.Now().UTC()
	item := func(id string, days int) scan.DeadlineItem {
		return scan.DeadlineItem{Event: models.ActivityEvent{CanonicalID: id, Deadline: &deadline}, DaysRemaining: days}
	}
	// Later deadline listed first; with several workers either item could
	// reach the policy first if they were not grouped.
	sc := &fakeScanner{deadlines: []scan.DeadlineItem{
		item("00012345620218260100", 3),
		item("50000011220234036100", 2),
		item("00012345620218260100", 1),
	}}

	for i := 0; i < 20; i++ {
		alerts := newMemAlerts()
		o := New(Deps{Scanner: sc, Raiser: alert.NewPolicy(alerts, nil, nil), Monitor: monitor()})

		sum, err := o.GenerateAlerts(context.Background(), AlertRequest{})
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Processed)
		assert.Equal(t, 2, sum.AlertsCreated)

		titles := map[string]string{}
		for _, a := range alerts.all() {
			titles[a.Subject.ID] = a.Title
		}
		require.Equal(t, "Deadline in 1 day: 0001234-56.2021.8.26.0100", titles["00012345620218260100"])
		require.Equal(t, "Deadline in 2 days: 5000001-12.2023.4.03.6100", titles["50000011220234036100"])
	}
}

func TestMostUrgentPerCase(t *testing.T) {
	items := []scan.DeadlineItem{
		{Event: models.ActivityEvent{CanonicalID: "a"}, DaysRemaining: 4},
		{Event: models.ActivityEvent{CanonicalID: "b"}, DaysRemaining: 0},
		{Event: models.ActivityEvent{CanonicalID: "a"}, DaysRemaining: 2},
		{Event: models.ActivityEvent{CanonicalID: "a"}, DaysRemaining: 3},
	}
	got := mostUrgentPerCase(items)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Event.CanonicalID)
	assert.Equal(t, 2, got[0].DaysRemaining)
	assert.Equal(t, "b", got[1].Event.CanonicalID)
	assert.Empty(t, mostUrgentPerCase(nil))
}

func TestGenerateAlerts_PassesAreIndependent(t *testing.T) {
	sc := &fakeScanner{
		staleErr: errors.New("relation does not exist"),
		cases:    []scan.StaleCase{{Case: models.CaseRecord{CanonicalID: "1"}, Days: 31}},
	}
	o := New(Deps{Scanner: sc, Raiser: alert.NewPolicy(newMemAlerts(), nil, nil), Monitor: monitor()})

	sum, err := o.GenerateAlerts(context.Background(), AlertRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, sc.window, "window defaults to configuration")
	assert.Equal(t, 1, sum.AlertsCreated)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "stalled: relation does not exist")
}

// --- sync ---

func TestSync(t *testing.T) {
	rec := models.CaseRecord{CanonicalID: "00012345620218260100"}
	ingestErr := &ingest.IngestionError{Identifier: "x", Op: "fetch", Err: errors.New("all courts failed")}

	tests := []struct {
		name        string
		syncer      *fakeSyncer
		req         SyncRequest
		wantOutcome string
		wantRecords int
		wantErrors  int
		wantCall    string
	}{
		{
			name:        "identifier found",
			syncer:      &fakeSyncer{res: ingest.SyncResult{Records: []models.CaseRecord{rec}}},
			req:         SyncRequest{Identifier: "0001234-56.2021.8.26.0100", Party: "ignored"},
			wantOutcome: OutcomeFound,
			wantRecords: 1,
			wantCall:    "one:0001234-56.2021.8.26.0100",
		},
		{
			name:        "not found",
			syncer:      &fakeSyncer{err: ingest.ErrNotFound},
			req:         SyncRequest{Identifier: "123"},
			wantOutcome: OutcomeNotFound,
			wantCall:    "one:123",
		},
		{
			name:        "upstream failure",
			syncer:      &fakeSyncer{err: ingestErr},
			req:         SyncRequest{Party: "ACME Ltda"},
			wantOutcome: OutcomeError,
			wantErrors:  1,
			wantCall:    "party:ACME Ltda",
		},
		{
			name:        "owner criteria",
			syncer:      &fakeSyncer{res: ingest.SyncResult{Records: []models.CaseRecord{rec, rec}}},
			req:         SyncRequest{OwnerCriteria: &ingest.OwnerCriteria{Document: "12345678000199"}},
			wantOutcome: OutcomeFound,
			wantRecords: 2,
			wantCall:    "owner:12345678000199",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(Deps{Syncer: tt.syncer, Monitor: monitor()})
			out, err := o.Sync(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, out.Outcome)
			assert.Len(t, out.Records, tt.wantRecords)
			assert.Len(t, out.Errors, tt.wantErrors)
			assert.Equal(t, []string{tt.wantCall}, tt.syncer.calls)
			assert.NotNil(t, out.Records)
			assert.Equal(t, FlowSync, out.Flow)
			assert.Equal(t, max(tt.wantRecords, 1), out.Processed)
			assert.False(t, out.FinishedAt.IsZero())
		})
	}
}

func TestSync_ReportsCourtWarnings(t *testing.T) {
	rec := models.CaseRecord{CanonicalID: "00012345620218260100"}
	syncer := &fakeSyncer{res: ingest.SyncResult{
		Records: []models.CaseRecord{rec},
		Warnings: []error{
			datajudWarning("tjsp", "status 503"),
			datajudWarning("tjrj", "context deadline exceeded"),
		},
	}}
	o := New(Deps{Syncer: syncer, Monitor: monitor()})

	out, err := o.Sync(context.Background(), SyncRequest{Identifier: "0001234-56.2021.8.26.0100"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, out.Outcome)
	require.Len(t, out.Records, 1)
	require.Len(t, out.Errors, 2)
	assert.Contains(t, out.Errors[0], "tjsp")
	assert.Contains(t, out.Errors[1], "tjrj")
	require.Len(t, out.Samples, 1)
	assert.Equal(t, Sample{Item: rec.CanonicalID, Outcome: OutcomeFound}, out.Samples[0])
}

func TestSync_NotFoundKeepsWarnings(t *testing.T) {
	syncer := &fakeSyncer{
		res: ingest.SyncResult{Warnings: []error{datajudWarning("trf3", "status 500")}},
		err: ingest.ErrNotFound,
	}
	o := New(Deps{Syncer: syncer, Monitor: monitor()})

	out, err := o.Sync(context.Background(), SyncRequest{Identifier: "5000001-12.2023.4.03.6100"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Outcome)
	assert.Empty(t, out.Records)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "trf3")
}

func datajudWarning(court, msg string) error {
	return fmt.Errorf("court %s: %s", court, msg)
}

func TestSync_EmptyRequest(t *testing.T) {
	o := New(Deps{Syncer: &fakeSyncer{}})
	_, err := o.Sync(context.Background(), SyncRequest{OwnerCriteria: &ingest.OwnerCriteria{}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSync_NotConfigured(t *testing.T) {
	o := New(Deps{SyncErr: errors.New("DATAJUD_API_KEY is not set")})
	_, err := o.Sync(context.Background(), SyncRequest{Identifier: "1"})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "DATAJUD_API_KEY")
}

func TestRunPool_BoundsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	items := make([]int, 20)
	sum := newSummary("test")

	runPool(context.Background(), 3, items, sum, func(context.Context, int) Result {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return Result{Outcome: OutcomeSkipped}
	})

	assert.LessOrEqual(t, peak, 3)
	assert.Equal(t, 20, sum.Processed)
	assert.Len(t, sum.Samples, 20)
}
