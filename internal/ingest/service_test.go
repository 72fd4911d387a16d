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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/procmon/internal/cnj"
	"github.com/lexdesk/procmon/internal/datajud"
	"github.com/lexdesk/procmon/internal/models"
)

// --- Mocks ---

type fakeRecords struct {
	byNumber datajud.Lookup
	party    datajud.Lookup
	calls    int
}

func (f *fakeRecords) FindByNumber(_ context.Context, _ cnj.Number) datajud.Lookup {
	f.calls++
	return f.byNumber
}

func (f *fakeRecords) SearchParty(_ context.Context, _ string) datajud.Lookup {
	f.calls++
	return f.party
}

// memStore mimics the datastore's upsert and replace semantics.
type memStore struct {
	mu       sync.Mutex
	cases    map[string]models.CaseRecord
	events   map[string][]models.ActivityEvent
	replaces int
	failOn   string
}

func newMemStore() *memStore {
	return &memStore{
		cases:  make(map[string]models.CaseRecord),
		events: make(map[string][]models.ActivityEvent),
	}
}

func (m *memStore) UpsertCase(_ context.Context, c *models.CaseRecord) (*models.CaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "upsert" {
		return nil, errors.New("connection refused")
	}
	out := *c
	if prev, ok := m.cases[c.CanonicalID]; ok {
		out.CreatedAt = prev.CreatedAt
	} else {
		out.CreatedAt = time.Now()
	}
	out.UpdatedAt = time.Now()
	m.cases[c.CanonicalID] = out
	return &out, nil
}

func (m *memStore) ReplaceEvents(_ context.Context, id string, events []models.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "events" {
		return errors.New("deadlock detected")
	}
	m.replaces++
	m.events[id] = append([]models.ActivityEvent(nil), events...)
	return nil
}

// --- Helpers ---

func hit(t *testing.T, court, source string) datajud.Hit {
	t.Helper()
	var p datajud.Process
	require.NoError(t, json.Unmarshal([]byte(source), &p))
	return datajud.Hit{Court: court, Process: p, Raw: json.RawMessage(source)}
}

const fullSource = `{
	"numeroProcesso": "00012345620218260100",
	"tribunal": "TJSP",
	"grau": "G1",
	"nivelSigilo": 0,
	"dataAjuizamento": "2021-03-01T00:00:00.000Z",
	"classe": {"codigo": 7, "nome": "Procedimento Comum Cível"},
	"assuntos": [{"codigo": 7780, "nome": "Dano Moral"}, {"codigo": 7779, "nome": "Dano Material"}],
	"orgaoJulgador": {"codigo": 1, "nome": "1ª Vara Cível"},
	"movimentos": [
		{"codigo": 26, "nome": "Distribuição", "dataHora": "2021-03-01T10:00:00.000Z"},
		{"codigo": 12265, "nome": "Expedição de Intimação - prazo de 15 dias", "dataHora": "2021-06-10T12:00:00.000Z"},
		{"codigo": 85, "nome": "Petição", "dataHora": "2021-04-02T09:00:00.000Z"}
	]
}`

// --- Tests ---

func TestSyncOne_StoresRecordAndEvents(t *testing.T) {
	records := &fakeRecords{byNumber: datajud.Lookup{
		Hits:    []datajud.Hit{hit(t, "tjsp", fullSource)},
		Queried: []string{"tjsp"},
	}}
	store := newMemStore()
	svc := NewService(records, store, 50, 20)

	res, err := svc.SyncOne(context.Background(), "0001234-56.2021.8.26.0100")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Warnings)
	rec := res.Records[0]

	assert.Equal(t, "00012345620218260100", rec.CanonicalID)
	assert.Equal(t, "tjsp", rec.CourtSystem)
	assert.Equal(t, "8", rec.JusticeSegment)
	assert.Equal(t, "26", rec.CourtCode)
	assert.Equal(t, models.InstanceFirst, rec.InstanceTier)
	assert.Equal(t, "Procedimento Comum Cível", rec.ClassName)
	assert.Equal(t, "Dano Moral; Dano Material", rec.SubjectMatter)
	assert.Equal(t, "1ª Vara Cível", rec.OriginUnit)
	require.NotNil(t, rec.FilingDate)
	assert.Equal(t, 2021, rec.FilingDate.Year())
	assert.NotEmpty(t, rec.RawPayload)

	events := store.events[rec.CanonicalID]
	require.Len(t, events, 3)
	assert.Equal(t, 12265, events[0].Code, "events must be newest first")
	assert.Equal(t, "Expedição de Intimação - prazo de 15 dias", rec.LastActivity)
	assert.True(t, events[0].Urgent)
	require.NotNil(t, events[0].Deadline)
	assert.Equal(t, time.Date(2021, 6, 25, 0, 0, 0, 0, time.UTC), *events[0].Deadline)
	assert.False(t, events[1].Urgent)
	assert.Nil(t, events[1].Deadline)
}

// TestSyncOne_Idempotent verifies that two syncs with the same upstream
// data yield one record and replace the events both times.
func TestSyncOne_Idempotent(t *testing.T) {
	records := &fakeRecords{byNumber: datajud.Lookup{
		Hits:    []datajud.Hit{hit(t, "tjsp", fullSource)},
		Queried: []string{"tjsp"},
	}}
	store := newMemStore()
	svc := NewService(records, store, 50, 20)

	_, err := svc.SyncOne(context.Background(), "00012345620218260100")
	require.NoError(t, err)
	first := append([]models.ActivityEvent(nil), store.events["00012345620218260100"]...)

	_, err = svc.SyncOne(context.Background(), "0001234-56.2021.8.26.0100")
	require.NoError(t, err)

	assert.Len(t, store.cases, 1)
	assert.Equal(t, 2, store.replaces)
	assert.Equal(t, first, store.events["00012345620218260100"])
}

func TestSyncOne_PartialPayload(t *testing.T) {
	records := &fakeRecords{byNumber: datajud.Lookup{
		Hits:    []datajud.Hit{hit(t, "tjrj", `{"numeroProcesso": "00000011220198190001"}`)},
		Queried: []string{"tjrj"},
	}}
	store := newMemStore()
	svc := NewService(records, store, 50, 20)

	res, err := svc.SyncOne(context.Background(), "00000011220198190001")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Nil(t, rec.FilingDate)
	assert.Nil(t, rec.LastActivityAt)
	assert.Empty(t, rec.ClassName)
	assert.Empty(t, store.events[rec.CanonicalID])
}

func TestSyncOne_TruncatesEvents(t *testing.T) {
	var movements []map[string]interface{}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 80; i++ {
		movements = append(movements, map[string]interface{}{
			"codigo":   i,
			"nome":     fmt.Sprintf("Movimento %d", i),
			"dataHora": base.AddDate(0, 0, i).Format(time.RFC3339),
		})
	}
	src, _ := json.Marshal(map[string]interface{}{
		"numeroProcesso": "00012345620218260100",
		"movimentos":     movements,
	})

	records := &fakeRecords{byNumber: datajud.Lookup{
		Hits:    []datajud.Hit{hit(t, "tjsp", string(src))},
		Queried: []string{"tjsp"},
	}}
	store := newMemStore()
	svc := NewService(records, store, 50, 20)

	_, err := svc.SyncOne(context.Background(), "00012345620218260100")
	require.NoError(t, err)

	events := store.events["00012345620218260100"]
	require.Len(t, events, 50)
	assert.Equal(t, 79, events[0].Code)
	assert.Equal(t, 30, events[49].Code)
}

func TestSyncOne_Errors(t *testing.T) {
	tests := []struct {
		name    string
		lookup  datajud.Lookup
		failOn  string
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "not found",
			lookup: datajud.Lookup{Queried: []string{"tjsp", "tjrj"}, Errors: []datajud.CourtError{{Court: "tjrj", Err: errors.New("503")}}},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name: "all courts failed",
			lookup: datajud.Lookup{
				Queried: []string{"tjsp"},
				Errors:  []datajud.CourtError{{Court: "tjsp", Err: context.DeadlineExceeded}},
			},
			wantErr: func(t *testing.T, err error) {
				var ie *IngestionError
				require.ErrorAs(t, err, &ie)
				assert.Equal(t, "fetch", ie.Op)
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			},
		},
		{
			name:   "datastore failure",
			failOn: "events",
			wantErr: func(t *testing.T, err error) {
				var ie *IngestionError
				require.ErrorAs(t, err, &ie)
				assert.Equal(t, "replace events", ie.Op)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := tt.lookup
			if tt.failOn != "" {
				lookup = datajud.Lookup{Hits: []datajud.Hit{hit(t, "tjsp", fullSource)}, Queried: []string{"tjsp"}}
			}
			store := newMemStore()
			store.failOn = tt.failOn
			svc := NewService(&fakeRecords{byNumber: lookup}, store, 50, 20)

			_, err := svc.SyncOne(context.Background(), "00012345620218260100")
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestSyncOne_EmptyIdentifier(t *testing.T) {
	records := &fakeRecords{}
	svc := NewService(records, newMemStore(), 50, 20)

	_, err := svc.SyncOne(context.Background(), "n/a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, records.calls, "no upstream call without digits")
}

func TestSyncForOwner_BoundsResults(t *testing.T) {
	var hits []datajud.Hit
	for i := 1; i <= 5; i++ {
		hits = append(hits, hit(t, "tjsp", fmt.Sprintf(`{"numeroProcesso": "%07d0020218260100"}`, i)))
	}
	store := newMemStore()
	svc := NewService(&fakeRecords{party: datajud.Lookup{Hits: hits, Queried: []string{"tjsp"}}}, store, 50, 3)

	got, err := svc.SyncForOwner(context.Background(), OwnerCriteria{Name: "Maria", Document: "123.456.789-00"})
	require.NoError(t, err)
	assert.Len(t, got.Records, 3)
	assert.Len(t, store.cases, 3)
}

func TestSyncParty_MostRecent(t *testing.T) {
	lookup := datajud.Lookup{
		Hits: []datajud.Hit{
			hit(t, "tjrj", `{"numeroProcesso": "00000022020228190001", "dataAjuizamento": "2022-01-01"}`),
			hit(t, "tjsp", `{"numeroProcesso": "00000012020198260001", "dataAjuizamento": "2019-01-01"}`),
		},
		Queried: []string{"tjsp", "tjrj"},
	}
	store := newMemStore()
	svc := NewService(&fakeRecords{party: lookup}, store, 50, 20)

	res, err := svc.SyncParty(context.Background(), "ACME")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "00000022020228190001", res.Records[0].CanonicalID)
	assert.Len(t, store.cases, 1)
}

// TestSyncOne_KeepsCourtWarnings verifies a court that failed before
// another one answered is reported alongside the stored record.
func TestSyncOne_KeepsCourtWarnings(t *testing.T) {
	records := &fakeRecords{byNumber: datajud.Lookup{
		Hits:    []datajud.Hit{hit(t, "tjrj", fullSource)},
		Queried: []string{"tjsp", "tjrj"},
		Errors:  []datajud.CourtError{{Court: "tjsp", Err: errors.New("status 503")}},
	}}
	svc := NewService(records, newMemStore(), 50, 20)

	res, err := svc.SyncOne(context.Background(), "00012345620218260100")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Error(), "tjsp: status 503")
}

// TestSyncOne_NotFoundKeepsWarnings verifies a miss still reports the
// courts that could not be asked.
func TestSyncOne_NotFoundKeepsWarnings(t *testing.T) {
	records := &fakeRecords{byNumber: datajud.Lookup{
		Queried: []string{"tjsp", "tjrj"},
		Errors:  []datajud.CourtError{{Court: "tjrj", Err: context.DeadlineExceeded}},
	}}
	svc := NewService(records, newMemStore(), 50, 20)

	res, err := svc.SyncOne(context.Background(), "00012345620218260100")
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], context.DeadlineExceeded)
}

// TestSyncForOwner_PartialFailure verifies cases that cannot be stored
// become warnings while the rest are kept.
func TestSyncForOwner_PartialFailure(t *testing.T) {
	hits := []datajud.Hit{
		hit(t, "tjsp", `{"numeroProcesso": "00000010020218260100"}`),
		hit(t, "tjsp", `{"tribunal": "TJSP"}`),
	}
	svc := NewService(&fakeRecords{party: datajud.Lookup{Hits: hits, Queried: []string{"tjsp"}}}, newMemStore(), 50, 20)

	res, err := svc.SyncForOwner(context.Background(), OwnerCriteria{Name: "Maria"})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	require.Len(t, res.Warnings, 1)
	var ie *IngestionError
	require.ErrorAs(t, res.Warnings[0], &ie)
	assert.Equal(t, "transform", ie.Op)
}

// TestToRecord_UnresolvedDefaults verifies a record whose number cannot be
// routed and that names no court or grade lands on the default court at
// first instance.
func TestToRecord_UnresolvedDefaults(t *testing.T) {
	rec, _ := toRecord(hit(t, "", `{"numeroProcesso": "12345"}`), cnj.Number{}, 50)
	assert.Equal(t, cnj.DefaultCourt, rec.CourtSystem)
	assert.Equal(t, models.InstanceFirst, rec.InstanceTier)

	rec, _ = toRecord(hit(t, "", `{"numeroProcesso": "12345", "grau": "G2"}`), cnj.Number{}, 50)
	assert.Equal(t, models.InstanceSecond, rec.InstanceTier)
}

func TestOwnerCriteria_Text(t *testing.T) {
	assert.Equal(t, "123", OwnerCriteria{Name: "Ana", Document: " 123 "}.Text())
	assert.Equal(t, "Ana", OwnerCriteria{Name: "Ana"}.Text())
	assert.Empty(t, OwnerCriteria{}.Text())
}
