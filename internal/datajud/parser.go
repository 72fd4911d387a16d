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

package datajud

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Process is the subset of an upstream case payload the engine uses. Every
// field is optional upstream; absent values stay at their zero value.
type Process struct {
	Number    string `json:"numeroProcesso"`
	Court     string `json:"tribunal"`
	Grade     string `json:"grau"`
	Secrecy   int    `json:"nivelSigilo"`
	FiledAt   string `json:"dataAjuizamento"`
	UpdatedAt string `json:"dataHoraUltimaAtualizacao"`
	Class     *struct {
		Code int    `json:"codigo"`
		Name string `json:"nome"`
	} `json:"classe"`
	Subjects []struct {
		Code int    `json:"codigo"`
		Name string `json:"nome"`
	} `json:"assuntos"`
	Unit *struct {
		Code int    `json:"codigo"`
		Name string `json:"nome"`
	} `json:"orgaoJulgador"`
	Movements []Movement `json:"movimentos"`
}

// Movement is one entry of the upstream activity list.
type Movement struct {
	Code        int    `json:"codigo"`
	Name        string `json:"nome"`
	OccurredAt  string `json:"dataHora"`
	Complements []struct {
		Code        int             `json:"codigo"`
		Name        string          `json:"nome"`
		Value       json.RawMessage `json:"valor"`
		Description string          `json:"descricao"`
	} `json:"complementosTabelados"`
}

// Hit is a single search result. Raw keeps the untouched _source for audit.
type Hit struct {
	Court   string
	Process Process
	Raw     json.RawMessage
	sortKey json.RawMessage
}

// searchResponse is the Elasticsearch envelope returned by _search.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
			Sort   json.RawMessage `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// parseSearch decodes a _search response body into hits for court.
func parseSearch(body io.Reader, court string) ([]Hit, error) {
	var resp searchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		if len(h.Source) == 0 {
			continue
		}
		var p Process
		if err := json.Unmarshal(h.Source, &p); err != nil {
			return nil, fmt.Errorf("decode process source: %w", err)
		}
		hits = append(hits, Hit{
			Court:   court,
			Process: p,
			Raw:     h.Source,
			sortKey: h.Sort,
		})
	}
	return hits, nil
}

// upstreamTimeLayouts are the timestamp shapes seen across court systems.
var upstreamTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"20060102150405",
	"2006-01-02",
}

// ParseTime parses an upstream timestamp, returning nil for empty or
// unrecognised values.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range upstreamTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ComplementValue renders a tabled complement value, which upstream sends
// as either a number or a string.
func ComplementValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// FiledTime returns the parsed filing date.
func (p Process) FiledTime() *time.Time { return ParseTime(p.FiledAt) }
