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

// Package datajud is a client for the public judicial-records search API.
// Each court system exposes its own Elasticsearch index; the client routes
// a query to one or more of them and tolerates any of them being down.
package datajud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/lexdesk/procmon/internal/cnj"
	"github.com/lexdesk/procmon/internal/metrics"
)

// ErrMissingCredentials is returned when the client is built without an
// API key. It is a configuration error and must abort the invocation.
var ErrMissingCredentials = errors.New("datajud: API key is not configured")

const (
	// maxPageSize is the upstream limit on a single _search page.
	maxPageSize = 10000
	// partyPages bounds how far a party search pages through one court.
	partyPages = 3
)

// Criteria selects what a search matches: an exact process number or a
// free-text party match. Exactly one field is set.
type Criteria struct {
	Number string
	Party  string
}

// ByNumber builds exact-identifier criteria from a canonical number.
func ByNumber(canonical string) Criteria { return Criteria{Number: canonical} }

// ByParty builds free-text party criteria.
func ByParty(text string) Criteria { return Criteria{Party: strings.TrimSpace(text)} }

// Page is one page of results from one court system. Next is the cursor
// for the following page and is empty when Done.
type Page struct {
	Hits []Hit
	Next string
	Done bool
}

// CourtError records a court system that failed during a lookup.
type CourtError struct {
	Court string
	Err   error
}

func (e CourtError) Error() string { return fmt.Sprintf("%s: %v", e.Court, e.Err) }

func (e CourtError) Unwrap() error { return e.Err }

// Lookup is the outcome of a multi-court search.
type Lookup struct {
	Hits    []Hit
	Queried []string
	Errors  []CourtError
}

// Found reports whether any court returned a hit.
func (l Lookup) Found() bool { return len(l.Hits) > 0 }

// AllFailed reports whether every queried court errored, which means the
// absence of hits says nothing about the process.
func (l Lookup) AllFailed() bool {
	return len(l.Queried) > 0 && len(l.Errors) == len(l.Queried)
}

// MostRecent returns the most recently filed hit.
func (l Lookup) MostRecent() (Hit, bool) {
	if len(l.Hits) == 0 {
		return Hit{}, false
	}
	return l.Hits[0], true
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	PageSize       int
	MaxSystems     int
	FallbackCourts []string

	// HTTPClient is the base transport; the API key is layered on top.
	HTTPClient *http.Client
}

// Client queries the judicial-records API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	pageSize   int
	maxSystems int
	fallbacks  []string
}

// NewClient builds a client that sends the API key on every request.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingCredentials
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.APIKey,
		TokenType:   "APIKey",
	})

	c := &Client{
		httpClient: oauth2.NewClient(ctx, src),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		pageSize:   opts.PageSize,
		maxSystems: opts.MaxSystems,
		fallbacks:  opts.FallbackCourts,
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.pageSize <= 0 || c.pageSize > maxPageSize {
		c.pageSize = 100
	}
	if c.maxSystems <= 0 {
		c.maxSystems = 4
	}
	return c, nil
}

// searchRequest is the Elasticsearch body sent to _search.
type searchRequest struct {
	Size        int              `json:"size"`
	Query       map[string]any   `json:"query"`
	Sort        []map[string]any `json:"sort"`
	SearchAfter json.RawMessage  `json:"search_after,omitempty"`
}

// Fetch retrieves one page from one court system. The call runs under the
// client's per-call timeout regardless of ctx's own deadline.
func (c *Client) Fetch(ctx context.Context, court string, criteria Criteria, cursor string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	size := c.pageSize
	if criteria.Number != "" {
		size = 1
	}

	body := searchRequest{
		Size:  size,
		Query: buildQuery(criteria),
		Sort: []map[string]any{
			{"dataAjuizamento": map[string]string{"order": "desc"}},
		},
	}
	if cursor != "" {
		body.SearchAfter = json.RawMessage(cursor)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/api_publica_%s/_search", c.baseURL, court)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", court, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("judicial-records search error",
			"court", court,
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return nil, fmt.Errorf("search %s returned HTTP %d", court, resp.StatusCode)
	}

	hits, err := parseSearch(resp.Body, court)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", court, err)
	}

	page := &Page{Done: true}
	if n := len(hits); n > 0 && n >= size && len(hits[n-1].sortKey) > 0 {
		page.Next = string(hits[n-1].sortKey)
		page.Done = false
	}

	if criteria.Party != "" {
		hits = filterParty(hits, criteria.Party)
	}
	page.Hits = hits
	return page, nil
}

// buildQuery translates criteria into an Elasticsearch query clause.
func buildQuery(c Criteria) map[string]any {
	if c.Number != "" {
		return map[string]any{
			"match": map[string]string{"numeroProcesso": c.Number},
		}
	}
	// Upstream has no structured party index; fall back to a phrase match
	// across all fields and filter the hits locally.
	return map[string]any{
		"multi_match": map[string]any{
			"query":  c.Party,
			"type":   "phrase",
			"fields": []string{"*"},
		},
	}
}

// filterParty keeps hits whose raw payload contains text, case-insensitively.
func filterParty(hits []Hit, text string) []Hit {
	needle := strings.ToLower(text)
	out := hits[:0]
	for _, h := range hits {
		if strings.Contains(strings.ToLower(string(h.Raw)), needle) {
			out = append(out, h)
		}
	}
	return out
}

// Candidates returns the ordered court systems to try for a number: the
// resolved court (or the default state court for an unresolved number)
// first, then the fallback list, without duplicates and bounded by
// MaxSystems.
func (c *Client) Candidates(n cnj.Number) []string {
	court, _ := n.CourtOrDefault()
	ordered := append([]string{court}, c.fallbacks...)
	return c.bound(ordered)
}

func (c *Client) bound(courts []string) []string {
	seen := make(map[string]bool, len(courts))
	out := make([]string, 0, c.maxSystems)
	for _, court := range courts {
		court = strings.ToLower(strings.TrimSpace(court))
		if court == "" || seen[court] {
			continue
		}
		seen[court] = true
		out = append(out, court)
		if len(out) == c.maxSystems {
			break
		}
	}
	return out
}

// FindByNumber looks a process up by canonical number. Courts are tried in
// candidate order; the first court with a hit wins and the rest are not
// queried. Failing courts are logged and skipped.
func (c *Client) FindByNumber(ctx context.Context, n cnj.Number) Lookup {
	var l Lookup
	for _, court := range c.Candidates(n) {
		l.Queried = append(l.Queried, court)

		page, err := c.Fetch(ctx, court, ByNumber(n.Canonical), "")
		if err != nil {
			c.recordFailure(&l, court, err)
			continue
		}
		if len(page.Hits) == 0 {
			metrics.UpstreamRequests.WithLabelValues(court, "miss").Inc()
			continue
		}

		metrics.UpstreamRequests.WithLabelValues(court, "hit").Inc()
		l.Hits = page.Hits[:1]
		return l
	}
	return l
}

// SearchParty runs a free-text party search over the fallback courts,
// aggregates every hit and orders them most recently filed first.
func (c *Client) SearchParty(ctx context.Context, text string) Lookup {
	var l Lookup
	criteria := ByParty(text)
	if criteria.Party == "" {
		return l
	}

	for _, court := range c.bound(c.fallbacks) {
		l.Queried = append(l.Queried, court)

		found := 0
		cursor := ""
		for page := 0; page < partyPages; page++ {
			p, err := c.Fetch(ctx, court, criteria, cursor)
			if err != nil {
				c.recordFailure(&l, court, err)
				break
			}
			found += len(p.Hits)
			l.Hits = append(l.Hits, p.Hits...)
			if p.Done {
				break
			}
			cursor = p.Next
		}

		result := "miss"
		if found > 0 {
			result = "hit"
		}
		metrics.UpstreamRequests.WithLabelValues(court, result).Inc()
	}

	sortByFiling(l.Hits)
	return l
}

func (c *Client) recordFailure(l *Lookup, court string, err error) {
	result := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		result = "timeout"
	}
	metrics.UpstreamRequests.WithLabelValues(court, result).Inc()

	slog.Warn("court system unavailable, trying next",
		"court", court,
		"result", result,
		"error", err,
	)
	l.Errors = append(l.Errors, CourtError{Court: court, Err: err})
}

// sortByFiling orders hits newest filing first; hits without a filing
// date sink to the end.
func sortByFiling(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i].Process.FiledTime(), hits[j].Process.FiledTime()
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
