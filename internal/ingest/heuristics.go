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
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lexdesk/procmon/internal/models"
)

// foldPool holds transformer chains that decompose, case-fold and strip
// combining marks, so "Intimação" and "INTIMACAO" compare equal.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFD,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		)
	},
}

// fold returns the accent-free, case-folded form of s.
func fold(s string) string {
	if s == "" {
		return ""
	}
	tr := foldPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, strings.ToValidUTF8(s, ""))
	tr.Reset()
	foldPool.Put(tr)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// urgentKeywords mark activity that usually demands action from the firm.
// Matched against folded text.
var urgentKeywords = []string{
	"urgente",
	"liminar",
	"tutela",
	"intimacao",
	"citacao",
	"prazo",
	"audiencia",
	"sentenca",
	"penhora",
	"bloqueio",
}

// isUrgent reports whether the event text contains an urgency keyword.
func isUrgent(text string) bool {
	folded := fold(text)
	for _, kw := range urgentKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

var deadlinePattern = regexp.MustCompile(`prazo\s+(?:de\s+)?(\d{1,3})\s+dias?`)

// deadlineDays extracts N from "prazo de N dias" in folded text.
func deadlineDays(text string) (int, bool) {
	m := deadlinePattern.FindStringSubmatch(fold(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// deadlineFor derives an event's deadline from its description or, failing
// that, from a complement that states a term in days.
func deadlineFor(occurred time.Time, description string, complements []models.Complement) *time.Time {
	days, ok := deadlineDays(description)
	if !ok {
		for _, c := range complements {
			if days, ok = complementDays(c); ok {
				break
			}
		}
	}
	if !ok {
		return nil
	}
	d := startOfDay(occurred).AddDate(0, 0, days)
	return &d
}

// complementDays reads a term from a complement such as
// {name: "prazo", value: "15"} or {description: "prazo de 15 dias"}.
func complementDays(c models.Complement) (int, bool) {
	if days, ok := deadlineDays(c.Description + " " + c.Value); ok {
		return days, true
	}
	if !strings.Contains(fold(c.Name), "prazo") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(c.Value))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
