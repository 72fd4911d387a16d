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

// Package cnj parses judicial process numbers in the national 20-digit
// layout and resolves the court system that owns them.
//
// Layout: NNNNNNN-DD.AAAA.J.TR.OOOO
//
//	NNNNNNN  sequential number
//	DD       check digits (ISO 7064 mod 97-10)
//	AAAA     filing year
//	J        justice segment
//	TR       court code within the segment
//	OOOO     originating unit
package cnj

import (
	"fmt"
	"strings"

	"github.com/lexdesk/procmon/internal/models"
)

// Digits is the length of a canonical process number.
const Digits = 20

// DefaultCourt is used when a caller needs a concrete court but the number
// could not be resolved: the primary state court system, first instance.
const DefaultCourt = "tjsp"

// Justice segments we know how to route.
const (
	SegmentSupreme  = "2"
	SegmentSuperior = "3"
	SegmentFederal  = "4"
	SegmentLabor    = "5"
	SegmentState    = "8"
)

// originTribunal marks a process that originates in the court itself
// rather than in a first-instance unit.
const originTribunal = "0000"

// Number is the parsed form of a process identifier. An unresolved Number
// still carries the digits that were found, but CourtSystem, Court and
// Instance are empty.
type Number struct {
	Canonical   string
	Sequence    string
	CheckDigits string
	Year        string
	Justice     string
	Court       string
	Origin      string
	CourtSystem string
	Instance    string
	Resolved    bool
}

var stateCourts = [...]string{
	"tjac", "tjal", "tjap", "tjam", "tjba", "tjce", "tjdft", "tjes", "tjgo",
	"tjma", "tjmt", "tjms", "tjmg", "tjpa", "tjpb", "tjpr", "tjpe", "tjpi",
	"tjrj", "tjrn", "tjrs", "tjro", "tjrr", "tjsc", "tjse", "tjsp", "tjto",
}

const (
	federalRegions = 6
	laborRegions   = 24
)

// Normalize strips every non-digit character from raw and parses the
// remainder. It never fails: input that does not have exactly 20 digits,
// or whose segment/court pair is unknown, yields an unresolved Number.
func Normalize(raw string) Number {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	n := Number{Canonical: digits}
	if len(digits) != Digits {
		return n
	}

	n.Sequence = digits[0:7]
	n.CheckDigits = digits[7:9]
	n.Year = digits[9:13]
	n.Justice = digits[13:14]
	n.Origin = digits[16:20]

	court := digits[14:16]
	system, ok := courtSystem(n.Justice, court)
	if !ok {
		return n
	}

	n.Court = court
	n.CourtSystem = system
	n.Instance = models.InstanceFirst
	if n.Origin == originTribunal {
		n.Instance = models.InstanceSecond
	}
	n.Resolved = true
	return n
}

// courtSystem maps a justice segment and court code to a court alias.
func courtSystem(justice, court string) (string, bool) {
	code := (int(court[0]-'0') * 10) + int(court[1]-'0')

	switch justice {
	case SegmentState:
		if code >= 1 && code <= len(stateCourts) {
			return stateCourts[code-1], true
		}
	case SegmentFederal:
		if code >= 1 && code <= federalRegions {
			return fmt.Sprintf("trf%d", code), true
		}
	case SegmentLabor:
		if code == 0 {
			return "tst", true
		}
		if code <= laborRegions {
			return fmt.Sprintf("trt%d", code), true
		}
	case SegmentSuperior:
		return "stj", true
	case SegmentSupreme:
		return "stf", true
	}
	return "", false
}

// CourtOrDefault returns the resolved court system and instance tier, or
// DefaultCourt at first instance when the number is unresolved.
func (n Number) CourtOrDefault() (string, string) {
	if !n.Resolved {
		return DefaultCourt, models.InstanceFirst
	}
	return n.CourtSystem, n.Instance
}

// Format renders the punctuated form. Numbers without 20 digits are
// returned as-is.
func (n Number) Format() string {
	if len(n.Canonical) != Digits {
		return n.Canonical
	}
	d := n.Canonical
	return fmt.Sprintf("%s-%s.%s.%s.%s.%s", d[0:7], d[7:9], d[9:13], d[13:14], d[14:16], d[16:20])
}

// ValidCheckDigits verifies DD against the rest of the number.
func (n Number) ValidCheckDigits() bool {
	if len(n.Canonical) != Digits {
		return false
	}
	d := n.Canonical
	return mod97(d[0:7]+d[9:20]+d[7:9]) == 1
}

// CheckDigits computes the expected check digits for the other 18 digits
// of a number, in canonical order with DD omitted.
func CheckDigits(sequence, year, justice, court, origin string) string {
	r := mod97(sequence + year + justice + court + origin + "00")
	return fmt.Sprintf("%02d", 98-r)
}

func mod97(digits string) int {
	r := 0
	for i := 0; i < len(digits); i++ {
		r = (r*10 + int(digits[i]-'0')) % 97
	}
	return r
}
