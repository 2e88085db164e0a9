// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package game implements the trivia-baseball simulation: base advancement,
// the inning state machine and the answer countdown.
package game

import (
	"fmt"
	"strings"
)

// HitType is the number of bases a correct answer advances every runner.
type HitType int

// Hit magnitudes
const (
	Single  HitType = 1
	Double  HitType = 2
	Triple  HitType = 3
	Homerun HitType = 4
)

// HitTypes lists every hit magnitude in ascending order.
var HitTypes = []HitType{Single, Double, Triple, Homerun}

// Valid reports whether h is one of the four hit magnitudes.
func (h HitType) Valid() bool {
	return h >= Single && h <= Homerun
}

func (h HitType) String() string {
	switch h {
	case Single:
		return "Single"
	case Double:
		return "Double"
	case Triple:
		return "Triple"
	case Homerun:
		return "Homerun"
	default:
		return fmt.Sprintf("HitType(%d)", int(h))
	}
}

// Label is the Spanish name shown to players.
func (h HitType) Label() string {
	switch h {
	case Single:
		return "Sencillo"
	case Double:
		return "Doble"
	case Triple:
		return "Triple"
	case Homerun:
		return "Homerun"
	}
	return h.String()
}

// ParseHitType accepts the English names, the Spanish labels
// ("Sencillo", "Doble", ...) and the digits 1 to 4.
func ParseHitType(s string) (HitType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "single", "sencillo", "1b":
		return Single, nil
	case "2", "double", "doble", "2b":
		return Double, nil
	case "3", "triple", "3b":
		return Triple, nil
	case "4", "homerun", "home run", "hr", "jonrón", "jonron":
		return Homerun, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidHitType, s)
}

// Bases is the occupancy of first, second and third base.
type Bases [3]bool

// Count returns the number of occupied bases.
func (b Bases) Count() int {
	n := 0
	for _, occupied := range b {
		if occupied {
			n++
		}
	}
	return n
}

func (b Bases) String() string {
	mark := func(v bool) byte {
		if v {
			return 'X'
		}
		return '-'
	}
	return string([]byte{mark(b[0]), mark(b[1]), mark(b[2])})
}

// Advance moves every runner and the batter hit bases forward and returns the
// new occupancy together with the runs that crossed home.
//
// Runners are walked from third base back to the batter so a lead runner
// always leaves its base before a trailing runner lands there. The batter
// starts one position behind first base. Advance panics if hit is not a valid
// HitType.
func Advance(b Bases, hit HitType) (Bases, int) {
	if !hit.Valid() {
		panic(fmt.Sprintf("game.Advance: invalid hit magnitude %d", int(hit)))
	}
	var next Bases
	runs := 0

	// [first, second, third, batter]
	runners := [4]bool{b[0], b[1], b[2], true}
	for i := 3; i >= 0; i-- {
		if !runners[i] {
			continue
		}
		from := i
		if i == 3 {
			from = -1
		}
		to := from + int(hit)
		if to >= 3 {
			runs++
			continue
		}
		next[to] = true
	}
	return next, runs
}
