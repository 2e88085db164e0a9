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

package backend

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
	"github.com/ttbt-io/triviaball/backend/search"
)

// gameMatcher filters game summaries with a search query. Supported keys:
//
//	status:playing|over|<status>   team:<name>   public:true|false
//	inning:<op>N                   updated:<op>YYYY-MM-DD or a range
//
// Free text matches either team name.
type gameMatcher struct {
	q   search.Query
	loc *time.Location
}

func newGameMatcher(query string) (*gameMatcher, error) {
	m := &gameMatcher{q: search.Parse(query), loc: time.UTC}
	for _, f := range m.q.Filters {
		switch f.Key {
		case "status", "team", "public":
			if f.Operator != search.OpEqual {
				return nil, fmt.Errorf("%w: %s only supports equality", ErrBadRequest, f.Key)
			}
		case "inning":
			if _, err := strconv.Atoi(f.Value); err != nil {
				return nil, fmt.Errorf("%w: inning must be a number", ErrBadRequest)
			}
			if f.Operator == search.OpRange {
				if _, err := strconv.Atoi(f.MaxValue); err != nil {
					return nil, fmt.Errorf("%w: inning must be a number", ErrBadRequest)
				}
			}
		case "updated":
			if _, err := m.day(f.Value); err != nil {
				return nil, err
			}
			if f.Operator == search.OpRange {
				if _, err := m.day(f.MaxValue); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("%w: unknown filter %q", ErrBadRequest, f.Key)
		}
	}
	return m, nil
}

func (m *gameMatcher) day(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, m.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dates use YYYY-MM-DD", ErrBadRequest)
	}
	return t, nil
}

func (m *gameMatcher) match(g GameSummary) bool {
	for _, text := range m.q.FreeText {
		if !containsFold(g.Home, text) && !containsFold(g.Away, text) {
			return false
		}
	}
	for _, f := range m.q.Filters {
		if !m.matchFilter(g, f) {
			return false
		}
	}
	return true
}

func (m *gameMatcher) matchFilter(g GameSummary, f search.Filter) bool {
	switch f.Key {
	case "status":
		switch strings.ToLower(f.Value) {
		case "over", "final":
			return g.Status == game.StatusGameOver
		case "playing", "live":
			return g.Status != game.StatusGameOver
		}
		return strings.EqualFold(string(g.Status), f.Value)
	case "team":
		return game.SameAnswer(g.Home, f.Value) || game.SameAnswer(g.Away, f.Value)
	case "public":
		want, err := strconv.ParseBool(f.Value)
		return err == nil && g.Public == want
	case "inning":
		lo, _ := strconv.Atoi(f.Value)
		hi, _ := strconv.Atoi(f.MaxValue)
		return compare(f.Operator, g.Inning, lo, hi)
	case "updated":
		// Days compare against the start of the day; a range includes
		// its last day.
		updated := time.UnixMilli(g.UpdatedAt).In(m.loc)
		day := time.Date(updated.Year(), updated.Month(), updated.Day(), 0, 0, 0, 0, m.loc).Unix()
		lo, _ := m.day(f.Value)
		hi, _ := m.day(f.MaxValue)
		return compare(f.Operator, day, lo.Unix(), hi.Unix())
	}
	return false
}

func compare[T cmp.Ordered](op search.Operator, v, lo, hi T) bool {
	switch op {
	case search.OpGreater:
		return v > lo
	case search.OpGreaterOrEqual:
		return v >= lo
	case search.OpLess:
		return v < lo
	case search.OpLessOrEqual:
		return v <= lo
	case search.OpRange:
		return v >= lo && v <= hi
	}
	return v == lo
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// filterGames keeps the games that match query.
func filterGames(games []GameSummary, query string) ([]GameSummary, error) {
	m, err := newGameMatcher(query)
	if err != nil {
		return nil, err
	}
	if m.q.Empty() {
		return games, nil
	}
	out := make([]GameSummary, 0, len(games))
	for _, g := range games {
		if m.match(g) {
			out = append(out, g)
		}
	}
	return out, nil
}
