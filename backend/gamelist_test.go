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
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
)

func TestFilterGames(t *testing.T) {
	day := func(s string) int64 {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			t.Fatal(err)
		}
		return d.Add(15 * time.Hour).UnixMilli()
	}
	games := []GameSummary{
		{ID: "a", Away: "Leones", Home: "Los Tigres", Inning: 1, Status: game.StatusAwaitingBatter, UpdatedAt: day("2026-01-05")},
		{ID: "b", Away: "Águilas", Home: "Leones", Inning: 3, Status: game.StatusGameOver, Public: true, UpdatedAt: day("2026-02-10")},
		{ID: "c", Away: "Equipo A", Home: "Equipo B", Inning: 2, Status: game.StatusAtBatPending, UpdatedAt: day("2026-02-01")},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"a", "b", "c"}},
		{"leones", []string{"a", "b"}},
		{"tigres leones", []string{"a"}},
		{`team:"los tigres"`, []string{"a"}},
		{"team:tigres", nil},
		{"status:over", []string{"b"}},
		{"status:playing", []string{"a", "c"}},
		{"status:at_bat_pending", []string{"c"}},
		{"public:true", []string{"b"}},
		{"public:false", []string{"a", "c"}},
		{"inning:>=2", []string{"b", "c"}},
		{"inning:<2", []string{"a"}},
		{"inning:2..3", []string{"b", "c"}},
		{"updated:2026-02-01", []string{"c"}},
		{"updated:>2026-01-31", []string{"b", "c"}},
		{"updated:2026-01-01..2026-02-01", []string{"a", "c"}},
		{"equipo status:playing inning:2", []string{"c"}},
	}
	for _, tt := range tests {
		got, err := filterGames(games, tt.query)
		if err != nil {
			t.Errorf("filterGames(%q) failed: %v", tt.query, err)
			continue
		}
		var ids []string
		for _, g := range got {
			ids = append(ids, g.ID)
		}
		if !slices.Equal(ids, tt.want) {
			t.Errorf("filterGames(%q) = %v, want %v", tt.query, ids, tt.want)
		}
	}

	for _, q := range []string{"owner:me", "inning:two", "updated:yesterday", "status:>over", "updated:2026-01-01..soon"} {
		if _, err := filterGames(games, q); !errors.Is(err, ErrBadRequest) {
			t.Errorf("filterGames(%q) = %v, want ErrBadRequest", q, err)
		}
	}
}
