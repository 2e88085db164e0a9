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
	"testing"
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
)

func TestNewSnapshot(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	rec := newTestRecord("g", testOwner, 42)

	s := newSnapshot(rec, "aviso", now)
	if s.AtBat != nil || s.Final != nil || s.Notice != "aviso" || s.UpdatedAt != 42 {
		t.Errorf("unexpected snapshot: %+v", s)
	}

	q := testQuestion
	rec.Game.Status = game.StatusAtBatPending
	rec.Game.LastToken = 3
	rec.Game.Pending = &game.AtBat{Token: 3, Chapter: 2, Hit: game.Single, Question: &q, Deadline: now.Add(42500 * time.Millisecond)}
	s = newSnapshot(rec, "", now)
	if s.AtBat == nil || s.AtBat.Token != 3 || s.AtBat.HitLabel != "Sencillo" || s.AtBat.Loading {
		t.Fatalf("unexpected at-bat: %+v", s.AtBat)
	}
	if s.AtBat.RemainingSeconds != 43 {
		t.Errorf("RemainingSeconds = %d, want 43", s.AtBat.RemainingSeconds)
	}
	// The view owns its options.
	s.AtBat.Options[0] = "changed"
	if q.Options[0] == "changed" {
		t.Error("snapshot shares the options slice")
	}

	// Past deadlines show zero.
	rec.Game.Pending.Deadline = now.Add(-time.Second)
	if s = newSnapshot(rec, "", now); s.AtBat.RemainingSeconds != 0 {
		t.Errorf("RemainingSeconds = %d, want 0", s.AtBat.RemainingSeconds)
	}

	rec.Game.Pending = nil
	rec.Game.Status = game.StatusGameOver
	rec.Game.Teams[0].Score = 2
	rec.Game.Teams[1].Score = 2
	s = newSnapshot(rec, "", now)
	if s.Final == nil || !s.Final.Tie || s.Final.Winner != -1 || s.Final.WinnerName != "" {
		t.Errorf("tie: %+v", s.Final)
	}

	rec.Game.Teams[1].Score = 3
	s = newSnapshot(rec, "", now)
	if s.Final.Tie || s.Final.Winner != 1 || s.Final.WinnerName != "Locales" || s.Final.Score != [2]int{2, 3} {
		t.Errorf("home win: %+v", s.Final)
	}
}

func TestSnapshotForAccess(t *testing.T) {
	s := newSnapshot(newTestRecord("g", testOwner, 1), "", time.Now())
	if s.OwnerID != testOwner {
		t.Fatalf("OwnerID = %q", s.OwnerID)
	}
	for _, a := range []AccessLevel{AccessWrite, AccessAdmin} {
		if got := s.forAccess(a); got.OwnerID != testOwner {
			t.Errorf("%s: OwnerID = %q", a, got.OwnerID)
		}
	}
	for _, a := range []AccessLevel{AccessNone, AccessRead} {
		if got := s.forAccess(a); got.OwnerID != "" || got.ID != "g" {
			t.Errorf("%s: got %+v", a, got)
		}
	}
	if s.OwnerID != testOwner {
		t.Error("forAccess changed the original snapshot")
	}
}
