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
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
)

// Snapshot is what players and spectators see of a game. It never
// contains the correct answer of a pending question.
type Snapshot struct {
	ID           string             `json:"id"`
	OwnerID      string             `json:"ownerId,omitempty"`
	Public       bool               `json:"public"`
	Teams        [2]game.Team       `json:"teams"`
	State        game.InningState   `json:"state"`
	Status       game.Status        `json:"status"`
	TotalInnings int                `json:"totalInnings"`
	AtBat        *AtBatView         `json:"atBat,omitempty"`
	LastResult   *game.AnswerResult `json:"lastResult,omitempty"`
	Final        *FinalScore        `json:"final,omitempty"`
	Notice       string             `json:"notice,omitempty"`
	UpdatedAt    int64              `json:"updatedAt"`
}

// AtBatView is the pending at-bat as shown to players.
type AtBatView struct {
	Token            uint64       `json:"token"`
	Chapter          int          `json:"chapter"`
	Hit              game.HitType `json:"hitType"`
	HitLabel         string       `json:"hitLabel"`
	Loading          bool         `json:"loading"`
	Question         string       `json:"question,omitempty"`
	Options          []string     `json:"options,omitempty"`
	RemainingSeconds int          `json:"remainingSeconds"`
}

// FinalScore summarizes a finished game.
type FinalScore struct {
	Winner     int    `json:"winner"` // -1 on a tie
	WinnerName string `json:"winnerName,omitempty"`
	Tie        bool   `json:"tie"`
	Score      [2]int `json:"score"`
}

// forAccess returns the snapshot as seen by a caller with the given access.
// Only players see who owns the game.
func (s *Snapshot) forAccess(a AccessLevel) *Snapshot {
	if a >= AccessWrite || s.OwnerID == "" {
		return s
	}
	c := *s
	c.OwnerID = ""
	return &c
}

func newSnapshot(rec *GameRecord, notice string, now time.Time) *Snapshot {
	g := rec.Game
	s := &Snapshot{
		ID:           rec.ID,
		OwnerID:      rec.OwnerID,
		Public:       rec.Public,
		Teams:        g.Teams,
		State:        g.State,
		Status:       g.Status,
		TotalInnings: g.TotalInnings,
		Notice:       notice,
		UpdatedAt:    rec.UpdatedAt,
	}
	if g.LastResult != nil {
		r := *g.LastResult
		s.LastResult = &r
	}
	if ab := g.Pending; ab != nil {
		v := &AtBatView{
			Token:    ab.Token,
			Chapter:  ab.Chapter,
			Hit:      ab.Hit,
			HitLabel: ab.Hit.Label(),
			Loading:  ab.Loading(),
		}
		if q := ab.Question; q != nil {
			v.Question = q.Text
			v.Options = append([]string(nil), q.Options...)
			v.RemainingSeconds = int(game.RemainingUntil(ab.Deadline, now) / time.Second)
		}
		s.AtBat = v
	}
	if g.Status == game.StatusGameOver {
		f := &FinalScore{Winner: -1, Score: [2]int{g.Teams[0].Score, g.Teams[1].Score}}
		if i, ok := g.Winner(); ok {
			f.Winner = i
			f.WinnerName = g.Teams[i].Name
		} else {
			f.Tie = true
		}
		s.Final = f
	}
	return s
}
