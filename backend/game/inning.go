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

package game

import (
	"fmt"
	"strings"
	"time"
)

// Half of an inning.
type Half string

const (
	Top    Half = "top"
	Bottom Half = "bottom"
)

// Status is the state of the turn controller.
type Status string

const (
	StatusAwaitingBatter  Status = "awaiting_batter"
	StatusAtBatPending    Status = "at_bat_pending"
	StatusResolved        Status = "resolved"
	StatusHalfInningBreak Status = "half_inning_break"
	StatusGameOver        Status = "game_over"
)

const (
	// DefaultTotalInnings is the length of a game when none is configured.
	DefaultTotalInnings = 3
	// OutsPerHalf ends a half-inning.
	OutsPerHalf = 3
)

// Default team names used when a side is left blank.
const (
	DefaultTeam0Name = "Equipo A"
	DefaultTeam1Name = "Equipo B"
)

// Team is one side of the game.
type Team struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// InningState is the position of the game within its innings.
//
// BattingTeam is 0 during the top half and 1 during the bottom half. It is
// only ever written together with Half.
type InningState struct {
	Inning      int   `json:"currentInning"`
	Half        Half  `json:"currentHalf"`
	BattingTeam int   `json:"battingTeamIndex"`
	Outs        int   `json:"outs"`
	Bases       Bases `json:"bases"`
}

func startOfHalf(inning int, half Half) InningState {
	batting := 0
	if half == Bottom {
		batting = 1
	}
	return InningState{Inning: inning, Half: half, BattingTeam: batting}
}

// AtBat is the at-bat currently in progress. Question is nil while the
// question is still being generated.
type AtBat struct {
	Token    uint64    `json:"token"`
	Chapter  int       `json:"chapter"`
	Hit      HitType   `json:"hit"`
	Question *Question `json:"question,omitempty"`
	Deadline time.Time `json:"deadline,omitempty"`
}

// Loading reports whether the question for this at-bat has not arrived yet.
func (a *AtBat) Loading() bool {
	return a.Question == nil
}

// AnswerResult is the outcome of a resolved at-bat.
type AnswerResult struct {
	IsCorrect bool     `json:"isCorrect"`
	Hit       *HitType `json:"hitType,omitempty"`
	Runs      int      `json:"runsScored"`
	Retired   bool     `json:"retired,omitempty"` // last out of the half
	TimedOut  bool     `json:"timedOut,omitempty"`
}

// Game holds the complete state of one game. All changes go through Apply.
type Game struct {
	Teams        [2]Team       `json:"teams"`
	State        InningState   `json:"state"`
	Status       Status        `json:"status"`
	TotalInnings int           `json:"totalInnings"`
	Pending      *AtBat        `json:"pending,omitempty"`
	LastResult   *AnswerResult `json:"lastResult,omitempty"`
	LastToken    uint64        `json:"lastToken"`
}

// New starts a game in the top of the first inning with team 0 at bat.
// Blank names fall back to the defaults and totalInnings <= 0 selects
// DefaultTotalInnings.
func New(team0, team1 string, totalInnings int) *Game {
	team0 = strings.TrimSpace(team0)
	if team0 == "" {
		team0 = DefaultTeam0Name
	}
	team1 = strings.TrimSpace(team1)
	if team1 == "" {
		team1 = DefaultTeam1Name
	}
	if totalInnings <= 0 {
		totalInnings = DefaultTotalInnings
	}
	return &Game{
		Teams:        [2]Team{{Name: team0}, {Name: team1}},
		State:        startOfHalf(1, Top),
		Status:       StatusAwaitingBatter,
		TotalInnings: totalInnings,
	}
}

// Event is an input to Apply.
type Event interface {
	event()
}

// SelectDifficulty chooses the chapter and hit magnitude for the next at-bat.
type SelectDifficulty struct {
	Chapter int
	Hit     HitType
}

// QuestionReady delivers the generated question for the at-bat Token.
type QuestionReady struct {
	Token    uint64
	Question Question
	Deadline time.Time
}

// QuestionFailed reports that no usable question could be produced.
type QuestionFailed struct {
	Token uint64
	Err   error
}

// CancelSelection closes the selection while the question is still loading.
type CancelSelection struct{}

// Answer submits the player's choice.
type Answer struct {
	Token uint64
	Text  string
}

// Timeout is raised when the answer countdown expires. It counts as an
// empty answer.
type Timeout struct {
	Token uint64
}

func (SelectDifficulty) event() {}
func (QuestionReady) event()    {}
func (QuestionFailed) event()   {}
func (CancelSelection) event()  {}
func (Answer) event()           {}
func (Timeout) event()          {}

// Outcome describes what a successful Apply did.
type Outcome struct {
	// Trail lists the statuses passed through, ending with the current one.
	Trail []Status
	// AtBat is a copy of the pending at-bat after SelectDifficulty and QuestionReady.
	AtBat *AtBat
	// Result is set when an answer was resolved.
	Result *AnswerResult
	// Aborted is set when the pending at-bat was dropped without being
	// played. It is nil for a cancelled selection.
	Aborted error
}

// Apply runs ev against the game. On error the game is left unchanged.
func (g *Game) Apply(ev Event) (Outcome, error) {
	if g.Status == StatusGameOver {
		return Outcome{}, ErrGameOver
	}
	switch e := ev.(type) {
	case SelectDifficulty:
		return g.selectDifficulty(e)
	case QuestionReady:
		return g.questionReady(e)
	case QuestionFailed:
		if _, err := g.loadingAtBat(e.Token); err != nil {
			return Outcome{}, err
		}
		err := e.Err
		if err == nil {
			err = fmt.Errorf("%w: no question", ErrMalformedQuestion)
		}
		return g.abort(err), nil
	case CancelSelection:
		if g.Pending == nil {
			return Outcome{}, fmt.Errorf("%w: nothing to cancel in %s", ErrInvalidTransition, g.Status)
		}
		if _, err := g.loadingAtBat(g.Pending.Token); err != nil {
			return Outcome{}, err
		}
		return g.abort(nil), nil
	case Answer:
		return g.answer(e.Token, e.Text, false)
	case Timeout:
		return g.answer(e.Token, "", true)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}
}

func (g *Game) selectDifficulty(e SelectDifficulty) (Outcome, error) {
	if g.Status != StatusAwaitingBatter {
		return Outcome{}, fmt.Errorf("%w: cannot select difficulty in %s", ErrInvalidTransition, g.Status)
	}
	if err := ValidateChapter(e.Chapter); err != nil {
		return Outcome{}, err
	}
	if !e.Hit.Valid() {
		return Outcome{}, fmt.Errorf("%w: %d", ErrInvalidHitType, int(e.Hit))
	}
	g.LastToken++
	g.Pending = &AtBat{Token: g.LastToken, Chapter: e.Chapter, Hit: e.Hit}
	g.Status = StatusAtBatPending
	ab := *g.Pending
	return Outcome{Trail: []Status{g.Status}, AtBat: &ab}, nil
}

func (g *Game) questionReady(e QuestionReady) (Outcome, error) {
	ab, err := g.loadingAtBat(e.Token)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.Question.Validate(); err != nil {
		return g.abort(err), nil
	}
	q := e.Question
	q.Options = append([]string(nil), e.Question.Options...)
	ab.Question = &q
	ab.Deadline = e.Deadline
	cp := *ab
	return Outcome{Trail: []Status{g.Status}, AtBat: &cp}, nil
}

// pendingAtBat returns the pending at-bat addressed by token.
func (g *Game) pendingAtBat(token uint64) (*AtBat, error) {
	if g.Status != StatusAtBatPending || g.Pending == nil {
		return nil, fmt.Errorf("%w: no at-bat pending in %s", ErrInvalidTransition, g.Status)
	}
	if g.Pending.Token != token {
		return nil, fmt.Errorf("%w: at-bat %d, pending %d", ErrStaleEvent, token, g.Pending.Token)
	}
	return g.Pending, nil
}

func (g *Game) loadingAtBat(token uint64) (*AtBat, error) {
	ab, err := g.pendingAtBat(token)
	if err != nil {
		return nil, err
	}
	if !ab.Loading() {
		return nil, fmt.Errorf("%w: question for at-bat %d already delivered", ErrInvalidTransition, token)
	}
	return ab, nil
}

// abort drops the pending at-bat. Inning state and scores are not touched.
func (g *Game) abort(reason error) Outcome {
	g.Pending = nil
	g.Status = StatusAwaitingBatter
	return Outcome{Trail: []Status{g.Status}, Aborted: reason}
}

func (g *Game) answer(token uint64, text string, timedOut bool) (Outcome, error) {
	ab, err := g.pendingAtBat(token)
	if err != nil {
		return Outcome{}, err
	}
	if ab.Loading() {
		return Outcome{}, fmt.Errorf("%w: question for at-bat %d not delivered yet", ErrInvalidTransition, token)
	}
	correct := !timedOut && SameAnswer(text, ab.Question.Answer)
	return g.resolve(ab.Hit, correct, timedOut), nil
}

// resolve scores the at-bat and then runs the out check.
func (g *Game) resolve(hit HitType, correct, timedOut bool) Outcome {
	out := Outcome{Trail: []Status{StatusResolved}}
	result := &AnswerResult{IsCorrect: correct, TimedOut: timedOut}
	if correct {
		bases, runs := Advance(g.State.Bases, hit)
		g.State.Bases = bases
		g.Teams[g.State.BattingTeam].Score += runs
		result.Hit = &hit
		result.Runs = runs
	} else {
		g.State.Outs++
	}
	g.Pending = nil
	g.LastResult = result
	out.Result = result

	if g.State.Outs < OutsPerHalf {
		g.Status = StatusAwaitingBatter
		out.Trail = append(out.Trail, g.Status)
		return out
	}

	result.Retired = true
	switch {
	case g.State.Half == Top:
		out.Trail = append(out.Trail, StatusHalfInningBreak)
		g.State = startOfHalf(g.State.Inning, Bottom)
		g.Status = StatusAwaitingBatter
	case g.State.Inning >= g.TotalInnings:
		g.State.Outs = 0
		g.State.Bases = Bases{}
		g.Status = StatusGameOver
	default:
		out.Trail = append(out.Trail, StatusHalfInningBreak)
		g.State = startOfHalf(g.State.Inning+1, Top)
		g.Status = StatusAwaitingBatter
	}
	out.Trail = append(out.Trail, g.Status)
	return out
}

// Winner returns the index of the winning team. ok is false while the game
// is still being played and on a tie.
func (g *Game) Winner() (index int, ok bool) {
	if g.Status != StatusGameOver {
		return -1, false
	}
	switch {
	case g.Teams[0].Score > g.Teams[1].Score:
		return 0, true
	case g.Teams[1].Score > g.Teams[0].Score:
		return 1, true
	}
	return -1, false
}

// Clone returns a deep copy of g.
func (g *Game) Clone() *Game {
	c := *g
	if g.Pending != nil {
		ab := *g.Pending
		if ab.Question != nil {
			q := *ab.Question
			q.Options = append([]string(nil), ab.Question.Options...)
			ab.Question = &q
		}
		c.Pending = &ab
	}
	if g.LastResult != nil {
		r := *g.LastResult
		if r.Hit != nil {
			h := *r.Hit
			r.Hit = &h
		}
		c.LastResult = &r
	}
	return &c
}

// Validate checks the invariants of a game read back from storage.
func (g *Game) Validate() error {
	if strings.TrimSpace(g.Teams[0].Name) == "" || strings.TrimSpace(g.Teams[1].Name) == "" {
		return fmt.Errorf("%w: team names must not be empty", ErrInvalidTeams)
	}
	if g.Teams[0].Score < 0 || g.Teams[1].Score < 0 {
		return fmt.Errorf("%w: negative score", ErrInvalidTeams)
	}
	if g.TotalInnings < 1 {
		return fmt.Errorf("invalid total innings: %d", g.TotalInnings)
	}
	s := g.State
	if s.Inning < 1 || s.Inning > g.TotalInnings {
		return fmt.Errorf("invalid inning %d of %d", s.Inning, g.TotalInnings)
	}
	switch {
	case s.Half == Top && s.BattingTeam == 0:
	case s.Half == Bottom && s.BattingTeam == 1:
	default:
		return fmt.Errorf("batting team %d does not match half %q", s.BattingTeam, s.Half)
	}
	if s.Outs < 0 || s.Outs >= OutsPerHalf {
		return fmt.Errorf("invalid outs: %d", s.Outs)
	}
	switch g.Status {
	case StatusAwaitingBatter, StatusGameOver:
		if g.Pending != nil {
			return fmt.Errorf("unexpected pending at-bat in %s", g.Status)
		}
	case StatusAtBatPending:
		if g.Pending == nil {
			return fmt.Errorf("missing pending at-bat")
		}
		if g.Pending.Token == 0 || g.Pending.Token > g.LastToken {
			return fmt.Errorf("invalid at-bat token %d", g.Pending.Token)
		}
		if !g.Pending.Hit.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidHitType, int(g.Pending.Hit))
		}
		if err := ValidateChapter(g.Pending.Chapter); err != nil {
			return err
		}
		if g.Pending.Question != nil {
			if err := g.Pending.Question.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("invalid status %q", g.Status)
	}
	return nil
}
