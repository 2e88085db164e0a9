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
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
	"github.com/ttbt-io/triviaball/backend/questions"
)

func TestRingBuffer(t *testing.T) {
	cfg := ResolutionConfig{Name: "test", Resolution: time.Second, Buckets: 3}
	rb := NewRingBuffer[int](cfg)

	rb.Add(100, 1)
	rb.Add(101, 2)
	rb.Add(101, 3) // replaces the current slot

	points := rb.GetPoints()
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[1].Value != 3 {
		t.Errorf("expected value 3, got %d", points[1].Value)
	}

	rb.Add(102, 4)
	rb.Add(103, 5) // overwrites 100
	points = rb.GetPoints()
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].Timestamp != 101 || points[2].Timestamp != 103 {
		t.Errorf("unexpected order: %+v", points)
	}
}

func TestHistogram(t *testing.T) {
	var h Histogram
	if h.Percentile(50) != 0 {
		t.Error("empty histogram should report 0")
	}
	for i := 0; i < 90; i++ {
		h.Add(100 * time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		h.Add(2 * time.Second)
	}
	h.Add(time.Hour) // lands in the last bucket

	if h.Count != 101 {
		t.Errorf("Count = %d", h.Count)
	}
	if got := h.Percentile(50); got != LatencyBucketSize {
		t.Errorf("p50 = %v, want %v", got, LatencyBucketSize)
	}
	if got := h.Percentile(95); got != 9*LatencyBucketSize {
		t.Errorf("p95 = %v, want %v", got, 9*LatencyBucketSize)
	}
	if got := h.Percentile(100); got != LatencyBuckets*LatencyBucketSize {
		t.Errorf("p100 = %v", got)
	}

	var other Histogram
	other.Add(0)
	h.Merge(&other)
	h.Merge(nil)
	if h.Count != 102 || h.Buckets[0] != 91 {
		t.Errorf("Merge: count=%d bucket0=%d", h.Count, h.Buckets[0])
	}
}

func TestStats(t *testing.T) {
	s := NewStats()
	now := time.Unix(1_800_000_000, 0)
	s.now = func() time.Time { return now }

	s.Inc(StatGamesCreated, 2)
	s.ObserveQuestion(time.Second, nil)
	s.ObserveQuestion(time.Second, fmt.Errorf("gemini: %w", questions.ErrInvalidCredential))
	s.ObserveQuestion(time.Second, questions.ErrRateLimited)
	s.ObserveQuestion(time.Second, questions.ErrUnavailable)
	s.ObserveQuestion(time.Second, game.ErrMalformedQuestion)
	s.ObserveQuestion(time.Second, fmt.Errorf("boom"))
	s.ObserveQuestion(time.Second, context.Canceled)

	hit := game.Double
	s.ObserveOutcome(game.Outcome{AtBat: &game.AtBat{Token: 1}})
	s.ObserveOutcome(game.Outcome{AtBat: &game.AtBat{Token: 1, Question: &game.Question{}}})
	s.ObserveOutcome(game.Outcome{Result: &game.AnswerResult{IsCorrect: true, Hit: &hit, Runs: 2}})
	s.ObserveOutcome(game.Outcome{Result: &game.AnswerResult{TimedOut: true}})
	s.ObserveOutcome(game.Outcome{
		Result: &game.AnswerResult{Retired: true},
		Trail:  []game.Status{game.StatusResolved, game.StatusGameOver},
	})

	want := map[string]uint64{
		StatGamesCreated:       2,
		StatQuestionsOK:        1,
		StatQuestionsBadKey:    1,
		StatQuestionsThrottled: 1,
		StatQuestionsDown:      1,
		StatQuestionsMalformed: 1,
		StatQuestionsOther:     1,
		StatAtBats:             1,
		StatAnswersCorrect:     1,
		StatRunsScored:         2,
		StatAnswersTimedOut:    1,
		StatAnswersIncorrect:   1,
		StatGamesFinished:      1,
	}
	for name, n := range want {
		if got := s.Counter(name); got != n {
			t.Errorf("counter %s = %d, want %d", name, got, n)
		}
	}

	s.wsDelta(2)
	s.wsDelta(-1)
	p := s.Payload()
	if p.ActiveWS != 1 {
		t.Errorf("ActiveWS = %d", p.ActiveWS)
	}
	if p.QuestionLatency.Count != 6 {
		t.Errorf("latency count = %d, want 6 (cancelled calls are not counted)", p.QuestionLatency.Count)
	}
	if p.LatencyP50MS != 1250 {
		t.Errorf("p50 = %dms", p.LatencyP50MS)
	}
	if pts := p.LatencySeries["1m"]; len(pts) != 1 || pts[0].Value.Count != 6 {
		t.Errorf("1m series = %+v", pts)
	}
	if p.Version != CurrentAppVersion {
		t.Errorf("Version = %q", p.Version)
	}

	// The payload is a copy.
	p.Counters[StatGamesCreated] = 100
	if s.Counter(StatGamesCreated) != 2 {
		t.Error("payload shares the counter map")
	}
}
