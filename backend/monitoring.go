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
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
	"github.com/ttbt-io/triviaball/backend/questions"
)

// Counter names reported by /api/stats.
const (
	StatGamesCreated       = "games_created"
	StatGamesFinished      = "games_finished"
	StatAtBats             = "at_bats"
	StatAnswersCorrect     = "answers_correct"
	StatAnswersIncorrect   = "answers_incorrect"
	StatAnswersTimedOut    = "answers_timed_out"
	StatRunsScored         = "runs_scored"
	StatQuestionsOK        = "questions_ok"
	StatQuestionsBadKey    = "questions_invalid_credential"
	StatQuestionsThrottled = "questions_rate_limited"
	StatQuestionsDown      = "questions_unavailable"
	StatQuestionsMalformed = "questions_malformed"
	StatQuestionsOther     = "questions_failed_other"
)

const LatencyBuckets = 101
const LatencyBucketSize = 250 * time.Millisecond

// Histogram counts question generation latencies.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	if d < 0 {
		d = 0
	}
	idx := int(d / LatencyBucketSize)
	if idx >= LatencyBuckets {
		idx = LatencyBuckets - 1
	}
	h.Buckets[idx]++
	h.Count++
	h.Sum += float64(d.Milliseconds())
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i := range LatencyBuckets {
		h.Buckets[i] += other.Buckets[i]
	}
	h.Count += other.Count
	h.Sum += other.Sum
}

// Percentile returns the upper bound of the bucket holding the p-th
// percentile, 0 < p <= 100.
func (h *Histogram) Percentile(p float64) time.Duration {
	if h.Count == 0 {
		return 0
	}
	rank := uint64(float64(h.Count)*p/100 + 0.5)
	if rank < 1 {
		rank = 1
	}
	var seen uint64
	for i, n := range h.Buckets {
		seen += n
		if seen >= rank {
			return time.Duration(i+1) * LatencyBucketSize
		}
	}
	return LatencyBuckets * LatencyBucketSize
}

// ResolutionConfig defines the policy for a single RRD bucket set.
type ResolutionConfig struct {
	Name       string        `json:"name"`
	Resolution time.Duration `json:"resolution"`
	Buckets    int           `json:"buckets"`
}

var DefaultResolutions = []ResolutionConfig{
	{"1m", time.Minute, 120},
	{"1h", time.Hour, 168},
}

// Point represents a single data point in a time series.
type Point[T any] struct {
	Timestamp int64 `json:"t"`
	Value     T     `json:"v"`
}

// RingBuffer is a fixed-size circular buffer for storing time series data.
type RingBuffer[T any] struct {
	Config ResolutionConfig `json:"config"`
	Data   []Point[T]       `json:"data"`
	Head   int              `json:"head"` // next write position
}

func NewRingBuffer[T any](cfg ResolutionConfig) *RingBuffer[T] {
	return &RingBuffer[T]{
		Config: cfg,
		Data:   make([]Point[T], cfg.Buckets),
	}
}

func (rb *RingBuffer[T]) align(timestamp int64) int64 {
	resSec := int64(rb.Config.Resolution.Seconds())
	return (timestamp / resSec) * resSec
}

// last returns the most recent point if it falls in the same slot as timestamp.
func (rb *RingBuffer[T]) last(timestamp int64) *Point[T] {
	prev := &rb.Data[(rb.Head-1+len(rb.Data))%len(rb.Data)]
	if prev.Timestamp == rb.align(timestamp) {
		return prev
	}
	return nil
}

// Add stores value in the slot for timestamp, replacing the slot's value
// if it is the current one.
func (rb *RingBuffer[T]) Add(timestamp int64, value T) {
	if p := rb.last(timestamp); p != nil {
		p.Value = value
		return
	}
	rb.Data[rb.Head] = Point[T]{Timestamp: rb.align(timestamp), Value: value}
	rb.Head = (rb.Head + 1) % len(rb.Data)
}

// GetPoints returns the data points sorted by time.
func (rb *RingBuffer[T]) GetPoints() []Point[T] {
	points := make([]Point[T], 0, len(rb.Data))
	for i := range rb.Data {
		idx := (rb.Head + i) % len(rb.Data)
		if rb.Data[idx].Timestamp > 0 {
			points = append(points, rb.Data[idx])
		}
	}
	return points
}

// HistogramSeries holds all resolutions for a histogram metric.
type HistogramSeries struct {
	Name    string                            `json:"name"`
	Buffers map[string]*RingBuffer[Histogram] `json:"buffers"`
}

func NewHistogramSeries(name string) *HistogramSeries {
	buffers := make(map[string]*RingBuffer[Histogram])
	for _, cfg := range DefaultResolutions {
		buffers[cfg.Name] = NewRingBuffer[Histogram](cfg)
	}
	return &HistogramSeries{Name: name, Buffers: buffers}
}

// Observe adds one latency sample to every resolution.
func (hs *HistogramSeries) Observe(timestamp int64, d time.Duration) {
	for _, buf := range hs.Buffers {
		if p := buf.last(timestamp); p != nil {
			p.Value.Add(d)
			continue
		}
		var h Histogram
		h.Add(d)
		buf.Add(timestamp, h)
	}
}

// Stats collects process-wide game and question counters.
type Stats struct {
	mu       sync.Mutex
	started  time.Time
	now      func() time.Time
	latency  Histogram
	series   *HistogramSeries
	counters map[string]uint64
	activeWS int
}

func NewStats() *Stats {
	return &Stats{
		started:  time.Now(),
		now:      time.Now,
		series:   NewHistogramSeries("question_latency"),
		counters: make(map[string]uint64),
	}
}

func (s *Stats) Inc(name string, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += n
}

func (s *Stats) Counter(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

func (s *Stats) wsDelta(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeWS += n
}

// ObserveQuestion records one call to the question generator.
func (s *Stats) ObserveQuestion(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		return
	}
	s.counters[questionOutcome(err)]++
	s.latency.Add(d)
	s.series.Observe(s.now().Unix(), d)
}

func questionOutcome(err error) string {
	switch {
	case err == nil:
		return StatQuestionsOK
	case errors.Is(err, questions.ErrInvalidCredential):
		return StatQuestionsBadKey
	case errors.Is(err, questions.ErrRateLimited):
		return StatQuestionsThrottled
	case errors.Is(err, questions.ErrUnavailable):
		return StatQuestionsDown
	case errors.Is(err, game.ErrMalformedQuestion):
		return StatQuestionsMalformed
	}
	return StatQuestionsOther
}

// ObserveOutcome counts what an applied event did to the game.
func (s *Stats) ObserveOutcome(out game.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.AtBat != nil && out.AtBat.Loading() {
		s.counters[StatAtBats]++
	}
	if r := out.Result; r != nil {
		switch {
		case r.IsCorrect:
			s.counters[StatAnswersCorrect]++
			s.counters[StatRunsScored] += uint64(r.Runs)
		case r.TimedOut:
			s.counters[StatAnswersTimedOut]++
		default:
			s.counters[StatAnswersIncorrect]++
		}
	}
	if n := len(out.Trail); n > 0 && out.Trail[n-1] == game.StatusGameOver {
		s.counters[StatGamesFinished]++
	}
}

// StatsPayload is the body of GET /api/stats.
type StatsPayload struct {
	Version         string                        `json:"version"`
	UptimeSeconds   int64                         `json:"uptimeSeconds"`
	ActiveWS        int                           `json:"activeWS"`
	Counters        map[string]uint64             `json:"counters"`
	QuestionLatency Histogram                     `json:"questionLatency"`
	LatencyP50MS    int64                         `json:"latencyP50Ms"`
	LatencyP95MS    int64                         `json:"latencyP95Ms"`
	LatencySeries   map[string][]Point[Histogram] `json:"latencySeries"`
}

func (s *Stats) Payload() StatsPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := make(map[string][]Point[Histogram], len(s.series.Buffers))
	for name, buf := range s.series.Buffers {
		series[name] = buf.GetPoints()
	}
	return StatsPayload{
		Version:         CurrentAppVersion,
		UptimeSeconds:   int64(s.now().Sub(s.started).Seconds()),
		ActiveWS:        s.activeWS,
		Counters:        maps.Clone(s.counters),
		QuestionLatency: s.latency,
		LatencyP50MS:    s.latency.Percentile(50).Milliseconds(),
		LatencyP95MS:    s.latency.Percentile(95).Milliseconds(),
		LatencySeries:   series,
	}
}
