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

import "errors"

var (
	// ErrInvalidHitType is returned when a hit magnitude is outside 1..4.
	ErrInvalidHitType = errors.New("invalid hit type")
	// ErrInvalidChapter is returned when a chapter is outside 1..MaxChapter.
	ErrInvalidChapter = errors.New("invalid chapter")
	// ErrMalformedQuestion marks a question that failed shape validation.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrInvalidTransition is returned when an event does not apply to the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStaleEvent is returned for events addressed to an at-bat that is no longer pending.
	ErrStaleEvent = errors.New("stale event")
	// ErrGameOver is returned for any event received after the final out.
	ErrGameOver = errors.New("game over")
	// ErrInvalidTeams is returned by Validate for blank team names or negative scores.
	ErrInvalidTeams = errors.New("invalid teams")
)
