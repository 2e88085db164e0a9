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

	"golang.org/x/text/cases"
)

// OptionCount is the number of choices every question carries.
const OptionCount = 4

// MaxChapter is the last chapter questions can be drawn from.
const MaxChapter = 5

// Question is a multiple-choice question produced by a question generator.
type Question struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// Validate checks the shape of q. Errors wrap ErrMalformedQuestion.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: missing question text", ErrMalformedQuestion)
	}
	if len(q.Options) != OptionCount {
		return fmt.Errorf("%w: got %d options, want %d", ErrMalformedQuestion, len(q.Options), OptionCount)
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrMalformedQuestion, i)
		}
	}
	if strings.TrimSpace(q.Answer) == "" {
		return fmt.Errorf("%w: missing answer", ErrMalformedQuestion)
	}
	for _, opt := range q.Options {
		if SameAnswer(opt, q.Answer) {
			return nil
		}
	}
	return fmt.Errorf("%w: answer %q is not one of the options", ErrMalformedQuestion, q.Answer)
}

// SameAnswer compares two answers ignoring surrounding space and case.
func SameAnswer(a, b string) bool {
	return foldAnswer(a) == foldAnswer(b)
}

func foldAnswer(s string) string {
	// cases.Caser is stateful; build one per call.
	return cases.Fold().String(strings.TrimSpace(s))
}

// ValidateChapter checks that chapter is within 1..MaxChapter.
func ValidateChapter(chapter int) error {
	if chapter < 1 || chapter > MaxChapter {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidChapter, chapter, MaxChapter)
	}
	return nil
}
