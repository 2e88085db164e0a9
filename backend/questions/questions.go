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

// Package questions provides the question generators used for at-bats.
package questions

import (
	"context"
	"errors"

	"github.com/ttbt-io/triviaball/backend/game"
)

var (
	// ErrInvalidCredential is returned when the API key is missing or was rejected.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrRateLimited is returned when the service asks the caller to slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable covers transport failures and unexpected service responses.
	ErrUnavailable = errors.New("question service unavailable")
)

// Generator produces a question for a chapter at the difficulty of a hit.
// A returned question has passed game.Question.Validate.
type Generator interface {
	Generate(ctx context.Context, chapter int, hit game.HitType) (game.Question, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, chapter int, hit game.HitType) (game.Question, error)

func (f GeneratorFunc) Generate(ctx context.Context, chapter int, hit game.HitType) (game.Question, error) {
	return f(ctx, chapter, hit)
}

// Unconfigured is the generator used before a credential is supplied.
var Unconfigured Generator = GeneratorFunc(func(context.Context, int, game.HitType) (game.Question, error) {
	return game.Question{}, ErrInvalidCredential
})

// difficulty is the phrasing used in prompts for each hit magnitude.
var difficulty = map[game.HitType]string{
	game.Single:  "básica y sencilla",
	game.Double:  "de dificultad intermedia",
	game.Triple:  "avanzada y detallada",
	game.Homerun: "muy compleja y que relacione conceptos de varios capítulos, pero centrada en el capítulo proveído",
}

func checkRequest(chapter int, hit game.HitType) error {
	if err := game.ValidateChapter(chapter); err != nil {
		return err
	}
	if !hit.Valid() {
		return game.ErrInvalidHitType
	}
	return nil
}
