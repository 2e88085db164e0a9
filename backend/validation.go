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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ttbt-io/triviaball/backend/game"
)

// ErrBadRequest marks a request body that failed validation.
var ErrBadRequest = errors.New("bad request")

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// isValidEmail checks if the string is a valid email address.
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// validateStringLen checks if the string length is within the limit.
func validateStringLen(s string, max int, name string) error {
	if utf8.RuneCountInString(s) > max {
		return fmt.Errorf("%w: %s too long (max %d chars)", ErrBadRequest, name, max)
	}
	return nil
}

// decodeStrict decodes a JSON body, rejecting unknown fields and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrBadRequest)
	}
	return nil
}

// createGameRequest is the body of POST /api/games. The away team bats
// first.
type createGameRequest struct {
	Home    string `json:"home"`
	Away    string `json:"away"`
	Innings int    `json:"innings"`
	Public  bool   `json:"public"`
}

func parseCreateGame(data []byte) (createGameRequest, error) {
	var req createGameRequest
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}
	if err := decodeStrict(data, &req); err != nil {
		return req, err
	}
	if err := validateStringLen(req.Home, MaxTeamNameLen, "home"); err != nil {
		return req, err
	}
	if err := validateStringLen(req.Away, MaxTeamNameLen, "away"); err != nil {
		return req, err
	}
	if req.Innings < 0 || req.Innings > MaxInnings {
		return req, fmt.Errorf("%w: innings must be between 1 and %d", ErrBadRequest, MaxInnings)
	}
	return req, nil
}

// selectRequest is the body of POST /api/games/{id}/select. Hit is either
// a number 1..4 or a name accepted by game.ParseHitType.
type selectRequest struct {
	Chapter int             `json:"chapter"`
	Hit     json.RawMessage `json:"hit"`
}

func parseSelect(data []byte) (game.SelectDifficulty, error) {
	var req selectRequest
	if err := decodeStrict(data, &req); err != nil {
		return game.SelectDifficulty{}, err
	}
	if len(req.Hit) == 0 {
		return game.SelectDifficulty{}, fmt.Errorf("%w: missing hit", ErrBadRequest)
	}
	var hit game.HitType
	var n int
	var s string
	switch {
	case json.Unmarshal(req.Hit, &n) == nil:
		hit = game.HitType(n)
	case json.Unmarshal(req.Hit, &s) == nil:
		h, err := game.ParseHitType(s)
		if err != nil {
			return game.SelectDifficulty{}, err
		}
		hit = h
	default:
		return game.SelectDifficulty{}, fmt.Errorf("%w: hit must be a number or a name", ErrBadRequest)
	}
	// Range checks are left to the state machine so the errors match.
	return game.SelectDifficulty{Chapter: req.Chapter, Hit: hit}, nil
}

// answerRequest is the body of POST /api/games/{id}/answer. A zero Token
// addresses the current at-bat.
type answerRequest struct {
	Token  uint64 `json:"token,omitempty"`
	Answer string `json:"answer"`
}

func parseAnswer(data []byte) (game.Answer, error) {
	var req answerRequest
	if err := decodeStrict(data, &req); err != nil {
		return game.Answer{}, err
	}
	if err := validateStringLen(req.Answer, MaxAnswerLen, "answer"); err != nil {
		return game.Answer{}, err
	}
	return game.Answer{Token: req.Token, Text: req.Answer}, nil
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func parseCredential(data []byte) (string, error) {
	var req credentialRequest
	if err := decodeStrict(data, &req); err != nil {
		return "", err
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return "", fmt.Errorf("%w: apiKey is required", ErrBadRequest)
	}
	return key, nil
}
