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

// Package search parses the query language of the game list, e.g.
//
//	tigres status:over inning:>=2 updated:2026-01-01..2026-02-01
package search

import (
	"strings"
	"unicode"
)

type Operator string

const (
	OpEqual          Operator = "="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpRange          Operator = ".."
)

// prefixOps is checked in order; two-character operators come first.
var prefixOps = []Operator{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess}

type Filter struct {
	Key      string // lower case, e.g. "status"
	Value    string
	MaxValue string // OpRange only
	Operator Operator
}

type Query struct {
	Filters  []Filter
	FreeText []string
}

// Empty reports whether the query matches everything.
func (q Query) Empty() bool {
	return len(q.Filters) == 0 && len(q.FreeText) == 0
}

// Get returns the filters for key.
func (q Query) Get(key string) []Filter {
	var out []Filter
	for _, f := range q.Filters {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out
}

// Parse splits input into key:value filters and free text. Quoted values
// keep their spaces. Tokens that do not form a clean key:value pair are
// treated as free text.
func Parse(input string) Query {
	q := Query{Filters: []Filter{}, FreeText: []string{}}
	for _, tok := range tokenize(input) {
		f, ok := parseFilter(tok)
		if !ok {
			q.FreeText = append(q.FreeText, unquote(tok))
			continue
		}
		q.Filters = append(q.Filters, f)
	}
	return q
}

func parseFilter(tok string) (Filter, bool) {
	key, val, found := strings.Cut(tok, ":")
	key = strings.ToLower(strings.TrimSpace(key))
	val = strings.TrimSpace(val)
	if !found || key == "" || val == "" || strings.ContainsAny(key, `"'`) {
		return Filter{}, false
	}
	quoted := val[0] == '"' || val[0] == '\''
	if !quoted && strings.Contains(val, ":") {
		return Filter{}, false
	}
	if !quoted {
		if lo, hi, ok := strings.Cut(val, ".."); ok {
			return Filter{Key: key, Value: lo, MaxValue: hi, Operator: OpRange}, true
		}
		for _, op := range prefixOps {
			if rest, ok := strings.CutPrefix(val, string(op)); ok {
				return Filter{Key: key, Value: unquote(rest), Operator: op}, true
			}
		}
	}
	return Filter{Key: key, Value: unquote(val), Operator: OpEqual}, true
}

// tokenize splits input on spaces outside of quotes. Quotes are kept.
func tokenize(input string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return tokens
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
