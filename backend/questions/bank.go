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

package questions

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ttbt-io/triviaball/backend/game"
)

//go:embed santiago.yaml
var defaultBankYAML []byte

type bankQuestion struct {
	Question string   `yaml:"question"`
	Options  []string `yaml:"options"`
	Answer   string   `yaml:"answer"`
}

type bankFile struct {
	Book     string                            `yaml:"book"`
	Chapters map[int]map[string][]bankQuestion `yaml:"chapters"`
}

// Bank serves questions from a fixed set loaded from YAML.
type Bank struct {
	Book      string
	questions map[int]map[game.HitType][]game.Question
	pick      func(n int) int
}

// DefaultBank returns the built-in question bank.
func DefaultBank() *Bank {
	b, err := ParseBank(bytes.NewReader(defaultBankYAML))
	if err != nil {
		panic(fmt.Sprintf("questions: built-in bank: %v", err))
	}
	return b
}

// LoadBank reads a question bank from a YAML file.
func LoadBank(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := ParseBank(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ParseBank decodes a question bank. Every question must pass validation.
//
//	book: Santiago
//	chapters:
//	  1:
//	    single:
//	      - question: ...
//	        options: [a, b, c, d]
//	        answer: a
func ParseBank(r io.Reader) (*Bank, error) {
	var f bankFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode bank: %w", err)
	}
	b := &Bank{
		Book:      f.Book,
		questions: make(map[int]map[game.HitType][]game.Question),
		pick:      rand.IntN,
	}
	for chapter, levels := range f.Chapters {
		if err := game.ValidateChapter(chapter); err != nil {
			return nil, err
		}
		for level, list := range levels {
			hit, err := game.ParseHitType(level)
			if err != nil {
				return nil, fmt.Errorf("chapter %d: %w", chapter, err)
			}
			for i, bq := range list {
				q := game.Question{Text: bq.Question, Options: bq.Options, Answer: bq.Answer}
				if err := q.Validate(); err != nil {
					return nil, fmt.Errorf("chapter %d %s #%d: %w", chapter, level, i, err)
				}
				if b.questions[chapter] == nil {
					b.questions[chapter] = make(map[game.HitType][]game.Question)
				}
				b.questions[chapter][hit] = append(b.questions[chapter][hit], q)
			}
		}
	}
	return b, nil
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int {
	n := 0
	for _, levels := range b.questions {
		for _, list := range levels {
			n += len(list)
		}
	}
	return n
}

// Generate returns a random question for the chapter and difficulty.
func (b *Bank) Generate(ctx context.Context, chapter int, hit game.HitType) (game.Question, error) {
	if err := ctx.Err(); err != nil {
		return game.Question{}, err
	}
	if err := checkRequest(chapter, hit); err != nil {
		return game.Question{}, err
	}
	list := b.questions[chapter][hit]
	if len(list) == 0 {
		return game.Question{}, fmt.Errorf("%w: no %s question for chapter %d", ErrUnavailable, hit, chapter)
	}
	q := list[b.pick(len(list))]
	q.Options = append([]string(nil), q.Options...)
	return q, nil
}
