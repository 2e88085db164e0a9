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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttbt-io/triviaball/backend/game"
)

func TestDefaultBankCoversEveryAtBat(t *testing.T) {
	b := DefaultBank()
	assert.Equal(t, "Santiago", b.Book)
	assert.GreaterOrEqual(t, b.Len(), game.MaxChapter*len(game.HitTypes))

	for chapter := 1; chapter <= game.MaxChapter; chapter++ {
		for _, hit := range game.HitTypes {
			q, err := b.Generate(context.Background(), chapter, hit)
			require.NoError(t, err, "chapter %d %s", chapter, hit)
			assert.NoError(t, q.Validate())
		}
	}
}

func TestBankGenerate_Errors(t *testing.T) {
	b := DefaultBank()
	_, err := b.Generate(context.Background(), 9, game.Single)
	assert.ErrorIs(t, err, game.ErrInvalidChapter)
	_, err = b.Generate(context.Background(), 1, game.HitType(0))
	assert.ErrorIs(t, err, game.ErrInvalidHitType)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Generate(ctx, 1, game.Single)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBankGenerate_Missing(t *testing.T) {
	b, err := ParseBank(strings.NewReader(`
book: Santiago
chapters:
  2:
    doble:
      - question: "¿Cómo es la fe sin obras?"
        options: ["Muerta", "Viva", "Fuerte", "Débil"]
        answer: "Muerta"
`))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())

	q, err := b.Generate(context.Background(), 2, game.Double)
	require.NoError(t, err)
	assert.Equal(t, "Muerta", q.Answer)

	_, err = b.Generate(context.Background(), 1, game.Double)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBankGenerate_ReturnsCopies(t *testing.T) {
	b := DefaultBank()
	b.pick = func(int) int { return 0 }
	q, err := b.Generate(context.Background(), 1, game.Single)
	require.NoError(t, err)
	q.Options[0] = "changed"

	again, err := b.Generate(context.Background(), 1, game.Single)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", again.Options[0])
}

func TestParseBank_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad chapter": `
chapters:
  7:
    single:
      - {question: q, options: [a, b, c, d], answer: a}
`,
		"bad difficulty": `
chapters:
  1:
    bunt:
      - {question: q, options: [a, b, c, d], answer: a}
`,
		"three options": `
chapters:
  1:
    single:
      - {question: q, options: [a, b, c], answer: a}
`,
		"unknown field": `
chapters:
  1:
    single:
      - {question: q, options: [a, b, c, d], answer: a, hint: x}
`,
		"not yaml": "chapters: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBank(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
book: Santiago
chapters:
  3:
    hr:
      - {question: "¿Qué es la lengua?", options: [Fuego, Agua, Tierra, Aire], answer: Fuego}
`), 0o600))
	b, err := LoadBank(path)
	require.NoError(t, err)
	q, err := b.Generate(context.Background(), 3, game.Homerun)
	require.NoError(t, err)
	assert.Equal(t, "Fuego", q.Answer)

	_, err = LoadBank(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
