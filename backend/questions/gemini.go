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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
)

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	APIKey      string
	BaseURL     string        // default https://generativelanguage.googleapis.com
	Model       string        // default gemini-2.5-flash
	Book        string        // default Santiago
	Temperature float64       // default 0.8
	Timeout     time.Duration // default 60s
	HTTPClient  *http.Client
	Debug       bool
}

func (o *GeminiOptions) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.Book == "" {
		o.Book = "Santiago"
	}
	if o.Temperature == 0 {
		o.Temperature = 0.8
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
}

// GeminiClient generates questions with the Google Generative Language API.
type GeminiClient struct {
	baseURL string
	model   string
	apiKey  string
	book    string
	temp    float64
	debug   bool
	do      func(*http.Request) (*http.Response, error)
}

// NewGeminiClient returns a client bound to opts.APIKey. The key is checked
// for shape only; use Check to confirm the service accepts it.
func NewGeminiClient(opts GeminiOptions) (*GeminiClient, error) {
	if err := ValidateAPIKey(opts.APIKey); err != nil {
		return nil, err
	}
	opts.defaults()
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("gemini: invalid base url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		apiKey:  opts.APIKey,
		book:    opts.Book,
		temp:    opts.Temperature,
		debug:   opts.Debug,
		do:      hc.Do,
	}, nil
}

// ValidateAPIKey rejects keys that cannot possibly be valid.
func ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: missing api key", ErrInvalidCredential)
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("%w: api key contains whitespace", ErrInvalidCredential)
	}
	if len(key) > 256 {
		return fmt.Errorf("%w: api key too long", ErrInvalidCredential)
	}
	return nil
}

type gmPart struct {
	Text string `json:"text"`
}

type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}

type gmGenerationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	Temperature      float64         `json:"temperature"`
}

type gmReq struct {
	Contents         []gmContent         `json:"contents"`
	GenerationConfig *gmGenerationConfig `json:"generationConfig,omitempty"`
}

type gmResp struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

var questionSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "question": {"type": "STRING", "description": "La pregunta sobre el libro."},
    "options": {"type": "ARRAY", "description": "Cuatro opciones de respuesta, una de las cuales es correcta.", "items": {"type": "STRING"}},
    "answer": {"type": "STRING", "description": "La respuesta correcta, que debe coincidir exactamente con una de las opciones."}
  },
  "required": ["question", "options", "answer"]
}`)

func (c *GeminiClient) prompt(chapter int, hit game.HitType) string {
	return fmt.Sprintf("Por favor, genera una pregunta de opción múltiple en español sobre el capítulo %d del libro de %s en la Biblia. "+
		"La dificultad de la pregunta debe ser %s. La pregunta debe tener %d opciones de respuesta, donde solo una es la correcta. "+
		"Asegúrate de que las opciones incorrectas sean plausibles pero claramente equivocadas según el texto bíblico. "+
		"La respuesta debe ser una de las opciones.",
		chapter, c.book, difficulty[hit], game.OptionCount)
}

func (c *GeminiClient) endpoint(suffix string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v1beta/models/" + url.PathEscape(c.model) + suffix)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Generate asks the model for one question and validates its shape.
func (c *GeminiClient) Generate(ctx context.Context, chapter int, hit game.HitType) (game.Question, error) {
	if err := checkRequest(chapter, hit); err != nil {
		return game.Question{}, err
	}
	body, err := json.Marshal(&gmReq{
		Contents: []gmContent{{Role: "user", Parts: []gmPart{{Text: c.prompt(chapter, hit)}}}},
		GenerationConfig: &gmGenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   questionSchema,
			Temperature:      c.temp,
		},
	})
	if err != nil {
		return game.Question{}, fmt.Errorf("gemini: encode: %w", err)
	}
	target, err := c.endpoint(":generateContent")
	if err != nil {
		return game.Question{}, fmt.Errorf("gemini: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return game.Question{}, fmt.Errorf("gemini: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return game.Question{}, err
		}
		return game.Question{}, fmt.Errorf("%w: %v", ErrUnavailable, redact(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return game.Question{}, err
	}

	var gr gmResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&gr); err != nil {
		return game.Question{}, fmt.Errorf("%w: decode response: %v", game.ErrMalformedQuestion, err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return game.Question{}, fmt.Errorf("%w: empty response", game.ErrMalformedQuestion)
	}
	q, err := parseQuestion(gr.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		if c.debug {
			log.Printf("[QUESTIONS] Generated question has invalid format: %v", err)
		}
		return game.Question{}, err
	}
	return q, nil
}

// Check verifies that the service accepts the API key.
func (c *GeminiClient) Check(ctx context.Context) error {
	target, err := c.endpoint("")
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("gemini: new request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, redact(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return statusError(resp)
}

func statusError(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(slurp))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: gemini upstream %d", ErrInvalidCredential, resp.StatusCode)
	case http.StatusBadRequest:
		// An unknown key is reported as 400 API_KEY_INVALID.
		if strings.Contains(msg, "API_KEY_INVALID") {
			return fmt.Errorf("%w: gemini upstream %d", ErrInvalidCredential, resp.StatusCode)
		}
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return fmt.Errorf("%w: gemini upstream %d: %s", ErrUnavailable, resp.StatusCode, msg)
}

// parseQuestion decodes the model's JSON text, tolerating a markdown fence.
func parseQuestion(text string) (game.Question, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	var q game.Question
	if err := json.Unmarshal([]byte(text), &q); err != nil {
		return game.Question{}, fmt.Errorf("%w: %v", game.ErrMalformedQuestion, err)
	}
	if err := q.Validate(); err != nil {
		return game.Question{}, err
	}
	return q, nil
}

// redact removes the API key from s; url.Error embeds the request URL.
func redact(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, "REDACTED")
}
