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
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/google/uuid"

	"github.com/ttbt-io/triviaball/backend/game"
	"github.com/ttbt-io/triviaball/backend/questions"
)

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func hubBusyResponse(w http.ResponseWriter, retryAfter string) {
	w.Header().Set("Retry-After", retryAfter)
	http.Error(w, "Too Many Requests: Server is busy", http.StatusTooManyRequests)
}

// QuestionClientFunc builds a question generator for an API key. It
// returns an error wrapping questions.ErrInvalidCredential when the key
// is rejected.
type QuestionClientFunc func(ctx context.Context, apiKey string) (questions.Generator, error)

// Options represent server options.
type Options struct {
	Addr        string
	Cert        *tls.Certificate
	Listener    net.Listener
	DataDir     string
	UseMockAuth bool
	Debug       bool
	Storage     *storage.Storage
	GameStore   *GameStore
	Credentials *CredentialStore
	Stats       *Stats

	// Game Options
	Generator         questions.Generator // nil: no questions until a key is set
	NewQuestionClient QuestionClientFunc  // nil: Gemini
	AnswerTimeout     time.Duration
	TotalInnings      int

	// Auth Options
	AuthCookieName string
	AuthJWKSURL    string
	Admin          string
}

// GeminiQuestionClient returns a QuestionClientFunc that checks the key
// against the Gemini API before accepting it.
func GeminiQuestionClient(debug bool) QuestionClientFunc {
	return func(ctx context.Context, apiKey string) (questions.Generator, error) {
		c, err := questions.NewGeminiClient(questions.GeminiOptions{APIKey: apiKey, Debug: debug})
		if err != nil {
			return nil, err
		}
		if err := c.Check(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	hm         *HubManager
	store      *GameStore
}

// Shutdown stops accepting requests, stops every game hub and writes
// pending game state to disk.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	s.hm.Close()
	if err := s.store.FlushAll(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	return errors.Join(errs...)
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	if opts.Storage == nil {
		if opts.DataDir == "" {
			opts.DataDir = "data"
		}
		opts.Storage = storage.New(opts.DataDir, nil)
	}
	if opts.GameStore == nil {
		opts.GameStore = NewGameStore(opts.DataDir, opts.Storage)
	}
	hm, handler := NewServerHandler(opts)

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	go func() {
		var err error
		switch {
		case opts.Listener != nil && httpServer.TLSConfig != nil:
			log.Printf("Starting HTTPS server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.ServeTLS(opts.Listener, "", "")
		case opts.Listener != nil:
			log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.Serve(opts.Listener)
		case httpServer.TLSConfig != nil:
			log.Printf("Starting HTTPS server on %s...", opts.Addr)
			err = httpServer.ListenAndServeTLS("", "")
		default:
			log.Printf("Starting HTTP server on %s...", opts.Addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
		}
	}()

	return &Server{httpServer: httpServer, hm: hm, store: opts.GameStore}, nil
}

// NewServerHandler creates and configures the HTTP handler for the server.
func NewServerHandler(opts Options) (*HubManager, http.Handler) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, nil)
	}
	store := opts.GameStore
	if store == nil {
		store = NewGameStore(opts.DataDir, opts.Storage)
	}
	store.Debug = opts.Debug
	creds := opts.Credentials
	if creds == nil {
		creds = NewCredentialStore(opts.DataDir, opts.Storage)
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}
	newClient := opts.NewQuestionClient
	if newClient == nil {
		newClient = GeminiQuestionClient(opts.Debug)
	}

	hm := NewHubManager(store, opts.Generator, stats)
	hm.Debug = opts.Debug
	if opts.AnswerTimeout > 0 {
		hm.AnswerTimeout = opts.AnswerTimeout
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/games", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		req, err := parseCreateGame(body)
		if err != nil {
			writeError(w, err)
			return
		}
		innings := req.Innings
		if innings == 0 {
			innings = opts.TotalInnings
		}
		now := time.Now().UnixMilli()
		rec := &GameRecord{
			ID:            uuid.NewString(),
			SchemaVersion: CurrentSchemaVersion,
			OwnerID:       userId,
			Public:        req.Public,
			CreatedAt:     now,
			UpdatedAt:     now,
			Game:          game.New(req.Away, req.Home, innings),
		}
		if err := store.SaveGame(rec); err != nil {
			log.Printf("[STORE] Error saving new game: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		stats.Inc(StatGamesCreated, 1)
		log.Printf("[HUB] Game %s created by %s", rec.ID, maskEmail(userId))
		writeJSON(w, http.StatusCreated, newSnapshot(rec, "", time.Now()))
	})

	mux.HandleFunc("GET /api/games", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}
		games, err := store.ListGames(userId)
		if err != nil {
			log.Printf("[STORE] Error listing games: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if games, err = filterGames(games, r.URL.Query().Get("q")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"games": games})
	})

	mux.HandleFunc("GET /api/games/{id}", func(w http.ResponseWriter, r *http.Request) {
		gameId, ok := pathGameID(w, r)
		if !ok {
			return
		}
		snap, err := hm.Do(r.Context(), gameId, HubRequest{Type: ReqTypeHTTPLoad, UserId: getUserID(r)})
		if errors.Is(err, errHubBusy) {
			hubBusyResponse(w, retryAfterLoad)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := json.Marshal(snap)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		etag := generateETag(data)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("DELETE /api/games/{id}", func(w http.ResponseWriter, r *http.Request) {
		gameId, ok := pathGameID(w, r)
		if !ok {
			return
		}
		if _, err := hm.Do(r.Context(), gameId, HubRequest{Type: ReqTypeHTTPDelete, UserId: getUserID(r)}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// gameEvent serves the routes that feed one event into a game.
	gameEvent := func(parse func([]byte) (game.Event, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			gameId, ok := pathGameID(w, r)
			if !ok {
				return
			}
			body, ok := readBody(w, r)
			if !ok {
				return
			}
			ev, err := parse(body)
			if err != nil {
				writeError(w, err)
				return
			}
			snap, err := hm.Do(r.Context(), gameId, HubRequest{Type: ReqTypeHTTPEvent, UserId: getUserID(r), Event: ev})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		}
	}
	mux.HandleFunc("POST /api/games/{id}/select", gameEvent(func(b []byte) (game.Event, error) {
		return parseSelect(b)
	}))
	mux.HandleFunc("POST /api/games/{id}/cancel", gameEvent(func([]byte) (game.Event, error) {
		return game.CancelSelection{}, nil
	}))
	mux.HandleFunc("POST /api/games/{id}/answer", gameEvent(func(b []byte) (game.Event, error) {
		return parseAnswer(b)
	}))

	mux.HandleFunc("POST /api/credential", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}
		if !isServerAdmin(opts, userId) {
			http.Error(w, "Forbidden: Only the administrator can change the API key", http.StatusForbidden)
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		apiKey, err := parseCredential(body)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		gen, err := newClient(ctx, apiKey)
		if err != nil {
			log.Printf("[QUESTIONS] API key from %s rejected: %v", maskEmail(userId), err)
			switch {
			case errors.Is(err, questions.ErrInvalidCredential):
				http.Error(w, "Bad Request: La clave de la API no es válida", http.StatusBadRequest)
			case errors.Is(err, questions.ErrRateLimited):
				hubBusyResponse(w, "30")
			default:
				http.Error(w, "Bad Gateway: question service unavailable", http.StatusBadGateway)
			}
			return
		}
		if err := creds.Save(apiKey, userId); err != nil {
			log.Printf("[STORE] Error saving credential: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		hm.SetGenerator(gen)
		log.Printf("[QUESTIONS] API key updated by %s", maskEmail(userId))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hm, stats, w, r)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats.Payload())
	})

	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		userId := getUserID(r)
		if userId == "" {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"email": userId,
			"admin": isServerAdmin(opts, userId),
		})
	})

	handler := http.Handler(mux)
	if opts.UseMockAuth {
		handler = mockAuthMiddleware(handler)
	} else {
		handler = jwtAuthMiddleware(opts, handler)
	}
	handler = loggingMiddleware(opts.Debug, handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)

	return hm, handler
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId := getUserID(r)
	if userId == "" || !isValidEmail(userId) {
		http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
		return "", false
	}
	return userId, true
}

func pathGameID(w http.ResponseWriter, r *http.Request) (string, bool) {
	gameId := r.PathValue("id")
	if !isValidUUID(gameId) {
		http.Error(w, "Bad Request: gameId is missing or invalid", http.StatusBadRequest)
		return "", false
	}
	return strings.ToLower(gameId), true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "Bad Request: body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// writeError maps hub, game and validation errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errHubBusy):
		hubBusyResponse(w, retryAfterEvent)
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, "Not Found: Game not found", http.StatusNotFound)
	case errors.Is(err, ErrUnauthenticated):
		http.Error(w, "Unauthenticated: Login required", http.StatusForbidden)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "Forbidden: You do not have access to this game", http.StatusForbidden)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, game.ErrInvalidChapter),
		errors.Is(err, game.ErrInvalidHitType),
		errors.Is(err, game.ErrInvalidTeams):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, game.ErrStaleEvent),
		errors.Is(err, game.ErrInvalidTransition),
		errors.Is(err, game.ErrGameOver):
		http.Error(w, "Conflict: "+err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		log.Printf("Internal Server Error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// cacheControlMiddleware marks API responses as private and uncacheable.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP
// request. In debug mode it also logs the caller and the elapsed time.
func loggingMiddleware(debug bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !debug {
			log.Printf("Received request: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[DEBUG BACKEND] %s %s user=%s took %s", r.Method, r.URL.Path, maskEmail(getUserID(r)), time.Since(start))
	})
}
