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
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/c2FmZQ/storage"

	"github.com/ttbt-io/triviaball/backend/game"
)

// GameRecord is a game as stored on disk, together with its ownership.
type GameRecord struct {
	ID            string     `json:"id"`
	SchemaVersion int        `json:"schemaVersion"`
	OwnerID       string     `json:"ownerId"`
	Public        bool       `json:"public"`
	CreatedAt     int64      `json:"createdAt"` // Unix millis
	UpdatedAt     int64      `json:"updatedAt"`
	Game          *game.Game `json:"game"`
}

func (rec *GameRecord) validate() error {
	if rec.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version %d", rec.SchemaVersion)
	}
	if rec.Game == nil {
		return errors.New("missing game state")
	}
	return rec.Game.Validate()
}

// GameStore manages game persistence to disk.
type GameStore struct {
	DataDir string
	Debug   bool
	storage *storage.Storage
	mu      sync.Map // gameId -> *sync.RWMutex guarding the file
	cache   sync.Map // gameId -> []byte, latest JSON

	dirtyMu sync.Mutex
	dirty   map[string]bool
}

// NewGameStore creates a new GameStore.
func NewGameStore(dataDir string, s *storage.Storage) *GameStore {
	return &GameStore{
		DataDir: dataDir,
		storage: s,
		dirty:   make(map[string]bool),
	}
}

func gameFilename(gameId string) string {
	return filepath.Join("games", url.PathEscape(gameId)+".json")
}

func (gs *GameStore) lock(gameId string) *sync.RWMutex {
	m, _ := gs.mu.LoadOrStore(gameId, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

// SaveGame writes the record to disk.
func (gs *GameStore) SaveGame(rec *GameRecord) error {
	mutex := gs.lock(rec.ID)
	mutex.Lock()
	defer mutex.Unlock()

	if err := gs.storage.SaveDataFile(gameFilename(rec.ID), rec); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	if jsonBytes, err := json.Marshal(rec); err == nil {
		gs.cache.Store(rec.ID, jsonBytes)
	}

	gs.dirtyMu.Lock()
	delete(gs.dirty, rec.ID)
	gs.dirtyMu.Unlock()
	return nil
}

// SaveGameInMemory updates the cache and marks the game dirty. With
// forceSync it writes through to disk like SaveGame.
func (gs *GameStore) SaveGameInMemory(rec *GameRecord, forceSync bool) error {
	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	gs.cache.Store(rec.ID, jsonBytes)

	if forceSync {
		return gs.SaveGame(rec)
	}

	gs.dirtyMu.Lock()
	gs.dirty[rec.ID] = true
	gs.dirtyMu.Unlock()
	return nil
}

// Flush persists a game to disk if it is dirty.
func (gs *GameStore) Flush(gameId string) error {
	gs.dirtyMu.Lock()
	isDirty := gs.dirty[gameId]
	gs.dirtyMu.Unlock()
	if !isDirty {
		return nil
	}

	val, ok := gs.cache.Load(gameId)
	if !ok {
		gs.dirtyMu.Lock()
		delete(gs.dirty, gameId)
		gs.dirtyMu.Unlock()
		return fmt.Errorf("game %s marked dirty but not found in cache", gameId)
	}
	var rec GameRecord
	if err := json.Unmarshal(val.([]byte), &rec); err != nil {
		return fmt.Errorf("unmarshal cached game %s: %w", gameId, err)
	}
	return gs.SaveGame(&rec)
}

// FlushAll persists every dirty game.
func (gs *GameStore) FlushAll() error {
	var errs []error
	for _, id := range gs.dirtyIDs() {
		if err := gs.Flush(id); err != nil {
			errs = append(errs, fmt.Errorf("flush game %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (gs *GameStore) dirtyIDs() []string {
	gs.dirtyMu.Lock()
	defer gs.dirtyMu.Unlock()
	ids := make([]string, 0, len(gs.dirty))
	for id := range gs.dirty {
		ids = append(ids, id)
	}
	return ids
}

// IsDirty reports whether the game has changes not yet written to disk.
func (gs *GameStore) IsDirty(gameId string) bool {
	gs.dirtyMu.Lock()
	defer gs.dirtyMu.Unlock()
	return gs.dirty[gameId]
}

// LoadGame returns the stored record, or an error satisfying
// os.IsNotExist when there is none.
func (gs *GameStore) LoadGame(gameId string) (*GameRecord, error) {
	if val, ok := gs.cache.Load(gameId); ok {
		var rec GameRecord
		if err := json.Unmarshal(val.([]byte), &rec); err == nil {
			if gs.Debug {
				log.Printf("[STORE] Cache hit for game %s", gameId)
			}
			return &rec, nil
		}
		gs.cache.Delete(gameId)
	}

	mutex := gs.lock(gameId)
	mutex.RLock()
	defer mutex.RUnlock()

	var rec GameRecord
	if err := gs.storage.ReadDataFile(gameFilename(gameId), &rec); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	if err := rec.validate(); err != nil {
		return nil, fmt.Errorf("game %s: %w", gameId, err)
	}
	if jsonBytes, err := json.Marshal(&rec); err == nil {
		gs.cache.Store(gameId, jsonBytes)
	}
	return &rec, nil
}

// DeleteGame discards a game from memory and disk.
func (gs *GameStore) DeleteGame(gameId string) error {
	mutex := gs.lock(gameId)
	mutex.Lock()
	defer mutex.Unlock()

	gs.cache.Delete(gameId)
	gs.dirtyMu.Lock()
	delete(gs.dirty, gameId)
	gs.dirtyMu.Unlock()

	if err := os.Remove(filepath.Join(gs.DataDir, gameFilename(gameId))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete game file: %w", err)
	}
	return nil
}

// GameSummary is the listing entry for a game.
type GameSummary struct {
	ID        string      `json:"id"`
	Home      string      `json:"home"`
	Away      string      `json:"away"`
	Score     [2]int      `json:"score"`
	Inning    int         `json:"inning"`
	Status    game.Status `json:"status"`
	OwnerID   string      `json:"ownerId"`
	Public    bool        `json:"public"`
	UpdatedAt int64       `json:"updatedAt"`
}

func summarize(rec *GameRecord) GameSummary {
	g := rec.Game
	return GameSummary{
		ID:        rec.ID,
		Home:      g.Teams[1].Name,
		Away:      g.Teams[0].Name,
		Score:     [2]int{g.Teams[0].Score, g.Teams[1].Score},
		Inning:    g.State.Inning,
		Status:    g.Status,
		OwnerID:   rec.OwnerID,
		Public:    rec.Public,
		UpdatedAt: rec.UpdatedAt,
	}
}

// ListAllGames iterates over every stored game, including games that only
// exist in the cache so far.
func (gs *GameStore) ListAllGames() iter.Seq2[*GameRecord, error] {
	return func(yield func(*GameRecord, error) bool) {
		files, err := os.ReadDir(filepath.Join(gs.DataDir, "games"))
		if err != nil && !os.IsNotExist(err) {
			yield(nil, fmt.Errorf("could not read games directory: %w", err))
			return
		}

		seen := make(map[string]bool)
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			gameId, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
			if err != nil {
				continue
			}
			seen[gameId] = true
			rec, err := gs.LoadGame(gameId)
			if err != nil {
				log.Printf("[STORE] Warning: could not load game %s: %v", gameId, err)
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}

		for _, id := range gs.dirtyIDs() {
			if seen[id] {
				continue
			}
			rec, err := gs.LoadGame(id)
			if err != nil {
				log.Printf("[STORE] Failed to load dirty game %s: %v", id, err)
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// ListGames returns the games owned by ownerId, most recently updated first.
func (gs *GameStore) ListGames(ownerId string) ([]GameSummary, error) {
	ownerId = normalizeEmail(ownerId)
	out := make([]GameSummary, 0)
	for rec, err := range gs.ListAllGames() {
		if err != nil {
			return nil, err
		}
		if normalizeEmail(rec.OwnerID) == ownerId {
			out = append(out, summarize(rec))
		}
	}
	slices.SortFunc(out, func(a, b GameSummary) int {
		if a.UpdatedAt != b.UpdatedAt {
			if a.UpdatedAt > b.UpdatedAt {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
