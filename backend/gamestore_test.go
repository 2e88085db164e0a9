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
	"os"
	"path/filepath"
	"testing"

	"github.com/c2FmZQ/storage"

	"github.com/ttbt-io/triviaball/backend/game"
)

func newTestRecord(id, owner string, updatedAt int64) *GameRecord {
	return &GameRecord{
		ID:            id,
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       owner,
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
		Game:          game.New("Visitantes", "Locales", 3),
	}
}

func TestGameStore(t *testing.T) {
	tempDir := t.TempDir()
	gs := NewGameStore(tempDir, storage.New(tempDir, nil))

	gameId := "10000000-0000-4000-8000-000000000001"
	rec := newTestRecord(gameId, "owner@example.com", 1000)

	if err := gs.SaveGame(rec); err != nil {
		t.Fatalf("SaveGame failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "games", gameId+".json")); err != nil {
		t.Fatalf("game file not written: %v", err)
	}

	// A fresh store reads from disk.
	gs2 := NewGameStore(tempDir, storage.New(tempDir, nil))
	loaded, err := gs2.LoadGame(gameId)
	if err != nil {
		t.Fatalf("LoadGame failed: %v", err)
	}
	if loaded.OwnerID != "owner@example.com" || loaded.Game.Teams[0].Name != "Visitantes" {
		t.Errorf("loaded record mismatch: %+v", loaded)
	}

	// Loaded records are copies.
	loaded.Game.Teams[0].Score = 99
	again, err := gs2.LoadGame(gameId)
	if err != nil {
		t.Fatalf("LoadGame failed: %v", err)
	}
	if again.Game.Teams[0].Score != 0 {
		t.Errorf("cache was modified through a loaded record")
	}

	if _, err := gs.LoadGame("10000000-0000-4000-8000-00000000ffff"); !os.IsNotExist(err) {
		t.Errorf("LoadGame(missing) = %v, want not exist", err)
	}

	if err := gs.DeleteGame(gameId); err != nil {
		t.Fatalf("DeleteGame failed: %v", err)
	}
	if _, err := gs.LoadGame(gameId); !os.IsNotExist(err) {
		t.Errorf("LoadGame after delete = %v, want not exist", err)
	}
}

func TestGameStore_InMemoryAndFlush(t *testing.T) {
	tempDir := t.TempDir()
	gs := NewGameStore(tempDir, storage.New(tempDir, nil))

	gameId := "10000000-0000-4000-8000-000000000002"
	rec := newTestRecord(gameId, "owner@example.com", 1000)
	if err := gs.SaveGameInMemory(rec, false); err != nil {
		t.Fatalf("SaveGameInMemory failed: %v", err)
	}
	if !gs.IsDirty(gameId) {
		t.Fatal("game should be dirty")
	}
	path := filepath.Join(tempDir, "games", gameId+".json")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("game should not be on disk yet: %v", err)
	}

	// The cache serves the dirty game.
	if _, err := gs.LoadGame(gameId); err != nil {
		t.Fatalf("LoadGame of dirty game failed: %v", err)
	}

	if err := gs.FlushAll(); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}
	if gs.IsDirty(gameId) {
		t.Error("game still dirty after flush")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("game not flushed to disk: %v", err)
	}

	// forceSync writes through.
	rec.Game.Teams[1].Score = 4
	if err := gs.SaveGameInMemory(rec, true); err != nil {
		t.Fatalf("SaveGameInMemory(force) failed: %v", err)
	}
	if gs.IsDirty(gameId) {
		t.Error("forced save left the game dirty")
	}
	fresh, err := NewGameStore(tempDir, storage.New(tempDir, nil)).LoadGame(gameId)
	if err != nil {
		t.Fatalf("LoadGame failed: %v", err)
	}
	if fresh.Game.Teams[1].Score != 4 {
		t.Errorf("score on disk = %d, want 4", fresh.Game.Teams[1].Score)
	}

	// Flushing a clean game is a no-op.
	if err := gs.Flush(gameId); err != nil {
		t.Errorf("Flush(clean) = %v", err)
	}
}

func TestGameStore_RejectsInvalidRecord(t *testing.T) {
	tempDir := t.TempDir()
	s := storage.New(tempDir, nil)
	gs := NewGameStore(tempDir, s)

	gameId := "10000000-0000-4000-8000-000000000003"
	rec := newTestRecord(gameId, "owner@example.com", 1000)
	rec.Game.State.Outs = 5
	if err := s.SaveDataFile(gameFilename(gameId), rec); err != nil {
		t.Fatalf("SaveDataFile: %v", err)
	}
	if _, err := gs.LoadGame(gameId); err == nil || os.IsNotExist(err) {
		t.Errorf("LoadGame(invalid) = %v, want validation error", err)
	}

	rec = newTestRecord(gameId, "owner@example.com", 1000)
	rec.SchemaVersion = 99
	if err := s.SaveDataFile(gameFilename(gameId), rec); err != nil {
		t.Fatalf("SaveDataFile: %v", err)
	}
	if _, err := gs.LoadGame(gameId); err == nil {
		t.Error("LoadGame accepted an unknown schema version")
	}
}

func TestGameStore_ListGames(t *testing.T) {
	tempDir := t.TempDir()
	gs := NewGameStore(tempDir, storage.New(tempDir, nil))

	ids := []string{
		"10000000-0000-4000-8000-00000000000a",
		"10000000-0000-4000-8000-00000000000b",
		"10000000-0000-4000-8000-00000000000c",
	}
	if err := gs.SaveGame(newTestRecord(ids[0], "alice@example.com", 100)); err != nil {
		t.Fatal(err)
	}
	if err := gs.SaveGame(newTestRecord(ids[1], "bob@example.com", 200)); err != nil {
		t.Fatal(err)
	}
	// In memory only, still listed.
	if err := gs.SaveGameInMemory(newTestRecord(ids[2], "Alice@Example.com", 300), false); err != nil {
		t.Fatal(err)
	}

	games, err := gs.ListGames("alice@example.com")
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("ListGames returned %d games, want 2: %+v", len(games), games)
	}
	if games[0].ID != ids[2] || games[1].ID != ids[0] {
		t.Errorf("games not sorted by update time: %s, %s", games[0].ID, games[1].ID)
	}
	if games[1].Away != "Visitantes" || games[1].Home != "Locales" || games[1].Inning != 1 {
		t.Errorf("unexpected summary: %+v", games[1])
	}

	games, err = gs.ListGames("nobody@example.com")
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(games) != 0 {
		t.Errorf("ListGames(nobody) = %+v, want none", games)
	}
}
