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

// Command readfile prints stored games as JSON, decrypting them with
// TB_MASTER_KEY when the data directory is encrypted. With no arguments it
// prints every game.
//
//	readfile --data-dir=data games/<id>.json credentials/gemini
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/caarlos0/env/v11"

	"github.com/ttbt-io/triviaball/backend"
)

type config struct {
	MasterKey string `env:"TB_MASTER_KEY"`
	DataDir   string `env:"TB_DATA_DIR" envDefault:"data"`
}

// credential mirrors the stored API key file. The key itself is masked.
type credential struct {
	APIKey    string `json:"apiKey"`
	UpdatedBy string `json:"updatedBy,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	dataDir := flag.String("data-dir", cfg.DataDir, "Directory for game data")
	showKey := flag.Bool("show-key", false, "Print the stored API key in clear text")
	flag.Parse()

	var masterKey crypto.MasterKey
	keyFile := filepath.Join(*dataDir, "master.key")
	if cfg.MasterKey != "" {
		mk, err := crypto.ReadMasterKey([]byte(cfg.MasterKey), keyFile)
		if err != nil {
			log.Fatalf("Failed to read master key: %v", err)
		}
		masterKey = mk
	} else if _, err := os.Stat(keyFile); err == nil {
		log.Fatalf("%s exists but TB_MASTER_KEY is not set. Refusing to read encrypted data in unencrypted mode.", keyFile)
	}
	store := storage.New(*dataDir, masterKey)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if flag.NArg() == 0 {
		gs := backend.NewGameStore(*dataDir, store)
		for rec, err := range gs.ListAllGames() {
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("=========== %s ===========\n", rec.ID)
			if err := enc.Encode(rec); err != nil {
				log.Printf("JSON: %s: %v", rec.ID, err)
			}
		}
		return
	}

	for _, arg := range flag.Args() {
		arg = strings.TrimPrefix(strings.TrimPrefix(arg, *dataDir), "/")
		var obj any
		switch {
		case strings.HasPrefix(arg, "games/"):
			obj = new(backend.GameRecord)
		case strings.HasPrefix(arg, "credentials/"):
			obj = new(credential)
		default:
			log.Printf("%s: unknown file type", arg)
			continue
		}
		if err := store.ReadDataFile(arg, obj); err != nil {
			log.Printf("%s: %v", arg, err)
			continue
		}
		if c, ok := obj.(*credential); ok && !*showKey && len(c.APIKey) > 4 {
			c.APIKey = c.APIKey[:4] + strings.Repeat("*", len(c.APIKey)-4)
		}
		fmt.Printf("=========== %s ===========\n", arg)
		if err := enc.Encode(obj); err != nil {
			log.Printf("JSON: %s: %v", arg, err)
		}
	}
}
