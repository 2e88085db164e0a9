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

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/caarlos0/env/v11"

	"github.com/ttbt-io/triviaball/backend"
	"github.com/ttbt-io/triviaball/backend/game"
	"github.com/ttbt-io/triviaball/backend/questions"
)

// envConfig holds the settings read from the environment. Flags given on
// the command line take precedence.
type envConfig struct {
	MasterKey     string        `env:"TB_MASTER_KEY"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	DataDir       string        `env:"TB_DATA_DIR" envDefault:"data"`
	AnswerTimeout time.Duration `env:"TB_ANSWER_TIMEOUT" envDefault:"60s"`
	TotalInnings  int           `env:"TB_TOTAL_INNINGS" envDefault:"3"`
}

func parseEnv() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// main starts the web server and registers the API handlers.
func main() {
	cfg, err := parseEnv()
	if err != nil {
		log.Fatal(err)
	}

	addr := flag.String("addr", ":8080", "The TCP address to listen to")
	useMockAuth := flag.Bool("use-mock-auth", false, "Use Mock Authentication. For testing purposes only.")
	debugMode := flag.Bool("debug", false, "Enable debug mode")
	dataDir := flag.String("data-dir", cfg.DataDir, "Directory for game data (TB_DATA_DIR)")
	tlsCert := flag.String("tls-cert", "", "Path to TLS certificate")
	tlsKey := flag.String("tls-key", "", "Path to TLS key")
	authCookieName := flag.String("auth-cookie-name", "triviaball_auth", "Name of the cookie containing the JWT")
	authJWKSURL := flag.String("auth-jwks-url", "", "URL of the JWKS endpoint used to verify JWTs")
	admin := flag.String("admin", "", "Email of the user allowed to change the API key. Empty means any signed-in user.")
	answerTimeout := flag.Duration("answer-timeout", cfg.AnswerTimeout, "Time allowed to answer a question (TB_ANSWER_TIMEOUT)")
	totalInnings := flag.Int("innings", cfg.TotalInnings, "Default number of innings per game (TB_TOTAL_INNINGS)")
	questionBank := flag.String("question-bank", "", "YAML question bank used when no API key is configured")
	flag.Parse()

	if *totalInnings < 1 || *totalInnings > backend.MaxInnings {
		log.Fatalf("--innings must be between 1 and %d", backend.MaxInnings)
	}
	if *answerTimeout <= 0 {
		log.Fatal("--answer-timeout must be positive")
	}

	var mainTLSCert *tls.Certificate
	if *tlsCert != "" && *tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatalf("Failed to load TLS cert/key: %v", err)
		}
		mainTLSCert = &cert
	}

	// Initialize Encryption Key and Storage
	var masterKey crypto.MasterKey
	keyFile := filepath.Join(*dataDir, "master.key")
	if passphrase := cfg.MasterKey; passphrase != "" {
		os.MkdirAll(*dataDir, 0755)

		masterKey, err = crypto.ReadMasterKey([]byte(passphrase), keyFile)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Fatalf("Failed to read master key: %v", err)
			}
			log.Println("Initializing new master encryption key...")
			if masterKey, err = crypto.CreateMasterKey(); err != nil {
				log.Fatalf("Failed to create master key: %v", err)
			}
			if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
				log.Fatalf("Failed to save master key: %v", err)
			}
		} else {
			log.Println("Loaded master encryption key.")
		}
	} else {
		if _, err := os.Stat(keyFile); err == nil {
			log.Fatalf("Critical Security Error: %s exists but TB_MASTER_KEY is not set. Refusing to start in unencrypted mode to prevent data corruption or exposure.", keyFile)
		}
		log.Println("Warning: No TB_MASTER_KEY provided. Data, including the API key, will be stored UNENCRYPTED.")
	}

	store := storage.New(*dataDir, masterKey)
	store.EnableCompression(true)
	creds := backend.NewCredentialStore(*dataDir, store)

	gen, err := questionSource(creds, cfg.GeminiAPIKey, *questionBank, *debugMode)
	if err != nil {
		log.Fatal(err)
	}

	server, err := backend.StartServer(backend.Options{
		Addr:           *addr,
		Cert:           mainTLSCert,
		DataDir:        *dataDir,
		UseMockAuth:    *useMockAuth,
		Debug:          *debugMode,
		Storage:        store,
		Credentials:    creds,
		Generator:      gen,
		AnswerTimeout:  *answerTimeout,
		TotalInnings:   *totalInnings,
		AuthCookieName: *authCookieName,
		AuthJWKSURL:    *authJWKSURL,
		Admin:          *admin,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}

// questionSource picks the initial question generator: a stored API key,
// then GEMINI_API_KEY, then the offline bank. A key that is given but
// rejected is an error; the bank is only used when no key exists.
func questionSource(creds *backend.CredentialStore, envKey, bankPath string, debug bool) (questions.Generator, error) {
	key, err := creds.Load()
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	source := "stored credential"
	if key == "" {
		key, source = envKey, "GEMINI_API_KEY"
	}
	if key != "" {
		c, err := questions.NewGeminiClient(questions.GeminiOptions{APIKey: key, Debug: debug})
		if err != nil {
			return nil, fmt.Errorf("%s rejected: %w", source, err)
		}
		log.Printf("[QUESTIONS] Using Gemini with the %s", source)
		return c, nil
	}
	if bankPath != "" {
		b, err := questions.LoadBank(bankPath)
		if err != nil {
			return nil, err
		}
		log.Printf("[QUESTIONS] Using question bank %s (%d questions)", bankPath, b.Len())
		return b, nil
	}
	b := questions.DefaultBank()
	log.Printf("[QUESTIONS] No API key configured. Using the built-in bank (%d questions, %d chapters)", b.Len(), game.MaxChapter)
	return b, nil
}
