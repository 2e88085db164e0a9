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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
)

const credentialFile = "credentials/gemini"

type storedCredential struct {
	APIKey    string `json:"apiKey"`
	UpdatedBy string `json:"updatedBy,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

// CredentialStore keeps the question service API key. With a master key
// the file is encrypted at rest.
type CredentialStore struct {
	dataDir string
	storage *storage.Storage
	mu      sync.Mutex
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(dataDir string, s *storage.Storage) *CredentialStore {
	return &CredentialStore{dataDir: dataDir, storage: s}
}

// Load returns the stored API key, or "" if none was saved.
func (cs *CredentialStore) Load() (string, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var c storedCredential
	if err := cs.storage.ReadDataFile(credentialFile, &c); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("ReadDataFile: %w", err)
	}
	return c.APIKey, nil
}

// Save replaces the stored API key.
func (cs *CredentialStore) Save(apiKey, userId string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c := storedCredential{APIKey: apiKey, UpdatedBy: userId, UpdatedAt: time.Now().UnixMilli()}
	if err := cs.storage.SaveDataFile(credentialFile, &c); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// Clear removes the stored API key.
func (cs *CredentialStore) Clear() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if err := os.Remove(filepath.Join(cs.dataDir, credentialFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
