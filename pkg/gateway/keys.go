package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AccountInfo is the record behind one API key.
type AccountInfo struct {
	Address   string    `json:"address"`
	Nonce     uint64    `json:"nonce"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKeyStore maps API keys to caller accounts. The backing file is replaced
// wholesale on every mutation under the store lock.
type APIKeyStore struct {
	path string

	mu       sync.Mutex
	accounts map[string]AccountInfo
}

// OpenAPIKeyStore loads the store from path, creating an empty store file if
// none exists.
func OpenAPIKeyStore(path string) (*APIKeyStore, error) {
	store := &APIKeyStore{path: path, accounts: make(map[string]AccountInfo)}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &store.accounts); err != nil {
			return nil, fmt.Errorf("failed to parse key store %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create key store directory: %w", err)
			}
		}
		if err := store.save(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to read key store %s: %w", path, err)
	}

	return store, nil
}

// Lookup returns the address and current nonce for an API key.
func (s *APIKeyStore) Lookup(apiKey string) (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.accounts[apiKey]
	if !ok {
		return "", 0, fmt.Errorf("unknown API key")
	}
	return info.Address, info.Nonce, nil
}

// IncrementNonce advances the nonce for an API key. Nonces never rewind.
func (s *APIKeyStore) IncrementNonce(apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.accounts[apiKey]
	if !ok {
		return fmt.Errorf("unknown API key")
	}
	info.Nonce++
	s.accounts[apiKey] = info
	return s.save()
}

// GenerateKey mints a new API key bound to an address.
func (s *APIKeyStore) GenerateKey(name, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apiKey := "mp-" + uuid.NewString()
	s.accounts[apiKey] = AccountInfo{
		Address:   address,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.save(); err != nil {
		delete(s.accounts, apiKey)
		return "", err
	}
	return apiKey, nil
}

// RevokeKey removes an API key.
func (s *APIKeyStore) RevokeKey(apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[apiKey]; !ok {
		return fmt.Errorf("unknown API key")
	}
	delete(s.accounts, apiKey)
	return s.save()
}

// All snapshots every account keyed by API key.
func (s *APIKeyStore) All() map[string]AccountInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]AccountInfo, len(s.accounts))
	for key, info := range s.accounts {
		out[key] = info
	}
	return out
}

// save must be called with the lock held.
func (s *APIKeyStore) save() error {
	raw, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write key store: %w", err)
	}
	return nil
}
