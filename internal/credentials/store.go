// Package credentials keeps the list of Superset accounts and which one is
// active. Usernames live in a JSON file; passwords live in the OS keyring.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ErrNotFound is returned when a username is not in the store.
var ErrNotFound = errors.New("credential not found")

// Credential is one Superset account.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Active   bool   `json:"active"`
}

// Store persists credentials. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	ring keyring.Keyring
}

// NewStore returns a store writing its index to path and secrets to ring.
func NewStore(path string, ring keyring.Keyring) *Store {
	return &Store{path: path, ring: ring}
}

func secretKey(username string) string {
	return "superset:" + username
}

// ListCredentials returns every credential with its password resolved.
func (s *Store) ListCredentials(ctx context.Context) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := s.ring.Get(secretKey(entries[i].Username))
		if err != nil {
			if errors.Is(err, keyring.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("read password for %s: %w", entries[i].Username, err)
		}
		entries[i].Password = string(item.Data)
	}
	return entries, nil
}

// Entries returns credentials without touching the keyring.
func (s *Store) Entries() ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Add stores or updates a credential. The first credential added is always active.
func (s *Store) Add(username, password string, activate bool) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	if err := s.ring.Set(keyring.Item{
		Key:         secretKey(username),
		Data:        []byte(password),
		Label:       "Superset " + username,
		Description: "sqlrunner Superset password",
	}); err != nil {
		return fmt.Errorf("store password: %w", err)
	}

	found := false
	for i := range entries {
		if entries[i].Username == username {
			found = true
		}
	}
	if !found {
		entries = append(entries, Credential{Username: username})
	}
	if activate || len(entries) == 1 {
		setActive(entries, username)
	}
	return s.write(entries)
}

// Activate marks username as the only active credential.
func (s *Store) Activate(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	if !setActive(entries, username) {
		return fmt.Errorf("%s: %w", username, ErrNotFound)
	}
	return s.write(entries)
}

// Remove deletes a credential and its password. Removing the active credential
// leaves no credential active.
func (s *Store) Remove(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, c := range entries {
		if c.Username == username {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return fmt.Errorf("%s: %w", username, ErrNotFound)
	}
	if err := s.ring.Remove(secretKey(username)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove password: %w", err)
	}
	return s.write(kept)
}

// Active returns the active credential with its password, or ErrNotFound.
func Active(list []Credential) (Credential, error) {
	for _, c := range list {
		if c.Active {
			return c, nil
		}
	}
	return Credential{}, ErrNotFound
}

func setActive(entries []Credential, username string) bool {
	found := false
	for _, c := range entries {
		if c.Username == username {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for i := range entries {
		entries[i].Active = entries[i].Username == username
	}
	return true
}

func (s *Store) read() ([]Credential, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var entries []Credential
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return entries, nil
}

func (s *Store) write(entries []Credential) error {
	if entries == nil {
		entries = []Credential{}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}
