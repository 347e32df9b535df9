// Package session persists the authenticated browser state captured after a
// Superset login together with the username it belongs to.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	BlobFile = "auth.json"
	MetaFile = "auth_meta.json"
)

// ErrNoSession is returned when no complete session record exists on disk.
var ErrNoSession = errors.New("no saved session")

// Cookie mirrors a browser cookie in storage-state form.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// NameValue is one localStorage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OriginState holds the localStorage of a single origin.
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// StorageState is the cookie and localStorage snapshot replayed on reuse.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Record is a saved session plus its owner.
type Record struct {
	State StorageState
	Owner string
}

type meta struct {
	Username string `json:"username"`
}

// Store reads and writes session records under a single directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the session directory.
func (s *Store) Dir() string { return s.dir }

// Load returns the saved record, or ErrNoSession when either file is missing or unreadable.
func (s *Store) Load() (*Record, error) {
	rawMeta, err := os.ReadFile(filepath.Join(s.dir, MetaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session meta: %w", err)
	}
	var m meta
	if err := json.Unmarshal(rawMeta, &m); err != nil || m.Username == "" {
		return nil, ErrNoSession
	}

	rawBlob, err := os.ReadFile(filepath.Join(s.dir, BlobFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session blob: %w", err)
	}
	var state StorageState
	if err := json.Unmarshal(rawBlob, &state); err != nil {
		return nil, ErrNoSession
	}

	return &Record{State: state, Owner: m.Username}, nil
}

// Save replaces the record for username. Both files are staged before the old
// record is touched, so a failed write leaves the previous record usable. The
// meta file is dropped before the blob is swapped and written last, so an
// interrupted commit never pairs a new owner with an old blob.
func (s *Store) Save(state StorageState, username string) error {
	if username == "" {
		return errors.New("session owner is required")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	blob, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	rawMeta, err := json.Marshal(meta{Username: username})
	if err != nil {
		return fmt.Errorf("encode session meta: %w", err)
	}

	blobPath := filepath.Join(s.dir, BlobFile)
	metaPath := filepath.Join(s.dir, MetaFile)
	blobTmp, err := stage(blobPath, blob)
	if err != nil {
		return fmt.Errorf("write session blob: %w", err)
	}
	metaTmp, err := stage(metaPath, rawMeta)
	if err != nil {
		_ = os.Remove(blobTmp)
		return fmt.Errorf("write session meta: %w", err)
	}

	if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(blobTmp)
		_ = os.Remove(metaTmp)
		return fmt.Errorf("invalidate session meta: %w", err)
	}
	if err := os.Rename(blobTmp, blobPath); err != nil {
		_ = os.Remove(blobTmp)
		_ = os.Remove(metaTmp)
		return fmt.Errorf("write session blob: %w", err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		_ = os.Remove(metaTmp)
		return fmt.Errorf("write session meta: %w", err)
	}
	return nil
}

// Clear removes both session files.
func (s *Store) Clear() error {
	for _, name := range []string{MetaFile, BlobFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// stage writes data next to path and returns the temporary file name.
func stage(path string, data []byte) (string, error) {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", err
	}
	return tmp, nil
}
