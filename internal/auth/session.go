package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nimbus-im/nimbus/internal/model"
)

// SessionState is the only state that survives a process restart: the
// identity and the authenticated flag. Messages, roster and typing state are
// rebuilt each session.
type SessionState struct {
	Identity      *model.Identity `json:"identity,omitempty"`
	Authenticated bool            `json:"authenticated"`
}

// SessionStore persists SessionState as a JSON file.
type SessionStore struct {
	path string
}

// NewSessionStore creates a store writing to path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load reads the persisted session. A missing file yields an empty state.
func (s *SessionStore) Load() (SessionState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return SessionState{}, nil
	}
	if err != nil {
		return SessionState{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return SessionState{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	return state, nil
}

// Save writes the session atomically (temp file + rename).
func (s *SessionStore) Save(state SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the persisted session.
func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
