package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PointerStore persists the id of the last joined group so a reconnecting
// client can ask to rejoin it. Only the id is kept, never playback state.
type PointerStore interface {
	Load() (groupID string, ok bool, err error)
	Save(groupID string) error
	Clear() error
}

// MemoryStore keeps the pointer for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	groupID string
}

func (s *MemoryStore) Load() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupID, s.groupID != "", nil
}

func (s *MemoryStore) Save(groupID string) error {
	s.mu.Lock()
	s.groupID = groupID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error { return s.Save("") }

// FileStore keeps the pointer in a small JSON file so it survives restarts.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type pointerFile struct {
	GroupID string `json:"groupId"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read group pointer: %w", err)
	}
	var p pointerFile
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", false, fmt.Errorf("decode group pointer: %w", err)
	}
	return p.GroupID, p.GroupID != "", nil
}

func (s *FileStore) Save(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(pointerFile{GroupID: groupID})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("write group pointer: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write group pointer: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear group pointer: %w", err)
	}
	return nil
}
