package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Document names used by the application.
const (
	UsersDocument   = "users.json"
	PlansDocument   = "diet_plans.json"
	HistoryDocument = "history.json"
)

// DocumentStore keeps whole JSON documents as files under a base directory.
// A missing, empty or corrupt document reads as the empty default.
type DocumentStore struct {
	basePath string
	mu       sync.Mutex
}

// NewDocumentStore creates a new DocumentStore and ensures the base directory exists.
func NewDocumentStore(basePath string) (*DocumentStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &DocumentStore{basePath: basePath}, nil
}

func (s *DocumentStore) path(name string) string {
	return filepath.Join(s.basePath, name)
}

// Load decodes the named document into v. v is left untouched when the
// document is missing or unreadable.
func (s *DocumentStore) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(name, v)
}

// Save replaces the named document with v.
func (s *DocumentStore) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(name, v)
}

// Update runs a read-modify-write cycle on the named document under the store lock.
// The document is written only when fn returns nil.
func Update[T any](s *DocumentStore, name string, fn func(doc T) (T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc T
	if err := s.load(name, &doc); err != nil {
		return err
	}
	next, err := fn(doc)
	if err != nil {
		return err
	}
	return s.save(name, next)
}

func (s *DocumentStore) load(name string, v any) error {
	filePath := s.path(name)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read document %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt documents read as empty; keep the evidence in the log.
		slog.Warn("corrupt document treated as empty",
			slog.String("path", filePath),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return nil
}

func (s *DocumentStore) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.basePath, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close document %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return fmt.Errorf("failed to replace document %s: %w", name, err)
	}
	return nil
}
