// Package auth keeps user credentials in the users document.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"smart-diet-planner/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyUserID is returned when a blank user identifier is supplied.
var ErrEmptyUserID = errors.New("user id is required")

var errUserExists = errors.New("user already exists")

// credentials maps user id to password hash.
type credentials map[string]string

// Store is the credential store backed by the users document.
type Store struct {
	docs *storage.DocumentStore
	cost int
}

// NewStore creates a credential store over docs.
func NewStore(docs *storage.DocumentStore) *Store {
	return &Store{docs: docs, cost: bcrypt.DefaultCost}
}

// Register stores a hash of secret for userID. It reports false when the
// user already exists, leaving the store unchanged.
func (s *Store) Register(ctx context.Context, userID, secret string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrEmptyUserID
	}

	hash, err := bcrypt.GenerateFromPassword(digest(secret), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	err = storage.Update(s.docs, storage.UsersDocument, func(doc credentials) (credentials, error) {
		if doc == nil {
			doc = credentials{}
		}
		if _, ok := doc[userID]; ok {
			return doc, errUserExists
		}
		doc[userID] = string(hash)
		return doc, nil
	})
	if errors.Is(err, errUserExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("save credentials: %w", err)
	}
	return true, nil
}

// Verify reports whether userID exists and secret matches its stored hash.
// Legacy unsalted SHA-256 records are upgraded to bcrypt after a successful match.
func (s *Store) Verify(ctx context.Context, userID, secret string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}

	var doc credentials
	if err := s.docs.Load(storage.UsersDocument, &doc); err != nil {
		return false, fmt.Errorf("load credentials: %w", err)
	}
	stored, ok := doc[userID]
	if !ok {
		return false, nil
	}

	if isLegacyHash(stored) {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(legacyHash(secret))) != 1 {
			return false, nil
		}
		if err := s.upgrade(userID, stored, secret); err != nil {
			slog.Warn("failed to upgrade legacy credential",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return true, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(stored), digest(secret)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) upgrade(userID, old, secret string) error {
	hash, err := bcrypt.GenerateFromPassword(digest(secret), s.cost)
	if err != nil {
		return err
	}
	return storage.Update(s.docs, storage.UsersDocument, func(doc credentials) (credentials, error) {
		// Only replace the record we verified against.
		if doc[userID] != old {
			return doc, nil
		}
		doc[userID] = string(hash)
		return doc, nil
	})
}

// digest keeps secrets of any length within bcrypt's 72 byte input limit.
func digest(secret string) []byte {
	return []byte(legacyHash(secret))
}

func legacyHash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func isLegacyHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}
