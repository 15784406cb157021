package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned by Load when no record is stored under the key.
var ErrNotFound = errors.New("token record not found")

// ErrInvalidKey is returned by constructors for keys outside [A-Za-z0-9_.-].
var ErrInvalidKey = errors.New("invalid storage key")

// ErrEmptyToken is returned by Save when the record carries no token.
var ErrEmptyToken = errors.New("token record has empty token")

const recordVersionCurrent = 1

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Store persists at most one Record under its key.
type Store interface {
	// Load returns the stored record or ErrNotFound.
	Load(ctx context.Context) (Record, error)
	// Save replaces the stored record.
	Save(ctx context.Context, rec Record) error
	// Clear removes the stored record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// Key is the storage key the store was opened with.
	Key() string
}

// Profile is the user half of a Record.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Record is the persisted form of a session.
type Record struct {
	Version      int       `json:"version"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry"`
	User         Profile   `json:"user"`
	SavedAt      time.Time `json:"saved_at"`
}

// Expired reports whether the token expiry has passed at now. A zero expiry never
// expires.
func (r Record) Expired(now time.Time) bool {
	return !r.TokenExpiry.IsZero() && !now.Before(r.TokenExpiry)
}

// ValidateKey checks a storage key.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func encodeRecord(rec Record) ([]byte, error) {
	if rec.Token == "" {
		return nil, ErrEmptyToken
	}
	rec.Version = recordVersionCurrent
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode token record: %w", err)
	}
	if rec.Version < 1 || rec.Version > recordVersionCurrent {
		return Record{}, fmt.Errorf("decode token record: unsupported version %d", rec.Version)
	}
	if rec.Token == "" {
		return Record{}, fmt.Errorf("decode token record: %w", ErrEmptyToken)
	}
	return rec, nil
}
