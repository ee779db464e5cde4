// Package prefs persists the two per-client preferences: cookie consent
// and colour theme.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"formatconv/contracts"
	"formatconv/logger"
)

type Key string

const (
	KeyCookieConsent Key = "cookie-consent"
	KeyTheme         Key = "theme"
)

var allowed = map[Key][]string{
	KeyCookieConsent: {"accepted", "declined"},
	KeyTheme:         {"light", "dark"},
}

var ErrUnknownKey = fmt.Errorf("%w: unknown preference", contracts.ErrValidation)

func ParseKey(s string) (Key, error) {
	k := Key(s)
	if _, ok := allowed[k]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownKey, s)
	}
	return k, nil
}

// Validate reports whether value is one of the values key accepts.
func Validate(key Key, value string) error {
	values, ok := allowed[key]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	for _, v := range values {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %v, got %q", contracts.ErrValidation, key, values, value)
}

// Store keeps preference values per client. Get reports false when the
// client never set key.
type Store interface {
	Get(ctx context.Context, client string, key Key) (string, bool, error)
	Set(ctx context.Context, client string, key Key, value string) error
	Close() error
}

// Load returns the stored value, or "" when none is stored or the read
// fails.
func Load(ctx context.Context, s Store, client string, key Key) string {
	v, ok, err := s.Get(ctx, client, key)
	if err != nil {
		logger.Warn(ctx, "preference read failed", logger.Fields{"key": string(key), "error": err.Error()})
		return ""
	}
	if !ok || Validate(key, v) != nil {
		return ""
	}
	return v
}

// Save validates value and writes it. Write failures are logged and
// otherwise ignored.
func Save(ctx context.Context, s Store, client string, key Key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	if err := s.Set(ctx, client, key, value); err != nil {
		logger.Warn(ctx, "preference write failed", logger.Fields{"key": string(key), "error": err.Error()})
	}
	return nil
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[Key]string
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[Key]string)}
}

var errClosed = errors.New("preference store is closed")

func (m *MemoryStore) Get(_ context.Context, client string, key Key) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, errClosed
	}
	v, ok := m.values[client][key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, client string, key Key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	if m.values[client] == nil {
		m.values[client] = make(map[Key]string)
	}
	m.values[client][key] = value
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
