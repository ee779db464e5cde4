// Package publisher turns conversion payloads into revocable references and
// keeps at most one live reference set per session.
package publisher

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"formatconv/contracts"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("result not found or already revoked")

// Reference is a transient handle to one published payload.
type Reference struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

type Store interface {
	Put(ctx context.Context, p contracts.Payload) (Reference, error)
	Open(ctx context.Context, id string) (contracts.Payload, error)
	Revoke(ctx context.Context, id string) error
}

func newReference(id, link string, p contracts.Payload) Reference {
	return Reference{
		ID:          id,
		URL:         link,
		Filename:    p.Filename,
		ContentType: p.ContentType,
		Size:        len(p.Data),
		Width:       p.Width,
		Height:      p.Height,
	}
}

// MemoryStore keeps payloads in process memory and serves them under
// <baseURL>/results/<id>.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	items   map[string]contracts.Payload
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		items:   make(map[string]contracts.Payload),
	}
}

func (s *MemoryStore) Put(_ context.Context, p contracts.Payload) (Reference, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.items[id] = p
	s.mu.Unlock()
	return newReference(id, s.baseURL+"/results/"+url.PathEscape(id), p), nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (contracts.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return contracts.Payload{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Len reports how many payloads are live.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
