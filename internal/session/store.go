package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// Record is the persisted part of a session. Token is handed to the client
// and must be presented to end the session.
type Record struct {
	ID        uuid.UUID        `json:"id"`
	Token     string           `json:"token"`
	User      appointment.User `json:"user"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Store persists session records with a time to live.
type Store interface {
	Save(ctx context.Context, rec Record, ttl time.Duration) error
	Load(ctx context.Context, id uuid.UUID) (Record, error)
	// Delete removes the record only if its token matches. It reports whether
	// a record was removed.
	Delete(ctx context.Context, id uuid.UUID, token string) (bool, error)
}

type memoryItem struct {
	rec     Record
	expires time.Time
}

// MemoryStore keeps records in process. It is meant for tests and single
// instance development setups.
type MemoryStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]memoryItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]memoryItem), now: time.Now}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(rec.ID); ok {
		return ErrSessionExists
	}
	item := memoryItem{rec: rec}
	if ttl > 0 {
		item.expires = s.now().Add(ttl)
	}
	s.items[rec.ID] = item
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id uuid.UUID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.liveLocked(id)
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	return item.rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.liveLocked(id)
	if !ok || item.rec.Token != token {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *MemoryStore) liveLocked(id uuid.UUID) (memoryItem, bool) {
	item, ok := s.items[id]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expires.IsZero() && !s.now().Before(item.expires) {
		delete(s.items, id)
		return memoryItem{}, false
	}
	return item, true
}
